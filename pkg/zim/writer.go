package zim

import (
	"crypto/md5"
	"fmt"
	"sort"

	"github.com/bevelgacom/gozim/pkg/zim/compress"
	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

// Writer stages additions, removals, and edits against an archive and
// commits them all at once in Flush, the only point at which the
// on-disk file becomes observable in its new state. Modeled on a
// stage-then-commit blob writer: nothing touches src until Flush, so a
// caller that abandons a Writer without calling Flush leaves src
// untouched.
type Writer struct {
	src    Source
	policy Policy

	// baseOffset carries over the archive's own base offset when editing
	// an archive embedded inside a larger container (OpenForEdit); zero
	// for a brand-new archive, which always starts at the front of src.
	baseOffset int64

	// origArchive and origFileEnd are set by OpenForEdit: they let Flush
	// seed its allocator from the real holes in the archive being edited
	// (scanForHoles) instead of always laying the new archive out from
	// scratch at HeaderSize.
	origArchive *Archive
	origFileEnd int64

	// released accumulates byte ranges freed by RemoveEntry and by
	// dropUnreferencedClusters, relative to the original archive's
	// layout; Flush releases them into the allocator before laying out
	// the new content so they can be reused instead of only ever
	// growing the file.
	released []freeRange

	codec          compress.Codec
	compressionTag byte

	uuid       [16]byte
	mainPage   uint32
	layoutPage uint32

	mimeList []string

	// entries is kept sorted by (Namespace, URL) throughout staging, the
	// order the URL pointer list requires at flush time.
	entries []stagedEntry

	// clusters holds one staged cluster per slice entry. This writer
	// keeps the simplest valid packing, one blob per cluster; archives
	// produced this way are valid ZIM files but forgo the cross-blob
	// compression ratio a multi-blob packer would get from grouping
	// related small entries into shared clusters.
	clusters [][]byte

	// clusterOrig mirrors clusters: the original (offset, size) a reused
	// cluster occupied in origArchive, or the zero value for a cluster
	// added in this edit session. Used to release its old slot if the
	// cluster ends up unreferenced after edits.
	clusterOrig []freeRange
}

type stagedEntry struct {
	DirEntry
	removed bool

	// origOffset/origSize record where this entry's DirEntry bytes lived
	// in origArchive, zero for an entry added in this edit session.
	// RemoveEntry releases this range so a later allocation in the same
	// Flush can reuse it.
	origOffset int64
	origSize   int64
}

// NewWriter stages a brand-new, empty archive to be built up with
// AddEntry/AddRedirect and written to src by Flush.
func NewWriter(src Source, policy Policy, uuid [16]byte) *Writer {
	reg := compress.NewRegistry()
	codec, _ := reg.Lookup(5)
	return &Writer{
		src:            src,
		policy:         policy,
		codec:          codec,
		compressionTag: 5,
		uuid:           uuid,
		mainPage:       NoPage,
		layoutPage:     NoPage,
	}
}

// OpenForEdit stages every entry and cluster of an already-open archive
// so it can be mutated and re-flushed. Intended for small-to-medium
// archives; it materializes the whole directory and every referenced
// blob in memory, each blob staged as a cluster of its own, the tradeoff
// an in-place editor for a clustered, compressed format makes to keep
// the pointer-list and cluster-renumber bookkeeping tractable.
func OpenForEdit(a *Archive, policy Policy) (*Writer, error) {
	w := &Writer{
		src:            a.src,
		policy:         policy,
		baseOffset:     a.baseOffset,
		origArchive:    a,
		origFileEnd:    a.clusterDataEnd,
		codec:          nil,
		compressionTag: 5,
		uuid:           a.header.UUID,
		mainPage:       a.header.MainPage,
		layoutPage:     a.header.LayoutPage,
		mimeList:       append([]string(nil), a.mimeList...),
	}
	reg := compress.NewRegistry()
	w.codec, _ = reg.Lookup(5)

	n := a.EntryCount()
	w.entries = make([]stagedEntry, 0, n)
	clusterBlobIndex := make(map[[2]uint32]uint32) // (old cluster, old blob) -> new cluster slice index
	origClusterSeen := make(map[uint32]bool)
	for i := 0; i < n; i++ {
		entryOff, err := a.urlPtrs.Get(i)
		if err != nil {
			return nil, err
		}
		d, err := a.fetchDirEntry(i)
		if err != nil {
			return nil, err
		}
		se := stagedEntry{DirEntry: d, origOffset: int64(entryOff), origSize: int64(d.size())}
		if !d.IsRedirect {
			key := [2]uint32{d.ClusterNum, d.BlobNum}
			newClusterIdx, ok := clusterBlobIndex[key]
			if !ok {
				c, err := a.GetCluster(d.ClusterNum)
				if err != nil {
					return nil, err
				}
				blob, err := c.GetBlob(int(d.BlobNum))
				if err != nil {
					return nil, err
				}
				clusterOff, err := a.clusterPtrs.Get(int(d.ClusterNum))
				if err != nil {
					return nil, err
				}
				clusterLen, err := a.clusterLength(d.ClusterNum)
				if err != nil {
					return nil, err
				}
				newClusterIdx = uint32(len(w.clusters))
				w.clusters = append(w.clusters, blob)
				// Only the first staged blob of an old cluster carries its
				// original range, so the range is released at most once.
				var orig freeRange
				if !origClusterSeen[d.ClusterNum] {
					orig = freeRange{Start: int64(clusterOff), End: int64(clusterOff) + clusterLen}
					origClusterSeen[d.ClusterNum] = true
				}
				w.clusterOrig = append(w.clusterOrig, orig)
				clusterBlobIndex[key] = newClusterIdx
			}
			se.ClusterNum = newClusterIdx
			se.BlobNum = 0
		}
		w.entries = append(w.entries, se)
	}
	return w, nil
}

func (w *Writer) SetMainPage(idx uint32)   { w.mainPage = idx }
func (w *Writer) SetLayoutPage(idx uint32) { w.layoutPage = idx }

func (w *Writer) findIndex(namespace byte, url string) int {
	return sort.Search(len(w.entries), func(i int) bool {
		e := w.entries[i]
		if e.Namespace != namespace {
			return e.Namespace >= namespace
		}
		return e.URL >= url
	})
}

func (w *Writer) exists(namespace byte, url string) bool {
	i := w.findIndex(namespace, url)
	return i < len(w.entries) && w.entries[i].Namespace == namespace && w.entries[i].URL == url
}

// AddEntry stages a new content entry. Returns ErrDuplicateEntry if
// (namespace, url) is already present; use EditEntry to replace it.
func (w *Writer) AddEntry(namespace byte, url, title, mimetype string, data []byte) error {
	if w.exists(namespace, url) {
		return fmt.Errorf("%w: %c/%s", zimerr.ErrDuplicateEntry, namespace, url)
	}
	var mtIdx uint16
	w.mimeList, mtIdx = mimeIndex(w.mimeList, mimetype)

	clusterNum := uint32(len(w.clusters))
	w.clusters = append(w.clusters, data)

	d := DirEntry{
		MimeType:   mtIdx,
		Namespace:  namespace,
		ClusterNum: clusterNum,
		BlobNum:    0,
		URL:        url,
		Title:      title,
	}
	w.insert(stagedEntry{DirEntry: d})
	return nil
}

// AddRedirect stages a new redirect entry pointing at (targetNamespace,
// targetURL). The target need not exist yet; it is resolved by URL at
// Flush time, so redirects can be added before their targets.
func (w *Writer) AddRedirect(namespace byte, url, title string, targetNamespace byte, targetURL string) error {
	if w.exists(namespace, url) {
		return fmt.Errorf("%w: %c/%s", zimerr.ErrDuplicateEntry, namespace, url)
	}
	d := DirEntry{
		MimeType:   RedirectMimeType,
		Namespace:  namespace,
		URL:        url,
		Title:      title,
		IsRedirect: true,
		// Params here carries the unresolved target, consumed and
		// cleared by resolveRedirectTargets during Flush.
		Params: []byte(string(targetNamespace) + "/" + targetURL),
	}
	w.insert(stagedEntry{DirEntry: d})
	return nil
}

func (w *Writer) insert(e stagedEntry) {
	i := w.findIndex(e.Namespace, e.URL)
	w.entries = append(w.entries, stagedEntry{})
	copy(w.entries[i+1:], w.entries[i:len(w.entries)-1])
	w.entries[i] = e
}

// RemoveEntry stages the removal of (namespace, url). The entry's
// cluster is released only if no other staged entry still references
// it, checked at Flush once all removals for this batch are known.
func (w *Writer) RemoveEntry(namespace byte, url string) error {
	i := w.findIndex(namespace, url)
	if i >= len(w.entries) || w.entries[i].Namespace != namespace || w.entries[i].URL != url {
		return fmt.Errorf("%w: %c/%s", zimerr.ErrNotFound, namespace, url)
	}
	if w.entries[i].origSize > 0 {
		w.released = append(w.released, freeRange{
			Start: w.entries[i].origOffset,
			End:   w.entries[i].origOffset + w.entries[i].origSize,
		})
	}
	w.entries = append(w.entries[:i], w.entries[i+1:]...)
	return nil
}

// EditEntry stages an in-place metadata edit (title, parameters) on an
// existing entry. Content changes go through RemoveEntry + AddEntry
// since a new blob generally means a new cluster.
func (w *Writer) EditEntry(namespace byte, url string, mutate func(*DirEntry)) error {
	i := w.findIndex(namespace, url)
	if i >= len(w.entries) || w.entries[i].Namespace != namespace || w.entries[i].URL != url {
		return fmt.Errorf("%w: %c/%s", zimerr.ErrNotFound, namespace, url)
	}
	mutate(&w.entries[i].DirEntry)
	// mutate must not change the sort key
	w.entries[i].Namespace = namespace
	w.entries[i].URL = url
	return nil
}

// resolveRedirectTargets turns the (namespace,url) text staged in
// AddRedirect's Params field into a concrete RedirectIdx once every
// entry has a final pointer-list position.
func (w *Writer) resolveRedirectTargets() error {
	index := make(map[string]int, len(w.entries))
	for i, e := range w.entries {
		index[string(e.Namespace)+"/"+e.URL] = i
	}
	for i := range w.entries {
		e := &w.entries[i]
		if !e.IsRedirect || len(e.Params) == 0 {
			continue
		}
		target, ok := index[string(e.Params)]
		if !ok {
			return fmt.Errorf("%w: redirect target %s not found", zimerr.ErrNotFound, e.Params)
		}
		e.RedirectIdx = uint32(target)
		e.Params = nil
	}
	return nil
}

// dropUnreferencedClusters compacts w.clusters to only those still
// referenced by a staged entry, renumbering ClusterNum fields to match.
// Staged clusters live in memory, so renumbering is a pure index remap
// over the staged slice; a dropped cluster that came from the edited
// archive has its original byte range added to w.released.
func (w *Writer) dropUnreferencedClusters() {
	used := make(map[uint32]bool)
	for _, e := range w.entries {
		if !e.IsRedirect {
			used[e.ClusterNum] = true
		}
	}
	remap := make(map[uint32]uint32, len(used))
	newClusters := make([][]byte, 0, len(used))
	var newClusterOrig []freeRange
	if w.clusterOrig != nil {
		newClusterOrig = make([]freeRange, 0, len(used))
	}
	for old := uint32(0); int(old) < len(w.clusters); old++ {
		if !used[old] {
			if int(old) < len(w.clusterOrig) {
				r := w.clusterOrig[old]
				if r.End > r.Start {
					w.released = append(w.released, r)
				}
			}
			continue
		}
		remap[old] = uint32(len(newClusters))
		newClusters = append(newClusters, w.clusters[old])
		if int(old) < len(w.clusterOrig) {
			newClusterOrig = append(newClusterOrig, w.clusterOrig[old])
		} else if newClusterOrig != nil {
			newClusterOrig = append(newClusterOrig, freeRange{})
		}
	}
	for i := range w.entries {
		if !w.entries[i].IsRedirect {
			w.entries[i].ClusterNum = remap[w.entries[i].ClusterNum]
		}
	}
	w.clusters = newClusters
	w.clusterOrig = newClusterOrig
}

// buildTitlePtrs computes the title pointer list: URL-pointer indices
// sorted by (namespace, effective title).
func (w *Writer) buildTitlePtrs() []uint64 {
	order := make([]int, len(w.entries))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := w.entries[order[i]], w.entries[order[j]]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.EffectiveTitle() < b.EffectiveTitle()
	})
	out := make([]uint64, len(order))
	for i, idx := range order {
		out[i] = uint64(idx)
	}
	return out
}

// Flush writes the staged archive to src: header, MIME table, entries,
// pointer lists, clusters, and checksum trailer, in that order, then truncates src
// to the archive's true end (only when that's safe; see TruncateAfterWrite).
// This is the only point at which src's contents change.
func (w *Writer) Flush() (*Archive, error) {
	if err := w.resolveRedirectTargets(); err != nil {
		return nil, err
	}
	w.dropUnreferencedClusters()

	// A from-scratch Writer (NewWriter) lays out from HeaderSize with an
	// empty free set. A Writer staged from OpenForEdit seeds the
	// allocator from the edited archive's own layout: scanForHoles finds
	// whatever gaps already existed in it, and released adds the ranges
	// RemoveEntry/dropUnreferencedClusters just freed, so this Flush can
	// reuse them instead of only ever growing the file.
	allocEnd := int64(HeaderSize)
	var holes []freeRange
	if w.origArchive != nil {
		allocEnd = w.origFileEnd
		if allocEnd < int64(HeaderSize) {
			allocEnd = int64(HeaderSize)
		}
		var err error
		holes, err = scanForHoles(w.origArchive)
		if err != nil {
			return nil, fmt.Errorf("zim: scan for holes: %w", err)
		}
	}
	alloc := newAllocator(allocEnd, w.policy.CoalesceFreeRanges)
	for _, h := range holes {
		alloc.Release(h.Start, h.size())
	}
	for _, r := range w.released {
		alloc.Release(r.Start, r.size())
	}

	mimeBytes := encodeMimeList(w.mimeList)
	mimeListPos := alloc.Alloc(int64(len(mimeBytes)), w.policy.AllocStrategy)

	// Entries, then the three pointer lists, then clusters last: clusters
	// sit immediately before the checksum trailer, so a reader can treat
	// "the last cluster ends where the checksum begins" as an invariant
	// instead of tracking a separate cluster-region end marker. Of the
	// pointer lists, urlPtrs (8 bytes per entry) is allocated before the
	// smaller titlePtrs (4 bytes per entry).
	entryBytes := make([][]byte, len(w.entries))
	entryOffsets := make([]uint64, len(w.entries))
	for i, e := range w.entries {
		b := e.DirEntry.encode()
		entryBytes[i] = b
		entryOffsets[i] = uint64(alloc.Alloc(int64(len(b)), w.policy.AllocStrategy))
	}

	urlPtrList := newPointerList(nil, 0, 8, 0)
	for i, o := range entryOffsets {
		if err := urlPtrList.Insert(i, o); err != nil {
			return nil, err
		}
	}
	urlPtrBytes, err := urlPtrList.encode()
	if err != nil {
		return nil, err
	}
	urlPtrPos := alloc.Alloc(int64(len(urlPtrBytes)), w.policy.AllocStrategy)

	titlePtrVals := w.buildTitlePtrs()
	titlePtrList := newPointerList(nil, 0, 4, 0)
	for i, v := range titlePtrVals {
		if err := titlePtrList.Insert(i, v); err != nil {
			return nil, err
		}
	}
	titlePtrBytes, err := titlePtrList.encode()
	if err != nil {
		return nil, err
	}
	titlePtrPos := alloc.Alloc(int64(len(titlePtrBytes)), w.policy.AllocStrategy)

	clusterPtrPos := alloc.Alloc(int64(len(w.clusters))*8, w.policy.AllocStrategy)

	// Clusters form one contiguous block at the end of the file, in
	// cluster-number order, so each cluster ends where the next begins and
	// the last one ends at the checksum (see Archive.clusterLength).
	clusterOffsets := make([]uint64, len(w.clusters))
	clusterBytes := make([][]byte, len(w.clusters))
	var clusterTotal int64
	for i, blob := range w.clusters {
		encoded, err := encodeCluster([][]byte{blob}, w.codec, false)
		if err != nil {
			return nil, fmt.Errorf("zim: encode cluster %d: %w", i, err)
		}
		body := append([]byte{w.compressionTag}, encoded...)
		clusterBytes[i] = body
		clusterTotal += int64(len(body))
	}
	next := alloc.grow(clusterTotal)
	for i, b := range clusterBytes {
		clusterOffsets[i] = uint64(next)
		next += int64(len(b))
	}

	clusterPtrList := newPointerList(nil, 0, 8, 0)
	for i, o := range clusterOffsets {
		if err := clusterPtrList.Insert(i, o); err != nil {
			return nil, err
		}
	}
	clusterPtrBytes, err := clusterPtrList.encode()
	if err != nil {
		return nil, err
	}

	checksumPos := alloc.End()

	h := Header{
		MajorVersion:  6,
		MinorVersion:  newNamespaceMinorVersion,
		UUID:          w.uuid,
		EntryCount:    uint32(len(w.entries)),
		ClusterCount:  uint32(len(w.clusters)),
		URLPtrPos:     uint64(urlPtrPos),
		TitlePtrPos:   uint64(titlePtrPos),
		ClusterPtrPos: uint64(clusterPtrPos),
		MimeListPos:   uint64(mimeListPos),
		MainPage:      w.mainPage,
		LayoutPage:    w.layoutPage,
		ChecksumPos:   uint64(checksumPos),
	}

	write := func(off int64, b []byte) error {
		if _, err := w.src.WriteAt(b, w.baseOffset+off); err != nil {
			return fmt.Errorf("zim: write at %d: %w", w.baseOffset+off, err)
		}
		return nil
	}

	if err := write(0, h.encode()); err != nil {
		return nil, err
	}
	if err := write(mimeListPos, mimeBytes); err != nil {
		return nil, err
	}
	for i, b := range entryBytes {
		if err := write(int64(entryOffsets[i]), b); err != nil {
			return nil, err
		}
	}
	if err := write(urlPtrPos, urlPtrBytes); err != nil {
		return nil, err
	}
	if err := write(titlePtrPos, titlePtrBytes); err != nil {
		return nil, err
	}
	if err := write(clusterPtrPos, clusterPtrBytes); err != nil {
		return nil, err
	}
	for i, b := range clusterBytes {
		if err := write(int64(clusterOffsets[i]), b); err != nil {
			return nil, err
		}
	}

	// verifyChecksum (and any external ZIM checksum verifier) hashes the
	// file bytes sequentially from 0 to checksumPos, so the trailer is
	// computed by reading those bytes back in file order, including any
	// unused hole bytes between the segments written above.
	hasher := md5.New()
	buf := make([]byte, 1<<20)
	for off := int64(0); off < checksumPos; {
		n := int64(len(buf))
		if checksumPos-off < n {
			n = checksumPos - off
		}
		if err := readAt(w.src, w.baseOffset+off, buf[:n]); err != nil {
			return nil, fmt.Errorf("zim: read back for checksum: %w", err)
		}
		hasher.Write(buf[:n])
		off += n
	}
	sum := hasher.Sum(nil)
	if _, err := w.src.WriteAt(sum, w.baseOffset+checksumPos); err != nil {
		return nil, fmt.Errorf("zim: write checksum: %w", err)
	}

	// Truncating is only safe for a standalone archive file: one opened
	// at a non-zero base offset may share its Source with container
	// bytes that follow the archive, which truncation would destroy.
	if w.policy.TruncateAfterWrite && w.baseOffset == 0 {
		if err := w.src.Truncate(checksumPos + int64(len(sum))); err != nil {
			return nil, fmt.Errorf("zim: truncate: %w", err)
		}
	}

	return Open(w.src, w.baseOffset, w.policy)
}
