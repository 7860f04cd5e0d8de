package zim

import (
	"crypto/md5"
	"fmt"
	"strings"
	"sync"

	"github.com/bevelgacom/gozim/pkg/zim/compress"
	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

// MetadataNamespace is the well-known namespace ZIM archives use for
// title/description/language metadata entries.
const MetadataNamespace = 'M'

// ContentNamespace is the well-known namespace ordinary article/content
// entries live under in the namespace scheme this package implements.
const ContentNamespace = 'C'

// Archive is an opened ZIM file: header, MIME table, and the three
// pointer lists, plus the caches and registry Policy configures. It owns
// src for the lifetime between Open and Close.
type Archive struct {
	mu sync.RWMutex

	src        Source
	baseOffset int64
	policy     Policy
	registry   *compress.Registry

	header   Header
	mimeList []string

	urlPtrs     *PointerList
	titlePtrs   *PointerList
	clusterPtrs *PointerList

	entryCache   *Cache[int, DirEntry]
	clusterCache *Cache[uint32, *Cluster]
	urlCache     *urlLookupCache

	clusterDataEnd int64 // end of the last cluster's byte range
}

// Open parses src as a ZIM archive starting at baseOffset (normally 0;
// non-zero supports archives embedded inside another container, per the
// §9 open-question decision).
func Open(src Source, baseOffset int64, policy Policy) (*Archive, error) {
	h, err := readHeader(src, baseOffset)
	if err != nil {
		return nil, err
	}
	mimeList, err := readMimeList(src, baseOffset+int64(h.MimeListPos))
	if err != nil {
		return nil, err
	}

	a := &Archive{
		src:        src,
		baseOffset: baseOffset,
		policy:     policy,
		registry:   compress.NewRegistry(),
		header:     h,
		mimeList:   mimeList,

		urlPtrs:     newPointerList(src, baseOffset+int64(h.URLPtrPos), 8, int(h.EntryCount)),
		titlePtrs:   newPointerList(src, baseOffset+int64(h.TitlePtrPos), 4, int(h.EntryCount)),
		clusterPtrs: newPointerList(src, baseOffset+int64(h.ClusterPtrPos), 8, int(h.ClusterCount)),

		entryCache:   NewCache[int, DirEntry](policy.EntryCacheCapacity, nil),
		urlCache:     newURLLookupCache(policy.EntryCacheCapacity),
	}
	a.clusterCache = NewCache[uint32, *Cluster](policy.ClusterCacheCapacity, func(_ uint32, c *Cluster) {
		_ = c.Close()
	})

	if h.ChecksumPos != 0 {
		a.clusterDataEnd = int64(h.ChecksumPos)
	} else {
		size, err := src.Size()
		if err != nil {
			return nil, err
		}
		a.clusterDataEnd = size - baseOffset
	}

	if policy.VerifyChecksumOnOpen {
		if err := a.verifyChecksum(); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *Archive) Close() error {
	return a.src.Close()
}

func (a *Archive) EntryCount() int   { return a.urlPtrs.Len() }
func (a *Archive) ClusterCount() int { return a.clusterPtrs.Len() }
func (a *Archive) UUID() [16]byte    { return a.header.UUID }

// MainPage returns the entry the archive nominates as its landing page,
// if any.
func (a *Archive) MainPage() (*Entry, error) {
	if a.header.MainPage == NoPage {
		return nil, zimerr.ErrNotFound
	}
	return a.GetEntryByIndex(int(a.header.MainPage))
}

func (a *Archive) LayoutPage() (*Entry, error) {
	if a.header.LayoutPage == NoPage {
		return nil, zimerr.ErrNotFound
	}
	return a.GetEntryByIndex(int(a.header.LayoutPage))
}

// GetEntryByIndex returns the entry at pointer-list index i, using the
// entry cache when available.
func (a *Archive) GetEntryByIndex(i int) (*Entry, error) {
	d, err := a.fetchDirEntry(i)
	if err != nil {
		return nil, err
	}
	return &Entry{archive: a, Index: i, DirEntry: d}, nil
}

func (a *Archive) fetchDirEntry(i int) (DirEntry, error) {
	if d, ok := a.entryCache.Get(i); ok {
		return d, nil
	}
	off, err := a.urlPtrs.Get(i)
	if err != nil {
		return DirEntry{}, err
	}
	d, err := decodeDirEntry(a.src, a.baseOffset+int64(off))
	if err != nil {
		return DirEntry{}, err
	}
	if err := validateNamespace(d.Namespace); err != nil {
		return DirEntry{}, err
	}
	a.entryCache.Put(i, d)
	return d, nil
}

// GetEntryByUrl looks up the entry with the given (namespace, url).
func (a *Archive) GetEntryByUrl(namespace byte, url string) (*Entry, error) {
	if idx, ok := a.urlCache.Get(namespace, url); ok {
		e, err := a.GetEntryByIndex(idx)
		if err == nil && e.Namespace == namespace && e.URL == url {
			return e, nil
		}
	}
	idx, found, err := findByURL(a.src, a.urlPtrs, namespace, url)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %c/%s", zimerr.ErrNotFound, namespace, url)
	}
	a.urlCache.Put(namespace, url, idx)
	return a.GetEntryByIndex(idx)
}

// GetContentEntryByUrl is shorthand for GetEntryByUrl(ContentNamespace, url).
func (a *Archive) GetContentEntryByUrl(url string) (*Entry, error) {
	return a.GetEntryByUrl(ContentNamespace, url)
}

// GetEntryByFullUrl parses "N/path"-style URLs, the single-byte
// namespace prefix convention used throughout ZIM tooling.
func (a *Archive) GetEntryByFullUrl(full string) (*Entry, error) {
	ns, path, ok := namespaceOf(full)
	if !ok {
		return nil, fmt.Errorf("%w: malformed full url %q", zimerr.ErrFormat, full)
	}
	return a.GetEntryByUrl(ns, path)
}

// GetEntryByTitle looks up an entry by its (namespace, title) key via
// the title pointer list.
func (a *Archive) GetEntryByTitle(namespace byte, title string) (*Entry, error) {
	idx, found, err := findByTitle(a.src, a.titlePtrs, a.urlPtrs, namespace, title)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: title %c/%s", zimerr.ErrNotFound, namespace, title)
	}
	return a.GetEntryByIndex(idx)
}

// Metadata reads the metadata entry for key from the M namespace.
func (a *Archive) Metadata(key string) ([]byte, error) {
	e, err := a.GetEntryByUrl(MetadataNamespace, key)
	if err != nil {
		return nil, err
	}
	return e.Data()
}

// IterEntries calls fn for every entry in URL order, stopping at the
// first error fn returns. An optional namespace restricts iteration to
// entries under that single namespace; at most one may be given.
func (a *Archive) IterEntries(fn func(*Entry) error, namespace ...byte) error {
	if len(namespace) > 1 {
		return fmt.Errorf("%w: IterEntries takes at most one namespace filter", zimerr.ErrFormat)
	}
	n := a.EntryCount()
	for i := 0; i < n; i++ {
		e, err := a.GetEntryByIndex(i)
		if err != nil {
			return err
		}
		if len(namespace) == 1 && e.Namespace != namespace[0] {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// IterClusters calls fn for every cluster in cluster-number order,
// stopping at the first error fn returns. Each cluster stays pinned in
// the cluster cache while fn runs.
func (a *Archive) IterClusters(fn func(*Cluster) error) error {
	n := a.ClusterCount()
	for i := 0; i < n; i++ {
		a.clusterCache.Pin(uint32(i))
		c, err := a.GetCluster(uint32(i))
		if err == nil {
			err = fn(c)
		}
		a.clusterCache.Unpin(uint32(i))
		if err != nil {
			return err
		}
	}
	return nil
}

// GetCluster returns the decoded cluster numbered n, using the cluster
// cache when available.
func (a *Archive) GetCluster(n uint32) (*Cluster, error) {
	if c, ok := a.clusterCache.Get(n); ok {
		return c, nil
	}
	off, err := a.clusterPtrs.Get(int(n))
	if err != nil {
		return nil, err
	}
	length, err := a.clusterLength(n)
	if err != nil {
		return nil, err
	}
	rep := a.policy.ClusterRepresentation
	if a.policy.PreferStreamingAboveBytes > 0 && length > a.policy.PreferStreamingAboveBytes {
		rep = RepresentationStreaming
	}
	c, err := decodeCluster(a.src, a.baseOffset+int64(off), length, n, a.registry, rep)
	if err != nil {
		return nil, err
	}
	a.clusterCache.Put(n, c)
	return c, nil
}

func (a *Archive) clusterLength(n uint32) (int64, error) {
	start, err := a.clusterPtrs.Get(int(n))
	if err != nil {
		return 0, err
	}
	if int(n)+1 < a.ClusterCount() {
		next, err := a.clusterPtrs.Get(int(n) + 1)
		if err != nil {
			return 0, err
		}
		return int64(next - start), nil
	}
	return a.clusterDataEnd - int64(start), nil
}

// verifyChecksum recomputes the MD5 of every byte preceding the
// checksum trailer and compares it against the stored 16-byte value.
func (a *Archive) verifyChecksum() error {
	if a.header.ChecksumPos == 0 {
		return nil
	}
	h := md5.New()
	const chunk = 1 << 20
	buf := make([]byte, chunk)
	var off int64
	end := int64(a.header.ChecksumPos)
	for off < end {
		n := chunk
		if end-off < int64(n) {
			n = int(end - off)
		}
		if err := readAt(a.src, a.baseOffset+off, buf[:n]); err != nil {
			return err
		}
		h.Write(buf[:n])
		off += int64(n)
	}
	var want [16]byte
	if err := readAt(a.src, a.baseOffset+end, want[:]); err != nil {
		return err
	}
	got := h.Sum(nil)
	for i := range want {
		if got[i] != want[i] {
			return zimerr.ErrChecksumMismatch
		}
	}
	return nil
}

// namespaceOf splits a "N/path" full URL into its namespace byte and path.
func namespaceOf(full string) (byte, string, bool) {
	if idx := strings.IndexByte(full, '/'); idx == 1 {
		return full[0], full[2:], true
	}
	return 0, "", false
}
