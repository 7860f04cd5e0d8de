package zim

import "github.com/bevelgacom/gozim/pkg/zim/zimerr"

// Entry is a directory entry bound to the Archive it was read from. The
// bound/unbound distinction (§9) is explicit: a DirEntry value carries no
// reference back to an archive, while Entry embeds one and exposes the
// operations that need it (Data, Resolve). Constructing an Entry outside
// Archive's own lookups is unsupported; Bind recovers a usable Entry from
// a DirEntry plus the archive it came from.
type Entry struct {
	archive *Archive
	Index   int
	DirEntry
}

// Bind attaches archive to an unbound DirEntry, recovering a usable
// Entry. Returns ErrBindRequired if archive is nil.
func Bind(archive *Archive, index int, d DirEntry) (*Entry, error) {
	if archive == nil {
		return nil, zimerr.ErrBindRequired
	}
	return &Entry{archive: archive, Index: index, DirEntry: d}, nil
}

// Data returns the entry's content bytes. Redirect entries have no data
// of their own; call Resolve first.
func (e *Entry) Data() ([]byte, error) {
	if e.archive == nil {
		return nil, zimerr.ErrBindRequired
	}
	if e.IsRedirect {
		return nil, zimerr.ErrRedirectLoop
	}
	c, err := e.archive.GetCluster(e.ClusterNum)
	if err != nil {
		return nil, err
	}
	return c.GetBlob(int(e.BlobNum))
}

// MimeType resolves the entry's MIME type string via the archive's MIME
// table. Returns an empty string for redirects.
func (e *Entry) MimeType() string {
	if e.archive == nil || e.IsRedirect {
		return ""
	}
	if int(e.DirEntry.MimeType) >= len(e.archive.mimeList) {
		return ""
	}
	return e.archive.mimeList[e.DirEntry.MimeType]
}

// Resolve follows a redirect chain (if any) to the underlying content
// entry, per the archive's configured MaxRedirectDepth.
func (e *Entry) Resolve() (*Entry, error) {
	if e.archive == nil {
		return nil, zimerr.ErrBindRequired
	}
	if !e.IsRedirect {
		return e, nil
	}
	d, idx, err := resolveRedirects(e.archive.fetchDirEntry, e.Index, e.archive.policy.MaxRedirectDepth)
	if err != nil {
		return nil, err
	}
	return &Entry{archive: e.archive, Index: idx, DirEntry: d}, nil
}

// FullUrl returns the "N/path" form of the entry's address.
func (e *Entry) FullUrl() string {
	return string(e.Namespace) + "/" + e.URL
}
