package zim

import (
	"fmt"
	"io"

	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

// findByURL binary searches the URL pointer list for (namespace, url),
// reading only the (namespace, url) prefix of each probed entry rather
// than the teacher's full decode per probe. Returns the pointer-list
// index and true on an exact match.
func findByURL(src io.ReaderAt, urlPtrs *PointerList, namespace byte, url string) (int, bool, error) {
	n := urlPtrs.Len()
	var probeErr error
	idx := search(n, func(i int) bool {
		if probeErr != nil {
			return false
		}
		off, err := urlPtrs.Get(i)
		if err != nil {
			probeErr = err
			return false
		}
		ns, u, err := decodeDirEntryPrefix(src, int64(off))
		if err != nil {
			probeErr = err
			return false
		}
		if ns != namespace {
			return ns < namespace
		}
		return u < url
	})
	if probeErr != nil {
		return 0, false, probeErr
	}
	if idx >= n {
		return 0, false, nil
	}
	off, err := urlPtrs.Get(idx)
	if err != nil {
		return 0, false, err
	}
	ns, u, err := decodeDirEntryPrefix(src, int64(off))
	if err != nil {
		return 0, false, err
	}
	return idx, ns == namespace && u == url, nil
}

// findByTitle binary searches the title pointer list for (namespace,
// title). Each title-pointer entry stores an index into the URL pointer
// list, so the probe dereferences through urlPtrs to reach the entry.
func findByTitle(src io.ReaderAt, titlePtrs, urlPtrs *PointerList, namespace byte, title string) (int, bool, error) {
	n := titlePtrs.Len()
	var probeErr error
	idx := search(n, func(i int) bool {
		if probeErr != nil {
			return false
		}
		urlIdx, err := titlePtrs.Get(i)
		if err != nil {
			probeErr = err
			return false
		}
		off, err := urlPtrs.Get(int(urlIdx))
		if err != nil {
			probeErr = err
			return false
		}
		ns, t, err := decodeDirEntryTitleKey(src, int64(off))
		if err != nil {
			probeErr = err
			return false
		}
		if ns != namespace {
			return ns < namespace
		}
		return t < title
	})
	if probeErr != nil {
		return 0, false, probeErr
	}
	if idx >= n {
		return 0, false, nil
	}
	urlIdx, err := titlePtrs.Get(idx)
	if err != nil {
		return 0, false, err
	}
	off, err := urlPtrs.Get(int(urlIdx))
	if err != nil {
		return 0, false, err
	}
	ns, t, err := decodeDirEntryTitleKey(src, int64(off))
	if err != nil {
		return 0, false, err
	}
	if ns == namespace && t == title {
		return int(urlIdx), true, nil
	}
	return 0, false, nil
}

// resolveRedirects follows a chain of redirect entries starting from
// pointerIndex until it reaches content, detecting cycles with a
// visited set (the teacher's GetArticleContent loop has no such guard,
// an explicit gap this package closes) and bounding depth at maxDepth.
func resolveRedirects(fetch func(pointerIndex int) (DirEntry, error), pointerIndex int, maxDepth int) (DirEntry, int, error) {
	visited := make(map[int]bool)
	idx := pointerIndex
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			return DirEntry{}, 0, fmt.Errorf("%w: exceeded %d hops", zimerr.ErrRedirectTooDeep, maxDepth)
		}
		if visited[idx] {
			return DirEntry{}, 0, fmt.Errorf("%w: revisited pointer index %d", zimerr.ErrRedirectLoop, idx)
		}
		visited[idx] = true

		d, err := fetch(idx)
		if err != nil {
			return DirEntry{}, 0, err
		}
		if !d.IsRedirect {
			return d, idx, nil
		}
		idx = int(d.RedirectIdx)
	}
}
