package zim

import (
	"fmt"
	"io"

	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

// DirEntry is a decoded directory entry, either content or a redirect.
// IsRedirect distinguishes the two; the fields that don't apply to a
// redirect (Compression-relevant fields live on the cluster, not here)
// are simply unused.
type DirEntry struct {
	MimeType     uint16 // RedirectMimeType if IsRedirect
	ParameterLen uint8
	Namespace    byte
	Revision     uint32
	ClusterNum   uint32 // content only
	BlobNum      uint32 // content only
	RedirectIdx  uint32 // redirect only: URL pointer list index of target
	URL          string
	Title        string
	Params       []byte // opaque, preserved verbatim (§9 open question)

	IsRedirect bool
}

// EffectiveTitle returns Title, falling back to URL when Title is empty
// per the convention the teacher's GetDirectoryEntry normalizes on read.
func (d DirEntry) EffectiveTitle() string {
	if d.Title == "" {
		return d.URL
	}
	return d.Title
}

// decodeDirEntry fully decodes the entry at off.
func decodeDirEntry(src io.ReaderAt, off int64) (DirEntry, error) {
	var d DirEntry

	mt, err := readUint16At(src, off)
	if err != nil {
		return d, err
	}
	d.MimeType = mt
	d.IsRedirect = mt == RedirectMimeType

	plen, err := readUint8At(src, off+2)
	if err != nil {
		return d, err
	}
	d.ParameterLen = plen

	ns, err := readUint8At(src, off+3)
	if err != nil {
		return d, err
	}
	d.Namespace = ns

	d.Revision, err = readUint32At(src, off+4)
	if err != nil {
		return d, err
	}

	pos := off + 8
	if d.IsRedirect {
		d.RedirectIdx, err = readUint32At(src, pos)
		if err != nil {
			return d, err
		}
		pos += 4
	} else {
		d.ClusterNum, err = readUint32At(src, pos)
		if err != nil {
			return d, err
		}
		d.BlobNum, err = readUint32At(src, pos+4)
		if err != nil {
			return d, err
		}
		pos += 8
	}

	d.URL, pos, err = readCString(src, pos, 2048)
	if err != nil {
		return d, err
	}
	d.Title, pos, err = readCString(src, pos, 2048)
	if err != nil {
		return d, err
	}

	if plen > 0 {
		d.Params = make([]byte, plen)
		if err := readAt(src, pos, d.Params); err != nil {
			return d, err
		}
	}

	return d, nil
}

func readUint8At(src io.ReaderAt, off int64) (uint8, error) {
	var b [1]byte
	if err := readAt(src, off, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// decodeDirEntryPrefix reads only the namespace and URL of the entry at
// off, skipping the title and parameters, for use during binary search
// where only the sort key is needed. Significantly cheaper than a full
// decode on archives with long titles.
func decodeDirEntryPrefix(src io.ReaderAt, off int64) (namespace byte, url string, err error) {
	ns, err := readUint8At(src, off+3)
	if err != nil {
		return 0, "", err
	}
	mt, err := readUint16At(src, off)
	if err != nil {
		return 0, "", err
	}
	pos := off + 8
	if mt == RedirectMimeType {
		pos += 4
	} else {
		pos += 8
	}
	url, _, err = readCString(src, pos, 2048)
	if err != nil {
		return 0, "", err
	}
	return ns, url, nil
}

// decodeDirEntryTitleKey reads the (namespace, title) sort key used by
// the title pointer list's binary search.
func decodeDirEntryTitleKey(src io.ReaderAt, off int64) (namespace byte, title string, err error) {
	d, err := decodeDirEntry(src, off)
	if err != nil {
		return 0, "", err
	}
	return d.Namespace, d.EffectiveTitle(), nil
}

// size returns the exact on-disk byte length of d's encoding.
func (d DirEntry) size() int {
	n := 8 // mimetype+paramlen+ns+revision
	if d.IsRedirect {
		n += 4
	} else {
		n += 8
	}
	n += len(d.URL) + 1
	n += len(d.Title) + 1
	n += len(d.Params)
	return n
}

func (d DirEntry) encode() []byte {
	w := newByteWriter(d.size())
	w.u16(d.MimeType)
	w.u8(uint8(len(d.Params)))
	w.u8(d.Namespace)
	w.u32(d.Revision)
	if d.IsRedirect {
		w.u32(d.RedirectIdx)
	} else {
		w.u32(d.ClusterNum)
		w.u32(d.BlobNum)
	}
	w.cstring(d.URL)
	w.cstring(d.Title)
	w.raw(d.Params)
	return w.bytes()
}

// validateNamespace rejects bytes outside the documented namespace set,
// catching the namespaceless-scheme misdetection case spec.md §9 warns
// about: a namespaceless archive slipping past the header minorVersion
// check would otherwise decode garbage namespace bytes silently. Such
// archives are reported as ErrUnsupportedFormat.
func validateNamespace(b byte) error {
	switch b {
	case '-', 'A', 'B', 'C', 'I', 'J', 'M', 'U', 'V', 'W', 'X':
		return nil
	default:
		return fmt.Errorf("%w: invalid namespace byte %#x", zimerr.ErrUnsupportedFormat, b)
	}
}
