package zim

import "io"

// RedirectMimeType is the sentinel mimetype index marking a directory
// entry as a redirect rather than content.
const RedirectMimeType uint16 = 0xFFFF

// readMimeList reads the NUL-terminated, double-NUL-terminated MIME type
// table starting at off. Index i into the returned slice is the mimetype
// index directory entries reference.
func readMimeList(src io.ReaderAt, off int64) ([]string, error) {
	var list []string
	pos := off
	for {
		s, next, err := readCString(src, pos, 4096)
		if err != nil {
			return nil, err
		}
		if s == "" {
			break
		}
		list = append(list, s)
		pos = next
	}
	return list, nil
}

// encodeMimeList serializes list back into its on-disk NUL-terminated,
// double-NUL-terminated form.
func encodeMimeList(list []string) []byte {
	w := newByteWriter(64)
	for _, s := range list {
		w.cstring(s)
	}
	w.u8(0)
	return w.bytes()
}

// mimeIndex looks up mt in list, appending it if absent, and returns its
// index. Used by the writer when adding an entry whose MIME type isn't
// already in the table.
func mimeIndex(list []string, mt string) ([]string, uint16) {
	for i, s := range list {
		if s == mt {
			return list, uint16(i)
		}
	}
	list = append(list, mt)
	return list, uint16(len(list) - 1)
}
