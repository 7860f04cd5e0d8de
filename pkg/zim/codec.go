package zim

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

// readAt reads exactly len(buf) bytes at off from src, the way every
// decode helper in this file sources its bytes: no implicit seeking, no
// shared cursor, safe to call concurrently from multiple goroutines over
// the same io.ReaderAt.
func readAt(src io.ReaderAt, off int64, buf []byte) error {
	n, err := src.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("zim: read at %d: %w", off, err)
}

func readUint16At(src io.ReaderAt, off int64) (uint16, error) {
	var buf [2]byte
	if err := readAt(src, off, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func readUint32At(src io.ReaderAt, off int64) (uint32, error) {
	var buf [4]byte
	if err := readAt(src, off, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64At(src io.ReaderAt, off int64) (uint64, error) {
	var buf [8]byte
	if err := readAt(src, off, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// readCString reads a NUL-terminated string starting at off, bounded by
// limit bytes so a corrupt archive missing its terminator cannot force an
// unbounded read. Returns the string without its terminator and the
// offset immediately after the terminator. The string is validated as
// UTF-8; malformed bytes are a FormatError rather than silently accepted.
func readCString(src io.ReaderAt, off int64, limit int) (string, int64, error) {
	buf := make([]byte, limit)
	n, err := src.ReadAt(buf, off)
	if n == 0 && err != nil {
		return "", off, fmt.Errorf("zim: read cstring at %d: %w", off, err)
	}
	buf = buf[:n]
	for i, b := range buf {
		if b == 0 {
			s := buf[:i]
			if !utf8.Valid(s) {
				return "", off, zimerr.NewFormatError(fmt.Sprintf("invalid utf-8 at offset %d", off), nil)
			}
			return string(s), off + int64(i) + 1, nil
		}
	}
	return "", off, zimerr.NewFormatError(fmt.Sprintf("unterminated string at offset %d", off), nil)
}

// byteWriter accumulates little-endian encoded fields, mirroring the
// read-side helpers above for the write path the teacher never needed.
type byteWriter struct {
	buf []byte
}

func newByteWriter(sizeHint int) *byteWriter {
	return &byteWriter{buf: make([]byte, 0, sizeHint)}
}

func (w *byteWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *byteWriter) u16(v uint16) { w.buf = append(w.buf, byte(v), byte(v>>8)) }
func (w *byteWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *byteWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *byteWriter) raw(b []byte) { w.buf = append(w.buf, b...) }
func (w *byteWriter) cstring(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}
func (w *byteWriter) bytes() []byte { return w.buf }
func (w *byteWriter) len() int      { return len(w.buf) }
