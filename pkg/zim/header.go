package zim

import (
	"fmt"
	"io"

	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

const (
	zimMagic   = 0x44D495A
	HeaderSize = 80

	// oldNamespaceMinorVersion (0) and newNamespaceMinorVersion (1) are
	// the two minorVersion values of the namespace-based URL scheme this
	// package implements: 0 predates the 'C'/'M' split and puts content
	// under 'A', 1 is the scheme spec.md's own examples use, with
	// content under 'C' and metadata under 'M'. Both share the same
	// on-disk directory-entry layout and are accepted here. A later,
	// unrelated namespaceless layout (a different directory-entry wire
	// format entirely) is out of scope and not what minorVersion 1
	// denotes; see the open-question decision in DESIGN.md.
	oldNamespaceMinorVersion = 0
	newNamespaceMinorVersion = 1
)

// Header is the 80-byte fixed archive header.
type Header struct {
	MajorVersion  uint16
	MinorVersion  uint16
	UUID          [16]byte
	EntryCount    uint32
	ClusterCount  uint32
	URLPtrPos     uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	MainPage      uint32
	LayoutPage    uint32
	ChecksumPos   uint64
}

// readHeader parses the header at baseOffset, validating the magic
// number, the major version (5 or 6), and the namespace-scheme minor
// version.
func readHeader(src io.ReaderAt, baseOffset int64) (Header, error) {
	var h Header

	magic, err := readUint32At(src, baseOffset+0)
	if err != nil {
		return h, err
	}
	if magic != zimMagic {
		return h, fmt.Errorf("%w: bad magic %#x", zimerr.ErrUnsupportedFormat, magic)
	}

	h.MajorVersion, err = readUint16At(src, baseOffset+4)
	if err != nil {
		return h, err
	}
	if h.MajorVersion != 5 && h.MajorVersion != 6 {
		return h, fmt.Errorf("%w: majorVersion %d", zimerr.ErrUnsupportedFormat, h.MajorVersion)
	}
	h.MinorVersion, err = readUint16At(src, baseOffset+6)
	if err != nil {
		return h, err
	}
	if h.MinorVersion != oldNamespaceMinorVersion && h.MinorVersion != newNamespaceMinorVersion {
		return h, fmt.Errorf("%w: minorVersion %d uses an unsupported URL scheme",
			zimerr.ErrUnsupportedFormat, h.MinorVersion)
	}

	if err := readAt(src, baseOffset+8, h.UUID[:]); err != nil {
		return h, err
	}
	if h.EntryCount, err = readUint32At(src, baseOffset+24); err != nil {
		return h, err
	}
	if h.ClusterCount, err = readUint32At(src, baseOffset+28); err != nil {
		return h, err
	}
	if h.URLPtrPos, err = readUint64At(src, baseOffset+32); err != nil {
		return h, err
	}
	if h.TitlePtrPos, err = readUint64At(src, baseOffset+40); err != nil {
		return h, err
	}
	if h.ClusterPtrPos, err = readUint64At(src, baseOffset+48); err != nil {
		return h, err
	}
	if h.MimeListPos, err = readUint64At(src, baseOffset+56); err != nil {
		return h, err
	}
	if h.MainPage, err = readUint32At(src, baseOffset+64); err != nil {
		return h, err
	}
	if h.LayoutPage, err = readUint32At(src, baseOffset+68); err != nil {
		return h, err
	}
	if h.ChecksumPos, err = readUint64At(src, baseOffset+72); err != nil {
		return h, err
	}
	return h, nil
}

func (h Header) encode() []byte {
	w := newByteWriter(HeaderSize)
	w.u32(zimMagic)
	w.u16(h.MajorVersion)
	w.u16(h.MinorVersion)
	w.raw(h.UUID[:])
	w.u32(h.EntryCount)
	w.u32(h.ClusterCount)
	w.u64(h.URLPtrPos)
	w.u64(h.TitlePtrPos)
	w.u64(h.ClusterPtrPos)
	w.u64(h.MimeListPos)
	w.u32(h.MainPage)
	w.u32(h.LayoutPage)
	w.u64(h.ChecksumPos)
	return w.bytes()
}

// NoPage is the sentinel stored in MainPage/LayoutPage when the archive
// declares no such page.
const NoPage uint32 = 0xFFFFFFFF
