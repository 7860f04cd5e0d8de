package zim

import (
	"fmt"
	"io"

	"github.com/bevelgacom/gozim/pkg/zim/compress"
	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

// streamDiscardWindow is the chunk size seekTo reads and drops in while
// advancing to a forward blob. Forward seeks never restart the decoder;
// only a backward seek reopens the stream from the start.
const streamDiscardWindow = 32 * 1024

// streamCluster never materializes the whole decompressed body. It keeps
// the raw compressed bytes and reopens a decode stream as needed,
// reading forward from wherever its cursor currently sits. Sequential
// blob access (the common case: iterating an archive in order) pays one
// decode pass; random backward access pays a restart per out-of-order
// read. Modeled on bounded-window streaming decompression rather than
// the teacher's single in-memory representation, which has no analogue
// here.
type streamCluster struct {
	raw      []byte
	codec    compress.Codec
	extended bool
	offsets  []uint32

	r        io.ReadCloser
	pos      uint32 // bytes already consumed from r
}

func newStreamCluster(raw []byte, codec compress.Codec, extended bool) (*streamCluster, error) {
	s := &streamCluster{raw: raw, codec: codec, extended: extended}
	offsets, err := s.readOffsetTable()
	if err != nil {
		return nil, err
	}
	s.offsets = offsets
	return s, nil
}

func (s *streamCluster) readOffsetTable() ([]uint32, error) {
	r, err := s.codec.OpenStream(s.raw)
	if err != nil {
		return nil, fmt.Errorf("zim: open cluster stream: %w", err)
	}
	defer r.Close()

	w := offsetWidth(s.extended)
	head := make([]byte, w)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, zimerr.NewFormatError("cluster stream truncated before offset table", err)
	}
	first := readLE(head, s.extended)
	if first%uint64(w) != 0 || first == 0 {
		return nil, zimerr.NewFormatError("cluster first offset not a multiple of entry width", nil)
	}
	count := int(first / uint64(w))
	table := make([]byte, count*w)
	copy(table, head)
	if _, err := io.ReadFull(r, table[w:]); err != nil {
		return nil, zimerr.NewFormatError("cluster stream truncated mid offset table", err)
	}
	offsets := make([]uint32, count)
	for i := 0; i < count; i++ {
		offsets[i] = uint32(readLE(table[i*w:(i+1)*w], s.extended))
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, zimerr.NewFormatError("cluster offsets not monotonic", nil)
		}
	}
	return offsets, nil
}

func (s *streamCluster) blobCount() int { return len(s.offsets) - 1 }

// seekTo advances the open stream to byte position target, reopening
// from the start if target is behind the current cursor or no stream is
// open yet.
func (s *streamCluster) seekTo(target uint32) error {
	if s.r == nil || target < s.pos {
		if s.r != nil {
			s.r.Close()
		}
		r, err := s.codec.OpenStream(s.raw)
		if err != nil {
			return fmt.Errorf("zim: reopen cluster stream: %w", err)
		}
		s.r = r
		s.pos = 0
	}
	for s.pos < target {
		step := target - s.pos
		if step > streamDiscardWindow {
			step = streamDiscardWindow
		}
		n, err := io.CopyN(io.Discard, s.r, int64(step))
		s.pos += uint32(n)
		if err != nil {
			return zimerr.NewFormatError("cluster stream ended before target offset", err)
		}
	}
	return nil
}

func (s *streamCluster) getBlob(i int) ([]byte, error) {
	start, end := s.offsets[i], s.offsets[i+1]
	if err := s.seekTo(start); err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, zimerr.NewFormatError("cluster stream ended mid blob", err)
	}
	s.pos = end
	return buf, nil
}

// Close releases the currently open decode stream, if any. Callers that
// hold a Cluster across many GetBlob calls should Close it when done;
// cache eviction does this automatically (see cache.go).
func (s *streamCluster) Close() error {
	if s.r == nil {
		return nil
	}
	err := s.r.Close()
	s.r = nil
	return err
}
