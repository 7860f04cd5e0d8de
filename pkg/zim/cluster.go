package zim

import (
	"fmt"
	"io"

	"github.com/bevelgacom/gozim/pkg/zim/compress"
	"github.com/bevelgacom/gozim/pkg/zim/zimerr"
)

// clusterImpl is the representation-specific half of Cluster: how blob
// count and individual blobs are produced. The three representations
// (offset-only, in-memory, streaming) each satisfy this differently; the
// public Cluster type wraps whichever one Policy selected.
type clusterImpl interface {
	blobCount() int
	getBlob(i int) ([]byte, error)
}

// Cluster is a decoded cluster: a compressed run of blobs addressed by
// index within the cluster.
type Cluster struct {
	Number           uint32
	CompressionTag   byte
	ExtendedOffsets  bool
	impl             clusterImpl
}

func (c *Cluster) BlobCount() int { return c.impl.blobCount() }

// GetBlob returns blob i's bytes. i must be in [0, BlobCount()).
func (c *Cluster) GetBlob(i int) ([]byte, error) {
	if i < 0 || i >= c.BlobCount() {
		return nil, fmt.Errorf("%w: blob %d out of range [0,%d)", zimerr.ErrNotFound, i, c.BlobCount())
	}
	return c.impl.getBlob(i)
}

// Close releases any resources held by a streaming representation. A
// no-op for the offset-only and in-memory representations.
func (c *Cluster) Close() error {
	if closer, ok := c.impl.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// IterBlobs calls fn for every blob in order, stopping at the first error.
func (c *Cluster) IterBlobs(fn func(i int, data []byte) error) error {
	for i := 0; i < c.BlobCount(); i++ {
		b, err := c.impl.getBlob(i)
		if err != nil {
			return err
		}
		if err := fn(i, b); err != nil {
			return err
		}
	}
	return nil
}

// ClusterRepresentation selects how a decoded cluster holds its blobs in
// memory; see Policy.ClusterRepresentation.
type ClusterRepresentation int

const (
	// RepresentationInMemory fully decompresses the cluster body and
	// slices blobs out of one retained buffer.
	RepresentationInMemory ClusterRepresentation = iota
	// RepresentationOffsetOnly decompresses the body but only retains
	// the offset table, re-slicing the body buffer on each GetBlob call
	// (the body is still held, so this trades nothing against in-memory
	// except call ergonomics — useful when the caller wants the shared
	// GetBlob contract without pre-splitting).
	RepresentationOffsetOnly
	// RepresentationStreaming keeps only the compressed bytes and the
	// offset table, decoding on demand through a bounded window. Memory
	// use stays proportional to one blob plus the discard window rather
	// than the whole cluster; backward seeks cost a full stream restart.
	RepresentationStreaming
)

// clusterInfo decodes the single info byte at the head of a cluster.
func clusterInfo(b byte) (tag byte, extended bool) {
	return b & 0x0F, b&0x10 != 0
}

// offsetWidth returns the byte width of each offset-table entry: 4 bytes
// normally, 8 when the extended-offsets flag is set (needed once a
// cluster's uncompressed size can exceed 4GiB).
func offsetWidth(extended bool) int {
	if extended {
		return 8
	}
	return 4
}

// parseOffsetTable reads the blobCount+1 offsets prefixing body and
// validates that the last one equals len(body), the testable invariant
// spec.md calls out explicitly rather than simply inferring the final
// offset as the teacher's reader does.
func parseOffsetTable(body []byte, extended bool) ([]uint32, error) {
	w := offsetWidth(extended)
	if len(body) < w {
		return nil, zimerr.NewFormatError("cluster body too short for offset table", nil)
	}
	first := readLE(body[0:w], extended)
	if first%uint64(w) != 0 {
		return nil, zimerr.NewFormatError("cluster first offset not a multiple of entry width", nil)
	}
	count := int(first / uint64(w))
	if count < 1 {
		return nil, zimerr.NewFormatError("cluster has zero blobs", nil)
	}
	if len(body) < count*w {
		return nil, zimerr.NewFormatError("cluster body too short for declared blob count", nil)
	}
	offsets := make([]uint32, count)
	for i := 0; i < count; i++ {
		v := readLE(body[i*w:(i+1)*w], extended)
		offsets[i] = uint32(v)
	}
	last := offsets[len(offsets)-1]
	if int(last) != len(body) {
		return nil, zimerr.NewFormatError(
			fmt.Sprintf("cluster last offset %d does not match body length %d", last, len(body)), nil)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, zimerr.NewFormatError("cluster offsets not monotonic", nil)
		}
	}
	return offsets, nil
}

func readLE(b []byte, extended bool) uint64 {
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * i)
	}
	_ = extended
	return v
}

// decodeCluster reads and decompresses the cluster whose info byte sits
// at off, dispatching to the representation Policy selects.
func decodeCluster(src io.ReaderAt, off int64, length int64, number uint32, reg *compress.Registry, rep ClusterRepresentation) (*Cluster, error) {
	infoByte, err := readUint8At(src, off)
	if err != nil {
		return nil, err
	}
	tag, extended := clusterInfo(infoByte)

	raw := make([]byte, length-1)
	if err := readAt(src, off+1, raw); err != nil {
		return nil, err
	}

	codec, ok := reg.Lookup(tag)
	if !ok {
		return nil, &zimerr.CompressionError{Tag: tag}
	}

	c := &Cluster{Number: number, CompressionTag: tag, ExtendedOffsets: extended}

	switch rep {
	case RepresentationStreaming:
		impl, err := newStreamCluster(raw, codec, extended)
		if err != nil {
			return nil, err
		}
		c.impl = impl
	default:
		body, err := codec.DecodeAll(raw)
		if err != nil {
			return nil, fmt.Errorf("zim: decode cluster %d: %w", number, err)
		}
		offsets, err := parseOffsetTable(body, extended)
		if err != nil {
			return nil, err
		}
		if rep == RepresentationInMemory {
			c.impl = newMemoryCluster(body, offsets)
		} else {
			c.impl = newOffsetCluster(body, offsets)
		}
	}
	return c, nil
}

// encodeCluster compresses blobs with codec and prefixes the offset
// table, producing the bytes to write after the info byte.
func encodeCluster(blobs [][]byte, codec compress.Codec, extended bool) ([]byte, error) {
	w := offsetWidth(extended)
	body := newByteWriter(0)
	offsets := make([]uint64, len(blobs)+1)
	cur := uint64((len(blobs) + 1) * w)
	offsets[0] = cur
	for i, b := range blobs {
		cur += uint64(len(b))
		offsets[i+1] = cur
	}
	for _, o := range offsets {
		if extended {
			body.u64(o)
		} else {
			if o > 0xFFFFFFFF {
				return nil, zimerr.NewFormatError("blob offset exceeds 32 bits; use extended offsets", nil)
			}
			body.u32(uint32(o))
		}
	}
	for _, b := range blobs {
		body.raw(b)
	}
	return codec.EncodeAll(body.bytes())
}
