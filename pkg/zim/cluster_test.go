package zim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bevelgacom/gozim/pkg/zim/compress"
)

func buildClusterBytes(t *testing.T, blobs [][]byte, tag byte, reg *compress.Registry) []byte {
	t.Helper()
	codec, ok := reg.Lookup(tag)
	require.True(t, ok)
	encoded, err := encodeCluster(blobs, codec, false)
	require.NoError(t, err)
	return append([]byte{tag}, encoded...)
}

func TestClusterRoundTripInMemory(t *testing.T) {
	reg := compress.NewRegistry()
	blobs := [][]byte{[]byte("hello"), []byte("world!"), []byte("")}
	body := buildClusterBytes(t, blobs, 0, reg)

	src := NewMemorySource(body)
	c, err := decodeCluster(src, 0, int64(len(body)), 1, reg, RepresentationInMemory)
	require.NoError(t, err)
	require.Equal(t, 3, c.BlobCount())

	for i, want := range blobs {
		got, err := c.GetBlob(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestClusterRoundTripOffsetOnly(t *testing.T) {
	reg := compress.NewRegistry()
	blobs := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	body := buildClusterBytes(t, blobs, 0, reg)

	src := NewMemorySource(body)
	c, err := decodeCluster(src, 0, int64(len(body)), 2, reg, RepresentationOffsetOnly)
	require.NoError(t, err)

	got, err := c.GetBlob(2)
	require.NoError(t, err)
	require.Equal(t, []byte("ccc"), got)
}

func TestClusterRoundTripStreamingSequential(t *testing.T) {
	reg := compress.NewRegistry()
	blobs := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	body := buildClusterBytes(t, blobs, 0, reg)

	src := NewMemorySource(body)
	c, err := decodeCluster(src, 0, int64(len(body)), 3, reg, RepresentationStreaming)
	require.NoError(t, err)
	require.Equal(t, 3, c.BlobCount())

	for i, want := range blobs {
		got, err := c.GetBlob(i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.NoError(t, c.Close())
}

func TestClusterStreamingBackwardSeekRestartsStream(t *testing.T) {
	reg := compress.NewRegistry()
	blobs := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	body := buildClusterBytes(t, blobs, 0, reg)

	src := NewMemorySource(body)
	c, err := decodeCluster(src, 0, int64(len(body)), 4, reg, RepresentationStreaming)
	require.NoError(t, err)

	// Read out of order: this forces seekTo to reopen the stream.
	last, err := c.GetBlob(2)
	require.NoError(t, err)
	require.Equal(t, []byte("third"), last)

	first, err := c.GetBlob(0)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), first)
}

func TestParseOffsetTableRejectsBadLastOffset(t *testing.T) {
	w := newByteWriter(0)
	w.u32(8) // first offset: one blob, offset table is 2*4=8 bytes
	w.u32(100) // wrong: should equal len(body)
	_, err := parseOffsetTable(w.bytes(), false)
	require.Error(t, err)
}

func TestUnknownCompressionTagReturnsCompressionError(t *testing.T) {
	reg := compress.NewRegistry()
	body := []byte{9, 0x00} // tag 9 is never registered
	src := NewMemorySource(body)
	_, err := decodeCluster(src, 0, int64(len(body)), 0, reg, RepresentationInMemory)
	require.Error(t, err)
}
