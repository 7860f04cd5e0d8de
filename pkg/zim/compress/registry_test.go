package compress

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityCodecRoundTrip(t *testing.T) {
	c := identityCodec{}
	data := []byte("uncompressed payload")

	enc, err := c.EncodeAll(data)
	require.NoError(t, err)
	require.Equal(t, data, enc)

	dec, err := c.DecodeAll(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}

func TestDeflateCodecRoundTrip(t *testing.T) {
	c := deflateCodec{}
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")

	enc, err := c.EncodeAll(data)
	require.NoError(t, err)
	dec, err := c.DecodeAll(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}

func TestXzCodecRoundTrip(t *testing.T) {
	c := xzCodec{}
	data := []byte("xz round trip payload, with some repeated repeated repeated text")

	enc, err := c.EncodeAll(data)
	require.NoError(t, err)
	dec, err := c.DecodeAll(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec)
}

func TestZstdCodecRoundTripAndPooledDecoderReuse(t *testing.T) {
	zc := newZstdCodec()
	data := []byte("zstd round trip payload, with some repeated repeated repeated text")

	enc, err := zc.EncodeAll(data)
	require.NoError(t, err)

	dec1, err := zc.DecodeAll(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec1)

	// A second decode must also succeed, exercising the pooled decoder's
	// Reset path rather than always allocating a fresh one.
	dec2, err := zc.DecodeAll(enc)
	require.NoError(t, err)
	require.Equal(t, data, dec2)
}

func TestZstdOpenStreamReadsIncrementally(t *testing.T) {
	zc := newZstdCodec()
	data := []byte("streamed zstd payload data goes here, repeated for compressibility, repeated")
	enc, err := zc.EncodeAll(data)
	require.NoError(t, err)

	r, err := zc.OpenStream(enc)
	require.NoError(t, err)
	defer r.Close()

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRegistryLookupAndUnregister(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup(0)
	require.True(t, ok)

	r.Unregister(0)
	_, ok = r.Lookup(0)
	require.False(t, ok)
}

func TestRegistrySharesZstdCodecAcrossTags5And6(t *testing.T) {
	r := NewRegistry()
	c5, ok := r.Lookup(5)
	require.True(t, ok)
	c6, ok := r.Lookup(6)
	require.True(t, ok)
	require.Same(t, c5, c6)
}
