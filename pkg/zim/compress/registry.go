// Package compress provides the compression codecs used by ZIM clusters.
//
// A cluster's info byte carries a small compression tag; the registry maps
// that tag to a Codec capable of producing a decoder stream (for the
// streaming cluster representation) or decoding/encoding the whole payload
// at once (for the offset-only and in-memory representations).
package compress

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec compresses and decompresses one cluster's raw body.
type Codec interface {
	Name() string

	// Streamable reports whether OpenStream can produce a reader that
	// decodes incrementally. Codecs that can only decode in one shot
	// return false and callers fall back to DecodeAll.
	Streamable() bool

	DecodeAll(data []byte) ([]byte, error)
	OpenStream(data []byte) (io.ReadCloser, error)
	EncodeAll(data []byte) ([]byte, error)
}

// Registry maps a cluster info byte's low 4 bits to a Codec.
type Registry struct {
	mu     sync.RWMutex
	codecs map[byte]Codec
}

// NewRegistry returns a registry with the built-in codecs registered:
// identity (tags 0, 1), legacy deflate (tag 2), xz (tag 4), and zstd
// (tags 5 and 6 share the same codec; the extended-offsets distinction
// that tag 6 implies lives in the cluster info byte's bit 4, not here).
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[byte]Codec)}
	r.Register(0, identityCodec{})
	r.Register(1, identityCodec{})
	r.Register(2, deflateCodec{})
	r.Register(4, xzCodec{})
	zc := newZstdCodec()
	r.Register(5, zc)
	r.Register(6, zc)
	return r
}

// Register installs or replaces the codec for tag. Extensions (e.g. a
// zstd build unavailable at compile time) can unregister by never calling
// this, leaving Lookup to report absence.
func (r *Registry) Register(tag byte, c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[tag] = c
}

// Unregister removes the codec for tag, simulating a compiled-out codec.
func (r *Registry) Unregister(tag byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codecs, tag)
}

func (r *Registry) Lookup(tag byte) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[tag]
	return c, ok
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

// identityCodec backs compression tags 0 and 1 (both mean "uncompressed").
type identityCodec struct{}

func (identityCodec) Name() string       { return "identity" }
func (identityCodec) Streamable() bool   { return true }
func (identityCodec) DecodeAll(data []byte) ([]byte, error) { return data, nil }
func (identityCodec) EncodeAll(data []byte) ([]byte, error) { return data, nil }
func (identityCodec) OpenStream(data []byte) (io.ReadCloser, error) {
	return nopCloser{bytes.NewReader(data)}, nil
}

// deflateCodec covers legacy archives tagged with the reserved deflate
// value some early ZIM writers emitted before the format settled on xz/zstd.
type deflateCodec struct{}

func (deflateCodec) Name() string     { return "deflate" }
func (deflateCodec) Streamable() bool { return true }

func (deflateCodec) DecodeAll(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("compress: deflate decode: %w", err)
	}
	return out, nil
}

func (deflateCodec) OpenStream(data []byte) (io.ReadCloser, error) {
	return flate.NewReader(bytes.NewReader(data)), nil
}

func (deflateCodec) EncodeAll(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// xzCodec backs compression tag 4.
type xzCodec struct{}

func (xzCodec) Name() string     { return "xz" }
func (xzCodec) Streamable() bool { return true }

func (xzCodec) DecodeAll(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compress: xz decode: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("compress: xz decode: %w", err)
	}
	return out, nil
}

func (xzCodec) OpenStream(data []byte) (io.ReadCloser, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("compress: xz open stream: %w", err)
	}
	return nopCloser{r}, nil
}

func (xzCodec) EncodeAll(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// zstdCodec backs compression tags 5 and 6. Decoders are pooled the same
// way the teacher's reader pools them: zstd decoder setup is expensive
// enough relative to a single cluster decode that reuse matters when many
// clusters are touched in a scan.
type zstdCodec struct {
	decoders sync.Pool
}

func newZstdCodec() *zstdCodec {
	return &zstdCodec{
		decoders: sync.Pool{
			New: func() interface{} {
				d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
				if err != nil {
					return nil
				}
				return d
			},
		},
	}
}

func (z *zstdCodec) Name() string     { return "zstd" }
func (z *zstdCodec) Streamable() bool { return true }

func (z *zstdCodec) DecodeAll(data []byte) ([]byte, error) {
	v := z.decoders.Get()
	if v == nil {
		d, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return nil, fmt.Errorf("compress: zstd decode: %w", err)
		}
		defer d.Close()
		return io.ReadAll(d)
	}
	d := v.(*zstd.Decoder)
	if err := d.Reset(bytes.NewReader(data)); err != nil {
		z.decoders.Put(d)
		return nil, fmt.Errorf("compress: zstd decode: %w", err)
	}
	out, err := io.ReadAll(d)
	z.decoders.Put(d)
	if err != nil {
		return nil, fmt.Errorf("compress: zstd decode: %w", err)
	}
	return out, nil
}

// OpenStream returns a fresh, unpooled decoder: streaming callers hold it
// open across many Read calls, which is incompatible with returning it to
// the shared pool until Close.
func (z *zstdCodec) OpenStream(data []byte) (io.ReadCloser, error) {
	d, err := zstd.NewReader(bytes.NewReader(data), zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
	if err != nil {
		return nil, fmt.Errorf("compress: zstd open stream: %w", err)
	}
	return &zstdStream{d: d}, nil
}

type zstdStream struct{ d *zstd.Decoder }

func (s *zstdStream) Read(p []byte) (int, error) { return s.d.Read(p) }
func (s *zstdStream) Close() error                { s.d.Close(); return nil }

func (z *zstdCodec) EncodeAll(data []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("compress: zstd encode: %w", err)
	}
	defer w.Close()
	return w.EncodeAll(data, nil), nil
}
