package zim

import "io"

// PointerList is an indexable array of fixed-width offsets, read lazily
// from an io.ReaderAt and materialized into memory only when a writer
// needs to mutate it. Used for the URL pointer list (64-bit), the title
// pointer list (32-bit index into the URL list), and the cluster pointer
// list (64-bit).
type PointerList struct {
	src      io.ReaderAt
	off      int64
	width    int // 4 or 8 bytes per entry
	count    int
	values   []uint64 // non-nil once materialized
	dirty    bool
}

func newPointerList(src io.ReaderAt, off int64, width, count int) *PointerList {
	return &PointerList{src: src, off: off, width: width, count: count}
}

func (p *PointerList) Len() int {
	if p.values != nil {
		return len(p.values)
	}
	return p.count
}

// Get returns the value at i, reading directly from src unless the list
// has already been materialized by a mutation.
func (p *PointerList) Get(i int) (uint64, error) {
	if p.values != nil {
		return p.values[i], nil
	}
	at := p.off + int64(i*p.width)
	if p.width == 4 {
		v, err := readUint32At(p.src, at)
		return uint64(v), err
	}
	return readUint64At(p.src, at)
}

// MustGet panics on read failure; used only where the caller has already
// validated bounds and a failure means disk corruption worth surfacing
// loudly rather than threading through another error return.
func (p *PointerList) MustGet(i int) uint64 {
	v, err := p.Get(i)
	if err != nil {
		panic(err)
	}
	return v
}

func (p *PointerList) materialize() error {
	if p.values != nil {
		return nil
	}
	vals := make([]uint64, p.count)
	for i := range vals {
		v, err := p.Get(i)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	p.values = vals
	return nil
}

// Set overwrites the value at i, materializing the list first.
func (p *PointerList) Set(i int, v uint64) error {
	if err := p.materialize(); err != nil {
		return err
	}
	p.values[i] = v
	p.dirty = true
	return nil
}

// Insert places v at index i, shifting subsequent entries right.
func (p *PointerList) Insert(i int, v uint64) error {
	if err := p.materialize(); err != nil {
		return err
	}
	p.values = append(p.values, 0)
	copy(p.values[i+1:], p.values[i:len(p.values)-1])
	p.values[i] = v
	p.dirty = true
	return nil
}

// Remove deletes the entry at index i, shifting subsequent entries left.
func (p *PointerList) Remove(i int) error {
	if err := p.materialize(); err != nil {
		return err
	}
	p.values = append(p.values[:i], p.values[i+1:]...)
	p.dirty = true
	return nil
}

func (p *PointerList) Dirty() bool { return p.dirty }

// All returns every value, materializing first.
func (p *PointerList) All() ([]uint64, error) {
	if err := p.materialize(); err != nil {
		return nil, err
	}
	return p.values, nil
}

// encode serializes the whole list in its on-disk width. The writer
// calls this wholesale whenever a pointer list's length changes, per the
// relocate-wholesale rule: partial rewrites of a variable-length table
// are not worth the bookkeeping this format's small archives would save.
func (p *PointerList) encode() ([]byte, error) {
	vals, err := p.All()
	if err != nil {
		return nil, err
	}
	w := newByteWriter(len(vals) * p.width)
	for _, v := range vals {
		if p.width == 4 {
			w.u32(uint32(v))
		} else {
			w.u64(v)
		}
	}
	return w.bytes(), nil
}

// search returns the smallest index i such that less(i) is false,
// assuming less is true for a prefix and false afterward (standard
// binary search over a predicate, used by the resolver for the
// URL/title pointer lists).
func search(n int, less func(int) bool) int {
	lo, hi := 0, n
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if less(mid) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
