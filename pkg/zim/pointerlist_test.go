package zim

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodedU64List(vals ...uint64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func TestPointerListGetReadsLazily(t *testing.T) {
	src := NewMemorySource(encodedU64List(10, 20, 30))
	pl := newPointerList(src, 0, 8, 3)
	require.Equal(t, 3, pl.Len())

	v, err := pl.Get(1)
	require.NoError(t, err)
	require.Equal(t, uint64(20), v)
}

func TestPointerListInsertShiftsRight(t *testing.T) {
	src := NewMemorySource(encodedU64List(10, 20, 30))
	pl := newPointerList(src, 0, 8, 3)

	require.NoError(t, pl.Insert(1, 99))
	vals, err := pl.All()
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 99, 20, 30}, vals)
}

func TestPointerListRemoveShiftsLeft(t *testing.T) {
	src := NewMemorySource(encodedU64List(10, 20, 30))
	pl := newPointerList(src, 0, 8, 3)

	require.NoError(t, pl.Remove(1))
	vals, err := pl.All()
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 30}, vals)
}

func TestSearchFindsInsertionPoint(t *testing.T) {
	vals := []int{1, 3, 5, 7, 9}
	idx := search(len(vals), func(i int) bool { return vals[i] < 5 })
	require.Equal(t, 2, idx)

	idx = search(len(vals), func(i int) bool { return vals[i] < 10 })
	require.Equal(t, 5, idx)

	idx = search(len(vals), func(i int) bool { return vals[i] < 0 })
	require.Equal(t, 0, idx)
}
