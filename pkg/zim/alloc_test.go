package zim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatorGrowsWhenNoHoleFits(t *testing.T) {
	a := newAllocator(100, true)
	start := a.AllocFirstFit(20)
	require.Equal(t, int64(100), start)
	require.Equal(t, int64(120), a.End())
}

func TestAllocatorReusesReleasedRange(t *testing.T) {
	a := newAllocator(100, true)
	a.Release(40, 20) // hole [40,60)
	start := a.AllocFirstFit(10)
	require.Equal(t, int64(40), start)
	require.Equal(t, int64(100), a.End(), "reusing a hole must not grow the file")
}

func TestAllocatorCoalescesAdjacentReleases(t *testing.T) {
	a := newAllocator(100, true)
	a.Release(10, 10) // [10,20)
	a.Release(20, 10) // [20,30), adjacent -> should merge into [10,30)
	ranges := a.FreeRanges()
	require.Len(t, ranges, 1)
	require.Equal(t, freeRange{Start: 10, End: 30}, ranges[0])
}

func TestAllocatorLeavesAdjacentReleasesSplitWhenCoalesceOff(t *testing.T) {
	a := newAllocator(100, false)
	a.Release(10, 10) // [10,20)
	a.Release(20, 10) // [20,30), adjacent but coalescing is off
	ranges := a.FreeRanges()
	require.Len(t, ranges, 2)
}

func TestAllocatorBestFitPicksSmallestSufficientHole(t *testing.T) {
	a := newAllocator(1000, true)
	a.Release(0, 50)
	a.Release(200, 12)
	a.Release(500, 30)
	start := a.AllocBestFit(10)
	require.Equal(t, int64(200), start)
}

func TestAllocatorSplitsLargerHole(t *testing.T) {
	a := newAllocator(100, true)
	a.Release(0, 50)
	start := a.AllocFirstFit(10)
	require.Equal(t, int64(0), start)
	ranges := a.FreeRanges()
	require.Len(t, ranges, 1)
	require.Equal(t, freeRange{Start: 10, End: 50}, ranges[0])
}
