package zim

import "sort"

// freeRange is a half-open byte range [Start, End) available for reuse.
type freeRange struct {
	Start, End int64
}

func (r freeRange) size() int64 { return r.End - r.Start }

// allocator tracks free byte ranges within the file being edited, kept
// as a sorted slice (adjacent ranges merged when coalesce is set): spec.md's design notes recommend exactly
// this ("a sorted vector... suffice") over an interval tree, since a
// single archive edit session touches at most a few hundred ranges.
type allocator struct {
	ranges   []freeRange
	end      int64 // current logical end of file; new allocations beyond all free ranges grow this
	coalesce bool  // Policy.CoalesceFreeRanges: when false, Release leaves adjacent ranges split
}

func newAllocator(fileEnd int64, coalesce bool) *allocator {
	return &allocator{end: fileEnd, coalesce: coalesce}
}

// Alloc dispatches to AllocFirstFit or AllocBestFit per strategy.
func (a *allocator) Alloc(n int64, strategy AllocStrategy) int64 {
	if strategy == AllocStrategyBestFit {
		return a.AllocBestFit(n)
	}
	return a.AllocFirstFit(n)
}

// Release returns [start, start+n) to the free set, coalescing with
// adjacent ranges unless the allocator was built with coalescing off.
func (a *allocator) Release(start, n int64) {
	if n <= 0 {
		return
	}
	r := freeRange{Start: start, End: start + n}
	i := sort.Search(len(a.ranges), func(i int) bool { return a.ranges[i].Start >= r.Start })
	a.ranges = append(a.ranges, freeRange{})
	copy(a.ranges[i+1:], a.ranges[i:])
	a.ranges[i] = r
	if a.coalesce {
		a.mergeAdjacent()
	}
}

func (a *allocator) mergeAdjacent() {
	if len(a.ranges) < 2 {
		return
	}
	out := a.ranges[:1]
	for _, r := range a.ranges[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	a.ranges = out
}

// AllocFirstFit returns the first free range at least n bytes long,
// splitting it if it's larger than needed. Falls back to growing the
// file when no hole fits.
func (a *allocator) AllocFirstFit(n int64) int64 {
	for i, r := range a.ranges {
		if r.size() >= n {
			return a.take(i, n)
		}
	}
	return a.grow(n)
}

// AllocBestFit returns the smallest free range that still fits n bytes,
// minimizing leftover fragmentation at the cost of a linear scan.
func (a *allocator) AllocBestFit(n int64) int64 {
	best := -1
	for i, r := range a.ranges {
		if r.size() < n {
			continue
		}
		if best == -1 || r.size() < a.ranges[best].size() {
			best = i
		}
	}
	if best == -1 {
		return a.grow(n)
	}
	return a.take(best, n)
}

func (a *allocator) take(i int, n int64) int64 {
	r := a.ranges[i]
	start := r.Start
	if r.size() == n {
		a.ranges = append(a.ranges[:i], a.ranges[i+1:]...)
	} else {
		a.ranges[i].Start += n
	}
	return start
}

func (a *allocator) grow(n int64) int64 {
	start := a.end
	a.end += n
	return start
}

// End reports the current logical end of file, i.e. where the next
// unconditional append would land.
func (a *allocator) End() int64 { return a.end }

// FreeRanges returns a copy of the current free set, largest first, for
// diagnostics and tests.
func (a *allocator) FreeRanges() []freeRange {
	out := make([]freeRange, len(a.ranges))
	copy(out, a.ranges)
	sort.Slice(out, func(i, j int) bool { return out[i].size() > out[j].size() })
	return out
}

// scanForHoles walks an already-open archive's live regions (mime table,
// entries, the three pointer lists, clusters) and returns the byte gaps
// between them, sorted by offset. An editor re-opening an archive for
// another round of edits seeds its allocator with these before staging
// new writes, so holes left by an edit session that already flushed once
// (or by any other writer that didn't pack its layout tightly) are
// reused instead of only ever growing the file.
func scanForHoles(a *Archive) ([]freeRange, error) {
	type occupied struct{ start, end int64 }

	mimeBytes := encodeMimeList(a.mimeList)
	regions := []occupied{
		{int64(a.header.MimeListPos), int64(a.header.MimeListPos) + int64(len(mimeBytes))},
		{int64(a.header.URLPtrPos), int64(a.header.URLPtrPos) + int64(a.EntryCount())*8},
		{int64(a.header.TitlePtrPos), int64(a.header.TitlePtrPos) + int64(a.EntryCount())*4},
		{int64(a.header.ClusterPtrPos), int64(a.header.ClusterPtrPos) + int64(a.ClusterCount())*8},
	}

	for i := 0; i < a.EntryCount(); i++ {
		off, err := a.urlPtrs.Get(i)
		if err != nil {
			return nil, err
		}
		d, err := a.fetchDirEntry(i)
		if err != nil {
			return nil, err
		}
		regions = append(regions, occupied{int64(off), int64(off) + int64(d.size())})
	}
	for i := 0; i < a.ClusterCount(); i++ {
		off, err := a.clusterPtrs.Get(i)
		if err != nil {
			return nil, err
		}
		length, err := a.clusterLength(uint32(i))
		if err != nil {
			return nil, err
		}
		regions = append(regions, occupied{int64(off), int64(off) + length})
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })

	var holes []freeRange
	cursor := int64(HeaderSize)
	for _, r := range regions {
		if r.start > cursor {
			holes = append(holes, freeRange{Start: cursor, End: r.start})
		}
		if r.end > cursor {
			cursor = r.end
		}
	}
	return holes, nil
}
