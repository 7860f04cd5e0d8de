package zim

// memoryCluster pre-slices every blob out of the decompressed body at
// decode time, so the body is split once up front rather than on every
// GetBlob call; each GetBlob still returns a fresh copy. Grounded on the
// teacher's extractBlobFromCluster, which always materializes the blob
// it's asked for into its own slice; this representation just does that
// for every blob up front instead of one at a time.
type memoryCluster struct {
	blobs [][]byte
}

func newMemoryCluster(body []byte, offsets []uint32) *memoryCluster {
	blobs := make([][]byte, len(offsets)-1)
	for i := range blobs {
		blobs[i] = body[offsets[i]:offsets[i+1]]
	}
	return &memoryCluster{blobs: blobs}
}

func (m *memoryCluster) blobCount() int { return len(m.blobs) }

func (m *memoryCluster) getBlob(i int) ([]byte, error) {
	out := make([]byte, len(m.blobs[i]))
	copy(out, m.blobs[i])
	return out, nil
}
