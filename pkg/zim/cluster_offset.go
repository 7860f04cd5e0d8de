package zim

// offsetCluster keeps the whole decompressed body but only the offset
// table is precomputed; blobs are re-sliced from the body on each call
// instead of being pre-split. Same memory footprint as memoryCluster
// (the body is retained either way) but avoids the up-front slice-header
// allocation for archives where most blobs are never read.
type offsetCluster struct {
	body    []byte
	offsets []uint32
}

func newOffsetCluster(body []byte, offsets []uint32) *offsetCluster {
	return &offsetCluster{body: body, offsets: offsets}
}

func (o *offsetCluster) blobCount() int { return len(o.offsets) - 1 }

func (o *offsetCluster) getBlob(i int) ([]byte, error) {
	start, end := o.offsets[i], o.offsets[i+1]
	out := make([]byte, end-start)
	copy(out, o.body[start:end])
	return out, nil
}
