package zim

// Policy bundles the tunables that shape how an Archive reads and caches
// an underlying file, generalized from the teacher's lowMemoryMode /
// cacheSize fields on its reader into a standalone value constructed
// once at Open.
type Policy struct {
	// ClusterRepresentation selects how decoded clusters hold blobs.
	ClusterRepresentation ClusterRepresentation

	// EntryCacheCapacity bounds the directory-entry cache. Zero disables
	// entry caching entirely.
	EntryCacheCapacity int

	// ClusterCacheCapacity bounds the decoded-cluster cache. Zero
	// disables cluster caching entirely.
	ClusterCacheCapacity int

	// VerifyChecksumOnOpen computes and checks the MD5 trailer during
	// Open, failing with ErrChecksumMismatch if it doesn't match. Off by
	// default since it requires reading the whole archive up front.
	VerifyChecksumOnOpen bool

	// MaxRedirectDepth bounds redirect chain resolution before
	// ErrRedirectTooDeep is returned.
	MaxRedirectDepth int

	// PreferStreamingAboveBytes, if non-zero, switches the effective
	// cluster representation to RepresentationStreaming for any cluster
	// whose compressed length exceeds this threshold, regardless of
	// ClusterRepresentation. Zero disables the override.
	PreferStreamingAboveBytes int64

	// AllocStrategy selects how Writer.Flush places new segments within
	// the free-space allocator: first-fit favors speed, best-fit favors
	// packing density at the cost of a linear scan per allocation.
	AllocStrategy AllocStrategy

	// CoalesceFreeRanges merges adjacent free ranges as they're released.
	// Off trades fragmentation for avoiding the merge scan on each
	// Release, relevant only to very large edit sessions.
	CoalesceFreeRanges bool

	// TruncateAfterWrite shrinks the backing Source to the archive's true
	// end once Flush finishes. Forced off automatically whenever the
	// archive is opened at a non-zero base offset, since the Source may
	// hold container bytes after the archive that truncation would
	// destroy; the knob only has effect for a standalone archive file.
	TruncateAfterWrite bool
}

// AllocStrategy selects the free-space allocator's placement strategy.
type AllocStrategy int

const (
	// AllocStrategyFirstFit takes the first free range big enough, fast
	// and adequate for most edit sessions.
	AllocStrategyFirstFit AllocStrategy = iota
	// AllocStrategyBestFit scans every free range and takes the smallest
	// one that still fits, minimizing leftover fragmentation.
	AllocStrategyBestFit
)

// Option configures a Policy.
type Option func(*Policy)

// DefaultPolicy matches the teacher's default (non low-memory) reader:
// generous caches, in-memory clusters, no checksum verification.
func DefaultPolicy() Policy {
	return Policy{
		ClusterRepresentation: RepresentationInMemory,
		EntryCacheCapacity:    4096,
		ClusterCacheCapacity:  256,
		MaxRedirectDepth:      32,
		AllocStrategy:         AllocStrategyFirstFit,
		CoalesceFreeRanges:    true,
		TruncateAfterWrite:    true,
	}
}

// LowMemoryPolicy mirrors the teacher's lowMemoryMode: small caches and
// streaming cluster decode, trading CPU for RSS on constrained hosts.
func LowMemoryPolicy() Policy {
	return Policy{
		ClusterRepresentation:     RepresentationStreaming,
		EntryCacheCapacity:        128,
		ClusterCacheCapacity:      8,
		MaxRedirectDepth:          32,
		PreferStreamingAboveBytes: 1 << 20,
		AllocStrategy:             AllocStrategyBestFit,
		CoalesceFreeRanges:        true,
		TruncateAfterWrite:        true,
	}
}

func WithClusterRepresentation(r ClusterRepresentation) Option {
	return func(p *Policy) { p.ClusterRepresentation = r }
}

func WithEntryCacheCapacity(n int) Option {
	return func(p *Policy) { p.EntryCacheCapacity = n }
}

func WithClusterCacheCapacity(n int) Option {
	return func(p *Policy) { p.ClusterCacheCapacity = n }
}

func WithVerifyChecksumOnOpen(v bool) Option {
	return func(p *Policy) { p.VerifyChecksumOnOpen = v }
}

func WithMaxRedirectDepth(n int) Option {
	return func(p *Policy) { p.MaxRedirectDepth = n }
}

func WithAllocStrategy(s AllocStrategy) Option {
	return func(p *Policy) { p.AllocStrategy = s }
}

func WithCoalesceFreeRanges(v bool) Option {
	return func(p *Policy) { p.CoalesceFreeRanges = v }
}

func WithTruncateAfterWrite(v bool) Option {
	return func(p *Policy) { p.TruncateAfterWrite = v }
}

// NewPolicy builds a Policy starting from DefaultPolicy and applying opts.
func NewPolicy(opts ...Option) Policy {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
