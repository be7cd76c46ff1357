package densevec

import "fmt"

// Config holds the resolved index configuration. Zero fields are filled
// with defaults by New; use the With options rather than building one by
// hand.
type Config struct {
	Dimensions       int
	Metric           MetricKind
	Scalar           ScalarKind
	KeyKind          ScalarKind
	SlotKind         ScalarKind
	Connectivity     int // M, neighbors per node above the base layer
	ConnectivityBase int // M0, neighbors per node at the base layer
	ExpansionAdd     int
	ExpansionSearch  int
	MaxLevelCap      int
	Seed             int64
	Multi            bool
	Overwrite        bool
	FixedCapacity    int // 0 grows geometrically
	MetricsEnabled   bool
	Prefetcher       Prefetcher // nil selects the built-in first-line toucher
}

// Option represents an index configuration option.
type Option func(*Config) error

// WithDimensions sets the vector dimension count.
func WithDimensions(dims int) Option {
	return func(c *Config) error {
		if dims <= 0 {
			return fmt.Errorf("dimensions must be positive")
		}
		c.Dimensions = dims
		return nil
	}
}

// WithMetric sets the distance metric.
func WithMetric(kind MetricKind) Option {
	return func(c *Config) error {
		c.Metric = kind
		return nil
	}
}

// WithScalar sets the storage scalar kind vectors are converted to on add.
func WithScalar(kind ScalarKind) Option {
	return func(c *Config) error {
		c.Scalar = kind
		return nil
	}
}

// WithKeyKind sets the key width written to the node tape (u32 or u64).
func WithKeyKind(kind ScalarKind) Option {
	return func(c *Config) error {
		c.KeyKind = kind
		return nil
	}
}

// WithSlotKind sets the compressed slot width written to the node tape
// (u16 or u32).
func WithSlotKind(kind ScalarKind) Option {
	return func(c *Config) error {
		c.SlotKind = kind
		return nil
	}
}

// WithConnectivity sets the neighbor capacity M above the base layer. The
// base layer capacity defaults to 2·M unless set explicitly.
func WithConnectivity(m int) Option {
	return func(c *Config) error {
		if m <= 0 {
			return fmt.Errorf("connectivity must be positive")
		}
		c.Connectivity = m
		return nil
	}
}

// WithConnectivityBase sets the base-layer neighbor capacity M0.
func WithConnectivityBase(m0 int) Option {
	return func(c *Config) error {
		if m0 <= 0 {
			return fmt.Errorf("base connectivity must be positive")
		}
		c.ConnectivityBase = m0
		return nil
	}
}

// WithExpansion sets the frontier sizes used during insertion and search.
func WithExpansion(add, search int) Option {
	return func(c *Config) error {
		if add <= 0 || search <= 0 {
			return fmt.Errorf("expansion factors must be positive")
		}
		c.ExpansionAdd = add
		c.ExpansionSearch = search
		return nil
	}
}

// WithMulti allows multiple vectors per key.
func WithMulti(enabled bool) Option {
	return func(c *Config) error {
		c.Multi = enabled
		return nil
	}
}

// WithOverwrite makes single-vector adds replace an existing key instead of
// rejecting it.
func WithOverwrite(enabled bool) Option {
	return func(c *Config) error {
		c.Overwrite = enabled
		return nil
	}
}

// WithFixedCapacity caps the index at n vectors; adds beyond it fail with
// ErrFull instead of growing storage.
func WithFixedCapacity(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("fixed capacity must be positive")
		}
		c.FixedCapacity = n
		return nil
	}
}

// WithSeed fixes the level-sampling seed for reproducible graphs.
func WithSeed(seed int64) Option {
	return func(c *Config) error {
		c.Seed = seed
		return nil
	}
}

// WithPrefetcher replaces the built-in payload prefetcher. Pass
// NullPrefetcher to disable prefetching entirely.
func WithPrefetcher(pf Prefetcher) Option {
	return func(c *Config) error {
		if pf == nil {
			return fmt.Errorf("prefetcher cannot be nil, use NullPrefetcher")
		}
		c.Prefetcher = pf
		return nil
	}
}

// WithMetrics enables or disables prometheus metrics collection.
func WithMetrics(enabled bool) Option {
	return func(c *Config) error {
		c.MetricsEnabled = enabled
		return nil
	}
}

// defaults fills unset fields: explicit values win, everything else falls
// back to well-tested constants.
func (c *Config) defaults() {
	if c.Metric == 0 {
		c.Metric = MetricCosine
	}
	if c.Scalar == 0 {
		c.Scalar = ScalarF32
	}
	if c.KeyKind == 0 {
		c.KeyKind = ScalarU64
	}
	if c.SlotKind == 0 {
		c.SlotKind = ScalarU32
	}
	if c.Connectivity == 0 {
		c.Connectivity = 16
	}
	if c.ConnectivityBase == 0 {
		c.ConnectivityBase = 2 * c.Connectivity
	}
	if c.ExpansionAdd == 0 {
		c.ExpansionAdd = 128
	}
	if c.ExpansionSearch == 0 {
		c.ExpansionSearch = 64
	}
	if c.MaxLevelCap == 0 {
		c.MaxLevelCap = 24
	}
}
