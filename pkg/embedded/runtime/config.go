package runtime

// BatchConfig configures how a batch is driven.
type BatchConfig struct {
	// Workers is the number of items processed concurrently.
	// 1 (or less) processes items strictly in order, one at a time.
	// Default: 1
	Workers int

	// BufferSize is the worker pool channel buffer size.
	// Default: 100
	BufferSize int

	// UseLimiter determines if the shared limiter gates every item.
	// Default: true
	UseLimiter bool
}

// DefaultBatchConfig returns the sequential configuration.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Workers:    1,
		BufferSize: 100,
		UseLimiter: true,
	}
}

// Validate validates the configuration and applies defaults.
func (c *BatchConfig) Validate() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
}

// Sequential reports whether items are processed one at a time.
func (c BatchConfig) Sequential() bool {
	return c.Workers <= 1
}

// WithWorkers sets the number of workers.
func (c BatchConfig) WithWorkers(n int) BatchConfig {
	c.Workers = n
	return c
}
