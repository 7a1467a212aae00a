package admission

import "time"

// Config holds the admission controller's tunable pool options.
type Config struct {
	// MaximumConnections is the capacity of the connection-admission pool.
	// Must be >= 1; non-positive values are raised to the default.
	MaximumConnections int

	// MaximumLongTasks is the capacity of the long-task pool. If <= 0, the
	// controller bypasses the interceptor entirely: CurrentLongTask is
	// always absent and no LongTask objects are constructed.
	MaximumLongTasks int

	// StartDelay is the default delay before a promotion takes effect,
	// used whenever a handler calls StartDefault. Negative values are
	// replaced by 100ms.
	StartDelay time.Duration
}

// DefaultConfig returns the controller's out-of-the-box defaults.
func DefaultConfig() Config {
	return Config{
		MaximumConnections: 1,
		MaximumLongTasks:   10,
		StartDelay:         100 * time.Millisecond,
	}
}

func (c Config) normalize() Config {
	if c.MaximumConnections < 1 {
		c.MaximumConnections = 1
	}
	if c.StartDelay < 0 {
		c.StartDelay = 100 * time.Millisecond
	}
	return c
}
