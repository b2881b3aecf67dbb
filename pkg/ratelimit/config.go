// Package ratelimit paces outbound catalog requests. A Limiter is a FIFO task
// queue that caps the number of tasks in flight and waits a fixed delay after
// each task settles before its slot admits the next one, so that the upstream
// sees a steady request rate rather than bursts.
package ratelimit

import "time"

// Defaults tuned for the public JLCPCB component search endpoint.
const (
	// DefaultMaxConcurrent is the number of tasks allowed in flight at once.
	DefaultMaxConcurrent = 2

	// DefaultDelay is the pause a slot takes after a task settles.
	DefaultDelay = 500 * time.Millisecond
)

// Config holds limiter configuration.
type Config struct {
	// MaxConcurrent caps simultaneously running tasks (<= 0 uses the default).
	MaxConcurrent int

	// Delay is waited after every completion, success or failure, before the
	// same slot admits the next queued task. Negative values are treated as 0.
	Delay time.Duration
}

// DefaultConfig returns the default limiter configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: DefaultMaxConcurrent,
		Delay:         DefaultDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	return c
}
