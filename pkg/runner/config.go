package runner

import (
	"fmt"
	"time"
)

// Config bounds one tick.
type Config struct {
	BatchLimit   int
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	ClaimLease   time.Duration
	SendTimeout  time.Duration
	StoreTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchLimit:   100,
		Concurrency:  8,
		MaxAttempts:  3,
		BackoffBase:  5 * time.Minute,
		BackoffMax:   24 * time.Hour,
		ClaimLease:   5 * time.Minute,
		SendTimeout:  15 * time.Second,
		StoreTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchLimit <= 0 {
		c.BatchLimit = d.BatchLimit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = d.ClaimLease
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	return c
}

// Validate checks that a claimed enrollment's work fits in its lease: the send
// plus the attempt record and the finalize write. Otherwise another runner
// could reclaim the enrollment mid-send and dispatch the same step again.
func (c Config) Validate() error {
	c = c.withDefaults()
	if work := c.SendTimeout + 2*c.StoreTimeout; work >= c.ClaimLease {
		return fmt.Errorf("send timeout %s plus two store timeouts of %s must be shorter than the claim lease %s",
			c.SendTimeout, c.StoreTimeout, c.ClaimLease)
	}
	return nil
}

// Backoff is the delay before retry number attempts (1-based):
// base·2^(attempts-1), capped at BackoffMax.
func (c Config) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := c.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.BackoffMax {
			return c.BackoffMax
		}
	}
	if d > c.BackoffMax {
		return c.BackoffMax
	}
	return d
}
