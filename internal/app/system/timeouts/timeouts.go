// Package timeouts holds the per-call deadlines handlers and stores put on
// MongoDB and Redis operations. Values are process-wide and set once from
// configuration at startup.
package timeouts

import (
	"sync/atomic"
	"time"
)

const (
	DefaultPing   = 2 * time.Second
	DefaultShort  = 5 * time.Second
	DefaultMedium = 10 * time.Second
)

var (
	ping   atomic.Int64
	short  atomic.Int64
	medium atomic.Int64
)

func init() { Reset() }

// Ping bounds health-check round trips.
func Ping() time.Duration { return time.Duration(ping.Load()) }

// Short bounds single-document reads and writes.
func Short() time.Duration { return time.Duration(short.Load()) }

// Medium bounds multi-step work such as transactions and listings.
func Medium() time.Duration { return time.Duration(medium.Load()) }

// Config overrides the defaults. Zero or negative fields are left alone.
type Config struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
}

// Configure applies cfg.
func Configure(cfg Config) {
	set(&ping, cfg.Ping)
	set(&short, cfg.Short)
	set(&medium, cfg.Medium)
}

// Current returns the values in effect.
func Current() Config {
	return Config{Ping: Ping(), Short: Short(), Medium: Medium()}
}

// Reset restores the defaults.
func Reset() {
	ping.Store(int64(DefaultPing))
	short.Store(int64(DefaultShort))
	medium.Store(int64(DefaultMedium))
}

func set(v *atomic.Int64, d time.Duration) {
	if d > 0 {
		v.Store(int64(d))
	}
}
