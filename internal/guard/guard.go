// Package guard holds the cross-cutting cooldown state entered when the
// upstream API signals throttling. The poller consults it before every
// cycle.
package guard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// DefaultDuration is how long polling stays suspended after a throttling
// signal.
const DefaultDuration = 10 * time.Minute

// Cooldown is a two-state machine: normal, or cooling down until an expiry
// instant. Expiry needs no timer: once the instant passes, Active reads
// false again.
type Cooldown struct {
	// Clock is swappable for tests. Defaults to the real clock.
	Clock quartz.Clock

	duration time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	until time.Time
}

// NewCooldown creates an inactive cooldown. A non-positive duration falls
// back to DefaultDuration.
func NewCooldown(duration time.Duration, logger *slog.Logger) *Cooldown {
	if duration <= 0 {
		duration = DefaultDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cooldown{
		Clock:    quartz.NewReal(),
		duration: duration,
		logger:   logger,
	}
}

// Trip enters the cooling-down state. Tripping again while already cooling
// down extends the expiry from now.
func (c *Cooldown) Trip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = c.Clock.Now().Add(c.duration)
	c.logger.Warn("Upstream throttling detected, polling suspended", "until", c.until)
}

// Active reports whether polling is currently suspended.
func (c *Cooldown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Clock.Now().Before(c.until)
}

// Until returns the expiry instant of the current cooldown, zero if the
// guard has never tripped.
func (c *Cooldown) Until() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.until
}
