// Package notify formats check-in tags and dispatches them to the
// downstream notification endpoint, isolating delivery failures from the
// sync loop.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/martijnchel/vg-homey-connector/internal/civiltime"
	"github.com/martijnchel/vg-homey-connector/internal/feed"
	"github.com/martijnchel/vg-homey-connector/internal/status"
)

// Deliverer is the downstream notification endpoint.
type Deliverer interface {
	DeliverNotification(ctx context.Context, text string, occurredAt time.Time) error
}

// Dispatcher builds display strings and hands them to the deliverer.
type Dispatcher struct {
	deliverer Deliverer
	zone      civiltime.Zone
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher rendering times in the given zone.
func NewDispatcher(deliverer Deliverer, zone civiltime.Zone, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		deliverer: deliverer,
		zone:      zone,
		logger:    logger,
	}
}

// FormatTag assembles the single-line notification tag. Code order is
// fixed: [X] for denied or unknown access, then [B] birthday, [E] expiring
// contract, [N] new member, followed by the local check-in time and the
// display name.
func (d *Dispatcher) FormatTag(st status.Status, access feed.Access, checkInTime time.Time) string {
	var b strings.Builder
	if access != feed.AccessAllowed {
		b.WriteString("[X]")
	}
	if st.Birthday {
		b.WriteString("[B]")
	}
	if st.ExpiringEnd != nil {
		b.WriteString("[E]")
	}
	if st.NewMember {
		b.WriteString("[N]")
	}
	b.WriteString(d.zone.Clock(checkInTime))
	b.WriteString(" - ")
	b.WriteString(st.DisplayName)
	return b.String()
}

// Dispatch builds and delivers the tag for one check-in. Delivery failures
// are logged and dropped, never retried: one broken event must not stall
// the watermark.
func (d *Dispatcher) Dispatch(ctx context.Context, st status.Status, access feed.Access, checkInTime time.Time) {
	tag := d.FormatTag(st, access, checkInTime)
	if err := d.deliverer.DeliverNotification(ctx, tag, checkInTime); err != nil {
		d.logger.Warn("Notification delivery failed", "tag", tag, "error", err)
		return
	}
	d.logger.Info("Check-in notified", "tag", tag)
}

// DeliverText sends a plain message through the same delivery path. Used by
// the daily jobs, which do not carry a correlation timestamp.
func (d *Dispatcher) DeliverText(ctx context.Context, text string) error {
	return d.deliverer.DeliverNotification(ctx, text, time.Time{})
}
