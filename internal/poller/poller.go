// Package poller runs the incremental visit synchronization loop: fetch
// events past the watermark, enrich and notify each one in check-in order,
// and advance the watermark only over events this cycle has handled.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/martijnchel/vg-homey-connector/internal/feed"
	"github.com/martijnchel/vg-homey-connector/internal/guard"
	"github.com/martijnchel/vg-homey-connector/internal/notify"
	"github.com/martijnchel/vg-homey-connector/internal/state"
	"github.com/martijnchel/vg-homey-connector/internal/status"
)

// DefaultSpikeThreshold is the fetched-batch size above which a cycle is
// treated as a backlog dump rather than live activity.
const DefaultSpikeThreshold = 12

// Enricher derives member status for an event.
type Enricher interface {
	Derive(ctx context.Context, memberID int64) status.Status
}

// Options bundles the poller's collaborators and tuning knobs.
type Options struct {
	Visits     feed.VisitSource
	Enricher   Enricher
	Dispatcher *notify.Dispatcher
	Cooldown   *guard.Cooldown
	Store      *state.Store

	// SpikeThreshold <= 0 falls back to DefaultSpikeThreshold.
	SpikeThreshold int
	// InterEventDelay paces notifications within a cycle. Zero disables
	// pacing.
	InterEventDelay time.Duration
	Logger          *slog.Logger
}

// Poller is the watermark engine. One instance per process.
type Poller struct {
	visits     feed.VisitSource
	enricher   Enricher
	dispatcher *notify.Dispatcher
	cooldown   *guard.Cooldown
	store      *state.Store

	spikeThreshold int
	pace           *rate.Limiter
	logger         *slog.Logger

	inFlight atomic.Bool
}

// New creates a poller.
func New(opts Options) *Poller {
	threshold := opts.SpikeThreshold
	if threshold <= 0 {
		threshold = DefaultSpikeThreshold
	}
	limit := rate.Inf
	if opts.InterEventDelay > 0 {
		limit = rate.Every(opts.InterEventDelay)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		visits:         opts.Visits,
		enricher:       opts.Enricher,
		dispatcher:     opts.Dispatcher,
		cooldown:       opts.Cooldown,
		store:          opts.Store,
		spikeThreshold: threshold,
		pace:           rate.NewLimiter(limit, 1),
		logger:         logger,
	}
}

// Run polls on a fixed interval until ctx is cancelled. The first cycle
// runs immediately. Intended to be called with `go`.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	p.logger.Info("Poller started", "interval", interval, "spike_threshold", p.spikeThreshold)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.Poll(ctx)
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return
		}
	}
}

// Poll runs one synchronization cycle. It is a no-op while the cooldown is
// active or while a previous cycle is still in flight, and never returns an
// error: all failures end the cycle with no watermark change.
func (p *Poller) Poll(ctx context.Context) {
	if p.cooldown.Active() {
		p.logger.Debug("Poll skipped, cooling down", "until", p.cooldown.Until())
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)

	watermark := p.store.Watermark()
	fetched, err := p.visits.FetchVisits(ctx, watermark, time.Time{})
	if err != nil {
		if errors.Is(err, feed.ErrThrottled) {
			p.cooldown.Trip()
			return
		}
		p.logger.Warn("Visit fetch failed", "error", err)
		return
	}
	if len(fetched) == 0 {
		return
	}

	// Backlog dump: skip past everything without notifying. A burst this
	// large is historical data (e.g. after downtime), not live check-ins.
	if len(fetched) > p.spikeThreshold {
		newest := watermark
		for _, v := range fetched {
			if v.CheckInTime.After(newest) {
				newest = v.CheckInTime
			}
		}
		p.store.AdvanceWatermark(newest)
		p.logger.Warn("Visit burst suppressed",
			"count", len(fetched), "threshold", p.spikeThreshold, "watermark", newest)
		return
	}

	// Keep only events strictly after the watermark, dropping rows with a
	// missing timestamp, oldest first so notification order matches
	// real-world order.
	events := make([]feed.VisitEvent, 0, len(fetched))
	for _, v := range fetched {
		if v.CheckInTime.IsZero() || !v.CheckInTime.After(watermark) {
			continue
		}
		events = append(events, v)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CheckInTime.Before(events[j].CheckInTime)
	})

	for _, v := range events {
		if err := p.pace.Wait(ctx); err != nil {
			return
		}
		st := p.enricher.Derive(ctx, v.MemberID)
		p.dispatcher.Dispatch(ctx, st, v.Access, v.CheckInTime)
		// Advance past this event regardless of enrichment or delivery
		// outcome: failed events are dropped and logged, never retried.
		p.store.AdvanceWatermark(v.CheckInTime)
	}
}
