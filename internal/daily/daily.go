// Package daily runs the two aggregation jobs: the end-of-day unique visit
// total and the morning expiring-contract report. Both are gated to fire at
// most once per civil day; the gates reset during the first minute after
// midnight.
package daily

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/time/rate"

	"github.com/martijnchel/vg-homey-connector/internal/civiltime"
	"github.com/martijnchel/vg-homey-connector/internal/feed"
	"github.com/martijnchel/vg-homey-connector/internal/notify"
	"github.com/martijnchel/vg-homey-connector/internal/state"
)

// Trigger times and windows in the club timezone.
const (
	totalHour    = 23
	totalMinute  = 59
	reportHour   = 9
	reportMinute = 0

	// DefaultReportCooldown keeps a member out of consecutive reports.
	DefaultReportCooldown = 7 * 24 * time.Hour
	// DefaultCheckInterval is how often the trigger conditions are checked.
	DefaultCheckInterval = time.Minute
)

// Enricher is the contract-check path of the status engine. Errors
// propagate here, unlike the per-event derivation: a collaborator failure
// aborts the job run without consuming its daily slot.
type Enricher interface {
	HasExpiringContract(ctx context.Context, memberID int64) (bool, error)
	MemberDisplayName(ctx context.Context, memberID int64) (string, error)
}

// Options bundles the scheduler's collaborators and tuning knobs.
type Options struct {
	Visits     feed.VisitSource
	Enricher   Enricher
	Dispatcher *notify.Dispatcher
	Store      *state.Store
	Zone       civiltime.Zone

	// ReportCooldown <= 0 falls back to DefaultReportCooldown.
	ReportCooldown time.Duration
	// MemberCheckDelay paces the per-member contract checks during the
	// report job. Zero disables pacing.
	MemberCheckDelay time.Duration
	Logger           *slog.Logger
}

// Scheduler checks trigger times on a fixed interval and runs the daily
// jobs. It is not gated by the poller's rate-limit cooldown.
type Scheduler struct {
	// Clock is swappable for tests. Defaults to the real clock.
	Clock quartz.Clock

	visits     feed.VisitSource
	enricher   Enricher
	dispatcher *notify.Dispatcher
	store      *state.Store
	zone       civiltime.Zone

	reportCooldown time.Duration
	pace           *rate.Limiter
	logger         *slog.Logger
}

// New creates a scheduler.
func New(opts Options) *Scheduler {
	cooldown := opts.ReportCooldown
	if cooldown <= 0 {
		cooldown = DefaultReportCooldown
	}
	limit := rate.Inf
	if opts.MemberCheckDelay > 0 {
		limit = rate.Every(opts.MemberCheckDelay)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Clock:          quartz.NewReal(),
		visits:         opts.Visits,
		enricher:       opts.Enricher,
		dispatcher:     opts.Dispatcher,
		store:          opts.Store,
		zone:           opts.Zone,
		reportCooldown: cooldown,
		pace:           rate.NewLimiter(limit, 1),
		logger:         logger,
	}
}

// Run checks trigger conditions on a fixed interval until ctx is cancelled.
// Intended to be called with `go`.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	s.logger.Info("Daily scheduler started", "check_interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick(ctx)
		case <-ctx.Done():
			s.logger.Info("Daily scheduler stopped")
			return
		}
	}
}

// Tick evaluates the gate reset window and both job triggers against the
// club clock. Job errors are logged; the next tick inside the trigger
// minute retries naturally since the gate is only set on success.
func (s *Scheduler) Tick(ctx context.Context) {
	hour, minute := s.zone.ClockParts(s.Clock.Now())

	if hour == 0 && minute == 0 {
		s.store.ResetDailyGates()
	}
	if hour == totalHour && minute == totalMinute {
		if err := s.RunTotal(ctx, false); err != nil {
			s.logger.Warn("Daily total job failed", "error", err)
		}
	}
	if hour == reportHour && minute == reportMinute {
		if err := s.RunReport(ctx, false); err != nil {
			s.logger.Warn("Expiring-contract report failed", "error", err)
		}
	}
}

// RunTotal sends the distinct-visitor count for the current club day. When
// force is set the daily gate is neither consulted nor advanced, so a
// manual run does not consume the day's slot.
func (s *Scheduler) RunTotal(ctx context.Context, force bool) error {
	if !force && s.store.TotalSentToday() {
		return nil
	}

	now := s.Clock.Now()
	visits, err := s.visits.FetchVisits(ctx, s.zone.StartOfDay(now), now)
	if err != nil {
		return fmt.Errorf("fetch today's visits: %w", err)
	}

	count := len(distinctMemberIDs(visits))
	msg := fmt.Sprintf("Daily total: %d unique visits", count)
	if err := s.dispatcher.DeliverText(ctx, msg); err != nil {
		return fmt.Errorf("deliver daily total: %w", err)
	}

	if !force {
		s.store.SetTotalSentToday(true)
	}
	s.logger.Info("Daily total sent", "unique_visits", count)
	return nil
}

// RunReport assembles the expiring-contract report over members who visited
// during the previous club day. Members reported within the cooldown window
// are skipped; members named in a delivered report have their cache entry
// refreshed. Gate semantics match RunTotal.
func (s *Scheduler) RunReport(ctx context.Context, force bool) error {
	if !force && s.store.ReportSentToday() {
		return nil
	}

	now := s.Clock.Now()
	from, until := s.zone.PreviousDayRange(now)
	visits, err := s.visits.FetchVisits(ctx, from, until)
	if err != nil {
		return fmt.Errorf("fetch yesterday's visits: %w", err)
	}

	var (
		names       []string
		includedIDs []int64
	)
	for _, id := range distinctMemberIDs(visits) {
		if err := s.pace.Wait(ctx); err != nil {
			return err
		}
		expiring, err := s.enricher.HasExpiringContract(ctx, id)
		if err != nil {
			return fmt.Errorf("contract check member %d: %w", id, err)
		}
		if !expiring {
			continue
		}
		if last, ok := s.store.LastReported(id); ok && now.Sub(last) < s.reportCooldown {
			continue
		}
		name, err := s.enricher.MemberDisplayName(ctx, id)
		if err != nil || name == "" {
			name = fmt.Sprintf("Member %d", id)
		}
		names = append(names, name)
		includedIDs = append(includedIDs, id)
	}

	if err := s.dispatcher.DeliverText(ctx, reportSentence(names)); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	// Refresh cache entries only now that the report actually went out.
	for _, id := range includedIDs {
		s.store.MarkReported(id, now)
	}

	if !force {
		s.store.SetReportSentToday(true)
	}
	s.logger.Info("Expiring-contract report sent", "members", len(names))
	return nil
}

// distinctMemberIDs reduces visits to their unique member identifiers,
// sorted ascending for deterministic processing order.
func distinctMemberIDs(visits []feed.VisitEvent) []int64 {
	seen := make(map[int64]bool, len(visits))
	ids := make([]int64, 0, len(visits))
	for _, v := range visits {
		if v.MemberID == 0 || seen[v.MemberID] {
			continue
		}
		seen[v.MemberID] = true
		ids = append(ids, v.MemberID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// reportSentence joins names with commas and a final "and", or returns the
// fixed sentence for an empty set.
func reportSentence(names []string) string {
	switch len(names) {
	case 0:
		return "No expiring contracts today."
	case 1:
		return fmt.Sprintf("Expiring contracts: %s.", names[0])
	default:
		return fmt.Sprintf("Expiring contracts: %s and %s.",
			strings.Join(names[:len(names)-1], ", "), names[len(names)-1])
	}
}
