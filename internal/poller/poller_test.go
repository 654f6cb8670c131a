package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martijnchel/vg-homey-connector/internal/civiltime"
	"github.com/martijnchel/vg-homey-connector/internal/feed"
	"github.com/martijnchel/vg-homey-connector/internal/guard"
	"github.com/martijnchel/vg-homey-connector/internal/notify"
	"github.com/martijnchel/vg-homey-connector/internal/state"
	"github.com/martijnchel/vg-homey-connector/internal/status"
)

// fakeVisits replays canned batches, one per FetchVisits call. The last
// batch repeats once the script runs out.
type fakeVisits struct {
	mu      sync.Mutex
	batches [][]feed.VisitEvent
	errs    []error
	calls   int
	sinces  []time.Time
}

func (f *fakeVisits) FetchVisits(_ context.Context, since, _ time.Time) ([]feed.VisitEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.sinces = append(f.sinces, since)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	if i >= len(f.batches) {
		i = len(f.batches) - 1
	}
	return f.batches[i], nil
}

func (f *fakeVisits) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingVisits parks its first FetchVisits call until released, signalling
// entry so a test can overlap a second cycle with the first.
type blockingVisits struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func newBlockingVisits() *blockingVisits {
	return &blockingVisits{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingVisits) FetchVisits(context.Context, time.Time, time.Time) ([]feed.VisitEvent, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.entered)
		<-b.release
	}
	return nil, nil
}

func (b *blockingVisits) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// fakeEnricher labels every member deterministically without collaborators.
type fakeEnricher struct{}

func (fakeEnricher) Derive(_ context.Context, memberID int64) status.Status {
	return status.Status{DisplayName: fmt.Sprintf("Member %d", memberID)}
}

type captureDeliverer struct {
	mu    sync.Mutex
	texts []string
}

func (c *captureDeliverer) DeliverNotification(_ context.Context, text string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *captureDeliverer) delivered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type harness struct {
	poller   *Poller
	visits   *fakeVisits
	capture  *captureDeliverer
	store    *state.Store
	cooldown *guard.Cooldown
	clock    *quartz.Mock
}

func newHarness(t *testing.T, watermark time.Time, visits *fakeVisits, threshold int) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	zone := civiltime.MustLoad("Europe/Amsterdam")

	clock := quartz.NewMock(t)
	clock.Set(watermark)

	capture := &captureDeliverer{}
	store := state.NewStore(watermark)
	cooldown := guard.NewCooldown(10*time.Minute, logger)
	cooldown.Clock = clock

	p := New(Options{
		Visits:         visits,
		Enricher:       fakeEnricher{},
		Dispatcher:     notify.NewDispatcher(capture, zone, logger),
		Cooldown:       cooldown,
		Store:          store,
		SpikeThreshold: threshold,
		Logger:         logger,
	})
	return &harness{
		poller:   p,
		visits:   visits,
		capture:  capture,
		store:    store,
		cooldown: cooldown,
		clock:    clock,
	}
}

func TestPollScenario(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC) // 10:00 Amsterdam
	visits := &fakeVisits{batches: [][]feed.VisitEvent{{
		// Deliberately out of order to exercise the sort.
		{MemberID: 2, CheckInTime: t0.Add(2 * time.Second), Access: feed.AccessDenied},
		{MemberID: 1, CheckInTime: t0.Add(1 * time.Second), Access: feed.AccessAllowed},
		{MemberID: 1, CheckInTime: t0.Add(5 * time.Second), Access: feed.AccessAllowed},
	}}}
	h := newHarness(t, t0, visits, 10)

	h.poller.Poll(context.Background())

	require.Equal(t, []string{
		"10:00 - Member 1",
		"[X]10:00 - Member 2",
		"10:00 - Member 1",
	}, h.capture.delivered())
	assert.Equal(t, t0.Add(5*time.Second), h.store.Watermark())
}

func TestAtMostOncePerEvent(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	batch := []feed.VisitEvent{
		{MemberID: 1, CheckInTime: t0.Add(time.Second), Access: feed.AccessAllowed},
		{MemberID: 2, CheckInTime: t0.Add(2 * time.Second), Access: feed.AccessAllowed},
	}
	// The second cycle returns the same overlapping window.
	visits := &fakeVisits{batches: [][]feed.VisitEvent{batch, batch}}
	h := newHarness(t, t0, visits, 10)

	h.poller.Poll(context.Background())
	h.poller.Poll(context.Background())

	assert.Len(t, h.capture.delivered(), 2)
	assert.Equal(t, t0.Add(2*time.Second), h.store.Watermark())
	// Second fetch used the advanced watermark.
	assert.Equal(t, t0.Add(2*time.Second), h.visits.sinces[1])
}

func TestSpikeSuppression(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	var batch []feed.VisitEvent
	for i := 1; i <= 20; i++ {
		batch = append(batch, feed.VisitEvent{
			MemberID:    int64(i),
			CheckInTime: t0.Add(time.Duration(i) * time.Second),
			Access:      feed.AccessAllowed,
		})
	}
	visits := &fakeVisits{batches: [][]feed.VisitEvent{batch}}
	h := newHarness(t, t0, visits, 10)

	h.poller.Poll(context.Background())

	assert.Empty(t, h.capture.delivered())
	assert.Equal(t, t0.Add(20*time.Second), h.store.Watermark())
}

func TestThrottledFetchEntersCooldown(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	batch := []feed.VisitEvent{
		{MemberID: 1, CheckInTime: t0.Add(time.Second), Access: feed.AccessAllowed},
	}
	visits := &fakeVisits{
		errs:    []error{fmt.Errorf("virtuagym /visits: %w", feed.ErrThrottled)},
		batches: [][]feed.VisitEvent{nil, batch, batch},
	}
	h := newHarness(t, t0, visits, 10)

	h.poller.Poll(context.Background())
	assert.True(t, h.cooldown.Active())
	assert.Equal(t, t0, h.store.Watermark())

	// One minute later the cooldown still blocks the cycle: no fetch.
	h.clock.Advance(time.Minute)
	h.poller.Poll(context.Background())
	assert.Equal(t, 1, h.visits.callCount())

	// Past the cooldown the poller proceeds normally.
	h.clock.Advance(10 * time.Minute)
	h.poller.Poll(context.Background())
	assert.Equal(t, 2, h.visits.callCount())
	assert.Len(t, h.capture.delivered(), 1)
}

func TestTransientFetchErrorKeepsWatermark(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	visits := &fakeVisits{errs: []error{errors.New("connection reset")}}
	h := newHarness(t, t0, visits, 10)

	h.poller.Poll(context.Background())

	assert.False(t, h.cooldown.Active())
	assert.Equal(t, t0, h.store.Watermark())
	assert.Empty(t, h.capture.delivered())
}

func TestZeroTimestampEventsDropped(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	visits := &fakeVisits{batches: [][]feed.VisitEvent{{
		{MemberID: 1, Access: feed.AccessAllowed}, // missing timestamp
		{MemberID: 2, CheckInTime: t0, Access: feed.AccessAllowed},            // exactly at watermark
		{MemberID: 3, CheckInTime: t0.Add(time.Second), Access: feed.AccessAllowed},
	}}}
	h := newHarness(t, t0, visits, 10)

	h.poller.Poll(context.Background())

	require.Len(t, h.capture.delivered(), 1)
	assert.Contains(t, h.capture.delivered()[0], "Member 3")
	assert.Equal(t, t0.Add(time.Second), h.store.Watermark())
}

func TestConcurrentPollIsNoOp(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	zone := civiltime.MustLoad("Europe/Amsterdam")
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	visits := newBlockingVisits()
	p := New(Options{
		Visits:     visits,
		Enricher:   fakeEnricher{},
		Dispatcher: notify.NewDispatcher(&captureDeliverer{}, zone, logger),
		Cooldown:   guard.NewCooldown(10*time.Minute, logger),
		Store:      state.NewStore(t0),
		Logger:     logger,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Poll(context.Background())
	}()
	<-visits.entered

	// The first cycle is parked inside its fetch; a call arriving now must
	// return immediately without touching the feed.
	p.Poll(context.Background())
	assert.Equal(t, 1, visits.callCount())

	close(visits.release)
	<-done
	assert.Equal(t, 1, visits.callCount())
}

func TestEmptyFetchIsNoOp(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, t0, &fakeVisits{}, 10)

	h.poller.Poll(context.Background())

	assert.Empty(t, h.capture.delivered())
	assert.Equal(t, t0, h.store.Watermark())
}
