// Package state owns the connector's process-memory state: the visit
// watermark, the reported-members cache, and the two daily job gates.
// All of it is lost on restart by design. The Store is the seam where a
// durable implementation could be swapped in without touching the engines.
package state

import (
	"sync"
	"time"
)

// Store is the thread-safe in-memory state store. Construct with NewStore.
type Store struct {
	mu              sync.Mutex
	watermark       time.Time
	reported        map[int64]time.Time
	totalSentToday  bool
	reportSentToday bool
}

// NewStore creates a store with the watermark initialized to the given
// instant. The watermark never resumes from a prior run: callers pass the
// current time at process start.
func NewStore(watermark time.Time) *Store {
	return &Store{
		watermark: watermark,
		reported:  make(map[int64]time.Time),
	}
}

// Watermark returns the timestamp of the most recently processed event.
func (s *Store) Watermark() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// AdvanceWatermark moves the watermark forward to t. Regressions are
// ignored, keeping the watermark monotonically non-decreasing.
func (s *Store) AdvanceWatermark(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.watermark) {
		s.watermark = t
	}
}

// LastReported returns when the member last appeared in an expiring-contract
// report.
func (s *Store) LastReported(memberID int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.reported[memberID]
	return at, ok
}

// MarkReported records that the member was included in a report at the given
// instant, refreshing any earlier entry.
func (s *Store) MarkReported(memberID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reported[memberID] = at
}

// TotalSentToday reports whether the daily total job already fired today.
func (s *Store) TotalSentToday() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSentToday
}

// SetTotalSentToday flips the daily total gate.
func (s *Store) SetTotalSentToday(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSentToday = v
}

// ReportSentToday reports whether the expiring-contract report already fired
// today.
func (s *Store) ReportSentToday() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportSentToday
}

// SetReportSentToday flips the report gate.
func (s *Store) SetReportSentToday(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportSentToday = v
}

// ResetDailyGates clears both gates. Called once per civil day shortly after
// midnight; calling it repeatedly within the reset window is harmless.
func (s *Store) ResetDailyGates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSentToday = false
	s.reportSentToday = false
}

// Snapshot is a point-in-time view of the store for status reporting.
type Snapshot struct {
	Watermark       time.Time `json:"watermark"`
	TotalSentToday  bool      `json:"total_sent_today"`
	ReportSentToday bool      `json:"report_sent_today"`
	ReportedMembers int       `json:"reported_members"`
}

// Snapshot returns the current state for the status endpoint.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Watermark:       s.watermark,
		TotalSentToday:  s.totalSentToday,
		ReportSentToday: s.reportSentToday,
		ReportedMembers: len(s.reported),
	}
}
