// Package status derives member status flags for a check-in: birthday,
// new member, and expiring contract. Derivation never fails outright —
// each condition degrades independently when its source call fails.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/martijnchel/vg-homey-connector/internal/civiltime"
	"github.com/martijnchel/vg-homey-connector/internal/feed"
)

const (
	// NewMemberWindow is how long after registration a member counts as new.
	NewMemberWindow = 30 * 24 * time.Hour
	// ExpiryWindow is how close a contract end must be to count as expiring.
	ExpiryWindow = 4 * 7 * 24 * time.Hour
)

// Status is the derived state for one member at one check-in.
type Status struct {
	DisplayName string
	Birthday    bool
	NewMember   bool
	// ExpiringEnd is the end time of a qualifying contract, nil when none
	// qualifies.
	ExpiringEnd *time.Time
}

// ThrottleSink receives a signal when an enrichment call hits upstream
// throttling, so the poll cycle's rate-limit guard can react.
type ThrottleSink interface {
	Trip()
}

// Engine fetches profile and contract data and derives status conditions.
type Engine struct {
	// Clock is swappable for tests. Defaults to the real clock.
	Clock quartz.Clock
	// Throttle, when set, is tripped on throttled enrichment calls.
	Throttle ThrottleSink

	members  feed.MemberSource
	zone     civiltime.Zone
	excluded map[string]bool
	logger   *slog.Logger
}

// NewEngine creates an enrichment engine. A nil excluded list falls back to
// the default exclusion set applied by the caller's config.
func NewEngine(members feed.MemberSource, zone civiltime.Zone, excluded []string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]bool, len(excluded))
	for _, name := range excluded {
		set[name] = true
	}
	return &Engine{
		Clock:    quartz.NewReal(),
		members:  members,
		zone:     zone,
		excluded: set,
		logger:   logger,
	}
}

// Derive computes the status for a member. Profile and contract data are
// fetched concurrently since the two calls are independent. A failed profile
// fetch falls back to a placeholder display name with the raw identifier;
// a failed contract fetch leaves the expiring condition unset.
func (e *Engine) Derive(ctx context.Context, memberID int64) Status {
	var (
		wg           sync.WaitGroup
		profile      feed.MemberProfile
		profileErr   error
		contracts    []feed.ContractInstance
		contractsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		profile, profileErr = e.members.FetchMemberProfile(ctx, memberID)
	}()
	go func() {
		defer wg.Done()
		contracts, contractsErr = e.members.FetchActiveContracts(ctx, memberID)
	}()
	wg.Wait()

	now := e.Clock.Now()
	st := Status{DisplayName: fmt.Sprintf("Member %d", memberID)}

	if profileErr != nil {
		e.noteThrottle(profileErr)
		e.logger.Warn("Member profile fetch failed", "member_id", memberID, "error", profileErr)
	} else {
		if name := profile.DisplayName(); name != "" {
			st.DisplayName = name
		}
		st.Birthday = e.isBirthday(profile.BirthDate, now)
		st.NewMember = !profile.RegisteredAt.IsZero() && now.Sub(profile.RegisteredAt) < NewMemberWindow
	}

	if contractsErr != nil {
		e.noteThrottle(contractsErr)
		e.logger.Warn("Contract fetch failed", "member_id", memberID, "error", contractsErr)
	} else {
		st.ExpiringEnd = e.ExpiringContract(contracts, now)
	}
	return st
}

// HasExpiringContract runs only the contract-expiry condition, used by the
// daily report job. Unlike Derive, fetch errors propagate so the job can
// abort without consuming its daily slot.
func (e *Engine) HasExpiringContract(ctx context.Context, memberID int64) (bool, error) {
	contracts, err := e.members.FetchActiveContracts(ctx, memberID)
	if err != nil {
		return false, err
	}
	return e.ExpiringContract(contracts, e.Clock.Now()) != nil, nil
}

// MemberDisplayName returns the member's full name from a fresh profile
// fetch.
func (e *Engine) MemberDisplayName(ctx context.Context, memberID int64) (string, error) {
	profile, err := e.members.FetchMemberProfile(ctx, memberID)
	if err != nil {
		return "", err
	}
	return profile.DisplayName(), nil
}

// ExpiringContract returns the end time of the first active contract ending
// within the expiry window, skipping excluded membership names. Returns nil
// when no contract qualifies. Tie-break between multiple qualifying
// contracts is collaborator order.
func (e *Engine) ExpiringContract(contracts []feed.ContractInstance, now time.Time) *time.Time {
	for _, c := range contracts {
		if !c.Active || c.EndTime == nil {
			continue
		}
		if e.excluded[c.MembershipName] {
			continue
		}
		end := *c.EndTime
		if end.After(now) && !end.After(now.Add(ExpiryWindow)) {
			return &end
		}
	}
	return nil
}

// isBirthday matches calendar day and month in the club timezone; the birth
// year is ignored.
func (e *Engine) isBirthday(birthDate, now time.Time) bool {
	if birthDate.IsZero() {
		return false
	}
	month, day := e.zone.MonthDay(now)
	return birthDate.Month() == month && birthDate.Day() == day
}

func (e *Engine) noteThrottle(err error) {
	if e.Throttle != nil && errors.Is(err, feed.ErrThrottled) {
		e.Throttle.Trip()
	}
}
