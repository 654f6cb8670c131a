// Package feed defines the canonical types produced by the gym-management
// collaborators and the interfaces the sync engine consumes. Wire shapes
// belong to the transport clients (internal/feed/virtuagym); everything
// above the transport works with these types only.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Access is the tri-state outcome of a check-in attempt.
type Access int

const (
	AccessUnknown Access = iota
	AccessAllowed
	AccessDenied
)

func (a Access) String() string {
	switch a {
	case AccessAllowed:
		return "allowed"
	case AccessDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// VisitEvent is a single check-in from the visit feed. Ordering key is
// CheckInTime.
type VisitEvent struct {
	MemberID    int64
	CheckInTime time.Time
	Access      Access
}

// MemberProfile is the member snapshot at fetch time. BirthDate carries no
// year significance for the birthday check; a zero BirthDate or
// RegisteredAt means the feed did not provide the field.
type MemberProfile struct {
	MemberID     int64
	FirstName    string
	LastName     string
	BirthDate    time.Time
	RegisteredAt time.Time
}

// DisplayName returns "First Last" with missing parts trimmed away.
func (p MemberProfile) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ContractInstance is one membership contract of a member. Only active
// instances with a present end time matter for expiry logic.
type ContractInstance struct {
	MembershipName string
	EndTime        *time.Time
	Active         bool
}

// ErrThrottled signals that the upstream API is rate-limiting us. Matched
// with errors.Is by the poller to enter the cooldown state.
var ErrThrottled = errors.New("upstream throttled")

// ErrMemberNotFound is returned when the member feed has no record for the
// requested identifier.
var ErrMemberNotFound = errors.New("member not found")

// VisitSource is the visit feed collaborator. FetchVisits returns events
// with a check-in time strictly after since and before until; a zero until
// leaves the range open-ended.
type VisitSource interface {
	FetchVisits(ctx context.Context, since, until time.Time) ([]VisitEvent, error)
}

// MemberSource is the member-profile and membership feed collaborator.
type MemberSource interface {
	FetchMemberProfile(ctx context.Context, memberID int64) (MemberProfile, error)
	FetchActiveContracts(ctx context.Context, memberID int64) ([]ContractInstance, error)
}
