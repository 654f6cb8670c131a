package virtuagym

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/martijnchel/vg-homey-connector/internal/feed"
)

// visitRow is the wire shape of one visit record.
type visitRow struct {
	MemberID         int64  `json:"member_id"`
	CheckInTimestamp int64  `json:"check_in_timestamp"` // epoch milliseconds
	AccessAllowed    *bool  `json:"access_allowed"`
	ErrorCode        string `json:"error_code"`
}

func (r visitRow) access() feed.Access {
	if r.ErrorCode != "" {
		return feed.AccessDenied
	}
	if r.AccessAllowed == nil {
		return feed.AccessUnknown
	}
	if *r.AccessAllowed {
		return feed.AccessAllowed
	}
	return feed.AccessDenied
}

// FetchVisits returns club visits with a check-in time strictly after since
// and before until. The sync_from/sync_to parameters are only a coarse
// server-side filter, so the window is enforced here; rows without a
// timestamp cannot be placed in the window and are dropped. A zero until
// leaves the range open-ended.
func (c *Client) FetchVisits(ctx context.Context, since, until time.Time) ([]feed.VisitEvent, error) {
	params := url.Values{}
	if !since.IsZero() {
		params.Set("sync_from", strconv.FormatInt(since.UnixMilli(), 10))
	}
	if !until.IsZero() {
		params.Set("sync_to", strconv.FormatInt(until.UnixMilli(), 10))
	}

	raw, err := c.get(ctx, "/visits", params)
	if err != nil {
		return nil, err
	}

	var rows []visitRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode visits: %w", err)
	}

	events := make([]feed.VisitEvent, 0, len(rows))
	for _, row := range rows {
		if row.CheckInTimestamp <= 0 {
			continue
		}
		at := time.UnixMilli(row.CheckInTimestamp).UTC()
		if !at.After(since) {
			continue
		}
		if !until.IsZero() && !at.Before(until) {
			continue
		}
		events = append(events, feed.VisitEvent{
			MemberID:    row.MemberID,
			CheckInTime: at,
			Access:      row.access(),
		})
	}
	return events, nil
}
