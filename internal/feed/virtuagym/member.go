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

// memberRow is the wire shape of one member record, fetched with
// with=active_memberships so contract data rides along.
type memberRow struct {
	ID          int64           `json:"member_id"`
	FirstName   string          `json:"firstname"`
	LastName    string          `json:"lastname"`
	Birthday    string          `json:"birthday"` // YYYY-MM-DD
	MemberSince flexTime        `json:"member_since"`
	Memberships []membershipRow `json:"memberships"`
}

type membershipRow struct {
	MembershipName  string `json:"membership_name"`
	ContractEndDate string `json:"contract_end_date"`
	Active          int    `json:"active"`
}

// flexTime decodes a value the API returns either as a YYYY-MM-DD string or
// as epoch milliseconds.
type flexTime struct {
	time.Time
}

func (f *flexTime) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", s, err)
		}
		f.Time = t
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", b, err)
	}
	if ms > 0 {
		f.Time = time.UnixMilli(ms).UTC()
	}
	return nil
}

// fetchMember retrieves a single member record. The API returns either an
// object or a single-element array depending on endpoint version.
func (c *Client) fetchMember(ctx context.Context, memberID int64) (*memberRow, error) {
	params := url.Values{}
	params.Set("with", "active_memberships")

	raw, err := c.get(ctx, "/member/"+strconv.FormatInt(memberID, 10), params)
	if err != nil {
		return nil, err
	}

	var rows []memberRow
	if err := json.Unmarshal(raw, &rows); err == nil {
		if len(rows) == 0 {
			return nil, fmt.Errorf("member %d: %w", memberID, feed.ErrMemberNotFound)
		}
		return &rows[0], nil
	}

	var row memberRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode member %d: %w", memberID, err)
	}
	return &row, nil
}

// FetchMemberProfile returns the member's current profile snapshot. Profiles
// are fetched fresh on every call; no caching.
func (c *Client) FetchMemberProfile(ctx context.Context, memberID int64) (feed.MemberProfile, error) {
	row, err := c.fetchMember(ctx, memberID)
	if err != nil {
		return feed.MemberProfile{}, err
	}

	profile := feed.MemberProfile{
		MemberID:     memberID,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		RegisteredAt: row.MemberSince.Time,
	}
	if row.Birthday != "" {
		if bday, err := time.Parse("2006-01-02", row.Birthday); err == nil {
			profile.BirthDate = bday
		} else {
			c.logger.Warn("Unparseable birthday", "member_id", memberID, "value", row.Birthday)
		}
	}
	return profile, nil
}

// FetchActiveContracts returns the member's membership contracts.
func (c *Client) FetchActiveContracts(ctx context.Context, memberID int64) ([]feed.ContractInstance, error) {
	row, err := c.fetchMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	contracts := make([]feed.ContractInstance, 0, len(row.Memberships))
	for _, m := range row.Memberships {
		contract := feed.ContractInstance{
			MembershipName: m.MembershipName,
			Active:         m.Active != 0,
		}
		if m.ContractEndDate != "" {
			if end, err := time.Parse("2006-01-02", m.ContractEndDate); err == nil {
				contract.EndTime = &end
			}
		}
		contracts = append(contracts, contract)
	}
	return contracts, nil
}
