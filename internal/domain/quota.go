package domain

import "time"

// DayLayout formats the UTC calendar day a quota counter belongs to
const DayLayout = "2006-01-02"

// Unlimited is reported as the remaining allowance of unbounded tiers
const Unlimited = -1

// Tier is a subscription level with its own daily allowance
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
	TierAdmin   Tier = "admin"
)

// ParseTier maps a free-form tier name onto the vocabulary. Unknown names fall back to free.
func ParseTier(s string) Tier {
	switch Tier(s) {
	case TierPro, TierPremium, TierAdmin:
		return Tier(s)
	}
	return TierFree
}

// Identity is the opaque per-caller key quotas are accounted against
type Identity struct {
	ID   string `json:"id"`
	Tier Tier   `json:"tier"`
}

// QuotaCounter is the persisted usage of one identity for one UTC day
type QuotaCounter struct {
	IdentityID string `json:"identity_id" db:"identity_id"`
	Day        string `json:"day" db:"day"`
	Count      int    `json:"count" db:"count"`
}

// QuotaDecision is the outcome of a check-and-consume call
type QuotaDecision struct {
	Admitted  bool      `json:"admitted"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// UTCDay returns the calendar day of t in UTC
func UTCDay(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// NextUTCMidnight returns the first instant of the UTC day after t
func NextUTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
