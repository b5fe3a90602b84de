// Package domain holds the core data structures for the statistics harvest
package domain

import (
	"encoding/json"

	"forumstats/internal/core/period"
)

// DailyRecord is one calendar day of forum statistics.
// Counters are kept exactly as the forum rendered them
type DailyRecord struct {
	Date              string `json:"date"`
	NewTopics         string `json:"new_topics"`
	NewPosts          string `json:"new_posts"`
	NewMembers        string `json:"new_members"`
	MostMembersOnline string `json:"most_members_online"`
	Hits              string `json:"hits"`
	CollectedAt       string `json:"collected_at"`
}

// Period returns the month the record belongs to
func (r DailyRecord) Period() (period.Period, error) { return period.FromDate(r.Date) }

// DailyStatisticsKey is the archive document key holding the records
const DailyStatisticsKey = "daily_statistics"

// Archive is the whole persisted document. Extra keeps any other top level keys verbatim
type Archive struct {
	Daily []DailyRecord
	Extra map[string]json.RawMessage
}

// StopReason tells why the fetch loop ended
type StopReason string

const (
	// StopCaughtUp means the current month was fetched
	StopCaughtUp StopReason = "caught_up"
	// StopCancelled means the operator interrupted the run between periods
	StopCancelled StopReason = "cancelled"
	// StopFetchError means a period failed and the loop was abandoned
	StopFetchError StopReason = "fetch_error"
)

// Report summarises a reconciliation
type Report struct {
	Resume    period.Period
	Last      period.Period // last period fetched in full; zero when none
	Periods   int
	Kept      int
	Truncated int
	Fetched   int
	Final     int
	Stop      StopReason
	Err       error // the fetch error behind StopFetchError
}
