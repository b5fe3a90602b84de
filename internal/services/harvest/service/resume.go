package service

import (
	"slices"

	"forumstats/internal/core/period"
	"forumstats/internal/services/harvest/domain"
)

// ResumePoint finds the newest month in existing, returns existing without any record of
// that month, and that month as the place to resume. The newest month may have been
// captured while still open, so it is never trusted. An empty archive resumes at earliest
func ResumePoint(existing []domain.DailyRecord, earliest period.Period) (kept []domain.DailyRecord, resume period.Period, truncated int, err error) {
	if len(existing) == 0 {
		return nil, earliest, 0, nil
	}

	var newest period.Period
	for i, r := range existing {
		p, err := r.Period()
		if err != nil {
			return nil, period.Period{}, 0, err
		}
		if i == 0 || p.After(newest) {
			newest = p
		}
	}

	kept = make([]domain.DailyRecord, 0, len(existing))
	for _, r := range existing {
		if newest.Contains(r.Date) {
			truncated++
			continue
		}
		kept = append(kept, r)
	}
	return slices.Clip(kept), newest, truncated, nil
}
