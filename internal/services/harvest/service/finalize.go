package service

import (
	"cmp"
	"slices"

	"forumstats/internal/services/harvest/domain"
)

// Finalize orders records by date, keeping the forum's order among equal dates, then keeps
// only the last record of each date (the most recently fetched one)
func Finalize(records []domain.DailyRecord) []domain.DailyRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, func(a, b domain.DailyRecord) int { return cmp.Compare(a.Date, b.Date) })

	w := 0
	for i := range out {
		if w > 0 && out[w-1].Date == out[i].Date {
			out[w-1] = out[i]
			continue
		}
		out[w] = out[i]
		w++
	}
	return out[:w]
}
