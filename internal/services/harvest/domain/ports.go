package domain

import (
	"context"

	"forumstats/internal/core/period"
)

// RunnerPort is the public port exposed by the module
type RunnerPort interface {
	Run(ctx context.Context) (Report, error)
}

// Fetcher returns every day the forum reports for one month, in the forum's order.
// A month with no data yields an empty slice and no error
type Fetcher interface {
	FetchPeriod(ctx context.Context, p period.Period) ([]DailyRecord, error)
}

// ArchiveStore loads and saves the whole archive document
type ArchiveStore interface {
	// Load returns an empty Archive when nothing was saved yet
	Load(ctx context.Context) (Archive, error)
	Save(ctx context.Context, a Archive) error
}

// Mirror receives the finalized records after a successful save (optional)
type Mirror interface {
	Mirror(ctx context.Context, records []DailyRecord) (int, error)
}
