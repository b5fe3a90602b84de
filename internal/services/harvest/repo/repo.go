// Package repo mirrors the finalized archive into Postgres
package repo

import (
	"context"

	perr "forumstats/internal/platform/errors"
	"forumstats/internal/services/harvest/domain"

	"github.com/jackc/pgx/v5"
)

// TxBeginner is the slice of pgxpool.Pool the mirror needs
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS forum_daily_statistics (
	date                date PRIMARY KEY,
	new_topics          text NOT NULL,
	new_posts           text NOT NULL,
	new_members         text NOT NULL,
	most_members_online text NOT NULL,
	hits                text NOT NULL,
	collected_at        text NOT NULL
)`

const upsertSQL = `
INSERT INTO forum_daily_statistics
	(date, new_topics, new_posts, new_members, most_members_online, hits, collected_at)
VALUES ($1::date, $2, $3, $4, $5, $6, $7)
ON CONFLICT (date) DO UPDATE SET
	new_topics          = EXCLUDED.new_topics,
	new_posts           = EXCLUDED.new_posts,
	new_members         = EXCLUDED.new_members,
	most_members_online = EXCLUDED.most_members_online,
	hits                = EXCLUDED.hits,
	collected_at        = EXCLUDED.collected_at
WHERE forum_daily_statistics.collected_at IS DISTINCT FROM EXCLUDED.collected_at`

// PGMirror implements domain.Mirror
type PGMirror struct {
	db    TxBeginner
	chunk int
}

// NewPG returns a mirror writing through db; chunk <= 0 -> 1000 rows per batch
func NewPG(db TxBeginner, chunk int) *PGMirror {
	if chunk <= 0 {
		chunk = 1000
	}
	return &PGMirror{db: db, chunk: chunk}
}

// Mirror upserts every record in one transaction and returns how many rows changed.
// Rows whose collected_at is unchanged are left alone
func (m *PGMirror) Mirror(ctx context.Context, records []domain.DailyRecord) (int, error) {
	var changed int
	err := pgx.BeginFunc(ctx, m.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return err
		}
		for i := 0; i < len(records); i += m.chunk {
			end := min(i+m.chunk, len(records))
			n, err := upsertBatch(ctx, tx, records[i:end])
			changed += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// rolled back; nothing from this call is in the table
		return 0, perr.Persistencef(err, "repo: mirror %d records", len(records))
	}
	return changed, nil
}

func upsertBatch(ctx context.Context, tx pgx.Tx, recs []domain.DailyRecord) (n int, err error) {
	b := &pgx.Batch{}
	for _, r := range recs {
		b.Queue(upsertSQL, r.Date, r.NewTopics, r.NewPosts, r.NewMembers, r.MostMembersOnline, r.Hits, r.CollectedAt)
	}
	br := tx.SendBatch(ctx, b)
	defer func() {
		if cerr := br.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for range recs {
		tag, err := br.Exec()
		if err != nil {
			return n, err
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}
