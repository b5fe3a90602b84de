package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"forumstats/internal/adapters/archive/jsonfile"
	"forumstats/internal/core/period"
	perr "forumstats/internal/platform/errors"
	"forumstats/internal/services/harvest/domain"

	"github.com/google/go-cmp/cmp"
)

// fakeFetcher serves canned months and records every request
type fakeFetcher struct {
	months    map[period.Period][]domain.DailyRecord
	fail      map[period.Period]error
	requested []period.Period
	after     func(n int) // called after the nth successful fetch
}

func (f *fakeFetcher) FetchPeriod(_ context.Context, p period.Period) ([]domain.DailyRecord, error) {
	f.requested = append(f.requested, p)
	if err := f.fail[p]; err != nil {
		return nil, err
	}
	out := f.months[p]
	if f.after != nil {
		f.after(len(f.requested))
	}
	return out, nil
}

// downFetcher fails every request like a forum outage
type downFetcher struct{ calls int }

func (d *downFetcher) FetchPeriod(_ context.Context, p period.Period) ([]domain.DailyRecord, error) {
	d.calls++
	return nil, perr.Transportf(errors.New("connection refused"), "get %s", p.Compact())
}

type memStore struct {
	archive domain.Archive
	loadErr error
	saveErr error
	saved   *domain.Archive
}

func (m *memStore) Load(context.Context) (domain.Archive, error) { return m.archive, m.loadErr }

func (m *memStore) Save(_ context.Context, a domain.Archive) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = &a
	return nil
}

type recMirror struct {
	got []domain.DailyRecord
	err error
}

func (r *recMirror) Mirror(_ context.Context, recs []domain.DailyRecord) (int, error) {
	r.got = recs
	return len(recs), r.err
}

// month builds n consecutive days of p stamped with tag
func month(p period.Period, n int, tag string) []domain.DailyRecord {
	out := make([]domain.DailyRecord, 0, n)
	for d := 1; d <= n; d++ {
		out = append(out, domain.DailyRecord{
			Date:              fmt.Sprintf("%s-%02d", p.String(), d),
			NewTopics:         "1",
			NewPosts:          "2",
			NewMembers:        "3",
			MostMembersOnline: "4",
			Hits:              "5",
			CollectedAt:       tag,
		})
	}
	return out
}

func dates(recs []domain.DailyRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Date
	}
	return out
}

func newSvc(f domain.Fetcher, st domain.ArchiveStore, now time.Time) *Service {
	s := New(f, st, Config{}, nil)
	s.Now = func() time.Time { return now }
	return s
}

func p(y, m int) period.Period { return period.Period{Year: y, Month: m} }

func TestReconcile_EmptyArchiveStartsAtEarliest(t *testing.T) {
	f := &fakeFetcher{months: map[period.Period][]domain.DailyRecord{p(2009, 8): month(p(2009, 8), 31, "a")}}
	s := newSvc(f, &memStore{}, time.Date(2009, 10, 3, 0, 0, 0, 0, time.UTC))

	recs, rep, err := s.Reconcile(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Resume != period.Earliest || rep.Truncated != 0 {
		t.Fatalf("resume = %v truncated = %d", rep.Resume, rep.Truncated)
	}
	want := []period.Period{p(2009, 8), p(2009, 9), p(2009, 10)}
	if diff := cmp.Diff(want, f.requested); diff != "" {
		t.Fatalf("requested periods (-want +got):\n%s", diff)
	}
	if len(recs) != 31 || rep.Periods != 3 || rep.Stop != domain.StopCaughtUp || rep.Last != p(2009, 10) {
		t.Fatalf("records = %d report = %+v", len(recs), rep)
	}
}

func TestReconcile_EmptyPeriodDoesNotStopLoop(t *testing.T) {
	f := &fakeFetcher{months: map[period.Period][]domain.DailyRecord{
		p(2011, 1): month(p(2011, 1), 2, "a"),
		p(2011, 3): month(p(2011, 3), 2, "a"),
	}}
	s := newSvc(f, &memStore{}, time.Date(2011, 3, 20, 0, 0, 0, 0, time.UTC))

	existing := month(p(2011, 1), 5, "old")
	recs, rep, err := s.Reconcile(context.Background(), existing)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(f.requested) != 3 || rep.Stop != domain.StopCaughtUp {
		t.Fatalf("requested = %v stop = %s", f.requested, rep.Stop)
	}
	if got := dates(recs); len(got) != 4 || got[0] != "2011-01-01" || got[3] != "2011-03-02" {
		t.Fatalf("dates = %v", got)
	}
}

func TestReconcile_ArchiveAheadOfClockStillRefetchesTruncatedMonth(t *testing.T) {
	f := &fakeFetcher{months: map[period.Period][]domain.DailyRecord{p(2030, 1): month(p(2030, 1), 3, "new")}}
	s := newSvc(f, &memStore{}, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))

	recs, rep, err := s.Reconcile(context.Background(), month(p(2030, 1), 2, "old"))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(f.requested) != 1 || f.requested[0] != p(2030, 1) || len(recs) != 3 || rep.Truncated != 2 {
		t.Fatalf("requested = %v records = %d report = %+v", f.requested, len(recs), rep)
	}
}

func TestReconcile_MalformedDateIsFatalBeforeFetching(t *testing.T) {
	f := &fakeFetcher{}
	s := newSvc(f, &memStore{}, time.Now())

	_, _, err := s.Reconcile(context.Background(), []domain.DailyRecord{{Date: "20x0-01-01"}})
	if !perr.IsCode(err, perr.ErrorCodeMalformedPeriod) {
		t.Fatalf("want malformed_period, got %v", err)
	}
	if len(f.requested) != 0 {
		t.Fatalf("fetched despite malformed archive: %v", f.requested)
	}
}

func TestReconcile_FetchErrorKeepsEarlierPeriods(t *testing.T) {
	boom := perr.Transportf(errors.New("dial tcp: refused"), "get 200910")
	f := &fakeFetcher{
		months: map[period.Period][]domain.DailyRecord{
			p(2009, 8): month(p(2009, 8), 31, "a"),
			p(2009, 9): month(p(2009, 9), 30, "a"),
		},
		fail: map[period.Period]error{p(2009, 10): boom},
	}
	s := newSvc(f, &memStore{}, time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC))

	recs, rep, err := s.Reconcile(context.Background(), nil)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Stop != domain.StopFetchError || !perr.IsCode(rep.Err, perr.ErrorCodeTransport) {
		t.Fatalf("report = %+v", rep)
	}
	if len(recs) != 61 || rep.Periods != 2 || len(f.requested) != 3 {
		t.Fatalf("records = %d periods = %d requested = %v", len(recs), rep.Periods, f.requested)
	}
}

func TestReconcile_FailedResumeMonthKeepsItsRecords(t *testing.T) {
	existing := append(month(p(2020, 4), 30, "old"), month(p(2020, 5), 10, "old")...)
	s := newSvc(&downFetcher{}, &memStore{}, time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC))

	recs, rep, err := s.Reconcile(context.Background(), existing)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Stop != domain.StopFetchError || rep.Periods != 0 || rep.Truncated != 0 || rep.Kept != 40 {
		t.Fatalf("report = %+v", rep)
	}
	if diff := cmp.Diff(existing, recs); diff != "" {
		t.Fatalf("records changed (-want +got):\n%s", diff)
	}
}

func TestReconcile_CancelBeforeFirstFetchKeepsExisting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{}
	existing := month(p(2020, 5), 10, "old")
	s := newSvc(f, &memStore{}, time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC))

	recs, rep, err := s.Reconcile(ctx, existing)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Stop != domain.StopCancelled || len(f.requested) != 0 || len(recs) != 10 || rep.Truncated != 0 {
		t.Fatalf("records = %d report = %+v requested = %v", len(recs), rep, f.requested)
	}
}

func TestReconcile_CancelBetweenPeriods(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{months: map[period.Period][]domain.DailyRecord{
		p(2020, 5): month(p(2020, 5), 31, "a"),
		p(2020, 6): month(p(2020, 6), 30, "a"),
		p(2020, 7): month(p(2020, 7), 31, "a"),
	}}
	f.after = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	s := newSvc(f, &memStore{}, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))

	existing := append(month(p(2020, 4), 30, "old"), month(p(2020, 5), 10, "old")...)
	recs, rep, err := s.Reconcile(ctx, existing)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Stop != domain.StopCancelled || rep.Periods != 2 || len(f.requested) != 2 {
		t.Fatalf("report = %+v requested = %v", rep, f.requested)
	}
	if len(recs) != 30+31+30 || rep.Truncated != 10 {
		t.Fatalf("records = %d truncated = %d", len(recs), rep.Truncated)
	}
}

func TestReconcile_DelayBetweenRequests(t *testing.T) {
	f := &fakeFetcher{}
	s := newSvc(f, &memStore{}, time.Date(2009, 10, 1, 0, 0, 0, 0, time.UTC))
	s.Cfg.RequestDelay = 20 * time.Millisecond

	t0 := time.Now()
	if _, _, err := s.Reconcile(context.Background(), nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	// three periods -> two pauses
	if el := time.Since(t0); el < 40*time.Millisecond {
		t.Fatalf("elapsed %v, want at least two delays", el)
	}
}

func TestRun_FreshArchiveFirstMonthThenHalt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{months: map[period.Period][]domain.DailyRecord{p(2009, 8): month(p(2009, 8), 31, "2026-10-15T09:00:00.000001")}}
	f.after = func(int) { cancel() }
	st := &memStore{}
	s := newSvc(f, st, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))

	rep, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.saved == nil {
		t.Fatalf("archive not saved")
	}
	got := st.saved.Daily
	if len(got) != 31 || got[0].Date != "2009-08-01" || got[30].Date != "2009-08-31" {
		t.Fatalf("saved %d records: %v", len(got), dates(got))
	}
	for _, r := range got {
		if r.CollectedAt != got[0].CollectedAt {
			t.Fatalf("collected_at differs within one period")
		}
	}
	if rep.Stop != domain.StopCancelled || rep.Final != 31 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestRun_IncompleteTrailingMonthIsRefetched(t *testing.T) {
	var existing []domain.DailyRecord
	for m := 1; m <= 4; m++ {
		existing = append(existing, month(p(2020, m), 28, "old")...)
	}
	existing = append(existing, month(p(2020, 5), 10, "old")...)

	f := &fakeFetcher{months: map[period.Period][]domain.DailyRecord{
		p(2020, 5): month(p(2020, 5), 30, "new"),
		p(2020, 6): month(p(2020, 6), 12, "new"),
	}}
	st := &memStore{archive: domain.Archive{Daily: existing}}
	mir := &recMirror{}
	s := New(f, st, Config{}, mir)
	s.Now = func() time.Time { return time.Date(2020, 6, 12, 18, 0, 0, 0, time.UTC) }

	rep, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Resume != p(2020, 5) || rep.Truncated != 10 || rep.Kept != 4*28 {
		t.Fatalf("report = %+v", rep)
	}
	got := st.saved.Daily
	if len(got) != 4*28+30+12 {
		t.Fatalf("saved %d records", len(got))
	}
	seen := map[string]bool{}
	for i, r := range got {
		if seen[r.Date] {
			t.Fatalf("duplicate date %s", r.Date)
		}
		seen[r.Date] = true
		if i > 0 && got[i-1].Date >= r.Date {
			t.Fatalf("not sorted at %d: %s >= %s", i, got[i-1].Date, r.Date)
		}
		want := "old"
		if r.Date >= "2020-05" {
			want = "new"
		}
		if r.CollectedAt != want {
			t.Fatalf("%s collected_at = %s, want %s", r.Date, r.CollectedAt, want)
		}
	}
	if len(mir.got) != len(got) {
		t.Fatalf("mirror got %d records", len(mir.got))
	}
}

func TestRun_RepeatedOutageLeavesArchiveFileIdentical(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	store := jsonfile.New(path)

	var existing []domain.DailyRecord
	for m := 1; m <= 5; m++ {
		existing = append(existing, month(p(2020, m), 28, "old")...)
	}
	if err := store.Save(context.Background(), domain.Archive{Daily: existing}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}

	down := &downFetcher{}
	mir := &recMirror{}
	s := New(down, store, Config{}, mir)
	s.Now = func() time.Time { return time.Date(2020, 8, 1, 0, 0, 0, 0, time.UTC) }

	for run := 1; run <= 3; run++ {
		rep, err := s.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if rep.Stop != domain.StopFetchError || rep.Final != len(existing) {
			t.Fatalf("run %d report = %+v", run, rep)
		}
		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("run %d read: %v", run, err)
		}
		if string(after) != string(before) {
			t.Fatalf("run %d changed the archive file", run)
		}
	}
	if down.calls != 3 {
		t.Fatalf("fetches = %d, want one per run", down.calls)
	}
	if mir.got != nil {
		t.Fatalf("mirror ran without anything fetched")
	}
}

func TestRun_LoadFailureAbortsBeforeFetch(t *testing.T) {
	f := &fakeFetcher{}
	st := &memStore{loadErr: perr.Persistencef(errors.New("permission denied"), "read")}
	s := newSvc(f, st, time.Now())

	if _, err := s.Run(context.Background()); !perr.IsCode(err, perr.ErrorCodePersistence) {
		t.Fatalf("want persistence error, got %v", err)
	}
	if len(f.requested) != 0 || st.saved != nil {
		t.Fatalf("run continued after load failure")
	}
}

func TestRun_SaveFailureIsReturned(t *testing.T) {
	st := &memStore{saveErr: perr.Persistencef(errors.New("disk full"), "write")}
	s := newSvc(&fakeFetcher{}, st, time.Date(2009, 8, 2, 0, 0, 0, 0, time.UTC))

	if _, err := s.Run(context.Background()); !perr.IsCode(err, perr.ErrorCodePersistence) {
		t.Fatalf("want persistence error, got %v", err)
	}
}

func TestRun_MirrorFailureDoesNotFailRun(t *testing.T) {
	st := &memStore{}
	s := New(&fakeFetcher{}, st, Config{}, &recMirror{err: errors.New("pg down")})
	s.Now = func() time.Time { return time.Date(2009, 8, 2, 0, 0, 0, 0, time.UTC) }

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.saved == nil {
		t.Fatalf("archive not saved")
	}
}

func TestNew_PanicsOnMissingDeps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	New(nil, &memStore{}, Config{}, nil)
}
