// Package service provides the harvest service: resume computation, the month by month
// fetch loop and the final ordering of the archive
package service

import (
	"context"
	"time"

	"forumstats/internal/core/period"
	perr "forumstats/internal/platform/errors"
	"forumstats/internal/platform/logger"
	"forumstats/internal/services/harvest/domain"
	"forumstats/internal/services/harvest/guardrails"
)

// Config holds configuration options for the harvest service
type Config struct {
	// Earliest is where an empty archive starts; zero -> period.Earliest
	Earliest period.Period

	// RequestDelay is the pause between two period requests
	RequestDelay time.Duration

	// Timeouts applied via guardrails
	FetchTimeout time.Duration
	RunTimeout   time.Duration
}

// Phase is a step of a whole run, used for log context
type Phase string

const (
	PhaseLoading     Phase = "loading"
	PhaseReconciling Phase = "reconciling"
	PhaseFetching    Phase = "fetching"
	PhaseFinalizing  Phase = "finalizing"
	PhaseSaving      Phase = "saving"
	PhaseMirroring   Phase = "mirroring"
	PhaseDone        Phase = "done"
)

// Service implements domain.RunnerPort
type Service struct {
	Fetch  domain.Fetcher
	Store  domain.ArchiveStore
	Mirror domain.Mirror // optional
	Cfg    Config

	// Now is the wall clock used to decide the last month to fetch
	Now func() time.Time

	// Log is the base logger; nil -> process root
	Log *logger.Logger
}

// New constructs the harvest service
func New(f domain.Fetcher, store domain.ArchiveStore, cfg Config, mirror domain.Mirror) *Service {
	if f == nil {
		panic("harvest.Service requires a non nil Fetcher")
	}
	if store == nil {
		panic("harvest.Service requires a non nil ArchiveStore")
	}
	if cfg.Earliest == (period.Period{}) {
		cfg.Earliest = period.Earliest
	}
	return &Service{
		Fetch:  f,
		Store:  store,
		Mirror: mirror,
		Cfg:    cfg,
		Now:    time.Now,
	}
}

// Run loads the archive, fetches the missing tail, and saves the result.
// A failed period does not fail the run: what was fetched before it is saved and
// the cause is reported in Report.Err. When not even the resume month came back the
// archive is left as it was. Load, resume and save failures are returned
func (s *Service) Run(ctx context.Context) (domain.Report, error) {
	log := s.log(ctx)

	log.Debug().Str("phase", string(PhaseLoading)).Msg("harvest: loading archive")
	archive, err := s.Store.Load(ctx)
	if err != nil {
		return domain.Report{}, err
	}

	log.Debug().Str("phase", string(PhaseReconciling)).Int("records", len(archive.Daily)).Msg("harvest: reconciling")
	recs, rep, err := s.Reconcile(ctx, archive.Daily)
	if err != nil {
		return rep, err
	}

	if rep.Periods == 0 {
		rep.Final = len(archive.Daily)
		log.Warn().Str("phase", string(PhaseDone)).
			Str("resume", rep.Resume.String()).
			Str("stop", string(rep.Stop)).
			AnErr("fetch_err", rep.Err).
			Msg("harvest: nothing fetched; archive left untouched")
		return rep, nil
	}

	log.Debug().Str("phase", string(PhaseFinalizing)).Int("records", len(recs)).Msg("harvest: finalizing")
	archive.Daily = Finalize(recs)
	rep.Final = len(archive.Daily)

	// the operator may have interrupted the loop; saving still has to happen
	saveCtx := context.WithoutCancel(ctx)

	log.Debug().Str("phase", string(PhaseSaving)).Msg("harvest: saving archive")
	if err := s.Store.Save(saveCtx, archive); err != nil {
		return rep, err
	}

	if s.Mirror != nil {
		n, err := s.Mirror.Mirror(saveCtx, archive.Daily)
		if err != nil {
			log.Warn().Err(err).Str("phase", string(PhaseMirroring)).Msg("harvest: mirror failed; archive file is still current")
		} else {
			log.Debug().Str("phase", string(PhaseMirroring)).Int("rows", n).Msg("harvest: mirrored")
		}
	}

	ev := log.Info()
	if rep.Stop == domain.StopFetchError {
		ev = log.Error().Err(rep.Err)
	}
	ev.Str("phase", string(PhaseDone)).
		Str("resume", rep.Resume.String()).
		Int("periods", rep.Periods).
		Int("kept", rep.Kept).
		Int("truncated", rep.Truncated).
		Int("fetched", rep.Fetched).
		Int("final", rep.Final).
		Str("stop", string(rep.Stop)).
		Msg("harvest: run complete")
	return rep, nil
}

// Reconcile drops the newest month of existing, then fetches every month from there up to
// the current one. It returns whatever was accumulated when the loop stops; only a malformed
// date in existing is an error. The dropped month is only given up once its refetch
// succeeded, so a loop that fetched nothing returns existing as is
func (s *Service) Reconcile(ctx context.Context, existing []domain.DailyRecord) ([]domain.DailyRecord, domain.Report, error) {
	kept, resume, truncated, err := ResumePoint(existing, s.Cfg.Earliest)
	if err != nil {
		return nil, domain.Report{}, err
	}
	rep := domain.Report{Resume: resume, Kept: len(kept), Truncated: truncated}

	end := period.Of(s.now())
	if resume.After(end) {
		// clock behind the archive; still refetch the truncated month
		end = resume
	}

	runCtx, runCancel := guardrails.WithRun(ctx, s.timeouts())
	defer runCancel()

	acc := kept
	rep.Stop = domain.StopCaughtUp
	for p := resume; !p.After(end); p = p.Next() {
		if p != resume {
			if err := sleepCtx(runCtx, s.Cfg.RequestDelay); err != nil {
				rep.Stop = domain.StopCancelled
				break
			}
		}
		if runCtx.Err() != nil {
			rep.Stop = domain.StopCancelled
			break
		}

		recs, err := s.fetchPeriod(runCtx, p)
		if err != nil {
			s.log(ctx).Error().Err(err).Str("period", p.String()).
				Str("code", perr.CodeOf(err).String()).Msg("harvest: fetch failed; keeping earlier periods")
			rep.Stop = domain.StopFetchError
			rep.Err = err
			break
		}
		acc = append(acc, recs...)
		rep.Periods++
		rep.Fetched += len(recs)
		rep.Last = p
	}
	if rep.Periods == 0 {
		rep.Kept, rep.Truncated = len(existing), 0
		return existing, rep, nil
	}
	return acc, rep, nil
}

func (s *Service) fetchPeriod(ctx context.Context, p period.Period) ([]domain.DailyRecord, error) {
	fctx, cancel := guardrails.ForFetch(ctx, s.timeouts())
	defer cancel()

	t0 := time.Now()
	recs, err := s.Fetch.FetchPeriod(fctx, p)
	if err != nil {
		return nil, perr.WithOp(err, "fetch "+p.Compact())
	}
	s.log(ctx).Debug().
		Str("phase", string(PhaseFetching)).
		Str("period", p.String()).
		Int("records", len(recs)).
		Dur("elapsed", time.Since(t0)).
		Msg("harvest: period fetched")
	return recs, nil
}

func (s *Service) timeouts() guardrails.Timeouts {
	return guardrails.Timeouts{Run: s.Cfg.RunTimeout, Fetch: s.Cfg.FetchTimeout}
}

func (s *Service) log(ctx context.Context) *logger.Logger { return logger.From(ctx, s.Log) }

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
