package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"forumstats/internal/core/version"
	"forumstats/internal/modkit"
	"forumstats/internal/modkit/module"
	"forumstats/internal/platform/config"
	perr "forumstats/internal/platform/errors"
	"forumstats/internal/platform/logger"
	"forumstats/internal/platform/store/pg"
	"forumstats/internal/services/harvest/domain"
	harvestmod "forumstats/internal/services/harvest/module"

	"github.com/google/uuid"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := config.New()
	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithRun(ctx, uuid.NewString())
	log := logger.From(ctx, logger.Named("cmd"))
	log.Info().Object("build", version.Info()).Msg("forumstats-harvest starting")

	opts, err := harvestmod.FromConfig(root)
	if err != nil {
		log.Error().Err(err).Msg("bad harvest options")
		return 2
	}

	deps := modkit.Deps{Cfg: root, Log: *l}

	// the Postgres mirror is optional; without a URL only the JSON archive is written
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	if url := pgCfg.MayString("DBURL", ""); url != "" && pgCfg.MayBool("ENABLED", true) {
		db, err := pg.Open(ctx, pg.Config{
			URL:      url,
			MaxConns: int32(pgCfg.MayInt("MAX_CONNS", 2)),
			AppName:  "forumstats-harvest",
		}, nil)
		if err != nil {
			log.Error().Err(err).Msg("pg.Open failed")
			return 1
		}
		defer db.Close()
		deps.PG = db
	}

	hm := harvestmod.New(deps, opts)
	runner := module.MustPortsOf[domain.RunnerPort](hm)

	rep, err := runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).AnErr("root", perr.Root(err)).Msg("harvest failed")
		return 1
	}
	if rep.Stop == domain.StopFetchError {
		return 1
	}
	return 0
}
