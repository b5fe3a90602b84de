// Package module provides the harvest module implementation
package module

import (
	"forumstats/internal/adapters/archive/jsonfile"
	"forumstats/internal/adapters/ingest/smfstats"
	"forumstats/internal/modkit"
	"forumstats/internal/services/harvest/domain"
	"forumstats/internal/services/harvest/repo"
	"forumstats/internal/services/harvest/service"
)

// Ports defines the harvest module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the harvest module
type Module struct {
	opts  Options
	ports Ports
}

// New wires the forum client, the archive file and the optional Postgres mirror.
// The service logs through deps.Log
func New(deps modkit.Deps, opts Options) *Module {
	fetch := smfstats.New(smfstats.Options{
		Endpoint:  opts.EndpointURL,
		UserAgent: opts.UserAgent,
	})
	store := jsonfile.New(opts.ArchivePath)

	var mirror domain.Mirror
	if deps.PG != nil && deps.PG.Pool != nil {
		mirror = repo.NewPG(deps.PG.Pool, opts.MirrorChunk)
	}

	svc := service.New(fetch, store, service.Config{
		Earliest:     opts.Earliest,
		RequestDelay: opts.RequestDelay,
		FetchTimeout: opts.FetchTimeout,
		RunTimeout:   opts.RunTimeout,
	}, mirror)
	log := deps.Log.With().Str("module", "harvest").Logger()
	svc.Log = &log

	m := &Module{opts: opts}
	m.ports = Ports{Runner: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "harvest" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Options returns the options the module was built with
func (m *Module) Options() Options { return m.opts }
