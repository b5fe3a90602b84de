// Package modkit provides module wiring and core deps
package modkit

import (
	"forumstats/internal/platform/config"
	"forumstats/internal/platform/logger"
	"forumstats/internal/platform/store/pg"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  *pg.PG // nil when no mirror database is configured
}
