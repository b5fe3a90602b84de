package module

import (
	"time"

	"forumstats/internal/adapters/archive/jsonfile"
	"forumstats/internal/adapters/ingest/smfstats"
	"forumstats/internal/core/period"
	"forumstats/internal/platform/config"
	perr "forumstats/internal/platform/errors"

	"github.com/go-playground/validator/v10"
)

// Options holds configuration options for the harvest module.
// Defaults reproduce a plain no-argument run
type Options struct {
	EndpointURL  string        `validate:"required,url"`
	RequestDelay time.Duration `validate:"min=0"`
	ArchivePath  string        `validate:"required"`
	Earliest     period.Period
	FetchTimeout time.Duration `validate:"min=0"`
	RunTimeout   time.Duration `validate:"min=0"`
	UserAgent    string
	MirrorChunk  int `validate:"min=0"`
}

// FromConfig reads the harvest options from config with CORE_HARVEST_ prefix
func FromConfig(cfg config.Conf) (Options, error) {
	hv := cfg.Prefix("CORE_HARVEST_")
	earliest, err := period.Parse(hv.MayString("EARLIEST", period.Earliest.Compact()))
	if err != nil {
		return Options{}, perr.WithField(err, "CORE_HARVEST_EARLIEST")
	}
	endpoint, err := hv.MayURL("ENDPOINT_URL", smfstats.DefaultEndpoint)
	if err != nil {
		return Options{}, err
	}
	o := Options{
		EndpointURL:  endpoint,
		RequestDelay: hv.MayDuration("DELAY", 500*time.Millisecond),
		ArchivePath:  hv.MayString("ARCHIVE_PATH", jsonfile.DefaultPath),
		Earliest:     earliest,
		FetchTimeout: hv.MayDuration("FETCH_TIMEOUT", 60*time.Second),
		RunTimeout:   hv.MayDuration("RUN_TIMEOUT", 0),
		UserAgent:    hv.MayString("USER_AGENT", "forumstats-harvest/1"),
		MirrorChunk:  hv.MayInt("MIRROR_CHUNK", 1000),
	}
	return o, o.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the options before anything touches the network or disk
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return perr.WithField(perr.InvalidArgf("harvest: option %s fails %q", verrs[0].Field(), verrs[0].Tag()), verrs[0].Field())
		}
		return perr.Wrap(err, perr.ErrorCodeInvalidArgument, "harvest: validate options")
	}
	return nil
}
