package smfstats

import (
	"context"
	"time"

	"forumstats/internal/core/period"
	perr "forumstats/internal/platform/errors"
	"forumstats/internal/services/harvest/domain"

	"github.com/go-resty/resty/v2"
)

// DefaultEndpoint is the forum the archive was started against
const DefaultEndpoint = "https://forum.blockland.us/index.php"

// CollectedAtLayout matches the timestamps already present in existing archives.
// A whole second drops the fraction, see CollectedAt
const (
	CollectedAtLayout      = "2006-01-02T15:04:05.000000"
	collectedAtWholeSecond = "2006-01-02T15:04:05"
)

// CollectedAt renders t as a naive local timestamp with microseconds, leaving the
// fraction out when it is zero
func CollectedAt(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(collectedAtWholeSecond)
	}
	return t.Format(CollectedAtLayout)
}

// Options configures the client
type Options struct {
	Endpoint  string
	UserAgent string
	// Timeout caps a single request at the HTTP client level; 0 -> none
	Timeout time.Duration
}

// Client implements domain.Fetcher against the forum stats endpoint
type Client struct {
	http     *resty.Client
	endpoint string
	now      func() time.Time
}

// New builds a Client; an empty endpoint falls back to DefaultEndpoint
func New(opts Options) *Client {
	ep := opts.Endpoint
	if ep == "" {
		ep = DefaultEndpoint
	}
	hc := resty.New()
	if opts.UserAgent != "" {
		hc.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Timeout > 0 {
		hc.SetTimeout(opts.Timeout)
	}
	return &Client{http: hc, endpoint: ep, now: time.Now}
}

// Params returns the query parameters selecting p
func Params(p period.Period) map[string]string {
	return map[string]string{
		"action": "stats",
		"xml":    "1",
		"expand": p.Compact(),
	}
}

// FetchPeriod implements domain.Fetcher. Every record from one call shares one collected_at,
// taken before the request goes out
func (c *Client) FetchPeriod(ctx context.Context, p period.Period) ([]domain.DailyRecord, error) {
	collectedAt := CollectedAt(c.now())

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(Params(p)).
		Get(c.endpoint)
	if err != nil {
		return nil, perr.Transportf(err, "smfstats: get %s", p.Compact())
	}
	if res.IsError() {
		return nil, perr.Transportf(nil, "smfstats: get %s: unexpected status %d", p.Compact(), res.StatusCode())
	}

	days, err := ParseDays(res.Body())
	if err != nil {
		return nil, perr.WithOp(err, "parse "+p.Compact())
	}
	out := make([]domain.DailyRecord, 0, len(days))
	for _, d := range days {
		out = append(out, d.Record(collectedAt))
	}
	return out, nil
}
