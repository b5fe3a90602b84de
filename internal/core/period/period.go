// Package period models a calendar month, the unit the forum statistics endpoint is addressed by
package period

import (
	"fmt"
	"strconv"
	"time"

	perr "forumstats/internal/platform/errors"
)

// Period is an immutable (year, month) pair
type Period struct {
	Year  int
	Month int
}

// Earliest is the first month the forum publishes statistics for
var Earliest = Period{Year: 2009, Month: 8}

// New validates and builds a Period
func New(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if !p.Valid() {
		return Period{}, perr.MalformedPeriodf("period: year %d month %d out of range", year, month)
	}
	return p, nil
}

// Of returns the period containing t, in t's location
func Of(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month())}
}

// Parse accepts YYYYMM or YYYY-MM. The year is always the first four characters
func Parse(s string) (Period, error) {
	var ys, ms string
	switch {
	case len(s) == 6:
		ys, ms = s[:4], s[4:]
	case len(s) == 7 && s[4] == '-':
		ys, ms = s[:4], s[5:]
	default:
		return Period{}, perr.MalformedPeriodf("period: %q is not YYYYMM or YYYY-MM", s)
	}
	y, err := atoiDigits(ys)
	if err != nil {
		return Period{}, perr.WithField(perr.MalformedPeriodf("period: bad year in %q", s), "year")
	}
	m, err := atoiDigits(ms)
	if err != nil {
		return Period{}, perr.WithField(perr.MalformedPeriodf("period: bad month in %q", s), "month")
	}
	return New(y, m)
}

// FromDate extracts the period of an ISO YYYY-MM-DD date string
func FromDate(date string) (Period, error) {
	if len(date) < 7 {
		return Period{}, perr.MalformedPeriodf("period: date %q too short", date)
	}
	return Parse(date[:7])
}

// atoiDigits rejects signs and spaces that strconv.Atoi would accept
func atoiDigits(s string) (int, error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// Valid reports whether the period can be rendered at fixed width
func (p Period) Valid() bool {
	return p.Year >= 1 && p.Year <= 9999 && p.Month >= 1 && p.Month <= 12
}

// Compact renders zero padded YYYYMM. Fixed width keeps string order equal to period order
func (p Period) Compact() string { return fmt.Sprintf("%04d%02d", p.Year, p.Month) }

// String renders YYYY-MM, the prefix of every date inside the period
func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// Compare returns -1, 0 or +1 ordering by (year, month)
func (p Period) Compare(o Period) int {
	switch {
	case p.Year < o.Year:
		return -1
	case p.Year > o.Year:
		return 1
	case p.Month < o.Month:
		return -1
	case p.Month > o.Month:
		return 1
	}
	return 0
}

// After reports whether p sorts strictly after o
func (p Period) After(o Period) bool { return p.Compare(o) > 0 }

// Next returns the following month, rolling December into January
func (p Period) Next() Period {
	if p.Month >= 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Contains reports whether an ISO date string falls inside p
func (p Period) Contains(date string) bool {
	return len(date) >= 7 && date[:7] == p.String()
}
