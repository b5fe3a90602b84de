package smfstats

import (
	"bytes"
	"encoding/xml"
	"io"
	"time"

	perr "forumstats/internal/platform/errors"
	"forumstats/internal/services/harvest/domain"

	"golang.org/x/net/html/charset"
)

// Day is one <days> element
type Day struct {
	Date              string
	NewTopics         string
	NewPosts          string
	NewMembers        string
	MostMembersOnline string
	Hits              string
}

// Record stamps d with the fetch time
func (d Day) Record(collectedAt string) domain.DailyRecord {
	return domain.DailyRecord{
		Date:              d.Date,
		NewTopics:         d.NewTopics,
		NewPosts:          d.NewPosts,
		NewMembers:        d.NewMembers,
		MostMembersOnline: d.MostMembersOnline,
		Hits:              d.Hits,
		CollectedAt:       collectedAt,
	}
}

// ParseDays returns every <days> element in document order, wherever it is nested.
// A document without any is a month with no data, not an error
func ParseDays(body []byte) ([]Day, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		out  []Day
		root bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, perr.MalformedResponsef(err, "smfstats: bad xml")
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		root = true
		if se.Name.Local != "days" {
			continue
		}
		d, err := dayFrom(se)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if !root {
		return nil, perr.MalformedResponsef(nil, "smfstats: response has no xml document")
	}
	return out, nil
}

func dayFrom(se xml.StartElement) (Day, error) {
	attrs := make(map[string]string, len(se.Attr))
	for _, a := range se.Attr {
		attrs[a.Name.Local] = a.Value
	}
	get := func(name string) (string, error) {
		v, ok := attrs[name]
		if !ok {
			return "", perr.WithField(perr.MalformedResponsef(nil, "smfstats: days element missing %s", name), name)
		}
		return v, nil
	}

	var (
		d   Day
		err error
	)
	fields := []struct {
		name string
		dst  *string
	}{
		{"date", &d.Date},
		{"new_topics", &d.NewTopics},
		{"new_posts", &d.NewPosts},
		{"new_members", &d.NewMembers},
		{"most_members_online", &d.MostMembersOnline},
		{"hits", &d.Hits},
	}
	for _, f := range fields {
		if *f.dst, err = get(f.name); err != nil {
			return Day{}, err
		}
	}
	if _, err := time.Parse(time.DateOnly, d.Date); err != nil {
		return Day{}, perr.WithField(perr.MalformedResponsef(err, "smfstats: bad date %q", d.Date), "date")
	}
	return d, nil
}
