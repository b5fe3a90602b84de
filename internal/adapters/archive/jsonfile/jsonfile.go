// Package jsonfile keeps the archive as one JSON document on local disk
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	perr "forumstats/internal/platform/errors"
	"forumstats/internal/services/harvest/domain"
)

// DefaultPath is where the archive lives when nothing else is configured
const DefaultPath = "./data.json"

// Store implements domain.ArchiveStore
type Store struct {
	path string
}

// New returns a Store for path; empty path -> DefaultPath
func New(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the file the store reads and writes
func (s *Store) Path() string { return s.path }

// Load reads the whole document. A missing file is an empty archive; anything else that
// stops the file from being read or decoded is a persistence error
func (s *Store) Load(_ context.Context) (domain.Archive, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Archive{}, nil
	}
	if err != nil {
		return domain.Archive{}, perr.Persistencef(err, "jsonfile: read %s", s.path)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return domain.Archive{}, perr.Persistencef(err, "jsonfile: decode %s", s.path)
	}

	var a domain.Archive
	if raw, ok := doc[domain.DailyStatisticsKey]; ok {
		if err := json.Unmarshal(raw, &a.Daily); err != nil {
			return domain.Archive{}, perr.WithField(
				perr.Persistencef(err, "jsonfile: decode %s", domain.DailyStatisticsKey), domain.DailyStatisticsKey)
		}
		delete(doc, domain.DailyStatisticsKey)
	}
	if len(doc) > 0 {
		a.Extra = doc
	}
	return a, nil
}

// Save replaces the file with a, writing a sibling temp file first and renaming it over
func (s *Store) Save(_ context.Context, a domain.Archive) error {
	doc := make(map[string]any, len(a.Extra)+1)
	for k, v := range a.Extra {
		doc[k] = v
	}
	daily := a.Daily
	if daily == nil {
		daily = []domain.DailyRecord{}
	}
	doc[domain.DailyStatisticsKey] = daily

	b, err := json.Marshal(doc)
	if err != nil {
		return perr.Persistencef(err, "jsonfile: encode")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.part")
	if err != nil {
		return perr.Persistencef(err, "jsonfile: create temp in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return perr.Persistencef(err, "jsonfile: write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return perr.Persistencef(err, "jsonfile: sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return perr.Persistencef(err, "jsonfile: close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return perr.Persistencef(err, "jsonfile: chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return perr.Persistencef(err, "jsonfile: replace %s", s.path)
	}
	return nil
}
