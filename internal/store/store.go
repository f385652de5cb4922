package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"racesched/internal/config"
	appLog "racesched/internal/log"
	"racesched/internal/model"
)

// DefaultIndent matches the published files.
const DefaultIndent = 4

// Sink persists one season's events.
type Sink interface {
	Name() string
	Put(ctx context.Context, year int, events []model.Event) error
}

// FileName is the per-season output name, e.g. "2024.json".
func FileName(year int) string {
	return strconv.Itoa(year) + ".json"
}

// Encode renders events as an indented JSON array. HTML characters are not
// escaped and no trailing newline is written.
func Encode(events []model.Event, indent int) ([]byte, error) {
	if indent <= 0 {
		indent = DefaultIndent
	}
	if events == nil {
		events = []model.Event{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", strings.Repeat(" ", indent))
	if err := enc.Encode(events); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FileSink writes <Dir>/<year>.json.
type FileSink struct {
	Dir    string
	Indent int
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Path(year int) string {
	return filepath.Join(s.Dir, FileName(year))
}

func (s *FileSink) Put(ctx context.Context, year int, events []model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(events, s.Indent)
	if err != nil {
		return fmt.Errorf("encode season %d: %w", year, err)
	}
	path := s.Path(year)
	if err := config.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	appLog.Info("season file written", "year", year, "path", path, "events", len(events))
	return nil
}

// Load reads a season file previously written by FileSink.
func Load(dir string, year int) ([]model.Event, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName(year)))
	if err != nil {
		return nil, err
	}
	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode season %d: %w", year, err)
	}
	return events, nil
}

// MultiSink fans a season out to several sinks in order; the first failure
// stops the chain. Sinks before the failing one have already been written
// and are not rolled back, so callers put the sink that must only reflect
// a complete run (the local season file) last.
type MultiSink []Sink

func (m MultiSink) Name() string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

func (m MultiSink) Put(ctx context.Context, year int, events []model.Event) error {
	if len(m) == 0 {
		return errors.New("no sinks configured")
	}
	for _, s := range m {
		if err := s.Put(ctx, year, events); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return nil
}
