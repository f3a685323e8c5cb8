// Package monitoring - telemetry.go appends request and startup events to
// JSONL journals.
//
// DESIGN: Two journals live side by side:
//   - requests: one RequestEvent per answered request, at the configured path
//   - init.jsonl: one InitEvent per gateway start, in the same directory
//
// Journals stay open for the life of the Tracker.
package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const initJournalName = "init.jsonl"

// journal is an append-only JSONL file.
type journal struct {
	path string
	file *os.File
}

func openJournal(path string) (*journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &journal{path: path, file: f}, nil
}

func (j *journal) append(event any) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = j.file.Write(append(line, '\n'))
	return err
}

// Tracker records telemetry events. A nil or disabled Tracker is a no-op.
type Tracker struct {
	config   TelemetryConfig
	requests *journal
	inits    *journal
	perLane  map[Lane]int
	mu       sync.Mutex
}

// NewTracker opens the journals named by cfg. With no LogPath only the
// stdout request line is emitted.
func NewTracker(cfg TelemetryConfig) (*Tracker, error) {
	t := &Tracker{config: cfg, perLane: make(map[Lane]int)}
	if !cfg.Enabled || cfg.LogPath == "" {
		return t, nil
	}

	dir := filepath.Dir(cfg.LogPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	requests, err := openJournal(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open request journal: %w", err)
	}
	inits, err := openJournal(filepath.Join(dir, initJournalName))
	if err != nil {
		_ = requests.file.Close()
		return nil, fmt.Errorf("open init journal: %w", err)
	}
	t.requests, t.inits = requests, inits
	return t, nil
}

// RecordRequest records one answered request.
func (t *Tracker) RecordRequest(event *RequestEvent) {
	if t == nil || !t.config.Enabled || event == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.config.LogToStdout {
		log.Info().
			Str("request_id", shortID(event.RequestID)).
			Str("lane", string(event.Lane)).
			Str("method", event.Method).
			Str("path", event.Path).
			Int("status", event.StatusCode).
			Int64("latency_ms", event.TotalLatencyMs).
			Str("detail", event.Detail).
			Msg("request")
	}

	if t.requests == nil {
		return
	}
	if err := t.requests.append(event); err != nil {
		log.Error().Err(err).Str("path", t.requests.path).Msg("telemetry: request event not written")
		return
	}
	t.perLane[event.Lane]++
}

// RecordInit records the startup summary.
func (t *Tracker) RecordInit(event *InitEvent) {
	if t == nil || !t.config.Enabled || t.inits == nil || event == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.inits.append(event); err != nil {
		log.Error().Err(err).Str("path", t.inits.path).Msg("telemetry: init event not written")
	}
}

// Close reports per-lane event counts and closes the journals.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.requests != nil && len(t.perLane) > 0 {
		log.Info().
			Str("path", t.requests.path).
			Str("events", laneSummary(t.perLane)).
			Msg("telemetry: journal closed")
	}

	var firstErr error
	for _, j := range []*journal{t.requests, t.inits} {
		if j == nil {
			continue
		}
		if err := j.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.requests, t.inits = nil, nil
	return firstErr
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// laneSummary renders counts as "lane=n" pairs sorted by lane.
func laneSummary(counts map[Lane]int) string {
	parts := make([]string, 0, len(counts))
	for lane, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", lane, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
