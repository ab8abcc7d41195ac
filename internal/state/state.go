// Package state persists the nudge scheduler's dedupe map and weekly
// planner acks so a restart does not replay notifications.
//
// Layout on disk:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot. Everything
// is best-effort: a write failure is logged by the caller and never
// fails a scheduler tick.
package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "neuroboost/pkg/logx"
)

// dedupeRetention bounds how long fired-at marks survive. The scheduler
// only ever compares against a two-minute dedupe window, so anything
// older than a day is noise.
const dedupeRetention = 24 * time.Hour

const compactEvery = 500

type record struct {
	Kind string `json:"kind"` // "dedupe" | "ack"
	Key  string `json:"key,omitempty"`
	At   int64  `json:"at,omitempty"` // unix milli
	Week string `json:"week,omitempty"`
}

type snapshot struct {
	Dedupe map[string]int64 `json:"dedupe"`
	Acks   []string         `json:"acks"`
}

// Store is the file-backed scheduler state.
type Store struct {
	log logx.Logger
	now func() time.Time

	mu sync.Mutex

	snapshotPath string
	journal      *os.File

	dedupe map[string]int64 // key -> fired at, unix milli
	acks   map[string]bool  // iso week key -> acked

	writes int
}

// Open loads (or creates) scheduler state rooted at path. An empty path
// disables persistence: Open returns (nil, nil) and the scheduler runs
// with in-memory state only. now is the clock used to age out stale
// dedupe entries; it must match the scheduler's clock so marks written
// against an injected clock are not pruned by wall time. Nil means wall
// time.
func Open(path string, now func() time.Time, log logx.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	dedupe := map[string]int64{}
	acks := map[string]bool{}
	_ = loadSnapshot(snapPath, dedupe, acks)
	_ = replayJournal(journalPath, dedupe, acks)
	pruneDedupe(dedupe, now())

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &Store{
		log:          log,
		now:          now,
		snapshotPath: snapPath,
		journal:      jf,
		dedupe:       dedupe,
		acks:         acks,
	}, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

// Dedupe returns a copy of the persisted dedupe map.
func (s *Store) Dedupe() map[string]time.Time {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.dedupe))
	for k, ms := range s.dedupe {
		out[k] = time.UnixMilli(ms)
	}
	return out
}

// Acks returns a copy of the persisted planner ack set.
func (s *Store) Acks() map[string]bool {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.acks))
	for k := range s.acks {
		out[k] = true
	}
	return out
}

// PutDedupe records when a notification key last fired.
func (s *Store) PutDedupe(key string, firedAt time.Time) error {
	if s == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("state journal closed")
	}
	ms := firedAt.UnixMilli()
	s.dedupe[key] = ms
	return s.appendLocked(record{Kind: "dedupe", Key: key, At: ms})
}

// AckPlanner marks the weekly planner nudge for an ISO week as handled.
func (s *Store) AckPlanner(weekKey string) error {
	if s == nil {
		return nil
	}
	weekKey = strings.TrimSpace(weekKey)
	if weekKey == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("state journal closed")
	}
	s.acks[weekKey] = true
	return s.appendLocked(record{Kind: "ack", Week: weekKey})
}

func (s *Store) appendLocked(r record) error {
	enc := json.NewEncoder(s.journal)
	if err := enc.Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("state compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *Store) compactLocked() error {
	pruneDedupe(s.dedupe, s.now())

	snap := snapshot{Dedupe: s.dedupe, Acks: make([]string, 0, len(s.acks))}
	for k := range s.acks {
		snap.Acks = append(snap.Acks, k)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, dedupe map[string]int64, acks map[string]bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	for k, v := range snap.Dedupe {
		dedupe[k] = v
	}
	for _, k := range snap.Acks {
		acks[k] = true
	}
	return nil
}

func replayJournal(path string, dedupe map[string]int64, acks map[string]bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Kind {
		case "dedupe":
			if r.Key != "" {
				dedupe[r.Key] = r.At
			}
		case "ack":
			if r.Week != "" {
				acks[r.Week] = true
			}
		}
	}
	return sc.Err()
}

func pruneDedupe(m map[string]int64, now time.Time) {
	cutoff := now.Add(-dedupeRetention).UnixMilli()
	for k, v := range m {
		if v < cutoff {
			delete(m, k)
		}
	}
}
