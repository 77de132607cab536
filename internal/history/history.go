// Package history keeps the append-only JSON-lines log of delivered
// utterances.
package history

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// TimeFormat is the layout of Entry.Timestamp.
const TimeFormat = "2006-01-02 15:04:05"

// ErrNotFound is returned when no entry has the requested timestamp.
var ErrNotFound = errors.New("history entry not found")

// Entry is one delivered utterance.
type Entry struct {
	Timestamp       string `json:"timestamp"`
	ProfileName     string `json:"profile_name"`
	RawText         string `json:"raw_text"`
	RefinedText     string `json:"refined_text"`
	STTModel        string `json:"stt_model"`
	RefinementModel string `json:"refinement_model"`
}

// UnmarshalJSON also accepts the older "profile" key.
func (e *Entry) UnmarshalJSON(b []byte) error {
	type plain Entry
	var aux struct {
		plain
		Profile *string `json:"profile"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = Entry(aux.plain)
	if e.ProfileName == "" && aux.Profile != nil {
		e.ProfileName = *aux.Profile
	}
	return nil
}

// NewEntry stamps an entry with now.
func NewEntry(now time.Time, profile, raw, refined, sttModel, refinementModel string) Entry {
	return Entry{
		Timestamp:       now.Format(TimeFormat),
		ProfileName:     profile,
		RawText:         raw,
		RefinedText:     refined,
		STTModel:        sttModel,
		RefinementModel: refinementModel,
	}
}

// Store reads and writes the log file. One Store should own a path per
// process; it serializes its own appends and deletes.
type Store struct {
	path       string
	maxSizeMB  int
	maxBackups int

	mu sync.Mutex
	w  *lumberjack.Logger
}

// NewStore returns a Store rotating at maxSizeMB with maxBackups old files.
func NewStore(path string, maxSizeMB, maxBackups int) *Store {
	return &Store{path: path, maxSizeMB: maxSizeMB, maxBackups: maxBackups}
}

// Path is the log file location.
func (s *Store) Path() string { return s.path }

// Append writes e as one line.
func (s *Store) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	if s.w == nil {
		s.w = &lumberjack.Logger{
			Filename:   s.path,
			MaxSize:    s.maxSizeMB,
			MaxBackups: s.maxBackups,
		}
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Close releases the open log file. A later Append reopens it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeWriter()
}

func (s *Store) closeWriter() error {
	if s.w == nil {
		return nil
	}
	return s.w.Close()
}

// Entries returns all well-formed entries, oldest first. Malformed lines are
// skipped. A missing file yields no entries.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(lines))
	for _, l := range lines {
		if e, ok := parseLine(l); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (s *Store) Recent(n int) ([]Entry, error) {
	all, err := s.Entries()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]Entry, len(all))
	for i, e := range all {
		out[len(all)-1-i] = e
	}
	return out, nil
}

// DeleteByTimestamp removes the first entry whose timestamp equals ts and
// replaces the file atomically. Malformed lines are preserved.
func (s *Store) DeleteByTimestamp(ts string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.readLines()
	if err != nil {
		return err
	}
	idx := -1
	for i, l := range lines {
		if e, ok := parseLine(l); ok && e.Timestamp == ts {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	lines = append(lines[:idx], lines[idx+1:]...)

	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	// The rotator must reopen at the replaced file.
	if err := s.closeWriter(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	return replaceFile(s.path, buf.Bytes())
}

func (s *Store) readLines() ([][]byte, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		l := bytes.TrimRight(sc.Bytes(), "\r")
		if len(bytes.TrimSpace(l)) == 0 {
			continue
		}
		lines = append(lines, append([]byte(nil), l...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return lines, nil
}

func parseLine(l []byte) (Entry, bool) {
	if len(l) == 0 || l[0] != '{' {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(l, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
