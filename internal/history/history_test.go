package history

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "history.log"), 5, 2)
}

func TestAppendRoundTrip(t *testing.T) {
	s := newStore(t)
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	want := NewEntry(now, "General", "hello world", "Hello, world.", "whisper", "llama")
	if err := s.Append(want); err != nil {
		t.Fatalf("Append: %v", err)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSuffix(string(raw), "\n")
	if strings.Contains(line, "\n") {
		t.Fatalf("expected one line, got %q", raw)
	}
	var got Entry
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Timestamp != "2024-03-09 14:05:07" {
		t.Fatalf("unexpected timestamp %q", got.Timestamp)
	}
}

func TestEntriesSkipMalformedLines(t *testing.T) {
	s := newStore(t)
	body := strings.Join([]string{
		`{"timestamp":"2024-01-01 00:00:01","profile_name":"A","raw_text":"one","refined_text":"one"}`,
		`not json at all`,
		``,
		`null`,
		`{"timestamp":"2024-01-01 00:00:02","profile":"Legacy","raw_text":"two","refined_text":"2"}`,
		`{"timestamp": "broken`,
	}, "\n")
	if err := os.WriteFile(s.Path(), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := s.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].ProfileName != "Legacy" {
		t.Fatalf("legacy profile field not read: %+v", entries[1])
	}
}

func TestEntriesMissingFile(t *testing.T) {
	entries, err := newStore(t).Entries()
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty result, got %v, %v", entries, err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := newStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	for i := 0; i < 5; i++ {
		if err := s.Append(NewEntry(base.Add(time.Duration(i)*time.Second), "P", "t", "t", "", "")); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-01-01 00:00:04", "2024-01-01 00:00:03", "2024-01-01 00:00:02"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Timestamp != want[i] {
			t.Fatalf("entry %d = %s, want %s", i, got[i].Timestamp, want[i])
		}
	}
}

func TestDeleteByTimestampRemovesFirstMatch(t *testing.T) {
	s := newStore(t)
	body := strings.Join([]string{
		`{"timestamp":"t1","raw_text":"a"}`,
		`garbage`,
		`{"timestamp":"t2","raw_text":"b"}`,
		`{"timestamp":"t2","raw_text":"c"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(s.Path(), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteByTimestamp("t2"); err != nil {
		t.Fatalf("DeleteByTimestamp: %v", err)
	}
	raw, _ := os.ReadFile(s.Path())
	want := strings.Join([]string{
		`{"timestamp":"t1","raw_text":"a"}`,
		`garbage`,
		`{"timestamp":"t2","raw_text":"c"}`,
	}, "\n") + "\n"
	if string(raw) != want {
		t.Fatalf("unexpected file:\n%s\nwant:\n%s", raw, want)
	}

	matches, _ := filepath.Glob(s.Path() + ".tmp-*")
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestDeleteByTimestampNotFound(t *testing.T) {
	s := newStore(t)
	if err := s.DeleteByTimestamp("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing file, got %v", err)
	}
	_ = s.Append(Entry{Timestamp: "t1"})
	if err := s.DeleteByTimestamp("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendAfterDelete(t *testing.T) {
	s := newStore(t)
	_ = s.Append(Entry{Timestamp: "t1"})
	_ = s.Append(Entry{Timestamp: "t2"})
	if err := s.DeleteByTimestamp("t1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(Entry{Timestamp: "t3"}); err != nil {
		t.Fatal(err)
	}
	entries, _ := s.Entries()
	if len(entries) != 2 || entries[0].Timestamp != "t2" || entries[1].Timestamp != "t3" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestAppendReusesRotator(t *testing.T) {
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Append(Entry{Timestamp: "warmup"}); err != nil {
		t.Fatal(err)
	}
	before := runtime.NumGoroutine()
	for i := 0; i < 200; i++ {
		if err := s.Append(Entry{Timestamp: "t"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteByTimestamp("warmup"); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(Entry{Timestamp: "after"}); err != nil {
		t.Fatal(err)
	}
	if after := runtime.NumGoroutine(); after > before+2 {
		t.Fatalf("goroutines grew from %d to %d over 200 appends", before, after)
	}
	entries, _ := s.Entries()
	if len(entries) != 201 || entries[200].Timestamp != "after" {
		t.Fatalf("expected 201 entries ending with the post-delete append, got %d", len(entries))
	}
}
