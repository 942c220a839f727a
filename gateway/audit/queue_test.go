// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingSink captures flushed batches. failCalls makes the first N
// writes fail; alwaysErr makes every write fail.
type recordingSink struct {
	mu        sync.Mutex
	batches   [][]Entry
	callCount int
	failCalls int
	alwaysErr error
}

func (s *recordingSink) Write(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	if s.alwaysErr != nil {
		return s.alwaysErr
	}
	if s.callCount <= s.failCalls {
		return errors.New("transient sink failure")
	}

	batch := make([]Entry, len(entries))
	copy(batch, entries)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *recordingSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *recordingSink) allEntries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []Entry
	for _, batch := range s.batches {
		all = append(all, batch...)
	}
	return all
}

// blockingSink parks every write until release is closed. started is
// closed when the first write arrives.
type blockingSink struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	entries []Entry
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Write(ctx context.Context, entries []Entry) error {
	s.once.Do(func() { close(s.started) })
	<-s.release

	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
	return nil
}

func (s *blockingSink) received() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func testEntry(requestID string) Entry {
	return Entry{
		RequestID:      requestID,
		APIKeyID:       "key-1",
		OrganizationID: "org-1",
		Method:         "POST",
		Path:           "/api/campaigns/create",
		Action:         "campaigns.create",
		StatusCode:     201,
		DurationMs:     12,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func shutdownLogger(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestBatchFlushAtSize(t *testing.T) {
	sink := &recordingSink{}
	l, err := NewLogger(sink, Config{BatchSize: 3, FlushInterval: time.Minute}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Record(testEntry("req-0"))
	l.Record(testEntry("req-1"))
	l.Record(testEntry("req-2"))

	waitFor(t, "batch flush", func() bool { return sink.batchCount() == 1 })

	entries := sink.allEntries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		want := "req-" + string(rune('0'+i))
		if entry.RequestID != want {
			t.Errorf("entry %d: expected request id %s, got %s", i, want, entry.RequestID)
		}
		if entry.ID == "" {
			t.Errorf("entry %d: expected generated id", i)
		}
		if entry.Timestamp.IsZero() {
			t.Errorf("entry %d: expected timestamp to be filled", i)
		}
	}

	shutdownLogger(t, l)
}

func TestTickerFlushesPartialBatch(t *testing.T) {
	sink := &recordingSink{}
	l, err := NewLogger(sink, Config{BatchSize: 100, FlushInterval: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Record(testEntry("req-a"))
	l.Record(testEntry("req-b"))

	waitFor(t, "ticker flush", func() bool { return sink.batchCount() >= 1 })

	if got := len(sink.allEntries()); got != 2 {
		t.Errorf("expected 2 entries, got %d", got)
	}

	shutdownLogger(t, l)
}

func TestShutdownFlushesRemaining(t *testing.T) {
	sink := &recordingSink{}
	l, err := NewLogger(sink, Config{BatchSize: 100, FlushInterval: time.Minute}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 5; i++ {
		entry := testEntry("req-" + string(rune('0'+i)))
		l.Record(entry)
	}

	shutdownLogger(t, l)

	entries := sink.allEntries()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries after shutdown, got %d", len(entries))
	}
	if entries[0].RequestID != "req-0" || entries[4].RequestID != "req-4" {
		t.Errorf("expected queue order preserved, got first=%s last=%s",
			entries[0].RequestID, entries[4].RequestID)
	}
}

func TestShutdownTwice(t *testing.T) {
	l, err := NewLogger(&recordingSink{}, Config{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shutdownLogger(t, l)
	shutdownLogger(t, l)
}

func TestRetryRecoversBatch(t *testing.T) {
	sink := &recordingSink{failCalls: 2}
	l, err := NewLogger(sink, Config{BatchSize: 1, FlushInterval: time.Minute}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Record(testEntry("req-retry"))

	waitFor(t, "retried flush", func() bool {
		return sink.calls() == 3 && sink.batchCount() == 1
	})

	stats := l.Stats()
	if stats["processed"] != uint64(1) {
		t.Errorf("expected 1 processed, got %v", stats["processed"])
	}
	if stats["failed"] != uint64(0) {
		t.Errorf("expected 0 failed, got %v", stats["failed"])
	}

	shutdownLogger(t, l)
}

func TestExhaustedRetriesSpillToFallback(t *testing.T) {
	fallbackPath := filepath.Join(t.TempDir(), "audit-fallback.jsonl")
	sink := &recordingSink{alwaysErr: errors.New("sink down")}
	l, err := NewLogger(sink, Config{
		BatchSize:     2,
		FlushInterval: time.Minute,
		FallbackPath:  fallbackPath,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Record(testEntry("req-x"))
	l.Record(testEntry("req-y"))

	waitFor(t, "fallback content", func() bool {
		data, readErr := os.ReadFile(fallbackPath)
		return readErr == nil && len(data) > 0
	})
	shutdownLogger(t, l)

	data, err := os.ReadFile(fallbackPath)
	if err != nil {
		t.Fatalf("failed to read fallback: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 fallback lines, got %d", len(lines))
	}

	seen := map[string]bool{}
	for _, line := range lines {
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to unmarshal fallback line: %v", err)
		}
		seen[entry.RequestID] = true
	}
	if !seen["req-x"] || !seen["req-y"] {
		t.Errorf("expected both entries in fallback, got %v", seen)
	}

	stats := l.Stats()
	if stats["failed"] != uint64(2) {
		t.Errorf("expected 2 failed, got %v", stats["failed"])
	}
	if stats["dropped"] != uint64(0) {
		t.Errorf("expected 0 dropped, got %v", stats["dropped"])
	}
}

func TestFullQueueSpillsToFallback(t *testing.T) {
	fallbackPath := filepath.Join(t.TempDir(), "audit-overflow.jsonl")
	sink := newBlockingSink()
	l, err := NewLogger(sink, Config{
		QueueSize:     1,
		BatchSize:     1,
		FlushInterval: time.Minute,
		FallbackPath:  fallbackPath,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// First entry reaches the sink and parks there, second fills the
	// queue, the rest must spill.
	l.Record(testEntry("req-1"))
	<-sink.started
	l.Record(testEntry("req-2"))
	l.Record(testEntry("req-3"))
	l.Record(testEntry("req-4"))

	data, err := os.ReadFile(fallbackPath)
	if err != nil {
		t.Fatalf("failed to read fallback: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 spilled entries, got %d", len(lines))
	}

	close(sink.release)
	shutdownLogger(t, l)

	received := sink.received()
	if len(received) != 2 {
		t.Fatalf("expected 2 entries through the sink, got %d", len(received))
	}
	if received[0].RequestID != "req-1" || received[1].RequestID != "req-2" {
		t.Errorf("expected req-1 and req-2 through the sink, got %s and %s",
			received[0].RequestID, received[1].RequestID)
	}
}

func TestFullQueueWithoutFallbackDrops(t *testing.T) {
	sink := newBlockingSink()
	l, err := NewLogger(sink, Config{
		QueueSize:     1,
		BatchSize:     1,
		FlushInterval: time.Minute,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Record(testEntry("req-1"))
	<-sink.started
	l.Record(testEntry("req-2"))
	l.Record(testEntry("req-3"))

	if got := l.Stats()["dropped"]; got != uint64(1) {
		t.Errorf("expected 1 dropped, got %v", got)
	}

	close(sink.release)
	shutdownLogger(t, l)
}

func TestRecordTruncatesSnapshots(t *testing.T) {
	sink := &recordingSink{}
	l, err := NewLogger(sink, Config{BatchSize: 1, FlushInterval: time.Minute}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := testEntry("req-long")
	entry.RequestBody = strings.Repeat("a", 600)
	entry.ResponseSummary = strings.Repeat("b", 600)
	l.Record(entry)

	waitFor(t, "flush", func() bool { return sink.batchCount() == 1 })
	shutdownLogger(t, l)

	got := sink.allEntries()[0]
	if len(got.RequestBody) != snapshotLimit+3 || !strings.HasSuffix(got.RequestBody, "...") {
		t.Errorf("expected truncated request body, got length %d", len(got.RequestBody))
	}
	if len(got.ResponseSummary) != snapshotLimit+3 || !strings.HasSuffix(got.ResponseSummary, "...") {
		t.Errorf("expected truncated response summary, got length %d", len(got.ResponseSummary))
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short"); got != "short" {
		t.Errorf("expected short string unchanged, got %q", got)
	}

	long := strings.Repeat("x", snapshotLimit+50)
	got := Truncate(long)
	if len(got) != snapshotLimit+3 {
		t.Errorf("expected length %d, got %d", snapshotLimit+3, len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got[len(got)-5:])
	}
}

func TestEntryIDFormat(t *testing.T) {
	re := regexp.MustCompile(`^audit_\d+_[a-z0-9]{8}$`)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id := generateEntryID()
		if !re.MatchString(id) {
			t.Fatalf("unexpected id format: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != 20 {
		t.Errorf("expected 20 unique ids, got %d", len(seen))
	}
}

func TestNewLoggerBadFallbackPath(t *testing.T) {
	_, err := NewLogger(&recordingSink{}, Config{
		FallbackPath: "/nonexistent/path/audit.jsonl",
	}, nil)
	if err == nil {
		t.Fatal("expected error for bad fallback path")
	}
	if !strings.Contains(err.Error(), "failed to open audit fallback file") {
		t.Errorf("unexpected error: %v", err)
	}
}
