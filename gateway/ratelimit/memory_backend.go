// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps one timestamp log per bucket in process memory.
// Buckets are created lazily on first take and removed once pruning
// empties them.
type MemoryBackend struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{buckets: make(map[string][]time.Time)}
}

var _ Backend = (*MemoryBackend)(nil)

// Take prunes the bucket, appends now speculatively, and rolls the entry
// back when the bucket would exceed its limit. The stored count therefore
// never exceeds the limit after an allowed take.
func (m *MemoryBackend) Take(_ context.Context, bucket string, limit int, window time.Duration, now time.Time) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	entries := m.buckets[bucket]

	kept := 0
	for kept < len(entries) && !entries[kept].After(cutoff) {
		kept++
	}
	entries = entries[kept:]

	entries = append(entries, now)
	if len(entries) > limit {
		entries = entries[:len(entries)-1]
		m.store(bucket, entries)

		oldest := now
		if len(entries) > 0 {
			oldest = entries[0]
		}
		return Usage{Allowed: false, Count: len(entries), OldestAt: oldest}, nil
	}

	m.store(bucket, entries)
	return Usage{Allowed: true, Count: len(entries), OldestAt: entries[0]}, nil
}

func (m *MemoryBackend) store(bucket string, entries []time.Time) {
	if len(entries) == 0 {
		delete(m.buckets, bucket)
		return
	}
	m.buckets[bucket] = entries
}

// Sweep drops buckets whose newest entry is older than maxAge. Called
// periodically so keys that stop sending requests do not pin memory.
func (m *MemoryBackend) Sweep(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for bucket, entries := range m.buckets {
		if len(entries) == 0 || entries[len(entries)-1].Before(cutoff) {
			delete(m.buckets, bucket)
			removed++
		}
	}
	return removed
}

// BucketCount reports how many buckets currently hold entries
func (m *MemoryBackend) BucketCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
