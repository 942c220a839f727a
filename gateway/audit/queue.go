// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"axonflow/campaign-gateway/shared/logger"
)

const (
	// DefaultQueueSize bounds entries waiting for the batch loop
	DefaultQueueSize = 10000

	// DefaultBatchSize flushes a batch once it reaches this many entries
	DefaultBatchSize = 100

	// DefaultFlushInterval flushes partial batches on this cadence
	DefaultFlushInterval = 10 * time.Second

	writeRetries = 3
)

// Sink persists a batch of entries
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
}

// Config tunes a Logger. Zero values take the package defaults.
// FallbackPath names the JSONL file that absorbs entries when the sink
// stays down; empty disables the fallback.
type Config struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
	FallbackPath  string
}

// Logger queues entries and batch-writes them in the background
type Logger struct {
	sink          Sink
	queue         chan Entry
	batchSize     int
	flushInterval time.Duration

	fallbackMu   sync.Mutex
	fallbackFile *os.File

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	doneCh       chan struct{}

	queued    uint64
	processed uint64
	failed    uint64
	dropped   uint64

	log *logger.Logger
}

// NewLogger starts the batch loop. The returned Logger must be shut down
// with Shutdown to flush in-flight entries.
func NewLogger(sink Sink, cfg Config, log *logger.Logger) (*Logger, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if log == nil {
		log = logger.New("audit")
	}

	var fallbackFile *os.File
	if cfg.FallbackPath != "" {
		f, err := os.OpenFile(cfg.FallbackPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit fallback file: %w", err)
		}
		fallbackFile = f
	}

	l := &Logger{
		sink:          sink,
		queue:         make(chan Entry, cfg.QueueSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		fallbackFile:  fallbackFile,
		shutdownCh:    make(chan struct{}),
		doneCh:        make(chan struct{}),
		log:           log,
	}

	go l.run()
	return l, nil
}

// Record queues an entry without blocking. Missing ID and timestamp are
// filled in; a full queue spills to the fallback file instead of making
// the caller wait.
func (l *Logger) Record(entry Entry) {
	if entry.ID == "" {
		entry.ID = generateEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.RequestBody = Truncate(entry.RequestBody)
	entry.ResponseSummary = Truncate(entry.ResponseSummary)

	select {
	case l.queue <- entry:
		atomic.AddUint64(&l.queued, 1)
	default:
		if err := l.writeFallback([]Entry{entry}); err != nil {
			atomic.AddUint64(&l.dropped, 1)
			l.log.Warn(entry.OrganizationID, entry.RequestID, "Audit queue full, entry dropped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

func (l *Logger) run() {
	defer close(l.doneCh)

	batch := make([]Entry, 0, l.batchSize)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.queue:
			batch = append(batch, entry)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}

		case <-l.shutdownCh:
			// Drain whatever is already queued, then flush once
			for {
				select {
				case entry := <-l.queue:
					batch = append(batch, entry)
				default:
					if len(batch) > 0 {
						l.flush(batch)
					}
					return
				}
			}
		}
	}
}

// flush writes one batch with retries; a batch that exhausts its retries
// goes to the fallback file
func (l *Logger) flush(batch []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if err = l.sink.Write(ctx, batch); err == nil {
			atomic.AddUint64(&l.processed, uint64(len(batch)))
			return
		}
		time.Sleep(time.Millisecond * time.Duration(100*(attempt+1)))
	}

	atomic.AddUint64(&l.failed, uint64(len(batch)))
	l.log.Warn("", "", "Audit batch write failed, using fallback", map[string]interface{}{
		"entries": len(batch),
		"error":   err.Error(),
	})

	if fbErr := l.writeFallback(batch); fbErr != nil {
		atomic.AddUint64(&l.dropped, uint64(len(batch)))
		l.log.Error("", "", "Audit fallback write failed", map[string]interface{}{
			"entries": len(batch),
			"error":   fbErr.Error(),
		})
	}
}

func (l *Logger) writeFallback(entries []Entry) error {
	if l.fallbackFile == nil {
		return fmt.Errorf("no fallback file configured")
	}

	l.fallbackMu.Lock()
	defer l.fallbackMu.Unlock()

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		if _, err := fmt.Fprintf(l.fallbackFile, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write audit fallback: %w", err)
		}
	}
	return l.fallbackFile.Sync()
}

// Shutdown stops the batch loop after a final drain and flush. The
// context bounds how long to wait.
func (l *Logger) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdownCh) })

	select {
	case <-l.doneCh:
		if l.fallbackFile != nil {
			_ = l.fallbackFile.Close()
		}
		l.log.Info("", "", "Audit logger shutdown complete", l.Stats())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports counters for monitoring
func (l *Logger) Stats() map[string]interface{} {
	return map[string]interface{}{
		"queued":    atomic.LoadUint64(&l.queued),
		"processed": atomic.LoadUint64(&l.processed),
		"failed":    atomic.LoadUint64(&l.failed),
		"dropped":   atomic.LoadUint64(&l.dropped),
		"pending":   len(l.queue),
	}
}

// Pending returns the number of entries waiting in the queue
func (l *Logger) Pending() int {
	return len(l.queue)
}

// Dropped returns the number of entries lost to a full queue with no
// usable fallback.
func (l *Logger) Dropped() uint64 {
	return atomic.LoadUint64(&l.dropped)
}
