package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/segmentio/parquet-go"
	"github.com/secureai/privacy-shield/internal/config"
	"go.uber.org/zap"
)

// Writer appends redaction audit records to parquet files. Records are
// buffered in memory and flushed either when the buffer fills or on the
// configured interval; each flush produces one timestamped file in the audit
// directory, so files are immutable once written.
type Writer struct {
	config config.AuditConfig
	logger *zap.Logger

	mu      sync.Mutex
	buffer  []Record
	stats   Stats
	closing chan struct{}
	done    chan struct{}
}

// NewWriter creates an audit writer and starts its background flush loop.
func NewWriter(cfg config.AuditConfig, logger *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	w := &Writer{
		config:  cfg,
		logger:  logger,
		buffer:  make([]Record, 0, cfg.BufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	go w.flushLoop()

	logger.Info("Audit writer initialized",
		zap.String("directory", cfg.Directory),
		zap.Int("buffer_size", cfg.BufferSize),
		zap.Duration("flush_interval", cfg.FlushInterval))

	return w, nil
}

// Append buffers one audit record. A full buffer triggers a synchronous
// flush so the trail never silently drops records.
func (w *Writer) Append(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, rec)
	if len(w.buffer) >= w.config.BufferSize {
		return w.flushLocked()
	}
	return nil
}

// Flush writes all buffered records to a new parquet file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// GetStats returns audit trail throughput counters.
func (w *Writer) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := w.stats
	stats.Buffered = len(w.buffer)
	return stats
}

// Close flushes remaining records and stops the background loop.
func (w *Writer) Close() error {
	close(w.closing)
	<-w.done
	return w.Flush()
}

func (w *Writer) flushLoop() {
	defer close(w.done)

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				w.logger.Error("Periodic audit flush failed", zap.Error(err))
			}
		case <-w.closing:
			return
		}
	}
}

// flushLocked writes the buffer to disk. Caller holds w.mu.
func (w *Writer) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}

	start := time.Now()
	path := filepath.Join(w.config.Directory,
		fmt.Sprintf("redactions-%s.parquet", start.UTC().Format("20060102-150405.000")))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audit file: %w", err)
	}

	writer := parquet.NewWriter(file, parquet.SchemaOf(Record{}))
	for i := range w.buffer {
		if err := writer.Write(&w.buffer[i]); err != nil {
			file.Close()
			return fmt.Errorf("failed to write audit record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to finalize audit file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close audit file: %w", err)
	}

	w.stats.RecordsWritten += int64(len(w.buffer))
	w.stats.FilesWritten++
	w.stats.LastFlush = start

	w.logger.Debug("Audit records flushed",
		zap.Int("records", len(w.buffer)),
		zap.String("file", path),
		zap.Duration("duration", time.Since(start)))

	w.buffer = w.buffer[:0]
	return nil
}
