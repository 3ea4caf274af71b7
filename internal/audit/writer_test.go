package audit

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/parquet-go"
	"github.com/secureai/privacy-shield/internal/config"
	"go.uber.org/zap"
)

func testWriter(t *testing.T, bufferSize int) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(config.AuditConfig{
		Enabled:       true,
		Directory:     dir,
		BufferSize:    bufferSize,
		FlushInterval: time.Hour, // keep the ticker out of the test's way
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w, dir
}

func listParquet(t *testing.T, dir string) []string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "*.parquet"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return files
}

func sampleRecord(scope string) Record {
	return Record{
		Timestamp:    time.Now().UnixMilli(),
		RequestID:    "req-1",
		ScopeID:      scope,
		Source:       "api",
		EntityCount:  3,
		EntityTypes:  "email,ssn",
		TextBytes:    512,
		ProcessingMS: 1.25,
	}
}

func TestWriterFlush(t *testing.T) {
	w, dir := testWriter(t, 100)
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := w.Append(sampleRecord("s1")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if files := listParquet(t, dir); len(files) != 0 {
		t.Errorf("buffered records flushed early: %v", files)
	}
	if got := w.GetStats().Buffered; got != 5 {
		t.Errorf("Buffered = %d, want 5", got)
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	files := listParquet(t, dir)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %v", files)
	}

	stats := w.GetStats()
	if stats.RecordsWritten != 5 {
		t.Errorf("RecordsWritten = %d, want 5", stats.RecordsWritten)
	}
	if stats.FilesWritten != 1 {
		t.Errorf("FilesWritten = %d, want 1", stats.FilesWritten)
	}
	if stats.Buffered != 0 {
		t.Errorf("Buffered = %d after flush", stats.Buffered)
	}

	// The written file must round-trip
	file, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var count int
	for {
		var rec Record
		if err := reader.Read(&rec); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("read record: %v", err)
		}
		if rec.ScopeID != "s1" || rec.EntityCount != 3 {
			t.Errorf("record mangled: %+v", rec)
		}
		count++
	}
	if count != 5 {
		t.Errorf("read %d records, want 5", count)
	}
}

func TestWriterFullBufferFlushes(t *testing.T) {
	w, dir := testWriter(t, 3)
	defer w.Close()

	for i := 0; i < 3; i++ {
		if err := w.Append(sampleRecord("s2")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if files := listParquet(t, dir); len(files) != 1 {
		t.Errorf("full buffer did not flush: %v", files)
	}
}

func TestWriterFlushEmpty(t *testing.T) {
	w, dir := testWriter(t, 10)
	defer w.Close()

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush on empty buffer: %v", err)
	}
	if files := listParquet(t, dir); len(files) != 0 {
		t.Errorf("empty flush produced files: %v", files)
	}
}

func TestWriterClose(t *testing.T) {
	w, dir := testWriter(t, 100)

	w.Append(sampleRecord("s3"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if files := listParquet(t, dir); len(files) != 1 {
		t.Errorf("Close did not flush remaining records: %v", files)
	}
}
