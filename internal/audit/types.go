package audit

import "time"

// Record is one row of the redaction audit trail. It captures what was
// detected, never what the text said: no original values, no mask keys.
type Record struct {
	Timestamp    int64   `parquet:"timestamp" json:"timestamp"`
	RequestID    string  `parquet:"request_id" json:"request_id"`
	ScopeID      string  `parquet:"scope_id" json:"scope_id"`
	Source       string  `parquet:"source" json:"source"` // api, proxy, or cli
	EntityCount  int32   `parquet:"entity_count" json:"entity_count"`
	EntityTypes  string  `parquet:"entity_types" json:"entity_types"` // comma-separated
	TextBytes    int64   `parquet:"text_bytes" json:"text_bytes"`
	ProcessingMS float64 `parquet:"processing_ms" json:"processing_ms"`
}

// Stats tracks audit trail throughput
type Stats struct {
	RecordsWritten int64     `json:"records_written"`
	FilesWritten   int64     `json:"files_written"`
	Buffered       int       `json:"buffered"`
	LastFlush      time.Time `json:"last_flush"`
}
