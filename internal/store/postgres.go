package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/redaction"
	"go.uber.org/zap"
)

// MappingStore persists entity mappings in PostgreSQL so scopes can be
// rebuilt after a restart. Rows are insert-only, mirroring the append-only
// contract of the in-memory memo table.
type MappingStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const mappingSchema = `
CREATE TABLE IF NOT EXISTS entity_mappings (
	id          BIGSERIAL PRIMARY KEY,
	scope_id    VARCHAR(255) NOT NULL,
	entity_type VARCHAR(64)  NOT NULL,
	mask_key    TEXT         NOT NULL,
	mask_token  VARCHAR(255) NOT NULL,
	ordinal     INTEGER      NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
	UNIQUE (scope_id, entity_type, mask_key)
);
CREATE INDEX IF NOT EXISTS idx_entity_mappings_scope ON entity_mappings (scope_id);
`

// mappingRow is the database shape of one memoized mapping.
type mappingRow struct {
	ScopeID    string `db:"scope_id"`
	EntityType string `db:"entity_type"`
	MaskKey    string `db:"mask_key"`
	MaskToken  string `db:"mask_token"`
	Ordinal    int    `db:"ordinal"`
}

// MappingStats represents durable store statistics
type MappingStats struct {
	TotalMappings int64 `json:"total_mappings"`
	TotalScopes   int64 `json:"total_scopes"`
}

// NewMappingStore connects to PostgreSQL and ensures the schema exists
func NewMappingStore(cfg config.PostgresConfig, logger *zap.Logger) (*MappingStore, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &MappingStore{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Mapping store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

// initialize checks the connection and creates the schema
func (s *MappingStore) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, mappingSchema); err != nil {
		return fmt.Errorf("failed to create entity_mappings schema: %w", err)
	}

	return nil
}

// SaveSnapshot upserts a scope snapshot. ON CONFLICT DO NOTHING keeps already
// persisted mappings untouched: a mask token, once stored, is never rewritten.
func (s *MappingStore) SaveSnapshot(ctx context.Context, snap redaction.Snapshot) error {
	if len(snap.Entries) == 0 {
		return nil
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(snap.Entries))
	valueArgs := make([]interface{}, 0, len(snap.Entries)*5)

	for i, entry := range snap.Entries {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		valueArgs = append(valueArgs,
			snap.ScopeID,
			string(entry.Type),
			entry.Key,
			entry.Token,
			snap.Ordinals[string(entry.Type)],
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO entity_mappings (scope_id, entity_type, mask_key, mask_token, ordinal)
		VALUES %s
		ON CONFLICT (scope_id, entity_type, mask_key) DO NOTHING`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		s.logger.Error("Failed to persist scope snapshot",
			zap.Error(err),
			zap.String("scope_id", snap.ScopeID))
		return fmt.Errorf("failed to persist scope snapshot: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		inserted = 0
	}

	s.logger.Debug("Scope snapshot persisted",
		zap.String("scope_id", snap.ScopeID),
		zap.Int64("new_mappings", inserted),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// LoadSnapshot rebuilds a scope snapshot from the database. found is false
// when the scope has no persisted mappings.
func (s *MappingStore) LoadSnapshot(ctx context.Context, scopeID string) (redaction.Snapshot, bool, error) {
	var rows []mappingRow
	query := `
		SELECT scope_id, entity_type, mask_key, mask_token, ordinal
		FROM entity_mappings
		WHERE scope_id = $1
		ORDER BY id`

	if err := s.db.SelectContext(ctx, &rows, query, scopeID); err != nil {
		return redaction.Snapshot{}, false, fmt.Errorf("failed to load scope mappings: %w", err)
	}

	if len(rows) == 0 {
		return redaction.Snapshot{}, false, nil
	}

	snap := redaction.Snapshot{
		ScopeID:  scopeID,
		Entries:  make([]redaction.SnapshotEntry, 0, len(rows)),
		Ordinals: make(map[string]int),
	}
	for _, row := range rows {
		snap.Entries = append(snap.Entries, redaction.SnapshotEntry{
			Type:  redaction.EntityType(row.EntityType),
			Key:   row.MaskKey,
			Token: row.MaskToken,
		})
		if row.Ordinal > snap.Ordinals[row.EntityType] {
			snap.Ordinals[row.EntityType] = row.Ordinal
		}
	}

	s.logger.Debug("Scope snapshot loaded",
		zap.String("scope_id", scopeID),
		zap.Int("mappings", len(snap.Entries)))

	return snap, true, nil
}

// DeleteScope removes all persisted mappings for a scope
func (s *MappingStore) DeleteScope(ctx context.Context, scopeID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entity_mappings WHERE scope_id = $1`, scopeID)
	if err != nil {
		return fmt.Errorf("failed to delete scope mappings: %w", err)
	}
	return nil
}

// GetStats returns database statistics
func (s *MappingStore) GetStats(ctx context.Context) (*MappingStats, error) {
	stats := &MappingStats{}

	query := `
		SELECT
			COUNT(*) as total,
			COUNT(DISTINCT scope_id) as scopes
		FROM entity_mappings`

	err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalMappings, &stats.TotalScopes)
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping stats: %w", err)
	}

	return stats, nil
}

// Close closes the database connection
func (s *MappingStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks sensitive information in database URL for logging
func maskDatabaseURL(url string) string {
	// Simple masking - replace password with ***
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
