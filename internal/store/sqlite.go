package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/openclaw/kioku/internal/embedding"
)

// SQLiteStore implements VectorStore on a local SQLite database. Embeddings
// are computed at upsert time and stored alongside the text; queries run a
// brute-force cosine scan, which is fine at the scale of a personal knowledge
// base.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
	logger   *zap.Logger
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(logger *zap.Logger) SQLiteOption {
	return func(s *SQLiteStore) {
		s.logger = logger
	}
}

// NewSQLiteStore opens or creates the database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string, embedder embedding.Embedder, opts ...SQLiteOption) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	s := &SQLiteStore{
		db:       db,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Upsert writes records in a single transaction. Records whose ID and text
// already match a stored row are skipped without re-embedding; records with
// changed text are re-embedded and updated in place.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, rec := range records {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT text FROM records WHERE id = ?`, rec.ID,
		).Scan(&existing)

		switch {
		case err == nil && existing == rec.Text:
			continue
		case err != nil && err != sql.ErrNoRows:
			return fmt.Errorf("look up record %s: %w", rec.ID, err)
		}

		vec, embErr := s.embedder.Embed(ctx, rec.Text)
		if embErr != nil {
			return fmt.Errorf("embed record %s: %w", rec.ID, embErr)
		}
		metadataJSON, mErr := json.Marshal(rec.Metadata)
		if mErr != nil {
			return fmt.Errorf("marshal metadata for %s: %w", rec.ID, mErr)
		}

		if err == sql.ErrNoRows {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO records (id, text, metadata, embedding, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				rec.ID, rec.Text, string(metadataJSON), encodeVector(vec), now, now,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE records SET text = ?, metadata = ?, embedding = ?, updated_at = ?
				 WHERE id = ?`,
				rec.Text, string(metadataJSON), encodeVector(vec), now, rec.ID,
			)
		}
		if err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// Delete removes records matching the metadata filter and returns how many
// were deleted. An empty filter matches nothing.
func (s *SQLiteStore) Delete(ctx context.Context, filter map[string]string) (int64, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("delete requires a non-empty filter")
	}

	ids, err := s.matchingIDs(ctx, filter)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM records WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	var deleted int64
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("delete record %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return deleted, nil
}

func (s *SQLiteStore) matchingIDs(ctx context.Context, filter map[string]string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, metadata FROM records`)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, metadataJSON string
		if err := rows.Scan(&id, &metadataJSON); err != nil {
			return nil, err
		}
		metadata := decodeMetadata(metadataJSON, s.logger, id)
		if matchesFilter(metadata, filter) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// Query embeds the text and returns the top-k matching records by cosine
// similarity, after applying the metadata filter.
func (s *SQLiteStore) Query(ctx context.Context, text string, filter map[string]string, k int) ([]QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, text, metadata, embedding FROM records`)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		var id, body, metadataJSON string
		var blob []byte
		if err := rows.Scan(&id, &body, &metadataJSON, &blob); err != nil {
			return nil, err
		}
		metadata := decodeMetadata(metadataJSON, s.logger, id)
		if !matchesFilter(metadata, filter) {
			continue
		}
		results = append(results, QueryResult{
			Record: Record{ID: id, Text: body, Metadata: metadata},
			Score:  innerProduct(queryVec, decodeVector(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortByScore(results)
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the total number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// Stats returns record totals grouped by the type and source metadata keys.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, metadata FROM records`)
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	stats := &Stats{
		ByType:   make(map[string]int64),
		BySource: make(map[string]int64),
	}
	for rows.Next() {
		var id, metadataJSON string
		if err := rows.Scan(&id, &metadataJSON); err != nil {
			return nil, err
		}
		metadata := decodeMetadata(metadataJSON, s.logger, id)
		stats.TotalDocuments++
		if t := metadata["type"]; t != "" {
			stats.ByType[t]++
		}
		if src := metadata["source"]; src != "" {
			stats.BySource[src]++
		}
	}
	return stats, rows.Err()
}

// Close closes the database and the embedder.
func (s *SQLiteStore) Close() error {
	if err := s.embedder.Close(); err != nil {
		s.logger.Warn("failed to close embedder", zap.Error(err))
	}
	return s.db.Close()
}

func decodeMetadata(metadataJSON string, logger *zap.Logger, id string) map[string]string {
	metadata := make(map[string]string)
	if metadataJSON == "" {
		return metadata
	}
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		logger.Warn("corrupt record metadata", zap.String("id", id), zap.Error(err))
	}
	return metadata
}
