// Package sqlitevec implements VectorStore on SQLite using sqlite-vec for
// cosine distance. Scores are reported as 1 - distance.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// DBFileName is the database file created inside the store directory.
const DBFileName = "sqlitevec.db"

// Config contains sqlitevec configuration.
type Config struct {
	Path string // Directory holding the database file
}

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	dir string
	db  *sql.DB
}

// New creates a new, unconnected sqlite-vec store.
func New(cfg Config) *Store {
	return &Store{dir: cfg.Path}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Connect opens the database and creates the schema.
func (s *Store) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	// Register sqlite-vec extension before opening any database connection.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead of failing immediately
	path := filepath.Join(s.dir, DBFileName)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "SELECT vec_version()"); err != nil {
		db.Close()
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.db = db
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimensions INTEGER NOT NULL,
			distance TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (collection, id)
		)
	`)
	return err
}

// Disconnect closes the database.
func (s *Store) Disconnect() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// IsCollectionExisted reports whether the collection exists.
func (s *Store) IsCollectionExisted(ctx context.Context, name string) (bool, error) {
	if s.db == nil {
		return false, types.ErrNotConnected
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	return n > 0, nil
}

// ListAllCollections returns all collection names in name order.
func (s *Store) ListAllCollections(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, types.ErrNotConnected
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetCollectionInfo returns the collection's size, dimensions and metric.
func (s *Store) GetCollectionInfo(ctx context.Context, name string) (*types.CollectionInfo, error) {
	if s.db == nil {
		return nil, types.ErrNotConnected
	}

	info := &types.CollectionInfo{Name: name}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT dimensions, distance, created_at FROM collections WHERE name = ?
	`, name).Scan(&info.VectorSize, &info.Distance, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, name).Scan(&info.Count); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}

	info.Metadata = map[string]any{
		"engine":     s.Name(),
		"path":       filepath.Join(s.dir, DBFileName),
		"created_at": createdAt,
	}
	return info, nil
}

// DeleteCollection removes the collection and its documents.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	if s.db == nil {
		return types.ErrNotConnected
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	return tx.Commit()
}

// CreateCollection creates a cosine collection, deleting an existing one first when doReset is set.
func (s *Store) CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) (bool, error) {
	if s.db == nil {
		return false, types.ErrNotConnected
	}
	if doReset {
		if err := s.DeleteCollection(ctx, name); err != nil {
			return false, err
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO collections (name, dimensions, distance) VALUES (?, ?, ?)
	`, name, embeddingSize, types.DistanceCosine)
	if err != nil {
		return false, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertOne stores a single document.
func (s *Store) InsertOne(ctx context.Context, name, text string, vector []float32, metadata map[string]any, id string) bool {
	var ids []string
	if id != "" {
		ids = []string{id}
	}
	return s.InsertMany(ctx, name, []string{text}, [][]float32{vector}, []map[string]any{metadata}, ids, 1)
}

// InsertMany stores documents in sequential batches, one transaction per batch.
func (s *Store) InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []string, batchSize int) bool {
	if s.db == nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", types.ErrNotConnected)
		return false
	}

	dims, err := s.collectionDimensions(ctx, name)
	if err != nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", err)
		return false
	}

	docs, err := provider.BuildDocuments(texts, vectors, metadata, ids)
	if err != nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", err)
		return false
	}

	for _, b := range provider.Batches(len(docs), batchSize) {
		batch := docs[b[0]:b[1]]
		if err := s.insertBatch(ctx, name, batch, &dims); err != nil {
			slog.Error(fmt.Sprintf("Error while inserting batch [%d:%d]", b[0], b[1]), "store", s.Name(), "collection", name, "error", err)
			return false
		}
	}
	return true
}

func (s *Store) insertBatch(ctx context.Context, name string, batch []*types.Document, dims *int) error {
	if err := provider.CheckDimensions(batch, *dims); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO documents (collection, id, text, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range batch {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, name, d.ID, d.Text, string(meta), floatsToBytes(d.Vector)); err != nil {
			return fmt.Errorf("failed to store %s: %w", d.ID, err)
		}
	}

	if *dims == 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimensions = ? WHERE name = ?`, len(batch[0].Vector), name); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if *dims == 0 {
		*dims = len(batch[0].Vector)
	}
	return nil
}

func (s *Store) collectionDimensions(ctx context.Context, name string) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx, `SELECT dimensions FROM collections WHERE name = ?`, name).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	return dims, err
}

// SearchByVector returns the closest documents, best first.
func (s *Store) SearchByVector(ctx context.Context, name string, vector []float32, limit int) []types.RetrievedDocument {
	results := []types.RetrievedDocument{}
	if s.db == nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", types.ErrNotConnected)
		return results
	}
	if limit <= 0 || len(vector) == 0 {
		return results
	}

	dims, err := s.collectionDimensions(ctx, name)
	if err != nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", err)
		return results
	}
	if dims != 0 && dims != len(vector) {
		slog.Error("search failed", "store", s.Name(), "collection", name,
			"error", fmt.Errorf("%w: query has %d, collection has %d", types.ErrDimensionMismatch, len(vector), dims))
		return results
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, metadata, vec_distance_cosine(embedding, ?) AS distance
		FROM documents
		WHERE collection = ?
		ORDER BY distance ASC
		LIMIT ?
	`, floatsToBytes(vector), name, limit)
	if err != nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", err)
		return results
	}
	defer rows.Close()

	for rows.Next() {
		var (
			doc      types.RetrievedDocument
			meta     string
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &meta, &distance); err != nil {
			slog.Error("search failed", "store", s.Name(), "collection", name, "error", err)
			return []types.RetrievedDocument{}
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			slog.Warn("invalid metadata", "store", s.Name(), "id", doc.ID, "error", err)
		}
		doc.Score = float32(1 - distance)
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", err)
		return []types.RetrievedDocument{}
	}

	return results
}

// floatsToBytes converts float32 slice to bytes for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
