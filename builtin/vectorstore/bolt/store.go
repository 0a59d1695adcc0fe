// Package bolt implements VectorStore on an embedded bbolt file with
// exhaustive cosine similarity search.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// DBFileName is the database file created inside the store directory.
const DBFileName = "bolt.db"

var (
	bucketCollections = []byte("collections")
	bucketDocs        = []byte("docs")
	keyMeta           = []byte("meta")
)

// Config contains bolt store configuration.
type Config struct {
	Path string // Directory holding the database file
}

type collectionMeta struct {
	Dimensions int       `json:"dimensions"`
	Distance   string    `json:"distance"`
	CreatedAt  time.Time `json:"created_at"`
}

type record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Vector   []float32      `json:"vector"`
}

// Store implements the VectorStore interface using bbolt.
type Store struct {
	dir string
	db  *bbolt.DB
}

// New creates a new, unconnected bolt store.
func New(cfg Config) *Store {
	return &Store{dir: cfg.Path}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "bolt"
}

// Connect opens the database file.
func (s *Store) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(s.dir, DBFileName), 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return err
	}

	s.db = db
	return nil
}

// Disconnect closes the database file.
func (s *Store) Disconnect() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func collection(tx *bbolt.Tx, name string) *bbolt.Bucket {
	return tx.Bucket(bucketCollections).Bucket([]byte(name))
}

func readMeta(b *bbolt.Bucket) (collectionMeta, error) {
	var meta collectionMeta
	err := json.Unmarshal(b.Get(keyMeta), &meta)
	return meta, err
}

// IsCollectionExisted reports whether the collection exists.
func (s *Store) IsCollectionExisted(ctx context.Context, name string) (bool, error) {
	if s.db == nil {
		return false, types.ErrNotConnected
	}
	var exists bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = collection(tx, name) != nil
		return nil
	})
	return exists, err
}

// ListAllCollections returns all collection names in key order.
func (s *Store) ListAllCollections(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, types.ErrNotConnected
	}
	names := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollections).ForEach(func(k, v []byte) error {
			// nested buckets have nil values
			if v == nil {
				names = append(names, string(k))
			}
			return nil
		})
	})
	return names, err
}

// GetCollectionInfo returns the collection's size, dimensions and metric.
func (s *Store) GetCollectionInfo(ctx context.Context, name string) (*types.CollectionInfo, error) {
	if s.db == nil {
		return nil, types.ErrNotConnected
	}
	var info *types.CollectionInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := collection(tx, name)
		if b == nil {
			return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
		}
		meta, err := readMeta(b)
		if err != nil {
			return fmt.Errorf("%w: corrupt metadata for %s: %w", types.ErrStoreFailed, name, err)
		}
		info = &types.CollectionInfo{
			Name:       name,
			Count:      countKeys(b.Bucket(bucketDocs)),
			VectorSize: meta.Dimensions,
			Distance:   meta.Distance,
			Metadata: map[string]any{
				"engine":     s.Name(),
				"path":       filepath.Join(s.dir, DBFileName),
				"created_at": meta.CreatedAt.Format(time.RFC3339),
			},
		}
		return nil
	})
	return info, err
}

// DeleteCollection removes the collection. Missing collections are ignored.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	if s.db == nil {
		return types.ErrNotConnected
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		if root.Bucket([]byte(name)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(name))
	})
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

	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		if root.Bucket([]byte(name)) != nil {
			return nil
		}
		b, err := root.CreateBucket([]byte(name))
		if err != nil {
			return err
		}
		if _, err := b.CreateBucket(bucketDocs); err != nil {
			return err
		}
		data, err := json.Marshal(collectionMeta{
			Dimensions: embeddingSize,
			Distance:   types.DistanceCosine,
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		created = true
		return b.Put(keyMeta, data)
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	return created, nil
}

// InsertOne stores a single document.
func (s *Store) InsertOne(ctx context.Context, name, text string, vector []float32, metadata map[string]any, id string) bool {
	var ids []string
	if id != "" {
		ids = []string{id}
	}
	return s.InsertMany(ctx, name, []string{text}, [][]float32{vector}, []map[string]any{metadata}, ids, 1)
}

// InsertMany stores documents in sequential batches, one write transaction per batch.
func (s *Store) InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []string, batchSize int) bool {
	if s.db == nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", types.ErrNotConnected)
		return false
	}

	if exists, err := s.IsCollectionExisted(ctx, name); err != nil || !exists {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name))
		return false
	}

	docs, err := provider.BuildDocuments(texts, vectors, metadata, ids)
	if err != nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", err)
		return false
	}

	for _, r := range provider.Batches(len(docs), batchSize) {
		err := s.db.Update(func(tx *bbolt.Tx) error {
			return insertBatch(tx, name, docs[r[0]:r[1]])
		})
		if err != nil {
			slog.Error(fmt.Sprintf("Error while inserting batch [%d:%d]", r[0], r[1]), "store", s.Name(), "collection", name, "error", err)
			return false
		}
	}
	return true
}

func insertBatch(tx *bbolt.Tx, name string, batch []*types.Document) error {
	b := collection(tx, name)
	if b == nil {
		return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}
	meta, err := readMeta(b)
	if err != nil {
		return err
	}
	if err := provider.CheckDimensions(batch, meta.Dimensions); err != nil {
		return err
	}

	docs := b.Bucket(bucketDocs)
	for _, d := range batch {
		data, err := json.Marshal(record{ID: d.ID, Text: d.Text, Metadata: d.Metadata, Vector: d.Vector})
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", d.ID, err)
		}
		if err := docs.Put([]byte(d.ID), data); err != nil {
			return err
		}
	}

	if meta.Dimensions == 0 {
		meta.Dimensions = len(batch[0].Vector)
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put(keyMeta, data)
	}
	return nil
}

// SearchByVector scores every document by cosine similarity and returns the best first.
func (s *Store) SearchByVector(ctx context.Context, name string, vector []float32, limit int) []types.RetrievedDocument {
	results := []types.RetrievedDocument{}
	if s.db == nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", types.ErrNotConnected)
		return results
	}
	if limit <= 0 || len(vector) == 0 {
		return results
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := collection(tx, name)
		if b == nil {
			return fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
		}
		meta, err := readMeta(b)
		if err != nil {
			return err
		}
		if meta.Dimensions != 0 && meta.Dimensions != len(vector) {
			return fmt.Errorf("%w: query has %d, collection has %d", types.ErrDimensionMismatch, len(vector), meta.Dimensions)
		}

		return b.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			results = append(results, types.RetrievedDocument{
				ID:       rec.ID,
				Text:     rec.Text,
				Score:    cosineSimilarity(vector, rec.Vector),
				Metadata: rec.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", err)
		return []types.RetrievedDocument{}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func countKeys(b *bbolt.Bucket) uint64 {
	var n uint64
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
