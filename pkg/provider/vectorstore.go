package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spetr/tablerag/pkg/types"
)

// DefaultInsertBatchSize bounds the number of records sent per insert call.
const DefaultInsertBatchSize = 50

// VectorStore manages collections of embedded documents and searches them.
//
// Insert operations never return errors: a failure is logged and reported as
// false. Search returns an empty result both for "no matches" and for backend
// failures. Scores of RetrievedDocument are normalized so that higher is closer.
type VectorStore interface {
	// Name returns the store name (e.g., "sqlitevec").
	Name() string

	// Connect opens the underlying database or client.
	Connect(ctx context.Context) error

	// Disconnect releases the underlying database or client.
	Disconnect() error

	// IsCollectionExisted reports whether the named collection exists.
	IsCollectionExisted(ctx context.Context, name string) (bool, error)

	// ListAllCollections returns the names of all collections.
	ListAllCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo returns metadata about a collection.
	GetCollectionInfo(ctx context.Context, name string) (*types.CollectionInfo, error)

	// DeleteCollection removes a collection. Missing collections are not an error.
	DeleteCollection(ctx context.Context, name string) error

	// CreateCollection creates a cosine collection. With doReset, any existing
	// collection of that name is deleted first. Returns true iff a new
	// collection was created.
	CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) (bool, error)

	// InsertOne stores a single document. metadata and id are optional.
	InsertOne(ctx context.Context, name, text string, vector []float32, metadata map[string]any, id string) bool

	// InsertMany stores documents in sequential batches of batchSize.
	// A failing batch aborts the remaining ones; earlier batches stay stored.
	InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []string, batchSize int) bool

	// SearchByVector returns up to limit documents in backend ranking order.
	SearchByVector(ctx context.Context, name string, vector []float32, limit int) []types.RetrievedDocument
}

// VectorStoreConfig contains configuration for vector stores.
type VectorStoreConfig struct {
	Provider string // "sqlitevec", "bolt", "qdrant"
	Path     string // Persistence directory (local engines)
	Host     string // Server host (qdrant)
	Port     int    // Server port (qdrant)
	APIKey   string // Server API key (qdrant)
}

// BuildDocuments validates parallel insert arguments and fills in defaults:
// missing metadata becomes an empty map and missing ids become random UUIDs.
func BuildDocuments(texts []string, vectors [][]float32, metadata []map[string]any, ids []string) ([]*types.Document, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("%w: %d texts but %d vectors", types.ErrStoreFailed, len(texts), len(vectors))
	}
	if metadata != nil && len(metadata) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts but %d metadata entries", types.ErrStoreFailed, len(texts), len(metadata))
	}
	if ids != nil && len(ids) != len(texts) {
		return nil, fmt.Errorf("%w: %d texts but %d ids", types.ErrStoreFailed, len(texts), len(ids))
	}

	docs := make([]*types.Document, len(texts))
	for i := range texts {
		doc := &types.Document{
			Text:   texts[i],
			Vector: vectors[i],
		}
		if metadata != nil && metadata[i] != nil {
			doc.Metadata = metadata[i]
		} else {
			doc.Metadata = map[string]any{}
		}
		if ids != nil && ids[i] != "" {
			doc.ID = ids[i]
		} else {
			doc.ID = uuid.NewString()
		}
		docs[i] = doc
	}
	return docs, nil
}

// Batches splits n items into consecutive [start, end) ranges of at most size.
func Batches(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultInsertBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// CheckDimensions verifies that every vector has the given size.
// A size of 0 accepts any non-empty vectors of equal length.
func CheckDimensions(docs []*types.Document, size int) error {
	for _, d := range docs {
		if len(d.Vector) == 0 {
			return fmt.Errorf("%w: empty vector for %s", types.ErrDimensionMismatch, d.ID)
		}
		if size == 0 {
			size = len(d.Vector)
		}
		if len(d.Vector) != size {
			return fmt.Errorf("%w: %s has %d, want %d", types.ErrDimensionMismatch, d.ID, len(d.Vector), size)
		}
	}
	return nil
}
