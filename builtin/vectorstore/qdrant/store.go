// Package qdrant implements VectorStore on a remote Qdrant server.
//
// Qdrant point ids must be UUIDs or integers, so every document id is mapped
// to a name-based UUID and the original id travels in the payload.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// Default values
const (
	DefaultHost = "localhost"
	DefaultPort = 6334
)

// Payload keys
const (
	payloadID       = "doc_id"
	payloadText     = "text"
	payloadMetadata = "metadata"
)

// idNamespace scopes point ids derived from document ids.
var idNamespace = uuid.MustParse("6f1c1a62-8c4e-4f53-9d0e-5b7d6f0a9c21")

// Config contains Qdrant connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
}

// Store implements the VectorStore interface for Qdrant.
type Store struct {
	config Config
	client *qdrant.Client
}

// New creates a new, unconnected Qdrant store.
func New(cfg Config) *Store {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return &Store{config: cfg}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "qdrant"
}

// Connect creates the gRPC client and checks server health.
func (s *Store) Connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   s.config.Host,
		Port:   s.config.Port,
		APIKey: s.config.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize qdrant client: %w", err)
	}

	if _, err := client.HealthCheck(ctx); err != nil {
		client.Close()
		return fmt.Errorf("qdrant health check failed at %s:%d: %w", s.config.Host, s.config.Port, err)
	}

	s.client = client
	return nil
}

// Disconnect closes the client connection.
func (s *Store) Disconnect() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// IsCollectionExisted reports whether the collection exists.
func (s *Store) IsCollectionExisted(ctx context.Context, name string) (bool, error) {
	if s.client == nil {
		return false, types.ErrNotConnected
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	return exists, nil
}

// ListAllCollections returns all collection names.
func (s *Store) ListAllCollections(ctx context.Context) ([]string, error) {
	if s.client == nil {
		return nil, types.ErrNotConnected
	}
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	return names, nil
}

// GetCollectionInfo returns the collection's size, dimensions and metric.
func (s *Store) GetCollectionInfo(ctx context.Context, name string) (*types.CollectionInfo, error) {
	if s.client == nil {
		return nil, types.ErrNotConnected
	}
	exists, err := s.IsCollectionExisted(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, name)
	}

	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}

	exact := true
	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: name, Exact: &exact})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}

	size, distance := vectorDetails(info)
	return &types.CollectionInfo{
		Name:       name,
		Count:      count,
		VectorSize: size,
		Distance:   distance,
		Metadata: map[string]any{
			"engine": s.Name(),
			"status": info.GetStatus().String(),
			"host":   fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		},
	}, nil
}

func vectorDetails(info *qdrant.CollectionInfo) (int, string) {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, ""
	}
	return int(params.GetSize()), strings.ToLower(params.GetDistance().String())
}

// DeleteCollection removes the collection. Missing collections are ignored.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	exists, err := s.IsCollectionExisted(ctx, name)
	if err != nil || !exists {
		return err
	}
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	return nil
}

// CreateCollection creates a cosine collection, deleting an existing one first when doReset is set.
// Qdrant needs the vector size up front, so embeddingSize must be positive.
func (s *Store) CreateCollection(ctx context.Context, name string, embeddingSize int, doReset bool) (bool, error) {
	if s.client == nil {
		return false, types.ErrNotConnected
	}
	if embeddingSize <= 0 {
		return false, fmt.Errorf("%w: qdrant collection %s needs a positive embedding size", types.ErrInvalidConfig, name)
	}
	if doReset {
		if err := s.DeleteCollection(ctx, name); err != nil {
			return false, err
		}
	}

	exists, err := s.IsCollectionExisted(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(embeddingSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", types.ErrStoreFailed, err)
	}
	return true, nil
}

// InsertOne stores a single document.
func (s *Store) InsertOne(ctx context.Context, name, text string, vector []float32, metadata map[string]any, id string) bool {
	var ids []string
	if id != "" {
		ids = []string{id}
	}
	return s.InsertMany(ctx, name, []string{text}, [][]float32{vector}, []map[string]any{metadata}, ids, 1)
}

// InsertMany upserts documents in sequential batches.
func (s *Store) InsertMany(ctx context.Context, name string, texts []string, vectors [][]float32, metadata []map[string]any, ids []string, batchSize int) bool {
	if s.client == nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", types.ErrNotConnected)
		return false
	}

	info, err := s.GetCollectionInfo(ctx, name)
	if err != nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", err)
		return false
	}

	docs, err := provider.BuildDocuments(texts, vectors, metadata, ids)
	if err != nil {
		slog.Error("insert failed", "store", s.Name(), "collection", name, "error", err)
		return false
	}

	for _, r := range provider.Batches(len(docs), batchSize) {
		if err := s.upsertBatch(ctx, name, docs[r[0]:r[1]], info.VectorSize); err != nil {
			slog.Error(fmt.Sprintf("Error while inserting batch [%d:%d]", r[0], r[1]), "store", s.Name(), "collection", name, "error", err)
			return false
		}
	}
	return true
}

func (s *Store) upsertBatch(ctx context.Context, name string, batch []*types.Document, size int) error {
	if err := provider.CheckDimensions(batch, size); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(batch))
	for _, d := range batch {
		payload, err := qdrant.TryValueMap(map[string]any{
			payloadID:       d.ID,
			payloadText:     d.Text,
			payloadMetadata: d.Metadata,
		})
		if err != nil {
			return fmt.Errorf("payload for %s: %w", d.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(d.ID)),
			Vectors: qdrant.NewVectors(d.Vector...),
			Payload: payload,
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         points,
		Wait:           &wait,
	})
	return err
}

// SearchByVector returns the closest documents, best first.
func (s *Store) SearchByVector(ctx context.Context, name string, vector []float32, limit int) []types.RetrievedDocument {
	results := []types.RetrievedDocument{}
	if s.client == nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", types.ErrNotConnected)
		return results
	}
	if limit <= 0 || len(vector) == 0 {
		return results
	}

	n := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		slog.Error("search failed", "store", s.Name(), "collection", name, "error", err)
		return results
	}

	for _, p := range points {
		results = append(results, toRetrieved(p))
	}
	return results
}

func toRetrieved(p *qdrant.ScoredPoint) types.RetrievedDocument {
	doc := types.RetrievedDocument{
		ID:    p.GetPayload()[payloadID].GetStringValue(),
		Text:  p.GetPayload()[payloadText].GetStringValue(),
		Score: p.GetScore(),
	}
	if doc.ID == "" {
		doc.ID = p.GetId().GetUuid()
	}
	if meta, ok := valueToAny(p.GetPayload()[payloadMetadata]).(map[string]any); ok {
		doc.Metadata = meta
	} else {
		doc.Metadata = map[string]any{}
	}
	return doc
}

// pointID maps a document id to a stable UUID. Ids that already are UUIDs are kept.
func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(idNamespace, []byte(id)).String()
}

// valueToAny converts a payload value back into plain Go values.
func valueToAny(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(k.StructValue.GetFields()))
		for key, field := range k.StructValue.GetFields() {
			out[key] = valueToAny(field)
		}
		return out
	case *qdrant.Value_ListValue:
		out := make([]any, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			out = append(out, valueToAny(item))
		}
		return out
	default:
		return nil
	}
}

// Ensure Store implements VectorStore interface
var _ provider.VectorStore = (*Store)(nil)
