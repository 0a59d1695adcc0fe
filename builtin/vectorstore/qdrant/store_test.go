package qdrant

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/spetr/tablerag/internal/storetest"
	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

func TestPointID(t *testing.T) {
	a := pointID("id0")
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("pointID(id0) = %q, not a UUID", a)
	}
	if pointID("id0") != a {
		t.Error("pointID is not stable")
	}
	if pointID("id1") == a {
		t.Error("pointID collides for different ids")
	}

	u := uuid.NewString()
	if pointID(u) != u {
		t.Errorf("pointID(%s) changed an existing UUID", u)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		payloadID:   "id7",
		payloadText: "make: Ford,\n",
		payloadMetadata: map[string]any{
			"source": "dataset",
			"year":   2021,
			"tags":   []any{"a", true},
		},
	})

	doc := toRetrieved(&qdrant.ScoredPoint{
		Id:      qdrant.NewID(pointID("id7")),
		Payload: payload,
		Score:   0.9,
	})

	if doc.ID != "id7" || doc.Text != "make: Ford,\n" || doc.Score != 0.9 {
		t.Errorf("toRetrieved() = %+v", doc)
	}
	if doc.Metadata["source"] != "dataset" {
		t.Errorf("source = %v", doc.Metadata["source"])
	}
	if doc.Metadata["year"] != int64(2021) {
		t.Errorf("year = %#v, want int64(2021)", doc.Metadata["year"])
	}
	tags, ok := doc.Metadata["tags"].([]any)
	if !ok || len(tags) != 2 || tags[1] != true {
		t.Errorf("tags = %#v", doc.Metadata["tags"])
	}
}

func TestNotConnected(t *testing.T) {
	s := New(Config{})
	ctx := context.Background()

	if _, err := s.IsCollectionExisted(ctx, "rows"); !errors.Is(err, types.ErrNotConnected) {
		t.Errorf("IsCollectionExisted() error = %v, want ErrNotConnected", err)
	}
	if s.InsertOne(ctx, "rows", "x", []float32{1}, nil, "") {
		t.Error("InsertOne() on unconnected store = true")
	}
	if res := s.SearchByVector(ctx, "rows", []float32{1}, 3); res == nil || len(res) != 0 {
		t.Errorf("SearchByVector() = %#v, want empty", res)
	}
}

// TestStore runs the shared suite against a live server when QDRANT_HOST is set.
func TestStore(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("QDRANT_PORT"))

	cfg := Config{Host: host, Port: port, APIKey: os.Getenv("QDRANT_API_KEY")}
	var lastDir string
	storetest.Run(t, func(dir string) provider.VectorStore {
		// Subtests share one server, so each new dir starts from a clean slate.
		if dir == lastDir {
			return New(cfg)
		}
		lastDir = dir
		ctx := context.Background()
		s := New(cfg)
		if err := s.Connect(ctx); err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		for _, name := range []string{"rows", "ghost", "a", "b"} {
			s.DeleteCollection(ctx, name)
		}
		s.Disconnect()
		return New(cfg)
	})
}
