// Package storetest holds behavioral tests shared by every VectorStore engine.
package storetest

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/spetr/tablerag/pkg/provider"
)

// Factory builds an unconnected store persisted under dir.
type Factory func(dir string) provider.VectorStore

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateWithResetIsIdempotent", func(t *testing.T) { testCreateReset(t, newStore) })
	t.Run("CreateWithoutResetKeepsExisting", func(t *testing.T) { testCreateNoReset(t, newStore) })
	t.Run("DeleteMissingIsNoop", func(t *testing.T) { testDeleteMissing(t, newStore) })
	t.Run("InsertIntoMissingCollection", func(t *testing.T) { testInsertMissing(t, newStore) })
	t.Run("BatchFailureKeepsEarlierBatches", func(t *testing.T) { testBatchFailure(t, newStore) })
	t.Run("SearchRoundTrip", func(t *testing.T) { testRoundTrip(t, newStore) })
	t.Run("SearchEmptyCollection", func(t *testing.T) { testSearchEmpty(t, newStore) })
	t.Run("AutoIDsDoNotCollide", func(t *testing.T) { testAutoIDs(t, newStore) })
	t.Run("AdoptsFirstDimension", func(t *testing.T) { testAdoptDimension(t, newStore) })
	t.Run("ListAndPersist", func(t *testing.T) { testListAndPersist(t, newStore) })
}

func open(t *testing.T, newStore Factory, dir string) provider.VectorStore {
	t.Helper()
	s := newStore(dir)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { s.Disconnect() })
	return s
}

// unit returns a 4-dimensional one-hot vector with a small offset so that no
// vector is all zeros.
func unit(i int) []float32 {
	v := []float32{0.01, 0.01, 0.01, 0.01}
	v[i%4] = 1
	return v
}

func count(t *testing.T, s provider.VectorStore, name string) uint64 {
	t.Helper()
	info, err := s.GetCollectionInfo(context.Background(), name)
	if err != nil {
		t.Fatalf("GetCollectionInfo(%s) error = %v", name, err)
	}
	return info.Count
}

func testCreateReset(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())

	for i := 0; i < 2; i++ {
		created, err := s.CreateCollection(ctx, "rows", 4, true)
		if err != nil {
			t.Fatalf("CreateCollection(reset) #%d error = %v", i, err)
		}
		if !created {
			t.Errorf("CreateCollection(reset) #%d = false, want true", i)
		}
		if !s.InsertOne(ctx, "rows", "text", unit(0), nil, "") {
			t.Fatalf("InsertOne #%d failed", i)
		}
		if got := count(t, s, "rows"); got != 1 {
			t.Errorf("count after reset #%d = %d, want 1", i, got)
		}
	}
}

func testCreateNoReset(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())

	if created, err := s.CreateCollection(ctx, "rows", 4, false); err != nil || !created {
		t.Fatalf("CreateCollection() = %v, %v; want true, nil", created, err)
	}
	s.InsertOne(ctx, "rows", "keep me", unit(1), nil, "k")

	created, err := s.CreateCollection(ctx, "rows", 4, false)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("CreateCollection() on existing collection = true, want false")
	}
	if got := count(t, s, "rows"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func testDeleteMissing(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())

	if err := s.DeleteCollection(ctx, "nope"); err != nil {
		t.Errorf("DeleteCollection(missing) error = %v, want nil", err)
	}

	s.CreateCollection(ctx, "rows", 4, false)
	if err := s.DeleteCollection(ctx, "rows"); err != nil {
		t.Fatal(err)
	}
	exists, err := s.IsCollectionExisted(ctx, "rows")
	if err != nil || exists {
		t.Errorf("IsCollectionExisted after delete = %v, %v", exists, err)
	}
}

func testInsertMissing(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())

	if s.InsertOne(ctx, "ghost", "text", unit(0), nil, "a") {
		t.Error("InsertOne into missing collection = true")
	}
	if s.InsertMany(ctx, "ghost", []string{"a", "b"}, [][]float32{unit(0), unit(1)}, nil, nil, 50) {
		t.Error("InsertMany into missing collection = true")
	}
	exists, err := s.IsCollectionExisted(ctx, "ghost")
	if err != nil || exists {
		t.Errorf("IsCollectionExisted(ghost) = %v, %v; want false, nil", exists, err)
	}
}

func testBatchFailure(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())
	s.CreateCollection(ctx, "rows", 4, true)

	texts := make([]string, 10)
	vectors := make([][]float32, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("row %d", i)
		vectors[i] = unit(i)
	}
	// Third batch of size 2 holds items 4 and 5.
	vectors[5] = []float32{1, 2, 3}

	if s.InsertMany(ctx, "rows", texts, vectors, nil, nil, 2) {
		t.Fatal("InsertMany with a bad batch = true, want false")
	}
	if got := count(t, s, "rows"); got != 4 {
		t.Errorf("count after failed batch = %d, want 4", got)
	}
}

func testRoundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())
	s.CreateCollection(ctx, "rows", 4, true)

	texts := []string{"make: Toyota,\n", "make: Honda,\n", "make: Ford,\n"}
	vectors := [][]float32{unit(0), unit(1), unit(2)}
	meta := []map[string]any{{"source": "dataset"}, {"source": "dataset"}, {"source": "dataset"}}
	ids := []string{"id0", "id1", "id2"}
	if !s.InsertMany(ctx, "rows", texts, vectors, meta, ids, 0) {
		t.Fatal("InsertMany failed")
	}

	results := s.SearchByVector(ctx, "rows", unit(1), 2)
	if len(results) != 2 {
		t.Fatalf("SearchByVector() returned %d results, want 2", len(results))
	}
	top := results[0]
	if top.ID != "id1" || top.Text != texts[1] {
		t.Errorf("top result = %+v, want id1", top)
	}
	if math.Abs(float64(top.Score)-1) > 1e-3 {
		t.Errorf("top score = %f, want ~1", top.Score)
	}
	if results[1].Score > top.Score {
		t.Errorf("scores not descending: %f then %f", top.Score, results[1].Score)
	}
	if top.Metadata["source"] != "dataset" {
		t.Errorf("metadata = %v, want source=dataset", top.Metadata)
	}
}

func testSearchEmpty(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())
	s.CreateCollection(ctx, "rows", 4, true)

	results := s.SearchByVector(ctx, "rows", unit(0), 3)
	if results == nil || len(results) != 0 {
		t.Errorf("SearchByVector(empty) = %#v, want empty non-nil slice", results)
	}

	missing := s.SearchByVector(ctx, "ghost", unit(0), 3)
	if missing == nil || len(missing) != 0 {
		t.Errorf("SearchByVector(missing) = %#v, want empty non-nil slice", missing)
	}
}

func testAutoIDs(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())
	s.CreateCollection(ctx, "rows", 4, true)

	texts := []string{"a", "b", "c"}
	vectors := [][]float32{unit(0), unit(1), unit(2)}
	for i := 0; i < 2; i++ {
		if !s.InsertMany(ctx, "rows", texts, vectors, nil, nil, 50) {
			t.Fatalf("InsertMany #%d failed", i)
		}
	}
	if got := count(t, s, "rows"); got != 6 {
		t.Errorf("count = %d, want 6", got)
	}
}

func testAdoptDimension(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := open(t, newStore, t.TempDir())
	if _, err := s.CreateCollection(ctx, "rows", 0, true); err != nil {
		t.Skipf("engine requires a fixed size: %v", err)
	}

	if !s.InsertOne(ctx, "rows", "a", unit(0), nil, "a") {
		t.Fatal("first insert failed")
	}
	if s.InsertOne(ctx, "rows", "b", []float32{1, 2}, nil, "b") {
		t.Error("insert with different dimension = true, want false")
	}
	info, err := s.GetCollectionInfo(ctx, "rows")
	if err != nil {
		t.Fatal(err)
	}
	if info.VectorSize != 4 {
		t.Errorf("VectorSize = %d, want 4", info.VectorSize)
	}
}

func testListAndPersist(t *testing.T, newStore Factory) {
	ctx := context.Background()
	dir := t.TempDir()

	s := newStore(dir)
	if err := s.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	s.CreateCollection(ctx, "b", 4, false)
	s.CreateCollection(ctx, "a", 4, false)
	s.InsertOne(ctx, "a", "row", unit(3), map[string]any{"source": "x"}, "id0")
	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}

	reopened := open(t, newStore, dir)
	names, err := reopened.ListAllCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	has := map[string]bool{}
	for _, n := range names {
		has[n] = true
	}
	if !has["a"] || !has["b"] {
		t.Errorf("ListAllCollections() = %v, want a and b", names)
	}
	if got := count(t, reopened, "a"); got != 1 {
		t.Errorf("count after reopen = %d, want 1", got)
	}
}
