package provider

import (
	"errors"
	"testing"

	"github.com/spetr/tablerag/pkg/types"
)

func TestRegistryUnknownNames(t *testing.T) {
	r := NewRegistry()

	if _, err := r.CreateEmbedding("missing", LLMConfig{}); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("CreateEmbedding(missing) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := r.CreateGeneration("missing", LLMConfig{}); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("CreateGeneration(missing) error = %v, want ErrInvalidConfig", err)
	}
	if _, err := r.CreateVectorStore("missing", VectorStoreConfig{}); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("CreateVectorStore(missing) error = %v, want ErrInvalidConfig", err)
	}
}

func TestRegistryListIsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"qdrant", "bolt", "sqlitevec"} {
		r.RegisterVectorStore(name, func(VectorStoreConfig) (VectorStore, error) { return nil, nil })
	}

	got := r.ListVectorStores()
	want := []string{"bolt", "qdrant", "sqlitevec"}
	if len(got) != len(want) {
		t.Fatalf("ListVectorStores() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListVectorStores()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !r.HasVectorStore("bolt") || r.HasVectorStore("chroma") {
		t.Error("HasVectorStore reported wrong membership")
	}
}
