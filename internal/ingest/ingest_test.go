package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spetr/tablerag/pkg/types"
)

type fakeEmbedder struct {
	calls  []string
	failAt int
}

func (f *fakeEmbedder) Name() string             { return "fake" }
func (f *fakeEmbedder) SetEmbeddingModel(string) {}
func (f *fakeEmbedder) Dimensions() int          { return 2 }
func (f *fakeEmbedder) Close() error             { return nil }

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return nil, types.ErrEmbeddingFailed
	}
	return []float32{float32(len(text)), 1}, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const carsCSV = "make,year\nToyota,2020\nHonda,2019\nFord,2021\n"

func TestLoad(t *testing.T) {
	path := writeFile(t, "dataset.csv", "\ufeff"+carsCSV)

	table, base, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if base != "dataset" {
		t.Errorf("baseName = %q, want dataset", base)
	}
	if table.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", table.Len())
	}
	if table.Columns[0] != "make" {
		t.Errorf("Columns[0] = %q, want make", table.Columns[0])
	}
	if got := table.RowText(0); got != "make: Toyota,\nyear: 2020,\n" {
		t.Errorf("RowText(0) = %q", got)
	}
}

func TestLoadUnsupported(t *testing.T) {
	for _, name := range []string{"data.txt", "DATA.CSV", "data.csv.bak"} {
		path := writeFile(t, name, carsCSV)

		table, base, err := Load(path)
		if !errors.Is(err, types.ErrUnsupportedFormat) {
			t.Fatalf("Load(%s) error = %v, want ErrUnsupportedFormat", name, err)
		}
		if table != nil || base != "" {
			t.Errorf("Load(%s) = %v, %q; want nil, empty", name, table, base)
		}
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeFile(t, "empty.csv", "")
	if _, _, err := Load(path); err == nil {
		t.Error("Load(empty.csv) error = nil, want missing header error")
	}
}

func TestPrepare(t *testing.T) {
	path := writeFile(t, "dataset.csv", carsCSV)
	table, base, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	emb := &fakeEmbedder{}
	var progress []int
	p := New(Config{
		Embedding:  emb,
		OnProgress: func(done, total int) { progress = append(progress, done) },
	})

	out, err := p.Prepare(context.Background(), table, base)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if out.Len() != 3 || len(emb.calls) != 3 {
		t.Fatalf("prepared %d docs with %d embed calls, want 3 and 3", out.Len(), len(emb.calls))
	}

	wantIDs := []string{"id0", "id1", "id2"}
	wantTexts := []string{
		"make: Toyota,\nyear: 2020,\n",
		"make: Honda,\nyear: 2019,\n",
		"make: Ford,\nyear: 2021,\n",
	}
	for i := range wantIDs {
		if out.IDs[i] != wantIDs[i] {
			t.Errorf("IDs[%d] = %q, want %q", i, out.IDs[i], wantIDs[i])
		}
		if out.Texts[i] != wantTexts[i] {
			t.Errorf("Texts[%d] = %q, want %q", i, out.Texts[i], wantTexts[i])
		}
		if out.Metadata[i]["source"] != "dataset" {
			t.Errorf("Metadata[%d] = %v, want source=dataset", i, out.Metadata[i])
		}
		if len(out.Vectors[i]) != 2 {
			t.Errorf("Vectors[%d] has %d dims, want 2", i, len(out.Vectors[i]))
		}
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("progress = %v, want [1 2 3]", progress)
	}
}

func TestPrepareAbortsOnFirstFailure(t *testing.T) {
	table := &types.Table{
		Columns: []string{"make"},
		Rows:    [][]string{{"Toyota"}, {"Honda"}, {"Ford"}},
	}
	emb := &fakeEmbedder{failAt: 2}

	out, err := New(Config{Embedding: emb}).Prepare(context.Background(), table, "dataset")
	if !errors.Is(err, types.ErrEmbeddingFailed) {
		t.Fatalf("Prepare() error = %v, want ErrEmbeddingFailed", err)
	}
	if out != nil {
		t.Error("Prepare() returned partial results")
	}
	if len(emb.calls) != 2 {
		t.Errorf("embed calls = %d, want 2", len(emb.calls))
	}
}

func TestPrepareShortRow(t *testing.T) {
	table := &types.Table{
		Columns: []string{"make", "year"},
		Rows:    [][]string{{"Toyota"}},
	}
	out, err := New(Config{Embedding: &fakeEmbedder{}}).Prepare(context.Background(), table, "cars")
	if err != nil {
		t.Fatal(err)
	}
	if out.Texts[0] != "make: Toyota,\nyear: ,\n" {
		t.Errorf("Texts[0] = %q", out.Texts[0])
	}
}
