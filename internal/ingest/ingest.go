// Package ingest turns a CSV dataset into embedded documents ready for a vector store.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// Prepared holds parallel slices for VectorStore.InsertMany.
type Prepared struct {
	Texts    []string
	Metadata []map[string]any
	IDs      []string
	Vectors  [][]float32
}

// Len returns the number of prepared documents.
func (p *Prepared) Len() int {
	return len(p.Texts)
}

// Config contains pipeline configuration.
type Config struct {
	Embedding  provider.EmbeddingProvider
	OnProgress func(done, total int)
}

// Pipeline embeds dataset rows one at a time.
type Pipeline struct {
	embedding  provider.EmbeddingProvider
	onProgress func(done, total int)
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		embedding:  cfg.Embedding,
		onProgress: cfg.OnProgress,
	}
}

// Load parses a CSV file with a header row. It returns the table and the
// file name without extension, which becomes the "source" of every row.
func Load(path string) (*types.Table, string, error) {
	ext := filepath.Ext(path)
	if ext != ".csv" {
		slog.Error("The selected file type is not supported", "path", path)
		return nil, "", fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	table, err := parseCSV(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
	}

	baseName := strings.TrimSuffix(filepath.Base(path), ext)
	return table, baseName, nil
}

func parseCSV(r io.Reader) (*types.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("missing header row")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := &types.Table{Columns: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// Prepare serializes and embeds every row in order. Row i gets id "id<i>" and
// metadata {"source": baseName}. The first embedding failure aborts the pass.
func (p *Pipeline) Prepare(ctx context.Context, table *types.Table, baseName string) (*Prepared, error) {
	n := table.Len()
	out := &Prepared{
		Texts:    make([]string, 0, n),
		Metadata: make([]map[string]any, 0, n),
		IDs:      make([]string, 0, n),
		Vectors:  make([][]float32, 0, n),
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text := table.RowText(i)
		vector, err := p.embedding.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		out.Texts = append(out.Texts, text)
		out.Metadata = append(out.Metadata, map[string]any{"source": baseName})
		out.IDs = append(out.IDs, fmt.Sprintf("id%d", i))
		out.Vectors = append(out.Vectors, vector)

		if p.onProgress != nil {
			p.onProgress(i+1, n)
		}
	}

	slog.Debug("prepared dataset", "source", baseName, "rows", n)
	return out, nil
}
