// Package types contains shared data types used across the tablerag project.
package types

import (
	"fmt"
	"strings"
)

// EmbeddingVector is a fixed-length embedding produced by an EmbeddingProvider.
type EmbeddingVector = []float32

// DistanceCosine is the only distance metric collections are created with.
const DistanceCosine = "cosine"

// Document is a row of text stored in a collection together with its vector.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
	Vector   []float32
}

// RetrievedDocument is a single similarity search hit.
// Score is normalized across backends: higher means closer.
type RetrievedDocument struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name       string         `json:"name"`
	Count      uint64         `json:"count"`
	VectorSize int            `json:"vector_size"`
	Distance   string         `json:"distance"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// String renders the info on one line for logs and CLI output.
func (c *CollectionInfo) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("name=%s count=%d vector_size=%d distance=%s", c.Name, c.Count, c.VectorSize, c.Distance)
}

// Table is a parsed tabular dataset. Rows are aligned with Columns.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// RowText serializes row i as "col: value,\n" for every column in order.
func (t *Table) RowText(i int) string {
	var sb strings.Builder
	row := t.Rows[i]
	for j, col := range t.Columns {
		value := ""
		if j < len(row) {
			value = row[j]
		}
		sb.WriteString(col)
		sb.WriteString(": ")
		sb.WriteString(value)
		sb.WriteString(",\n")
	}
	return sb.String()
}

// ChatMessage is a single message of a chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
