// Package sqlagent answers natural-language questions over a SQLite database
// by letting a generation model write the query.
package sqlagent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spetr/tablerag/pkg/provider"
	"github.com/spetr/tablerag/pkg/types"
)

// Default values
const (
	DefaultTopK       = 5
	DefaultSampleRows = 3
	DefaultMaxRows    = 50
)

// queryTemperature asks for a deterministic query. A literal 0 is dropped
// from the request by go-openai's omitempty tag.
const queryTemperature = math.SmallestNonzeroFloat32

const queryPrompt = `You are a SQLite expert. Given an input question, create a syntactically correct SQLite query to run.
Unless the user specifies in the question a specific number of examples to obtain, query for at most %d results using the LIMIT clause.
Never query for all columns from a table. Query only the columns that are needed to answer the question and wrap each column name in double quotes.
Use only the column names you can see in the tables below and pay attention to which column is in which table.
Use the date('now') function to get the current date if the question involves "today".

Use the following format:

Question: Question here
SQLQuery: SQL Query to run

Only use the following tables:
%s

Question: %s
SQLQuery: `

const answerPrompt = "Given the following user question, corresponding SQL query, and SQL result, answer the user question.\n" +
	" Question: %s\n" +
	" SQL Query: %s\n" +
	" SQL Result: %s\n" +
	" Answer: "

// Config contains agent configuration.
type Config struct {
	Generation   provider.GenerationProvider
	DatabasePath string
	TopK         int // LIMIT suggested to the model
	MaxRows      int // rows of a result passed back to the model
}

// Agent turns questions into SQL, runs it and phrases the result.
type Agent struct {
	generation provider.GenerationProvider
	dbPath     string
	topK       int
	maxRows    int
}

// New creates a new agent.
func New(cfg Config) *Agent {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &Agent{
		generation: cfg.Generation,
		dbPath:     cfg.DatabasePath,
		topK:       cfg.TopK,
		maxRows:    cfg.MaxRows,
	}
}

// Answer is the result of Ask.
type Answer struct {
	Question string `json:"question"`
	Query    string `json:"query"`
	Result   string `json:"result"`
	Answer   string `json:"answer"`
}

// Ask writes a query for question, executes it and asks the model to answer
// from the result. Query errors are passed to the model as the result.
func (a *Agent) Ask(ctx context.Context, question string) (*Answer, error) {
	db, err := a.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	schema, err := Schema(ctx, db, DefaultSampleRows)
	if err != nil {
		return nil, err
	}

	raw, err := a.generation.GenerateText(ctx, fmt.Sprintf(queryPrompt, a.topK, schema, question), nil, 0, queryTemperature)
	if err != nil {
		return nil, err
	}
	query := CleanQuery(raw)
	if query == "" {
		return nil, fmt.Errorf("%w: model returned no SQL query", types.ErrGenerationFailed)
	}
	slog.Debug("generated sql", "query", query)

	result, err := Execute(ctx, db, query, a.maxRows)
	if err != nil {
		slog.Warn("sql query failed", "query", query, "error", err)
		result = "Error: " + err.Error()
	}

	answer, err := a.generation.GenerateText(ctx, fmt.Sprintf(answerPrompt, question, query, result), nil, 0, -1)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Question: question,
		Query:    query,
		Result:   result,
		Answer:   strings.TrimSpace(answer),
	}, nil
}

func (a *Agent) open() (*sql.DB, error) {
	if _, err := os.Stat(a.dbPath); err != nil {
		return nil, fmt.Errorf("%w: sql database %s", types.ErrNotFound, a.dbPath)
	}
	db, err := sql.Open("sqlite3", "file:"+a.dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// CleanQuery removes the "SQLQuery:" label, markdown fences and anything the
// model appended after the query.
func CleanQuery(text string) string {
	if i := strings.Index(text, "SQLResult:"); i >= 0 {
		text = text[:i]
	}
	for _, prefix := range []string{"SQLQuery:", "```sql", "```"} {
		text = strings.ReplaceAll(text, prefix, "")
	}
	return strings.TrimSpace(text)
}

// Schema describes every user table with its CREATE statement followed by a
// few sample rows.
func Schema(ctx context.Context, db *sql.DB, sampleRows int) (string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}

	type table struct{ name, ddl string }
	var tables []table
	for rows.Next() {
		var t table
		var ddl sql.NullString
		if err := rows.Scan(&t.name, &ddl); err != nil {
			rows.Close()
			return "", err
		}
		t.ddl = ddl.String
		tables = append(tables, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", errors.New("database has no tables")
	}

	var sb strings.Builder
	for i, t := range tables {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(t.ddl))
		if sampleRows <= 0 {
			continue
		}
		sample, err := Execute(ctx, db, fmt.Sprintf(`SELECT * FROM "%s" LIMIT %d`, strings.ReplaceAll(t.name, `"`, `""`), sampleRows), sampleRows)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "\n\n/*\n%d rows from %s table:\n%s\n*/", sampleRows, t.name, sample)
	}
	return sb.String(), nil
}

// Execute runs query and renders at most maxRows rows as a tab-separated
// table with a header line.
func Execute(ctx context.Context, db *sql.DB, query string, maxRows int) (string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, "\t"))

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	n := 0
	for rows.Next() {
		if maxRows > 0 && n >= maxRows {
			sb.WriteString("\n...")
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = formatValue(v)
		}
		sb.WriteString("\n")
		sb.WriteString(strings.Join(cells, "\t"))
		n++
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
