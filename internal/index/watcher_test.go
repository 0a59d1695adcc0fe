package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spetr/tablerag/pkg/types"
)

type countingReindexer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingReindexer) ForceReindex(ctx context.Context) (*types.CollectionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &types.CollectionInfo{Name: "rows", Count: uint64(c.calls)}, nil
}

func (c *countingReindexer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	if err := os.WriteFile(path, []byte("make\nToyota\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r := &countingReindexer{}
	reindexed := make(chan struct{}, 10)
	w, err := NewWatcher(WatcherConfig{
		DatasetPath:  path,
		Reindexer:    r,
		DebounceTime: 100 * time.Millisecond,
		OnReindex: func(info *types.CollectionInfo, err error) {
			reindexed <- struct{}{}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx) }()
	defer func() {
		cancel()
		<-errc
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Unrelated files are ignored.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644)

	for i, body := range []string{"make\nHonda\n", "make\nHonda\nFord\n", "make\nFord\n"} {
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("write #%d: %v", i, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-reindexed:
	case <-time.After(3 * time.Second):
		t.Fatal("no reindex after dataset change")
	}

	time.Sleep(300 * time.Millisecond)
	if got := r.count(); got != 1 {
		t.Errorf("reindex calls = %d, want 1", got)
	}
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	os.WriteFile(path, []byte("make\nToyota\n"), 0644)

	r := &countingReindexer{}
	w, err := NewWatcher(WatcherConfig{DatasetPath: path, Reindexer: r, DebounceTime: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	w.reindex(context.Background())
	if r.count() != 0 {
		t.Errorf("reindex of unchanged dataset ran %d times", r.count())
	}

	os.WriteFile(path, []byte("make\nHonda\n"), 0644)
	w.reindex(context.Background())
	w.reindex(context.Background())
	if r.count() != 1 {
		t.Errorf("reindex calls = %d, want 1", r.count())
	}

	os.Remove(path)
	w.reindex(context.Background())
	if r.count() != 1 {
		t.Errorf("reindex ran after the dataset was removed")
	}
}
