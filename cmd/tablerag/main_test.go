package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spetr/tablerag/builtin/vectorstore/bolt"
	"github.com/spetr/tablerag/internal/config"
	"github.com/spetr/tablerag/pkg/types"
)

// useProject points the commands at a fresh project using the bolt store.
func useProject(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.VectorDB.Backend = "bolt"
	cfg.OpenAI.APIKey = "sk-test"
	if err := config.Save(root, cfg); err != nil {
		t.Fatal(err)
	}

	old := projectDir
	projectDir = root
	t.Cleanup(func() { projectDir = old })

	cfg.Root = root
	return cfg
}

// assertStoreReleased fails when the bolt file is still locked by a command.
func assertStoreReleased(t *testing.T, cfg *config.Config) {
	t.Helper()
	path, err := cfg.DatabasePath(cfg.VectorDB.Path)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		s := bolt.New(bolt.Config{Path: path})
		err := s.Connect(context.Background())
		if err == nil {
			err = s.Disconnect()
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("reopen store: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("store still locked after the command returned")
	}
}

func TestFailedCommandReleasesStore(t *testing.T) {
	cfg := useProject(t)

	err := runCollectionsInfo("missing")
	if !errors.Is(err, types.ErrCollectionNotFound) {
		t.Fatalf("runCollectionsInfo(missing) error = %v, want ErrCollectionNotFound", err)
	}
	assertStoreReleased(t, cfg)
}

func TestFailedIndexReleasesProviders(t *testing.T) {
	cfg := useProject(t)

	// Read-only indexing of a collection that was never built.
	err := runIndex(false)
	if !errors.Is(err, types.ErrCollectionNotFound) {
		t.Fatalf("runIndex(false) error = %v, want ErrCollectionNotFound", err)
	}
	assertStoreReleased(t, cfg)
}

func TestConfigValidateReportsErrors(t *testing.T) {
	cfg := useProject(t)
	cfg.VectorDB.Backend = "nope"
	if err := config.Save(projectDir, cfg); err != nil {
		t.Fatal(err)
	}

	if err := runConfigValidate(); err == nil {
		t.Error("runConfigValidate() with an invalid backend = nil, want error")
	}
}
