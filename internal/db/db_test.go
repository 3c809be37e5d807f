package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/screenflow/internal/kv"
)

func TestInit(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	dbPath := filepath.Join(tmpDir, FileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", dbPath)
	}

	exportsDir := filepath.Join(tmpDir, "exports")
	info, err := os.Stat(exportsDir)
	if os.IsNotExist(err) {
		t.Errorf("exports directory not created at %s", exportsDir)
	} else if !info.IsDir() {
		t.Errorf("exports path is not a directory")
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		t.Fatalf("failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %s, want wal", journalMode)
	}

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='kv'").Scan(&tableName)
	if err != nil {
		t.Fatalf("kv table not found: %v", err)
	}
}

func TestInit_CreatesDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	baseDir := filepath.Join(tmpDir, "nested", "path", ".screenflow")

	db, err := Init(baseDir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		t.Errorf("base directory not created at %s", baseDir)
	}
}

func TestInit_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()

	db1, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("first Init() error = %v", err)
	}
	db1.Close()

	db2, err := Init(tmpDir)
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	defer db2.Close()

	version, err := GetUserVersion(db2)
	if err != nil {
		t.Fatalf("GetUserVersion() error = %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, CurrentSchemaVersion)
	}
}

func TestKV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer db.Close()

	store := NewKV(db)

	if _, err := store.Load(ctx, "history"); !errors.Is(err, kv.ErrKeyNotFound) {
		t.Fatalf("Load() on empty table error = %v, want ErrKeyNotFound", err)
	}

	if err := store.Save(ctx, "history", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "history", []byte(`{"version":1,"submissions":[]}`)); err != nil {
		t.Fatalf("Save overwrite failed: %v", err)
	}

	got, err := store.Load(ctx, "history")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(got) != `{"version":1,"submissions":[]}` {
		t.Errorf("Load() = %s, want overwritten value", got)
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Keys() = %v, want one key", keys)
	}
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db1, err := Init(dir)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := NewKV(db1).Save(ctx, "prompts/custom", []byte(`[]`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	db1.Close()

	db2, err := Init(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()

	got, err := NewKV(db2).Load(ctx, "prompts/custom")
	if err != nil {
		t.Fatalf("Load after reopen failed: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("Load() = %s, want []", got)
	}
}

func TestInit_CreatesUpdatedAtIndex(t *testing.T) {
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'kv_updated_at'`).Scan(&name)
	if err != nil {
		t.Fatalf("kv_updated_at index missing: %v", err)
	}
}

func TestKV_KeysOldestFirst(t *testing.T) {
	ctx := context.Background()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer db.Close()

	rows := []struct {
		key string
		ts  int64
	}{
		{"prompts/preferred", 300},
		{"history", 100},
		{"prompts/custom", 200},
		{"archive", 200},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)`, r.key, []byte("{}"), r.ts); err != nil {
			t.Fatalf("insert %s: %v", r.key, err)
		}
	}

	keys, err := NewKV(db).Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := []string{"history", "archive", "prompts/custom", "prompts/preferred"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i, k := range keys {
		if k.Key != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, k.Key, want[i])
		}
	}
	if keys[0].UpdatedAt.Unix() != 100 {
		t.Errorf("UpdatedAt = %v, want unix 100", keys[0].UpdatedAt)
	}
}
