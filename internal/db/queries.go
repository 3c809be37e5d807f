package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hpungsan/screenflow/internal/kv"
)

// KV implements kv.Store on the kv table.
type KV struct {
	db *sql.DB
}

// NewKV wraps an initialized database.
func NewKV(db *sql.DB) *KV {
	return &KV{db: db}
}

var _ kv.Store = (*KV)(nil)

// Load returns the blob stored under key.
func (s *KV) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", kv.ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("%w: %s: %v", kv.ErrLoadFailed, key, err)
	}
	return value, nil
}

// Save upserts the blob inside a transaction so the replacement is atomic.
func (s *KV) Save(ctx context.Context, key string, value []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", kv.ErrSaveFailed, key, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", kv.ErrSaveFailed, key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s: %v", kv.ErrSaveFailed, key, err)
	}
	return nil
}

// KeyInfo is one stored key and when it was last written.
type KeyInfo struct {
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Keys lists stored keys oldest write first. Keys written in the same second
// sort by name.
func (s *KV) Keys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, updated_at FROM kv ORDER BY updated_at ASC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrLoadFailed, err)
	}
	defer rows.Close()

	var out []KeyInfo
	for rows.Next() {
		var (
			key string
			ts  int64
		)
		if err := rows.Scan(&key, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", kv.ErrLoadFailed, err)
		}
		out = append(out, KeyInfo{Key: key, UpdatedAt: time.Unix(ts, 0)})
	}
	return out, rows.Err()
}
