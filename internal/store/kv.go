package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/readykit/internal/fault"
)

// Document is an opaque serialized value.
type Document []byte

// Get returns the document stored under key.
// The bool is false when the key has never been set (or was removed).
func (s *Store) Get(ctx context.Context, key string) (Document, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM documents WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fault.Wrap(fault.KindStorage, "store get", fmt.Errorf("key %q: %w", key, err))
	}
	return Document(value), true, nil
}

// Set replaces the document under key. The write is committed before Set
// returns. On error the previously committed document is unchanged.
func (s *Store) Set(ctx context.Context, key string, doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (key, value, revision, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			revision = documents.revision + 1,
			updated_at = excluded.updated_at
	`, key, []byte(doc), time.Now().UnixMilli())
	if err != nil {
		return fault.Wrap(fault.KindStorage, "store set", fmt.Errorf("key %q: %w", key, err))
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE key = ?", key); err != nil {
		return fault.Wrap(fault.KindStorage, "store remove", fmt.Errorf("key %q: %w", key, err))
	}
	return nil
}

// Keys lists every stored key in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM documents ORDER BY key ASC")
	if err != nil {
		return nil, fault.Wrap(fault.KindStorage, "store keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fault.Wrap(fault.KindStorage, "store keys", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.KindStorage, "store keys", err)
	}
	return keys, nil
}

// Revision returns how many times key has been written, or 0 if absent.
func (s *Store) Revision(ctx context.Context, key string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx,
		"SELECT revision FROM documents WHERE key = ?", key,
	).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fault.Wrap(fault.KindStorage, "store revision", fmt.Errorf("key %q: %w", key, err))
	}
	return rev, nil
}

// GetJSON decodes the document under key into v.
// Returns false without touching v when the key is absent.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	doc, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return false, fault.Wrap(fault.KindStorage, "store get", fmt.Errorf("decode %q: %w", key, err))
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fault.Wrap(fault.KindStorage, "store set", fmt.Errorf("encode %q: %w", key, err))
	}
	return s.Set(ctx, key, data)
}
