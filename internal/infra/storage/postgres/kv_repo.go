package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/faultline/internal/infra/storage"
)

// SQLSTATE codes that mean the server is out of room.
var capacityCodes = map[string]bool{
	"53100": true, // disk_full
	"53200": true, // out_of_memory
	"54000": true, // program_limit_exceeded
}

// KVRepo implements storage.KV on a single PostgreSQL table, scoped by namespace.
type KVRepo struct {
	db        *DB
	namespace string
}

// NewKVRepo creates a new PostgreSQL KV repository.
func NewKVRepo(db *DB, namespace string) *KVRepo {
	return &KVRepo{db: db, namespace: namespace}
}

func (r *KVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM kv_store WHERE namespace = $1 AND key = $2`

	var value []byte
	err := r.db.GetContext(ctx, &value, query, r.namespace, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, nil
}

func (r *KVRepo) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, r.namespace, key, value); err != nil {
		return mapError(fmt.Sprintf("failed to set key %s", key), err)
	}
	return nil
}

func (r *KVRepo) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM kv_store WHERE namespace = $1 AND key = $2`
	if _, err := r.db.ExecContext(ctx, query, r.namespace, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (r *KVRepo) Clear(ctx context.Context) error {
	query := `DELETE FROM kv_store WHERE namespace = $1`
	if _, err := r.db.ExecContext(ctx, query, r.namespace); err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", r.namespace, err)
	}
	return nil
}

func (r *KVRepo) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `
		SELECT key FROM kv_store
		WHERE namespace = $1 AND starts_with(key, $2)
		ORDER BY key ASC
	`
	var keys []string
	if err := r.db.SelectContext(ctx, &keys, query, r.namespace, prefix); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

func (r *KVRepo) Close() error {
	return r.db.Close()
}

func mapError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && capacityCodes[pgErr.Code] {
		return fmt.Errorf("%s: %w", msg, storage.ErrCapacityExceeded)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
