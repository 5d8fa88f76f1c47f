package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/faultline/internal/infra/storage"
)

func TestMapError_Capacity(t *testing.T) {
	err := mapError("set", &pgconn.PgError{Code: "53100", Message: "could not extend file"})
	if !errors.Is(err, storage.ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestMapError_Other(t *testing.T) {
	err := mapError("set", &pgconn.PgError{Code: "23505"})
	if errors.Is(err, storage.ErrCapacityExceeded) {
		t.Error("unique violation must not be reported as capacity")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Error("expected the PgError to stay wrapped")
	}
}
