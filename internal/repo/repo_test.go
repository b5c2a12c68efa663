package repo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shaiso/Helmsman/internal/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unique", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	if err := notFound(pgx.ErrNoRows, "update", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := notFound(errors.New("conn reset"), "update", "u1"); errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unexpected ErrNotFound for %v", err)
	}
}

func TestOrderByIDs(t *testing.T) {
	byID := map[string]domain.Execution{
		"a": {ID: "a"},
		"c": {ID: "c"},
	}

	got := orderByIDs([]string{"c", "b", "a"}, byID)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "a" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestEncodeUpdate_EmptyCollections(t *testing.T) {
	enc, err := encodeUpdate(&domain.DeploymentUpdate{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(enc.steps) != "[]" || string(enc.executionIDs) != "[]" {
		t.Errorf("expected empty arrays, got %s and %s", enc.steps, enc.executionIDs)
	}
}
