//go:build !integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v4"

	"docbatch/internal/domain"
)

func TestGetExecutor(t *testing.T) {
	t.Run("should refuse a nil tx without a pool", func(t *testing.T) {
		if _, err := getExecutor(nil, nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should refuse a foreign tx type", func(t *testing.T) {
		if _, err := getExecutor(nil, "not-a-tx"); !errors.Is(err, domain.ErrInvalidExecContext) {
			t.Errorf("expected ErrInvalidExecContext, got %v", err)
		}
	})

	t.Run("should surface the executor error from execSQL", func(t *testing.T) {
		_, err := execSQL(context.Background(), nil, 42, "SELECT 1")
		if !errors.Is(execErr(err), domain.ErrInvalidExecContext) {
			t.Errorf("expected ErrInvalidExecContext, got %v", err)
		}
	})
}

func TestExecErr(t *testing.T) {
	testCases := []struct {
		name string
		in   error
		want error
	}{
		{"nil stays nil", nil, nil},
		{"invalid argument passes through", domain.ErrInvalidArgument, domain.ErrInvalidArgument},
		{"wrapped exec context passes through", fmt.Errorf("tx: %w", domain.ErrInvalidExecContext), domain.ErrInvalidExecContext},
		{"driver errors are hidden", errors.New("conn reset"), domain.ErrOperationFailed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := execErr(tc.in)
			if tc.want == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestScanErr(t *testing.T) {
	if err := scanErr(pgx.ErrNoRows); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := scanErr(errors.New("bad column")); !errors.Is(err, domain.ErrReadDatabaseRow) {
		t.Errorf("expected ErrReadDatabaseRow, got %v", err)
	}
}

func TestLockClause(t *testing.T) {
	q := "SELECT id FROM batch_jobs WHERE id = $1"
	if got := lockClause(q, nil); got != q {
		t.Errorf("expected no lock outside a tx, got %q", got)
	}
}
