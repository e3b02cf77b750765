package repository

import (
	"context"

	"docbatch/internal/domain/model"
)

// AccountRepository exposes the billing system's accounting primitive.
type AccountRepository interface {
	FindByID(ctx context.Context, tx Tx, userID string) (*model.UserAccount, error)
	// Debit atomically subtracts credits if the balance covers them.
	// It returns domain.ErrInsufficientCredits otherwise and leaves the balance unchanged.
	Debit(ctx context.Context, tx Tx, userID string, credits int64, pages int) (*model.UserAccount, error)
}

type UsageChargeRepository interface {
	// Insert reports false when a charge with the same idempotency key exists.
	Insert(ctx context.Context, tx Tx, c *model.UsageCharge) (bool, error)
	FindByKey(ctx context.Context, tx Tx, key string) (*model.UsageCharge, error)
}
