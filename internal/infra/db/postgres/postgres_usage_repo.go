package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
)

var (
	_ repository.AccountRepository     = (*accountRepo)(nil)
	_ repository.UsageChargeRepository = (*usageChargeRepo)(nil)
)

type accountRepo struct{ pool *pgxpool.Pool }

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, userID string) (*model.UserAccount, error) {
	q := lockClause(`SELECT id, credit_balance, pages_used, updated_at FROM user_accounts WHERE id=$1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	var a model.UserAccount
	if err := row.Scan(&a.ID, &a.CreditBalance, &a.PagesUsed, &a.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &a, nil
}

// Debit is check-and-decrement in one statement; no row means the balance was short.
func (r *accountRepo) Debit(ctx context.Context, tx repository.Tx, userID string, credits int64, pages int) (*model.UserAccount, error) {
	if credits < 0 || pages < 0 {
		return nil, domain.ErrInvalidArgument
	}
	const q = `
UPDATE user_accounts
   SET credit_balance = credit_balance - $2, pages_used = pages_used + $3, updated_at = NOW()
 WHERE id=$1 AND credit_balance >= $2
RETURNING id, credit_balance, pages_used, updated_at;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, credits, pages)
	if err != nil {
		return nil, err
	}
	var a model.UserAccount
	if err := row.Scan(&a.ID, &a.CreditBalance, &a.PagesUsed, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInsufficientCredits
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &a, nil
}

// TopUp adds credits, creating the account on first use.
func (r *accountRepo) TopUp(ctx context.Context, tx repository.Tx, userID string, credits int64) (*model.UserAccount, error) {
	if userID == "" || credits <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO user_accounts (id, credit_balance) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET credit_balance = user_accounts.credit_balance + EXCLUDED.credit_balance, updated_at = NOW()
RETURNING id, credit_balance, pages_used, updated_at;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, credits)
	if err != nil {
		return nil, err
	}
	var a model.UserAccount
	if err := row.Scan(&a.ID, &a.CreditBalance, &a.PagesUsed, &a.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &a, nil
}

type usageChargeRepo struct{ pool *pgxpool.Pool }

func NewUsageChargeRepo(pool *pgxpool.Pool) *usageChargeRepo {
	return &usageChargeRepo{pool: pool}
}

func (r *usageChargeRepo) Insert(ctx context.Context, tx repository.Tx, c *model.UsageCharge) (bool, error) {
	const q = `
INSERT INTO usage_charges (id, user_id, job_id, idempotency_key, pages, credits, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (idempotency_key) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q, c.ID, c.UserID, c.JobID, c.IdempotencyKey, c.Pages, c.Credits, c.CreatedAt)
	if err != nil {
		return false, execErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *usageChargeRepo) FindByKey(ctx context.Context, tx repository.Tx, key string) (*model.UsageCharge, error) {
	const q = `SELECT id, user_id, job_id, idempotency_key, pages, credits, created_at FROM usage_charges WHERE idempotency_key=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return nil, err
	}
	var c model.UsageCharge
	if err := row.Scan(&c.ID, &c.UserID, &c.JobID, &c.IdempotencyKey, &c.Pages, &c.Credits, &c.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &c, nil
}
