// File: internal/usecase/usage_ledger.go
package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/repository"
	"docbatch/internal/infra/metrics"
)

// Compile-time check
var _ UsageLedger = (*usageLedger)(nil)

// ChargeRequest is one debit against a user's balance.
type ChargeRequest struct {
	UserID         string
	JobID          string
	IdempotencyKey string
	Pages          int
}

// UsageLedger checks affordability and debits credits for pages consumed.
// Repeating a charge with the same idempotency key never debits twice.
type UsageLedger interface {
	CanAfford(ctx context.Context, userID string, pages int) (bool, error)
	// Charge debits the account and runs within inside the same transaction.
	// within also runs when the key was already charged, with the existing charge.
	Charge(ctx context.Context, req ChargeRequest, within func(ctx context.Context, tx repository.Tx, c *model.UsageCharge) error) (*model.UsageCharge, error)
	CreditsFor(pages int) int64
}

type usageLedger struct {
	accounts       repository.AccountRepository
	charges        repository.UsageChargeRepository
	tm             repository.TransactionManager
	creditsPerPage int64
	log            *zerolog.Logger
}

func NewUsageLedger(
	accounts repository.AccountRepository,
	charges repository.UsageChargeRepository,
	tm repository.TransactionManager,
	creditsPerPage int64,
	logger *zerolog.Logger,
) *usageLedger {
	if creditsPerPage <= 0 {
		creditsPerPage = 1
	}
	l := logger.With().Str("component", "UsageLedger").Logger()
	return &usageLedger{
		accounts:       accounts,
		charges:        charges,
		tm:             tm,
		creditsPerPage: creditsPerPage,
		log:            &l,
	}
}

func (l *usageLedger) CreditsFor(pages int) int64 {
	if pages <= 0 {
		return 0
	}
	return int64(pages) * l.creditsPerPage
}

// CanAfford reads the balance as stored now. An unknown account cannot afford anything.
func (l *usageLedger) CanAfford(ctx context.Context, userID string, pages int) (bool, error) {
	need := l.CreditsFor(pages)
	if need == 0 {
		return true, nil
	}
	acc, err := l.accounts.FindByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return acc.CreditBalance >= need, nil
}

func (l *usageLedger) Charge(
	ctx context.Context,
	req ChargeRequest,
	within func(ctx context.Context, tx repository.Tx, c *model.UsageCharge) error,
) (*model.UsageCharge, error) {
	if req.Pages <= 0 {
		return nil, nil
	}
	if req.UserID == "" || req.IdempotencyKey == "" {
		return nil, domain.ErrInvalidArgument
	}

	charge := &model.UsageCharge{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		JobID:          req.JobID,
		IdempotencyKey: req.IdempotencyKey,
		Pages:          req.Pages,
		Credits:        l.CreditsFor(req.Pages),
		CreatedAt:      time.Now().UTC(),
	}

	var result *model.UsageCharge
	var duplicate bool
	err := l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		inserted, err := l.charges.Insert(ctx, tx, charge)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := l.charges.FindByKey(ctx, tx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			duplicate = true
			result = existing
		} else {
			if _, err := l.accounts.Debit(ctx, tx, req.UserID, charge.Credits, charge.Pages); err != nil {
				return err
			}
			result = charge
		}
		if within != nil {
			return within(ctx, tx, result)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			metrics.IncChargeResult("insufficient")
			l.log.Warn().Str("user_id", req.UserID).Str("job_id", req.JobID).Int("pages", req.Pages).Msg("charge refused")
			return nil, domain.ErrInsufficientCredits
		}
		metrics.IncChargeResult("error")
		return nil, err
	}

	if duplicate {
		metrics.IncChargeResult("duplicate")
		l.log.Info().Str("key", req.IdempotencyKey).Msg("charge already recorded")
	} else {
		metrics.ObserveCharge(result.Pages, result.Credits)
		l.log.Info().Str("user_id", req.UserID).Str("job_id", req.JobID).Int("pages", result.Pages).Int64("credits", result.Credits).Msg("charged")
	}
	return result, nil
}

// SweepChargeKey derives the idempotency key for billing a set of files of a job.
// The same set always yields the same key regardless of order.
func SweepChargeKey(jobID string, fileIDs []string) string {
	ids := append([]string(nil), fileIDs...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return "sweep:" + jobID + ":" + hex.EncodeToString(sum[:])
}
