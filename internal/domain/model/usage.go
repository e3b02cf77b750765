package model

import (
	"strings"
	"time"

	"docbatch/internal/domain"
)

// UserAccount is owned by the billing system; the pipeline only reads it
// and debits it through the ledger.
type UserAccount struct {
	ID            string
	CreditBalance int64
	PagesUsed     int64
	UpdatedAt     time.Time
}

// UsageCharge is one journal entry of the usage ledger.
type UsageCharge struct {
	ID             string
	UserID         string
	JobID          string
	IdempotencyKey string
	Pages          int
	Credits        int64
	CreatedAt      time.Time
}

// PagePolicy decides which page count is billed for a completed file.
type PagePolicy string

const (
	PagePolicyActual   PagePolicy = "actual"
	PagePolicyEstimate PagePolicy = "estimate"
	PagePolicyLesser   PagePolicy = "lesser"
)

func ParsePagePolicy(s string) (PagePolicy, error) {
	switch p := PagePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PagePolicyActual, nil
	case PagePolicyActual, PagePolicyEstimate, PagePolicyLesser:
		return p, nil
	}
	return "", domain.ErrInvalidArgument
}

// BillablePages applies the policy. Missing counts fall back to the other one.
func (p PagePolicy) BillablePages(actual, estimated int) int {
	if actual <= 0 {
		actual = estimated
	}
	if estimated <= 0 {
		estimated = actual
	}
	switch p {
	case PagePolicyEstimate:
		return estimated
	case PagePolicyLesser:
		if estimated < actual {
			return estimated
		}
		return actual
	default:
		return actual
	}
}
