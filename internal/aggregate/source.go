package aggregate

import (
	"context"
	"errors"

	"cshealth/internal/domain"
)

// ErrNotFound indicates source has no record for tenant.
var ErrNotFound = errors.New("record not found")

// CRMSource resolves relationship enrichment for one tenant.
type CRMSource interface {
	Company(ctx context.Context, tenantID string) (domain.CRMRecord, error)
}

// BillingSource resolves commercial enrichment for one tenant.
type BillingSource interface {
	Billing(ctx context.Context, tenantID string) (domain.BillingRecord, error)
}

// CRMFunc adapts plain function to CRMSource.
type CRMFunc func(ctx context.Context, tenantID string) (domain.CRMRecord, error)

// Company calls f.
func (f CRMFunc) Company(ctx context.Context, tenantID string) (domain.CRMRecord, error) {
	return f(ctx, tenantID)
}

// BillingFunc adapts plain function to BillingSource.
type BillingFunc func(ctx context.Context, tenantID string) (domain.BillingRecord, error)

// Billing calls f.
func (f BillingFunc) Billing(ctx context.Context, tenantID string) (domain.BillingRecord, error) {
	return f(ctx, tenantID)
}
