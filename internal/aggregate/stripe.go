package aggregate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"cshealth/internal/clock"
	"cshealth/internal/config"
	"cshealth/internal/domain"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeSource resolves billing state through Stripe customers, subscriptions, and invoices.
// Params: Stripe API client, tenant metadata key, and clock.
// Returns: BillingSource implementation.
type StripeSource struct {
	api         *client.API
	metadataKey string
	clock       clock.Clock
}

// NewStripeSource creates billing source from config.
// Params: Stripe settings (base URL override is used by tests and proxies) and clock.
// Returns: configured source.
func NewStripeSource(cfg config.StripeConfig, clk clock.Clock) *StripeSource {
	if clk == nil {
		clk = clock.RealClock{}
	}
	var backends *stripe.Backends
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{URL: stripe.String(base)})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}
	api := &client.API{}
	api.Init(cfg.APIKey, backends)
	return &StripeSource{api: api, metadataKey: cfg.TenantMetadataKey, clock: clk}
}

// Billing finds customer by tenant metadata and summarizes subscription and open invoices.
// Params: context and tenant ID.
// Returns: billing record, ErrNotFound when no customer matches, or API error.
func (s *StripeSource) Billing(ctx context.Context, tenantID string) (domain.BillingRecord, error) {
	search := &stripe.CustomerSearchParams{}
	search.Context = ctx
	search.Query = fmt.Sprintf("metadata['%s']:'%s'", s.metadataKey, strings.ReplaceAll(tenantID, "'", "\\'"))
	customers := s.api.Customers.Search(search)
	if !customers.Next() {
		if err := customers.Err(); err != nil {
			return domain.BillingRecord{}, fmt.Errorf("search stripe customer: %w", err)
		}
		return domain.BillingRecord{}, ErrNotFound
	}
	customer := customers.Customer()

	subParams := &stripe.SubscriptionListParams{Customer: stripe.String(customer.ID)}
	subParams.Context = ctx
	subParams.Status = stripe.String("all")
	var subscriptions []*stripe.Subscription
	subs := s.api.Subscriptions.List(subParams)
	for subs.Next() {
		subscriptions = append(subscriptions, subs.Subscription())
	}
	if err := subs.Err(); err != nil {
		return domain.BillingRecord{}, fmt.Errorf("list stripe subscriptions: %w", err)
	}

	invParams := &stripe.InvoiceListParams{Customer: stripe.String(customer.ID), Status: stripe.String("open")}
	invParams.Context = ctx
	var invoices []*stripe.Invoice
	invs := s.api.Invoices.List(invParams)
	for invs.Next() {
		invoices = append(invoices, invs.Invoice())
	}
	if err := invs.Err(); err != nil {
		return domain.BillingRecord{}, fmt.Errorf("list stripe invoices: %w", err)
	}

	return billingRecord(customer.ID, pickSubscription(subscriptions), invoices, s.clock.Now()), nil
}

// pickSubscription prefers live subscriptions over ended ones.
func pickSubscription(subs []*stripe.Subscription) *stripe.Subscription {
	var fallback *stripe.Subscription
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		switch sub.Status {
		case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
			if fallback == nil {
				fallback = sub
			}
		default:
			return sub
		}
	}
	return fallback
}

// billingRecord maps Stripe objects onto commercial enrichment.
// Params: customer ID, chosen subscription (nil when none), open invoices, and evaluation time.
// Returns: billing record with amounts converted from minor units.
func billingRecord(customerID string, sub *stripe.Subscription, invoices []*stripe.Invoice, now time.Time) domain.BillingRecord {
	record := domain.BillingRecord{CustomerID: customerID, PaymentStatus: domain.PaymentUnknown}

	var overdue int64
	for _, inv := range invoices {
		if inv == nil || inv.AmountRemaining <= 0 {
			continue
		}
		if inv.DueDate > 0 && time.Unix(inv.DueDate, 0).Before(now) {
			overdue += inv.AmountRemaining
		}
	}
	record.OverdueAmount = float64(overdue) / 100

	if sub != nil {
		record.PaymentStatus = paymentStatus(sub.Status)
		if sub.CurrentPeriodEnd > 0 && sub.Status != stripe.SubscriptionStatusCanceled {
			renewal := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			days := int(math.Ceil(renewal.Sub(now).Hours() / 24))
			days = max(days, 0)
			record.RenewalDate = &renewal
			record.DaysToRenewal = &days
		}
		if mrr, plan, ok := monthlyRecurring(sub); ok {
			arr := mrr * 12
			record.MRR = &mrr
			record.ARR = &arr
			record.Plan = plan
		}
	}
	if overdue > 0 && record.PaymentStatus != domain.PaymentOverdue {
		record.PaymentStatus = domain.PaymentOverdue
	}
	return record
}

func paymentStatus(status stripe.SubscriptionStatus) domain.PaymentStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return domain.PaymentCurrent
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.PaymentOverdue
	case stripe.SubscriptionStatusIncomplete:
		return domain.PaymentAtRisk
	default:
		return domain.PaymentUnknown
	}
}

// monthlyRecurring normalizes subscription items to monthly amount in major units.
func monthlyRecurring(sub *stripe.Subscription) (float64, string, bool) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0, "", false
	}
	var total float64
	var plan string
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil || item.Price.Recurring == nil {
			continue
		}
		quantity := item.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		amount := float64(item.Price.UnitAmount*quantity) / 100
		count := float64(max(item.Price.Recurring.IntervalCount, 1))
		switch item.Price.Recurring.Interval {
		case stripe.PriceRecurringIntervalYear:
			total += amount / (12 * count)
		case stripe.PriceRecurringIntervalWeek:
			total += amount * 52 / 12 / count
		case stripe.PriceRecurringIntervalDay:
			total += amount * 365 / 12 / count
		default:
			total += amount / count
		}
		if plan == "" {
			plan = item.Price.Nickname
			if plan == "" {
				plan = item.Price.ID
			}
		}
	}
	if total == 0 {
		return 0, "", false
	}
	return math.Round(total*100) / 100, plan, true
}
