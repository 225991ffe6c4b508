package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cshealth/internal/config"
	"cshealth/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Inputs is resolved engine input for one account.
type Inputs struct {
	Report   domain.UsageReport
	Scoring  domain.HealthScoringInput
	Alerting domain.AlertGenerationInput
}

// Options controls enrichment pacing.
// Params: batch size, delay between batches, parallel lookups, and per-lookup timeout.
// Returns: aggregator settings.
type Options struct {
	BatchSize      int
	BatchDelay     time.Duration
	Concurrency    int
	RequestTimeout time.Duration
}

// OptionsFromConfig converts aggregate TOML section.
func OptionsFromConfig(cfg config.AggregateConfig) Options {
	return Options{
		BatchSize:      cfg.BatchSize,
		BatchDelay:     time.Duration(cfg.BatchDelayMS) * time.Millisecond,
		Concurrency:    cfg.Concurrency,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
	}
}

// Aggregator joins usage reports with CRM and billing enrichment.
// Params: optional sources (nil disables enrichment), pacing options, and logger.
// Returns: builder of engine inputs that never surfaces source failures.
type Aggregator struct {
	crm     CRMSource
	billing BillingSource
	opts    Options
	logger  *slog.Logger
}

// New creates aggregator.
// Params: CRM source, billing source, pacing options, and logger.
// Returns: aggregator with defaults applied for non-positive options.
func New(crm CRMSource, billing BillingSource, opts Options, logger *slog.Logger) *Aggregator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{crm: crm, billing: billing, opts: opts, logger: logger}
}

// Build resolves enrichment and constructs engine inputs for one report.
// Params: context and validated report.
// Returns: scoring and alerting inputs; explicit report values win over enrichment.
func (a *Aggregator) Build(ctx context.Context, report domain.UsageReport) Inputs {
	crm, hasCRM := a.lookupCRM(ctx, report)
	billing, hasBilling := a.lookupBilling(ctx, report)
	return Merge(report, crmPtr(crm, hasCRM), billingPtr(billing, hasBilling))
}

// BuildAll resolves inputs for many reports with batch-and-delay pacing.
// Params: context and reports.
// Returns: inputs in report order or context error when cancelled.
func (a *Aggregator) BuildAll(ctx context.Context, reports []domain.UsageReport) ([]Inputs, error) {
	out := make([]Inputs, len(reports))
	for start := 0; start < len(reports); start += a.opts.BatchSize {
		if start > 0 && a.opts.BatchDelay > 0 {
			timer := time.NewTimer(a.opts.BatchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		end := min(start+a.opts.BatchSize, len(reports))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(a.opts.Concurrency)
		for i := start; i < end; i++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = a.Build(gctx, reports[i])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *Aggregator) lookupCRM(ctx context.Context, report domain.UsageReport) (domain.CRMRecord, bool) {
	if a.crm == nil {
		return domain.CRMRecord{}, false
	}
	lookupCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	record, err := a.crm.Company(lookupCtx, report.LookupKey())
	if err != nil {
		a.logLookupError("crm", report, err)
		return domain.CRMRecord{}, false
	}
	return record, true
}

func (a *Aggregator) lookupBilling(ctx context.Context, report domain.UsageReport) (domain.BillingRecord, bool) {
	if a.billing == nil {
		return domain.BillingRecord{}, false
	}
	lookupCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	record, err := a.billing.Billing(lookupCtx, report.LookupKey())
	if err != nil {
		a.logLookupError("billing", report, err)
		return domain.BillingRecord{}, false
	}
	return record, true
}

func (a *Aggregator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.opts.RequestTimeout)
}

func (a *Aggregator) logLookupError(source string, report domain.UsageReport, err error) {
	if errors.Is(err, ErrNotFound) {
		a.logger.Debug("enrichment not found", "source", source, "account_id", report.AccountID, "tenant_id", report.LookupKey())
		return
	}
	a.logger.Warn("enrichment lookup failed", "source", source, "account_id", report.AccountID, "tenant_id", report.LookupKey(), "error", err)
}

func crmPtr(record domain.CRMRecord, ok bool) *domain.CRMRecord {
	if !ok {
		return nil
	}
	return &record
}

func billingPtr(record domain.BillingRecord, ok bool) *domain.BillingRecord {
	if !ok {
		return nil
	}
	return &record
}

// Merge builds engine inputs from report and optional enrichment records.
// Params: report, CRM record (nil when absent), and billing record (nil when absent).
// Returns: scoring and alerting inputs; report fields take precedence.
func Merge(report domain.UsageReport, crm *domain.CRMRecord, billing *domain.BillingRecord) Inputs {
	usage := report.Usage
	scoring := domain.HealthScoringInput{
		ItemCount:             usage.TotalItems,
		KanbanCardCount:       usage.TotalKanbanCards,
		OrderCount:            usage.TotalOrders,
		TotalUsers:            usage.TotalUsers,
		ActiveUsersLast7Days:  usage.ActiveUsersLast7Days,
		ActiveUsersLast30Days: usage.ActiveUsersLast30Days,
		DaysSinceLastActivity: usage.DaysSinceLastActivity,
		AccountAgeDays:        report.AccountAgeDays,
		Segment:               strings.TrimSpace(report.Segment),
		Tier:                  strings.TrimSpace(report.Tier),
	}
	accountName := report.AccountName
	ownerID, ownerName := report.OwnerID, report.OwnerName

	if rel := report.Relationship; rel != nil {
		scoring.DaysSinceLastCSContact = copyInt(rel.DaysSinceLastCSContact)
		scoring.InteractionCountLast30Days = copyInt(rel.InteractionCountLast30Days)
		scoring.HasChampion = copyBool(rel.HasChampion)
	}
	if crm != nil {
		if scoring.DaysSinceLastCSContact == nil {
			scoring.DaysSinceLastCSContact = copyInt(crm.DaysSinceLastCSContact)
		}
		if scoring.InteractionCountLast30Days == nil {
			scoring.InteractionCountLast30Days = copyInt(crm.InteractionCountLast30Days)
		}
		if scoring.HasChampion == nil {
			scoring.HasChampion = copyBool(crm.HasChampion)
		}
		scoring.Segment = firstNonEmpty(scoring.Segment, crm.Segment)
		scoring.Tier = firstNonEmpty(scoring.Tier, crm.Tier)
		accountName = firstNonEmpty(accountName, crm.Name)
		if ownerID == "" {
			ownerID, ownerName = crm.OwnerID, firstNonEmpty(ownerName, crm.OwnerName)
		}
	}

	var support *domain.SupportMetrics
	if report.Support != nil {
		copied := *report.Support
		support = &copied
		open, critical := copied.OpenTickets, copied.CriticalTickets
		scoring.OpenTickets = &open
		scoring.CriticalTickets = &critical
		scoring.AvgResponseTimeHours = copyFloat(copied.AvgResponseTimeHours)
		scoring.CSAT = copyFloat(copied.CSAT)
	}

	commercial := mergeCommercial(report.Commercial, billing)
	var arr *float64
	if commercial != nil {
		scoring.PaymentStatus = commercial.PaymentStatus
		scoring.DaysToRenewal = copyInt(commercial.DaysToRenewal)
		arr = copyFloat(commercial.ARR)
	}

	return Inputs{
		Report:  report,
		Scoring: scoring,
		Alerting: domain.AlertGenerationInput{
			AccountID:      report.AccountID,
			AccountName:    accountName,
			AccountAgeDays: report.AccountAgeDays,
			Usage:          usage,
			Commercial:     commercial,
			Support:        support,
			ARR:            arr,
			OwnerID:        ownerID,
			OwnerName:      ownerName,
		},
	}
}

func mergeCommercial(reported *domain.CommercialMetrics, billing *domain.BillingRecord) *domain.CommercialMetrics {
	if reported == nil && billing == nil {
		return nil
	}
	var out domain.CommercialMetrics
	if reported != nil {
		out = *reported
		out.DaysToRenewal = copyInt(reported.DaysToRenewal)
		out.ARR = copyFloat(reported.ARR)
		out.MRR = copyFloat(reported.MRR)
	}
	if billing == nil {
		return &out
	}
	if out.PaymentStatus == "" {
		out.PaymentStatus = billing.PaymentStatus
	}
	if out.DaysToRenewal == nil {
		out.DaysToRenewal = copyInt(billing.DaysToRenewal)
	}
	if out.RenewalDate == nil && billing.RenewalDate != nil {
		renewal := *billing.RenewalDate
		out.RenewalDate = &renewal
	}
	if out.ARR == nil {
		out.ARR = copyFloat(billing.ARR)
	}
	if out.MRR == nil {
		out.MRR = copyFloat(billing.MRR)
	}
	if out.OverdueAmount == 0 {
		out.OverdueAmount = billing.OverdueAmount
	}
	out.Plan = firstNonEmpty(out.Plan, billing.Plan)
	return &out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
