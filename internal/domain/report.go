package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RelationshipSignals carries optional customer-success touch data.
type RelationshipSignals struct {
	DaysSinceLastCSContact     *int  `json:"daysSinceLastCSContact,omitempty"`
	InteractionCountLast30Days *int  `json:"interactionCountLast30Days,omitempty"`
	HasChampion                *bool `json:"hasChampion,omitempty"`
}

// UsageReport is aggregated per-account payload pushed by the usage aggregator.
// Params: account identity, usage metrics, and optional enrichment already known upstream.
// Returns: validated document consumed by scoring passes.
type UsageReport struct {
	AccountID      string               `json:"accountId"`
	AccountName    string               `json:"accountName,omitempty"`
	TenantIDs      []string             `json:"tenantIds,omitempty"`
	AccountAgeDays int                  `json:"accountAgeDays"`
	Segment        string               `json:"segment,omitempty"`
	Tier           string               `json:"tier,omitempty"`
	OwnerID        string               `json:"ownerId,omitempty"`
	OwnerName      string               `json:"ownerName,omitempty"`
	Usage          UsageMetrics         `json:"usage"`
	Relationship   *RelationshipSignals `json:"relationship,omitempty"`
	Support        *SupportMetrics      `json:"support,omitempty"`
	Commercial     *CommercialMetrics   `json:"commercial,omitempty"`
	ReportedAt     *time.Time           `json:"reportedAt,omitempty"`
}

// LookupKey returns tenant identifier used for CRM/billing enrichment.
// Params: none.
// Returns: first non-empty tenant ID or account ID.
func (r UsageReport) LookupKey() string {
	for _, tenantID := range r.TenantIDs {
		if trimmed := strings.TrimSpace(tenantID); trimmed != "" {
			return trimmed
		}
	}
	return r.AccountID
}

// DecodeUsageReport decodes and validates one report payload.
// Params: JSON document bytes.
// Returns: validated report or decode/validation error.
func DecodeUsageReport(raw []byte) (UsageReport, error) {
	var report UsageReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return UsageReport{}, fmt.Errorf("decode usage report: %w", err)
	}
	if err := report.Validate(); err != nil {
		return UsageReport{}, err
	}
	return report, nil
}

// DecodeUsageReports decodes and validates one JSON array of reports.
// Params: JSON array bytes.
// Returns: validated reports or decode/validation error.
func DecodeUsageReports(raw []byte) ([]UsageReport, error) {
	var reports []UsageReport
	if err := json.Unmarshal(raw, &reports); err != nil {
		return nil, fmt.Errorf("decode usage report batch: %w", err)
	}
	if len(reports) == 0 {
		return nil, errors.New("usage report batch must contain at least one report")
	}
	for i := range reports {
		if err := reports[i].Validate(); err != nil {
			return nil, fmt.Errorf("report[%d]: %w", i, err)
		}
	}
	return reports, nil
}

// Validate checks report shape against the ingest contract.
// Params: report fields parsed from transport.
// Returns: validation error when required fields are missing or counts are inconsistent.
func (r UsageReport) Validate() error {
	if strings.TrimSpace(r.AccountID) == "" {
		return errors.New("accountId is required")
	}
	if r.AccountAgeDays < 0 {
		return errors.New("accountAgeDays must be >=0")
	}
	if err := r.Usage.Validate(); err != nil {
		return fmt.Errorf("usage: %w", err)
	}
	if r.Support != nil {
		if r.Support.OpenTickets < 0 || r.Support.CriticalTickets < 0 {
			return errors.New("support ticket counts must be >=0")
		}
		if r.Support.CSAT != nil && (*r.Support.CSAT < 0 || *r.Support.CSAT > 100) {
			return errors.New("support.csat must be within 0..100")
		}
	}
	if r.Commercial != nil && r.Commercial.PaymentStatus != "" {
		if !r.Commercial.PaymentStatus.IsKnown() && r.Commercial.PaymentStatus != PaymentUnknown {
			return fmt.Errorf("commercial.paymentStatus has unsupported value %q", r.Commercial.PaymentStatus)
		}
	}
	if r.Relationship != nil {
		if r.Relationship.DaysSinceLastCSContact != nil && *r.Relationship.DaysSinceLastCSContact < 0 {
			return errors.New("relationship.daysSinceLastCSContact must be >=0")
		}
		if r.Relationship.InteractionCountLast30Days != nil && *r.Relationship.InteractionCountLast30Days < 0 {
			return errors.New("relationship.interactionCountLast30Days must be >=0")
		}
	}
	return nil
}

// Validate checks usage counters.
// Params: usage metrics fields.
// Returns: validation error for negative counts or active users above total.
func (u UsageMetrics) Validate() error {
	counts := map[string]int{
		"totalItems":            u.TotalItems,
		"totalKanbanCards":      u.TotalKanbanCards,
		"totalOrders":           u.TotalOrders,
		"totalUsers":            u.TotalUsers,
		"activeUsersLast7Days":  u.ActiveUsersLast7Days,
		"activeUsersLast30Days": u.ActiveUsersLast30Days,
		"daysSinceLastActivity": u.DaysSinceLastActivity,
	}
	for _, name := range []string{
		"totalItems",
		"totalKanbanCards",
		"totalOrders",
		"totalUsers",
		"activeUsersLast7Days",
		"activeUsersLast30Days",
		"daysSinceLastActivity",
	} {
		if counts[name] < 0 {
			return fmt.Errorf("%s must be >=0", name)
		}
	}
	if u.ActiveUsersLast7Days > u.TotalUsers {
		return errors.New("activeUsersLast7Days must be <= totalUsers")
	}
	if u.ActiveUsersLast30Days > u.TotalUsers {
		return errors.New("activeUsersLast30Days must be <= totalUsers")
	}
	for i, point := range u.ActivityTimeline {
		if point.Items < 0 || point.KanbanCards < 0 || point.Orders < 0 || point.ActiveUsers < 0 {
			return fmt.Errorf("activityTimeline[%d] counts must be >=0", i)
		}
	}
	return nil
}
