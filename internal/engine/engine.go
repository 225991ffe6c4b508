package engine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"cshealth/internal/clock"
	"cshealth/internal/domain"
)

// slaAtRiskShare is the remaining fraction of an SLA window below which the
// alert is reported at risk.
const slaAtRiskShare = 0.25

// Engine evaluates the rule table for one account at a time.
// Params: immutable rule table, logger, and clock.
// Returns: stateless evaluator safe for concurrent use.
type Engine struct {
	rules  []Rule
	logger *slog.Logger
	clock  clock.Clock
}

// New constructs rule engine.
// Params: rule table, logger for rule faults, and clock for timestamps.
// Returns: engine instance.
func New(rules []Rule, logger *slog.Logger, clk clock.Clock) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Engine{
		rules:  append([]Rule(nil), rules...),
		logger: logger,
		clock:  clk,
	}
}

// Types returns alert types evaluated by this engine in table order.
func (e *Engine) Types() []domain.AlertType {
	out := make([]domain.AlertType, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, rule.Type)
	}
	return out
}

// Generate evaluates every rule and returns sorted alerts.
// Params: account context for one pass.
// Returns: alerts ordered by severity then ARR at risk; faulty rules are skipped.
func (e *Engine) Generate(in domain.AlertGenerationInput) []domain.Alert {
	now := e.clock.Now()
	alerts := make([]domain.Alert, 0, 4)
	for _, rule := range e.rules {
		result, err := evaluate(rule, in)
		if err != nil {
			e.logger.Error("alert rule failed", "rule", rule.Type, "account_id", in.AccountID, "error", err)
			continue
		}
		if result == nil {
			continue
		}
		alerts = append(alerts, buildAlert(rule.Type, result, in, now))
	}
	SortAlerts(alerts)
	return alerts
}

// GenerateAlerts runs the default rule table with a fixed timestamp.
// Params: account context and evaluation time.
// Returns: sorted alerts.
func GenerateAlerts(in domain.AlertGenerationInput, now time.Time) []domain.Alert {
	return New(DefaultRules(), nil, clock.Fixed{At: now}).Generate(in)
}

// evaluate runs one check and converts panics into errors.
func evaluate(rule Rule, in domain.AlertGenerationInput) (result *CheckResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = fmt.Errorf("panic: %v\n%s", recovered, debug.Stack())
		}
	}()
	if rule.Check == nil {
		return nil, fmt.Errorf("rule %s has no check", rule.Type)
	}
	return rule.Check(in)
}

func buildAlert(alertType domain.AlertType, result *CheckResult, in domain.AlertGenerationInput, now time.Time) domain.Alert {
	category := alertType.Category()
	alert := domain.Alert{
		ID:              BuildAlertID(alertType, in.AccountID),
		AccountID:       in.AccountID,
		AccountName:     in.AccountName,
		Type:            alertType,
		Category:        category,
		Severity:        result.Severity,
		Title:           result.Title,
		Description:     result.Description,
		Evidence:        append([]string{}, result.Evidence...),
		SuggestedAction: result.SuggestedAction,
		Playbook:        result.Playbook,
		OwnerID:         in.OwnerID,
		OwnerName:       in.OwnerName,
		SLAHours:        result.SLAHours,
		SLAStatus:       domain.SLANone,
		Status:          domain.StatusOpen,
		CreatedAt:       now,
	}
	if result.SLAHours > 0 {
		deadline := now.Add(time.Duration(result.SLAHours) * time.Hour)
		alert.SLADeadline = &deadline
		alert.SLAStatus = SLAStatusAt(alert.SLADeadline, result.SLAHours, now)
	}
	if category == domain.CategoryRisk {
		if arr := accountARR(in); in.ARR != nil || arr > 0 {
			alert.ARRAtRisk = &arr
		}
	}
	return alert
}

// SLAStatusAt classifies progress against an alert deadline.
// Params: deadline (nil means no SLA), SLA window hours, and evaluation time.
// Returns: none, breached past deadline, at_risk under a quarter of the window left, else on_track.
func SLAStatusAt(deadline *time.Time, slaHours int, now time.Time) domain.SLAStatus {
	if deadline == nil || slaHours <= 0 {
		return domain.SLANone
	}
	if now.After(*deadline) {
		return domain.SLABreached
	}
	window := time.Duration(slaHours) * time.Hour
	if deadline.Sub(now) < time.Duration(float64(window)*slaAtRiskShare) {
		return domain.SLAAtRisk
	}
	return domain.SLAOnTrack
}

// SortAlerts orders alerts by severity rank, then ARR at risk descending.
// Params: alerts slice sorted in place.
// Returns: stable ordering; missing ARR counts as zero.
func SortAlerts(alerts []domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return arrValue(alerts[i].ARRAtRisk) > arrValue(alerts[j].ARRAtRisk)
	})
}

func arrValue(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
