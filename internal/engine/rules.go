package engine

import (
	"fmt"
	"math"

	"cshealth/internal/domain"
)

// Playbook identifiers referenced by the default rule table.
const (
	PlaybookChurnPrevention     = "churn-prevention"
	PlaybookHealthRecovery      = "health-recovery"
	PlaybookReengagement        = "re-engagement"
	PlaybookOnboardingRescue    = "onboarding-rescue"
	PlaybookRenewalPrep         = "renewal-prep"
	PlaybookExpansion           = "expansion-play"
	PlaybookSupportEscalation   = "support-escalation"
	PlaybookUsageRecovery       = "usage-recovery"
	PlaybookPaymentCollection   = "payment-collection"
	PlaybookChampionReplacement = "champion-replacement"
)

const (
	highValueARR        = 10000.0
	declineWindowWeeks  = 4
	declineMinBaseline  = 10.0
	declineRatio        = 0.5
	onboardingWindow    = 60
	lowEngagementRate   = 0.2
	expansionActivity   = 100
	expansionActive     = 5
	expansionOrders     = 10
	expansionHealth     = 80
	supportOpenTickets  = 5
	championMinUsers    = 3
	championMinAgeDays  = 90
	championSilenceDays = 21
)

// CheckResult is rule-specific content for one fired alert.
type CheckResult struct {
	Severity        domain.Severity
	Title           string
	Description     string
	Evidence        []string
	SuggestedAction string
	Playbook        string
	SLAHours        int
}

// CheckFunc evaluates one rule against account context.
// Params: full alert generation input.
// Returns: nil result when the rule does not fire, error on evaluation fault.
type CheckFunc func(in domain.AlertGenerationInput) (*CheckResult, error)

// Rule pairs alert type with its check.
type Rule struct {
	Type  domain.AlertType
	Check CheckFunc
}

// DefaultRules returns the ten built-in rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Type: domain.AlertChurnRisk, Check: checkChurnRisk},
		{Type: domain.AlertHealthDrop, Check: checkHealthDrop},
		{Type: domain.AlertLowEngagement, Check: checkLowEngagement},
		{Type: domain.AlertOnboardingStalled, Check: checkOnboardingStalled},
		{Type: domain.AlertRenewalApproaching, Check: checkRenewalApproaching},
		{Type: domain.AlertExpansionOpportunity, Check: checkExpansionOpportunity},
		{Type: domain.AlertSupportEscalation, Check: checkSupportEscalation},
		{Type: domain.AlertUsageDecline, Check: checkUsageDecline},
		{Type: domain.AlertPaymentOverdue, Check: checkPaymentOverdue},
		{Type: domain.AlertChampionLeft, Check: checkChampionLeft},
	}
}

// WithoutTypes drops disabled alert types from a rule table.
// Params: rule table and types to drop.
// Returns: filtered copy preserving order.
func WithoutTypes(rules []Rule, disabled []domain.AlertType) []Rule {
	if len(disabled) == 0 {
		return append([]Rule(nil), rules...)
	}
	skip := make(map[domain.AlertType]struct{}, len(disabled))
	for _, alertType := range disabled {
		skip[alertType] = struct{}{}
	}
	out := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if _, ok := skip[rule.Type]; ok {
			continue
		}
		out = append(out, rule)
	}
	return out
}

func checkChurnRisk(in domain.AlertGenerationInput) (*CheckResult, error) {
	days := in.Usage.DaysSinceLastActivity
	var severity domain.Severity
	var sla int
	switch {
	case days >= 30:
		severity, sla = domain.SeverityCritical, 24
	case days >= 14:
		severity, sla = domain.SeverityHigh, 48
	default:
		return nil, nil
	}

	evidence := []string{
		fmt.Sprintf("No activity for %d days", days),
		fmt.Sprintf("%d of %d users active in the last 30 days", in.Usage.ActiveUsersLast30Days, in.Usage.TotalUsers),
	}
	if in.Usage.LastActivityAt != nil {
		evidence = append(evidence, "Last activity recorded "+in.Usage.LastActivityAt.UTC().Format("2006-01-02"))
	}
	return &CheckResult{
		Severity:        severity,
		Title:           fmt.Sprintf("Churn risk: inactive for %d days", days),
		Description:     fmt.Sprintf("%s has not used the product for %d days.", accountLabel(in), days),
		Evidence:        evidence,
		SuggestedAction: "Call the primary contact to understand blockers and agree on a re-activation plan",
		Playbook:        PlaybookChurnPrevention,
		SLAHours:        sla,
	}, nil
}

func checkHealthDrop(in domain.AlertGenerationInput) (*CheckResult, error) {
	if in.Health == nil || in.PreviousHealth == nil {
		return nil, nil
	}
	drop := in.PreviousHealth.Score - in.Health.Score
	var severity domain.Severity
	var sla int
	switch {
	case drop >= 20:
		severity, sla = domain.SeverityCritical, 24
	case drop >= 10:
		severity, sla = domain.SeverityHigh, 72
	default:
		return nil, nil
	}

	evidence := []string{
		fmt.Sprintf("Health score fell from %d to %d", in.PreviousHealth.Score, in.Health.Score),
		fmt.Sprintf("Grade moved from %s to %s", in.PreviousHealth.Grade, in.Health.Grade),
	}
	if in.Health.ChangeReason != "" {
		evidence = append(evidence, in.Health.ChangeReason)
	}
	return &CheckResult{
		Severity:        severity,
		Title:           fmt.Sprintf("Health score dropped %d points", drop),
		Description:     fmt.Sprintf("%s health declined sharply since the previous scoring pass.", accountLabel(in)),
		Evidence:        evidence,
		SuggestedAction: "Review the weakest health component and schedule a check-in with the account",
		Playbook:        PlaybookHealthRecovery,
		SLAHours:        sla,
	}, nil
}

func checkLowEngagement(in domain.AlertGenerationInput) (*CheckResult, error) {
	total := in.Usage.TotalUsers
	active := in.Usage.ActiveUsersLast30Days
	if total <= 0 {
		return nil, nil
	}
	if active == 0 {
		return &CheckResult{
			Severity:        domain.SeverityHigh,
			Title:           "No active users in 30 days",
			Description:     fmt.Sprintf("None of the %d users at %s were active in the last 30 days.", total, accountLabel(in)),
			Evidence:        []string{fmt.Sprintf("0 of %d users active in the last 30 days", total)},
			SuggestedAction: "Reach out to the admin and offer a refresher training session",
			Playbook:        PlaybookReengagement,
			SLAHours:        48,
		}, nil
	}

	rate := float64(active) / float64(total)
	if total >= 3 && rate < lowEngagementRate {
		return &CheckResult{
			Severity:    domain.SeverityMedium,
			Title:       fmt.Sprintf("Low engagement: %.0f%% of users active", rate*100),
			Description: fmt.Sprintf("Only %d of %d users at %s were active in the last 30 days.", active, total, accountLabel(in)),
			Evidence: []string{
				fmt.Sprintf("%d of %d users active in the last 30 days", active, total),
				fmt.Sprintf("Engagement rate %.0f%%", rate*100),
			},
			SuggestedAction: "Identify inactive users and run a targeted adoption campaign",
			Playbook:        PlaybookReengagement,
			SLAHours:        168,
		}, nil
	}
	return nil, nil
}

func checkOnboardingStalled(in domain.AlertGenerationInput) (*CheckResult, error) {
	age := in.AccountAgeDays
	if age > onboardingWindow {
		return nil, nil
	}
	items := in.Usage.TotalItems
	cards := in.Usage.TotalKanbanCards
	orders := in.Usage.TotalOrders

	result := func(severity domain.Severity, sla int, step string, evidence ...string) *CheckResult {
		return &CheckResult{
			Severity:        severity,
			Title:           "Onboarding stalled: " + step,
			Description:     fmt.Sprintf("%s is %d days into onboarding and has not completed: %s.", accountLabel(in), age, step),
			Evidence:        append([]string{fmt.Sprintf("Account age %d days", age)}, evidence...),
			SuggestedAction: "Schedule a guided onboarding session focused on the missing step",
			Playbook:        PlaybookOnboardingRescue,
			SLAHours:        sla,
		}
	}

	switch {
	case age >= 14 && items < 5:
		return result(domain.SeverityHigh, 24, "item setup", fmt.Sprintf("Only %d items created", items)), nil
	case age >= 21 && items >= 5 && cards < 1:
		return result(domain.SeverityMedium, 72, "workflow setup", fmt.Sprintf("%d items created", items), "No kanban cards created"), nil
	case age >= 30 && cards >= 1 && orders < 1:
		return result(domain.SeverityMedium, 72, "first order", fmt.Sprintf("%d kanban cards created", cards), "No orders placed"), nil
	default:
		return nil, nil
	}
}

func checkRenewalApproaching(in domain.AlertGenerationInput) (*CheckResult, error) {
	if in.Commercial == nil || in.Commercial.DaysToRenewal == nil {
		return nil, nil
	}
	days := *in.Commercial.DaysToRenewal

	evidence := []string{fmt.Sprintf("Renewal in %d days", days)}
	if in.Commercial.RenewalDate != nil {
		evidence = append(evidence, "Renewal date "+in.Commercial.RenewalDate.UTC().Format("2006-01-02"))
	}
	if in.Health != nil {
		evidence = append(evidence, fmt.Sprintf("Current health score %d (%s)", in.Health.Score, in.Health.Grade))
	}

	var severity domain.Severity
	var sla int
	switch {
	case days <= 30:
		severity, sla = domain.SeverityHigh, 24
		if in.Health != nil && in.Health.Score < 60 {
			severity = domain.SeverityCritical
		}
	case days <= 60:
		severity, sla = domain.SeverityMedium, 168
	case days <= 90:
		severity = domain.SeverityLow
	default:
		return nil, nil
	}
	return &CheckResult{
		Severity:        severity,
		Title:           fmt.Sprintf("Renewal in %d days", days),
		Description:     fmt.Sprintf("%s renews in %d days.", accountLabel(in), days),
		Evidence:        evidence,
		SuggestedAction: "Prepare the renewal review and confirm value delivered with the decision maker",
		Playbook:        PlaybookRenewalPrep,
		SLAHours:        sla,
	}, nil
}

func checkExpansionOpportunity(in domain.AlertGenerationInput) (*CheckResult, error) {
	var strength int
	var evidence []string
	if activity := in.Usage.TotalActivity(); activity >= expansionActivity {
		strength += 2
		evidence = append(evidence, fmt.Sprintf("%d total tracked actions", activity))
	}
	if in.Usage.ActiveUsersLast30Days >= expansionActive {
		strength++
		evidence = append(evidence, fmt.Sprintf("%d users active in the last 30 days", in.Usage.ActiveUsersLast30Days))
	}
	if in.Usage.TotalOrders >= expansionOrders {
		strength += 2
		evidence = append(evidence, fmt.Sprintf("%d orders placed", in.Usage.TotalOrders))
	}
	if in.Health != nil && in.Health.Score >= expansionHealth {
		strength++
		evidence = append(evidence, fmt.Sprintf("Health score %d", in.Health.Score))
	}

	var severity domain.Severity
	var sla int
	switch {
	case strength >= 4:
		severity, sla = domain.SeverityMedium, 168
	case strength >= 2:
		severity = domain.SeverityLow
	default:
		return nil, nil
	}
	return &CheckResult{
		Severity:        severity,
		Title:           "Expansion opportunity",
		Description:     fmt.Sprintf("%s shows strong usage signals (strength %d).", accountLabel(in), strength),
		Evidence:        evidence,
		SuggestedAction: "Introduce additional seats or modules during the next business review",
		Playbook:        PlaybookExpansion,
		SLAHours:        sla,
	}, nil
}

func checkSupportEscalation(in domain.AlertGenerationInput) (*CheckResult, error) {
	if in.Support == nil {
		return nil, nil
	}
	support := in.Support
	evidence := []string{
		fmt.Sprintf("%d open tickets", support.OpenTickets),
		fmt.Sprintf("%d critical tickets", support.CriticalTickets),
	}
	if support.AvgResponseTimeHours != nil {
		evidence = append(evidence, fmt.Sprintf("Average response time %.1fh", *support.AvgResponseTimeHours))
	}

	switch {
	case support.CriticalTickets > 0:
		return &CheckResult{
			Severity:        domain.SeverityCritical,
			Title:           fmt.Sprintf("%d critical support tickets", support.CriticalTickets),
			Description:     fmt.Sprintf("%s has critical support issues open.", accountLabel(in)),
			Evidence:        evidence,
			SuggestedAction: "Escalate to support leadership and brief the account owner",
			Playbook:        PlaybookSupportEscalation,
			SLAHours:        4,
		}, nil
	case support.OpenTickets >= supportOpenTickets:
		return &CheckResult{
			Severity:        domain.SeverityHigh,
			Title:           fmt.Sprintf("%d open support tickets", support.OpenTickets),
			Description:     fmt.Sprintf("%s has an unusual support backlog.", accountLabel(in)),
			Evidence:        evidence,
			SuggestedAction: "Review the ticket backlog with support and look for a common root cause",
			Playbook:        PlaybookSupportEscalation,
			SLAHours:        24,
		}, nil
	default:
		return nil, nil
	}
}

func checkUsageDecline(in domain.AlertGenerationInput) (*CheckResult, error) {
	timeline := in.Usage.ActivityTimeline
	if len(timeline) < 2*declineWindowWeeks {
		return nil, nil
	}
	recentWeeks := timeline[len(timeline)-declineWindowWeeks:]
	olderWeeks := timeline[len(timeline)-2*declineWindowWeeks : len(timeline)-declineWindowWeeks]

	older := meanActions(olderWeeks)
	recent := meanActions(recentWeeks)
	if older <= declineMinBaseline || recent >= older*declineRatio {
		return nil, nil
	}

	decline := int(math.Round((1 - recent/older) * 100))
	return &CheckResult{
		Severity:    domain.SeverityHigh,
		Title:       fmt.Sprintf("Usage down %d%%", decline),
		Description: fmt.Sprintf("%s weekly activity dropped %d%% against the prior four weeks.", accountLabel(in), decline),
		Evidence: []string{
			fmt.Sprintf("Prior 4 weeks averaged %.1f actions per week", older),
			fmt.Sprintf("Recent 4 weeks averaged %.1f actions per week", recent),
		},
		SuggestedAction: "Check for workflow changes or staff turnover and offer help restoring usage",
		Playbook:        PlaybookUsageRecovery,
		SLAHours:        48,
	}, nil
}

func meanActions(points []domain.ActivityPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var total int
	for _, point := range points {
		total += point.Actions()
	}
	return float64(total) / float64(len(points))
}

func checkPaymentOverdue(in domain.AlertGenerationInput) (*CheckResult, error) {
	if in.Commercial == nil {
		return nil, nil
	}
	commercial := in.Commercial

	switch commercial.PaymentStatus {
	case domain.PaymentOverdue:
		if commercial.OverdueAmount <= 0 {
			return nil, nil
		}
		arr := accountARR(in)
		severity, sla := domain.SeverityHigh, 48
		if arr >= highValueARR {
			severity, sla = domain.SeverityCritical, 24
		}
		return &CheckResult{
			Severity:    severity,
			Title:       fmt.Sprintf("Payment overdue: %.2f", commercial.OverdueAmount),
			Description: fmt.Sprintf("%s has an overdue balance of %.2f.", accountLabel(in), commercial.OverdueAmount),
			Evidence: []string{
				fmt.Sprintf("Overdue amount %.2f", commercial.OverdueAmount),
				fmt.Sprintf("ARR %.0f", arr),
			},
			SuggestedAction: "Coordinate with finance and contact the billing owner about the overdue invoice",
			Playbook:        PlaybookPaymentCollection,
			SLAHours:        sla,
		}, nil
	case domain.PaymentAtRisk:
		return &CheckResult{
			Severity:        domain.SeverityMedium,
			Title:           "Payment at risk",
			Description:     fmt.Sprintf("%s billing status is at risk.", accountLabel(in)),
			Evidence:        []string{"Payment status at_risk"},
			SuggestedAction: "Confirm payment method and upcoming invoice with the billing owner",
			Playbook:        PlaybookPaymentCollection,
			SLAHours:        72,
		}, nil
	default:
		return nil, nil
	}
}

// checkChampionLeft approximates stakeholder departure from usage silence.
// There is no CRM contact-departure signal; the heuristic is intentionally coarse.
func checkChampionLeft(in domain.AlertGenerationInput) (*CheckResult, error) {
	usage := in.Usage
	if usage.TotalUsers <= championMinUsers ||
		in.AccountAgeDays <= championMinAgeDays ||
		usage.ActiveUsersLast30Days != 0 ||
		usage.DaysSinceLastActivity < championSilenceDays {
		return nil, nil
	}
	return &CheckResult{
		Severity:    domain.SeverityHigh,
		Title:       "Possible champion departure",
		Description: fmt.Sprintf("%s went silent after a long period of use; the internal champion may have left.", accountLabel(in)),
		Evidence: []string{
			fmt.Sprintf("%d users provisioned, none active in 30 days", usage.TotalUsers),
			fmt.Sprintf("No activity for %d days", usage.DaysSinceLastActivity),
			fmt.Sprintf("Account age %d days", in.AccountAgeDays),
		},
		SuggestedAction: "Verify the main contact is still in role and identify a new champion",
		Playbook:        PlaybookChampionReplacement,
		SLAHours:        48,
	}, nil
}

func accountARR(in domain.AlertGenerationInput) float64 {
	if in.ARR != nil {
		return *in.ARR
	}
	if in.Commercial != nil && in.Commercial.ARR != nil {
		return *in.Commercial.ARR
	}
	return 0
}

func accountLabel(in domain.AlertGenerationInput) string {
	if in.AccountName != "" {
		return in.AccountName
	}
	return "Account " + in.AccountID
}
