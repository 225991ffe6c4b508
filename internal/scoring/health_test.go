package scoring

import (
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"cshealth/internal/config"
	"cshealth/internal/domain"
)

var scoredAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

func healthyInput() domain.HealthScoringInput {
	return domain.HealthScoringInput{
		ItemCount:                  50,
		KanbanCardCount:            100,
		OrderCount:                 20,
		TotalUsers:                 10,
		ActiveUsersLast7Days:       3,
		ActiveUsersLast30Days:      5,
		DaysSinceLastActivity:      0,
		AccountAgeDays:             40,
		DaysSinceLastCSContact:     intPtr(2),
		InteractionCountLast30Days: intPtr(2),
		HasChampion:                boolPtr(true),
		OpenTickets:                intPtr(1),
		CriticalTickets:            intPtr(0),
		CSAT:                       floatPtr(90),
		PaymentStatus:              domain.PaymentCurrent,
		DaysToRenewal:              intPtr(45),
	}
}

func TestCalculateHealthScoreFullData(t *testing.T) {
	t.Parallel()

	health := CalculateHealthScore(healthyInput(), DefaultConfig(), scoredAt)

	want := map[domain.ComponentName]int{
		domain.ComponentAdoption:     100,
		domain.ComponentEngagement:   77,
		domain.ComponentRelationship: 87,
		domain.ComponentSupport:      71,
		domain.ComponentCommercial:   50,
	}
	for name, score := range want {
		component, _ := health.Components.Get(name)
		if component.Score != score {
			t.Fatalf("%s: got %d, want %d", name, component.Score, score)
		}
		if component.DataPoints != len(component.Factors) || component.DataPoints == 0 {
			t.Fatalf("%s: data points %d for %d factors", name, component.DataPoints, len(component.Factors))
		}
	}
	if health.Score != 80 || health.Grade != domain.GradeA {
		t.Fatalf("unexpected composite %d grade %s", health.Score, health.Grade)
	}
	if health.Confidence != 100 {
		t.Fatalf("expected full confidence, got %d", health.Confidence)
	}
	if health.DataFreshness != domain.FreshnessFresh || !health.CalculatedAt.Equal(scoredAt) {
		t.Fatalf("unexpected freshness/time: %s %s", health.DataFreshness, health.CalculatedAt)
	}
	if health.Trend != domain.TrendStable || health.ChangeReason != "Score is stable" || health.PreviousScore != nil {
		t.Fatalf("unexpected trend fields: %+v", health)
	}
}

func TestCalculateHealthScoreInactiveAccount(t *testing.T) {
	t.Parallel()

	health := CalculateHealthScore(domain.HealthScoringInput{
		DaysSinceLastActivity: 40,
		AccountAgeDays:        40,
	}, DefaultConfig(), scoredAt)

	if health.Components.Adoption.Score != 0 || health.Components.Engagement.Score != 0 {
		t.Fatalf("expected zero adoption/engagement, got %d/%d",
			health.Components.Adoption.Score, health.Components.Engagement.Score)
	}
	if health.Components.Relationship.Score != 50 ||
		health.Components.Support.Score != 80 ||
		health.Components.Commercial.Score != 70 {
		t.Fatalf("expected neutral defaults, got %+v", health.Components)
	}
	if health.Score >= 40 || health.Grade != domain.GradeF {
		t.Fatalf("expected low F score, got %d %s", health.Score, health.Grade)
	}
	if health.Confidence != 40 {
		t.Fatalf("expected core-only confidence 40, got %d", health.Confidence)
	}
	if health.DataFreshness != domain.FreshnessMissing {
		t.Fatalf("expected missing freshness, got %s", health.DataFreshness)
	}
}

func TestCompositeMatchesWeightedComponents(t *testing.T) {
	t.Parallel()

	for _, in := range []domain.HealthScoringInput{healthyInput(), {DaysSinceLastActivity: 3, TotalUsers: 4, ActiveUsersLast30Days: 1}} {
		health := CalculateHealthScore(in, DefaultConfig(), scoredAt)
		var sum float64
		for _, name := range domain.ComponentOrder {
			component, _ := health.Components.Get(name)
			sum += float64(component.Score) * component.Weight
		}
		if int(math.Round(sum)) != health.Score {
			t.Fatalf("composite %d does not match weighted sum %.2f", health.Score, sum)
		}
	}
}

func TestTrendAndChangeReason(t *testing.T) {
	t.Parallel()

	in := healthyInput()
	in.DaysSinceLastActivity = 20
	in.ActiveUsersLast7Days = 0
	in.ActiveUsersLast30Days = 0
	base := CalculateHealthScore(in, DefaultConfig(), scoredAt)

	in.PreviousScore = intPtr(base.Score + 20)
	health := CalculateHealthScore(in, DefaultConfig(), scoredAt)
	if health.ScoreChange != -20 || health.Trend != domain.TrendDeclining {
		t.Fatalf("expected -20 declining, got %d %s", health.ScoreChange, health.Trend)
	}
	if !strings.Contains(health.ChangeReason, "declined by 20") || !strings.Contains(health.ChangeReason, "engagement") {
		t.Fatalf("unexpected change reason %q", health.ChangeReason)
	}

	in.PreviousScore = intPtr(base.Score - 4)
	health = CalculateHealthScore(in, DefaultConfig(), scoredAt)
	if health.Trend != domain.TrendStable || !strings.Contains(health.ChangeReason, "improved by 4") {
		t.Fatalf("expected stable trend with reason, got %s %q", health.Trend, health.ChangeReason)
	}

	in.PreviousScore = intPtr(base.Score + 2)
	health = CalculateHealthScore(in, DefaultConfig(), scoredAt)
	if health.ChangeReason != "Score is stable" {
		t.Fatalf("small change must be stable, got %q", health.ChangeReason)
	}
}

func TestChangeReasonTieUsesComponentOrder(t *testing.T) {
	t.Parallel()

	components := domain.HealthComponents{
		Adoption:     domain.HealthComponent{Score: 60},
		Engagement:   domain.HealthComponent{Score: 40},
		Relationship: domain.HealthComponent{Score: 40},
		Support:      domain.HealthComponent{Score: 90},
		Commercial:   domain.HealthComponent{Score: 40},
	}
	reason := changeReason(-8, components)
	if reason != "Score declined by 8 points; primary driver: engagement (score 40)" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestAdoptionMonotonicInOrders(t *testing.T) {
	t.Parallel()

	previous := -1
	for orders := 0; orders <= 20; orders++ {
		health := CalculateHealthScore(domain.HealthScoringInput{
			ItemCount:       7,
			KanbanCardCount: 12,
			OrderCount:      orders,
			AccountAgeDays:  30,
		}, DefaultConfig(), scoredAt)
		if health.Components.Adoption.Score < previous {
			t.Fatalf("adoption decreased at orders=%d: %d < %d", orders, health.Components.Adoption.Score, previous)
		}
		previous = health.Components.Adoption.Score
	}
}

func TestScoresAreClamped(t *testing.T) {
	t.Parallel()

	inputs := []domain.HealthScoringInput{
		{ItemCount: 100000, KanbanCardCount: 100000, OrderCount: 100000, TotalUsers: 500, ActiveUsersLast7Days: 500, ActiveUsersLast30Days: 500},
		{OpenTickets: intPtr(30), CriticalTickets: intPtr(12), CSAT: floatPtr(0), DaysSinceLastActivity: 400},
		{DaysSinceLastCSContact: intPtr(0), InteractionCountLast30Days: intPtr(99), HasChampion: boolPtr(true)},
		{PaymentStatus: domain.PaymentOverdue, DaysToRenewal: intPtr(-5)},
	}
	for i, in := range inputs {
		health := CalculateHealthScore(in, DefaultConfig(), scoredAt)
		if health.Score < 0 || health.Score > 100 {
			t.Fatalf("input %d: composite %d out of range", i, health.Score)
		}
		for _, name := range domain.ComponentOrder {
			component, _ := health.Components.Get(name)
			if component.Score < 0 || component.Score > 100 {
				t.Fatalf("input %d: %s score %d out of range", i, name, component.Score)
			}
		}
	}
}

func TestSupportCriticalPenaltyAndUnknownPayment(t *testing.T) {
	t.Parallel()

	health := CalculateHealthScore(domain.HealthScoringInput{
		OpenTickets:     intPtr(0),
		CriticalTickets: intPtr(6),
		PaymentStatus:   domain.PaymentUnknown,
	}, DefaultConfig(), scoredAt)
	if health.Components.Support.Score != 0 {
		t.Fatalf("expected support clamped to 0, got %d", health.Components.Support.Score)
	}
	if health.Components.Commercial.Score != 70 {
		t.Fatalf("unknown payment must keep baseline, got %d", health.Components.Commercial.Score)
	}
	if health.Confidence != 50 {
		t.Fatalf("unknown payment must not count toward confidence, got %d", health.Confidence)
	}

	champion := CalculateHealthScore(domain.HealthScoringInput{HasChampion: boolPtr(false)}, DefaultConfig(), scoredAt)
	if champion.Components.Relationship.Score != 25 {
		t.Fatalf("expected contact-unknown 25 without champion, got %d", champion.Components.Relationship.Score)
	}
	last := champion.Components.Relationship.Factors[len(champion.Components.Relationship.Factors)-1]
	if last.Impact != domain.ImpactNegative || last.Points != 0 {
		t.Fatalf("unexpected champion factor %+v", last)
	}
}

func TestSupportClampsPenaltyBeforeCSATBlend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		open        int
		critical    int
		csat        *float64
		wantScore   int
		wantPenalty float64
	}{
		{name: "penalty beyond zero without csat", open: 0, critical: 6, wantScore: 0, wantPenalty: -100},
		{name: "penalty beyond zero then csat", open: 0, critical: 6, csat: floatPtr(100), wantScore: 9, wantPenalty: -100},
		{name: "single critical then csat", open: 0, critical: 1, csat: floatPtr(50), wantScore: 61, wantPenalty: -20},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			health := CalculateHealthScore(domain.HealthScoringInput{
				OpenTickets:     intPtr(tc.open),
				CriticalTickets: intPtr(tc.critical),
				CSAT:            tc.csat,
			}, DefaultConfig(), scoredAt)
			support := health.Components.Support
			if support.Score != tc.wantScore {
				t.Fatalf("support score = %d, want %d", support.Score, tc.wantScore)
			}
			for _, factor := range support.Factors {
				if factor.Name == "Critical tickets" && factor.Points != tc.wantPenalty {
					t.Fatalf("critical ticket points = %v, want %v", factor.Points, tc.wantPenalty)
				}
			}
		})
	}
}

func TestCalculateHealthScoreDeterministic(t *testing.T) {
	t.Parallel()

	first := CalculateHealthScore(healthyInput(), DefaultConfig(), scoredAt)
	second := CalculateHealthScore(healthyInput(), DefaultConfig(), scoredAt)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical health for identical input")
	}
}

func TestSegmentOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := ConfigFromSettings(config.ScoringConfig{
		Segment: map[string]config.SegmentConfig{
			"Enterprise": {Weights: &config.WeightsConfig{Relationship: 1}},
			"smb":        {Grades: &config.GradesConfig{A: 95, B: 90, C: 85, D: 82}},
		},
	})
	if err != nil {
		t.Fatalf("config from settings: %v", err)
	}

	for _, segment := range []string{"", "enterprise", "SMB", "unknown"} {
		if sum := cfg.Effective(segment).Weights.Sum(); math.Abs(sum-1) > 1e-9 {
			t.Fatalf("segment %q: weights sum %.12f", segment, sum)
		}
	}

	in := healthyInput()
	in.Segment = "enterprise"
	health := CalculateHealthScore(in, cfg, scoredAt)
	if health.Score != health.Components.Relationship.Score {
		t.Fatalf("relationship-only weights: composite %d vs relationship %d", health.Score, health.Components.Relationship.Score)
	}

	in.Segment = "smb"
	health = CalculateHealthScore(in, cfg, scoredAt)
	if health.Score != 80 || health.Grade != domain.GradeF {
		t.Fatalf("smb thresholds must grade 80 as F, got %d %s", health.Score, health.Grade)
	}
}

func TestConfigFromSettingsRejectsBadWeights(t *testing.T) {
	t.Parallel()

	_, err := ConfigFromSettings(config.ScoringConfig{
		Weights: &config.WeightsConfig{Adoption: 0.5, Engagement: 0.6},
	})
	if err == nil || !strings.Contains(err.Error(), "sum to 1.0") {
		t.Fatalf("expected weight sum error, got %v", err)
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestFreshnessBoundaries(t *testing.T) {
	t.Parallel()

	cases := map[int]domain.DataFreshness{
		0: domain.FreshnessFresh, 1: domain.FreshnessFresh,
		2: domain.FreshnessStale, 7: domain.FreshnessStale,
		8: domain.FreshnessOutdated, 30: domain.FreshnessOutdated,
		31: domain.FreshnessMissing,
	}
	for days, want := range cases {
		if got := Freshness(days); got != want {
			t.Fatalf("days %d: got %s, want %s", days, got, want)
		}
	}
}

func TestAdoptionVelocityFloorsAccountAgeAtOneDay(t *testing.T) {
	t.Parallel()

	newborn := domain.HealthScoringInput{ItemCount: 3, KanbanCardCount: 1, AccountAgeDays: 0}
	oneDay := newborn
	oneDay.AccountAgeDays = 1

	got := CalculateHealthScore(newborn, DefaultConfig(), scoredAt).Components.Adoption
	want := CalculateHealthScore(oneDay, DefaultConfig(), scoredAt).Components.Adoption
	if got.Score != want.Score {
		t.Fatalf("adoption for zero-day account = %d, want one-day score %d", got.Score, want.Score)
	}
}
