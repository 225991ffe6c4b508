package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"cshealth/internal/config"
	"cshealth/internal/domain"
)

const weightTolerance = 1e-6

// Weights holds one weight per component.
type Weights struct {
	Adoption     float64 `json:"adoption"`
	Engagement   float64 `json:"engagement"`
	Relationship float64 `json:"relationship"`
	Support      float64 `json:"support"`
	Commercial   float64 `json:"commercial"`
}

// Sum returns total of five weights.
func (w Weights) Sum() float64 {
	return w.Adoption + w.Engagement + w.Relationship + w.Support + w.Commercial
}

// Of returns weight for one component.
// Params: component name.
// Returns: weight, or 0 for unknown names.
func (w Weights) Of(name domain.ComponentName) float64 {
	switch name {
	case domain.ComponentAdoption:
		return w.Adoption
	case domain.ComponentEngagement:
		return w.Engagement
	case domain.ComponentRelationship:
		return w.Relationship
	case domain.ComponentSupport:
		return w.Support
	case domain.ComponentCommercial:
		return w.Commercial
	default:
		return 0
	}
}

// GradeThresholds holds minimum composite score per grade; below D is F.
type GradeThresholds struct {
	A int `json:"a"`
	B int `json:"b"`
	C int `json:"c"`
	D int `json:"d"`
}

// Grade maps composite score to letter grade.
// Params: composite score.
// Returns: first grade whose threshold the score meets, else F.
func (g GradeThresholds) Grade(score int) domain.Grade {
	switch {
	case score >= g.A:
		return domain.GradeA
	case score >= g.B:
		return domain.GradeB
	case score >= g.C:
		return domain.GradeC
	case score >= g.D:
		return domain.GradeD
	default:
		return domain.GradeF
	}
}

// SegmentOverride replaces weights and/or thresholds for one segment.
type SegmentOverride struct {
	Weights *Weights
	Grades  *GradeThresholds
}

// Config is immutable scoring configuration for one process.
// Params: default weights/thresholds and segment overrides keyed by lower-case segment.
// Returns: value shared read-only across concurrent scoring calls.
type Config struct {
	Weights  Weights
	Grades   GradeThresholds
	Segments map[string]SegmentOverride
}

// DefaultConfig returns built-in weights and grade thresholds.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Adoption:     0.25,
			Engagement:   0.25,
			Relationship: 0.20,
			Support:      0.15,
			Commercial:   0.15,
		},
		Grades: GradeThresholds{A: 80, B: 65, C: 50, D: 35},
	}
}

// Effective resolves configuration for one account segment.
// Params: segment name from scoring input (case-insensitive).
// Returns: config with segment weights/thresholds overlaid; overrides are dropped from result.
func (c Config) Effective(segment string) Config {
	out := Config{Weights: c.Weights, Grades: c.Grades}
	override, ok := c.Segments[normalizeSegment(segment)]
	if !ok {
		return out
	}
	if override.Weights != nil {
		out.Weights = *override.Weights
	}
	if override.Grades != nil {
		out.Grades = *override.Grades
	}
	return out
}

// Validate checks default config and every segment overlay.
// Params: none.
// Returns: first invalid weight sum or threshold order.
func (c Config) Validate() error {
	if err := validate(c.Weights, c.Grades); err != nil {
		return err
	}
	for name := range c.Segments {
		if err := validate(c.Effective(name).Weights, c.Effective(name).Grades); err != nil {
			return fmt.Errorf("segment %q: %w", name, err)
		}
	}
	return nil
}

func validate(weights Weights, grades GradeThresholds) error {
	if math.Abs(weights.Sum()-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", weights.Sum())
	}
	for _, name := range domain.ComponentOrder {
		if weights.Of(name) < 0 {
			return fmt.Errorf("weight %s must be >=0", name)
		}
	}
	if !(grades.A > grades.B && grades.B > grades.C && grades.C > grades.D) {
		return errors.New("grade thresholds must be strictly descending")
	}
	return nil
}

// ConfigFromSettings converts TOML scoring section into immutable config.
// Params: parsed scoring settings; nil sections inherit defaults.
// Returns: validated scoring config or error.
func ConfigFromSettings(settings config.ScoringConfig) (Config, error) {
	cfg := DefaultConfig()
	if settings.Weights != nil {
		cfg.Weights = weightsFromSettings(*settings.Weights)
	}
	if settings.Grades != nil {
		cfg.Grades = gradesFromSettings(*settings.Grades)
	}
	if len(settings.Segment) > 0 {
		cfg.Segments = make(map[string]SegmentOverride, len(settings.Segment))
		for name, segment := range settings.Segment {
			var override SegmentOverride
			if segment.Weights != nil {
				weights := weightsFromSettings(*segment.Weights)
				override.Weights = &weights
			}
			if segment.Grades != nil {
				grades := gradesFromSettings(*segment.Grades)
				override.Grades = &grades
			}
			cfg.Segments[normalizeSegment(name)] = override
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("scoring config: %w", err)
	}
	return cfg, nil
}

func weightsFromSettings(w config.WeightsConfig) Weights {
	return Weights{
		Adoption:     w.Adoption,
		Engagement:   w.Engagement,
		Relationship: w.Relationship,
		Support:      w.Support,
		Commercial:   w.Commercial,
	}
}

func gradesFromSettings(g config.GradesConfig) GradeThresholds {
	return GradeThresholds{A: g.A, B: g.B, C: g.C, D: g.D}
}

func normalizeSegment(segment string) string {
	return strings.ToLower(strings.TrimSpace(segment))
}
