// Package scoring applies catalog weights to bounded trust scores.
package scoring

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/trust/internal/domain/catalog"
)

// Default score bounds.
const (
	DefaultMinScore = 0
	DefaultMaxScore = 1000
)

// ErrInvalidBounds reports a score range that is empty or excludes the zero start score.
var ErrInvalidBounds = errors.New("invalid score bounds")

// Option applies a configuration option to the Calculator.
type Option func(*Calculator)

// WithBounds sets the inclusive score range.
func WithBounds(minScore, maxScore int) Option {
	return func(c *Calculator) {
		c.min = minScore
		c.max = maxScore
	}
}

// Input abstracts the fields needed to apply one event.
type Input struct {
	Current   int
	EventType string
	Context   json.RawMessage
	Recent    catalog.Summary
}

// Result describes the outcome of applying one event.
type Result struct {
	NewScore     int
	DeltaApplied int  // NewScore - Current; what the ledger persists
	Resolved     int  // delta returned by the catalog after modifiers, before clamping
	BaseWeight   int  // catalog entry weight; the amount for corrections
	Capped       bool // a catalog modifier reduced the base weight
	Clamped      bool // the score hit a bound
}

// WeightResolver resolves event types to signed deltas.
type WeightResolver interface {
	Lookup(eventType string) (catalog.Entry, error)
	ResolveWeight(eventType string, raw json.RawMessage, recent catalog.Summary) (int, bool, error)
}

// Calculator is a pure function from (score, event) to a new bounded score.
type Calculator struct {
	weights WeightResolver
	min     int
	max     int
}

// NewCalculator creates a calculator over the given weights.
func NewCalculator(weights WeightResolver, opts ...Option) (*Calculator, error) {
	c := &Calculator{
		weights: weights,
		min:     DefaultMinScore,
		max:     DefaultMaxScore,
	}
	for _, opt := range opts {
		opt(c)
	}

	if weights == nil {
		return nil, errors.New("weight resolver is required")
	}
	if c.min >= c.max || c.min > 0 || c.max < 0 {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidBounds, c.min, c.max)
	}
	return c, nil
}

// Apply computes the new score for one event. Only catalog errors propagate.
func (c *Calculator) Apply(in Input) (Result, error) {
	delta, capped, err := c.weights.ResolveWeight(in.EventType, in.Context, in.Recent)
	if err != nil {
		return Result{}, err
	}
	base := delta
	if entry, err := c.weights.Lookup(in.EventType); err == nil && !entry.Correction {
		base = entry.Weight
	}

	current := c.Clamp(in.Current)
	next := c.Clamp(current + delta)
	return Result{
		NewScore:     next,
		DeltaApplied: next - current,
		Resolved:     delta,
		BaseWeight:   base,
		Capped:       capped,
		Clamped:      next != current+delta,
	}, nil
}

// Clamp bounds score to the calculator's range.
func (c *Calculator) Clamp(score int) int {
	return clamp(score, c.min, c.max)
}

// Bounds returns the inclusive score range.
func (c *Calculator) Bounds() (minScore, maxScore int) {
	return c.min, c.max
}

// Fold replays deltas from zero, clamping after every step.
func (c *Calculator) Fold(deltas []int) int {
	return Fold(deltas, c.min, c.max)
}

// Fold replays deltas from zero within [minScore, maxScore], clamping after every step.
func Fold(deltas []int, minScore, maxScore int) int {
	score := clamp(0, minScore, maxScore)
	for _, d := range deltas {
		score = clamp(score+d, minScore, maxScore)
	}
	return score
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
