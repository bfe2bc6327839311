// Package level maps bounded trust scores to named tiers.
package level

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidTiers reports a tier table that does not cover the score range exactly once.
var ErrInvalidTiers = errors.New("invalid level tiers")

// Tier is an inclusive score range with a name.
type Tier struct {
	Name string
	Min  int
	Max  int
}

// Resolver resolves scores to tier names. Immutable after construction.
type Resolver struct {
	tiers []Tier
	min   int
	max   int
}

// DefaultTiers returns the built-in tier table over [0, 1000].
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "new", Min: 0, Max: 99},
		{Name: "building", Min: 100, Max: 299},
		{Name: "established", Min: 300, Max: 599},
		{Name: "trusted", Min: 600, Max: 849},
		{Name: "elite", Min: 850, Max: 1000},
	}
}

// NewResolver validates that tiers are ascending, contiguous and cover
// [minScore, maxScore] exactly, then returns a resolver over them.
func NewResolver(tiers []Tier, minScore, maxScore int) (*Resolver, error) {
	if minScore >= maxScore {
		return nil, fmt.Errorf("%w: score bounds [%d, %d] are empty", ErrInvalidTiers, minScore, maxScore)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrInvalidTiers)
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	seen := make(map[string]struct{}, len(sorted))
	for i, t := range sorted {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidTiers, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %q", ErrInvalidTiers, name)
		}
		seen[name] = struct{}{}

		if t.Min > t.Max {
			return nil, fmt.Errorf("%w: tier %q has min %d above max %d", ErrInvalidTiers, name, t.Min, t.Max)
		}
		if i == 0 && t.Min != minScore {
			return nil, fmt.Errorf("%w: first tier starts at %d, want %d", ErrInvalidTiers, t.Min, minScore)
		}
		if i > 0 && t.Min != sorted[i-1].Max+1 {
			return nil, fmt.Errorf("%w: tier %q starts at %d, want %d", ErrInvalidTiers, name, t.Min, sorted[i-1].Max+1)
		}
		sorted[i].Name = name
	}
	if last := sorted[len(sorted)-1]; last.Max != maxScore {
		return nil, fmt.Errorf("%w: last tier ends at %d, want %d", ErrInvalidTiers, last.Max, maxScore)
	}

	return &Resolver{tiers: sorted, min: minScore, max: maxScore}, nil
}

// LevelFor returns the name of the tier containing score. Scores outside the
// bounds resolve to the first or last tier, so a level is always returned.
func (r *Resolver) LevelFor(score int) string {
	// First tier whose lower bound is above score; the one before it contains score.
	i := sort.Search(len(r.tiers), func(i int) bool { return r.tiers[i].Min > score })
	if i == 0 {
		return r.tiers[0].Name
	}
	return r.tiers[i-1].Name
}

// Tiers returns a copy of the validated table in ascending order.
func (r *Resolver) Tiers() []Tier {
	out := make([]Tier, len(r.tiers))
	copy(out, r.tiers)
	return out
}

// Bounds returns the score range covered by the table.
func (r *Resolver) Bounds() (minScore, maxScore int) {
	return r.min, r.max
}
