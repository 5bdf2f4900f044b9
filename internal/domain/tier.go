package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Tier is a named rank bracket a user enters once their total score reaches
// the tier's threshold.
type Tier string

// Default tiers in ascending order.
const (
	TierUnrated  Tier = "UNRATED"
	TierBronze   Tier = "BRONZE"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
)

// TierThreshold pairs a tier with the minimum total score required to hold it.
type TierThreshold struct {
	Tier     Tier
	MinScore int64
}

// TierLadder is an ordered set of tier thresholds. The zero value is not
// usable; build one with NewTierLadder or DefaultTierLadder.
type TierLadder struct {
	steps []TierThreshold
}

// DefaultTierLadder returns the ladder used when configuration does not
// override it.
func DefaultTierLadder() TierLadder {
	ladder, _ := NewTierLadder([]TierThreshold{
		{Tier: TierUnrated, MinScore: 0},
		{Tier: TierBronze, MinScore: 300},
		{Tier: TierGold, MinScore: 900},
		{Tier: TierPlatinum, MinScore: 1800},
		{Tier: TierDiamond, MinScore: 3000},
	})
	return ladder
}

// NewTierLadder validates and sorts the thresholds. The lowest tier must start
// at zero, names must be unique, and thresholds must be strictly increasing.
func NewTierLadder(steps []TierThreshold) (TierLadder, error) {
	if len(steps) == 0 {
		return TierLadder{}, fmt.Errorf("tier ladder requires at least one tier")
	}

	sorted := slices.Clone(steps)
	slices.SortStableFunc(sorted, func(a, b TierThreshold) int {
		switch {
		case a.MinScore < b.MinScore:
			return -1
		case a.MinScore > b.MinScore:
			return 1
		default:
			return 0
		}
	})

	if sorted[0].MinScore != 0 {
		return TierLadder{}, fmt.Errorf("lowest tier %s must start at 0, got %d", sorted[0].Tier, sorted[0].MinScore)
	}

	seen := make(map[Tier]struct{}, len(sorted))
	for i, step := range sorted {
		name := Tier(strings.TrimSpace(string(step.Tier)))
		if name == "" {
			return TierLadder{}, fmt.Errorf("tier at position %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return TierLadder{}, fmt.Errorf("duplicate tier %s", name)
		}
		seen[name] = struct{}{}
		if i > 0 && step.MinScore == sorted[i-1].MinScore {
			return TierLadder{}, fmt.Errorf("tiers %s and %s share threshold %d", sorted[i-1].Tier, name, step.MinScore)
		}
		sorted[i].Tier = name
	}

	return TierLadder{steps: sorted}, nil
}

// Resolve returns the highest tier whose threshold is at or below total.
// Totals below zero resolve to the lowest tier; callers are expected to reject
// negative totals before they reach the ladder.
func (l TierLadder) Resolve(total int64) Tier {
	idx := l.index(total)
	return l.steps[idx].Tier
}

// Next returns the tier immediately above current. The top tier is its own
// successor. Unknown tiers resolve to the lowest tier's successor.
func (l TierLadder) Next(current Tier) Tier {
	pos := l.position(current)
	if pos < 0 {
		pos = 0
	}
	if pos+1 >= len(l.steps) {
		return l.steps[len(l.steps)-1].Tier
	}
	return l.steps[pos+1].Tier
}

// PointsToNext returns how many points a user with the given total still needs
// to reach the next tier. It is zero at the top tier.
func (l TierLadder) PointsToNext(total int64) int64 {
	idx := l.index(total)
	if idx+1 >= len(l.steps) {
		return 0
	}
	return l.steps[idx+1].MinScore - total
}

// Threshold returns the minimum score for tier and whether the tier exists.
func (l TierLadder) Threshold(t Tier) (int64, bool) {
	pos := l.position(t)
	if pos < 0 {
		return 0, false
	}
	return l.steps[pos].MinScore, true
}

// Steps returns a copy of the ladder in ascending order.
func (l TierLadder) Steps() []TierThreshold { return slices.Clone(l.steps) }

func (l TierLadder) index(total int64) int {
	// First step whose threshold is above total, minus one.
	i := sort.Search(len(l.steps), func(i int) bool { return l.steps[i].MinScore > total })
	if i == 0 {
		return 0
	}
	return i - 1
}

func (l TierLadder) position(t Tier) int {
	return slices.IndexFunc(l.steps, func(s TierThreshold) bool { return s.Tier == t })
}
