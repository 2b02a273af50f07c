package domain

import (
	"fmt"
	"strings"
)

// Tier is a claim's retention stage. Tiers are ordered from shortest to
// longest retention; the janitor moves claims one step at a time.
type Tier string

const (
	TierEphemeral Tier = "ephemeral"
	TierTask      Tier = "task"
	TierProject   Tier = "project"
	TierPermanent Tier = "permanent"
)

// tierOrder is the promotion ladder, shortest retention first.
var tierOrder = []Tier{TierEphemeral, TierTask, TierProject, TierPermanent}

func AllTiers() []Tier {
	return []Tier{TierEphemeral, TierTask, TierProject, TierPermanent}
}

func ValidTier(t string) bool {
	switch Tier(t) {
	case TierEphemeral, TierTask, TierProject, TierPermanent:
		return true
	}
	return false
}

// ParseTier maps a canonical lowercase name back to its Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !ValidTier(string(t)) {
		return "", fmt.Errorf("unknown tier: %q", s)
	}
	return t, nil
}

func (t Tier) String() string {
	return string(t)
}

func (t Tier) rank() int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return -1
}

// Next returns the tier one step up the retention ladder. Permanent has no
// next tier.
func (t Tier) Next() (Tier, bool) {
	r := t.rank()
	if r < 0 || r == len(tierOrder)-1 {
		return "", false
	}
	return tierOrder[r+1], true
}

// Previous returns the tier one step down. Ephemeral has no previous tier.
func (t Tier) Previous() (Tier, bool) {
	r := t.rank()
	if r <= 0 {
		return "", false
	}
	return tierOrder[r-1], true
}
