package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/credence-io/credence/internal/domain"
)

// JanitorMetrics counts lifecycle outcomes per tier. A value object owned by
// the janitor; never persisted.
type JanitorMetrics struct {
	Deleted      map[domain.Tier]int `json:"deleted"`
	Promoted     map[domain.Tier]int `json:"promoted"`
	Demoted      map[domain.Tier]int `json:"demoted"`
	SweepCount   int                 `json:"sweep_count"`
	TotalRuntime time.Duration       `json:"total_runtime"`
}

func NewJanitorMetrics() *JanitorMetrics {
	return &JanitorMetrics{
		Deleted:  make(map[domain.Tier]int),
		Promoted: make(map[domain.Tier]int),
		Demoted:  make(map[domain.Tier]int),
	}
}

func (m *JanitorMetrics) RecordDeletion(tier domain.Tier, count int) {
	m.Deleted[tier] += count
}

// RecordPromotion counts a promotion away from the given tier.
func (m *JanitorMetrics) RecordPromotion(fromTier domain.Tier) {
	m.Promoted[fromTier]++
}

// RecordDemotion counts a demotion away from the given tier.
func (m *JanitorMetrics) RecordDemotion(fromTier domain.Tier) {
	m.Demoted[fromTier]++
}

func (m *JanitorMetrics) RecordSweep() {
	m.SweepCount++
}

func (m *JanitorMetrics) AddRuntime(d time.Duration) {
	m.TotalRuntime += d
}

func (m *JanitorMetrics) TotalDeleted() int {
	total := 0
	for _, n := range m.Deleted {
		total += n
	}
	return total
}

func (m *JanitorMetrics) TotalPromoted() int {
	total := 0
	for _, n := range m.Promoted {
		total += n
	}
	return total
}

func (m *JanitorMetrics) TotalDemoted() int {
	total := 0
	for _, n := range m.Demoted {
		total += n
	}
	return total
}

func (m *JanitorMetrics) Reset() {
	m.Deleted = make(map[domain.Tier]int)
	m.Promoted = make(map[domain.Tier]int)
	m.Demoted = make(map[domain.Tier]int)
	m.SweepCount = 0
	m.TotalRuntime = 0
}

// Clone returns an independent copy, so callers can snapshot metrics while
// the janitor keeps mutating its own.
func (m *JanitorMetrics) Clone() *JanitorMetrics {
	out := NewJanitorMetrics()
	for tier, n := range m.Deleted {
		out.Deleted[tier] = n
	}
	for tier, n := range m.Promoted {
		out.Promoted[tier] = n
	}
	for tier, n := range m.Demoted {
		out.Demoted[tier] = n
	}
	out.SweepCount = m.SweepCount
	out.TotalRuntime = m.TotalRuntime
	return out
}

// Summary renders a human-readable report. Tiers print in ladder order so
// output is stable.
func (m *JanitorMetrics) Summary() string {
	var b strings.Builder
	b.WriteString("Janitor Metrics Summary\n")
	b.WriteString("======================\n")
	fmt.Fprintf(&b, "Sweep cycles: %d\n", m.SweepCount)
	fmt.Fprintf(&b, "Total runtime: %s\n", m.TotalRuntime.Round(time.Millisecond))

	writeSection := func(title string, counts map[domain.Tier]int, total int) {
		if len(counts) == 0 {
			return
		}
		b.WriteString("\n")
		b.WriteString(title)
		b.WriteString("\n")
		for _, tier := range domain.AllTiers() {
			if n, ok := counts[tier]; ok {
				fmt.Fprintf(&b, "  %s: %d\n", tier, n)
			}
		}
		fmt.Fprintf(&b, "  Total: %d\n", total)
	}

	writeSection("Deletions by tier:", m.Deleted, m.TotalDeleted())
	writeSection("Promotions from tier:", m.Promoted, m.TotalPromoted())
	writeSection("Demotions from tier:", m.Demoted, m.TotalDemoted())

	return strings.TrimRight(b.String(), "\n")
}
