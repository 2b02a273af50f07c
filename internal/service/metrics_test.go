package service

import (
	"strings"
	"testing"
	"time"

	"github.com/credence-io/credence/internal/domain"
)

func TestJanitorMetricsStartEmpty(t *testing.T) {
	m := NewJanitorMetrics()
	if m.TotalDeleted() != 0 || m.TotalPromoted() != 0 || m.TotalDemoted() != 0 {
		t.Error("new metrics should have zero totals")
	}
	if m.SweepCount != 0 || m.TotalRuntime != 0 {
		t.Error("new metrics should have zero sweep count and runtime")
	}
}

func TestJanitorMetricsRecordDeletion(t *testing.T) {
	m := NewJanitorMetrics()
	m.RecordDeletion(domain.TierEphemeral, 5)
	m.RecordDeletion(domain.TierTask, 3)
	m.RecordDeletion(domain.TierEphemeral, 2)

	if got := m.Deleted[domain.TierEphemeral]; got != 7 {
		t.Errorf("ephemeral deletions = %d, want 7", got)
	}
	if got := m.Deleted[domain.TierTask]; got != 3 {
		t.Errorf("task deletions = %d, want 3", got)
	}
	if got := m.TotalDeleted(); got != 10 {
		t.Errorf("TotalDeleted() = %d, want 10", got)
	}
}

func TestJanitorMetricsRecordPromotionDemotion(t *testing.T) {
	m := NewJanitorMetrics()
	m.RecordPromotion(domain.TierEphemeral)
	m.RecordPromotion(domain.TierEphemeral)
	m.RecordPromotion(domain.TierTask)
	m.RecordDemotion(domain.TierPermanent)

	if got := m.Promoted[domain.TierEphemeral]; got != 2 {
		t.Errorf("ephemeral promotions = %d, want 2", got)
	}
	if got := m.TotalPromoted(); got != 3 {
		t.Errorf("TotalPromoted() = %d, want 3", got)
	}
	if got := m.TotalDemoted(); got != 1 {
		t.Errorf("TotalDemoted() = %d, want 1", got)
	}
}

func TestJanitorMetricsReset(t *testing.T) {
	m := NewJanitorMetrics()
	m.RecordDeletion(domain.TierEphemeral, 10)
	m.RecordPromotion(domain.TierTask)
	m.RecordSweep()
	m.AddRuntime(time.Second)

	m.Reset()

	if m.TotalDeleted() != 0 || m.TotalPromoted() != 0 || m.SweepCount != 0 || m.TotalRuntime != 0 {
		t.Error("reset should clear every counter")
	}
}

func TestJanitorMetricsClone(t *testing.T) {
	m := NewJanitorMetrics()
	m.RecordDeletion(domain.TierEphemeral, 4)
	m.RecordSweep()

	snapshot := m.Clone()
	m.RecordDeletion(domain.TierEphemeral, 6)

	if got := snapshot.Deleted[domain.TierEphemeral]; got != 4 {
		t.Errorf("snapshot should be independent, got %d deletions", got)
	}
	if got := m.Deleted[domain.TierEphemeral]; got != 10 {
		t.Errorf("original should keep mutating, got %d deletions", got)
	}
}

func TestJanitorMetricsSummary(t *testing.T) {
	m := NewJanitorMetrics()
	m.RecordDeletion(domain.TierEphemeral, 5)
	m.RecordPromotion(domain.TierTask)
	m.RecordDemotion(domain.TierProject)
	m.RecordSweep()
	m.AddRuntime(2 * time.Minute)

	summary := m.Summary()

	for _, want := range []string{
		"Sweep cycles: 1",
		"Total runtime: 2m0s",
		"ephemeral: 5",
		"task: 1",
		"project: 1",
		"Deletions by tier:",
		"Promotions from tier:",
		"Demotions from tier:",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestJanitorMetricsSummaryOmitsEmptySections(t *testing.T) {
	m := NewJanitorMetrics()
	m.RecordSweep()

	summary := m.Summary()
	if strings.Contains(summary, "Deletions") || strings.Contains(summary, "Promotions") || strings.Contains(summary, "Demotions") {
		t.Errorf("empty sections should be omitted:\n%s", summary)
	}
}
