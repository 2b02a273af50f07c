package service

import (
	"context"
	"errors"
	"testing"

	"github.com/credence-io/credence/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatekeeperClaim(t *testing.T) *domain.Claim {
	t.Helper()
	conf, err := domain.NewConfidenceInterval(0.8, 0.9)
	require.NoError(t, err)
	c, err := domain.NewClaim("project/alpha", "user:alice", "likes:coffee", "beverage:espresso", conf)
	require.NoError(t, err)
	c.Tier = domain.TierTask
	return c
}

func TestGatekeeperAcceptsValidClaim(t *testing.T) {
	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())

	result, err := gk.Validate(context.Background(), gatekeeperClaim(t), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ValidationAccepted, result.Status)
	assert.True(t, result.Accepted())
	assert.Empty(t, result.Reasons)
	assert.Equal(t, 1.0, result.QualityScore)
}

func TestGatekeeperRejectsBadEntityFormat(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Claim)
		field  string
	}{
		{"subject missing prefix", func(c *domain.Claim) { c.Subject = "alice" }, "subject"},
		{"predicate empty value", func(c *domain.Claim) { c.Predicate = "likes:" }, "predicate"},
		{"object empty prefix", func(c *domain.Claim) { c.Object = ":espresso" }, "object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
			claim := gatekeeperClaim(t)
			tt.mutate(claim)

			result, err := gk.Validate(context.Background(), claim, nil, nil)
			require.NoError(t, err)

			assert.Equal(t, ValidationRejected, result.Status)
			require.Len(t, result.Reasons, 1)
			assert.Equal(t, ReasonInvalidEntityFormat, result.Reasons[0].Code)
			assert.Contains(t, result.Reasons[0].Detail, tt.field)
			assert.InDelta(t, 0.7, result.QualityScore, 1e-9)
		})
	}
}

func TestGatekeeperRejectsBadConfidenceBounds(t *testing.T) {
	tests := []struct {
		name   string
		bounds domain.ConfidenceInterval
	}{
		{"lower out of range", domain.ConfidenceInterval{Lower: 1.5, Upper: 2.0}},
		{"upper out of range", domain.ConfidenceInterval{Lower: 0.5, Upper: 1.2}},
		{"lower above upper", domain.ConfidenceInterval{Lower: 0.9, Upper: 0.8}},
		{"zero width interval", domain.ConfidenceInterval{Lower: 0.5, Upper: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
			claim := gatekeeperClaim(t)
			claim.Confidence = tt.bounds

			result, err := gk.Validate(context.Background(), claim, nil, nil)
			require.NoError(t, err)

			assert.Equal(t, ValidationRejected, result.Status)
			require.NotEmpty(t, result.Reasons)
			assert.Equal(t, ReasonInvalidConfidenceBounds, result.Reasons[0].Code)
		})
	}
}

func TestGatekeeperRejectsInvalidNamespace(t *testing.T) {
	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
	claim := gatekeeperClaim(t)
	claim.Namespace = "Project//Alpha"

	result, err := gk.Validate(context.Background(), claim, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ValidationRejected, result.Status)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, ReasonInvalidNamespace, result.Reasons[0].Code)
}

func TestGatekeeperTierConfidenceRequirement(t *testing.T) {
	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
	claim := gatekeeperClaim(t)
	claim.Tier = domain.TierPermanent
	claim.Confidence = domain.ConfidenceInterval{Lower: 0.5, Upper: 0.6}

	result, err := gk.Validate(context.Background(), claim, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ValidationRejected, result.Status)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, ReasonTierConfidence, result.Reasons[0].Code)
	assert.Contains(t, result.Reasons[0].Detail, "permanent")
	assert.InDelta(t, 0.8, result.QualityScore, 1e-9)
}

func TestGatekeeperRejectsUnknownTier(t *testing.T) {
	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
	claim := gatekeeperClaim(t)
	claim.Tier = domain.Tier("eternal")

	result, err := gk.Validate(context.Background(), claim, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ValidationRejected, result.Status)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, ReasonTierConfidence, result.Reasons[0].Code)
}

func TestGatekeeperPermissivePreset(t *testing.T) {
	gk := NewGatekeeper(PermissiveValidationConfig(), testLogger())
	claim := gatekeeperClaim(t)
	claim.Confidence = domain.ConfidenceInterval{Lower: 0.1, Upper: 0.2}

	result, err := gk.Validate(context.Background(), claim, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ValidationAccepted, result.Status)
}

func TestGatekeeperCollectsMultipleReasons(t *testing.T) {
	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
	claim := gatekeeperClaim(t)
	claim.Subject = "alice"
	claim.Confidence = domain.ConfidenceInterval{Lower: 0.9, Upper: 0.8}

	result, err := gk.Validate(context.Background(), claim, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, ValidationRejected, result.Status)
	assert.Len(t, result.Reasons, 2)
	assert.InDelta(t, 0.3, result.QualityScore, 1e-9)
}

func TestGatekeeperQualityScoreFloorsAtZero(t *testing.T) {
	ms := newMockClaimStore()
	existing := gatekeeperClaim(t)
	existing.Subject = "alice"
	existing.Tier = domain.TierPermanent
	ms.seed(existing)

	claim := gatekeeperClaim(t)
	claim.Subject = "alice"
	claim.Tier = domain.TierPermanent
	claim.Confidence = domain.ConfidenceInterval{Lower: 0.5, Upper: 0.4}

	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
	result, err := gk.Validate(context.Background(), claim, ms, nil)
	require.NoError(t, err)

	assert.Equal(t, ValidationRejected, result.Status)
	assert.Len(t, result.Reasons, 4)
	assert.Equal(t, 0.0, result.QualityScore)
}

func TestGatekeeperDuplicateDetection(t *testing.T) {
	ms := newMockClaimStore()
	existing := gatekeeperClaim(t)
	ms.seed(existing)

	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())

	t.Run("identical triple rejected", func(t *testing.T) {
		claim := gatekeeperClaim(t)
		result, err := gk.Validate(context.Background(), claim, ms, nil)
		require.NoError(t, err)

		assert.Equal(t, ValidationRejected, result.Status)
		require.Len(t, result.Reasons, 1)
		assert.Equal(t, ReasonDuplicate, result.Reasons[0].Code)
		require.NotNil(t, result.Reasons[0].ExistingID)
		assert.Equal(t, existing.ID, *result.Reasons[0].ExistingID)
	})

	t.Run("different object accepted", func(t *testing.T) {
		claim := gatekeeperClaim(t)
		claim.Object = "beverage:cortado"
		result, err := gk.Validate(context.Background(), claim, ms, nil)
		require.NoError(t, err)

		assert.Equal(t, ValidationAccepted, result.Status)
	})

	t.Run("different namespace accepted", func(t *testing.T) {
		conf, err := domain.NewConfidenceInterval(0.8, 0.9)
		require.NoError(t, err)
		claim, err := domain.NewClaim("project/beta", "user:alice", "likes:coffee", "beverage:espresso", conf)
		require.NoError(t, err)
		claim.Tier = domain.TierTask

		result, err := gk.Validate(context.Background(), claim, ms, nil)
		require.NoError(t, err)

		assert.Equal(t, ValidationAccepted, result.Status)
	})

	t.Run("nil store skips the check", func(t *testing.T) {
		claim := gatekeeperClaim(t)
		result, err := gk.Validate(context.Background(), claim, nil, nil)
		require.NoError(t, err)

		assert.Equal(t, ValidationAccepted, result.Status)
	})
}

func TestGatekeeperSupersedesExcusesDuplicate(t *testing.T) {
	ms := newMockClaimStore()
	existing := gatekeeperClaim(t)
	ms.seed(existing)

	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
	claim := gatekeeperClaim(t)

	result, err := gk.Validate(context.Background(), claim, ms, []uuid.UUID{existing.ID})
	require.NoError(t, err)

	assert.Equal(t, ValidationAccepted, result.Status)
}

func TestGatekeeperSemanticDuplicates(t *testing.T) {
	gk := NewGatekeeper(StrictValidationConfig(), testLogger())

	newCandidate := func(t *testing.T) *domain.Claim {
		t.Helper()
		conf, err := domain.NewConfidenceInterval(0.8, 0.9)
		require.NoError(t, err)
		c, err := domain.NewClaim("project/alpha", "user:alice", "enjoys:coffee", "beverage:flat_white", conf)
		require.NoError(t, err)
		c.Tier = domain.TierTask
		c.Embedding = []float32{0.1, 0.2, 0.3}
		return c
	}

	t.Run("near identical embedding rejected", func(t *testing.T) {
		ms := newMockClaimStore()
		ms.searchScore = 0.97
		existing := gatekeeperClaim(t)
		ms.seed(existing)

		result, err := gk.Validate(context.Background(), newCandidate(t), ms, nil)
		require.NoError(t, err)

		assert.Equal(t, ValidationRejected, result.Status)
		require.Len(t, result.Reasons, 1)
		assert.Equal(t, ReasonSemanticDuplicate, result.Reasons[0].Code)
		assert.Equal(t, 0.97, result.Reasons[0].Similarity)
		require.NotNil(t, result.Reasons[0].ExistingID)
		assert.Equal(t, existing.ID, *result.Reasons[0].ExistingID)
	})

	t.Run("below threshold accepted", func(t *testing.T) {
		ms := newMockClaimStore()
		ms.searchScore = 0.85
		ms.seed(gatekeeperClaim(t))

		result, err := gk.Validate(context.Background(), newCandidate(t), ms, nil)
		require.NoError(t, err)

		assert.Equal(t, ValidationAccepted, result.Status)
	})

	t.Run("supersedes excuses the hit", func(t *testing.T) {
		ms := newMockClaimStore()
		ms.searchScore = 0.97
		existing := gatekeeperClaim(t)
		ms.seed(existing)

		result, err := gk.Validate(context.Background(), newCandidate(t), ms, []uuid.UUID{existing.ID})
		require.NoError(t, err)

		assert.Equal(t, ValidationAccepted, result.Status)
	})

	t.Run("no embedding skips the check", func(t *testing.T) {
		ms := newMockClaimStore()
		ms.searchScore = 0.97
		ms.seed(gatekeeperClaim(t))

		claim := newCandidate(t)
		claim.Embedding = nil
		result, err := gk.Validate(context.Background(), claim, ms, nil)
		require.NoError(t, err)

		assert.Equal(t, ValidationAccepted, result.Status)
	})
}

func TestGatekeeperStoreErrorPropagates(t *testing.T) {
	ms := newMockClaimStore()
	ms.queryErr = errors.New("connection refused")

	gk := NewGatekeeper(DefaultValidationConfig(), testLogger())
	_, err := gk.Validate(context.Background(), gatekeeperClaim(t), ms, nil)

	assert.ErrorIs(t, err, ErrStore)
}

func TestValidationPreset(t *testing.T) {
	tests := []struct {
		preset  string
		want    ValidationConfig
		wantErr bool
	}{
		{preset: "", want: DefaultValidationConfig()},
		{preset: "default", want: DefaultValidationConfig()},
		{preset: "permissive", want: PermissiveValidationConfig()},
		{preset: "Strict", want: StrictValidationConfig()},
		{preset: "paranoid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("preset "+tt.preset, func(t *testing.T) {
			got, err := ValidationPreset(tt.preset)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
