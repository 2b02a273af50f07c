package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/credence-io/credence/internal/domain"
	"github.com/google/uuid"
)

// claimBackends returns a fresh instance of every store implementation that
// can run without external infrastructure. The postgres backend shares its
// query shapes with these but needs a live database.
func claimBackends(t *testing.T) map[string]domain.ClaimStore {
	t.Helper()

	sqlite, err := OpenSQLiteMemory()
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]domain.ClaimStore{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func storeClaim(namespace string, tier domain.Tier, lower float64, createdAt time.Time) *domain.Claim {
	return &domain.Claim{
		ID:         uuid.New(),
		Namespace:  namespace,
		Subject:    "service:api",
		Predicate:  "written_in",
		Object:     "lang:go",
		Confidence: domain.ConfidenceInterval{Lower: lower, Upper: lower + 0.1},
		Tier:       tier,
		CreatedAt:  createdAt,
	}
}

func TestClaimStoreAssertAndGet(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	stale := now.Add(48 * time.Hour)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			c.StaleAt = &stale
			c.Embedding = []float32{0.25, -0.5, 1.0}

			id, err := cs.Assert(ctx, c)
			if err != nil {
				t.Fatalf("Assert: %v", err)
			}
			if id != c.ID {
				t.Errorf("returned id = %s, want %s", id, c.ID)
			}

			got, err := cs.Get(ctx, c.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Namespace != c.Namespace || got.Subject != c.Subject ||
				got.Predicate != c.Predicate || got.Object != c.Object {
				t.Errorf("stored claim = %+v, want %+v", got, c)
			}
			if got.Confidence != c.Confidence {
				t.Errorf("confidence = %+v, want %+v", got.Confidence, c.Confidence)
			}
			if got.Tier != domain.TierTask {
				t.Errorf("tier = %q, want task", got.Tier)
			}
			if !got.CreatedAt.Equal(now) {
				t.Errorf("created_at = %v, want %v", got.CreatedAt, now)
			}
			if got.StaleAt == nil || !got.StaleAt.Equal(stale) {
				t.Errorf("stale_at = %v, want %v", got.StaleAt, stale)
			}

			if _, err := cs.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing claim err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestClaimStoreAssertConflict(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := storeClaim("project/alpha", domain.TierTask, 0.7, now)

			if _, err := cs.Assert(ctx, c); err != nil {
				t.Fatalf("Assert: %v", err)
			}
			if _, err := cs.Assert(ctx, c); !errors.Is(err, ErrConflict) {
				t.Errorf("second assert err = %v, want ErrConflict", err)
			}
		})
	}
}

func TestClaimStoreQueryFilters(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old := storeClaim("project/alpha", domain.TierTask, 0.5, now.Add(-2*time.Hour))
			mid := storeClaim("project/alpha/sub", domain.TierTask, 0.8, now.Add(-time.Hour))
			fresh := storeClaim("project/beta", domain.TierPermanent, 0.9, now)
			underscore := storeClaim("team_a/inner", domain.TierTask, 0.6, now)
			lookalike := storeClaim("teamxa/inner", domain.TierTask, 0.6, now)
			for _, c := range []*domain.Claim{old, mid, fresh, underscore, lookalike} {
				if _, err := cs.Assert(ctx, c); err != nil {
					t.Fatalf("Assert: %v", err)
				}
			}

			byTier, err := cs.Query(ctx, domain.ClaimQuery{Tier: domain.TierPermanent})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(byTier) != 1 || byTier[0].ID != fresh.ID {
				t.Errorf("tier filter returned %d claims", len(byTier))
			}

			// Parent namespace matches itself and slash-delimited descendants.
			byNS, err := cs.Query(ctx, domain.ClaimQuery{Namespace: "project/alpha"})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(byNS) != 2 {
				t.Fatalf("namespace filter returned %d claims, want 2", len(byNS))
			}
			if !byNS[0].CreatedAt.After(byNS[1].CreatedAt) {
				t.Error("results are not newest first")
			}

			// An underscore in the namespace is a literal, not a wildcard.
			byUnderscore, err := cs.Query(ctx, domain.ClaimQuery{Namespace: "team_a"})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(byUnderscore) != 1 || byUnderscore[0].ID != underscore.ID {
				t.Errorf("underscore namespace matched %d claims, want only team_a/inner", len(byUnderscore))
			}

			confident, err := cs.Query(ctx, domain.ClaimQuery{MinConfidence: 0.75})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(confident) != 2 {
				t.Errorf("min confidence filter returned %d claims, want 2", len(confident))
			}

			limited, err := cs.Query(ctx, domain.ClaimQuery{Limit: 3})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(limited) != 3 {
				t.Errorf("limit returned %d claims, want 3", len(limited))
			}
		})
	}
}

func TestClaimStoreDeleteClaimsCascades(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			doomed := storeClaim("project/alpha", domain.TierEphemeral, 0.5, now)
			survivor := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			for _, c := range []*domain.Claim{doomed, survivor} {
				if _, err := cs.Assert(ctx, c); err != nil {
					t.Fatalf("Assert: %v", err)
				}
			}

			entry := domain.NewProvenanceEntry("user:alice", domain.SourceTypeUser, now)
			if err := cs.AddProvenance(ctx, doomed.ID, entry); err != nil {
				t.Fatalf("AddProvenance: %v", err)
			}

			rel, err := domain.NewRelationship(doomed.ID, survivor.ID, domain.RelSupports, 0.9, now)
			if err != nil {
				t.Fatalf("NewRelationship: %v", err)
			}
			if err := cs.AddRelationship(ctx, rel); err != nil {
				t.Fatalf("AddRelationship: %v", err)
			}

			deleted, err := cs.DeleteClaims(ctx, []uuid.UUID{doomed.ID, uuid.New()})
			if err != nil {
				t.Fatalf("DeleteClaims: %v", err)
			}
			if deleted != 1 {
				t.Errorf("deleted = %d, want 1", deleted)
			}

			if _, err := cs.Get(ctx, doomed.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("deleted claim still readable: %v", err)
			}
			rels, err := cs.GetRelationships(ctx, survivor.ID)
			if err != nil {
				t.Fatalf("GetRelationships: %v", err)
			}
			if len(rels) != 0 {
				t.Errorf("edges to deleted claim survived: %d", len(rels))
			}
		})
	}
}

func TestClaimStoreUpdateTier(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			if _, err := cs.Assert(ctx, c); err != nil {
				t.Fatalf("Assert: %v", err)
			}

			if err := cs.UpdateTier(ctx, c.ID, domain.TierProject); err != nil {
				t.Fatalf("UpdateTier: %v", err)
			}
			got, err := cs.Get(ctx, c.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Tier != domain.TierProject {
				t.Errorf("tier = %q, want project", got.Tier)
			}

			if err := cs.UpdateTier(ctx, uuid.New(), domain.TierTask); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing claim err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestClaimStoreProvenanceRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			if _, err := cs.Assert(ctx, c); err != nil {
				t.Fatalf("Assert: %v", err)
			}

			first := domain.NewProvenanceEntry("user:alice", domain.SourceTypeUser, now.Add(-time.Minute))
			second := domain.NewProvenanceEntry("doc:readme", domain.SourceTypeExtraction, now).
				WithRationale("stated in the project readme")
			for _, e := range []domain.ProvenanceEntry{first, second} {
				if err := cs.AddProvenance(ctx, c.ID, e); err != nil {
					t.Fatalf("AddProvenance: %v", err)
				}
			}

			entries, err := cs.GetProvenance(ctx, c.ID)
			if err != nil {
				t.Fatalf("GetProvenance: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("entries = %d, want 2", len(entries))
			}
			if entries[0].Source != "user:alice" || !entries[0].Timestamp.Equal(first.Timestamp) {
				t.Errorf("first entry = %+v", entries[0])
			}
			if entries[1].Rationale != "stated in the project readme" {
				t.Errorf("rationale lost: %+v", entries[1])
			}

			if err := cs.AddProvenance(ctx, uuid.New(), first); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing claim err = %v, want ErrNotFound", err)
			}
			if _, err := cs.GetProvenance(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing claim err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestClaimStoreRelationships(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			b := storeClaim("project/alpha", domain.TierTask, 0.6, now)
			other := storeClaim("project/alpha", domain.TierTask, 0.5, now)
			for _, c := range []*domain.Claim{a, b, other} {
				if _, err := cs.Assert(ctx, c); err != nil {
					t.Fatalf("Assert: %v", err)
				}
			}

			link := func(from, to uuid.UUID, relType domain.RelationshipType) {
				rel, err := domain.NewRelationship(from, to, relType, 0.8, now)
				if err != nil {
					t.Fatalf("NewRelationship: %v", err)
				}
				if err := cs.AddRelationship(ctx, rel); err != nil {
					t.Fatalf("AddRelationship: %v", err)
				}
			}
			link(a.ID, b.ID, domain.RelSupports)
			link(other.ID, a.ID, domain.RelContradicts)

			rels, err := cs.GetRelationships(ctx, a.ID)
			if err != nil {
				t.Fatalf("GetRelationships: %v", err)
			}
			if len(rels) != 2 {
				t.Fatalf("edges touching a = %d, want 2 (both directions)", len(rels))
			}

			missing, err := domain.NewRelationship(uuid.New(), b.ID, domain.RelSupports, 0.5, now)
			if err != nil {
				t.Fatalf("NewRelationship: %v", err)
			}
			if err := cs.AddRelationship(ctx, missing); !errors.Is(err, ErrNotFound) {
				t.Errorf("dangling edge err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestClaimStoreSearchRanksBySimilarity(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	for name, cs := range claimBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			exact := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			exact.Embedding = []float32{1, 0, 0}
			near := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			near.Embedding = []float32{0.9, 0.1, 0}
			far := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			far.Embedding = []float32{0, 1, 0}
			blind := storeClaim("project/alpha", domain.TierTask, 0.7, now)
			elsewhere := storeClaim("project/beta", domain.TierTask, 0.7, now)
			elsewhere.Embedding = []float32{1, 0, 0}

			for _, c := range []*domain.Claim{exact, near, far, blind, elsewhere} {
				if _, err := cs.Assert(ctx, c); err != nil {
					t.Fatalf("Assert: %v", err)
				}
			}

			results, err := cs.Search(ctx, []float32{1, 0, 0}, domain.ClaimQuery{Namespace: "project/alpha"})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(results) != 3 {
				t.Fatalf("results = %d, want 3 embedded claims in namespace", len(results))
			}
			if results[0].Claim.ID != exact.ID {
				t.Errorf("top result = %s, want the exact match", results[0].Claim.ID)
			}
			if math.Abs(results[0].Score-1.0) > 1e-6 {
				t.Errorf("exact match score = %v, want 1.0", results[0].Score)
			}
			if results[1].Claim.ID != near.ID {
				t.Errorf("second result = %s, want the near match", results[1].Claim.ID)
			}
			if results[2].Score > 1e-6 {
				t.Errorf("orthogonal score = %v, want ~0", results[2].Score)
			}

			limited, err := cs.Search(ctx, []float32{1, 0, 0}, domain.ClaimQuery{Namespace: "project/alpha", Limit: 1})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(limited) != 1 {
				t.Errorf("limited results = %d, want 1", len(limited))
			}
		})
	}
}

func TestSQLiteReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	c := storeClaim("project/alpha", domain.TierTask, 0.7, time.Now().UTC().Truncate(time.Millisecond))
	if _, err := s.Assert(context.Background(), c); err != nil {
		t.Fatalf("Assert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	version, err := reopened.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}

	got, err := reopened.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Subject != c.Subject {
		t.Errorf("claim did not survive reopen: %+v", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if sim := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(sim-1) > 1e-9 {
		t.Errorf("identical vectors = %v, want 1", sim)
	}
	if sim := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(sim) > 1e-9 {
		t.Errorf("orthogonal vectors = %v, want 0", sim)
	}
	if sim := cosineSimilarity([]float32{1, 0}, []float32{1}); sim != 0 {
		t.Errorf("mismatched lengths = %v, want 0", sim)
	}
	if sim := cosineSimilarity([]float32{0, 0}, []float32{0, 0}); sim != 0 {
		t.Errorf("zero vectors = %v, want 0", sim)
	}
}

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 0, 3.75e-3}
	decoded := decodeEmbedding(encodeEmbedding(vec))
	if len(decoded) != len(vec) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("component %d = %v, want %v", i, decoded[i], vec[i])
		}
	}
}
