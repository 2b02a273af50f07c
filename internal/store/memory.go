package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/credence-io/credence/internal/domain"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps claims in process memory. It backs tests, the bundled
// examples and single-process deployments that do not need persistence.
type MemoryStore struct {
	// mu serializes read-modify-write sequences that span the cache and the
	// side tables; the cache alone is already safe for concurrent use.
	mu            sync.RWMutex
	claims        *gocache.Cache
	provenance    map[uuid.UUID][]domain.ProvenanceEntry
	relationships []domain.Relationship
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		claims:     gocache.New(gocache.NoExpiration, 0),
		provenance: make(map[uuid.UUID][]domain.ProvenanceEntry),
	}
}

func (s *MemoryStore) Assert(ctx context.Context, c *domain.Claim) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.ID.String()
	if _, found := s.claims.Get(key); found {
		return uuid.Nil, ErrConflict
	}
	s.claims.Set(key, cloneClaim(c), gocache.NoExpiration)
	return c.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, found := s.claims.Get(id.String())
	if !found {
		return nil, ErrNotFound
	}
	c := val.(domain.Claim)
	return &c, nil
}

func (s *MemoryStore) Query(ctx context.Context, q domain.ClaimQuery) ([]domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.Claim
	for _, item := range s.claims.Items() {
		c := item.Object.(domain.Claim)
		if !matchesQuery(&c, q) {
			continue
		}
		results = append(results, c)
	}

	// Newest first, with the id as a stable tie-break.
	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID.String() < results[j].ID.String()
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *MemoryStore) DeleteClaims(ctx context.Context, ids []uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	removed := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		key := id.String()
		if _, found := s.claims.Get(key); !found {
			continue
		}
		s.claims.Delete(key)
		delete(s.provenance, id)
		removed[id] = struct{}{}
		deleted++
	}

	if deleted > 0 {
		kept := s.relationships[:0]
		for _, rel := range s.relationships {
			if _, gone := removed[rel.FromClaim]; gone {
				continue
			}
			if _, gone := removed[rel.ToClaim]; gone {
				continue
			}
			kept = append(kept, rel)
		}
		s.relationships = kept
	}

	return deleted, nil
}

func (s *MemoryStore) UpdateTier(ctx context.Context, id uuid.UUID, tier domain.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.String()
	val, found := s.claims.Get(key)
	if !found {
		return ErrNotFound
	}
	c := val.(domain.Claim)
	c.Tier = tier
	s.claims.Set(key, c, gocache.NoExpiration)
	return nil
}

func (s *MemoryStore) AddProvenance(ctx context.Context, claimID uuid.UUID, entry domain.ProvenanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.claims.Get(claimID.String()); !found {
		return ErrNotFound
	}
	s.provenance[claimID] = append(s.provenance[claimID], entry)
	return nil
}

func (s *MemoryStore) GetProvenance(ctx context.Context, claimID uuid.UUID) ([]domain.ProvenanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, found := s.claims.Get(claimID.String()); !found {
		return nil, ErrNotFound
	}
	entries := s.provenance[claimID]
	out := make([]domain.ProvenanceEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemoryStore) AddRelationship(ctx context.Context, rel domain.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.claims.Get(rel.FromClaim.String()); !found {
		return ErrNotFound
	}
	if _, found := s.claims.Get(rel.ToClaim.String()); !found {
		return ErrNotFound
	}
	s.relationships = append(s.relationships, rel)
	return nil
}

func (s *MemoryStore) GetRelationships(ctx context.Context, claimID uuid.UUID) ([]domain.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.Relationship
	for _, rel := range s.relationships {
		if rel.FromClaim == claimID || rel.ToClaim == claimID {
			results = append(results, rel)
		}
	}
	return results, nil
}

func (s *MemoryStore) Search(ctx context.Context, embedding []float32, q domain.ClaimQuery) ([]domain.ClaimWithScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []domain.ClaimWithScore
	for _, item := range s.claims.Items() {
		c := item.Object.(domain.Claim)
		if len(c.Embedding) == 0 || !matchesQuery(&c, q) {
			continue
		}
		results = append(results, domain.ClaimWithScore{
			Claim: c,
			Score: cosineSimilarity(embedding, c.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Claim.ID.String() < results[j].Claim.ID.String()
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func matchesQuery(c *domain.Claim, q domain.ClaimQuery) bool {
	if q.Tier != "" && c.Tier != q.Tier {
		return false
	}
	if q.Namespace != "" && c.Namespace != q.Namespace && !domain.IsParentNamespace(q.Namespace, c.Namespace) {
		return false
	}
	if c.Confidence.Lower < q.MinConfidence {
		return false
	}
	return true
}

func cloneClaim(c *domain.Claim) domain.Claim {
	clone := *c
	if len(c.Embedding) > 0 {
		clone.Embedding = make([]float32, len(c.Embedding))
		copy(clone.Embedding, c.Embedding)
	}
	return clone
}

// cosineSimilarity compares two vectors. Mismatched or empty vectors score
// zero rather than erroring, so claims embedded under a different model fall
// to the bottom instead of poisoning a search.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}
