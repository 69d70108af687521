// Package profile ingests profiles: it stores the payload, embeds it and indexes the vectors.
package profile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/logger"
)

// UpsertResult reports what was written.
type UpsertResult struct {
	Profile domain.Profile
	// Indexed is false when the dense embedding failed; the profile is then
	// reachable only through fallback sampling until it is upserted again.
	Indexed        bool
	SparseFallback bool
}

// Service handles profile ingestion.
type Service struct {
	repo       Repository
	index      VectorIndex
	embeddings Embeddings
	snapshot   Snapshot
	logger     *zap.Logger
}

// New creates a Service. snapshot can be nil.
func New(repo Repository, index VectorIndex, embeddings Embeddings, snapshot Snapshot, logger *zap.Logger) *Service {
	return &Service{repo: repo, index: index, embeddings: embeddings, snapshot: snapshot, logger: logger}
}

// Upsert replaces the profile and its vectors wholesale.
func (s *Service) Upsert(ctx context.Context, p domain.Profile) (UpsertResult, error) {
	if err := p.Validate(); err != nil {
		return UpsertResult{}, err //nolint:wrapcheck // domain validation error
	}
	log := logger.FromContextOr(ctx, s.logger).With(zap.String("user_id", p.UserID))

	if err := s.repo.Upsert(ctx, p); err != nil {
		return UpsertResult{}, fmt.Errorf("store profile: %w", err)
	}
	if s.snapshot != nil {
		s.snapshot.Put(p)
	}

	text := p.EmbeddingText()
	dense, err := s.embeddings.Dense(ctx, text)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("embed profile: %w", err)
	}
	sparse, err := s.embeddings.Sparse(ctx, text)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("embed profile: %w", err)
	}

	res := UpsertResult{Profile: p, SparseFallback: sparse.Fallback}
	if dense.Fallback {
		// A zero vector would match nothing; drop the stale one instead.
		log.Warn("Profile stored without vector", zap.Error(dense.Cause))
		if err := s.index.Delete(ctx, p.UserID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn("Failed to drop stale vector", zap.Error(err))
		}
		return res, nil
	}

	if err := s.index.Upsert(ctx, domain.ProfileVector{
		UserID:  p.UserID,
		Dense:   dense.Vector,
		Sparse:  sparse.Vector,
		Profile: p,
	}); err != nil {
		return UpsertResult{}, fmt.Errorf("index profile: %w", err)
	}
	res.Indexed = true
	return res, nil
}

// Get returns a stored profile.
func (s *Service) Get(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Delete removes the profile, its vectors and its population entry.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.index.Delete(ctx, userID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete vector: %w", err)
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if s.snapshot != nil {
		s.snapshot.Remove(userID)
	}
	return nil
}
