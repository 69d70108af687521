// Package swipe records feed decisions into the interaction log.
package swipe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/logger"
)

// Log is the write side of the interaction log.
type Log interface {
	Record(ctx context.Context, in domain.Interaction) (domain.Interaction, error)
	History(ctx context.Context, actorID string) ([]domain.Interaction, error)
}

// ProfileReader checks that a target exists.
type ProfileReader interface {
	Get(ctx context.Context, userID string) (domain.Profile, error)
}

// Result of one swipe. Duplicate means an earlier decision was kept.
type Result struct {
	Interaction domain.Interaction
	Duplicate   bool
}

// Service records swipes.
type Service struct {
	log      Log
	profiles ProfileReader
	logger   *zap.Logger
}

// New creates a Service. profiles can be nil to skip the target check.
func New(log Log, profiles ProfileReader, logger *zap.Logger) *Service {
	return &Service{log: log, profiles: profiles, logger: logger}
}

// Record stores the decision. A repeated decision is a no-op reported through Result.Duplicate.
func (s *Service) Record(ctx context.Context, actorID, targetID, direction string) (Result, error) {
	dir, err := domain.ParseDirection(direction)
	if err != nil {
		return Result{}, err //nolint:wrapcheck // domain validation error
	}
	if s.profiles != nil && targetID != "" {
		if _, err := s.profiles.Get(ctx, targetID); err != nil {
			return Result{}, fmt.Errorf("swipe target: %w", err)
		}
	}

	in := domain.Interaction{ActorID: actorID, TargetID: targetID, Direction: dir}
	out, err := s.log.Record(ctx, in)
	if errors.Is(err, domain.ErrDuplicateDecision) {
		logger.FromContextOr(ctx, s.logger).Info("Duplicate swipe ignored",
			zap.String("actor_id", actorID),
			zap.String("target_id", targetID),
		)
		return Result{Interaction: in, Duplicate: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("record swipe: %w", err)
	}
	return Result{Interaction: out}, nil
}

// History returns the actor's decisions, newest first.
func (s *Service) History(ctx context.Context, actorID string) ([]domain.Interaction, error) {
	items, err := s.log.History(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("swipe history: %w", err)
	}
	slices.SortFunc(items, func(a, b domain.Interaction) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.TargetID, b.TargetID)
	})
	return items, nil
}
