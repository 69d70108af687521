// Package interaction is the append-only swipe log plus uniform sampling of unseen users.
package interaction

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

var swipesPrefix = domain.KeyPrefix + "swipes:"

// store is the consumer interface for the interaction log (ISP).
type store interface {
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SCard(ctx context.Context, key string) (int, error)
	SRandMember(ctx context.Context, key string, count int) ([]string, error)
}

// Repo keeps one hash per actor: field = target id, value = "<direction>|<unix millis>".
// HSETNX makes the (actor, target) pair write-once.
type Repo struct {
	store store
	now   func() time.Time
	rand  func(n int) int
}

// New creates an interaction repository.
func New(s store) *Repo {
	return &Repo{
		store: s,
		now:   time.Now,
		rand:  rand.IntN,
	}
}

// Record appends a decision. A second decision on the same pair returns
// domain.ErrDuplicateDecision and leaves the first in place.
func (r *Repo) Record(ctx context.Context, in domain.Interaction) (domain.Interaction, error) {
	if in.ActorID == "" || in.TargetID == "" {
		return domain.Interaction{}, fmt.Errorf("%w: actor and target are required", domain.ErrInvalidInput)
	}
	if in.ActorID == in.TargetID {
		return domain.Interaction{}, fmt.Errorf("%w: cannot swipe on yourself", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseDirection(string(in.Direction)); err != nil {
		return domain.Interaction{}, err
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = r.now()
	}
	in.Timestamp = in.Timestamp.UTC()

	created, err := r.store.HSetNX(ctx, swipesPrefix+in.ActorID, in.TargetID, encodeDecision(in))
	if err != nil {
		return domain.Interaction{}, fmt.Errorf("record swipe %s->%s: %w", in.ActorID, in.TargetID, err)
	}
	if !created {
		return domain.Interaction{}, fmt.Errorf("swipe %s->%s: %w", in.ActorID, in.TargetID, domain.ErrDuplicateDecision)
	}
	return in, nil
}

// SeenTargets returns every target the actor has decided on.
func (r *Repo) SeenTargets(ctx context.Context, actorID string) (map[string]struct{}, error) {
	ids, err := r.store.HKeys(ctx, swipesPrefix+actorID)
	if err != nil {
		return nil, fmt.Errorf("seen targets %s: %w", actorID, err)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return seen, nil
}

// History returns the actor's decisions in no particular order. Malformed entries are skipped.
func (r *Repo) History(ctx context.Context, actorID string) ([]domain.Interaction, error) {
	m, err := r.store.HGetAll(ctx, swipesPrefix+actorID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", actorID, err)
	}
	out := make([]domain.Interaction, 0, len(m))
	for target, raw := range m {
		dir, ts, ok := decodeDecision(raw)
		if !ok {
			continue
		}
		out = append(out, domain.Interaction{ActorID: actorID, TargetID: target, Direction: dir, Timestamp: ts})
	}
	return out, nil
}

// RandomUnseen draws up to limit distinct population members that are neither the actor
// nor in exclude.
//
// SRANDMEMBER with a positive count returns a uniformly random subset of size
// k = min(|population|, limit+|exclude|+1). At most |exclude|+1 of those are filtered out,
// so at least limit remain whenever the population allows, and every remaining member is
// equally likely to be drawn.
func (r *Repo) RandomUnseen(
	ctx context.Context, actorID string, exclude map[string]struct{}, limit int,
) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	size, err := r.store.SCard(ctx, domain.PopulationKey)
	if err != nil {
		return nil, fmt.Errorf("population size: %w", err)
	}
	if size == 0 {
		return nil, nil
	}

	k := min(size, limit+len(exclude)+1)
	drawn, err := r.store.SRandMember(ctx, domain.PopulationKey, k)
	if err != nil {
		return nil, fmt.Errorf("sample population: %w", err)
	}

	out := make([]string, 0, min(limit, len(drawn)))
	for _, id := range drawn {
		if id == actorID {
			continue
		}
		if _, skip := exclude[id]; skip {
			continue
		}
		out = append(out, id)
	}

	// SRANDMEMBER order is not guaranteed to be random across servers.
	for i := len(out) - 1; i > 0; i-- {
		j := r.rand(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func encodeDecision(in domain.Interaction) string {
	return string(in.Direction) + "|" + strconv.FormatInt(in.Timestamp.UnixMilli(), 10)
}

func decodeDecision(raw string) (domain.Direction, time.Time, bool) {
	dirStr, msStr, ok := strings.Cut(raw, "|")
	if !ok {
		return "", time.Time{}, false
	}
	dir, err := domain.ParseDirection(dirStr)
	if err != nil {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(msStr, 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return dir, time.UnixMilli(ms).UTC(), true
}
