// Package hydrate keeps an in-memory id -> profile snapshot for building responses.
// Profiles live in one arena slice addressed through an id index; reloads build a
// new arena off to the side and swap it in under the write lock. Puts and removes
// that land while a reload is reading the store are journaled and replayed onto the
// new arena, so a reload never resurrects a deleted profile or drops a fresh one.
package hydrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/matchdex/internal/domain"
	"github.com/kailas-cloud/matchdex/internal/metrics"
)

// Source loads profiles from the store.
type Source interface {
	All(ctx context.Context) ([]domain.Profile, error)
	GetMany(ctx context.Context, ids []string) (map[string]domain.Profile, error)
}

// Snapshot is safe for concurrent use.
type Snapshot struct {
	src      Source
	interval time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	arena  []domain.Profile
	index  map[string]int
	loaded time.Time

	// seq numbers every change; journal holds changes made while loading > 0.
	seq     uint64
	loading int
	journal []change
}

type change struct {
	seq     uint64
	profile domain.Profile
	removed bool
}

// New creates an empty snapshot. Call Load before serving and Run for periodic refresh.
func New(src Source, interval time.Duration, logger *zap.Logger) *Snapshot {
	return &Snapshot{
		src:      src,
		interval: interval,
		logger:   logger,
		index:    map[string]int{},
	}
}

// Load replaces the snapshot with the store's current profiles.
func (s *Snapshot) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading++
	since := s.seq
	s.mu.Unlock()

	profiles, err := s.src.All(ctx)
	if err != nil {
		s.mu.Lock()
		s.finishLoad()
		s.mu.Unlock()
		return fmt.Errorf("load profiles: %w", err)
	}

	arena := make([]domain.Profile, 0, len(profiles))
	index := make(map[string]int, len(profiles))
	for _, p := range profiles {
		arena = put(arena, index, p)
	}

	s.mu.Lock()
	for _, c := range s.journal {
		if c.seq <= since {
			continue
		}
		if c.removed {
			arena = remove(arena, index, c.profile.UserID)
		} else {
			arena = put(arena, index, c.profile)
		}
	}
	s.arena, s.index, s.loaded = arena, index, time.Now()
	s.finishLoad()
	s.mu.Unlock()

	metrics.HydrationProfiles.Set(float64(len(arena)))
	return nil
}

// finishLoad must be called with mu held.
func (s *Snapshot) finishLoad() {
	s.loading--
	if s.loading == 0 {
		s.journal = nil
	}
}

// record must be called with mu held.
func (s *Snapshot) record(p domain.Profile, removed bool) {
	s.seq++
	if s.loading > 0 {
		s.journal = append(s.journal, change{seq: s.seq, profile: p, removed: removed})
	}
}

// Run reloads the snapshot every interval until ctx is done.
func (s *Snapshot) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := s.Load(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("Hydration refresh failed, keeping previous snapshot", zap.Error(err))
				continue
			}
			s.logger.Debug("Hydration snapshot refreshed",
				zap.Int("profiles", s.Len()),
				zap.Duration("took", time.Since(start)),
			)
		}
	}
}

// Lookup returns the profile for id.
func (s *Snapshot) Lookup(id string) (domain.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Profile{}, false
	}
	return s.arena[i], true
}

// Resolve returns profiles for ids, reading misses from the store by key and
// caching them. Ids unknown to both are absent from the result.
// When the miss lookup fails the error wraps domain.ErrProviderUnavailable and
// the map still holds every profile the snapshot had.
func (s *Snapshot) Resolve(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	var missing []string

	s.mu.RLock()
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			out[id] = s.arena[i]
		} else {
			missing = append(missing, id)
		}
	}
	s.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}
	found, err := s.src.GetMany(ctx, missing)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return out, fmt.Errorf("resolve %d profiles: %w: %w", len(missing), domain.ErrProviderUnavailable, err)
	}
	for id, p := range found {
		out[id] = p
		s.Put(p)
	}
	return out, nil
}

// Put inserts or replaces one profile.
func (s *Snapshot) Put(p domain.Profile) {
	s.mu.Lock()
	s.arena = put(s.arena, s.index, p)
	s.record(p, false)
	n := len(s.arena)
	s.mu.Unlock()
	metrics.HydrationProfiles.Set(float64(n))
}

// Remove drops one profile.
func (s *Snapshot) Remove(id string) {
	s.mu.Lock()
	s.arena = remove(s.arena, s.index, id)
	s.record(domain.Profile{UserID: id}, true)
	n := len(s.arena)
	s.mu.Unlock()
	metrics.HydrationProfiles.Set(float64(n))
}

func put(arena []domain.Profile, index map[string]int, p domain.Profile) []domain.Profile {
	if i, ok := index[p.UserID]; ok {
		arena[i] = p
		return arena
	}
	index[p.UserID] = len(arena)
	return append(arena, p)
}

// remove moves the last arena entry into the freed slot.
func remove(arena []domain.Profile, index map[string]int, id string) []domain.Profile {
	i, ok := index[id]
	if !ok {
		return arena
	}
	last := len(arena) - 1
	if i != last {
		arena[i] = arena[last]
		index[arena[i].UserID] = i
	}
	arena[last] = domain.Profile{}
	delete(index, id)
	return arena[:last]
}

// Len returns the number of profiles held.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.arena)
}

// LoadedAt returns the time of the last full load.
func (s *Snapshot) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}
