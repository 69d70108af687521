// Package profile stores display profiles and the population set of recommendable users.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/matchdex/internal/db"
	"github.com/kailas-cloud/matchdex/internal/domain"
)

const scanBatch = 500

var keyPrefix = domain.KeyPrefix + "profile:"

// store is the consumer interface for profile operations (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
}

// Repo implements profile persistence on hashes.
type Repo struct {
	store store
}

// New creates a profile repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Upsert replaces the profile and adds the user to the population.
func (r *Repo) Upsert(ctx context.Context, p domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	key := keyPrefix + p.UserID
	// HSET alone would keep fields the new profile dropped.
	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("replace profile %s: %w", p.UserID, err)
	}
	if err := r.store.HSet(ctx, key, buildHashFields(&p)); err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	if err := r.store.SAdd(ctx, domain.PopulationKey, p.UserID); err != nil {
		return fmt.Errorf("add %s to population: %w", p.UserID, err)
	}
	return nil
}

// Get returns one profile.
func (r *Repo) Get(ctx context.Context, userID string) (domain.Profile, error) {
	m, err := r.store.HGetAll(ctx, keyPrefix+userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	if len(m) == 0 {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	return parseHashFields(userID, m), nil
}

// GetMany returns the profiles that exist, keyed by user id.
func (r *Repo) GetMany(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	for start := 0; start < len(ids); start += scanBatch {
		chunk := ids[start:min(start+scanBatch, len(ids))]
		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = keyPrefix + id
		}
		maps, err := r.store.HGetAllMulti(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("get profiles: %w", err)
		}
		for i, m := range maps {
			if len(m) > 0 {
				out[chunk[i]] = parseHashFields(chunk[i], m)
			}
		}
	}
	return out, nil
}

// All loads every stored profile. Used to build the hydration snapshot.
func (r *Repo) All(ctx context.Context) ([]domain.Profile, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	byID, err := r.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Profile, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Delete removes the profile and takes the user out of the population.
func (r *Repo) Delete(ctx context.Context, userID string) error {
	if err := r.store.SRem(ctx, domain.PopulationKey, userID); err != nil {
		return fmt.Errorf("remove %s from population: %w", userID, err)
	}
	if err := r.store.Del(ctx, keyPrefix+userID); err != nil {
		return fmt.Errorf("delete profile %s: %w", userID, err)
	}
	return nil
}

var _ store = (db.Store)(nil)
