package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/matchdex/internal/db"
)

// Get returns the raw value at key, or db.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.do(ctx, s.b().Get().Key(key).Build()).AsBytes()
	switch {
	case rueidis.IsRedisNil(err):
		return nil, db.ErrKeyNotFound
	case err != nil:
		return nil, &db.Error{Op: db.OpGet, Err: err}
	}
	return data, nil
}

// SetWithTTL stores value at key with an expiration. Cached embeddings are the only writer.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.b().Set().Key(key).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpSet, Err: err}
	}
	return nil
}

// IncrWithTTL adds val to the counter at key and returns the new total. The TTL is set
// with EXPIRE NX, so a counter's window is anchored at its first write. Both commands go
// out in one DoMulti round trip.
func (s *Store) IncrWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error) {
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		return 0, fmt.Errorf("counter %s: ttl must be at least one second, got %v", key, ttl)
	}
	results := s.client.DoMulti(ctx,
		s.b().Incrby().Key(key).Increment(val).Build(),
		s.b().Expire().Key(key).Seconds(secs).Nx().Build(),
	)
	total, err := results[0].AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpIncrBy, Err: err}
	}
	if err := results[1].Error(); err != nil {
		return total, &db.Error{Op: db.OpExpire, Err: err}
	}
	return total, nil
}
