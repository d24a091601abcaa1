// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package state persists the processing state between cycles: the set of
// event ids already resolved and the time of the last committed cycle.
package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/leadtracker/internal/models"
)

// DefaultKeyPrefix namespaces state keys in Redis.
const DefaultKeyPrefix = "leadtracker:state:"

// RedisStore keeps processed event ids in a sorted set scored by the
// event's receipt time, and the cycle cursor in a plain key.
type RedisStore struct {
	rdb       redis.Cmdable
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// RedisConfig holds the settings for a Redis-backed state store.
type RedisConfig struct {
	Client redis.Cmdable
	// KeyPrefix defaults to DefaultKeyPrefix.
	KeyPrefix string
	// Retention drops ids whose event is older than this on save.
	// Zero keeps every id forever.
	Retention time.Duration
}

// NewRedisStore creates a state store backed by Redis.
func NewRedisStore(cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{
		rdb:       cfg.Client,
		prefix:    prefix,
		retention: cfg.Retention,
		now:       time.Now,
	}
}

func (s *RedisStore) processedKey() string { return s.prefix + "processed" }
func (s *RedisStore) cursorKey() string    { return s.prefix + "last_cycle_at" }

// Load reads the processing state. A missing state loads as empty.
func (s *RedisStore) Load(ctx context.Context) (*models.ProcessingState, error) {
	members, err := s.rdb.ZRangeWithScores(ctx, s.processedKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load processed ids: %w", err)
	}

	st := models.NewProcessingState()
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		st.ProcessedEventIDs[id] = time.UnixMilli(int64(m.Score)).UTC()
	}

	raw, err := s.rdb.Get(ctx, s.cursorKey()).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("load cycle cursor: %w", err)
	default:
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse cycle cursor %q: %w", raw, err)
		}
		st.LastCycleAt = time.UnixMilli(ms).UTC()
	}
	return st, nil
}

// Save writes st in one MULTI/EXEC transaction so the id set and the
// cursor never diverge.
func (s *RedisStore) Save(ctx context.Context, st *models.ProcessingState) error {
	members := make([]redis.Z, 0, len(st.ProcessedEventIDs))
	for id, at := range st.ProcessedEventIDs {
		members = append(members, redis.Z{Score: float64(at.UnixMilli()), Member: id})
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(members) > 0 {
			pipe.ZAdd(ctx, s.processedKey(), members...)
		}
		pipe.Set(ctx, s.cursorKey(), strconv.FormatInt(st.LastCycleAt.UnixMilli(), 10), 0)
		if s.retention > 0 {
			cutoff := s.now().Add(-s.retention).UnixMilli()
			pipe.ZRemRangeByScore(ctx, s.processedKey(), "-inf", "("+strconv.FormatInt(cutoff, 10))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save processing state: %w", err)
	}
	return nil
}

// Ping checks connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
