// Package redis persists interview records in Redis: the utterances of a
// session as a JSON list and its summary as a JSON string, both expiring
// after a configurable TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/koscakluka/ema-interview/core/ledger"
	"github.com/koscakluka/ema-interview/core/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL    = 7 * 24 * time.Hour
	defaultPrefix = "interview"
)

type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

type Option func(*Store)

// WithTTL sets how long records are kept. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	store := &Store{
		client: client,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) AppendUtterance(ctx context.Context, sessionID string, utterance ledger.Utterance) error {
	if sessionID == "" {
		return persistence.ErrInvalidID
	}

	data, err := json.Marshal(utterance)
	if err != nil {
		return fmt.Errorf("failed to marshal utterance: %w", err)
	}

	key := s.utterancesKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (s *Store) FinalizeSession(ctx context.Context, sessionID string, summary persistence.Summary) error {
	if sessionID == "" {
		return persistence.ErrInvalidID
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.summaryKey(sessionID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(summary.EndedAt.Unix()),
		Member: sessionID,
	})
	if s.ttl > 0 {
		pipe.Expire(ctx, s.utterancesKey(sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (s *Store) LoadSummary(ctx context.Context, sessionID string) (persistence.Summary, error) {
	if sessionID == "" {
		return persistence.Summary{}, persistence.ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.summaryKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return persistence.Summary{}, persistence.ErrNotFound
		}
		return persistence.Summary{}, fmt.Errorf("redis get failed: %w", err)
	}

	var summary persistence.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return persistence.Summary{}, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return summary, nil
}

func (s *Store) Utterances(ctx context.Context, sessionID string) ([]ledger.Utterance, error) {
	if sessionID == "" {
		return nil, persistence.ErrInvalidID
	}

	items, err := s.client.LRange(ctx, s.utterancesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	if len(items) == 0 {
		return nil, persistence.ErrNotFound
	}

	utterances := make([]ledger.Utterance, 0, len(items))
	for _, item := range items {
		var utterance ledger.Utterance
		if err := json.Unmarshal([]byte(item), &utterance); err != nil {
			return nil, fmt.Errorf("failed to unmarshal utterance: %w", err)
		}
		utterances = append(utterances, utterance)
	}
	return utterances, nil
}

// FinishedSessions lists finalized session ids ended within [from, to],
// oldest first. Ids whose summary already expired are skipped.
func (s *Store) FinishedSessions(ctx context.Context, from, to time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.Unix()),
		Max: fmt.Sprintf("%d", to.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.summaryKey(id)
	}
	exists := make([]*redis.IntCmd, len(keys))
	pipe := s.client.Pipeline()
	for i, key := range keys {
		exists[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis pipeline failed: %w", err)
	}

	live := ids[:0]
	var expired []any
	for i, id := range ids {
		if exists[i].Val() > 0 {
			live = append(live, id)
		} else {
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			logger.Warn("failed to prune expired sessions from index", "error", err)
		}
	}
	return live, nil
}

func (s *Store) utterancesKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:utterances", s.prefix, sessionID)
}

func (s *Store) summaryKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:summary", s.prefix, sessionID)
}

func (s *Store) indexKey() string {
	return fmt.Sprintf("%s:sessions:finished", s.prefix)
}
