package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"arena/internal/common/cache"
	"arena/internal/contest"
	"arena/pkg/utils/logger"
)

// participantTTL bounds staleness of cached participant rows. Entries are
// invalidated on every upsert, so the TTL only guards crashed writers.
const participantTTL = 10 * time.Minute

// CachedStore wraps a Store with a read-through cache for participant
// restoration, the hot path on reconnect storms. Cache failures degrade
// to the underlying store and are only logged.
type CachedStore struct {
	Store
	cache cache.Cache
}

// NewCachedStore decorates the given store.
func NewCachedStore(inner Store, c cache.Cache) *CachedStore {
	return &CachedStore{Store: inner, cache: c}
}

func participantKey(contestID, participantID string) string {
	return fmt.Sprintf("arena:participant:%s:%s", contestID, participantID)
}

func (s *CachedStore) FetchParticipant(ctx context.Context, contestID, participantID string) (*contest.SavedParticipant, error) {
	key := participantKey(contestID, participantID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var saved contest.SavedParticipant
		if err := json.Unmarshal([]byte(raw), &saved); err == nil {
			return &saved, nil
		}
		// A corrupt entry is dropped and refetched.
		if err := s.cache.Del(ctx, key); err != nil {
			logger.Warn(ctx, "drop corrupt cache entry failed", zap.Error(err))
		}
	} else if err != cache.ErrCacheMiss {
		logger.Warn(ctx, "participant cache read failed", zap.Error(err))
	}

	saved, err := s.Store.FetchParticipant(ctx, contestID, participantID)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(saved); err == nil {
		if err := s.cache.Set(ctx, key, string(encoded), participantTTL); err != nil {
			logger.Warn(ctx, "participant cache write failed", zap.Error(err))
		}
	}
	return saved, nil
}

func (s *CachedStore) UpsertParticipant(ctx context.Context, contestID, participantID string, p *contest.SavedParticipant) error {
	if err := s.Store.UpsertParticipant(ctx, contestID, participantID, p); err != nil {
		return err
	}
	s.invalidate(ctx, contestID, participantID)
	return nil
}

func (s *CachedStore) UpsertSubmissions(ctx context.Context, contestID, participantID string, sources map[int64]string) error {
	if err := s.Store.UpsertSubmissions(ctx, contestID, participantID, sources); err != nil {
		return err
	}
	s.invalidate(ctx, contestID, participantID)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, contestID, participantID string) {
	if err := s.cache.Del(ctx, participantKey(contestID, participantID)); err != nil {
		logger.Warn(ctx, "participant cache invalidation failed",
			zap.String("contest_id", contestID),
			zap.String("participant_id", participantID),
			zap.Error(err))
	}
}

var _ Store = (*CachedStore)(nil)
