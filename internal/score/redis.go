package score

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizroom/internal/domain"
)

const scanCount = 100

type RedisConfig struct {
	Redis  redis.UniversalClient
	Prefix string
}

// RedisStore keeps one sorted set per room. It is volatile by contract: the
// server resets it at startup and clears a room as soon as the room empties.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisStore(c RedisConfig) *RedisStore {
	return &RedisStore{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

func (s *RedisStore) RecordAnswer(ctx context.Context, roomID, username string, correct bool) (int64, error) {
	key := s.getScoresKey(roomID)

	if correct {
		sc, err := s.redis.ZIncrBy(ctx, key, 1, username).Result()
		if err != nil {
			return 0, fmt.Errorf("record answer: %w", err)
		}
		return int64(sc), nil
	}

	var score *redis.FloatCmd
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddNX(ctx, key, redis.Z{Score: 0, Member: username})
		score = p.ZScore(ctx, key, username)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record answer: %w", err)
	}

	return int64(score.Val()), nil
}

// Leaderboard reads the whole set: ties at the cut need the username order,
// which the sorted set only provides in reverse.
func (s *RedisStore) Leaderboard(ctx context.Context, roomID string, n int) ([]domain.ScoreEntry, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.getScoresKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	entries := make([]domain.ScoreEntry, 0, len(res))
	for _, z := range res {
		entries = append(entries, domain.ScoreEntry{
			Username: z.Member.(string),
			Score:    int64(z.Score),
		})
	}

	return rank(entries, n), nil
}

func (s *RedisStore) Clear(ctx context.Context, roomID string) error {
	if err := s.redis.Del(ctx, s.getScoresKey(roomID)).Err(); err != nil {
		return fmt.Errorf("clear room %s: %w", roomID, err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", scanCount).Result()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}

		if len(keys) > 0 {
			if err := s.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("del: %w", err)
			}
		}

		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (s *RedisStore) getScoresKey(room string) string {
	return fmt.Sprintf("%s:%s:scores", s.prefix, room)
}
