package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/models"
)

// RedisSessionStore keeps sessions as JSON values under otp:<user>:<office>.
// Keys live until the session's RetainUntil, past ExpiresAt, so the service
// can still tell an expired code from a missing one.
type RedisSessionStore struct {
	client *redis.Client
	logger *logrus.Logger
	nowF   func() time.Time
}

func NewRedisSessionStore(client *redis.Client, logger *logrus.Logger) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		logger: logger,
		nowF:   time.Now,
	}
}

func redisKey(key models.SessionKey) string {
	return fmt.Sprintf("otp:%s:%s", key.UserID, key.Office)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (s *RedisSessionStore) Put(ctx context.Context, sess *models.OTPSession) error {
	ttl := sess.RetainUntil().Sub(s.nowF())
	if ttl <= 0 {
		return s.Delete(ctx, sess.Key())
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal OTP session: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(sess.Key()), data, ttl).Err(); err != nil {
		s.logger.WithError(err).Error("Failed to store OTP session in Redis")
		return fmt.Errorf("failed to store OTP session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Get(ctx context.Context, key models.SessionKey) (*models.OTPSession, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to get OTP session from Redis")
		return nil, fmt.Errorf("failed to get OTP session: %w", err)
	}

	var sess models.OTPSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP session: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, key models.SessionKey) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete OTP session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) FindByUser(ctx context.Context, userID string) ([]*models.OTPSession, error) {
	pattern := "otp:" + globEscaper.Replace(userID) + ":*"

	out := make([]*models.OTPSession, 0, 1)
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get OTP session: %w", err)
		}
		var sess models.OTPSession
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OTP session: %w", err)
		}
		if sess.UserID == userID {
			out = append(out, &sess)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan OTP sessions: %w", err)
	}
	return out, nil
}

// Sweep is a no-op; Redis drops keys at RetainUntil itself.
func (s *RedisSessionStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
