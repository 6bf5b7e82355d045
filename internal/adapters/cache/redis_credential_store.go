package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/integrations/M62-access-control-bridge/internal/domain"
)

// RedisCredentialStore keeps the vendor credential in one Redis hash whose
// TTL tracks the remaining token lifetime.
type RedisCredentialStore struct {
	client *redis.Client
	key    string
}

// NewRedisCredentialStore builds a store keyed by "<prefix>:<appKey>" so
// distinct vendor applications never share a credential.
func NewRedisCredentialStore(client *redis.Client, keyPrefix, appKey string) *RedisCredentialStore {
	return &RedisCredentialStore{client: client, key: keyPrefix + ":" + appKey}
}

func (s *RedisCredentialStore) Save(ctx context.Context, cred domain.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	ttl := cred.Remaining(time.Now())
	if ttl <= 0 {
		// Expired on arrival is never persisted; the TTL would be nonsense.
		return domain.ErrInvalidInput
	}

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key,
			"access_token", cred.AccessToken,
			"expire_at", cred.ExpireAt,
			"subject_id", cred.SubjectID,
		)
		p.Expire(ctx, s.key, ttl)
		return nil
	})
	return err
}

func (s *RedisCredentialStore) Load(ctx context.Context) (domain.Credential, bool, error) {
	data, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return domain.Credential{}, false, err
	}
	if len(data) == 0 {
		return domain.Credential{}, false, nil
	}

	cred := domain.Credential{
		AccessToken: data["access_token"],
		SubjectID:   data["subject_id"],
	}
	expireAt, convErr := strconv.ParseInt(data["expire_at"], 10, 64)
	if convErr != nil || cred.AccessToken == "" || expireAt <= 0 {
		// A corrupt record is treated as absent so callers re-authenticate.
		_ = s.client.Del(ctx, s.key).Err()
		return domain.Credential{}, false, nil
	}
	cred.ExpireAt = expireAt
	return cred, true, nil
}

func (s *RedisCredentialStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
