package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/domain"
)

const userBindingTTL = 7 * 24 * time.Hour

// Users mirrors each user's socket-binding list so the registry can
// repopulate a lost entry without hitting the store. Guests live under a
// separate key prefix so the expiry sweep can tell them apart.
type Users struct {
	client      *redis.Client
	readTimeout time.Duration
}

func NewUsers(client *redis.Client, readTimeout time.Duration) *Users {
	return &Users{client: client, readTimeout: readTimeout}
}

func userKey(username string, guest bool) string {
	if guest {
		return "guest:" + username
	}
	return "user:" + username
}

// Bindings looks the user up under both prefixes, bounded by the read
// timeout. Misses and timeouts both come back as ErrCacheMiss.
func (c *Users) Bindings(ctx context.Context, username string) ([]domain.SocketBinding, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	for _, key := range []string{userKey(username, false), userKey(username, true)} {
		raw, err := c.client.HGet(readCtx, key, "bindings").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("module", "cache").Str("user", username).Msg("binding cache read failed")
			return nil, domain.ErrCacheMiss
		}
		var bindings []domain.SocketBinding
		if err := json.Unmarshal([]byte(raw), &bindings); err != nil {
			return nil, domain.ErrCacheMiss
		}
		return bindings, nil
	}
	return nil, domain.ErrCacheMiss
}

func (c *Users) PutBindings(ctx context.Context, username string, guest bool, bindings []domain.SocketBinding) {
	key := userKey(username, guest)
	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, "bindings", marshal(bindings))
	pipe.Expire(ctx, key, userBindingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("module", "cache").Str("user", username).Msg("binding cache write failed")
	}
}

func (c *Users) Delete(ctx context.Context, username string, guest bool) {
	if err := c.client.Del(ctx, userKey(username, guest)).Err(); err != nil {
		log.Warn().Err(err).Str("module", "cache").Str("user", username).Msg("binding cache delete failed")
	}
}
