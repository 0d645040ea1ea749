package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token,
// so a claim that expired and was taken over is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard claims keys with SETNX so a payment intent is only confirmed by
// one caller at a time, whether the call comes from the client or a webhook.
type RedisGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisGuard(client *redis.Client, prefix string) *RedisGuard {
	return &RedisGuard{client: client, prefix: prefix}
}

func (g *RedisGuard) key(k string) string {
	return fmt.Sprintf("%s:%s", g.prefix, k)
}

// Acquire returns the token that must be handed back to Release.
func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key(key), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (g *RedisGuard) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, g.client, []string{g.key(key)}, token).Err()
}

type localClaim struct {
	token   string
	expires time.Time
}

// LocalGuard is the single-process stand-in used when Redis is not configured.
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]localClaim
	now  func() time.Time
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]localClaim), now: time.Now}
}

func (g *LocalGuard) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if claim, ok := g.held[key]; ok && now.Before(claim.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	g.held[key] = localClaim{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (g *LocalGuard) Release(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if claim, ok := g.held[key]; ok && claim.token == token {
		delete(g.held, key)
	}
	return nil
}
