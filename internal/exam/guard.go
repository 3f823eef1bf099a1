package exam

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSubmitInProgress means another submit for the same attempt holds the guard.
var ErrSubmitInProgress = errors.New("submission already in progress")

// SubmitGuard serialises submissions per key across requests (and, for the
// redis guard, across processes). Acquire returns ErrSubmitInProgress when
// the key is held.
type SubmitGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

type memoryGuard struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewMemoryGuard() SubmitGuard { return &memoryGuard{held: map[string]time.Time{}} }

func (g *memoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	if exp, ok := g.held[key]; ok && now.Before(exp) {
		return nil, ErrSubmitInProgress
	}
	exp := now.Add(ttl)
	g.held[key] = exp
	return func() {
		g.mu.Lock()
		if g.held[key].Equal(exp) {
			delete(g.held, key)
		}
		g.mu.Unlock()
	}, nil
}

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type redisGuard struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisGuard locks with SET NX PX under prefix+key.
func NewRedisGuard(rdb redis.UniversalClient, prefix string) SubmitGuard {
	if prefix == "" {
		prefix = "exam:submit:"
	}
	return &redisGuard{rdb: rdb, prefix: prefix}
}

func (g *redisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	k := g.prefix + key
	ok, err := g.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubmitInProgress
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, g.rdb, []string{k}, token).Err()
	}, nil
}
