// Package lock provides ports.Locker implementations.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/relayledger/ports"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis is a SET NX based lock shared by every instance using the same server.
type Redis struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

// NewRedis creates a Redis locker. Keys are namespaced under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		script: redis.NewScript(releaseScript),
		prefix: prefix,
	}
}

// TryLock attempts to take key for ttl.
func (l *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees key if token still owns it.
func (l *Redis) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

var _ ports.Locker = (*Redis)(nil)

// Noop always grants the lock. Used for single-instance deployments.
type Noop struct{}

// TryLock always succeeds.
func (Noop) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return "noop", true, nil
}

// Release does nothing.
func (Noop) Release(ctx context.Context, key, token string) error {
	return nil
}

var _ ports.Locker = Noop{}
