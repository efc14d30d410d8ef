package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still holds the caller's token so
// an expired lease never frees a lock taken over by another replica.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// entityLocker hands out short leases on referral and payout ids.
type entityLocker struct {
	client *redis.Client
	ttl    time.Duration
}

type lease struct {
	key   string
	token string
}

func entityLockKey(kind, id string) string {
	return fmt.Sprintf(keyEntityLock, strings.ToLower(strings.TrimSpace(kind)), strings.TrimSpace(id))
}

// acquire returns a nil lease when the entity is already locked.
func (l *entityLocker) acquire(ctx context.Context, kind, id string) (*lease, error) {
	if strings.TrimSpace(kind) == "" || strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("entity lock needs kind and id, got %q/%q", kind, id)
	}

	held := &lease{key: entityLockKey(kind, id), token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, held.key, held.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", held.key, err)
	}
	if !ok {
		return nil, nil
	}
	return held, nil
}

func (l *entityLocker) release(ctx context.Context, held *lease) error {
	if held == nil {
		return nil
	}
	return unlockScript.Run(ctx, l.client, []string{held.key}, held.token).Err()
}
