// Package redis provides the distributed leader lock used by the reclaim
// sweep so that only one instance runs a cycle at a time.
package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if it still holds our token, so
// a lock that expired and was re-acquired elsewhere is never clobbered.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// TryLock attempts a non-blocking acquire. On success it returns a release
// function; when the lock is held elsewhere it returns ok=false.
func (l *Lock) TryLock(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.New().String()
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
	}, true, nil
}
