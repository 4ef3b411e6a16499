// Package oplock serializes bulk operations across service instances. Repair
// batches, purges, group merges, and wipes must not overlap: they rely on
// read-then-act sequences whose interleaving would multiply load on the
// remote stores and scramble audit ordering.
package oplock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	dErrors "steward/pkg/domain-errors"
)

const lockKey = "steward:oplock"

// releaseScript deletes the lock only if this holder still owns it, so an
// expired-and-reacquired lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a Redis-backed single-flight guard. A nil *Lock is a no-op: when
// Redis is not configured, bulk operations run unguarded, which is acceptable
// for a single-instance deployment.
type Lock struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Lock {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lock{rdb: rdb, ttl: ttl}
}

// Acquire takes the lock for the named operation. It returns a release
// function, or a locked error naming the operation currently holding it.
func (l *Lock) Acquire(ctx context.Context, op string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}

	token := op + ":" + uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "acquire operation lock")
	}
	if !ok {
		holder, _ := l.rdb.Get(ctx, lockKey).Result()
		return nil, dErrors.Newf(dErrors.CodeLocked,
			"another bulk operation is in progress (%s)", holderOp(holder))
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.rdb, []string{lockKey}, token).Err()
	}
	return release, nil
}

func holderOp(token string) string {
	for i := 0; i < len(token); i++ {
		if token[i] == ':' {
			return token[:i]
		}
	}
	if token == "" {
		return "unknown"
	}
	return token
}
