package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/account-ledger/internal/logging"
)

const redisKeyPrefix = "ledger:lock:"

type RedisOptions struct {
	// Expiry is the lock TTL. It must outlive the longest critical section,
	// otherwise a second holder can enter once the key expires.
	Expiry time.Duration
	// RetryDelay is the wait between acquisition attempts while the key is
	// held elsewhere.
	RetryDelay time.Duration
}

// Redis is a Locker shared by every process pointed at the same Redis, backed
// by redsync. Acquisition is retried until it succeeds or ctx is done.
type Redis struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

func NewRedis(client goredislib.UniversalClient, opts RedisOptions) (*Redis, error) {
	if client == nil {
		return nil, errors.New("NewRedis: nil client")
	}
	if opts.Expiry <= 0 {
		return nil, errors.New("NewRedis: expiry must be positive")
	}
	if opts.RetryDelay <= 0 {
		return nil, errors.New("NewRedis: retry delay must be positive")
	}
	return &Redis{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}, nil
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	log := logging.FromContext(ctx)

	mutex := r.rs.NewMutex(
		redisKeyPrefix+key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(1),
	)

	if err := r.acquire(ctx, mutex); err != nil {
		return fmt.Errorf("WithLock: %s: %w", key, err)
	}

	defer func() {
		// The caller's ctx may already be cancelled; release must still go out.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			log.Error("failed to release lock", "lock_key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}

func (r *Redis) acquire(ctx context.Context, mutex *redsync.Mutex) error {
	for {
		err := mutex.LockContext(ctx)
		if err == nil {
			return nil
		}
		if !isContention(err) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.RetryDelay):
		}
	}
}

// isContention reports whether err means the key is held elsewhere, as
// opposed to Redis being unreachable.
func isContention(err error) bool {
	var taken *redsync.ErrTaken
	return errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed)
}
