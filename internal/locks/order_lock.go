// Package locks serializes settlement triggers for one order across server
// instances with a Redis mutex.
package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
)

const keyPrefix = "lock:settlement:order:"

type Options struct {
	// Expiry must outlast a settlement transaction including its lock_timeout.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Expiry:     30 * time.Second,
		Tries:      20,
		RetryDelay: 250 * time.Millisecond,
	}
}

type RedisOrderLocker struct {
	rs   *redsync.Redsync
	opts Options
	log  *zap.Logger
}

func NewRedisOrderLocker(client redis.UniversalClient, opts Options, log *zap.Logger) *RedisOrderLocker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisOrderLocker{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
		log:  log,
	}
}

// LockOrder blocks until the order's mutex is held or the tries run out.
// Contention that outlasts the tries is reported as ledger.ErrLockTimeout.
func (l *RedisOrderLocker) LockOrder(ctx context.Context, orderID string) (func(context.Context) error, error) {
	key := keyPrefix + orderID
	m := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
	if err := m.LockContext(ctx); err != nil {
		if isContention(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrLockTimeout, key)
		}
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	l.log.Debug("settlement lock acquired", zap.String("key", key))

	return func(ctx context.Context) error {
		ok, err := m.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if !ok {
			return fmt.Errorf("release %s: lock expired before release", key)
		}
		return nil
	}, nil
}

func isContention(err error) bool {
	msg := err.Error()
	return errors.Is(err, redsync.ErrFailed) ||
		strings.Contains(msg, "lock already taken") ||
		strings.Contains(msg, "failed to acquire lock")
}
