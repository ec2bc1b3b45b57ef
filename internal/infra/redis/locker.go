package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/learnquest/learnquest/internal/domain"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a per-user lock shared through Redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	poll   time.Duration
	log    logrus.FieldLogger
}

// NewLocker creates a Redis locker. ttl bounds how long a crashed holder
// keeps the lock; poll is the retry interval while waiting. Failed
// releases are reported to log (nil means the standard logger).
func NewLocker(client *redis.Client, ttl, poll time.Duration, log logrus.FieldLogger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Locker{client: client, ttl: ttl, poll: poll, log: log}
}

// Lock acquires the user's lock, polling until ctx is done.
func (l *Locker) Lock(ctx context.Context, userID int64) (func(), error) {
	key := LockKey(userID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return l.unlocker(key, token), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("user %d: %w", userID, errors.Join(domain.ErrLockTimeout, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (l *Locker) unlocker(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled; release anyway.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
			log := l.log.WithField("key", key)
			switch {
			case err != nil:
				log.WithError(err).WithField("ttl", l.ttl).Error("redis lock release failed, lock held until ttl expiry")
			case released == 0:
				log.Warn("redis lock expired before release")
			}
		})
	}
}
