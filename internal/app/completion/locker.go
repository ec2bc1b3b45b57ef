package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/learnquest/learnquest/internal/domain"
)

// Locker serializes work per user. Lock blocks until the user's lock is
// held or ctx is done; in the latter case it returns an error wrapping
// domain.ErrLockTimeout. The returned unlock func is safe to call twice.
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

// LocalLocker is an in-process Locker. Each active user gets a one-slot
// channel; entries are reference counted and removed when idle, so the
// map only holds users with work in flight.
type LocalLocker struct {
	mu    sync.Mutex
	users map[int64]*userLock
}

type userLock struct {
	slot chan struct{}
	refs int
}

// NewLocalLocker creates an in-process per-user locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{users: make(map[int64]*userLock)}
}

// Lock acquires userID's lock.
func (l *LocalLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	ul, ok := l.users[userID]
	if !ok {
		ul = &userLock{slot: make(chan struct{}, 1)}
		l.users[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	select {
	case ul.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-ul.slot
				l.deref(userID, ul)
			})
		}, nil
	case <-ctx.Done():
		l.deref(userID, ul)
		return nil, fmt.Errorf("user %d: %w", userID, errors.Join(domain.ErrLockTimeout, ctx.Err()))
	}
}

// Active returns how many users currently hold or wait for a lock.
func (l *LocalLocker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

func (l *LocalLocker) deref(userID int64, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.users, userID)
	}
}

// ChainLocker acquires several lockers in order, e.g. the in-process
// locker first and a cross-process one second. Unlock releases in reverse.
type ChainLocker []Locker

// Lock acquires every locker in the chain or none of them.
func (c ChainLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, lk := range c {
		unlock, err := lk.Lock(ctx, userID)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
