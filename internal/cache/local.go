package cache

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Coordinator for single-instance deployments and tests.
type Local struct {
	mu    sync.Mutex
	locks map[string]time.Time
	marks map[string]time.Time
	now   func() time.Time
}

func NewLocal() *Local {
	return &Local{
		locks: map[string]time.Time{},
		marks: map[string]time.Time{},
		now:   time.Now,
	}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, held := l.locks[key]; held && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.locks[key] = exp
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.locks[key].Equal(exp) {
			delete(l.locks, key)
		}
	}, true, nil
}

func (l *Local) Allow(_ context.Context, key string, every time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if next, ok := l.marks[key]; ok && now.Before(next) {
		return false, nil
	}
	l.marks[key] = now.Add(every)
	return true, nil
}
