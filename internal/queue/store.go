package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store loads and saves one subject queue at a time.
//
// Save must be all-or-nothing and must fail with ErrConflict when q.Version no
// longer matches the stored version. On success it advances q.Version.
type Store interface {
	Load(ctx context.Context, subject string) (*Queue, error)
	Save(ctx context.Context, q *Queue) error
}

// Locker serializes read-modify-write cycles per subject.
type Locker interface {
	Lock(ctx context.Context, subject string) (unlock func(), err error)
}

// Publisher is the only capability the engine needs from the live update bus.
type Publisher interface {
	Publish(subject, kind string)
}

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock supplies timestamps and one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// LocalLocker is an in-process keyed mutex. Entries are dropped once nobody holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until the subject is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, subject string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[subject]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[subject] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(subject, k)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-k.ch
			l.release(subject, k)
		})
	}, nil
}

func (l *LocalLocker) release(subject string, k *keyLock) {
	l.mu.Lock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, subject)
	}
	l.mu.Unlock()
}

// MemoryStore keeps queues in process memory. It backs tests and single-node development runs.
type MemoryStore struct {
	mu     sync.RWMutex
	queues map[string]*Queue
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{queues: make(map[string]*Queue)}
}

// Create registers an empty, inactive queue for subject if none exists.
func (s *MemoryStore) Create(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queues[subject]; !ok {
		s.queues[subject] = &Queue{Subject: subject, Version: 1}
	}
}

func (s *MemoryStore) Load(_ context.Context, subject string) (*Queue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.queues[subject]
	if !ok {
		return nil, fmt.Errorf("%w: subject %s", ErrNotFound, subject)
	}
	return q.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, q *Queue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.queues[q.Subject]
	if !ok {
		return fmt.Errorf("%w: subject %s", ErrNotFound, q.Subject)
	}
	if cur.Version != q.Version {
		return fmt.Errorf("%w: subject %s at version %d, write based on %d", ErrConflict, q.Subject, cur.Version, q.Version)
	}
	q.Version++
	s.queues[q.Subject] = q.Clone()
	return nil
}

// IdleSince lists subjects that are inactive since before t and still hold groups.
func (s *MemoryStore) IdleSince(_ context.Context, t time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for subject, q := range s.queues {
		if !q.Active && q.InactiveSince != nil && q.InactiveSince.Before(t) && len(q.List) > 0 {
			out = append(out, subject)
		}
	}
	return out, nil
}
