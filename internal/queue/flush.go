package queue

import (
	"sync"
	"time"
)

// FlushFunc clears an idle subject. It must call claim while holding the
// subject's mutation lock and skip the flush when claim returns false.
// since is the deactivation stamp the timer was armed for; a queue whose
// stored stamp differs was reopened in between (possibly by another instance).
type FlushFunc func(subject string, since time.Time, claim func() bool)

// FlushScheduler keeps at most one pending idle-flush timer per subject.
type FlushScheduler struct {
	mu      sync.Mutex
	clock   Clock
	grace   time.Duration
	pending map[string]*pendingFlush
	flush   FlushFunc
}

type pendingFlush struct {
	timer     Timer
	since     time.Time
	deadline  time.Time
	cancelled bool
}

func NewFlushScheduler(clock Clock, grace time.Duration, flush FlushFunc) *FlushScheduler {
	if clock == nil {
		clock = SystemClock
	}
	return &FlushScheduler{
		clock:   clock,
		grace:   grace,
		pending: make(map[string]*pendingFlush),
		flush:   flush,
	}
}

// Arm starts the grace period for the deactivation stamped since. Re-arming for
// the same stamp keeps the original deadline; a newer stamp replaces the timer.
func (s *FlushScheduler) Arm(subject string, since time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.pending[subject]; ok {
		if old.since.Equal(since) {
			return false
		}
		old.cancelled = true
		old.timer.Stop()
	}
	p := &pendingFlush{since: since, deadline: s.clock.Now().Add(s.grace)}
	s.pending[subject] = p
	p.timer = s.clock.AfterFunc(s.grace, func() { s.fire(subject, p) })
	return true
}

// Disarm cancels the pending flush. Once it returns, the flush can no longer
// clear the list, even if its timer already fired and waits for the subject lock.
func (s *FlushScheduler) Disarm(subject string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[subject]
	if !ok {
		return false
	}
	p.cancelled = true
	p.timer.Stop()
	delete(s.pending, subject)
	return true
}

// Armed reports whether a flush is pending for subject and when it is due.
func (s *FlushScheduler) Armed(subject string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[subject]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

// Stop cancels every pending flush.
func (s *FlushScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for subject, p := range s.pending {
		p.cancelled = true
		p.timer.Stop()
		delete(s.pending, subject)
	}
}

func (s *FlushScheduler) fire(subject string, p *pendingFlush) {
	defer func() {
		s.mu.Lock()
		if s.pending[subject] == p {
			delete(s.pending, subject)
		}
		s.mu.Unlock()
	}()

	s.flush(subject, p.since, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if p.cancelled {
			return false
		}
		if s.pending[subject] == p {
			delete(s.pending, subject)
		}
		return true
	})
}
