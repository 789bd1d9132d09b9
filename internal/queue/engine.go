package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// errNoChange aborts a mutation without writing or publishing.
var errNoChange = errors.New("no change")

// Options wires the engine's collaborators.
type Options struct {
	Store     Store
	Locker    Locker
	Publisher Publisher
	Clock     Clock
	// FlushGrace is how long a deactivated queue keeps its list.
	FlushGrace time.Duration
	// FlushTimeout bounds one idle flush (lock + load + save).
	FlushTimeout time.Duration
	// NewID generates group identifiers.
	NewID func() string
}

// Engine owns every mutation of subject queues.
type Engine struct {
	store   Store
	locker  Locker
	pub     Publisher
	clock   Clock
	grace   time.Duration
	timeout time.Duration
	newID   func() string
	flusher *FlushScheduler
}

// JoinRequest describes a new group.
type JoinRequest struct {
	Users    []string
	Task     int
	Comment  string
	Location string
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string) {}

func New(opts Options) *Engine {
	e := &Engine{
		store:   opts.Store,
		locker:  opts.Locker,
		pub:     opts.Publisher,
		clock:   opts.Clock,
		grace:   opts.FlushGrace,
		timeout: opts.FlushTimeout,
		newID:   opts.NewID,
	}
	if e.locker == nil {
		e.locker = NewLocalLocker()
	}
	if e.pub == nil {
		e.pub = nopPublisher{}
	}
	if e.clock == nil {
		e.clock = SystemClock
	}
	if e.grace <= 0 {
		e.grace = 5 * time.Second
	}
	if e.timeout <= 0 {
		e.timeout = 10 * time.Second
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	e.flusher = NewFlushScheduler(e.clock, e.grace, e.flushIdle)
	return e
}

// Flusher exposes the idle-flush registry.
func (e *Engine) Flusher() *FlushScheduler { return e.flusher }

// Close cancels pending idle flushes.
func (e *Engine) Close() { e.flusher.Stop() }

// mutate runs one guarded read-modify-write. after runs under the subject lock
// once the new state is durable (or apply reported no change).
func (e *Engine) mutate(ctx context.Context, subject string, apply func(q *Queue) error, after func(q *Queue)) (*Queue, error) {
	unlock, err := e.locker.Lock(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: lock subject %s: %w", ErrStorageUnavailable, subject, err)
	}
	defer unlock()

	q, err := e.store.Load(ctx, subject)
	if err != nil {
		return nil, err
	}

	if err := apply(q); err != nil {
		if !errors.Is(err, errNoChange) {
			return nil, err
		}
		if after != nil {
			after(q)
		}
		return q, nil
	}

	if err := CheckPositions(q.List); err != nil {
		return nil, fmt.Errorf("subject %s: %w", subject, err)
	}
	if err := e.store.Save(ctx, q); err != nil {
		return nil, err
	}
	if after != nil {
		after(q)
	}
	e.pub.Publish(subject, EventQueueChanged)
	return q, nil
}

// SetActive opens or closes the queue. Closing arms the idle flush, opening disarms it.
func (e *Engine) SetActive(ctx context.Context, subject string, active bool) error {
	_, err := e.mutate(ctx, subject, func(q *Queue) error {
		if q.Active == active {
			return errNoChange
		}
		q.Active = active
		if active {
			q.InactiveSince = nil
		} else {
			// Postgres keeps microseconds; the stamp must compare equal after a reload.
			now := e.clock.Now().Truncate(time.Microsecond)
			q.InactiveSince = &now
		}
		return nil
	}, func(q *Queue) {
		if active {
			e.flusher.Disarm(subject)
		} else if q.InactiveSince != nil {
			e.flusher.Arm(subject, *q.InactiveSince)
		}
	})
	return err
}

// Join appends a new group at the tail of an active queue.
func (e *Engine) Join(ctx context.Context, subject string, req JoinRequest) (Group, error) {
	users, err := normalizeUsers(req.Users)
	if err != nil {
		return Group{}, err
	}
	if req.Task < 1 {
		return Group{}, fmt.Errorf("%w: task must be >= 1, got %d", ErrInvalidArgument, req.Task)
	}

	var created Group
	_, err = e.mutate(ctx, subject, func(q *Queue) error {
		if !q.Active {
			return fmt.Errorf("%w: subject %s", ErrQueueInactive, subject)
		}
		for _, g := range q.List {
			for _, u := range users {
				if g.HasUser(u) {
					return fmt.Errorf("%w: user %s is in group %s", ErrAlreadyQueued, u, g.ID)
				}
			}
		}
		q.List = Append(q.List, Group{
			ID:          e.newID(),
			Users:       users,
			TimeEntered: e.clock.Now(),
			Comment:     req.Comment,
			Task:        req.Task,
			Location:    req.Location,
		})
		created = q.List[len(q.List)-1]
		created.Users = append([]string(nil), users...)
		return nil
	}, nil)
	if err != nil {
		return Group{}, err
	}
	return created, nil
}

// LeaveSelf removes userID from every group; groups left empty are deleted. Leaving twice is a no-op.
func (e *Engine) LeaveSelf(ctx context.Context, subject, userID string) error {
	_, err := e.mutate(ctx, subject, func(q *Queue) error {
		var emptied []string
		changed := false
		for i := range q.List {
			g := &q.List[i]
			kept := g.Users[:0]
			for _, u := range g.Users {
				if u == userID {
					changed = true
					continue
				}
				kept = append(kept, u)
			}
			g.Users = kept
			if len(g.Users) == 0 {
				emptied = append(emptied, g.ID)
			}
		}
		if !changed {
			return errNoChange
		}
		for _, id := range emptied {
			q.List, _ = Remove(q.List, id)
		}
		return nil
	}, nil)
	return err
}

// RemoveGroup deletes a group. Staff may remove any group, members only their own.
func (e *Engine) RemoveGroup(ctx context.Context, subject, groupID, requesterID string, role Role) error {
	_, err := e.mutate(ctx, subject, func(q *Queue) error {
		idx := q.Find(groupID)
		if idx < 0 {
			return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		if !role.IsStaff() && !q.List[idx].HasUser(requesterID) {
			return fmt.Errorf("%w: %s is not a member of group %s", ErrForbidden, requesterID, groupID)
		}
		q.List, _ = Remove(q.List, groupID)
		return nil
	}, nil)
	return err
}

// Claim marks helperID as assisting the group.
func (e *Engine) Claim(ctx context.Context, subject, groupID, helperID string) error {
	if helperID == "" {
		return fmt.Errorf("%w: empty helper", ErrInvalidArgument)
	}
	return e.setHelper(ctx, subject, groupID, helperID)
}

// Unclaim clears the group's helper.
func (e *Engine) Unclaim(ctx context.Context, subject, groupID string) error {
	return e.setHelper(ctx, subject, groupID, "")
}

func (e *Engine) setHelper(ctx context.Context, subject, groupID, helper string) error {
	_, err := e.mutate(ctx, subject, func(q *Queue) error {
		idx := q.Find(groupID)
		if idx < 0 {
			return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		q.List[idx].Helper = helper
		return nil
	}, nil)
	return err
}

// Delay defers a group by amount positions as one atomic write and returns the applied (clamped) amount.
func (e *Engine) Delay(ctx context.Context, subject, groupID string, amount int) (int, error) {
	if amount < 1 {
		return 0, fmt.Errorf("%w: delay must be >= 1, got %d", ErrInvalidArgument, amount)
	}
	var applied int
	_, err := e.mutate(ctx, subject, func(q *Queue) error {
		n, err := Delay(q.List, groupID, amount)
		if err != nil {
			return err
		}
		applied = n
		return nil
	}, nil)
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// Snapshot returns the current state with the list ordered by position.
func (e *Engine) Snapshot(ctx context.Context, subject string) (*Queue, error) {
	q, err := e.store.Load(ctx, subject)
	if err != nil {
		return nil, err
	}
	q.List = q.Sorted()
	return q, nil
}

// SweepIdle clears a queue that stayed inactive past the grace period without
// an armed timer (timers do not survive a restart). It reports whether the list was cleared.
func (e *Engine) SweepIdle(ctx context.Context, subject string) (bool, error) {
	if _, armed := e.flusher.Armed(subject); armed {
		return false, nil
	}
	cleared := false
	_, err := e.mutate(ctx, subject, func(q *Queue) error {
		if q.Active || q.InactiveSince == nil || len(q.List) == 0 {
			return errNoChange
		}
		if e.clock.Now().Sub(*q.InactiveSince) < e.grace {
			return errNoChange
		}
		q.List = []Group{}
		cleared = true
		return nil
	}, nil)
	return cleared, err
}

func (e *Engine) flushIdle(subject string, since time.Time, claim func() bool) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	_, err := e.mutate(ctx, subject, func(q *Queue) error {
		if !claim() || len(q.List) == 0 {
			return errNoChange
		}
		// Reopened since arming, possibly on another instance whose Disarm cannot reach this timer.
		if q.Active || q.InactiveSince == nil || !q.InactiveSince.Equal(since) {
			return errNoChange
		}
		q.List = []Group{}
		return nil
	}, nil)
	if err != nil {
		log.Printf("Ошибка очистки неактивной очереди %s: %v", subject, err)
	}
}

func normalizeUsers(users []string) ([]string, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: empty member set", ErrInvalidArgument)
	}
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u == "" {
			return nil, fmt.Errorf("%w: empty member id", ErrInvalidArgument)
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out, nil
}
