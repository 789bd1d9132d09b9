package queue

import (
	"sort"
	"time"
)

// Event kinds delivered to live viewers of a subject.
const (
	EventQueueChanged     = "queue-changed"
	EventBroadcastChanged = "broadcast-changed"
)

// Role is the caller's role within one subject, as reported by the authorization oracle.
type Role string

const (
	RoleNone      Role = ""
	RoleAdmin     Role = "Admin"
	RoleTeacher   Role = "Teacher"
	RoleAssistant Role = "Assistant"
	RoleStudent   Role = "Student"
)

// IsStaff reports whether the role may manage other people's groups.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleAssistant
}

// Valid reports whether r is one of the known roles (RoleNone excluded).
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleAssistant, RoleStudent:
		return true
	}
	return false
}

// Group is one entry of a subject queue.
type Group struct {
	ID          string    `json:"id"`
	Users       []string  `json:"users"`
	Helper      string    `json:"helper,omitempty"` // empty while nobody is assisting
	TimeEntered time.Time `json:"timeEntered"`
	Comment     string    `json:"comment"`
	Task        int       `json:"task"`
	Location    string    `json:"location,omitempty"`
	Position    int       `json:"position"`
}

// HasUser reports whether userID is a member of the group.
func (g *Group) HasUser(userID string) bool {
	for _, u := range g.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// Queue is the aggregate owned by the Engine: one per subject.
type Queue struct {
	Subject string  `json:"subject"`
	Active  bool    `json:"active"`
	List    []Group `json:"list"`
	// InactiveSince is set on the active->inactive transition and cleared on activation.
	InactiveSince *time.Time `json:"inactiveSince,omitempty"`
	// Version is the optimistic concurrency token handed back to Store.Save.
	Version int64 `json:"-"`
}

// Clone returns a deep copy so callers never share list memory with a store.
func (q *Queue) Clone() *Queue {
	c := *q
	if q.InactiveSince != nil {
		t := *q.InactiveSince
		c.InactiveSince = &t
	}
	c.List = make([]Group, len(q.List))
	for i, g := range q.List {
		g.Users = append([]string(nil), g.Users...)
		c.List[i] = g
	}
	return &c
}

// Sorted returns the list ordered by position.
func (q *Queue) Sorted() []Group {
	out := append([]Group(nil), q.List...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// Find returns the index of group id, or -1.
func (q *Queue) Find(id string) int {
	for i := range q.List {
		if q.List[i].ID == id {
			return i
		}
	}
	return -1
}
