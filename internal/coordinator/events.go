package coordinator

import (
	"sync"
	"time"
)

// Event action labels used in the rolling log
const (
	ActionInfo      = "INFO"
	ActionOrder     = "ORDER"
	ActionRiskBlock = "RISK_BLOCK"
	ActionError     = "ERROR"
	ActionBias      = "BIAS"
	ActionManual    = "MANUAL"
)

// EventEntry is one row of the operator-facing rolling log
type EventEntry struct {
	Time    time.Time `json:"time"`
	Action  string    `json:"action"`
	Message string    `json:"message"`
}

// EventLog is a capped rolling log with short-window dedupe: the same
// action+message pair within the dedupe window is recorded once.
type EventLog struct {
	mu       sync.Mutex
	entries  []EventEntry
	capacity int
	window   time.Duration
	seen     map[string]time.Time
	now      func() time.Time
}

// NewEventLog creates a rolling event log with the given capacity
func NewEventLog(capacity int, dedupeWindow time.Duration) *EventLog {
	if capacity <= 0 {
		capacity = 500
	}
	return &EventLog{
		capacity: capacity,
		window:   dedupeWindow,
		seen:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Add appends an entry unless an identical one landed within the dedupe
// window. Returns whether the entry was recorded.
func (l *EventLog) Add(action, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := action + "|" + message
	if last, ok := l.seen[key]; ok && now.Sub(last) < l.window {
		return false
	}
	l.seen[key] = now
	l.evictSeenLocked(now)

	l.entries = append(l.entries, EventEntry{Time: now, Action: action, Message: message})
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	return true
}

// evictSeenLocked drops dedupe keys older than the window so the map
// stays bounded over long uptimes.
func (l *EventLog) evictSeenLocked(now time.Time) {
	if len(l.seen) < 2*l.capacity {
		return
	}
	for key, at := range l.seen {
		if now.Sub(at) >= l.window {
			delete(l.seen, key)
		}
	}
}

// Recent returns up to n entries, most recent first
func (l *EventLog) Recent(n int) []EventEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]EventEntry, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// ErrorRing is a bounded most-recent-first list of loop errors kept for
// observability. Errors here are not retried synchronously; the next
// scheduled tick is the retry.
type ErrorRing struct {
	mu       sync.Mutex
	entries  []ErrorEntry
	capacity int
}

// ErrorEntry is one captured failure
type ErrorEntry struct {
	Time    time.Time `json:"time"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
}

// NewErrorRing creates a bounded error list
func NewErrorRing(capacity int) *ErrorRing {
	if capacity <= 0 {
		capacity = 50
	}
	return &ErrorRing{capacity: capacity}
}

// Record prepends an error, dropping the oldest past capacity
func (r *ErrorRing) Record(source string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append([]ErrorEntry{{Time: time.Now(), Source: source, Message: err.Error()}}, r.entries...)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[:r.capacity]
	}
}

// Recent returns the captured errors, most recent first
func (r *ErrorRing) Recent() []ErrorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// boundedSet tracks seen string ids with a hard cap. When the cap is
// reached the oldest half is evicted, trading exact long-term dedupe for
// bounded memory; within the relevant time window dedupe stays exact.
type boundedSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

func newBoundedSet(capacity int) *boundedSet {
	if capacity <= 0 {
		capacity = 4096
	}
	return &boundedSet{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Add records the id, reporting whether it was already present
func (s *boundedSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)

	if len(s.order) > s.cap {
		evict := s.order[:s.cap/2]
		for _, old := range evict {
			delete(s.seen, old)
		}
		s.order = append([]string(nil), s.order[s.cap/2:]...)
	}
	return false
}

// Contains reports whether the id has been recorded
func (s *boundedSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}
