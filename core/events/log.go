package events

import (
	"sync"

	"stakerchain/core/types"
)

const (
	defaultLogCapacity = 1024
	defaultSubBuffer   = 64
)

// Record is a sequenced event retained by Log.
type Record struct {
	Sequence int64
	Event    *types.Event
}

// Log retains the most recent payload events in memory so they can be served
// over RPC. Events that do not implement Payload are ignored.
type Log struct {
	mu       sync.RWMutex
	capacity int
	next     int64
	records  []Record

	nextSub int
	subs    map[int]chan Record
}

// NewLog returns a recorder holding at most capacity events. Non-positive
// capacities fall back to the default.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &Log{capacity: capacity, next: 1, subs: make(map[int]chan Record)}
}

// Emit implements the Emitter interface.
func (l *Log) Emit(evt Event) {
	if l == nil || evt == nil {
		return
	}
	payload, ok := evt.(Payload)
	if !ok {
		return
	}
	rendered := payload.Event()
	if rendered == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec := Record{Sequence: l.next, Event: rendered.Clone()}
	l.records = append(l.records, rec)
	l.next++
	if overflow := len(l.records) - l.capacity; overflow > 0 {
		l.records = append([]Record(nil), l.records[overflow:]...)
	}
	for id, ch := range l.subs {
		select {
		case ch <- Record{Sequence: rec.Sequence, Event: rec.Event.Clone()}:
		default:
			// Subscriber fell behind; closing tells it the stream has a gap.
			close(ch)
			delete(l.subs, id)
		}
	}
}

// Subscribe returns up to backlog of the newest retained records and a channel
// receiving every record emitted afterwards, with no gap or overlap between the
// two. The channel is closed when cancel is called or when the subscriber
// falls more than buffer records behind.
func (l *Log) Subscribe(backlog, buffer int) ([]Record, <-chan Record, func()) {
	if buffer <= 0 {
		buffer = defaultSubBuffer
	}
	ch := make(chan Record, buffer)
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	start := 0
	if backlog >= 0 && len(l.records) > backlog {
		start = len(l.records) - backlog
	}
	past := make([]Record, 0, len(l.records)-start)
	for _, rec := range l.records[start:] {
		past = append(past, Record{Sequence: rec.Sequence, Event: rec.Event.Clone()})
	}
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if current, ok := l.subs[id]; ok {
				close(current)
				delete(l.subs, id)
			}
		})
	}
	return past, ch, cancel
}

// Recent returns up to limit of the newest records, oldest first. A
// non-positive limit returns everything retained.
func (l *Log) Recent(limit int) []Record {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && len(l.records) > limit {
		start = len(l.records) - limit
	}
	out := make([]Record, 0, len(l.records)-start)
	for _, rec := range l.records[start:] {
		out = append(out, Record{Sequence: rec.Sequence, Event: rec.Event.Clone()})
	}
	return out
}
