package events

import (
	"sync"
	"time"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when
// NewLog is given zero.
const DefaultSubscriberBuffer = 256

// Log is the append-only event log. Appends assign sequence numbers and fan
// events out to subscribers. A subscriber that cannot keep up has events
// dropped rather than blocking the writer; the Snapshot/SnapshotFrom API is
// the lossless path for observers that must see everything.
type Log struct {
	mu          sync.RWMutex
	entries     []Event
	subscribers map[uint64]chan Event
	nextSubID   uint64
	bufferSize  uint
	dropped     uint64
}

// NewLog creates an empty log. bufferSize is the per-subscriber channel
// capacity; zero selects DefaultSubscriberBuffer.
func NewLog(bufferSize uint) *Log {
	if bufferSize == 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Log{
		subscribers: make(map[uint64]chan Event),
		bufferSize:  bufferSize,
	}
}

// Append commits an event to the log and fans it out. It returns the stored
// envelope with its assigned sequence number.
func (l *Log) Append(typ Type, data any) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	evt := Event{
		Sequence:  uint64(len(l.entries)) + 1,
		Type:      typ,
		EmittedAt: time.Now().UnixNano(),
		Data:      data,
	}
	l.entries = append(l.entries, evt)

	for _, ch := range l.subscribers {
		select {
		case ch <- evt:
		default:
			l.dropped++
		}
	}
	return evt
}

// Snapshot returns a copy of every event appended so far, in order.
func (l *Log) Snapshot() []Event {
	return l.SnapshotFrom(0)
}

// SnapshotFrom returns a copy of every event with Sequence > after, in order.
func (l *Log) SnapshotFrom(after uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if after >= uint64(len(l.entries)) {
		return nil
	}
	tail := l.entries[after:]
	out := make([]Event, len(tail))
	copy(out, tail)
	return out
}

// Len returns the number of committed events.
func (l *Log) Len() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.entries))
}

// Dropped returns how many fan-out deliveries were discarded because a
// subscriber's buffer was full.
func (l *Log) Dropped() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}

// Subscribe registers a listener for events committed after the call. The
// returned cancel function releases the subscription and closes the channel.
func (l *Log) Subscribe() (<-chan Event, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSubID
	l.nextSubID++
	ch := make(chan Event, l.bufferSize)
	l.subscribers[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subscribers[id]; ok {
			delete(l.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}
