package event

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink is the capability interface a front-end implements to receive
// events. Any closure-shaped callable satisfying this single method works
// — there is no base class to inherit from. Implementations must be safe
// to call from any goroutine: the core may emit from the driver task or
// from the path-type watcher concurrently.
type Sink interface {
	OnEvent(Event)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(Event)

// OnEvent implements Sink.
func (f SinkFunc) OnEvent(e Event) { f(e) }

// DefaultQueueCapacity bounds the embedding queue below, so a front-end
// that stops polling cannot grow memory unboundedly.
const DefaultQueueCapacity = 256

// Queue is a bounded, mutex-guarded event queue used by embeddings that
// poll for events rather than receiving push callbacks. Pollers are
// non-blocking: Poll returns immediately whether or not an event is
// available.
type Queue struct {
	mu       sync.Mutex
	buf      []Event
	capacity int
}

// NewQueue creates a Queue with the given capacity; capacity <= 0 uses
// DefaultQueueCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{capacity: capacity}
}

// OnEvent implements Sink by appending to the queue, dropping the oldest
// event if the queue is full. A dropped event is logged at WARN so a
// stuck poller is diagnosable without crashing the session.
func (q *Queue) OnEvent(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) >= q.capacity {
		logrus.WithFields(logrus.Fields{
			"function": "Queue.OnEvent",
			"capacity": q.capacity,
		}).Warn("event queue full, dropping oldest event")
		q.buf = q.buf[1:]
	}

	q.buf = append(q.buf, e)
}

// Poll removes and returns the next queued event, or ok=false if empty.
func (q *Queue) Poll() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return Event{}, false
	}

	e := q.buf[0]
	q.buf = q.buf[1:]
	return e, true
}
