package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is a computation-failure broadcast
type Event struct {
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subscriber consumes events; it must not block for long
type Subscriber func(Event)

// Bus is a fire-and-forget broadcast channel. Publish never blocks the
// pipeline: when the queue is full the oldest pending event is dropped.
type Bus struct {
	queue chan Event
	log   *zap.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
	closed      bool
	done        chan struct{}
}

func NewBus(capacity int, log *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bus{
		queue: make(chan Event, capacity),
		log:   log,
		done:  make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a consumer for all subsequent events
func (b *Bus) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, sub)
}

// Publish enqueues an event, evicting the oldest pending one if the
// queue is full. Safe to call from any goroutine, never blocks.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// The read lock is held across the send so Close cannot close the
	// queue between the closed check and the enqueue.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.queue <- event:
			return
		default:
		}
		select {
		case dropped := <-b.queue:
			b.log.Debug("notification queue full, dropping oldest",
				zap.String("kind", dropped.Kind),
			)
		default:
		}
	}
}

// Close stops dispatch after draining pending events
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.queue)
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for event := range b.queue {
		b.mu.RLock()
		subs := append([]Subscriber(nil), b.subscribers...)
		b.mu.RUnlock()
		for _, sub := range subs {
			sub(event)
		}
	}
}

// LogSubscriber writes every event to the given logger
func LogSubscriber(log *zap.Logger) Subscriber {
	return func(e Event) {
		log.Warn("risk computation event",
			zap.String("kind", e.Kind),
			zap.String("message", e.Message),
			zap.String("error", e.Err),
			zap.Time("at", e.Timestamp),
		)
	}
}
