// Package bus implements the State Manager's topic-based publish/
// subscribe event bus. Subscribers are invoked synchronously, in
// subscription order, and a panicking or erroring subscriber never
// prevents later subscribers on the same topic from running.
//
// The subscribe/unsubscribe shape is grounded on steveyegge-gastown's
// internal/eventbus package; dispatch semantics depart from it
// deliberately — gastown's bus buffers per-subscriber channels and drops
// messages under backpressure, while rigwatch's spec requires ordered,
// synchronous delivery with isolated failure, closer to the teacher's
// streaming.Publisher contract (control_plane/streaming/interface.go)
// combined with its resilience.ReconciliationError pattern of turning
// partial failure into a counted value instead of a propagated error.
package bus

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Message is a single bus publication.
type Message struct {
	Topic     string
	Type      string
	Payload   interface{}
	Timestamp time.Time
	Seq       uint64
}

// Handler processes one Message. A returned error is logged and counted
// but never stops dispatch to subsequent handlers.
type Handler func(Message) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a topic-keyed, ordered, synchronous publish/subscribe bus.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]subscription
	nextSubID   uint64
	seq         uint64
	logger      *log.Logger

	failuresMu sync.Mutex
	failures   int64
}

// New constructs an empty Bus. A nil logger falls back to log.Default.
func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{subscribers: map[string][]subscription{}, logger: logger}
}

// Subscribe registers handler on topic and returns an unsubscribe
// function. Handlers are invoked in the order Subscribe was called.
func (b *Bus) Subscribe(topic string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextSubID++
	id := b.nextSubID
	b.subscribers[topic] = append(b.subscribers[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[topic]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Publish dispatches payload to every subscriber of topic, synchronously
// and in subscription order. Each message carries a monotonically
// assigned sequence number and timestamp.
func (b *Bus) Publish(topic, msgType string, payload interface{}) {
	b.mu.Lock()
	seq := atomic.AddUint64(&b.seq, 1)
	subs := make([]subscription, len(b.subscribers[topic]))
	copy(subs, b.subscribers[topic])
	b.mu.Unlock()

	msg := Message{Topic: topic, Type: msgType, Payload: payload, Timestamp: time.Now(), Seq: seq}

	for _, s := range subs {
		b.invoke(s, msg)
	}
}

func (b *Bus) invoke(s subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.recordFailure()
			b.logger.Printf("[bus] subscriber panic on topic %q: %v", msg.Topic, r)
		}
	}()
	if err := s.handler(msg); err != nil {
		b.recordFailure()
		b.logger.Printf("[bus] subscriber error on topic %q: %v", msg.Topic, err)
	}
}

func (b *Bus) recordFailure() {
	b.failuresMu.Lock()
	b.failures++
	b.failuresMu.Unlock()
}

// FailureCount returns the number of subscriber panics/errors observed
// since construction, for diagnostics.
func (b *Bus) FailureCount() int64 {
	b.failuresMu.Lock()
	defer b.failuresMu.Unlock()
	return b.failures
}

// SubscriberCount returns the number of active subscribers on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[topic])
}

// Topics used across the State Manager and downstream subsystems,
// matching spec.md §2/§4.3's named bus topics.
const (
	TopicUpdate        = "update"
	TopicEvent         = "event"
	TopicError         = "error"
	TopicMetrics       = "metrics"
	TopicErrorPatterns = "errorPatterns"
	TopicAlertRaised   = "alertRaised"
	TopicAlertResolved = "alertResolved"
)
