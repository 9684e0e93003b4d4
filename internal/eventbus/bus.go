// Package eventbus implements the in-process typed publish/subscribe bus.
// It is a direct generalization of a websocket Hub pattern (broadcast
// channel + mutex-guarded subscriber set) from one untyped channel to one
// channel per topic, with an explicit Unsubscribe so the bus never retains a
// strong reference to a subscriber past its own shutdown.
package eventbus

import (
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sniperbot/engine/pkg/models"
)

// subscriberBuffer is the per-subscriber channel depth. A slow subscriber
// drops events rather than blocking a publisher — publishers are on the hot
// trading loop and must never suspend on a subscriber's behalf.
const subscriberBuffer = 256

type subscription struct {
	id string
	ch chan any
}

// Bus is the process-wide typed publish/subscribe bus.
type Bus struct {
	mu   sync.RWMutex
	subs map[models.Topic][]*subscription
}

func New() *Bus {
	return &Bus{subs: make(map[models.Topic][]*subscription)}
}

// Subscription is the handle a subscriber holds; call Unsubscribe in the
// subscriber's own shutdown path.
type Subscription struct {
	bus   *Bus
	topic models.Topic
	id    string
	C     <-chan any
}

// Subscribe registers a new subscriber for a topic and returns a handle
// whose channel receives every value later published to that topic.
func (b *Bus) Subscribe(topic models.Topic) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{id: newSubID(), ch: make(chan any, subscriberBuffer)}
	b.subs[topic] = append(b.subs[topic], sub)

	return &Subscription{bus: b, topic: topic, id: sub.id, C: sub.ch}
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subs[s.topic]
	for i, sub := range subs {
		if sub.id == s.id {
			close(sub.ch)
			s.bus.subs[s.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish fans a value out to every current subscriber of topic. Never
// blocks: a subscriber whose buffer is full has the event dropped and a
// warning logged, rather than stalling the publisher.
func (b *Bus) Publish(topic models.Topic, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
			log.Printf("[eventbus] dropping event on topic %s: subscriber %s buffer full", topic, sub.id)
		}
	}
}

// Shutdown closes every subscriber channel across every topic. Intended to
// be called once at process teardown after all publishing goroutines have
// stopped.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.subs, topic)
	}
}

var subIDCounter atomic.Int64

func newSubID() string {
	return "sub-" + strconv.FormatInt(subIDCounter.Add(1), 10)
}
