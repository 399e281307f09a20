package eventbus

import (
	"sync"
)

// DefaultTopicCapacity is the default size of each subscriber's event
// buffer; a subscriber that falls that far behind loses its oldest buffered
// event for each new one. Topics keep no history: a subscriber receives only
// events published after it subscribed.
const DefaultTopicCapacity = 256

// Subscription is a live subscriber handle. Closing it stops delivery and
// releases the topic's reference once no subscribers remain.
type Subscription interface {
	// Events yields published events in order. A LaggedEvent is delivered
	// in place of any events dropped because this subscriber fell behind.
	Events() <-chan Event
	Close()
}

// Bus fans out events published to per-task topics. Publish never blocks on
// a slow subscriber: each subscriber has its own bounded channel, and a
// full channel causes the oldest buffered event to be dropped (replaced, at
// drain time, by a LaggedEvent) rather than stalling the publisher.
type Bus struct {
	mu       sync.Mutex
	topics   map[string]*topic
	capacity int
}

// New returns an empty Bus. capacity <= 0 uses DefaultTopicCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultTopicCapacity
	}
	return &Bus{topics: make(map[string]*topic), capacity: capacity}
}

type topic struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch     chan Event
	mu     sync.Mutex
	missed int
	bus    *Bus
	taskID string
	closed bool
}

// Publish delivers event to every subscriber currently on event.TaskID()'s
// topic. Best-effort: a subscriber whose channel is full has its oldest
// event replaced by a lagged counter, never blocking the publisher.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	t, ok := b.topics[event.TaskID()]
	b.mu.Unlock()
	if !ok {
		return
	}
	t.mu.Lock()
	subs := make([]*subscriber, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()

	for _, s := range subs {
		s.deliver(event)
	}
}

// Subscribe joins taskID's topic, creating it if this is the first
// subscriber. The returned Subscription's channel has this Bus's capacity.
func (b *Bus) Subscribe(taskID string) Subscription {
	b.mu.Lock()
	t, ok := b.topics[taskID]
	if !ok {
		t = &topic{subs: make(map[*subscriber]struct{})}
		b.topics[taskID] = t
	}
	b.mu.Unlock()

	s := &subscriber{ch: make(chan Event, b.capacity), bus: b, taskID: taskID}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()
	return s
}

// CloseTopic drops a task's topic and disconnects its subscribers. Called
// once a task reaches a terminal state and no further events will publish.
func (b *Bus) CloseTopic(taskID string) {
	b.mu.Lock()
	t, ok := b.topics[taskID]
	delete(b.topics, taskID)
	b.mu.Unlock()
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for s := range t.subs {
		s.closeChannel()
	}
}

func (s *subscriber) deliver(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	// Flush a pending Lagged marker ahead of the next event so a drained
	// reader always sees it before the events that followed the gap.
	if s.missed > 0 {
		select {
		case s.ch <- &LaggedEvent{base: newBase(s.taskID), NMissed: s.missed}:
			s.missed = 0
		default:
		}
	}
	select {
	case s.ch <- event:
		return
	default:
	}
	// Buffer still full: drop the oldest buffered event to make room for
	// the newest one, counting the drop for the next Lagged marker.
	select {
	case <-s.ch:
		s.missed++
	default:
	}
	select {
	case s.ch <- event:
	default:
		s.missed++
	}
}

func (s *subscriber) Events() <-chan Event {
	return s.ch
}

func (s *subscriber) Close() {
	s.bus.mu.Lock()
	t, ok := s.bus.topics[s.taskID]
	s.bus.mu.Unlock()
	if ok {
		t.mu.Lock()
		delete(t.subs, s)
		t.mu.Unlock()
	}
	s.closeChannel()
}

func (s *subscriber) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
