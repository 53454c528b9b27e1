package broadcast

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
)

// DefaultBufferSize is the number of undelivered events a subscriber may hold
// before it is considered stalled and dropped.
const DefaultBufferSize = 64

// Broadcaster is a per-case publish/subscribe registry. Events are not persisted;
// a subscriber only receives what is published while it is attached.
type Broadcaster struct {
	mu         sync.RWMutex
	topics     map[model.CaseID]map[uint64]*Subscription
	bufferSize int
	nextID     atomic.Uint64
}

type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber event buffer
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		topics:     make(map[model.CaseID]map[uint64]*Subscription),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscription is one attached observer of a case
type Subscription struct {
	id     uint64
	caseID model.CaseID
	b      *Broadcaster

	mu     sync.Mutex
	closed bool
	events chan *model.Event
}

// ID identifies the subscription within its case channel
func (s *Subscription) ID() uint64 { return s.id }

// CaseID returns the observed case
func (s *Subscription) CaseID() model.CaseID { return s.caseID }

// Events returns the delivery channel. It is closed when the subscription is
// closed or pruned.
func (s *Subscription) Events() <-chan *model.Event { return s.events }

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.b.remove(s)
}

func (s *Subscription) deliver(ev *model.Event) (delivered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Subscribe attaches a new observer to caseID
func (b *Broadcaster) Subscribe(caseID model.CaseID) *Subscription {
	sub := &Subscription{
		id:     b.nextID.Add(1),
		caseID: caseID,
		b:      b,
		events: make(chan *model.Event, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[caseID]
	if !ok {
		subs = make(map[uint64]*Subscription)
		b.topics[caseID] = subs
	}
	subs[sub.id] = sub

	return sub
}

// Publish delivers ev to every current subscriber of its case without blocking.
// A subscriber whose buffer is full is dropped. Publish never fails the caller.
func (b *Broadcaster) Publish(ctx context.Context, ev *model.Event) {
	if ev == nil {
		return
	}

	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.topics[ev.CaseID]))
	for _, sub := range b.topics[ev.CaseID] {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.deliver(ev) {
			continue
		}

		logging.From(ctx).Warn("dropping stalled subscriber",
			"case_id", ev.CaseID,
			"subscription_id", sub.id,
			"event_type", ev.Type,
		)
		b.remove(sub)
	}
}

// SubscriberCount returns the number of observers attached to caseID
func (b *Broadcaster) SubscriberCount(caseID model.CaseID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[caseID])
}

// Close detaches every subscriber of every case
func (b *Broadcaster) Close() {
	b.mu.Lock()
	topics := b.topics
	b.topics = make(map[model.CaseID]map[uint64]*Subscription)
	b.mu.Unlock()

	for _, subs := range topics {
		for _, sub := range subs {
			sub.shutdown()
		}
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	if subs, ok := b.topics[sub.caseID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.topics, sub.caseID)
		}
	}
	b.mu.Unlock()

	sub.shutdown()
}
