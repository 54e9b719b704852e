package events

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const allKey = "*"

var _ ChangeFeed = (*Broker)(nil)

// Broker is an in-process ChangeFeed. Each subscriber owns an unbounded FIFO
// queue drained by a dedicated goroutine, so Publish never blocks on a slow
// handler and per-key order is the order of Publish calls.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*subscriber
	closed bool
	logger *zap.Logger
}

// NewBroker creates a broker instance.
func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:   make(map[string]map[uint64]*subscriber),
		logger: logger,
	}
}

// Publish enqueues the change for subscribers of its candidate and for table-wide subscribers.
func (b *Broker) Publish(change Change) {
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs[change.CandidateID] {
		sub.enqueue(change)
	}
	for _, sub := range b.subs[allKey] {
		sub.enqueue(change)
	}
}

// Subscribe registers handler for changes to one candidate.
func (b *Broker) Subscribe(candidateID string, handler Handler) *Subscription {
	return b.subscribe(candidateID, handler)
}

// SubscribeAll registers handler for every change on the table.
func (b *Broker) SubscribeAll(handler Handler) *Subscription {
	return b.subscribe(allKey, handler)
}

// Close stops every subscriber. Later Publish calls are dropped.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for key, group := range b.subs {
		for _, sub := range group {
			sub.stop()
		}
		delete(b.subs, key)
	}
}

// SubscriberCount returns how many live subscriptions exist for candidateID.
func (b *Broker) SubscriberCount(candidateID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[candidateID])
}

func (b *Broker) subscribe(key string, handler Handler) *Subscription {
	// Keys often alias request buffers that are reused after the handler returns.
	key = strings.Clone(key)
	sub := newSubscriber(key, handler, b.logger)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.stop()
		go sub.run()
		return &Subscription{broker: b, sub: sub}
	}
	b.nextID++
	sub.id = b.nextID
	if b.subs[key] == nil {
		b.subs[key] = make(map[uint64]*subscriber)
	}
	b.subs[key][sub.id] = sub
	b.mu.Unlock()

	go sub.run()
	return &Subscription{broker: b, sub: sub}
}

func (b *Broker) remove(sub *subscriber) {
	b.mu.Lock()
	if group, ok := b.subs[sub.key]; ok {
		delete(group, sub.id)
		if len(group) == 0 {
			delete(b.subs, sub.key)
		}
	}
	b.mu.Unlock()
	sub.stop()
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	broker *Broker
	sub    *subscriber
	once   sync.Once
}

// Release stops further handler invocations. It is idempotent and may be
// called from inside the handler.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.broker.remove(s.sub)
	})
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.sub.done
}

type subscriber struct {
	id      uint64
	key     string
	handler Handler
	logger  *zap.Logger

	mu     sync.Mutex
	queue  []Change
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newSubscriber(key string, handler Handler, logger *zap.Logger) *subscriber {
	return &subscriber{
		key:     key,
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscriber) enqueue(change Change) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, change)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) stop() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.mu.Unlock()
			<-s.wake
			s.mu.Lock()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		change := s.queue[0]
		s.queue[0] = Change{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(change)
	}
}

func (s *subscriber) deliver(change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("change handler panicked",
				zap.String("candidate_id", change.CandidateID),
				zap.Any("panic", r))
		}
	}()
	s.handler(change)
}
