package service

import (
	"errors"
	"sync"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/event"
)

// ErrSlowSubscriber is reported by a subscription that was disconnected
// because its buffer filled up.
var ErrSlowSubscriber = errors.New("subscriber too slow, disconnected")

// Item is one entry of the merged stream: exactly one of Chunk and Event
// is set.
type Item struct {
	Chunk *event.StreamChunk     `json:"chunk,omitempty"`
	Event *event.ExecutionEvent `json:"event,omitempty"`
}

// Seq returns the shared sequence number of the item.
func (i Item) Seq() uint64 {
	if i.Chunk != nil {
		return i.Chunk.Seq
	}
	if i.Event != nil {
		return i.Event.Seq
	}
	return 0
}

// Filter selects which sequences a subscriber receives.
type Filter int

const (
	FilterAll Filter = iota
	FilterChunks
	FilterEvents
)

func (f Filter) accepts(it Item) bool {
	switch f {
	case FilterChunks:
		return it.Chunk != nil
	case FilterEvents:
		return it.Event != nil
	default:
		return true
	}
}

// Subscription is one consumer of a task's stream.
type Subscription struct {
	ch     chan Item
	filter Filter
	mux    *Multiplexer

	mu     sync.Mutex
	err    error
	closed bool

	// Lossless subscriptions queue items in backlog; pump feeds ch.
	lossless bool
	backlog  []Item
	notify   chan struct{}
	detached chan struct{}
}

// Items returns the receive channel. It is closed when the task ends, the
// subscription is closed, or the subscriber falls behind.
func (s *Subscription) Items() <-chan Item { return s.ch }

// Err reports why the channel was closed early, if it was.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close detaches the subscription. Safe to call more than once. Items
// still queued on a lossless subscription are dropped.
func (s *Subscription) Close() {
	if s.mux != nil {
		s.mux.remove(s)
	}
	if s.lossless {
		s.mu.Lock()
		select {
		case <-s.detached:
		default:
			close(s.detached)
		}
		s.mu.Unlock()
	}
	s.shut(nil)
}

func (s *Subscription) shut(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	if s.lossless {
		s.wake() // pump closes ch once the backlog is delivered
		return
	}
	close(s.ch)
}

// enqueue must be called with the multiplexer lock held, which keeps the
// backlog in sequence order.
func (s *Subscription) enqueue(it Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.backlog = append(s.backlog, it)
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		if len(s.backlog) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.notify:
			case <-s.detached:
				return
			}
			continue
		}
		it := s.backlog[0]
		s.backlog[0] = Item{}
		s.backlog = s.backlog[1:]
		s.mu.Unlock()

		select {
		case s.ch <- it:
		case <-s.detached:
			return
		}
	}
}

// Multiplexer is the per-task publish point for chunks and events. It has
// a single writer (the task loop) and any number of readers. Publishing
// never blocks.
type Multiplexer struct {
	taskID string
	buffer int

	mu     sync.Mutex
	seq    uint64
	subs   map[*Subscription]struct{}
	closed bool
}

// NewMultiplexer creates a multiplexer whose subscribers buffer up to
// buffer items each.
func NewMultiplexer(taskID string, buffer int) *Multiplexer {
	if buffer < 1 {
		buffer = 1
	}
	return &Multiplexer{
		taskID: taskID,
		buffer: buffer,
		subs:   make(map[*Subscription]struct{}),
	}
}

// TaskID returns the task this multiplexer belongs to.
func (m *Multiplexer) TaskID() string { return m.taskID }

// PublishChunk emits a token chunk produced by agent.
func (m *Multiplexer) PublishChunk(agent, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.seq++
	c := &event.StreamChunk{
		TaskID:    m.taskID,
		Seq:       m.seq,
		AgentName: agent,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	m.fanout(Item{Chunk: c})
}

// PublishEvent assigns ev the next sequence number and fans it out.
func (m *Multiplexer) PublishEvent(ev *event.ExecutionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.seq++
	ev.Seq = m.seq
	cp := *ev
	m.fanout(Item{Event: &cp})
}

// fanout must be called with m.mu held.
func (m *Multiplexer) fanout(it Item) {
	for s := range m.subs {
		if !s.filter.accepts(it) {
			continue
		}
		if s.lossless {
			s.enqueue(it)
			continue
		}
		select {
		case s.ch <- it:
		default:
			delete(m.subs, s)
			s.shut(ErrSlowSubscriber)
		}
	}
}

// Subscribe registers a subscriber. It only sees items published after
// this call. Subscribing to a closed multiplexer yields a closed channel.
func (m *Multiplexer) Subscribe(filter Filter) *Subscription {
	s := &Subscription{ch: make(chan Item, m.buffer), filter: filter, mux: m}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		s.shut(nil)
		return s
	}
	m.subs[s] = struct{}{}
	return s
}

// SubscribeLossless registers a subscriber that is never disconnected for
// falling behind: items it has not yet received queue without bound and are
// all delivered, in order, before the channel closes at task end.
func (m *Multiplexer) SubscribeLossless(filter Filter) *Subscription {
	s := &Subscription{
		ch:       make(chan Item),
		filter:   filter,
		mux:      m,
		lossless: true,
		notify:   make(chan struct{}, 1),
		detached: make(chan struct{}),
	}
	go s.pump()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		s.shut(nil)
		return s
	}
	m.subs[s] = struct{}{}
	return s
}

func (m *Multiplexer) remove(s *Subscription) {
	m.mu.Lock()
	delete(m.subs, s)
	m.mu.Unlock()
}

// Close ends every subscription. Further publishes are dropped.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for s := range m.subs {
		s.shut(nil)
	}
	m.subs = nil
}

// Closed reports whether the multiplexer has been closed.
func (m *Multiplexer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
