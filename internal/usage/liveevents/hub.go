package liveevents

import (
	"errors"
	"strings"
	"sync"
)

const (
	StatusTracked = "tracked"

	SourceAPI      = "api"
	SourceInternal = "internal"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable      = errors.New("hub_unavailable")
	ErrInvalidOrganization = errors.New("invalid_organization")
)

// LiveEvent is a tracked ledger entry as seen by dashboard subscribers.
type LiveEvent struct {
	LedgerEntryID    string  `json:"ledger_entry_id"`
	UserID           string  `json:"user_id"`
	EventType        string  `json:"event_type"`
	CreditsConsumed  int64   `json:"credits_consumed"`
	RemainingCredits int64   `json:"remaining_credits"`
	PercentageUsed   float64 `json:"percentage_used"`
	CreatedAt        string  `json:"created_at"`
	Status           string  `json:"status"`
	Source           string  `json:"source"`
}

// Hub fans out live events per organization. Slow subscribers drop events.
type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []LiveEvent
	subs   map[uint64]chan LiveEvent
	nextID uint64
}

type Subscription struct {
	hub   *Hub
	orgID string
	id    uint64
	ch    chan LiveEvent
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish is a no-op for organizations without subscribers.
func (h *Hub) Publish(orgID string, event LiveEvent) {
	if h == nil {
		return
	}
	org := strings.TrimSpace(orgID)
	if org == "" {
		return
	}
	h.mu.RLock()
	stream := h.streams[org]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan LiveEvent, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns the subscription and the events buffered since the stream opened.
func (h *Hub) Subscribe(orgID string) (*Subscription, []LiveEvent, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	org := strings.TrimSpace(orgID)
	if org == "" {
		return nil, nil, ErrInvalidOrganization
	}

	stream := h.ensureStream(org)
	stream.mu.Lock()
	id := stream.nextID
	stream.nextID++
	ch := make(chan LiveEvent, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]LiveEvent(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:   h,
		orgID: org,
		id:    id,
		ch:    ch,
	}, buffer, nil
}

func (h *Hub) ensureStream(orgID string) *stream {
	h.mu.RLock()
	current := h.streams[orgID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[orgID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan LiveEvent)}
		h.streams[orgID] = current
	}
	return current
}

func (h *Hub) unsubscribe(orgID string, id uint64) {
	h.mu.RLock()
	stream := h.streams[orgID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[orgID] != stream {
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, orgID)
	}
}

func (s *Subscription) Events() <-chan LiveEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.orgID, s.id)
	})
}
