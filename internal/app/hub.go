package app

import "sync"

// Hub fans events out to room subscribers. Rooms are plain topic names
// (see CommunityRoom/PostRoom/QuizRoom); a subscriber is one connection's
// outbound channel and may sit in any number of rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]struct{}
}

// Subscriber is a single connection's event stream. All events for the
// connection, room broadcasts and unicasts alike, arrive on C so the
// transport needs exactly one writer goroutine.
type Subscriber struct {
	hub    *Hub
	ch     chan Event
	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

// C is the receive side of the subscriber's event stream. It is closed by
// Close.
func (s *Subscriber) C() <-chan Event { return s.ch }

const subscriberBuffer = 32

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe allocates a subscriber with no room memberships.
func (h *Hub) Subscribe() *Subscriber {
	return &Subscriber{
		hub:   h,
		ch:    make(chan Event, subscriberBuffer),
		rooms: make(map[string]struct{}),
	}
}

// Join adds the subscriber to a room. Joining twice is a no-op.
func (h *Hub) Join(sub *Subscriber, room string) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.rooms[room] = struct{}{}
	sub.mu.Unlock()

	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Subscriber]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()
}

// Leave removes the subscriber from a room.
func (h *Hub) Leave(sub *Subscriber, room string) {
	sub.mu.Lock()
	delete(sub.rooms, room)
	sub.mu.Unlock()
	h.detach(sub, room)
}

// Close removes the subscriber from every room and closes its channel.
func (h *Hub) Close(sub *Subscriber) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.closed = true
	rooms := make([]string, 0, len(sub.rooms))
	for room := range sub.rooms {
		rooms = append(rooms, room)
	}
	sub.rooms = make(map[string]struct{})
	sub.mu.Unlock()

	for _, room := range rooms {
		h.detach(sub, room)
	}
	close(sub.ch)
}

// Broadcast delivers an event to every subscriber of a room. A slow
// subscriber loses its oldest buffered event instead of blocking the room.
func (h *Hub) Broadcast(room string, ev Event) {
	h.mu.RLock()
	members := make([]*Subscriber, 0, len(h.rooms[room]))
	for sub := range h.rooms[room] {
		members = append(members, sub)
	}
	h.mu.RUnlock()

	for _, sub := range members {
		sub.send(ev)
	}
}

// Send unicasts an event to one subscriber.
func (h *Hub) Send(sub *Subscriber, ev Event) {
	sub.send(ev)
}

func (s *Subscriber) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}

func (h *Hub) detach(sub *Subscriber, room string) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, sub)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}
