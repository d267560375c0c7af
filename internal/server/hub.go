// Package server fans realtime events out to the sessions subscribed to a
// room, or to the single session of a user, via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub tracks attached sessions and their room subscriptions and delivers
// encoded events to them. Every session has one send queue, so events reach
// a session in the order they were published.
type Hub struct {
	registry *Registry[*Session]
	log      zerolog.Logger

	mutex    sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[uint]map[*Session]struct{}

	// live holds every session with running pumps, superseded ones included.
	live map[*Session]struct{}
	wg   sync.WaitGroup
}

// NewHub creates a hub that resolves user-targeted events through registry.
func NewHub(registry *Registry[*Session], log zerolog.Logger) *Hub {
	return &Hub{
		registry: registry,
		log:      log.With().Str("component", "hub").Logger(),
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[uint]map[*Session]struct{}),
		live:     make(map[*Session]struct{}),
	}
}

// Attach makes s eligible for deliveries. A session the registry no longer
// maps to its user is refused.
func (h *Hub) Attach(s *Session) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.attachLocked(s)
}

func (h *Hub) attachLocked(s *Session) bool {
	if s.closed {
		return false
	}
	if userID, ok := h.registry.ResolveUser(s); !ok || userID != s.UserID() {
		return false
	}
	if !s.attached {
		s.attached = true
		h.sessions[s] = struct{}{}
		metricSessionsActive.Inc()
	}
	h.log.Debug().Str("session_id", s.id).Int("sessions", len(h.sessions)).Msg("session attached")
	return true
}

// Takeover makes s the connection of userID and subscribes it to rooms. The
// session it replaces is superseded in the same critical section, so
// concurrent handshakes of one user leave exactly one session attached.
func (h *Hub) Takeover(userID uint, s *Session, rooms ...uint) (*Session, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	prev, replaced := h.registry.Register(userID, s)
	if replaced {
		h.detachLocked(prev)
	}
	if h.attachLocked(s) {
		for _, roomID := range rooms {
			h.subscribeLocked(s, roomID)
		}
	}
	return prev, replaced
}

// Subscribe adds roomID to the rooms s receives. Subscribing twice is a no-op.
// No membership check happens here.
func (h *Hub) Subscribe(s *Session, roomID uint) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.subscribeLocked(s, roomID)
}

func (h *Hub) subscribeLocked(s *Session, roomID uint) bool {
	if !s.attached {
		return false
	}
	subs := h.rooms[roomID]
	if subs == nil {
		subs = make(map[*Session]struct{})
		h.rooms[roomID] = subs
	}
	subs[s] = struct{}{}
	s.rooms[roomID] = struct{}{}
	return true
}

// Subscribed reports whether s currently receives events of roomID.
func (h *Hub) Subscribed(s *Session, roomID uint) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, ok := h.rooms[roomID][s]
	return ok
}

// Supersede stops all deliveries to s without closing it. Used when a newer
// connection of the same user takes over.
func (h *Hub) Supersede(s *Session) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.detachLocked(s)
}

// Detach stops deliveries to s and closes its send queue, which makes the
// write pump send a close frame.
func (h *Hub) Detach(s *Session) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.detachLocked(s)
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.cancel()
}

func (h *Hub) detachLocked(s *Session) {
	for roomID := range s.rooms {
		if subs := h.rooms[roomID]; subs != nil {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	s.rooms = make(map[uint]struct{})

	if s.attached {
		s.attached = false
		delete(h.sessions, s)
		metricSessionsActive.Dec()
		h.log.Debug().Str("session_id", s.id).Int("sessions", len(h.sessions)).Msg("session detached")
	}
}

// Publish delivers ev to every session subscribed to roomID except the
// given one (nil for none) and returns how many sessions it was queued for.
func (h *Hub) Publish(roomID uint, ev Event, except *Session) int {
	payload, err := ev.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Name).Msg("failed to encode event")
		return 0
	}
	metricEventsPublished.WithLabelValues(ev.Name).Inc()

	targets := h.roomSnapshot(roomID, except)
	delivered, failed := h.sendAll(targets, payload)
	h.removeFailedSessions(failed)

	h.log.Debug().Str("event", ev.Name).Uint("room_id", roomID).Int("delivered", delivered).Msg("published to room")
	return delivered
}

// PublishToUser delivers ev to the current session of userID. The event is
// dropped when the user is not connected.
func (h *Hub) PublishToUser(userID uint, ev Event) bool {
	s, ok := h.registry.LookupHandle(userID)
	if !ok {
		h.log.Debug().Str("event", ev.Name).Uint("user_id", userID).Msg("user not connected; event dropped")
		return false
	}
	return h.Deliver(s, ev)
}

// Deliver sends ev to s alone. Detached sessions get nothing.
func (h *Hub) Deliver(s *Session, ev Event) bool {
	payload, err := ev.Encode()
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Name).Msg("failed to encode event")
		return false
	}
	metricEventsPublished.WithLabelValues(ev.Name).Inc()

	delivered, failed := h.sendAll([]*Session{s}, payload)
	h.removeFailedSessions(failed)
	return delivered == 1
}

// roomSnapshot returns a thread-safe snapshot of the room's subscribers
func (h *Hub) roomSnapshot(roomID uint, except *Session) []*Session {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	subs := h.rooms[roomID]
	targets := make([]*Session, 0, len(subs))
	for s := range subs {
		if s != except {
			targets = append(targets, s)
		}
	}
	return targets
}

// sendAll queues payload on every target and returns the sessions whose queue
// was full.
func (h *Hub) sendAll(targets []*Session, payload []byte) (int, []*Session) {
	// The read lock is held during the sends so no queue can be closed
	// underneath them.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	delivered := 0
	var failed []*Session
	for _, s := range targets {
		if !s.attached || s.closed {
			continue
		}
		select {
		case s.send <- payload:
			delivered++
			metricDeliveries.WithLabelValues("queued").Inc()
		default:
			failed = append(failed, s)
		}
	}
	return delivered, failed
}

// removeFailedSessions evicts sessions that could not keep up with their
// send queue.
func (h *Hub) removeFailedSessions(failed []*Session) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for _, s := range failed {
		if s.closed {
			continue
		}
		h.detachLocked(s)
		s.closed = true
		close(s.send)
		s.cancel()
		metricDeliveries.WithLabelValues("evicted").Inc()
		h.log.Warn().Str("session_id", s.id).Msg("session removed due to full send buffer")
	}
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessions)
}

// RoomSubscriberCount returns how many sessions follow roomID.
func (h *Hub) RoomSubscriberCount(roomID uint) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomID])
}

// Serve starts the read and write pumps of s.
func (h *Hub) Serve(s *Session) {
	h.mutex.Lock()
	h.live[s] = struct{}{}
	h.mutex.Unlock()

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		s.writePump()
	}()
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mutex.Lock()
			delete(h.live, s)
			h.mutex.Unlock()
		}()
		s.readPump()
	}()
}

// shutdownSessions closes the connection of every served session
func (h *Hub) shutdownSessions() int {
	h.mutex.RLock()
	sessions := make([]*Session, 0, len(h.live))
	for s := range h.live {
		sessions = append(sessions, s)
	}
	h.mutex.RUnlock()

	for _, s := range sessions {
		s.cancel()
		if s.conn == nil {
			continue
		}
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn().Err(err).Str("session_id", s.id).Msg("error closing session connection")
		}
	}
	return len(sessions)
}

// Shutdown closes every session and waits for their pumps to finish, or for
// the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")
	closed := h.shutdownSessions()
	h.log.Info().Int("sessions", closed).Msg("closed session connections")

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached, some pumps may still be running")
		return context.DeadlineExceeded
	}
}
