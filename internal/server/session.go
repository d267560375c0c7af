// Package server manages individual realtime sessions: their lifecycle state,
// read/write pumps and rate limiting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/huddle/internal/config"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	sendQueueLen = 256
)

// State is a step of the session lifecycle.
type State int

const (
	// StateConnecting covers the handshake until the token is verified.
	StateConnecting State = iota
	// StateAuthenticated is a registered session following only General.
	StateAuthenticated
	// StateRoomSubscribed is a session that explicitly joined a room.
	StateRoomSubscribed
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateRoomSubscribed:
		return "room_subscribed"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrInvalidTransition is returned when a lifecycle step is not allowed from
// the current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

// Session is one live client connection. Its room set and delivery flags are
// owned by the Hub; its lifecycle fields by the session mutex.
type Session struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	gateway        *Gateway
	addr           string
	log            zerolog.Logger
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig

	// ctx bounds the actions of the session and ends with its connection.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	userID uint

	// guarded by Hub.mutex
	rooms    map[uint]struct{}
	attached bool
	closed   bool
}

// NewSession creates a session in the Connecting state for conn. conn may be
// nil for sessions that are only used as delivery targets.
func NewSession(conn *websocket.Conn, addr string, cfg config.Config, log zerolog.Logger) *Session {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendQueueLen),
		addr:           addr,
		log:            log.With().Str("session_id", id).Str("remote_addr", addr).Logger(),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		ctx:            ctx,
		cancel:         cancel,
		state:          StateConnecting,
		rooms:          make(map[uint]struct{}),
	}
}

// ID returns the session id used in logs.
func (s *Session) ID() string {
	return s.id
}

// Context is cancelled once the session is detached, evicted or shut down.
func (s *Session) Context() context.Context {
	return s.ctx
}

// GetSendChan returns the outgoing queue of the session.
func (s *Session) GetSendChan() <-chan []byte {
	return s.send
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the authenticated user, or 0 before authentication.
func (s *Session) UserID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// authenticate moves Connecting to Authenticated for userID.
func (s *Session) authenticate(userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, StateAuthenticated)
	}
	s.state = StateAuthenticated
	s.userID = userID
	s.log = s.log.With().Uint("user_id", userID).Logger()
	return nil
}

// markSubscribed records an explicit room join. Joining again is a no-op.
func (s *Session) markSubscribed() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAuthenticated, StateRoomSubscribed:
		s.state = StateRoomSubscribed
		return nil
	default:
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, s.state, StateRoomSubscribed)
	}
}

// markDisconnected moves any state to Disconnected and returns the state it
// left.
func (s *Session) markDisconnected() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state = StateDisconnected
	return prev
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the read error at a level matching its cause and
// returns true if the read loop should break
func (s *Session) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn().Int64("limit", s.maxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		s.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Debug().Err(err).Msg("connection closed")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseMessageTooBig):
		s.log.Warn().Err(err).Msg("unexpected websocket close")
	default:
		s.log.Warn().Err(err).Msg("websocket read error")
	}
	return true
}

// checkRateLimit verifies if the session has exceeded rate limits
// and returns true if the frame should be processed
func (s *Session) checkRateLimit() bool {
	if s.rateLimiter != nil && !s.rateLimiter.allow() {
		s.log.Warn().
			Int("burst", s.rateLimit.Burst).
			Dur("interval", s.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding frame")
		metricFramesRateLimited.Inc()
		return false
	}
	return true
}

// processFrame decodes one inbound envelope and hands it to the gateway.
func (s *Session) processFrame(raw []byte) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		s.log.Debug().Err(err).Msg("discarding malformed frame")
		return false
	}
	s.gateway.dispatch(s, env)
	return true
}

func (s *Session) readPump() {
	defer func() {
		s.gateway.disconnect(s)
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn().Err(err).Msg("error closing connection in readPump")
		}
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if s.handleReadError(err) {
			return
		}

		if !s.checkRateLimit() {
			continue
		}

		s.processFrame(raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.cancel()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-s.send:
		return s.handleMessage(message, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

// closeConnection closes the WebSocket connection, logging only unexpected errors
func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn().Err(err).Msg("error closing connection in writePump")
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (s *Session) handleMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		return s.writeCloseMessage()
	}

	return s.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (s *Session) writeCloseMessage() bool {
	if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("error writing close message")
	}
	return false
}

// writeTextMessage writes a text message and any queued messages
func (s *Session) writeTextMessage(message []byte) bool {
	w, err := s.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		s.log.Debug().Err(err).Msg("error creating writer")
		return false
	}

	if _, err := w.Write(message); err != nil {
		s.log.Debug().Err(err).Msg("error writing message")
		return false
	}

	if !s.writeQueuedMessages(w) {
		return false
	}

	if err := w.Close(); err != nil {
		s.log.Debug().Err(err).Msg("error closing writer")
		return false
	}
	return true
}

// writeQueuedMessages appends what is already queued to the current frame,
// newline separated, keeping queue order.
func (s *Session) writeQueuedMessages(w io.Writer) bool {
	n := len(s.send)
	for i := 0; i < n; i++ {
		next, ok := <-s.send
		if !ok {
			return true
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			s.log.Debug().Err(err).Msg("error writing newline")
			return false
		}
		if _, err := w.Write(next); err != nil {
			s.log.Debug().Err(err).Msg("error writing queued message")
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.log.Debug().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.log.Debug().Err(err).Msg("error writing ping message")
		return false
	}
	return true
}

// reject closes a connection that failed the handshake with a policy
// violation close frame.
func (s *Session) reject(reason string) {
	s.markDisconnected()
	if s.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
		s.log.Debug().Err(err).Msg("error writing rejection")
	}
	s.closeConnection()
}
