// Package server binds authenticated websocket sessions to the chat service:
// it runs the handshake, re-resolves identity for every action and turns
// successful writes into hub events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/huddle/internal/chat"
	"github.com/Tyrowin/huddle/internal/config"
)

// TokenVerifier turns a bearer token into the id of an existing user.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (uint, error)
}

type actionFunc func(ctx context.Context, s *Session, userID uint, data json.RawMessage) error

// Gateway owns the registry and hub and handles every realtime action.
type Gateway struct {
	cfg      config.Config
	log      zerolog.Logger
	tokens   TokenVerifier
	chat     *chat.Service
	registry *Registry[*Session]
	hub      *Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	actions  map[string]actionFunc
}

// NewGateway wires a gateway for the given chat service and token verifier.
func NewGateway(cfg config.Config, tokens TokenVerifier, chatSvc *chat.Service, log zerolog.Logger) *Gateway {
	log = log.With().Str("component", "gateway").Logger()
	registry := NewRegistry[*Session]()

	g := &Gateway{
		cfg:      cfg,
		log:      log,
		tokens:   tokens,
		chat:     chatSvc,
		registry: registry,
		hub:      NewHub(registry, log),
		origins:  newOriginPolicy(cfg.AllowedOrigins, log),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.origins.check,
	}
	g.actions = map[string]actionFunc{
		ActionSendMessage:   g.handleSendMessage,
		ActionTyping:        g.handleTyping,
		ActionAddReaction:   g.handleAddReaction,
		ActionJoinRoom:      g.handleJoinRoom,
		ActionGetRooms:      g.handleGetRooms,
		ActionCreateRoom:    g.handleCreateRoom,
		ActionAddUserToRoom: g.handleAddUserToRoom,
	}
	return g
}

// Hub returns the fanout hub.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// Registry returns the connection registry.
func (g *Gateway) Registry() *Registry[*Session] {
	return g.registry
}

// Shutdown closes every session and waits for their pumps.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	return g.hub.Shutdown(timeout)
}

// bearerToken extracts the credential of a handshake: the token query
// parameter first, then the Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// HandleWebSocket upgrades the request and runs the handshake. A connection
// whose token does not verify to an existing user is closed with a policy
// violation.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	s := NewSession(conn, r.RemoteAddr, g.cfg, g.log)
	s.gateway = g

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.PersistTimeout)
	defer cancel()

	if err := g.authenticate(ctx, s, bearerToken(r)); err != nil {
		metricHandshakes.WithLabelValues("rejected").Inc()
		s.log.Info().Err(err).Msg("handshake rejected")
		s.reject("unauthorized")
		return
	}
	g.hub.Serve(s)
}

// authenticate verifies the token and moves s to Authenticated. The registry
// takeover, hub attach and General subscription happen as one hub step.
func (g *Gateway) authenticate(ctx context.Context, s *Session, token string) error {
	userID, err := g.tokens.VerifyToken(ctx, token)
	if err != nil {
		return err
	}
	if err := s.authenticate(userID); err != nil {
		return err
	}

	var rooms []uint
	general, err := g.chat.GeneralRoom(ctx)
	switch {
	case err == nil:
		rooms = append(rooms, general.ID)
	case errors.Is(err, chat.ErrNotFound):
		s.log.Warn().Msg("general room missing; session not subscribed")
	default:
		s.log.Error().Err(err).Msg("failed to look up general room")
	}

	if prev, replaced := g.hub.Takeover(userID, s, rooms...); replaced {
		metricHandshakes.WithLabelValues("superseding").Inc()
		s.log.Info().Str("previous_session_id", prev.id).Msg("session superseded an older connection")
	}

	metricHandshakes.WithLabelValues("accepted").Inc()
	s.log.Info().Int("users_online", g.registry.Len()).Msg("session authenticated")
	return nil
}

// disconnect is the transport close path. A superseded session does not
// touch the newer registry entry.
func (g *Gateway) disconnect(s *Session) {
	g.registry.Unregister(s)
	g.hub.Detach(s)
	if prev := s.markDisconnected(); prev != StateDisconnected {
		s.log.Info().Str("from_state", prev.String()).Msg("session disconnected")
	}
}

// dispatch runs one inbound action. Drops and failures are logged and never
// reported to the client.
func (g *Gateway) dispatch(s *Session, env Envelope) {
	ctx, cancel := context.WithTimeout(s.Context(), g.cfg.PersistTimeout)
	defer cancel()

	err := g.run(ctx, s, env)

	var d *Drop
	switch {
	case err == nil:
		metricActions.WithLabelValues(env.Event, "ok").Inc()
	case errors.As(err, &d):
		metricActions.WithLabelValues(d.Action, "dropped").Inc()
		s.log.Debug().Str("action", d.Action).Str("reason", d.Reason).Msg("action dropped")
	default:
		metricActions.WithLabelValues(env.Event, "failed").Inc()
		s.log.Error().Err(err).Str("action", env.Event).Msg("action failed")
	}
}

func (g *Gateway) run(ctx context.Context, s *Session, env Envelope) error {
	handler, ok := g.actions[env.Event]
	if !ok {
		return drop("unknown", "unknown event "+env.Event)
	}
	userID, ok := g.registry.ResolveUser(s)
	if !ok {
		return drop(env.Event, "connection does not resolve to a user")
	}
	return handler(ctx, s, userID, env.Data)
}

// invite subscribes the current session of userID to room and tells it the
// room exists. Users without a connection are skipped.
func (g *Gateway) invite(userID uint, room *chat.Room) bool {
	s, ok := g.registry.LookupHandle(userID)
	if !ok {
		return false
	}
	g.hub.Subscribe(s, room.ID)
	return g.hub.PublishToUser(userID, Event{Name: EventRoomCreated, Payload: room})
}
