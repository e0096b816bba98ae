package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/infrastructure/logging"
)

// Stream message types.
const (
	StreamTypeEvent = "auth_event"
	StreamTypePing  = "ping"
	StreamTypePong  = "pong"
)

// streamBuffer is how many undelivered events a client may fall behind by
// before it is disconnected.
const streamBuffer = 64

// StreamMessage is one frame on the event stream.
type StreamMessage struct {
	Type  string      `json:"type"`
	Event *auth.Event `json:"event,omitempty"`
}

// OwnerLookup returns a stream owner's current identity. ok is false when
// the account no longer exists or is inactive.
type OwnerLookup func(ctx context.Context, userID string) (uc auth.UserContext, ok bool)

// Hub fans auth events out to connected admin streams. It implements
// auth.EventSink and never waits on a stream's connection.
//
// The identity a stream connected with is only used to find its owner.
// Before each delivery the owner's account is read again, so a deactivated
// or demoted admin is disconnected before the next event reaches them.
type Hub struct {
	logger  *logging.Logger
	owner   OwnerLookup
	mu      sync.Mutex
	streams map[*eventStream]struct{}
}

// eventStream is one connected client.
type eventStream struct {
	user   auth.UserContext
	types  map[auth.EventType]bool // nil means every type
	out    chan []byte
	closed bool
}

// wants reports whether the stream's filter admits t.
func (es *eventStream) wants(t auth.EventType) bool {
	return es.types == nil || es.types[t]
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates an empty hub that checks stream owners with owner.
func NewHub(logger *logging.Logger, owner OwnerLookup) *Hub {
	return &Hub{
		logger:  logger,
		owner:   owner,
		streams: make(map[*eventStream]struct{}),
	}
}

// Run blocks until ctx is done, then ends every stream.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for es := range h.streams {
		h.dropLocked(es)
	}
}

// RecordEvent delivers e to every stream whose filter admits it and whose
// owner is still an active admin. A forced logout of the owner ends their
// streams, as does a full buffer.
func (h *Hub) RecordEvent(ctx context.Context, e auth.Event) {
	data, err := json.Marshal(StreamMessage{Type: StreamTypeEvent, Event: &e})
	if err != nil {
		h.logger.Error("encoding stream event", "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*eventStream, 0, len(h.streams))
	for es := range h.streams {
		if e.Type == auth.EventForceLogout && e.UserID == es.user.UserID {
			h.logger.Info("owner logged out, closing event stream", "user_id", es.user.UserID)
			h.dropLocked(es)
			continue
		}
		if es.wants(e.Type) {
			targets = append(targets, es)
		}
	}
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	// Owners are read without holding the lock.
	admins := make(map[string]bool, len(targets))
	for _, es := range targets {
		if _, seen := admins[es.user.UserID]; !seen {
			admins[es.user.UserID] = h.ownerIsAdmin(ctx, es.user.UserID)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, es := range targets {
		if es.closed {
			continue
		}
		if !admins[es.user.UserID] {
			h.logger.Info("owner no longer an active admin, closing event stream", "user_id", es.user.UserID)
			h.dropLocked(es)
			continue
		}
		select {
		case es.out <- data:
		default:
			h.logger.Warn("event stream too slow, disconnecting", "user_id", es.user.UserID)
			h.dropLocked(es)
		}
	}
}

// ownerIsAdmin reports whether userID is currently an active admin.
func (h *Hub) ownerIsAdmin(ctx context.Context, userID string) bool {
	uc, ok := h.owner(ctx, userID)
	return ok && auth.IsAdmin(uc)
}

// revalidate ends es when its owner is no longer an active admin. Idle
// streams are checked this way on every keepalive tick.
func (h *Hub) revalidate(ctx context.Context, es *eventStream) bool {
	if h.ownerIsAdmin(ctx, es.user.UserID) {
		return true
	}
	h.logger.Info("owner no longer an active admin, closing event stream", "user_id", es.user.UserID)
	h.remove(es)
	return false
}

// StreamCount returns the number of connected streams.
func (h *Hub) StreamCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

func (h *Hub) add(es *eventStream) {
	h.mu.Lock()
	h.streams[es] = struct{}{}
	n := len(h.streams)
	h.mu.Unlock()
	h.logger.Debug("event stream connected", "user_id", es.user.UserID, "streams", n)
}

// remove is safe to call more than once for the same stream.
func (h *Hub) remove(es *eventStream) {
	h.mu.Lock()
	h.dropLocked(es)
	n := len(h.streams)
	h.mu.Unlock()
	h.logger.Debug("event stream disconnected", "user_id", es.user.UserID, "streams", n)
}

// dropLocked unregisters es and closes its outbox once. h.mu must be held.
func (h *Hub) dropLocked(es *eventStream) {
	delete(h.streams, es)
	if !es.closed {
		es.closed = true
		close(es.out)
	}
}

// currentOwner reads a stream owner's account for the hub.
func (s *Server) currentOwner(ctx context.Context, userID string) (auth.UserContext, bool) {
	u, err := s.auth.Credentials().GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			s.logger.Warn("looking up event stream owner", "user_id", userID, "error", err)
		}
		return auth.UserContext{}, false
	}
	return u.Context(), u.IsActive
}

// parseTypes turns "login,login_failed" into a filter set. Empty input
// means no filter.
func parseTypes(raw string) map[auth.EventType]bool {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	types := make(map[auth.EventType]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[auth.EventType(t)] = true
		}
	}
	return types
}

// handleWebSocket upgrades to an auth event stream. The caller proves who
// they are with a ticket from POST /auth/ws-ticket; ?types= narrows the
// stream to a comma-separated list of event types.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}
	if !auth.IsAdmin(entry.user) {
		writeForbidden(w, auth.PublicMessage(auth.ErrPermissionDenied))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	es := &eventStream{
		user:  entry.user,
		types: parseTypes(r.URL.Query().Get("types")),
		out:   make(chan []byte, streamBuffer),
	}
	s.hub.add(es)

	pong := make(chan []byte, 1)
	go s.streamWriter(conn, es, pong)
	go s.streamReader(conn, es, pong)
}

// streamReader answers application-level pings and detects disconnects.
// Anything else a client sends is ignored.
func (s *Server) streamReader(conn *websocket.Conn, es *eventStream, pong chan<- []byte) {
	defer func() {
		s.hub.remove(es)
		conn.Close()
	}()

	keepAlive := time.Duration(s.wsCfg.PingInterval+s.wsCfg.PongTimeout) * time.Second
	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline; a missed deadline ends the read loop
	conn.SetReadDeadline(time.Now().Add(keepAlive))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(keepAlive))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("event stream read error", "user_id", es.user.UserID, "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(keepAlive))

		var msg StreamMessage
		if json.Unmarshal(data, &msg) == nil && msg.Type == StreamTypePing {
			reply, _ := json.Marshal(StreamMessage{Type: StreamTypePong}) //nolint:errcheck // static value
			select {
			case pong <- reply:
			default:
			}
		}
	}
}

// streamWriter owns all writes to conn: events, pong replies and
// protocol-level pings.
func (s *Server) streamWriter(conn *websocket.Conn, es *eventStream, pong <-chan []byte) {
	ticker := time.NewTicker(time.Duration(s.wsCfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	writeWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	write := func(kind int, data []byte) error {
		//nolint:errcheck // Best-effort deadline; the write reports failure
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-es.out:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case data := <-pong:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if !s.hub.revalidate(context.Background(), es) {
				continue // es.out is closed; the next receive sends the close frame
			}
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
