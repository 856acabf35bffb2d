package socket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"naskahlive/config"
	"naskahlive/internal/apperror"
	"naskahlive/internal/identity"
	"naskahlive/pkg/logger"
	"naskahlive/pkg/metrics"
	"naskahlive/pkg/respond"
)

type Authorizer interface {
	CanView(ctx context.Context, docID string, who identity.Identity) (bool, error)
	CanEdit(ctx context.Context, docID string, who identity.Identity) (bool, error)
}

type ContentStore interface {
	SetContent(ctx context.Context, docID string, content json.RawMessage) error
}

// Session is one live connection to one document.
type Session struct {
	id    string
	docID string
	who   identity.Identity
	conn  *websocket.Conn

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once

	cfg      config.SocketConfig
	registry *Registry
	auth     Authorizer
	store    ContentStore
}

func (s *Session) ID() string {
	return s.id
}

// Deliver queues evt for the write loop. A session that cannot keep up is
// closed rather than allowed to block the broadcaster.
func (s *Session) Deliver(evt Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- evt:
		return nil
	default:
		logger.Sugar.Warnf("Session %s send buffer is full, closing", s.id)
		s.Close()
		return ErrSendBufferFull
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) run(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readPump(ctx) })
	g.Go(func() error { return s.writePump(ctx) })
	if err := g.Wait(); err != nil {
		logger.Sugar.Debugf("Session %s on document %s ended: %v", s.id, s.docID, err)
	}
}

func (s *Session) readPump(ctx context.Context) error {
	defer s.Close()

	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		if msgType != websocket.TextMessage {
			metrics.MessagesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
			continue
		}
		s.handle(ctx, raw)
	}
}

// handle applies one inbound edit. Nothing is ever written back to the
// sender; every rejection is a silent drop.
func (s *Session) handle(ctx context.Context, raw []byte) {
	content, err := decodeInbound(raw)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
		logger.Sugar.Debugf("Dropping malformed message from session %s: %v", s.id, err)
		return
	}

	allowed, err := s.auth.CanEdit(ctx, s.docID, s.who)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonAuthError).Inc()
		logger.Sugar.Errorf("Failed to check edit permission for %s on %s: %v", s.who.UserID, s.docID, err)
		return
	}
	if !allowed {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonForbidden).Inc()
		logger.Sugar.Debugf("Dropping edit from %s on %s: no edit permission", s.who.UserID, s.docID)
		return
	}

	s.registry.Broadcast(ctx, s.docID, Event{
		DocumentID: s.docID,
		UserID:     s.who.UserID,
		SessionID:  s.id,
		Content:    content,
	}, s)
	metrics.EditsApplied.Inc()

	if err := s.store.SetContent(ctx, s.docID, content); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			logger.Sugar.Debugf("Document %s vanished before save", s.docID)
			return
		}
		logger.Sugar.Errorf("Failed to save document %s: %v", s.docID, err)
	}
}

func (s *Session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case evt := <-s.send:
			// Same-user events are never echoed, including ones relayed
			// from other instances.
			if evt.UserID == s.who.UserID {
				metrics.EchoSuppressed.Inc()
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteJSON(OutboundMessage{Type: ChangeType, Content: evt.Content}); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				return err
			}
		case <-s.done:
			s.writeClose(websocket.CloseNormalClosure)
			return nil
		case <-ctx.Done():
			s.writeClose(websocket.CloseGoingAway)
			return nil
		}
	}
}

func (s *Session) writeClose(code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
}

// Handler accepts live connections on /ws/documents/{documentID}.
type Handler struct {
	registry *Registry
	resolver identity.Resolver
	auth     Authorizer
	store    ContentStore
	cfg      config.SocketConfig
	upgrader websocket.Upgrader
}

// NewHandler builds the live channel endpoint. An empty allowedOrigins
// accepts any origin.
func NewHandler(registry *Registry, resolver identity.Resolver, auth Authorizer, store ContentStore, cfg config.SocketConfig, allowedOrigins []string) *Handler {
	return &Handler{
		registry: registry,
		resolver: resolver,
		auth:     auth,
		store:    store,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowedOrigins) == 0 || origin == "" || lo.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docID := chi.URLParam(r, "documentID")

	who, ok := identity.FromContext(ctx)
	if !ok {
		who = h.resolver.Resolve(ctx, identity.CredentialFromRequest(r))
	}

	allowed, err := h.auth.CanView(ctx, docID, who)
	if err != nil {
		logger.Sugar.Errorf("Failed to check view permission for %s on %s: %v", who.UserID, docID, err)
	}
	if !allowed {
		metrics.SessionsRejected.Inc()
		logger.Sugar.Infof("Connection rejected: user %q may not view document %s", who.UserID, docID)
		respond.Message(w, http.StatusForbidden, "forbidden")
		return
	}

	s := &Session{
		id:       ulid.Make().String(),
		docID:    docID,
		who:      who,
		send:     make(chan Event, h.cfg.SendBuffer),
		done:     make(chan struct{}),
		cfg:      h.cfg,
		registry: h.registry,
		auth:     h.auth,
		store:    h.store,
	}

	// Join before the upgrade so no change made after the handshake
	// completes can be missed.
	h.registry.Join(docID, s)
	defer h.registry.Leave(docID, s)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Warnf("Failed to upgrade connection for document %s: %v", docID, err)
		return
	}
	s.conn = conn

	logger.Sugar.Infof("User %s connected to document %s (session %s)", who.UserID, docID, s.id)
	s.run(ctx)
	logger.Sugar.Infof("User %s disconnected from document %s (session %s)", who.UserID, docID, s.id)
}
