//go:generate go run go.uber.org/mock/mockgen -source=handler.go -destination=../../mocks/mock_ws_handler.go -package=mocks
package ws

import (
	"chatto/auth"
	"chatto/contract"
	"chatto/domain"
	"chatto/domain/event"
	"chatto/errors"
	"chatto/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Authenticator resolves a handshake token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// MessageSender posts a message on behalf of a connected user.
type MessageSender interface {
	SendMessage(ctx context.Context, requester domain.PublicUser, conversation domain.ConversationID, content string) (domain.MessageView, error)
}

type Config struct {
	BufferSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OriginPatterns []string
}

// Handler serves GET /ws. Each accepted socket gets one registered
// Connection, one read loop handling client events in order and one write
// loop draining the connection outbox.
type Handler struct {
	log          *slog.Logger
	auth         Authenticator
	sender       MessageSender
	registry     *runtime.Registry
	synchronizer *runtime.Synchronizer
	dispatcher   contract.IDispatcher
	typing       *runtime.TypingTracker
	config       Config
}

func NewHandler(
	log *slog.Logger,
	authenticator Authenticator,
	sender MessageSender,
	registry *runtime.Registry,
	synchronizer *runtime.Synchronizer,
	dispatcher contract.IDispatcher,
	typing *runtime.TypingTracker,
	config Config,
) *Handler {
	return &Handler{
		log:          log,
		auth:         authenticator,
		sender:       sender,
		registry:     registry,
		synchronizer: synchronizer,
		dispatcher:   dispatcher,
		typing:       typing,
		config:       config,
	}
}

type rejection struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ServeHTTP rejects unauthenticated handshakes before upgrading, so such a
// client never joins any room.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.authenticate(r)
	if err != nil {
		h.log.Debug("Socket handshake rejected", "remote", r.RemoteAddr, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(errors.HTTPStatus(err))
		_ = json.NewEncoder(w).Encode(rejection{Success: false, Message: errors.PublicMessage(err)})
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.config.OriginPatterns})
	if err != nil {
		// Accept already answered the client.
		h.log.Warn("Socket upgrade failed", "user_id", identity.User.ID, "error", err)
		return
	}
	h.serve(r.Context(), socket, identity.User)
}

func (h *Handler) authenticate(r *http.Request) (auth.Identity, error) {
	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return auth.Identity{}, errors.ErrMissingToken
	}
	return h.auth.Authenticate(r.Context(), token)
}

func (h *Handler) serve(ctx context.Context, socket *websocket.Conn, user domain.PublicUser) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn := runtime.NewConnection(user, h.config.BufferSize)
	h.registry.Register(conn)
	defer h.disconnect(ctx, conn)

	log := h.log.With("connection_id", conn.ID, "user_id", user.ID)
	log.Info("Socket connected")

	if err := h.synchronizer.Resync(ctx, conn.ID); err != nil {
		log.Error("Initial resync failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, cancel, socket, conn, log)
	}()

	status := h.readLoop(ctx, socket, conn, log)
	cancel()
	<-done

	_ = socket.Close(status, "")
	log.Info("Socket disconnected", "status", status)
}

// disconnect unregisters first: once it returns no broadcast reaches conn.
func (h *Handler) disconnect(ctx context.Context, conn *runtime.Connection) {
	h.registry.Unregister(conn.ID)
	for _, state := range h.typing.Forget(conn.ID) {
		h.broadcastTyping(context.WithoutCancel(ctx), stoppedTyping(state.ConversationID, state.User), state.ConnectionID)
	}
}

func (h *Handler) readLoop(ctx context.Context, socket *websocket.Conn, conn *runtime.Connection, log *slog.Logger) websocket.StatusCode {
	for {
		var in inbound
		if err := wsjson.Read(ctx, socket, &in); err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status != -1:
				return status
			case ctx.Err() != nil:
				return websocket.StatusGoingAway
			default:
				log.Debug("Socket read failed", "error", err)
				return websocket.StatusInternalError
			}
		}
		if err := h.handle(ctx, conn, in); err != nil {
			log.Debug("Client event rejected", "type", in.Type, "error", err)
			h.dispatcher.Unicast(ctx, conn.ID, errorEvent(err))
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, socket *websocket.Conn, conn *runtime.Connection, log *slog.Logger) {
	defer cancel()

	var ping <-chan time.Time
	if h.config.PingInterval > 0 {
		ticker := time.NewTicker(h.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case e := <-conn.Outbox():
			writeCtx, cancelWrite := context.WithTimeout(ctx, h.config.WriteTimeout)
			err := wsjson.Write(writeCtx, socket, e)
			cancelWrite()
			if err != nil {
				log.Debug("Socket write failed", "type", e.Type, "error", err)
				return
			}
			// The removed user must stop receiving the conversation even if its client never resyncs.
			if e.Type == event.RemovedFromConversation {
				if err := h.synchronizer.Resync(ctx, conn.ID); err != nil {
					log.Warn("Resync after removal failed", "error", err)
				}
			}
		case <-ping:
			pingCtx, cancelPing := context.WithTimeout(ctx, h.config.WriteTimeout)
			err := socket.Ping(pingCtx)
			cancelPing()
			if err != nil {
				log.Debug("Socket ping failed", "error", err)
				return
			}
		}
	}
}
