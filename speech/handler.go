package speech

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cabline.dev/agent/booking/call"
	"cabline.dev/agent/booking/telemetry"
)

type (
	// CallStarter builds the booking call for one accepted connection. The
	// gateway owns the returned call: it posts inbound events and drains
	// actions until either side hangs up, then closes it. The request is
	// available for caller identification headers.
	CallStarter func(ctx context.Context, r *http.Request) (*call.Call, error)

	// HandlerOptions configure the gateway handler.
	HandlerOptions struct {
		// StartCall builds the call driven by each connection. Required.
		StartCall CallStarter
		// Upgrader overrides the WebSocket upgrader, for origin checks and
		// buffer sizing.
		Upgrader *websocket.Upgrader
		// Logger defaults to a no-op.
		Logger telemetry.Logger
	}

	// Handler upgrades speech layer connections and runs one call session
	// per connection.
	Handler struct {
		start    CallStarter
		upgrader *websocket.Upgrader
		check    *Validator
		logger   telemetry.Logger
	}
)

// NewHandler compiles the tool sync schema and returns the gateway handler.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.StartCall == nil {
		return nil, errors.New("start call is required")
	}
	check, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if opts.Upgrader == nil {
		opts.Upgrader = &websocket.Upgrader{}
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	return &Handler{
		start:    opts.StartCall,
		upgrader: opts.Upgrader,
		check:    check,
		logger:   opts.Logger,
	}, nil
}

// ServeHTTP implements http.Handler. It runs the session to completion: the
// request handler returns only when the call is over.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Error(ctx, "websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	c, err := h.start(ctx, r)
	if err != nil {
		h.logger.Error(ctx, "start call failed", "remote", r.RemoteAddr, "err", err)
		deadline := time.Now().Add(writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "call setup failed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		return
	}
	defer c.Close()

	h.logger.Info(ctx, "call connected", "call_id", c.ID(), "remote", r.RemoteAddr)
	sess := newSession(conn, c, h.check, h.logger)
	if err := sess.run(ctx); err != nil {
		h.logger.Error(ctx, "call session failed", "call_id", c.ID(), "err", err)
	}
	snap := c.Snapshot()
	h.logger.Info(ctx, "call disconnected", "call_id", c.ID(), "stage", string(snap.Stage), "booking_id", snap.BookingID)
}
