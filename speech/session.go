package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cabline.dev/agent/booking/call"
	"cabline.dev/agent/booking/telemetry"
)

const (
	// writeTimeout bounds each outbound write, pings included.
	writeTimeout = 10 * time.Second

	// pongWait is how long the read side tolerates silence. The pong handler
	// extends the deadline on every pong.
	pongWait = 60 * time.Second

	// pingPeriod spaces keepalive pings. Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds inbound frames. Tool syncs are small; anything
	// bigger is a misbehaving client.
	maxFrameSize = 16 << 10
)

// session drives one booking call over one WebSocket connection. The read
// pump posts validated tool syncs into the call mailbox; the write pump
// drains the call's actions back to the speech layer and keeps the
// connection alive with pings.
type session struct {
	conn   *websocket.Conn
	call   *call.Call
	check  *Validator
	logger telemetry.Logger

	// writeMu serializes writes: gorilla connections do not allow concurrent
	// writers, and error frames go out from the read pump.
	writeMu sync.Mutex
}

func newSession(conn *websocket.Conn, c *call.Call, check *Validator, logger telemetry.Logger) *session {
	return &session{conn: conn, call: c, check: check, logger: logger}
}

// run pumps the connection until the call ends or the peer goes away. It
// returns once both pumps have stopped; the call is closed by then.
func (s *session) run(ctx context.Context) error {
	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(ctx)
	}()

	err := s.readPump(ctx)

	// Abandon the call if it is still live; this closes Actions and lets the
	// write pump finish.
	_ = s.call.Close()
	<-done
	return err
}

// readPump decodes inbound frames and routes them until the connection
// drops, the caller hangs up or the call ends.
func (s *session) readPump(ctx context.Context) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.call.Done():
				// The call is over and the write pump tore the socket down.
				return nil
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("read frame: %w", err)
			}
			return nil
		}
		if s.handleFrame(ctx, data) {
			return nil
		}
	}
}

// handleFrame processes one inbound frame and reports whether the session is
// done reading.
func (s *session) handleFrame(ctx context.Context, data []byte) bool {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.writeError("", "frame is not valid JSON")
		return false
	}
	switch frame.Type {
	case FrameToolSync:
		s.handleToolSync(ctx, frame)
		return false
	case FrameHangup:
		// The caller hung up; abandon whatever the engine was doing.
		_ = s.call.Close()
		return true
	default:
		s.writeError(frame.TurnID, fmt.Sprintf("unknown frame type %q", frame.Type))
		return false
	}
}

func (s *session) handleToolSync(ctx context.Context, frame InboundFrame) {
	if frame.TurnID == "" {
		s.writeError("", "tool_sync requires turn_id")
		return
	}
	if err := s.check.Validate(frame.Payload); err != nil {
		s.logger.Debug(ctx, "tool sync rejected", "call_id", s.call.ID(), "turn_id", frame.TurnID, "err", err)
		s.writeError(frame.TurnID, "invalid tool_sync payload: "+err.Error())
		return
	}
	var p ToolPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		s.writeError(frame.TurnID, "invalid tool_sync payload: "+err.Error())
		return
	}
	if err := s.call.Post(ctx, p.event(frame.TurnID)); err != nil {
		switch {
		case errors.Is(err, call.ErrMailboxFull):
			s.writeError(frame.TurnID, "agent is busy, retry shortly")
		case errors.Is(err, call.ErrCallEnded):
			// The write pump is already delivering the closing frame.
		default:
			s.logger.Error(ctx, "post tool sync failed", "call_id", s.call.ID(), "turn_id", frame.TurnID, "err", err)
			s.writeError(frame.TurnID, "tool sync could not be processed")
		}
	}
}

// writePump forwards engine actions and sends keepalive pings. When the call
// ends it writes a close frame and tears the socket down, which unblocks the
// read pump.
func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case act, ok := <-s.call.Actions():
			if !ok {
				s.closeConn(websocket.CloseNormalClosure)
				return
			}
			frame, facing := actionFrame(act)
			if !facing {
				continue
			}
			if err := s.writeFrame(frame); err != nil {
				s.logger.Error(ctx, "write frame failed", "call_id", s.call.ID(), "type", frame.Type, "err", err)
				_ = s.call.Close()
				s.closeConn(websocket.CloseAbnormalClosure)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				_ = s.call.Close()
				s.closeConn(websocket.CloseAbnormalClosure)
				return
			}
		case <-ctx.Done():
			_ = s.call.Close()
			s.closeConn(websocket.CloseGoingAway)
			return
		}
	}
}

func (s *session) writeError(turnID, msg string) {
	if err := s.writeFrame(OutboundFrame{Type: FrameError, TurnID: turnID, Error: msg}); err != nil {
		s.logger.Debug(context.Background(), "write error frame failed", "call_id", s.call.ID(), "err", err)
	}
}

func (s *session) writeFrame(frame OutboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frame.Type, err)
	}
	return s.write(websocket.TextMessage, data)
}

func (s *session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *session) closeConn(code int) {
	_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""))
	_ = s.conn.Close()
}
