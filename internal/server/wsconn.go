package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/xxgiasonxx/voice-ordering-system/internal/stream"
)

// wsConn adapts a coder/websocket connection to [stream.Conn].
type wsConn struct {
	conn *websocket.Conn
}

var _ stream.Conn = (*wsConn)(nil)

// ReadFrame returns the next binary frame. Text frames are not part of
// the client protocol and are skipped.
func (c *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteEvent(ctx context.Context, ev stream.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}

func (c *wsConn) Close(reason stream.CloseReason, msg string) error {
	return c.conn.Close(closeStatus(reason), msg)
}

// closeStatus maps stream close reasons onto WebSocket close codes.
func closeStatus(r stream.CloseReason) websocket.StatusCode {
	switch r {
	case stream.CloseTimeout:
		return websocket.StatusGoingAway
	case stream.CloseUnauthorized:
		return websocket.StatusPolicyViolation
	case stream.CloseInternal:
		return websocket.StatusInternalError
	default:
		return websocket.StatusNormalClosure
	}
}
