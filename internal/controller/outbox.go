package controller

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncroom/internal/relay"
)

// outbox is the bounded send queue of one websocket. Only writePump writes
// data frames to the socket.
type outbox struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newOutbox(conn *websocket.Conn, size int) *outbox {
	return &outbox{
		conn: conn,
		send: make(chan []byte, size),
		done: make(chan struct{}),
	}
}

func (o *outbox) TrySend(data []byte) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return relay.ErrSinkClosed
	}

	select {
	case o.send <- data:
		return nil
	default:
		return relay.ErrBackpressure
	}
}

// Close stops the write pump and closes the socket, which also ends the read
// loop of the connection.
func (o *outbox) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.done)
	o.mu.Unlock()

	return o.conn.Close()
}

func (c controller) writePump(ctx context.Context, o *outbox) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		case data := <-o.send:
			if err := o.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.DebugContext(ctx, "failed to set write deadline", "error", err)
				o.Close()
				return
			}
			if err := o.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.DebugContext(ctx, "failed to write message", "error", err)
				o.Close()
				return
			}
		case <-ticker.C:
			if err := o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.DebugContext(ctx, "failed to write ping", "error", err)
				o.Close()
				return
			}
		}
	}
}
