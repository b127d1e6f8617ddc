package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"golang.org/x/time/rate"
)

func (c controller) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	connId := uuid.NewString()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = ctxlogger.AppendCtx(ctx, slog.String("conn_id", connId))
	ctx = context.WithValue(ctx, connIdCtxKey, connId)
	ctx = context.WithValue(ctx, limiterCtxKey, c.newLimiter())

	out := newOutbox(conn, c.cfg.SendQueueSize)
	c.hub.Attach(connId, out)
	defer out.Close()
	defer c.hub.Detach(connId)

	if err := c.roomService.ConnectMember(ctx, &room.ConnectMemberParams{ConnID: connId}); err != nil {
		c.logger.WarnContext(ctx, "failed to connect member", "error", err)
		return
	}
	defer c.disconnect(ctx, connId)

	c.metrics.RecordConnectionOpened()
	defer c.metrics.RecordConnectionClosed()

	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}
	pongWait := c.cfg.PingPeriod * 2
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writePump(ctx, out)

	c.logger.InfoContext(ctx, "websocket connected", "remote_addr", r.RemoteAddr)
	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "websocket closed", "reason", err)
	}
}

func (c controller) disconnect(ctx context.Context, connId string) {
	c.roomService.DisconnectMember(ctx, connId)
}

func (c controller) newLimiter() *rate.Limiter {
	if c.cfg.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	burst := c.cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(c.cfg.MessagesPerSecond), burst)
}
