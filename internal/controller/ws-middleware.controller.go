package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

var ErrRateLimited = errors.New("rate limit exceeded")

const unknownEventLabel = "unknown"

func (c controller) wsRequestIdWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, payload any) error {
			ctx = ctxlogger.AppendCtx(ctx, slog.String("ws_request_id", c.generateTimeBasedId()))
			return next(ctx, payload)
		}
	}
}

// loggerWSMw also counts every frame. Types without a route share one label.
func (c controller) loggerWSMw(mux *wsrouter.WSRouter) wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, payload any) error {
			messageType := wsrouter.GetMessageTypeFromCtx(ctx)
			ctx = ctxlogger.AppendCtx(ctx, slog.String("message_type", messageType))
			c.logger.DebugContext(ctx, "websocket message received", "payload", payload)

			label := messageType
			if !mux.HasRoute(label) {
				label = unknownEventLabel
			}
			c.metrics.RecordEvent(label)

			start := time.Now()
			err := next(ctx, payload)
			c.logger.DebugContext(ctx, "websocket message handled",
				"processing_time_us", time.Since(start).Microseconds(),
			)

			return err
		}
	}
}

func (c controller) rateLimitWSMw() wsrouter.Middleware {
	return func(next wsrouter.HandlerFunc[any]) wsrouter.HandlerFunc[any] {
		return func(ctx context.Context, payload any) error {
			if limiter := c.getLimiterFromCtx(ctx); limiter != nil && !limiter.Allow() {
				c.metrics.RecordRateLimited()
				return ErrRateLimited
			}

			return next(ctx, payload)
		}
	}
}
