package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc[T any] func(ctx context.Context, payload T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

// ErrorHandler receives every error returned while routing a single message,
// middleware errors included. It is never called for read errors, those end
// ServeConn.
type ErrorHandler func(ctx context.Context, err error)

type route struct {
	decode  func(json.RawMessage) (any, error)
	handler HandlerFunc[any]
}

type WSRouter struct {
	routes       map[string]route
	middlewares  []Middleware
	validate     func(any) error
	errorHandler ErrorHandler
}

func New() *WSRouter {
	return &WSRouter{
		routes:       make(map[string]route),
		errorHandler: func(context.Context, error) {},
	}
}

func (r *WSRouter) Use(mw ...Middleware) {
	r.middlewares = append(r.middlewares, mw...)
}

// SetValidator installs a check run on every decoded payload before the handler.
func (r *WSRouter) SetValidator(validate func(any) error) {
	r.validate = validate
}

func (r *WSRouter) SetErrorHandler(h ErrorHandler) {
	r.errorHandler = h
}

// Handle registers a typed handler. The payload is decoded into T and
// validated right before the handler runs.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = route{
		decode: func(raw json.RawMessage) (any, error) {
			var payload T
			if len(raw) == 0 || string(raw) == "null" {
				raw = json.RawMessage("{}")
			}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			}
			return payload, nil
		},
		handler: func(ctx context.Context, payload any) error {
			return handler(ctx, payload.(T))
		},
	}
}

// HasRoute reports whether a handler is registered for messageType.
func (r *WSRouter) HasRoute(messageType string) bool {
	_, ok := r.routes[messageType]
	return ok
}

func (r *WSRouter) dispatch(ctx context.Context, msg *message) error {
	rt, ok := r.routes[msg.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}

	payload, err := rt.decode(msg.Payload)
	if err != nil {
		return err
	}

	if r.validate != nil {
		if err := r.validate(payload); err != nil {
			return err
		}
	}

	return rt.handler(ctx, payload)
}

// ServeConn reads messages until the connection fails and routes each one
// in order. It does not close the connection.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		r.ServeMessage(ctx, data)
	}
}

// ServeMessage routes one raw frame. The middleware chain wraps the whole
// message, so it also sees frames that fail to decode or route; middlewares
// receive the raw json payload. Every error goes to the error handler.
func (r *WSRouter) ServeMessage(ctx context.Context, data []byte) {
	var msg message
	envelopeErr := json.Unmarshal(data, &msg)

	h := HandlerFunc[any](func(ctx context.Context, _ any) error {
		if envelopeErr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, envelopeErr)
		}

		return r.dispatch(ctx, &msg)
	})
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}

	msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)
	if err := h(msgCtx, msg.Payload); err != nil {
		r.errorHandler(msgCtx, err)
	}
}
