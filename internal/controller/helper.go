package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/sharetube/syncroom/internal/relay"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/validator"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

const (
	codeMalformedRequest   = "MALFORMED_REQUEST"
	codeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	codeNotInRoom          = "NOT_IN_ROOM"
	codeRoomFull           = "ROOM_FULL"
	codeRoomIDExhausted    = "ROOM_ID_EXHAUSTED"
	codeMemberNotFound     = "MEMBER_NOT_FOUND"
	codeRateLimited        = "RATE_LIMITED"
	codeInternal           = "INTERNAL_ERROR"
)

type ErrorOutput struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Errors  []validator.ValidationError `json:"errors,omitempty"`
}

type ControlDeniedOutput struct {
	Reason string `json:"reason"`
}

// generateTimeBasedId returns a UUIDv7, so ids sort by creation time.
func (c controller) generateTimeBasedId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// send writes a frame to the connection that sent the current message.
func (c controller) send(ctx context.Context, out relay.Output) {
	if err := c.hub.Send(ctx, c.getConnIdFromCtx(ctx), out); err != nil {
		c.logger.DebugContext(ctx, "failed to send", "type", out.Type, "error", err)
	}
}

func (c controller) sendError(ctx context.Context, code, message string, errs []validator.ValidationError) {
	c.send(ctx, relay.Output{
		Type: relay.TypeError,
		Payload: ErrorOutput{
			Code:    code,
			Message: message,
			Errors:  errs,
		},
	})
}

// handleWSError turns a failed message into a reply to its sender only.
// Nothing is ever broadcast from here.
func (c controller) handleWSError(ctx context.Context, err error) {
	var validationErr *validator.Error

	switch {
	case errors.As(err, &validationErr):
		c.logger.InfoContext(ctx, "invalid payload", "error", err)
		c.sendError(ctx, codeMalformedRequest, "payload validation failed", validationErr.Errors)
	case errors.Is(err, wsrouter.ErrInvalidPayload), errors.Is(err, room.ErrInvalidRoomID):
		c.logger.InfoContext(ctx, "malformed request", "error", err)
		c.sendError(ctx, codeMalformedRequest, err.Error(), nil)
	case errors.Is(err, wsrouter.ErrUnknownMessageType):
		c.logger.InfoContext(ctx, "unknown message type", "error", err)
		c.sendError(ctx, codeUnknownMessageType, err.Error(), nil)
	case errors.Is(err, room.ErrPermissionDenied):
		c.send(ctx, relay.Output{
			Type:    relay.TypeControlDenied,
			Payload: ControlDeniedOutput{Reason: "only the room master can do this"},
		})
	case errors.Is(err, room.ErrRoomMismatch):
		c.send(ctx, relay.Output{
			Type:    relay.TypeControlDenied,
			Payload: ControlDeniedOutput{Reason: "room_id does not match your current room"},
		})
	case errors.Is(err, room.ErrNotInRoom):
		c.sendError(ctx, codeNotInRoom, "join a room first", nil)
	case errors.Is(err, room.ErrMembersLimitReached):
		c.sendError(ctx, codeRoomFull, "room is full", nil)
	case errors.Is(err, room.ErrRoomIDExhausted):
		c.sendError(ctx, codeRoomIDExhausted, "could not allocate a room id, try again", nil)
	case errors.Is(err, room.ErrMemberNotFound):
		c.sendError(ctx, codeMemberNotFound, "member not found", nil)
	case errors.Is(err, ErrRateLimited):
		c.sendError(ctx, codeRateLimited, "too many messages", nil)
	case errors.Is(err, room.ErrConnectionClosed):
		c.logger.DebugContext(ctx, "connection closed during request", "error", err)
	default:
		c.logger.ErrorContext(ctx, "failed to handle message", "error", err)
		c.sendError(ctx, codeInternal, "internal error", nil)
	}
}

func (c controller) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.logger.Debug("failed to write json", "error", err)
	}
}
