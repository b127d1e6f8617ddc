package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/relay"
	"github.com/sharetube/syncroom/internal/service/room"
)

type EmptyInput struct{}

func (c controller) handleAlive(_ context.Context, _ EmptyInput) error {
	return nil
}

type CreateRoomInput struct {
	DisplayName string `json:"display_name" validate:"required,max=32"`
	RoomID      string `json:"room_id" validate:"omitempty,len=6,alphanum"`
}

func (c controller) handleCreateRoom(ctx context.Context, input CreateRoomInput) error {
	if _, err := c.roomService.CreateRoom(ctx, &room.CreateRoomParams{
		ConnID:      c.getConnIdFromCtx(ctx),
		DisplayName: input.DisplayName,
		RoomID:      input.RoomID,
	}); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

type JoinRoomInput struct {
	RoomID      string `json:"room_id" validate:"required,len=6,alphanum"`
	DisplayName string `json:"display_name" validate:"required,max=32"`
}

func (c controller) handleJoinRoom(ctx context.Context, input JoinRoomInput) error {
	_, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		ConnID:      c.getConnIdFromCtx(ctx),
		RoomID:      input.RoomID,
		DisplayName: input.DisplayName,
	})
	if errors.Is(err, room.ErrRoomNotFound) {
		c.logger.InfoContext(ctx, "room not found", "room_id", input.RoomID)
		c.send(ctx, relay.Output{
			Type:    relay.TypeRoomNotFound,
			Payload: room.RoomNotFoundOutput{RoomID: input.RoomID},
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, _ EmptyInput) error {
	if err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{
		ConnID: c.getConnIdFromCtx(ctx),
	}); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

type PromoteMemberInput struct {
	MemberID string `json:"member_id" validate:"required"`
}

func (c controller) handlePromoteMember(ctx context.Context, input PromoteMemberInput) error {
	if _, err := c.roomService.PromoteMember(ctx, &room.PromoteMemberParams{
		ConnID:   c.getConnIdFromCtx(ctx),
		MemberID: input.MemberID,
	}); err != nil {
		return fmt.Errorf("failed to promote member: %w", err)
	}

	return nil
}

type ControlInput struct {
	RoomID      string   `json:"room_id" validate:"omitempty,len=6,alphanum"`
	Action      string   `json:"action" validate:"required,oneof=play pause seek"`
	CurrentTime *float64 `json:"current_time" validate:"required,gte=0"`
}

func (c controller) handleControl(ctx context.Context, input ControlInput) error {
	if _, err := c.roomService.Control(ctx, &room.ControlParams{
		ConnID:      c.getConnIdFromCtx(ctx),
		RoomID:      input.RoomID,
		Action:      domain.Action(input.Action),
		CurrentTime: *input.CurrentTime,
	}); err != nil {
		return fmt.Errorf("failed to apply control: %w", err)
	}

	return nil
}

type ChangeSourceInput struct {
	RoomID    string `json:"room_id" validate:"omitempty,len=6,alphanum"`
	SourceRef string `json:"source_ref" validate:"required,max=2048"`
	Kind      string `json:"kind" validate:"required,oneof=remote uploaded"`
}

func (c controller) handleChangeSource(ctx context.Context, input ChangeSourceInput) error {
	if _, err := c.roomService.ChangeSource(ctx, &room.ChangeSourceParams{
		ConnID:    c.getConnIdFromCtx(ctx),
		RoomID:    input.RoomID,
		SourceRef: input.SourceRef,
		Kind:      domain.SourceKind(input.Kind),
	}); err != nil {
		return fmt.Errorf("failed to change source: %w", err)
	}

	return nil
}

type ChatInput struct {
	Message string `json:"message" validate:"required,max=1000"`
}

func (c controller) handleChat(ctx context.Context, input ChatInput) error {
	if _, err := c.roomService.SendChat(ctx, &room.SendChatParams{
		ConnID:  c.getConnIdFromCtx(ctx),
		Message: input.Message,
	}); err != nil {
		return fmt.Errorf("failed to send chat: %w", err)
	}

	return nil
}

type UploadProgressInput struct {
	RoomID   string  `json:"room_id" validate:"omitempty,len=6,alphanum"`
	Progress float64 `json:"progress" validate:"gte=0,lte=100"`
	Speed    float64 `json:"speed" validate:"gte=0"`
	ETA      float64 `json:"eta" validate:"gte=0"`
	Filename string  `json:"filename" validate:"max=255"`
}

func (c controller) handleUploadProgress(ctx context.Context, input UploadProgressInput) error {
	if err := c.roomService.RelayUploadProgress(ctx, &room.RelayUploadProgressParams{
		ConnID:   c.getConnIdFromCtx(ctx),
		RoomID:   input.RoomID,
		Progress: input.Progress,
		Speed:    input.Speed,
		ETA:      input.ETA,
		Filename: input.Filename,
	}); err != nil {
		return fmt.Errorf("failed to relay upload progress: %w", err)
	}

	return nil
}
