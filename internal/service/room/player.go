package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/relay"
)

type ControlParams struct {
	ConnID      string
	RoomID      string
	Action      domain.Action
	CurrentTime float64
}

type ControlResponse struct {
	Video domain.Video
}

// Control applies play, pause or seek from the room master and relays it to
// every other member. Anyone else gets ErrPermissionDenied and the video is
// left untouched.
func (s service) Control(ctx context.Context, params *ControlParams) (ControlResponse, error) {
	rm, err := s.lockCurrentRoom(params.ConnID, params.RoomID)
	if err != nil {
		return ControlResponse{}, err
	}
	defer rm.Unlock()

	video, err := rm.ApplyControl(params.ConnID, params.Action, params.CurrentTime)
	if err != nil {
		if errors.Is(err, domain.ErrNotMaster) {
			s.metrics.RecordControlDenied("control")
			s.logger.InfoContext(ctx, "control denied", "room_id", rm.ID())
			return ControlResponse{}, ErrPermissionDenied
		}

		return ControlResponse{}, fmt.Errorf("failed to apply control: %w", err)
	}

	if _, err := s.sender.Relay(ctx, rm.MemberIDs(), params.ConnID, relay.Output{
		Type: relay.TypeSync,
		Payload: ControlSyncOutput{
			Action:      params.Action,
			CurrentTime: params.CurrentTime,
		},
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to relay control", "error", err)
	}

	return ControlResponse{Video: video}, nil
}

type ChangeSourceParams struct {
	ConnID    string
	RoomID    string
	SourceRef string
	Kind      domain.SourceKind
}

type ChangeSourceResponse struct {
	Video domain.Video
}

// ChangeSource loads a new video in the room. Playback restarts paused at 0.
func (s service) ChangeSource(ctx context.Context, params *ChangeSourceParams) (ChangeSourceResponse, error) {
	rm, err := s.lockCurrentRoom(params.ConnID, params.RoomID)
	if err != nil {
		return ChangeSourceResponse{}, err
	}
	defer rm.Unlock()

	video, err := rm.ChangeSource(params.ConnID, params.SourceRef, params.Kind)
	if err != nil {
		if errors.Is(err, domain.ErrNotMaster) {
			s.metrics.RecordControlDenied("change-source")
			s.logger.InfoContext(ctx, "change source denied", "room_id", rm.ID())
			return ChangeSourceResponse{}, ErrPermissionDenied
		}

		return ChangeSourceResponse{}, fmt.Errorf("failed to change source: %w", err)
	}

	s.logger.InfoContext(ctx, "source changed", "room_id", rm.ID(), "kind", video.Kind)
	if _, err := s.sender.Relay(ctx, rm.MemberIDs(), params.ConnID, relay.Output{
		Type: relay.TypeSync,
		Payload: SourceSyncOutput{
			Action:    ActionChangeSource,
			SourceRef: video.SourceRef,
			Kind:      video.Kind,
		},
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to relay source change", "error", err)
	}

	return ChangeSourceResponse{Video: video}, nil
}
