package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/relay"
	"github.com/sharetube/syncroom/internal/repository/transcript"
)

type SendChatParams struct {
	ConnID  string
	Message string
}

// SendChat stamps the message with the server time and sends it to everyone
// in the room, the author included.
func (s service) SendChat(ctx context.Context, params *SendChatParams) (domain.ChatMessage, error) {
	rm, err := s.lockCurrentRoom(params.ConnID, "")
	if err != nil {
		return domain.ChatMessage{}, err
	}
	defer rm.Unlock()

	author, err := rm.GetMember(params.ConnID)
	if err != nil {
		return domain.ChatMessage{}, ErrNotInRoom
	}

	msg := domain.ChatMessage{
		Author:     author.Name,
		AuthorID:   author.ID,
		Message:    params.Message,
		ServerTime: s.now(),
	}
	s.postChat(ctx, rm, msg)

	return msg, nil
}

type RelayUploadProgressParams struct {
	ConnID   string
	RoomID   string
	Progress float64
	Speed    float64
	ETA      float64
	Filename string
}

// RelayUploadProgress forwards upload status to the other members. Room state
// is never touched.
func (s service) RelayUploadProgress(ctx context.Context, params *RelayUploadProgressParams) error {
	rm, err := s.lockCurrentRoom(params.ConnID, params.RoomID)
	if err != nil {
		return err
	}
	defer rm.Unlock()

	if _, err := s.sender.Relay(ctx, rm.MemberIDs(), params.ConnID, relay.Output{
		Type: relay.TypeUploadProgress,
		Payload: UploadProgressOutput{
			MemberID: params.ConnID,
			Progress: params.Progress,
			Speed:    params.Speed,
			ETA:      params.ETA,
			Filename: params.Filename,
		},
	}); err != nil {
		return fmt.Errorf("failed to relay upload progress: %w", err)
	}

	return nil
}

// GetTranscript returns the archived chat of the current session of a live
// room. Earlier sessions under the same room id are never visible.
func (s service) GetTranscript(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	rm, err := s.lockRoom(normalizeRoomID(roomID))
	if err != nil {
		return nil, err
	}
	sessionID := rm.SessionID()
	rm.Unlock()

	msgs, err := s.transcriptRepo.List(ctx, sessionID)
	if err != nil {
		if errors.Is(err, transcript.ErrTranscriptNotFound) {
			return []domain.ChatMessage{}, nil
		}

		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	return msgs, nil
}
