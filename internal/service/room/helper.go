package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/relay"
	"github.com/sharetube/syncroom/internal/repository/connection"
	"github.com/sharetube/syncroom/internal/repository/room"
)

const (
	roomIDAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	systemAuthorName = "system"
)

func normalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

func (s service) isValidRoomID(roomID string) bool {
	if len(roomID) != s.cfg.RoomIDLength {
		return false
	}

	for _, c := range roomID {
		if !strings.ContainsRune(roomIDAlphabet, c) {
			return false
		}
	}

	return true
}

// lockRoom returns the room with its lock held. A room that was closed while
// the caller waited for the lock counts as gone.
func (s service) lockRoom(roomID string) (*domain.Room, error) {
	rm, err := s.roomRepo.Get(roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}

		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	rm.Lock()
	if rm.IsClosed() {
		rm.Unlock()
		return nil, ErrRoomNotFound
	}

	return rm, nil
}

// lockJoinRooms locks the join target together with the room the connection
// is leaving, if that one still exists. Both locks are taken in room id order
// so two connections swapping rooms cannot deadlock.
func (s service) lockJoinRooms(targetID, prevID string) (*domain.Room, *domain.Room, error) {
	target, err := s.roomRepo.Get(targetID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return nil, nil, ErrRoomNotFound
		}

		return nil, nil, fmt.Errorf("failed to get room: %w", err)
	}

	var prev *domain.Room
	if prevID != "" && prevID != targetID {
		if p, err := s.roomRepo.Get(prevID); err == nil {
			prev = p
		}
	}

	if prev != nil && prev.ID() < target.ID() {
		prev.Lock()
		target.Lock()
	} else {
		target.Lock()
		if prev != nil {
			prev.Lock()
		}
	}

	if target.IsClosed() {
		target.Unlock()
		if prev != nil {
			prev.Unlock()
		}
		return nil, nil, ErrRoomNotFound
	}

	if prev != nil && prev.IsClosed() {
		prev.Unlock()
		prev = nil
	}

	return target, prev, nil
}

// lockCurrentRoom returns the locked room the connection is bound to. When
// requestedRoomID is set it must name that room.
func (s service) lockCurrentRoom(connID, requestedRoomID string) (*domain.Room, error) {
	binding, err := s.connRepo.Get(connID)
	if err != nil {
		return nil, ErrNotInRoom
	}

	if requestedRoomID != "" && normalizeRoomID(requestedRoomID) != binding.RoomID {
		return nil, ErrRoomMismatch
	}

	rm, err := s.lockRoom(binding.RoomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, ErrNotInRoom
		}

		return nil, err
	}

	if _, err := rm.GetMember(connID); err != nil {
		rm.Unlock()
		return nil, ErrNotInRoom
	}

	return rm, nil
}

// bindMember binds the connection to rm and adds it as a member. Must be
// called with the room lock held. The registry binding comes first so a
// connection that has already unregistered never ends up in a room.
func (s service) bindMember(rm *domain.Room, member domain.Member) (bool, error) {
	if err := s.connRepo.Bind(member.ID, connection.Binding{
		RoomID:      rm.ID(),
		DisplayName: member.Name,
	}); err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return false, ErrConnectionClosed
		}

		return false, fmt.Errorf("failed to bind connection: %w", err)
	}

	added, err := rm.AddMember(member)
	if err != nil {
		s.connRepo.Unbind(member.ID, rm.ID())
		if errors.Is(err, domain.ErrMembersLimitReached) {
			return false, ErrMembersLimitReached
		}

		return false, fmt.Errorf("failed to add member: %w", err)
	}

	return added, nil
}

// destroyRoom tears down an empty room. Must be called with the room lock held.
func (s service) destroyRoom(ctx context.Context, rm *domain.Room) {
	rm.Close()
	s.archiver.Purge(rm.SessionID())
	if err := s.roomRepo.Delete(rm); err != nil {
		s.logger.WarnContext(ctx, "failed to delete room", "room_id", rm.ID(), "error", err)
		return
	}

	s.metrics.RecordRoomDestroyed()
	s.logger.InfoContext(ctx, "room destroyed", "room_id", rm.ID())
}

func (s service) broadcastMemberList(ctx context.Context, rm *domain.Room) {
	s.broadcast(ctx, rm, relay.Output{
		Type: relay.TypeMemberList,
		Payload: MemberListOutput{
			Members:  rm.Members(),
			MasterID: rm.MasterID(),
		},
	})
}

func (s service) broadcastMasterChanged(ctx context.Context, rm *domain.Room, master domain.Member) {
	s.broadcast(ctx, rm, relay.Output{
		Type: relay.TypeMasterChanged,
		Payload: MasterChangedOutput{
			MasterID:   master.ID,
			MasterName: master.Name,
		},
	})
}

// postSystemNotice records a system chat message and sends it to the room.
func (s service) postSystemNotice(ctx context.Context, rm *domain.Room, message string) {
	msg := domain.ChatMessage{
		Author:     systemAuthorName,
		Message:    message,
		ServerTime: s.now(),
		System:     true,
	}
	s.postChat(ctx, rm, msg)
}

func (s service) postChat(ctx context.Context, rm *domain.Room, msg domain.ChatMessage) {
	rm.AppendChat(msg)
	s.archiver.Record(rm.SessionID(), msg)
	s.broadcast(ctx, rm, relay.Output{Type: relay.TypeChat, Payload: msg})
}

func (s service) broadcast(ctx context.Context, rm *domain.Room, out relay.Output) {
	if _, err := s.sender.Broadcast(ctx, rm.MemberIDs(), out); err != nil {
		s.logger.ErrorContext(ctx, "failed to broadcast", "type", out.Type, "error", err)
	}
}

func (s service) send(ctx context.Context, connID string, out relay.Output) {
	if err := s.sender.Send(ctx, connID, out); err != nil {
		s.logger.DebugContext(ctx, "failed to send", "type", out.Type, "conn_id", connID, "error", err)
	}
}
