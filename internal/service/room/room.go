package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/relay"
	"github.com/sharetube/syncroom/internal/repository/room"
)

type ConnectMemberParams struct {
	ConnID string
}

// ConnectMember registers a freshly opened connection. It is not in any room yet.
func (s service) ConnectMember(ctx context.Context, params *ConnectMemberParams) error {
	if err := s.connRepo.Register(params.ConnID); err != nil {
		s.logger.InfoContext(ctx, "failed to register connection", "error", err)
		return fmt.Errorf("failed to register connection: %w", err)
	}

	return nil
}

type CreateRoomParams struct {
	ConnID      string
	DisplayName string
	RoomID      string
}

type CreateRoomResponse struct {
	RoomID   string
	MasterID string
}

// CreateRoom opens a room with the sender as its only member and master. A
// requested id is used when free, otherwise a fresh one is generated.
func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	requested := normalizeRoomID(params.RoomID)
	if requested != "" && !s.isValidRoomID(requested) {
		return CreateRoomResponse{}, ErrInvalidRoomID
	}

	if err := s.leaveCurrentRoom(ctx, params.ConnID); err != nil {
		return CreateRoomResponse{}, err
	}

	creator := domain.Member{
		ID:       params.ConnID,
		Name:     params.DisplayName,
		JoinedAt: s.now(),
	}

	rm, err := s.createLockedRoom(ctx, requested, creator)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to create room", "error", err)
		return CreateRoomResponse{}, err
	}
	defer rm.Unlock()

	if _, err := s.bindMember(rm, creator); err != nil {
		rm.Close()
		if derr := s.roomRepo.Delete(rm); derr != nil {
			s.logger.WarnContext(ctx, "failed to delete room", "room_id", rm.ID(), "error", derr)
		}
		s.logger.InfoContext(ctx, "failed to bind creator", "room_id", rm.ID(), "error", err)
		return CreateRoomResponse{}, err
	}

	s.metrics.RecordRoomCreated()
	s.metrics.RecordMemberJoined()
	s.logger.InfoContext(ctx, "room created", "room_id", rm.ID(), "master_id", creator.ID)

	s.send(ctx, creator.ID, relay.Output{
		Type: relay.TypeRoomCreated,
		Payload: RoomCreatedOutput{
			RoomID:   rm.ID(),
			MasterID: rm.MasterID(),
		},
	})
	s.broadcastMemberList(ctx, rm)

	return CreateRoomResponse{
		RoomID:   rm.ID(),
		MasterID: rm.MasterID(),
	}, nil
}

// createLockedRoom stores a new room under the first free id and returns it
// locked. The requested id, if any, is tried first.
func (s service) createLockedRoom(ctx context.Context, requested string, creator domain.Member) (*domain.Room, error) {
	candidate := requested
	for attempt := 0; attempt < s.cfg.RoomIDAttempts; attempt++ {
		if candidate == "" {
			candidate = s.generator.GenerateRandomString(s.cfg.RoomIDLength)
		}

		rm := domain.NewRoom(candidate, creator, s.cfg.MembersLimit, s.cfg.ChatHistoryLimit)
		rm.Lock()
		err := s.roomRepo.Create(rm)
		if err == nil {
			return rm, nil
		}
		rm.Unlock()

		if !errors.Is(err, room.ErrRoomAlreadyExists) {
			return nil, fmt.Errorf("failed to store room: %w", err)
		}

		s.logger.DebugContext(ctx, "room id taken", "room_id", candidate)
		candidate = ""
	}

	return nil, ErrRoomIDExhausted
}

type JoinRoomParams struct {
	ConnID      string
	RoomID      string
	DisplayName string
}

type JoinRoomResponse struct {
	Snapshot domain.RoomSnapshot
	IsMaster bool
}

// JoinRoom adds the sender to an existing room. Joining the room the sender is
// already in only updates its display name. A failed join leaves the sender in
// its current room.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	roomID := normalizeRoomID(params.RoomID)

	var prevRoomID string
	if binding, err := s.connRepo.Get(params.ConnID); err == nil && binding.RoomID != roomID {
		prevRoomID = binding.RoomID
	}

	rm, prev, err := s.lockJoinRooms(roomID, prevRoomID)
	if err != nil {
		return JoinRoomResponse{}, err
	}
	defer rm.Unlock()

	if !rm.Accepts(params.ConnID) {
		if prev != nil {
			prev.Unlock()
		}
		s.logger.InfoContext(ctx, "failed to join room", "room_id", roomID, "error", ErrMembersLimitReached)
		return JoinRoomResponse{}, ErrMembersLimitReached
	}

	if prevRoomID != "" {
		s.connRepo.Unbind(params.ConnID, prevRoomID)
		if prev != nil {
			err := s.removeLockedMember(ctx, prev, params.ConnID)
			prev.Unlock()
			if err != nil && !errors.Is(err, ErrNotInRoom) {
				return JoinRoomResponse{}, err
			}
		}
	}

	member := domain.Member{
		ID:       params.ConnID,
		Name:     params.DisplayName,
		JoinedAt: s.now(),
	}
	added, err := s.bindMember(rm, member)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to join room", "room_id", roomID, "error", err)
		return JoinRoomResponse{}, err
	}

	snapshot := rm.Snapshot()
	isMaster := rm.IsMaster(member.ID)
	s.send(ctx, member.ID, relay.Output{
		Type: relay.TypeRoomJoined,
		Payload: RoomJoinedOutput{
			RoomSnapshot: snapshot,
			IsMaster:     isMaster,
		},
	})
	s.broadcastMemberList(ctx, rm)

	if added {
		s.metrics.RecordMemberJoined()
		s.postSystemNotice(ctx, rm, member.Name+" joined the room")
		s.logger.InfoContext(ctx, "member joined", "room_id", roomID, "members", rm.MembersCount())
	}

	return JoinRoomResponse{
		Snapshot: snapshot,
		IsMaster: isMaster,
	}, nil
}

type LeaveRoomParams struct {
	ConnID string
}

// LeaveRoom removes the sender from its room but keeps the connection open.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) error {
	binding, err := s.connRepo.Get(params.ConnID)
	if err != nil {
		return ErrNotInRoom
	}

	if err := s.leaveCurrentRoom(ctx, params.ConnID); err != nil {
		return err
	}

	s.send(ctx, params.ConnID, relay.Output{
		Type:    relay.TypeRoomLeft,
		Payload: RoomLeftOutput{RoomID: binding.RoomID},
	})

	return nil
}

// DisconnectMember is called once when a connection closes. The registry
// entry is always dropped, the member is removed from its room if it had one.
func (s service) DisconnectMember(ctx context.Context, connID string) {
	binding, ok := s.connRepo.Unregister(connID)
	if !ok {
		return
	}

	if err := s.removeMember(ctx, binding.RoomID, connID); err != nil {
		s.logger.DebugContext(ctx, "disconnected member was not in its room", "room_id", binding.RoomID, "error", err)
	}
}

func (s service) leaveCurrentRoom(ctx context.Context, connID string) error {
	binding, err := s.connRepo.Get(connID)
	if err != nil {
		return nil
	}

	s.connRepo.Unbind(connID, binding.RoomID)
	if err := s.removeMember(ctx, binding.RoomID, connID); err != nil && !errors.Is(err, ErrNotInRoom) {
		return err
	}

	return nil
}

// removeMember drops connID from the room. An emptied room is destroyed. When
// the master leaves the earliest-joined survivor takes over.
func (s service) removeMember(ctx context.Context, roomID, connID string) error {
	rm, err := s.lockRoom(roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return ErrNotInRoom
		}

		return err
	}
	defer rm.Unlock()

	return s.removeLockedMember(ctx, rm, connID)
}

// removeLockedMember is removeMember for a room whose lock the caller holds.
func (s service) removeLockedMember(ctx context.Context, rm *domain.Room, connID string) error {
	res, err := rm.RemoveMember(connID)
	if err != nil {
		return ErrNotInRoom
	}

	s.metrics.RecordMemberLeft()
	s.logger.InfoContext(ctx, "member left", "room_id", rm.ID(), "members", rm.MembersCount())

	if res.Empty {
		s.destroyRoom(ctx, rm)
		return nil
	}

	if res.NewMaster != nil {
		s.metrics.RecordMasterChanged("failover")
		s.broadcastMasterChanged(ctx, rm, *res.NewMaster)
	}
	s.broadcastMemberList(ctx, rm)

	s.postSystemNotice(ctx, rm, res.Removed.Name+" left the room")
	if res.NewMaster != nil {
		s.postSystemNotice(ctx, rm, res.NewMaster.Name+" is now the host")
	}

	return nil
}

func (s service) GetRoomInfo(ctx context.Context, roomID string) (RoomInfo, error) {
	rm, err := s.lockRoom(normalizeRoomID(roomID))
	if err != nil {
		return RoomInfo{}, err
	}
	defer rm.Unlock()

	master := rm.Master()
	return RoomInfo{
		RoomID:       rm.ID(),
		MembersCount: rm.MembersCount(),
		MasterID:     master.ID,
		MasterName:   master.Name,
		Video:        rm.Video(),
		CreatedAt:    rm.CreatedAt(),
	}, nil
}

func (s service) RoomsCount() int {
	return s.roomRepo.Len()
}

func (s service) ConnectionsCount() int {
	return s.connRepo.Len()
}
