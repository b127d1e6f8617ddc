package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/room"
)

type repo struct {
	rooms  map[string]*domain.Room
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		rooms:  make(map[string]*domain.Room),
		logger: logger,
	}
}

// Create stores r unless its id is taken. The check and the insert are atomic.
func (r *repo) Create(rm *domain.Room) error {
	funcName := "room.inmemory.Create"
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[rm.ID()]; ok {
		r.logger.Debug(funcName, "room_id", rm.ID(), "error", room.ErrRoomAlreadyExists)
		return room.ErrRoomAlreadyExists
	}

	r.rooms[rm.ID()] = rm
	r.logger.Debug(funcName, "room_id", rm.ID(), "rooms", len(r.rooms))
	return nil
}

func (r *repo) Get(roomID string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, room.ErrRoomNotFound
	}

	return rm, nil
}

// Delete removes the room only if the stored pointer is rm, so a stale teardown
// never evicts a newer room that reused the id.
func (r *repo) Delete(rm *domain.Room) error {
	funcName := "room.inmemory.Delete"
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rooms[rm.ID()]
	if !ok || stored != rm {
		return room.ErrRoomNotFound
	}

	delete(r.rooms, rm.ID())
	r.logger.Debug(funcName, "room_id", rm.ID(), "rooms", len(r.rooms))
	return nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func (r *repo) List() []*domain.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*domain.Room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		rooms = append(rooms, rm)
	}

	return rooms
}
