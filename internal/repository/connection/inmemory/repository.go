package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/syncroom/internal/repository/connection"
)

type entry struct {
	binding *connection.Binding
}

// repo maps live connection ids to the room they are in. It never owns rooms,
// entries only exist between Register and Unregister.
type repo struct {
	entries map[string]*entry
	mu      sync.RWMutex
	logger  *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

func (r *repo) Register(connID string) error {
	funcName := "connection.inmemory.Register"
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug(funcName, "conn_id", connID)
	if _, ok := r.entries[connID]; ok {
		r.logger.Info(funcName, "error", connection.ErrAlreadyExists)
		return connection.ErrAlreadyExists
	}

	r.entries[connID] = &entry{}
	return nil
}

// Unregister drops the connection and returns the room it was bound to, if any.
func (r *repo) Unregister(connID string) (connection.Binding, bool) {
	funcName := "connection.inmemory.Unregister"
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	delete(r.entries, connID)
	if !ok || e.binding == nil {
		r.logger.Debug(funcName, "conn_id", connID, "bound", false)
		return connection.Binding{}, false
	}

	r.logger.Debug(funcName, "conn_id", connID, "room_id", e.binding.RoomID)
	return *e.binding, true
}

// Bind fails with ErrNotFound when the connection has already been unregistered.
func (r *repo) Bind(connID string, binding connection.Binding) error {
	funcName := "connection.inmemory.Bind"
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		r.logger.Info(funcName, "conn_id", connID, "error", connection.ErrNotFound)
		return connection.ErrNotFound
	}

	e.binding = &binding
	r.logger.Debug(funcName, "conn_id", connID, "room_id", binding.RoomID)
	return nil
}

// Unbind clears the room of a connection only if it still points at roomID.
func (r *repo) Unbind(connID, roomID string) {
	funcName := "connection.inmemory.Unbind"
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok || e.binding == nil || e.binding.RoomID != roomID {
		return
	}

	e.binding = nil
	r.logger.Debug(funcName, "conn_id", connID, "room_id", roomID)
}

func (r *repo) Get(connID string) (connection.Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[connID]
	if !ok || e.binding == nil {
		return connection.Binding{}, connection.ErrNotFound
	}

	return *e.binding, nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
