package connection

import "errors"

var (
	ErrAlreadyExists = errors.New("connection already exists")
	ErrNotFound      = errors.New("connection not found")
)

// Binding is the room a live connection currently belongs to.
type Binding struct {
	RoomID      string
	DisplayName string
}
