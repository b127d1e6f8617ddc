package relay

// Outgoing event types.
const (
	TypeRoomCreated    = "room-created"
	TypeRoomJoined     = "room-joined"
	TypeRoomNotFound   = "room-not-found"
	TypeRoomLeft       = "room-left"
	TypeMemberList     = "member-list"
	TypeMasterChanged  = "master-changed"
	TypeSync           = "sync"
	TypeControlDenied  = "control-denied"
	TypeChat           = "chat"
	TypeUploadProgress = "upload-progress"
	TypeError          = "error"
)

// excludesSender lists the event types whose originator never receives its
// own copy. Every other type goes to the whole room.
var excludesSender = map[string]bool{
	TypeSync:           true,
	TypeUploadProgress: true,
}

func ExcludesSender(messageType string) bool {
	return excludesSender[messageType]
}

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
