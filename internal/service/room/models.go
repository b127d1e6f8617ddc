package room

import (
	"time"

	"github.com/sharetube/syncroom/internal/domain"
)

type RoomCreatedOutput struct {
	RoomID   string `json:"room_id"`
	MasterID string `json:"master_id"`
}

type RoomJoinedOutput struct {
	domain.RoomSnapshot
	IsMaster bool `json:"is_master"`
}

type RoomNotFoundOutput struct {
	RoomID string `json:"room_id"`
}

type RoomLeftOutput struct {
	RoomID string `json:"room_id"`
}

type MemberListOutput struct {
	Members  []domain.Member `json:"members"`
	MasterID string          `json:"master_id"`
}

type MasterChangedOutput struct {
	MasterID   string `json:"master_id"`
	MasterName string `json:"master_name"`
}

type ControlSyncOutput struct {
	Action      domain.Action `json:"action"`
	CurrentTime float64       `json:"current_time"`
}

const ActionChangeSource = "change-source"

type SourceSyncOutput struct {
	Action    string            `json:"action"`
	SourceRef string            `json:"source_ref"`
	Kind      domain.SourceKind `json:"kind"`
}

type UploadProgressOutput struct {
	MemberID string  `json:"member_id"`
	Progress float64 `json:"progress"`
	Speed    float64 `json:"speed"`
	ETA      float64 `json:"eta"`
	Filename string  `json:"filename"`
}

type RoomInfo struct {
	RoomID       string       `json:"room_id"`
	MembersCount int          `json:"members_count"`
	MasterID     string       `json:"master_id"`
	MasterName   string       `json:"master_name"`
	Video        domain.Video `json:"video"`
	CreatedAt    time.Time    `json:"created_at"`
}
