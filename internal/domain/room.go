package domain

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotMaster = errors.New("member is not the room master")

// Room is a synchronized viewing session. All methods except Lock and Unlock
// expect the caller to hold the room lock.
type Room struct {
	mu        sync.Mutex
	closed    bool
	id        string
	sessionID string
	members   *Members
	masterID  string
	video     Video
	chat      *ChatHistory
	createdAt time.Time
}

type RoomSnapshot struct {
	RoomID      string        `json:"room_id"`
	Video       Video         `json:"video"`
	Members     []Member      `json:"members"`
	MasterID    string        `json:"master_id"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

func NewRoom(id string, creator Member, membersLimit, chatLimit int) *Room {
	return &Room{
		id:        id,
		sessionID: uuid.NewString(),
		members:   NewMembers(creator, membersLimit),
		masterID:  creator.ID,
		video:     NewVideo("", SourceRemote),
		chat:      NewChatHistory(chatLimit),
		createdAt: creator.JoinedAt,
	}
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

// Close marks the room as torn down. Operations that acquire the lock of a
// closed room must treat it as gone.
func (r *Room) Close()         { r.closed = true }
func (r *Room) IsClosed() bool { return r.closed }

func (r *Room) ID() string           { return r.id }

// SessionID identifies this particular room instance. Room ids are reused
// after teardown, session ids never are.
func (r *Room) SessionID() string { return r.sessionID }

func (r *Room) CreatedAt() time.Time { return r.createdAt }
func (r *Room) MasterID() string     { return r.masterID }
func (r *Room) Video() Video         { return r.video }
func (r *Room) MembersCount() int    { return r.members.Length() }
func (r *Room) Members() []Member    { return r.members.AsList() }
func (r *Room) MemberIDs() []string  { return r.members.IDs() }

func (r *Room) IsMaster(memberID string) bool {
	return r.masterID == memberID
}

func (r *Room) Master() Member {
	master, _, _ := r.members.GetByID(r.masterID)
	return master
}

func (r *Room) GetMember(memberID string) (Member, error) {
	member, _, err := r.members.GetByID(memberID)
	return member, err
}

// Accepts reports whether AddMember would succeed for memberID.
func (r *Room) Accepts(memberID string) bool {
	return r.members.Accepts(memberID)
}

// AddMember joins a member or renames it when it is already present.
func (r *Room) AddMember(member Member) (bool, error) {
	return r.members.Upsert(member)
}

type RemoveResult struct {
	Removed   Member
	Empty     bool
	NewMaster *Member
}

// RemoveMember drops a member. When the master leaves and others remain the
// earliest-joined survivor becomes master.
func (r *Room) RemoveMember(memberID string) (RemoveResult, error) {
	removed, err := r.members.RemoveByID(memberID)
	if err != nil {
		return RemoveResult{}, err
	}

	res := RemoveResult{Removed: removed}
	head, ok := r.members.Head()
	if !ok {
		res.Empty = true
		r.masterID = ""
		return res, nil
	}

	if r.masterID == memberID {
		r.masterID = head.ID
		res.NewMaster = &head
	}

	return res, nil
}

// Promote hands control to another member. Only the current master may do it.
func (r *Room) Promote(senderID, memberID string) (Member, error) {
	if !r.IsMaster(senderID) {
		return Member{}, ErrNotMaster
	}

	member, _, err := r.members.GetByID(memberID)
	if err != nil {
		return Member{}, err
	}

	r.masterID = member.ID
	return member, nil
}

func (r *Room) ApplyControl(senderID string, action Action, currentTime float64) (Video, error) {
	if !r.IsMaster(senderID) {
		return r.video, ErrNotMaster
	}

	next := r.video
	if err := next.Apply(action, currentTime); err != nil {
		return r.video, err
	}

	r.video = next
	return r.video, nil
}

func (r *Room) ChangeSource(senderID, sourceRef string, kind SourceKind) (Video, error) {
	if !r.IsMaster(senderID) {
		return r.video, ErrNotMaster
	}

	next := r.video
	if err := next.ChangeSource(sourceRef, kind); err != nil {
		return r.video, err
	}

	r.video = next
	return r.video, nil
}

func (r *Room) AppendChat(msg ChatMessage) {
	r.chat.Append(msg)
}

func (r *Room) Snapshot() RoomSnapshot {
	return RoomSnapshot{
		RoomID:      r.id,
		Video:       r.video,
		Members:     r.members.AsList(),
		MasterID:    r.masterID,
		ChatHistory: r.chat.List(),
	}
}
