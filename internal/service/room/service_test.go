package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sharetube/syncroom/internal/archive"
	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/metrics"
	"github.com/sharetube/syncroom/internal/relay"
	connInmemory "github.com/sharetube/syncroom/internal/repository/connection/inmemory"
	roomInmemory "github.com/sharetube/syncroom/internal/repository/room/inmemory"
	"github.com/sharetube/syncroom/internal/repository/transcript"
	transcriptInmemory "github.com/sharetube/syncroom/internal/repository/transcript/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type sink struct {
	mu     sync.Mutex
	frames []frame
}

func (s *sink) TrySend(data []byte) error {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *sink) Close() error { return nil }

// take returns and clears the frames received so far.
func (s *sink) take() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.frames
	s.frames = nil
	return out
}

func ofType(frames []frame, typ string) []frame {
	var out []frame
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}

	return out
}

// archiverStub writes through to the transcript repo synchronously.
type archiverStub struct {
	mu   sync.Mutex
	repo archive.TranscriptRepo
	msgs []domain.ChatMessage
}

func (a *archiverStub) Record(sessionID string, msg domain.ChatMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	_ = a.repo.Append(context.Background(), sessionID, msg)
}

func (a *archiverStub) Purge(sessionID string) {
	_ = a.repo.Delete(context.Background(), sessionID)
}

type sequenceGenerator struct {
	ids []string
	i   int
}

func (g *sequenceGenerator) GenerateRandomString(int) string {
	id := g.ids[g.i%len(g.ids)]
	g.i++
	return id
}

type transcriptStore interface {
	archive.TranscriptRepo
	iTranscriptRepo
}

type fixture struct {
	svc         *service
	rooms       iRoomRepo
	conns       iConnRepo
	transcripts transcriptStore
	hub         *relay.Hub
	archiver    *archiverStub
	sinks       map[string]*sink
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := slog.Default()

	rooms := roomInmemory.NewRepo(logger)
	conns := connInmemory.NewRepo(logger)
	hub := relay.NewHub(logger, nil)
	transcripts := transcriptInmemory.NewRepo(100, time.Hour)
	archiver := &archiverStub{repo: transcripts}
	svc := NewService(
		rooms,
		conns,
		transcripts,
		hub,
		archiver,
		metrics.NewCollector(prometheus.NewRegistry()),
		logger,
		cfg,
	)

	return &fixture{
		svc:         svc,
		rooms:       rooms,
		conns:       conns,
		transcripts: transcripts,
		hub:         hub,
		archiver:    archiver,
		sinks:       make(map[string]*sink),
	}
}

func (f *fixture) connect(t *testing.T, connID string) *sink {
	t.Helper()
	s := &sink{}
	f.sinks[connID] = s
	f.hub.Attach(connID, s)
	require.NoError(t, f.svc.ConnectMember(context.Background(), &ConnectMemberParams{ConnID: connID}))
	return s
}

func (f *fixture) disconnect(connID string) {
	f.svc.DisconnectMember(context.Background(), connID)
	f.hub.Detach(connID)
}

func (f *fixture) room(t *testing.T, roomID string) *domain.Room {
	t.Helper()
	rm, err := f.rooms.Get(roomID)
	require.NoError(t, err)
	return rm
}

func (f *fixture) assertInvariants(t *testing.T) {
	t.Helper()
	for _, rm := range f.rooms.(interface{ List() []*domain.Room }).List() {
		rm.Lock()
		assert.Positive(t, rm.MembersCount(), "room %s is empty", rm.ID())
		_, err := rm.GetMember(rm.MasterID())
		assert.NoError(t, err, "master of %s is not a member", rm.ID())
		rm.Unlock()
	}
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Payload, &v))
	return v
}

func TestScenarioCreateJoinControl(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MembersLimit: 9, ChatHistoryLimit: 10})
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	created, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", created.RoomID)
	assert.Equal(t, "A", created.MasterID)

	roomCreated := ofType(a.take(), relay.TypeRoomCreated)
	require.Len(t, roomCreated, 1)
	assert.Equal(t, "ABC123", decode[RoomCreatedOutput](t, roomCreated[0]).RoomID)

	joined, err := f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)
	assert.False(t, joined.IsMaster)

	bFrames := b.take()
	require.NotEmpty(t, bFrames)
	assert.Equal(t, relay.TypeRoomJoined, bFrames[0].Type, "snapshot comes first")
	snapshot := decode[RoomJoinedOutput](t, bFrames[0])
	assert.False(t, snapshot.IsMaster)
	assert.Equal(t, "A", snapshot.MasterID)
	assert.False(t, snapshot.Video.IsPlaying)
	assert.Equal(t, float64(0), snapshot.Video.CurrentTime)
	require.Len(t, snapshot.Members, 2)
	assert.Equal(t, "A", snapshot.Members[0].ID)
	assert.Equal(t, "B", snapshot.Members[1].ID)

	aFrames := a.take()
	assert.Len(t, ofType(aFrames, relay.TypeMemberList), 1)
	assert.Len(t, ofType(aFrames, relay.TypeChat), 1, "join notice")

	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "A", Action: domain.ActionPlay, CurrentTime: 12.5})
	require.NoError(t, err)

	syncs := ofType(b.take(), relay.TypeSync)
	require.Len(t, syncs, 1)
	got := decode[ControlSyncOutput](t, syncs[0])
	assert.Equal(t, domain.ActionPlay, got.Action)
	assert.Equal(t, 12.5, got.CurrentTime)
	assert.Empty(t, a.take(), "no self echo")

	f.assertInvariants(t)
}

func TestScenarioMasterFailoverAndTeardown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MembersLimit: 9})
	f.connect(t, "A")
	b := f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)
	b.take()

	f.disconnect("A")

	frames := b.take()
	changed := ofType(frames, relay.TypeMasterChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "B", decode[MasterChangedOutput](t, changed[0]).MasterID)

	lists := ofType(frames, relay.TypeMemberList)
	require.Len(t, lists, 1)
	list := decode[MemberListOutput](t, lists[0])
	assert.Equal(t, "B", list.MasterID)
	assert.Len(t, list.Members, 1)
	assert.Equal(t, relay.TypeMasterChanged, frames[0].Type, "master-changed precedes member-list")

	assert.True(t, f.room(t, "ABC123").IsMaster("B"))
	f.assertInvariants(t)

	f.disconnect("B")
	_, err = f.rooms.Get("ABC123")
	assert.Error(t, err)
	assert.Equal(t, 0, f.svc.RoomsCount())
}

func TestScenarioJoinUnknownRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "C")

	_, err := f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "C", RoomID: "ZZZZZZ", DisplayName: "Carol"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, 0, f.svc.RoomsCount())

	_, err = f.conns.Get("C")
	assert.Error(t, err, "no binding on failed join")
}

func TestScenarioNonMasterControlDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	a := f.connect(t, "A")
	b := f.connect(t, "B")
	c := f.connect(t, "C")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	for id, name := range map[string]string{"B": "Bob", "C": "Carol"} {
		_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: id, RoomID: "ABC123", DisplayName: name})
		require.NoError(t, err)
	}
	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "A", Action: domain.ActionPlay, CurrentTime: 3})
	require.NoError(t, err)
	a.take()
	b.take()
	c.take()

	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "B", Action: domain.ActionPause, CurrentTime: 5})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	video := f.room(t, "ABC123").Video()
	assert.True(t, video.IsPlaying)
	assert.Equal(t, float64(3), video.CurrentTime)
	assert.Empty(t, a.take())
	assert.Empty(t, c.take())

	_, err = f.svc.ChangeSource(ctx, &ChangeSourceParams{ConnID: "C", SourceRef: "https://example.com/v.mp4", Kind: domain.SourceRemote})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, video, f.room(t, "ABC123").Video())
}

func TestChangeSourceResetsPlayback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice"})
	require.NoError(t, err)
	binding, err := f.conns.Get("A")
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: binding.RoomID, DisplayName: "Bob"})
	require.NoError(t, err)
	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "A", Action: domain.ActionPlay, CurrentTime: 40})
	require.NoError(t, err)
	a.take()
	b.take()

	resp, err := f.svc.ChangeSource(ctx, &ChangeSourceParams{
		ConnID:    "A",
		RoomID:    binding.RoomID,
		SourceRef: "https://cdn.example.com/uploads/clip.mp4",
		Kind:      domain.SourceUploaded,
	})
	require.NoError(t, err)
	assert.False(t, resp.Video.IsPlaying)
	assert.Equal(t, float64(0), resp.Video.CurrentTime)

	syncs := ofType(b.take(), relay.TypeSync)
	require.Len(t, syncs, 1)
	got := decode[SourceSyncOutput](t, syncs[0])
	assert.Equal(t, ActionChangeSource, got.Action)
	assert.Equal(t, domain.SourceUploaded, got.Kind)
	assert.Empty(t, a.take())
}

func TestSnapshotReflectsCurrentVideo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")
	b := f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.ChangeSource(ctx, &ChangeSourceParams{ConnID: "A", SourceRef: "https://example.com/a.mp4", Kind: domain.SourceRemote})
	require.NoError(t, err)
	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "A", Action: domain.ActionPlay, CurrentTime: 7})
	require.NoError(t, err)
	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "A", Action: domain.ActionSeek, CurrentTime: 90})
	require.NoError(t, err)

	joined, err := f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)

	want := domain.Video{SourceRef: "https://example.com/a.mp4", Kind: domain.SourceRemote, CurrentTime: 90, IsPlaying: true}
	assert.Equal(t, want, joined.Snapshot.Video)
	snapshot := decode[RoomJoinedOutput](t, ofType(b.take(), relay.TypeRoomJoined)[0])
	assert.Equal(t, want, snapshot.Video)
}

func TestPromotionPicksEarliestSurvivor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	for _, id := range []string{"A", "B", "C", "D"} {
		f.connect(t, id)
	}

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	for _, id := range []string{"B", "C", "D"} {
		_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: id, RoomID: "ABC123", DisplayName: id})
		require.NoError(t, err)
	}

	f.disconnect("C")
	assert.True(t, f.room(t, "ABC123").IsMaster("A"), "non-master leaving keeps the master")

	f.disconnect("A")
	assert.True(t, f.room(t, "ABC123").IsMaster("B"))

	f.disconnect("B")
	assert.True(t, f.room(t, "ABC123").IsMaster("D"))
	f.assertInvariants(t)
}

func TestRejoinUpdatesDisplayName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")
	f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)
	resp, err := f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "abc123", DisplayName: "Robert"})
	require.NoError(t, err)

	require.Len(t, resp.Snapshot.Members, 2)
	assert.Equal(t, "Robert", resp.Snapshot.Members[1].Name)
}

func TestJoinAnotherRoomLeavesCurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")
	f.connect(t, "B")
	f.connect(t, "C")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ROOM01"})
	require.NoError(t, err)
	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "B", DisplayName: "Bob", RoomID: "ROOM02"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "C", RoomID: "ROOM01", DisplayName: "Carol"})
	require.NoError(t, err)

	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "C", RoomID: "ROOM02", DisplayName: "Carol"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.room(t, "ROOM01").MembersCount())
	assert.Equal(t, 2, f.room(t, "ROOM02").MembersCount())
	binding, err := f.conns.Get("C")
	require.NoError(t, err)
	assert.Equal(t, "ROOM02", binding.RoomID)

	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "A", RoomID: "ROOM02", DisplayName: "Alice"})
	require.NoError(t, err)
	_, err = f.rooms.Get("ROOM01")
	assert.Error(t, err, "room emptied by moving its last member is destroyed")
}

func TestCreateRoomRegeneratesTakenID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.svc.generator = &sequenceGenerator{ids: []string{"TAKEN1", "FRESH1"}}
	f.connect(t, "A")
	f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "TAKEN1"})
	require.NoError(t, err)

	resp, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "B", DisplayName: "Bob", RoomID: "TAKEN1"})
	require.NoError(t, err)
	assert.Equal(t, "FRESH1", resp.RoomID)
	assert.Equal(t, 1, f.room(t, "TAKEN1").MembersCount(), "existing room untouched")
}

func TestCreateRoomIDExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{RoomIDAttempts: 3})
	f.svc.generator = &sequenceGenerator{ids: []string{"SAME00"}}
	f.connect(t, "A")
	f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice"})
	require.NoError(t, err)

	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "B", DisplayName: "Bob"})
	assert.ErrorIs(t, err, ErrRoomIDExhausted)
	assert.Equal(t, 1, f.svc.RoomsCount())
}

func TestCreateRoomRejectsMalformedID(t *testing.T) {
	f := newFixture(t, Config{})
	f.connect(t, "A")

	_, err := f.svc.CreateRoom(context.Background(), &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "AB-12"})
	assert.ErrorIs(t, err, ErrInvalidRoomID)
	assert.Equal(t, 0, f.svc.RoomsCount())
}

func TestJoinAfterDisconnectIsAborted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")
	f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)

	f.disconnect("B")
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, 1, f.room(t, "ABC123").MembersCount())
}

func TestMembersLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MembersLimit: 2})
	for _, id := range []string{"A", "B", "C"} {
		f.connect(t, id)
	}

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)

	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "C", RoomID: "ABC123", DisplayName: "Carol"})
	assert.ErrorIs(t, err, ErrMembersLimitReached)
	_, err = f.conns.Get("C")
	assert.Error(t, err, "binding is rolled back")
}

func TestLeaveRoomKeepsConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	a := f.connect(t, "A")
	f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)
	a.take()

	require.NoError(t, f.svc.LeaveRoom(ctx, &LeaveRoomParams{ConnID: "A"}))
	assert.Len(t, ofType(a.take(), relay.TypeRoomLeft), 1)
	assert.True(t, f.room(t, "ABC123").IsMaster("B"))

	assert.ErrorIs(t, f.svc.LeaveRoom(ctx, &LeaveRoomParams{ConnID: "A"}), ErrNotInRoom)

	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "NEW001"})
	require.NoError(t, err, "connection is still usable")
}

func TestChatReachesEveryone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{ChatHistoryLimit: 5})
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)
	a.take()
	b.take()

	msg, err := f.svc.SendChat(ctx, &SendChatParams{ConnID: "B", Message: "hello"})
	require.NoError(t, err)
	assert.True(t, now.Equal(msg.ServerTime))

	for _, s := range []*sink{a, b} {
		chats := ofType(s.take(), relay.TypeChat)
		require.Len(t, chats, 1)
		got := decode[domain.ChatMessage](t, chats[0])
		assert.Equal(t, "Bob", got.Author)
		assert.Equal(t, "hello", got.Message)
		assert.False(t, got.System)
	}

	history := f.room(t, "ABC123").Snapshot().ChatHistory
	require.Len(t, history, 2)
	assert.True(t, history[0].System)
	assert.Equal(t, "hello", history[1].Message)
	assert.Len(t, f.archiver.msgs, 2)
}

func TestChatOutsideRoom(t *testing.T) {
	f := newFixture(t, Config{})
	f.connect(t, "A")

	_, err := f.svc.SendChat(context.Background(), &SendChatParams{ConnID: "A", Message: "anyone?"})
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestUploadProgressExcludesSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	a := f.connect(t, "A")
	b := f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ABC123", DisplayName: "Bob"})
	require.NoError(t, err)
	a.take()
	b.take()

	err = f.svc.RelayUploadProgress(ctx, &RelayUploadProgressParams{ConnID: "B", Progress: 42, Speed: 1.5, ETA: 10, Filename: "clip.mp4"})
	require.NoError(t, err)

	progress := ofType(a.take(), relay.TypeUploadProgress)
	require.Len(t, progress, 1)
	got := decode[UploadProgressOutput](t, progress[0])
	assert.Equal(t, "B", got.MemberID)
	assert.Equal(t, float64(42), got.Progress)
	assert.Empty(t, b.take())

	before := f.room(t, "ABC123").Video()
	assert.Equal(t, domain.NewVideo("", domain.SourceRemote), before, "room state untouched")
}

func TestControlWithMismatchedRoomID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)

	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "A", RoomID: "OTHER1", Action: domain.ActionPlay})
	assert.ErrorIs(t, err, ErrRoomMismatch)
	assert.False(t, f.room(t, "ABC123").Video().IsPlaying)
}

func TestPromoteMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	a := f.connect(t, "A")
	f.connect(t, "B")
	f.connect(t, "C")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	for _, id := range []string{"B", "C"} {
		_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: id, RoomID: "ABC123", DisplayName: id})
		require.NoError(t, err)
	}

	_, err = f.svc.PromoteMember(ctx, &PromoteMemberParams{ConnID: "B", MemberID: "C"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.PromoteMember(ctx, &PromoteMemberParams{ConnID: "A", MemberID: "nobody"})
	assert.ErrorIs(t, err, ErrMemberNotFound)
	a.take()

	resp, err := f.svc.PromoteMember(ctx, &PromoteMemberParams{ConnID: "A", MemberID: "C"})
	require.NoError(t, err)
	assert.Equal(t, "C", resp.Master.ID)
	assert.True(t, f.room(t, "ABC123").IsMaster("C"))
	assert.Len(t, ofType(a.take(), relay.TypeMasterChanged), 1)

	_, err = f.svc.Control(ctx, &ControlParams{ConnID: "A", Action: domain.ActionPlay})
	assert.ErrorIs(t, err, ErrPermissionDenied, "former master lost control")
}

func TestGetRoomInfo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")

	_, err := f.svc.GetRoomInfo(ctx, "ABC123")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)

	info, err := f.svc.GetRoomInfo(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MembersCount)
	assert.Equal(t, "A", info.MasterID)
	assert.Equal(t, "Alice", info.MasterName)
}

func TestConcurrentChurnKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "host")
	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "host", DisplayName: "Host", RoomID: "ABC123"})
	require.NoError(t, err)

	ids := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("m%d", i)
		ids = append(ids, id)
		f.connect(t, id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: id, RoomID: "ABC123", DisplayName: id})
			_, _ = f.svc.Control(ctx, &ControlParams{ConnID: id, Action: domain.ActionSeek, CurrentTime: 1})
			f.svc.DisconnectMember(ctx, id)
		}(id)
	}
	wg.Wait()

	f.assertInvariants(t)
	f.svc.DisconnectMember(ctx, "host")
	assert.Equal(t, 0, f.svc.RoomsCount())
}

func TestJoinFullRoomKeepsCurrentRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MembersLimit: 2})
	for _, id := range []string{"A", "B", "C", "D"} {
		f.connect(t, id)
	}

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ROOM01"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ROOM01", DisplayName: "Bob"})
	require.NoError(t, err)
	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "C", DisplayName: "Carol", RoomID: "ROOM02"})
	require.NoError(t, err)

	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "C", RoomID: "ROOM01", DisplayName: "Carol"})
	assert.ErrorIs(t, err, ErrMembersLimitReached)

	assert.True(t, f.room(t, "ROOM02").IsMaster("C"), "a rejected join must not leave the current room")
	binding, err := f.conns.Get("C")
	require.NoError(t, err)
	assert.Equal(t, "ROOM02", binding.RoomID)
	f.assertInvariants(t)
}

func TestJoinClosedRoomKeepsCurrentRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")
	f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ROOM01"})
	require.NoError(t, err)
	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "B", DisplayName: "Bob", RoomID: "ROOM02"})
	require.NoError(t, err)

	// ROOM01 is being torn down but has not left the store yet.
	target := f.room(t, "ROOM01")
	target.Lock()
	target.Close()
	target.Unlock()

	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "B", RoomID: "ROOM01", DisplayName: "Bob"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	assert.Equal(t, 1, f.room(t, "ROOM02").MembersCount())
	binding, err := f.conns.Get("B")
	require.NoError(t, err)
	assert.Equal(t, "ROOM02", binding.RoomID)
}

func TestConcurrentRoomSwapsDoNotDeadlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	for _, id := range []string{"host1", "host2", "a", "b"} {
		f.connect(t, id)
	}

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "host1", DisplayName: "Host 1", RoomID: "ROOM01"})
	require.NoError(t, err)
	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "host2", DisplayName: "Host 2", RoomID: "ROOM02"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "a", RoomID: "ROOM01", DisplayName: "a"})
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: "b", RoomID: "ROOM02", DisplayName: "b"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	swap := func(connID, first, second string) {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: connID, RoomID: first, DisplayName: connID})
			_, _ = f.svc.JoinRoom(ctx, &JoinRoomParams{ConnID: connID, RoomID: second, DisplayName: connID})
		}
	}
	wg.Add(2)
	go swap("a", "ROOM02", "ROOM01")
	go swap("b", "ROOM01", "ROOM02")
	wg.Wait()

	f.assertInvariants(t)
	assert.Equal(t, 4, f.room(t, "ROOM01").MembersCount()+f.room(t, "ROOM02").MembersCount())
}

func TestTranscriptIsScopedToRoomSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.connect(t, "A")
	f.connect(t, "B")

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	_, err = f.svc.SendChat(ctx, &SendChatParams{ConnID: "A", Message: "private to first session"})
	require.NoError(t, err)
	firstSession := f.room(t, "ABC123").SessionID()

	msgs, err := f.svc.GetTranscript(ctx, "ABC123")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	f.disconnect("A")
	_, err = f.svc.GetTranscript(ctx, "ABC123")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = f.transcripts.List(ctx, firstSession)
	assert.ErrorIs(t, err, transcript.ErrTranscriptNotFound, "teardown purges the transcript")

	_, err = f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "B", DisplayName: "Bob", RoomID: "ABC123"})
	require.NoError(t, err)

	msgs, err = f.svc.GetTranscript(ctx, "ABC123")
	require.NoError(t, err)
	assert.Empty(t, msgs, "a reused room id starts with an empty transcript")
}

func TestConnectionsCount(t *testing.T) {
	f := newFixture(t, Config{})
	f.connect(t, "A")
	f.connect(t, "B")
	assert.Equal(t, 2, f.svc.ConnectionsCount())

	f.disconnect("A")
	assert.Equal(t, 1, f.svc.ConnectionsCount())
}

func TestCreateRoomRollsBackWhenCreatorIsGone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	_, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "ghost", DisplayName: "Ghost", RoomID: "ABC123"})
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, 0, f.svc.RoomsCount())

	f.connect(t, "A")
	resp, err := f.svc.CreateRoom(ctx, &CreateRoomParams{ConnID: "A", DisplayName: "Alice", RoomID: "ABC123"})
	require.NoError(t, err)
	assert.Equal(t, "ABC123", resp.RoomID)
}
