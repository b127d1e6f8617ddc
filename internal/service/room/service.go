package room

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/relay"
	"github.com/sharetube/syncroom/internal/repository/connection"
	"github.com/sharetube/syncroom/pkg/randstr"
)

var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrRoomNotFound        = errors.New("room not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrNotInRoom           = errors.New("connection is not in a room")
	ErrRoomMismatch        = errors.New("room id does not match the current room")
	ErrInvalidRoomID       = errors.New("invalid room id")
	ErrRoomIDExhausted     = errors.New("failed to generate a free room id")
	ErrMembersLimitReached = errors.New("members limit reached")
	ErrConnectionClosed    = errors.New("connection closed")
)

type iRoomRepo interface {
	Create(*domain.Room) error
	Get(roomID string) (*domain.Room, error)
	Delete(*domain.Room) error
	Len() int
}

type iConnRepo interface {
	Register(connID string) error
	Bind(connID string, binding connection.Binding) error
	Unbind(connID, roomID string)
	Unregister(connID string) (connection.Binding, bool)
	Get(connID string) (connection.Binding, error)
	Len() int
}

type iTranscriptRepo interface {
	List(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
}

type iSender interface {
	Send(ctx context.Context, connID string, out relay.Output) error
	Broadcast(ctx context.Context, connIDs []string, out relay.Output) (relay.PublishResult, error)
	Relay(ctx context.Context, connIDs []string, senderID string, out relay.Output) (relay.PublishResult, error)
}

type iArchiver interface {
	Record(sessionID string, msg domain.ChatMessage)
	Purge(sessionID string)
}

type iMetrics interface {
	RecordRoomCreated()
	RecordRoomDestroyed()
	RecordMemberJoined()
	RecordMemberLeft()
	RecordMasterChanged(reason string)
	RecordControlDenied(messageType string)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type Config struct {
	MembersLimit     int
	ChatHistoryLimit int
	RoomIDLength     int
	RoomIDAttempts   int
}

type service struct {
	roomRepo       iRoomRepo
	connRepo       iConnRepo
	transcriptRepo iTranscriptRepo
	sender         iSender
	archiver       iArchiver
	metrics        iMetrics
	generator      iGenerator
	now            func() time.Time
	logger         *slog.Logger
	cfg            Config
}

func NewService(
	roomRepo iRoomRepo,
	connRepo iConnRepo,
	transcriptRepo iTranscriptRepo,
	sender iSender,
	archiver iArchiver,
	metrics iMetrics,
	logger *slog.Logger,
	cfg Config,
) *service {
	if cfg.RoomIDLength <= 0 {
		cfg.RoomIDLength = 6
	}
	if cfg.RoomIDAttempts <= 0 {
		cfg.RoomIDAttempts = 32
	}

	return &service{
		roomRepo:       roomRepo,
		connRepo:       connRepo,
		transcriptRepo: transcriptRepo,
		sender:         sender,
		archiver:       archiver,
		metrics:        metrics,
		generator:      randstr.New([]byte(roomIDAlphabet)),
		now:            time.Now,
		logger:         logger,
		cfg:            cfg,
	}
}
