package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/relay"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/validator"
	"github.com/sharetube/syncroom/pkg/wsrouter"
)

type iRoomService interface {
	ConnectMember(context.Context, *room.ConnectMemberParams) error
	DisconnectMember(ctx context.Context, connID string)
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) error
	PromoteMember(context.Context, *room.PromoteMemberParams) (room.PromoteMemberResponse, error)
	Control(context.Context, *room.ControlParams) (room.ControlResponse, error)
	ChangeSource(context.Context, *room.ChangeSourceParams) (room.ChangeSourceResponse, error)
	SendChat(context.Context, *room.SendChatParams) (domain.ChatMessage, error)
	RelayUploadProgress(context.Context, *room.RelayUploadProgressParams) error
	GetRoomInfo(ctx context.Context, roomID string) (room.RoomInfo, error)
	GetTranscript(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	RoomsCount() int
	ConnectionsCount() int
}

type iHub interface {
	Attach(connID string, sink relay.Sink)
	Detach(connID string)
	Send(ctx context.Context, connID string, out relay.Output) error
}

type iMetrics interface {
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordEvent(messageType string)
	RecordRateLimited()
}

type Config struct {
	SendQueueSize     int
	ReadLimit         int64
	PingPeriod        time.Duration
	WriteWait         time.Duration
	MessagesPerSecond float64
	Burst             int
}

type controller struct {
	roomService    iRoomService
	hub            iHub
	metrics        iMetrics
	metricsHandler http.Handler
	upgrader       websocket.Upgrader
	validate       *validator.Validator
	wsmux          *wsrouter.WSRouter
	logger         *slog.Logger
	cfg            Config
}

func NewController(
	roomService iRoomService,
	hub iHub,
	metrics iMetrics,
	metricsHandler http.Handler,
	logger *slog.Logger,
	cfg Config,
) *controller {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 64
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 30 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}

	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService:    roomService,
		hub:            hub,
		metrics:        metrics,
		metricsHandler: metricsHandler,
		validate:       validator.NewValidator(),
		logger:         logger,
		cfg:            cfg,
	}
	c.wsmux = c.getWSRouter()

	return c
}
