package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sharetube/syncroom/internal/archive"
	"github.com/sharetube/syncroom/internal/controller"
	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/metrics"
	"github.com/sharetube/syncroom/internal/relay"
	connInmemory "github.com/sharetube/syncroom/internal/repository/connection/inmemory"
	roomInmemory "github.com/sharetube/syncroom/internal/repository/room/inmemory"
	transcriptInmemory "github.com/sharetube/syncroom/internal/repository/transcript/inmemory"
	transcriptRedis "github.com/sharetube/syncroom/internal/repository/transcript/redis"
	"github.com/sharetube/syncroom/internal/service/room"
	"github.com/sharetube/syncroom/pkg/ctxlogger"
	"github.com/sharetube/syncroom/pkg/redisclient"
)

const (
	TranscriptBackendMemory = "memory"
	TranscriptBackendRedis  = "redis"

	archiveQueueSize = 1024
)

type AppConfig struct {
	Host                string        `json:"host"`
	Port                int           `json:"port"`
	LogLevel            string        `json:"log_level"`
	MembersLimit        int           `json:"members_limit"`
	ChatHistoryLimit    int           `json:"chat_history_limit"`
	SendQueueSize       int           `json:"send_queue_size"`
	WSReadLimit         int64         `json:"ws_read_limit"`
	WSPingPeriod        time.Duration `json:"ws_ping_period"`
	WSMessagesPerSecond float64       `json:"ws_messages_per_second"`
	WSBurst             int           `json:"ws_burst"`
	TranscriptBackend   string        `json:"transcript_backend"`
	TranscriptLimit     int           `json:"transcript_limit"`
	TranscriptTTL       time.Duration `json:"transcript_ttl"`
	RedisHost           string        `json:"redis_host"`
	RedisPort           int           `json:"redis_port"`
	RedisPassword       string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return fmt.Errorf("members limit must be greater than 0")
	}
	if cfg.ChatHistoryLimit < 0 {
		return fmt.Errorf("chat history limit must not be negative")
	}
	if cfg.SendQueueSize < 1 {
		return fmt.Errorf("send queue size must be greater than 0")
	}
	if cfg.WSPingPeriod <= 0 {
		return fmt.Errorf("ws ping period must be positive")
	}
	if cfg.WSMessagesPerSecond < 0 {
		return fmt.Errorf("ws messages per second must not be negative")
	}
	switch cfg.TranscriptBackend {
	case TranscriptBackendMemory, TranscriptBackendRedis:
	default:
		return fmt.Errorf("unknown transcript backend %q", cfg.TranscriptBackend)
	}

	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h), nil
}

type transcriptRepo interface {
	Append(ctx context.Context, sessionID string, msg domain.ChatMessage) error
	List(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	Delete(ctx context.Context, sessionID string) error
}

// newHandler wires every component. The returned cleanup stops the archive
// worker and releases external connections.
func newHandler(ctx context.Context, cfg *AppConfig, logger *slog.Logger, reg *prometheus.Registry) (http.Handler, func(), error) {
	var (
		transcripts transcriptRepo
		closers     []func()
	)
	switch cfg.TranscriptBackend {
	case TranscriptBackendRedis:
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		closers = append(closers, func() { rc.Close() })
		transcripts = transcriptRedis.NewRepo(rc, cfg.TranscriptLimit, cfg.TranscriptTTL)
	default:
		transcripts = transcriptInmemory.NewRepo(cfg.TranscriptLimit, cfg.TranscriptTTL)
	}

	collector := metrics.NewCollector(reg)
	hub := relay.NewHub(logger, collector.RecordFrameDropped)

	archiver := archive.New(transcripts, archiveQueueSize, logger, collector.RecordArchiveDropped)
	archiveCtx, stopArchive := context.WithCancel(context.WithoutCancel(ctx))
	archiveDone := make(chan struct{})
	go func() {
		defer close(archiveDone)
		archiver.Run(archiveCtx)
	}()

	roomService := room.NewService(
		roomInmemory.NewRepo(logger),
		connInmemory.NewRepo(logger),
		transcripts,
		hub,
		archiver,
		collector,
		logger,
		room.Config{
			MembersLimit:     cfg.MembersLimit,
			ChatHistoryLimit: cfg.ChatHistoryLimit,
		},
	)

	controller := controller.NewController(
		roomService,
		hub,
		collector,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		logger,
		controller.Config{
			SendQueueSize:     cfg.SendQueueSize,
			ReadLimit:         cfg.WSReadLimit,
			PingPeriod:        cfg.WSPingPeriod,
			MessagesPerSecond: cfg.WSMessagesPerSecond,
			Burst:             cfg.WSBurst,
		},
	)

	cleanup := func() {
		stopArchive()
		<-archiveDone
		for _, c := range closers {
			c()
		}
	}

	return controller.GetMux(), cleanup, nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, cleanup, err := newHandler(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: handler}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-serverCtx.Done()

	return nil
}
