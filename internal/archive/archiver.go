package archive

import (
	"context"
	"log/slog"

	"github.com/sharetube/syncroom/internal/domain"
)

type TranscriptRepo interface {
	Append(ctx context.Context, sessionID string, msg domain.ChatMessage) error
	Delete(ctx context.Context, sessionID string) error
}

type record struct {
	sessionID string
	msg       domain.ChatMessage
	purge     bool
}

// Archiver writes chat messages to a transcript repository off the hot path.
// Record and Purge never block; when the queue is full the work is dropped and
// the repository ttl cleans up.
type Archiver struct {
	repo   TranscriptRepo
	queue  chan record
	onDrop func()
	logger *slog.Logger
}

func New(repo TranscriptRepo, queueSize int, logger *slog.Logger, onDrop func()) *Archiver {
	if onDrop == nil {
		onDrop = func() {}
	}

	return &Archiver{
		repo:   repo,
		queue:  make(chan record, queueSize),
		onDrop: onDrop,
		logger: logger,
	}
}

func (a *Archiver) Record(sessionID string, msg domain.ChatMessage) {
	a.enqueue(record{sessionID: sessionID, msg: msg})
}

// Purge removes the transcript of a finished room session. It is applied after
// every message recorded before it.
func (a *Archiver) Purge(sessionID string) {
	a.enqueue(record{sessionID: sessionID, purge: true})
}

func (a *Archiver) enqueue(rec record) {
	select {
	case a.queue <- rec:
	default:
		a.onDrop()
		a.logger.Warn("archive queue full, dropping record", "session_id", rec.sessionID, "purge", rec.purge)
	}
}

// Run drains the queue until ctx is done, then flushes what is left.
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.flush()
			return
		case rec := <-a.queue:
			a.write(ctx, rec)
		}
	}
}

func (a *Archiver) flush() {
	ctx := context.Background()
	for {
		select {
		case rec := <-a.queue:
			a.write(ctx, rec)
		default:
			return
		}
	}
}

func (a *Archiver) write(ctx context.Context, rec record) {
	if rec.purge {
		if err := a.repo.Delete(ctx, rec.sessionID); err != nil {
			a.logger.ErrorContext(ctx, "failed to purge transcript", "session_id", rec.sessionID, "error", err)
		}
		return
	}

	if err := a.repo.Append(ctx, rec.sessionID, rec.msg); err != nil {
		a.logger.ErrorContext(ctx, "failed to archive chat message", "session_id", rec.sessionID, "error", err)
	}
}
