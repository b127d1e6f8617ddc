package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/transcript"
)

type sessionTranscript struct {
	messages  []domain.ChatMessage
	expiresAt time.Time
}

type repo struct {
	transcripts map[string]*sessionTranscript
	limit       int
	ttl         time.Duration
	now         func() time.Time
	mu          sync.Mutex
}

// NewRepo keeps at most limit messages per room session, each session expiring
// ttl after its last write. A limit below 1 keeps every message.
func NewRepo(limit int, ttl time.Duration) *repo {
	return &repo{
		transcripts: make(map[string]*sessionTranscript),
		limit:       limit,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (r *repo) Append(_ context.Context, sessionID string, msg domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.pruneExpired(now)

	t, ok := r.transcripts[sessionID]
	if !ok {
		t = &sessionTranscript{}
		r.transcripts[sessionID] = t
	}

	t.messages = append(t.messages, msg)
	if r.limit > 0 && len(t.messages) > r.limit {
		t.messages = t.messages[len(t.messages)-r.limit:]
	}
	t.expiresAt = now.Add(r.ttl)

	return nil
}

func (r *repo) List(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneExpired(r.now())

	t, ok := r.transcripts[sessionID]
	if !ok {
		return nil, transcript.ErrTranscriptNotFound
	}

	out := make([]domain.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out, nil
}

func (r *repo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.transcripts, sessionID)
	return nil
}

func (r *repo) pruneExpired(now time.Time) {
	if r.ttl <= 0 {
		return
	}

	for sessionID, t := range r.transcripts {
		if !now.Before(t.expiresAt) {
			delete(r.transcripts, sessionID)
		}
	}
}
