package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/syncroom/internal/domain"
	"github.com/sharetube/syncroom/internal/repository/transcript"
)

type repo struct {
	rc             *redis.Client
	limit          int
	expireDuration time.Duration
}

func NewRepo(rc *redis.Client, limit int, expireDuration time.Duration) *repo {
	return &repo{
		rc:             rc,
		limit:          limit,
		expireDuration: expireDuration,
	}
}

func (r repo) getTranscriptKey(sessionID string) string {
	return "session:" + sessionID + ":transcript"
}

func (r repo) Append(ctx context.Context, sessionID string, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	key := r.getTranscriptKey(sessionID)
	pipe := r.rc.TxPipeline()
	pipe.RPush(ctx, key, data)
	if r.limit > 0 {
		pipe.LTrim(ctx, key, int64(-r.limit), -1)
	}
	if r.expireDuration > 0 {
		pipe.Expire(ctx, key, r.expireDuration)
	}

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}

	return nil
}

func (r repo) List(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	res, err := r.rc.LRange(ctx, r.getTranscriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transcript: %w", err)
	}

	if len(res) == 0 {
		return nil, transcript.ErrTranscriptNotFound
	}

	msgs := make([]domain.ChatMessage, 0, len(res))
	for _, raw := range res {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}

		msgs = append(msgs, msg)
	}

	return msgs, nil
}

func (r repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.rc.Del(ctx, r.getTranscriptKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete transcript: %w", err)
	}

	return nil
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil {
				return err
			}
		}

		return err
	}

	return nil
}
