package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrSinkClosed   = errors.New("sink closed")
	ErrSinkNotFound = errors.New("sink not found")
)

// Sink is the outgoing side of one connection. TrySend must never block.
type Sink interface {
	TrySend(data []byte) error
	Close() error
}

type PublishResult struct {
	SentTo  int
	Dropped []string
}

// Hub delivers frames to the sinks of live connections. Callers may hold a
// room lock while publishing, the hub itself never blocks on socket I/O.
type Hub struct {
	sinks  map[string]Sink
	mu     sync.RWMutex
	onDrop func()
	logger *slog.Logger
}

// NewHub returns a hub. onDrop, if set, is called for every frame dropped
// because a sink was full.
func NewHub(logger *slog.Logger, onDrop func()) *Hub {
	if onDrop == nil {
		onDrop = func() {}
	}

	return &Hub{
		sinks:  make(map[string]Sink),
		onDrop: onDrop,
		logger: logger,
	}
}

func (h *Hub) Attach(connID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sinks[connID] = sink
}

func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sinks, connID)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sinks)
}

// Send delivers out to a single connection.
func (h *Hub) Send(ctx context.Context, connID string, out Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", out.Type, err)
	}

	h.mu.RLock()
	sink, ok := h.sinks[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrSinkNotFound
	}

	return h.deliver(ctx, connID, sink, data)
}

// Broadcast delivers out to every id in connIDs.
func (h *Hub) Broadcast(ctx context.Context, connIDs []string, out Output) (PublishResult, error) {
	return h.publish(ctx, connIDs, "", out)
}

// Relay delivers an event that originated from senderID. Event types that
// exclude their sender skip senderID.
func (h *Hub) Relay(ctx context.Context, connIDs []string, senderID string, out Output) (PublishResult, error) {
	exclude := ""
	if ExcludesSender(out.Type) {
		exclude = senderID
	}

	return h.publish(ctx, connIDs, exclude, out)
}

func (h *Hub) publish(ctx context.Context, connIDs []string, exclude string, out Output) (PublishResult, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return PublishResult{}, fmt.Errorf("failed to marshal %s: %w", out.Type, err)
	}

	h.mu.RLock()
	targets := make(map[string]Sink, len(connIDs))
	for _, id := range connIDs {
		if id == exclude {
			continue
		}
		if sink, ok := h.sinks[id]; ok {
			targets[id] = sink
		}
	}
	h.mu.RUnlock()

	var res PublishResult
	for _, id := range connIDs {
		sink, ok := targets[id]
		if !ok {
			continue
		}

		if err := h.deliver(ctx, id, sink, data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SentTo++
	}

	h.logger.DebugContext(ctx, "published",
		"type", out.Type,
		"sent_to", res.SentTo,
		"dropped", len(res.Dropped),
	)

	return res, nil
}

// deliver enqueues data. A full sink is a slow consumer: the frame is dropped
// and the sink closed so the disconnect path cleans it up.
func (h *Hub) deliver(ctx context.Context, connID string, sink Sink, data []byte) error {
	err := sink.TrySend(data)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrBackpressure) {
		h.onDrop()
		h.logger.WarnContext(ctx, "slow consumer, closing connection", "conn_id", connID)
		if cerr := sink.Close(); cerr != nil {
			h.logger.DebugContext(ctx, "failed to close sink", "conn_id", connID, "error", cerr)
		}
	}

	return err
}
