package domain

import "time"

type ChatMessage struct {
	Author     string    `json:"author"`
	AuthorID   string    `json:"author_id,omitempty"`
	Message    string    `json:"message"`
	ServerTime time.Time `json:"server_time"`
	System     bool      `json:"system"`
}

// ChatHistory is a fixed-size ring of the most recent messages of a room.
type ChatHistory struct {
	buf   []ChatMessage
	start int
	size  int
}

func NewChatHistory(limit int) *ChatHistory {
	if limit < 0 {
		limit = 0
	}

	return &ChatHistory{buf: make([]ChatMessage, limit)}
}

func (h *ChatHistory) Append(msg ChatMessage) {
	if len(h.buf) == 0 {
		return
	}

	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = msg
		h.size++
		return
	}

	h.buf[h.start] = msg
	h.start = (h.start + 1) % len(h.buf)
}

// List returns messages oldest first.
func (h *ChatHistory) List() []ChatMessage {
	out := make([]ChatMessage, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}

	return out
}
