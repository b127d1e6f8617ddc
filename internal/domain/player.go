package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAction     = errors.New("unknown playback action")
	ErrUnknownSourceKind = errors.New("unknown source kind")
)

type SourceKind string

const (
	SourceRemote   SourceKind = "remote"
	SourceUploaded SourceKind = "uploaded"
)

func (k SourceKind) Valid() bool {
	return k == SourceRemote || k == SourceUploaded
}

type Action string

const (
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionSeek  Action = "seek"
)

// Video is the authoritative playback state of a room. CurrentTime is the
// last position reported by the master, the server never interpolates it.
type Video struct {
	SourceRef   string     `json:"source_ref"`
	Kind        SourceKind `json:"kind"`
	CurrentTime float64    `json:"current_time"`
	IsPlaying   bool       `json:"is_playing"`
}

func NewVideo(sourceRef string, kind SourceKind) Video {
	return Video{
		SourceRef:   sourceRef,
		Kind:        kind,
		CurrentTime: 0,
		IsPlaying:   false,
	}
}

// Apply moves the video to Playing(t) or Paused(t). Seek keeps the current
// playing flag and only moves the position.
func (v *Video) Apply(action Action, currentTime float64) error {
	switch action {
	case ActionPlay:
		v.IsPlaying = true
	case ActionPause:
		v.IsPlaying = false
	case ActionSeek:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	v.CurrentTime = currentTime
	return nil
}

func (v *Video) ChangeSource(sourceRef string, kind SourceKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSourceKind, kind)
	}

	*v = NewVideo(sourceRef, kind)
	return nil
}
