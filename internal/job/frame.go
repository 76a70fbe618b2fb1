package job

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType discriminates stream frames.
type FrameType string

const (
	FrameProgress FrameType = "progress"
	FrameIndexed  FrameType = "indexed"
	FrameComplete FrameType = "complete"
	FrameError    FrameType = "error"
)

// Frame is one decoded stream event. Only the fields of its Type are set.
type Frame struct {
	Type            FrameType `json:"type"`
	Downloaded      int       `json:"downloaded"`
	MessagePreview  string    `json:"message_preview"`
	Count           int       `json:"count"`
	TotalDownloaded int       `json:"total_downloaded"`
	Status          string    `json:"status"`
	Error           string    `json:"error"`
	Message         string    `json:"message"`
}

var errNoType = errors.New("frame has no type")

// ParseFrame decodes one frame line.
func ParseFrame(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("parse frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, errNoType
	}
	return f, nil
}

// Known reports whether the consumer acts on this frame type.
func (f Frame) Known() bool {
	switch f.Type {
	case FrameProgress, FrameIndexed, FrameComplete, FrameError:
		return true
	}
	return false
}

// ErrorText is the failure message of an error frame.
func (f Frame) ErrorText() string {
	switch {
	case f.Error != "":
		return f.Error
	case f.Message != "":
		return f.Message
	default:
		return "unknown error"
	}
}
