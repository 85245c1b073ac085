package chatbot

import (
	"errors"
	"fmt"
)

// ErrMissingContext is returned when a turn arrives for a session without a conversation
var ErrMissingContext = errors.New("no conversation for connection")

// ErrQueueFull is returned when a message arrives while the turn queue is full
var ErrQueueFull = errors.New("turn queue full")

// errSendFailed marks turn errors caused by a failed write to the client
var errSendFailed = errors.New("send failed")

// UpstreamError is returned when the completion service rejects a request or the stream fails
type UpstreamError struct {
	StatusCode int // zero if no HTTP status was received
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("upstream error (status %d): %s: %v", e.StatusCode, e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("upstream error: %s: %v", e.Message, e.Err)
	}
	return "upstream error: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
