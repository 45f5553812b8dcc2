// Package messaging carries the action-tagged messages exchanged between the
// sidebar and the host page. The two sides share no state; everything they
// know about each other arrives as a Message.
package messaging

import (
	"encoding/json"
	"errors"

	"outline_assistant/hostview"
	"outline_assistant/observer"
)

// Action names a message kind.
type Action string

const (
	ActionSidebarReady      Action = "sidebarReady"
	ActionToggleSidebar     Action = "toggleSidebar"
	ActionSwitchTab         Action = "switchTab"
	ActionCloseSidebar      Action = "closeSidebar"
	ActionLiveTextUpdate    Action = "liveTextUpdate"
	ActionGenerateOutline   Action = "generateOutline"
	ActionApplyOutline      Action = "applyOutline"
	ActionOutlineApplied    Action = "outlineApplied"
	ActionGetCursorPosition Action = "getCursorPosition"
	ActionCursorPosition    Action = "cursorPosition"
)

var (
	// ErrNoReply means the peer did not answer a request in time.
	ErrNoReply = errors.New("no reply from peer")
	// ErrClosed is returned by a connection after Close.
	ErrClosed = errors.New("connection closed")
)

// Message is the wire shape. Outline stays raw so the receiver normalizes
// whatever shape the sender used in one place.
type Message struct {
	Action         Action                   `json:"action"`
	Tab            string                   `json:"tab,omitempty"`
	Data           string                   `json:"data,omitempty"`
	Features       *observer.Features       `json:"features,omitempty"`
	Outline        json.RawMessage          `json:"outline,omitempty"`
	DocID          string                   `json:"docId,omitempty"`
	CursorPosition *hostview.CursorPosition `json:"cursor_position,omitempty"`
	Position       *hostview.CursorPosition `json:"position,omitempty"`
	Success        *bool                    `json:"success,omitempty"`
	Error          string                   `json:"error,omitempty"`
}

// DecodeError reports a frame that arrived whole but is not a valid Message.
// The connection stays usable after it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode message: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, &DecodeError{Err: err}
	}
	return msg, nil
}

// Bool is a helper for the optional Success field.
func Bool(v bool) *bool { return &v }
