package stream

import (
	"time"

	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
)

// EventType discriminates the JSON messages the server pushes to the
// client over the voice connection.
type EventType string

const (
	// EventSuccess confirms the connection is authenticated and live.
	EventSuccess EventType = "success"

	// EventTranscript echoes a committed customer utterance.
	EventTranscript EventType = "cus"

	// EventReply carries the spoken reply text for a turn.
	EventReply EventType = "llm"

	// EventOrder carries the structural order diff for a turn.
	EventOrder EventType = "order"

	// EventEnd announces that the order reached a terminal status.
	EventEnd EventType = "end"

	// EventError reports a recoverable fault; the stream stays open.
	EventError EventType = "error"

	// EventClose is the last message before the connection closes.
	EventClose EventType = "close"
)

// Event is one server-to-client message. Only the fields relevant to
// the Type are populated.
type Event struct {
	Type EventType `json:"type"`

	// Transcript is set for EventTranscript.
	Transcript string `json:"transcript,omitempty"`

	// Response is set for EventReply.
	Response string `json:"response,omitempty"`

	// Time stamps transcript and reply events, RFC 3339.
	Time string `json:"time,omitempty"`

	// Diff is set for EventOrder.
	Diff *order.Changes `json:"diff,omitempty"`

	// Msg is set for EventError and EventClose.
	Msg string `json:"msg,omitempty"`
}

// SuccessEvent is sent once, right after authentication.
func SuccessEvent() Event {
	return Event{Type: EventSuccess}
}

// TranscriptEvent echoes a recognised utterance back to the client.
func TranscriptEvent(text string, at time.Time) Event {
	return Event{Type: EventTranscript, Transcript: text, Time: at.Format(time.RFC3339)}
}

// ReplyEvent carries the generated reply text.
func ReplyEvent(text string, at time.Time) Event {
	return Event{Type: EventReply, Response: text, Time: at.Format(time.RFC3339)}
}

// OrderEvent carries the diff between the pre-turn and post-turn order.
func OrderEvent(diff order.Changes) Event {
	return Event{Type: EventOrder, Diff: &diff}
}

// EndEvent announces a terminal order status.
func EndEvent() Event {
	return Event{Type: EventEnd}
}

// ErrorEvent reports a recoverable fault without closing the stream.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Msg: msg}
}

// CloseEvent precedes connection closure.
func CloseEvent(msg string) Event {
	return Event{Type: EventClose, Msg: msg}
}

// CloseReason tells the transport layer why the stream is closing so
// it can pick the matching close code.
type CloseReason int

const (
	// CloseNormal is a clean end: terminal intent or client hangup.
	CloseNormal CloseReason = iota

	// CloseTimeout means the session hit its wall-clock cap.
	CloseTimeout

	// CloseUnauthorized means credential verification failed.
	CloseUnauthorized

	// CloseInternal covers provider and infrastructure failures.
	CloseInternal
)

// String returns the reason label used in logs.
func (r CloseReason) String() string {
	switch r {
	case CloseNormal:
		return "normal"
	case CloseTimeout:
		return "timeout"
	case CloseUnauthorized:
		return "unauthorized"
	case CloseInternal:
		return "internal"
	default:
		return "unknown"
	}
}
