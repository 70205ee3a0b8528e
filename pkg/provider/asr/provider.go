// Package asr defines the Provider interface for streaming
// speech-to-text backends.
//
// A provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw audio frames and
// emits two streams of Transcript values: low-latency interims for
// client feedback and authoritative finals that feed the order turn
// pipeline. Only finals may mutate order state.
//
// Implementations must be safe for concurrent use. Audio input and
// transcript output channels are goroutine-safe by construction.
package asr

import "context"

// StreamConfig describes the audio format and recognition hints for a
// new transcription session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (typically 16000).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g.,
	// "zh-TW"). Empty lets the provider auto-detect, if supported.
	Language string

	// Keywords is a list of vocabulary hints that raise recognition
	// probability for menu item names.
	Keywords []KeywordBoost
}

// KeywordBoost is a recognition hint for a single term.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "古早紅茶").
	Keyword string

	// Boost is the intensity on the provider-specific scale.
	Boost float64
}

// SessionHandle represents an open transcription session. It is an
// interface so tests can supply doubles without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed; failing
// to do so may leak goroutines and network connections inside the
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one chunk of audio bytes for transcription.
	// Chunks must match the format agreed in StreamConfig. Calling
	// SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Interims returns a read-only channel of low-latency provisional
	// transcripts. Suitable for UI indicators; must never feed the turn
	// pipeline. Closed when the session ends.
	Interims() <-chan Transcript

	// Finals returns a read-only channel of committed transcripts, in
	// the order the provider finalised them. Closed when the session
	// ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and releases
	// all resources. After Close returns, both channels will be closed.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming ASR backend.
//
// Implementations must be safe for concurrent use; multiple sessions
// may be open simultaneously (one per connected customer).
type Provider interface {
	// StartStream opens a new transcription session. The returned
	// handle is ready to accept audio immediately.
	//
	// Returns an error if the session cannot be established
	// (authentication failure, unsupported configuration, or ctx
	// already cancelled). The caller owns the handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
