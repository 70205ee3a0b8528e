package asr

import "time"

// Transcript is a speech-to-text result. Both interim and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a committed (authoritative)
	// result or a provisional interim.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when
	// the provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session
	// start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}
