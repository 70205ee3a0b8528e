package whisper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/asr"
)

// loudChunk returns ms milliseconds of constant-amplitude PCM well
// above the silence threshold.
func loudChunk(ms int) []byte {
	samples := defaultSampleRate * ms / 1000
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(4000)))
	}
	return b
}

func newInferenceServer(t *testing.T, text string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCloseTranscribesQueuedAudio(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newInferenceServer(t, "我要一份蛋餅", &hits)

	s := &session{
		serverURL:           srv.URL,
		language:            "zh",
		sampleRate:          defaultSampleRate,
		channels:            1,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
		httpClient:          srv.Client(),
		audioCh:             make(chan []byte, 8),
		interims:            make(chan asr.Transcript, 4),
		finals:              make(chan asr.Transcript, 4),
		done:                make(chan struct{}),
	}

	// Queue speech and shut down before the loop ever runs, like a
	// client hanging up right after its last frame.
	s.audioCh <- loudChunk(100)
	s.audioCh <- loudChunk(100)
	close(s.done)

	s.wg.Add(1)
	s.processLoop(context.Background())

	select {
	case tr := <-s.finals:
		if tr.Text != "我要一份蛋餅" {
			t.Errorf("final text = %q", tr.Text)
		}
		if !tr.IsFinal {
			t.Error("final transcript not marked IsFinal")
		}
	default:
		t.Fatal("queued audio was dropped without transcription")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("inference calls = %d, want 1", got)
	}
}

func TestStartStreamFlushOnClose(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newInferenceServer(t, "好的", &hits)

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), asr.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	if err := h.SendAudio(loudChunk(100)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var finals []asr.Transcript
	for tr := range h.Finals() {
		finals = append(finals, tr)
	}
	if len(finals) != 1 || finals[0].Text != "好的" {
		t.Fatalf("finals = %+v, want one transcript", finals)
	}
	if err := h.SendAudio(loudChunk(20)); err == nil {
		t.Error("SendAudio after Close should fail")
	}
}
