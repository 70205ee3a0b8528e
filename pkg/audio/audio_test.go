package audio_test

import (
	"errors"
	"testing"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/audio"
)

func pcmFromSamples(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

func samplesFromPCM(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

func TestPCMDecoderOddFrame(t *testing.T) {
	t.Parallel()

	d := &audio.PCMDecoder{SampleRate: 16000, Channels: 1}
	_, err := d.Decode([]byte{0x01, 0x02, 0x03})
	if !errors.Is(err, audio.ErrOddFrame) {
		t.Fatalf("Decode error = %v, want ErrOddFrame", err)
	}
}

func TestPCMDecoderPassthrough(t *testing.T) {
	t.Parallel()

	in := pcmFromSamples([]int16{100, -100, 32767, -32768})
	d := &audio.PCMDecoder{SampleRate: 16000, Channels: 1}

	out, err := d.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("output length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("byte %d = %d, want %d", i, out[i], in[i])
		}
	}
}

func TestPCMDecoderStereoDownmix(t *testing.T) {
	t.Parallel()

	// Two stereo frames: (100, 300) and (-200, -400).
	in := pcmFromSamples([]int16{100, 300, -200, -400})
	d := &audio.PCMDecoder{SampleRate: 16000, Channels: 2}

	out, err := d.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got := samplesFromPCM(out)
	want := []int16{200, -300}
	if len(got) != len(want) {
		t.Fatalf("sample count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCMDecoderResamples(t *testing.T) {
	t.Parallel()

	// 48 kHz mono input should shrink to a third of the samples.
	in := pcmFromSamples(make([]int16, 480))
	d := &audio.PCMDecoder{SampleRate: 48000, Channels: 1}

	out, err := d.Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got, want := len(out)/2, 160; got != want {
		t.Fatalf("resampled sample count = %d, want %d", got, want)
	}
}

func TestStereoToMonoClamps(t *testing.T) {
	t.Parallel()

	in := pcmFromSamples([]int16{32767, 32767})
	got := samplesFromPCM(audio.StereoToMono(in))
	if len(got) != 1 || got[0] != 32767 {
		t.Fatalf("StereoToMono = %v, want [32767]", got)
	}
}

func TestResampleMono16SameRate(t *testing.T) {
	t.Parallel()

	in := pcmFromSamples([]int16{1, 2, 3})
	out := audio.ResampleMono16(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Fatal("same-rate resample should return the input unchanged")
	}
}
