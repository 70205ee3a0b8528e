// Package audio decodes browser audio frames into the 16 kHz mono
// 16-bit PCM that the ASR providers consume. Clients either send raw
// PCM at the negotiated rate or Opus packets at 48 kHz.
package audio

import (
	"errors"
	"fmt"

	"layeh.com/gopus"
)

// ASR target format.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Opus frames from browser capture are 48 kHz at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// ErrOddFrame is returned for PCM payloads with an odd byte count,
// which cannot be int16 samples.
var ErrOddFrame = errors.New("audio: odd byte count in PCM frame")

// FrameDecoder converts one inbound frame into target-format PCM.
// Implementations are stateful per stream and not safe for concurrent
// use.
type FrameDecoder interface {
	Decode(frame []byte) ([]byte, error)
}

// PCMDecoder passes raw little-endian int16 PCM through, resampling
// and downmixing to the target format when the source differs.
type PCMDecoder struct {
	SampleRate int
	Channels   int
}

// Decode validates alignment and converts the frame to 16 kHz mono.
func (d *PCMDecoder) Decode(frame []byte) ([]byte, error) {
	if len(frame)%2 != 0 {
		return nil, ErrOddFrame
	}
	sr := d.SampleRate
	if sr <= 0 {
		sr = TargetSampleRate
	}
	ch := d.Channels
	if ch <= 0 {
		ch = 1
	}

	pcm := frame
	if ch == 2 {
		pcm = StereoToMono(pcm)
	}
	if sr != TargetSampleRate {
		pcm = ResampleMono16(pcm, sr, TargetSampleRate)
	}
	return pcm, nil
}

// OpusDecoder decodes Opus packets and resamples the result to the
// target format. Each stream needs its own decoder so gopus keeps its
// state across consecutive packets.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a decoder for 48 kHz mono Opus input.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes one Opus packet into 16 kHz mono PCM bytes.
func (d *OpusDecoder) Decode(frame []byte) ([]byte, error) {
	samples, err := d.dec.Decode(frame, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	pcm := int16sToBytes(samples)
	return ResampleMono16(pcm, opusSampleRate, TargetSampleRate), nil
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono
// output. Uses int32 arithmetic to prevent overflow and clamps to the
// int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate
// using linear interpolation. If srcRate == dstRate the input is
// returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
