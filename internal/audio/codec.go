package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	// CaptureSampleRate is the microphone rate streamed to the model.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of the model's reply audio.
	PlaybackSampleRate = 24000

	MinSampleRate = 8000
	MaxSampleRate = 48000
	// MaxFrameDuration bounds a single decoded frame.
	MaxFrameDuration = 2 * time.Second
)

// ErrCodec matches every *CodecError via errors.Is.
var ErrCodec = errors.New("audio codec error")

// CodecError reports malformed audio input. Callers drop the frame and continue.
type CodecError struct {
	Op     string
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("audio %s: %s", e.Op, e.Reason)
}

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

// Frame is a chunk of linear PCM samples in [-1, 1]. Samples are interleaved
// when Channels > 1. Frames are treated as immutable once produced.
type Frame struct {
	Seq        uint64
	SampleRate int
	Channels   int
	Samples    []float32
}

// Duration is the playing time of the frame at its declared rate.
func (f Frame) Duration() time.Duration {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	if f.SampleRate <= 0 || len(f.Samples) == 0 {
		return 0
	}
	perChannel := len(f.Samples) / ch
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// Mono returns the frame down-mixed to a single channel.
func (f Frame) Mono() Frame {
	if f.Channels <= 1 {
		f.Channels = 1
		return f
	}
	n := len(f.Samples) / f.Channels
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < f.Channels; c++ {
			sum += f.Samples[i*f.Channels+c]
		}
		out[i] = sum / float32(f.Channels)
	}
	return Frame{Seq: f.Seq, SampleRate: f.SampleRate, Channels: 1, Samples: out}
}

// MIMEType is the wire content type for raw PCM16 at the given rate.
func MIMEType(sampleRate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(sampleRate)
}

// EncodePCM16 converts float samples to little-endian signed 16-bit PCM.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 wraps little-endian 16-bit PCM bytes into a playable frame.
func DecodePCM16(data []byte, sampleRate, channels int) (Frame, error) {
	if sampleRate < MinSampleRate || sampleRate > MaxSampleRate {
		return Frame{}, &CodecError{Op: "decode", Reason: fmt.Sprintf("sample rate %d outside [%d,%d]", sampleRate, MinSampleRate, MaxSampleRate)}
	}
	if channels <= 0 {
		channels = 1
	}
	if len(data) == 0 {
		return Frame{}, &CodecError{Op: "decode", Reason: "empty payload"}
	}
	if len(data)%2 != 0 {
		return Frame{}, &CodecError{Op: "decode", Reason: fmt.Sprintf("odd byte length %d", len(data))}
	}
	n := len(data) / 2
	if n%channels != 0 {
		return Frame{}, &CodecError{Op: "decode", Reason: fmt.Sprintf("%d samples not divisible by %d channels", n, channels)}
	}
	if limit := int(MaxFrameDuration/time.Millisecond) * sampleRate / 1000; n/channels > limit {
		return Frame{}, &CodecError{Op: "decode", Reason: fmt.Sprintf("frame of %d samples exceeds %s", n/channels, MaxFrameDuration)}
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return Frame{SampleRate: sampleRate, Channels: channels, Samples: samples}, nil
}

// EncodeBase64 returns the base64 wire form of the frame's PCM16 samples.
func EncodeBase64(f Frame) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(f.Samples))
}

// DecodeBase64 parses a base64 PCM16 payload into a frame.
func DecodeBase64(payload string, sampleRate, channels int) (Frame, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Frame{}, &CodecError{Op: "decode", Reason: "invalid base64: " + err.Error()}
	}
	return DecodePCM16(raw, sampleRate, channels)
}

// RMS is the root-mean-square energy of the samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Resample converts mono samples between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(lo))
		out[i] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}
	return out
}
