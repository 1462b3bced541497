package audio

import (
	"encoding/binary"
	"sync"
	"time"
)

// DefaultRecordingLimit bounds how much audio a Mixer keeps per track.
const DefaultRecordingLimit = time.Hour

// Track identifies one side of the conversation in a Mixer.
type Track int

const (
	TrackInput Track = iota
	TrackOutput
)

// Mixer accumulates input and output audio at their session offsets and mixes
// them down to a single mono recording. Tracks are held as PCM16 and audio
// past the limit is discarded.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	limit      int
	tracks     [2][]int16
	written    int
	clipped    bool
}

func NewMixer(sampleRate int, limit time.Duration) *Mixer {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	if limit <= 0 {
		limit = DefaultRecordingLimit
	}
	m := &Mixer{sampleRate: sampleRate}
	m.limit = m.index(limit)
	return m
}

func (m *Mixer) SampleRate() int { return m.sampleRate }

// Add places the frame on the track starting at offset. Overlapping audio on
// the same track is summed with saturation.
func (m *Mixer) Add(track Track, offset time.Duration, f Frame) {
	if len(f.Samples) == 0 || offset < 0 {
		return
	}
	start := m.index(offset)
	if start >= m.limit {
		m.mu.Lock()
		m.clipped = true
		m.mu.Unlock()
		return
	}
	mono := f.Mono()
	samples := Resample(mono.Samples, mono.SampleRate, m.sampleRate)
	if len(samples) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if end := start + len(samples); end > m.limit {
		samples = samples[:m.limit-start]
		m.clipped = true
	}
	buf := m.tracks[track]
	if need := start + len(samples); need > len(buf) {
		capacity := need + need/4
		if capacity > m.limit {
			capacity = m.limit
		}
		grown := make([]int16, need, capacity)
		copy(grown, buf)
		buf = grown
	}
	for i, s := range samples {
		buf[start+i] = saturate(int32(buf[start+i]) + int32(toPCM16(s)))
	}
	m.tracks[track] = buf
	m.written += len(samples)
}

// Truncate drops everything on the track at or after at.
func (m *Mixer) Truncate(track Track, at time.Duration) {
	idx := m.index(at)
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx < len(m.tracks[track]) {
		m.tracks[track] = m.tracks[track][:idx]
	}
}

// Empty reports whether no audio was ever added.
func (m *Mixer) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written == 0
}

// Clipped reports whether audio past the limit was discarded.
func (m *Mixer) Clipped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clipped
}

func (m *Mixer) mixed() []int16 {
	n := len(m.tracks[TrackInput])
	if l := len(m.tracks[TrackOutput]); l > n {
		n = l
	}
	out := make([]int16, n)
	for _, tr := range m.tracks {
		for i, s := range tr {
			out[i] = saturate(int32(out[i]) + int32(s))
		}
	}
	return out
}

// Samples returns the mixed-down mono signal.
func (m *Mixer) Samples() []float32 {
	m.mu.Lock()
	pcm := m.mixed()
	m.mu.Unlock()
	out := make([]float32, len(pcm))
	for i, v := range pcm {
		out[i] = float32(v) / 32768
	}
	return out
}

// WAV encodes the mixed signal as a mono PCM16 WAV file.
func (m *Mixer) WAV() ([]byte, error) {
	m.mu.Lock()
	pcm := m.mixed()
	m.mu.Unlock()
	raw := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	return EncodeWAVPCM16LE(raw, m.sampleRate)
}

func (m *Mixer) index(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d * time.Duration(m.sampleRate) / time.Second)
}

func toPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

func saturate(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
