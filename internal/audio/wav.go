package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrNotWAV = errors.New("not a PCM16 WAV stream")

// wavHeader is the canonical 44-byte RIFF/WAVE header for mono PCM16.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// WAVInfo describes a parsed WAV payload.
type WAVInfo struct {
	SampleRate int
	Channels   int
	DataBytes  int
}

// Duration is the playing time of the PCM16 data.
func (i WAVInfo) Duration() time.Duration {
	if i.SampleRate <= 0 || i.Channels <= 0 {
		return 0
	}
	samples := i.DataBytes / 2 / i.Channels
	return time.Duration(samples) * time.Second / time.Duration(i.SampleRate)
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := out.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// ParseWAVHeader reads the canonical header written by WriteWAVPCM16LETo.
func ParseWAVHeader(data []byte) (WAVInfo, error) {
	var h wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return WAVInfo{}, ErrNotWAV
	}
	if string(h.RIFF[:]) != "RIFF" || string(h.WAVE[:]) != "WAVE" || string(h.Data[:]) != "data" {
		return WAVInfo{}, ErrNotWAV
	}
	if h.AudioFormat != 1 || h.BitsPerSample != 16 {
		return WAVInfo{}, ErrNotWAV
	}
	return WAVInfo{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.NumChannels),
		DataBytes:  int(h.DataSize),
	}, nil
}
