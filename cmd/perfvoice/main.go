package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/mrsmart/internal/protocol"
	"github.com/antoniostano/mrsmart/internal/voice"
)

type options struct {
	baseURL      string
	wavPath      string
	sessions     int
	chunkMS      int
	realtime     float64
	speak        time.Duration
	linger       time.Duration
	stageTimeout time.Duration
	resetStages  bool
	verbose      bool
}

type wsEnvelope struct {
	Type       string `json:"type"`
	Status     string `json:"status,omitempty"`
	Code       string `json:"code,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Speaker    string `json:"speaker,omitempty"`
	Text       string `json:"text,omitempty"`
	StartMS    int64  `json:"start_ms,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

type audioClip struct {
	PCM16LE    []byte
	SampleRate int
}

type sessionResult struct {
	connectToListening time.Duration
	firstAudio         time.Duration
	audioChunks        int
	replyAudio         time.Duration
	transcripts        int
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var speakMS, lingerMS, stageTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "Mr. Smart base URL")
	flag.StringVar(&cfg.wavPath, "wav", "", "PCM16 WAV file streamed as microphone input (default: synthetic tone)")
	flag.IntVar(&cfg.sessions, "sessions", 3, "number of sequential sessions to run")
	flag.IntVar(&cfg.chunkMS, "chunk-ms", 40, "audio chunk size in milliseconds")
	flag.Float64Var(&cfg.realtime, "realtime", 1.0, "chunk pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&speakMS, "speak-ms", 2000, "length of synthetic input when -wav is not set")
	flag.IntVar(&lingerMS, "linger-ms", 1500, "time to keep listening after input before disconnecting")
	flag.IntVar(&stageTimeoutMS, "stage-timeout-ms", 15000, "timeout for each awaited stage")
	flag.BoolVar(&cfg.resetStages, "reset-stages", true, "clear the server latency window before probing")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print per-session progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.sessions <= 0 {
		return options{}, fmt.Errorf("sessions must be > 0")
	}
	if cfg.chunkMS < 10 || cfg.chunkMS > 2000 {
		return options{}, fmt.Errorf("chunk-ms must be in [10,2000]")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	if speakMS < 0 {
		speakMS = 0
	}
	if lingerMS < 0 {
		lingerMS = 0
	}
	if stageTimeoutMS < 1000 {
		stageTimeoutMS = 1000
	}
	cfg.speak = time.Duration(speakMS) * time.Millisecond
	cfg.linger = time.Duration(lingerMS) * time.Millisecond
	cfg.stageTimeout = time.Duration(stageTimeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	clip, err := loadClip(cfg)
	if err != nil {
		return fmt.Errorf("prepare input audio: %w", err)
	}
	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}

	if cfg.resetStages {
		if err := resetServerStages(ctx, cfg.baseURL); err != nil {
			return fmt.Errorf("reset server stages: %w", err)
		}
	}

	var results []sessionResult
	for i := 0; i < cfg.sessions; i++ {
		res, err := runSession(ctx, cfg, wsURL, clip)
		if err != nil {
			return fmt.Errorf("session %d: %w", i+1, err)
		}
		results = append(results, res)
		if cfg.verbose {
			fmt.Printf("perfvoice: session %d/%d listening=%s first_audio=%s chunks=%d reply_audio=%s transcripts=%d\n",
				i+1, cfg.sessions,
				res.connectToListening.Round(time.Millisecond),
				res.firstAudio.Round(time.Millisecond),
				res.audioChunks, res.replyAudio, res.transcripts)
		}
	}

	printSummary(results)
	if err := printServerStages(ctx, cfg.baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: fetch server stages: %v\n", err)
	}
	return nil
}

func runSession(ctx context.Context, cfg options, wsURL string, clip audioClip) (sessionResult, error) {
	var res sessionResult
	start := time.Now()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return res, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	events := make(chan wsEnvelope, 256)
	readErrCh := make(chan error, 1)
	go readLoop(conn, events, readErrCh, cfg.verbose)

	listening, err := awaitEvent(events, readErrCh, cfg.stageTimeout, func(ev wsEnvelope) bool {
		return ev.Type == string(protocol.TypeStatusEvent) && ev.Status == voice.StatusListening
	}, &res)
	if err != nil {
		return res, fmt.Errorf("await listening: %w", err)
	}
	res.connectToListening = listening.Sub(start)

	firstAudio, err := awaitEvent(events, readErrCh, cfg.stageTimeout, func(ev wsEnvelope) bool {
		return ev.Type == string(protocol.TypeAssistantAudio)
	}, &res)
	if err != nil {
		return res, fmt.Errorf("await greeting audio: %w", err)
	}
	res.firstAudio = firstAudio.Sub(listening)

	seq := 0
	if err := sendAudio(conn, clip, cfg.chunkMS, cfg.realtime, &seq); err != nil {
		return res, fmt.Errorf("send audio: %w", err)
	}
	drain(events, cfg.linger, &res)

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, Action: protocol.ActionDisconnect}); err != nil {
		return res, fmt.Errorf("send disconnect: %w", err)
	}
	if _, err := awaitEvent(events, readErrCh, cfg.stageTimeout, func(ev wsEnvelope) bool {
		return ev.Type == string(protocol.TypeStatusEvent) && ev.Status == voice.StatusDisconnected
	}, &res); err != nil {
		return res, fmt.Errorf("await disconnected: %w", err)
	}
	return res, nil
}

func loadClip(cfg options) (audioClip, error) {
	if strings.TrimSpace(cfg.wavPath) == "" {
		return audioClip{PCM16LE: synthTone(cfg.speak, 16000), SampleRate: 16000}, nil
	}
	data, err := os.ReadFile(cfg.wavPath)
	if err != nil {
		return audioClip{}, err
	}
	pcm, sampleRate, err := decodeWAVPCM16(data)
	if err != nil {
		return audioClip{}, fmt.Errorf("decode %s: %w", cfg.wavPath, err)
	}
	return audioClip{PCM16LE: pcm, SampleRate: sampleRate}, nil
}

// synthTone is a quiet 220 Hz tone, loud enough to pass the server's VAD gate.
func synthTone(d time.Duration, sampleRate int) []byte {
	n := int(d * time.Duration(sampleRate) / time.Second)
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(0.1 * 32767 * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/voice/session/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, events chan<- wsEnvelope, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == string(protocol.TypeErrorEvent) && verbose {
			fmt.Fprintf(os.Stderr, "perfvoice: error_event code=%s detail=%s\n", env.Code, env.Detail)
		}
		select {
		case events <- env:
		default:
		}
	}
}

func count(ev wsEnvelope, res *sessionResult) {
	switch ev.Type {
	case string(protocol.TypeAssistantAudio):
		res.audioChunks++
		res.replyAudio += time.Duration(ev.DurationMS) * time.Millisecond
	case string(protocol.TypeTranscriptDelta):
		res.transcripts++
	}
}

func awaitEvent(events <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration, match func(wsEnvelope) bool, res *sessionResult) (time.Time, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			count(ev, res)
			if match(ev) {
				return time.Now(), nil
			}
		case err := <-readErrCh:
			return time.Time{}, err
		case <-timer.C:
			return time.Time{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func drain(events <-chan wsEnvelope, d time.Duration, res *sessionResult) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			count(ev, res)
		case <-timer.C:
			return
		}
	}
}

func sendAudio(conn *websocket.Conn, clip audioClip, chunkMS int, realtime float64, seq *int) error {
	sampleRate := clip.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	bytesPerChunk := sampleRate * 2 * chunkMS / 1000
	if bytesPerChunk%2 != 0 {
		bytesPerChunk++
	}
	if bytesPerChunk < 2 {
		bytesPerChunk = 2
	}

	for off := 0; off < len(clip.PCM16LE); {
		end := off + bytesPerChunk
		if end > len(clip.PCM16LE) {
			end = len(clip.PCM16LE)
		}
		if (end-off)%2 != 0 {
			end--
		}
		if end <= off {
			break
		}
		chunkBytes := end - off
		*seq = *seq + 1
		msg := protocol.ClientAudioChunk{
			Type:        protocol.TypeClientAudioChunk,
			Seq:         *seq,
			PCM16Base64: base64.StdEncoding.EncodeToString(clip.PCM16LE[off:end]),
			SampleRate:  sampleRate,
			TSMs:        time.Now().UnixMilli(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
		off = end

		chunkDuration := time.Duration(float64(time.Duration(chunkBytes)*time.Second/time.Duration(sampleRate*2)) / realtime)
		if chunkDuration <= 0 {
			chunkDuration = 10 * time.Millisecond
		}
		time.Sleep(chunkDuration)
	}
	return nil
}

func printSummary(results []sessionResult) {
	if len(results) == 0 {
		return
	}
	var listening, first time.Duration
	for _, r := range results {
		listening += r.connectToListening
		first += r.firstAudio
	}
	n := time.Duration(len(results))
	fmt.Printf("perfvoice: %d sessions avg connect_to_listening=%s avg listening_to_first_audio=%s\n",
		len(results), (listening / n).Round(time.Millisecond), (first / n).Round(time.Millisecond))
}

func resetServerStages(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func printServerStages(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Printf("perfvoice: server stages %s\n", strings.TrimSpace(string(body)))
	return nil
}

func decodeWAVPCM16(data []byte) ([]byte, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("wav too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("unsupported wav header")
	}

	var (
		haveFmt     bool
		audioFormat uint16
		channels    uint16
		sampleRate  int
		bitsPerSamp uint16
		pcmData     []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, 0, fmt.Errorf("invalid wav chunk size")
		}
		chunk := data[off : off+size]
		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, 0, fmt.Errorf("invalid wav fmt chunk")
			}
			audioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			bitsPerSamp = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			pcmData = append(pcmData[:0], chunk...)
		}
		off += size
		if size%2 == 1 {
			off++
		}
	}
	if !haveFmt {
		return nil, 0, fmt.Errorf("wav fmt chunk missing")
	}
	if len(pcmData) == 0 {
		return nil, 0, fmt.Errorf("wav data chunk missing")
	}
	if audioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported wav audio format %d", audioFormat)
	}
	if bitsPerSamp != 16 {
		return nil, 0, fmt.Errorf("unsupported wav bits_per_sample %d", bitsPerSamp)
	}
	if channels == 0 {
		return nil, 0, fmt.Errorf("invalid wav channels=0")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	if channels == 1 {
		if len(pcmData)%2 != 0 {
			pcmData = pcmData[:len(pcmData)-1]
		}
		return pcmData, sampleRate, nil
	}

	frameBytes := int(channels) * 2
	if frameBytes <= 0 || len(pcmData) < frameBytes {
		return nil, 0, fmt.Errorf("invalid wav frame bytes")
	}
	frameCount := len(pcmData) / frameBytes
	mono := make([]byte, frameCount*2)
	for i := 0; i < frameCount; i++ {
		base := i * frameBytes
		sum := 0
		for ch := 0; ch < int(channels); ch++ {
			s := int16(binary.LittleEndian.Uint16(pcmData[base+ch*2 : base+ch*2+2]))
			sum += int(s)
		}
		avg := int16(sum / int(channels))
		binary.LittleEndian.PutUint16(mono[i*2:i*2+2], uint16(avg))
	}
	return mono, sampleRate, nil
}
