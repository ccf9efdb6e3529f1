// Package whisper provides an STT provider backed by a self-hosted
// whisper.cpp server.
//
// whisper-server exposes a batch REST API at POST /inference. The provider
// buffers the PCM audio of one push-to-talk turn and submits it as a WAV
// upload when the caller invokes Finish. Long turns are cut into segments of
// at most the configured duration; segments are transcribed in order and each
// yields one final. Host names passed as keywords are sent as the decoder
// prompt so that whisper favours their spelling.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	handle, err := p.StartStream(ctx, cfg)
//	handle.SendAudio(pcmChunk)
//	err = handle.Finish(ctx)
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/radiomirchi/pkg/provider/stt"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

const (
	// bitsPerSample is fixed at 16 for the PCM16 audio whisper.cpp expects.
	bitsPerSample = 16

	defaultLanguage     = "en"
	defaultSampleRate   = 16000
	defaultMaxSegmentMs = 30_000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server (e.g.,
// "base.en"). When empty the server uses whichever model it was started with.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the default sample rate in Hz used when StreamConfig
// carries none. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithMaxSegmentMs caps the duration of audio submitted in one request.
// Defaults to 30 000 ms, the window whisper decodes natively.
func WithMaxSegmentMs(ms int) Option {
	return func(p *Provider) {
		p.maxSegmentMs = ms
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
// Every session buffers its own audio; the Provider itself is stateless.
type Provider struct {
	serverURL    string
	model        string
	language     string
	sampleRate   int
	maxSegmentMs int
	httpClient   *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL (e.g.,
// "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		language:     defaultLanguage,
		sampleRate:   defaultSampleRate,
		maxSegmentMs: defaultMaxSegmentMs,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a transcription session. No request is made until a
// segment fills up or Finish is called.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: start stream: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}
	bytesPerMs := sr * ch * (bitsPerSample / 8) / 1000

	sctx, cancel := context.WithCancel(ctx)
	s := &session{
		p:           p,
		language:    lang,
		sampleRate:  sr,
		channels:    ch,
		prompt:      keywordPrompt(cfg.Keywords),
		maxSegBytes: p.maxSegmentMs * bytesPerMs,
		segments:    make(chan []byte, 8),
		finals:      make(chan types.Transcript, 8),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	go s.inferLoop(sctx)
	return s, nil
}

// keywordPrompt joins keyword hints into a decoder prompt.
func keywordPrompt(kws []types.KeywordBoost) string {
	words := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	return strings.Join(words, ", ")
}

// ── session ──────────────────────────────────────────────────────────────────

// session implements stt.SessionHandle for one push-to-talk turn.
type session struct {
	p           *Provider
	language    string
	sampleRate  int
	channels    int
	prompt      string
	maxSegBytes int

	segments chan []byte
	finals   chan types.Transcript
	done     chan struct{}
	cancel   context.CancelFunc

	mu     sync.Mutex
	buf    []byte
	closed bool

	errMu sync.Mutex
	err   error
}

func (s *session) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

func (s *session) firstErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// SendAudio appends a PCM16 chunk to the current segment. A full segment is
// handed to the inference goroutine.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	s.buf = append(s.buf, chunk...)
	if s.maxSegBytes > 0 && len(s.buf) >= s.maxSegBytes {
		s.enqueueLocked()
	}
	return nil
}

// enqueueLocked hands the buffered audio to inferLoop. s.mu must be held.
func (s *session) enqueueLocked() {
	if len(s.buf) == 0 {
		return
	}
	seg := s.buf
	s.buf = nil
	select {
	case s.segments <- seg:
	case <-s.done:
	}
}

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Finish submits the remaining audio and waits until every segment has been
// transcribed.
func (s *session) Finish(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.enqueueLocked()
		close(s.segments)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-ctx.Done():
		s.setErr(fmt.Errorf("whisper: finish: %w", ctx.Err()))
		s.cancel()
		<-s.done
	}
	s.cancel()
	return s.firstErr()
}

// Close aborts the session and drops buffered audio.
func (s *session) Close() error {
	s.cancel()
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.buf = nil
		close(s.segments)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

// inferLoop transcribes segments in submission order and delivers one final
// per non-empty result. Finals is closed on exit.
func (s *session) inferLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.finals)

	var offset time.Duration
	for seg := range s.segments {
		if ctx.Err() != nil {
			continue
		}
		dur := s.duration(seg)
		text, err := s.infer(ctx, seg)
		if err != nil {
			s.setErr(err)
			continue
		}
		start := offset
		offset += dur
		if text == "" {
			continue
		}
		select {
		case s.finals <- types.Transcript{Text: text, IsFinal: true, Start: start, Duration: dur}:
		case <-ctx.Done():
		}
	}
}

func (s *session) duration(pcm []byte) time.Duration {
	bytesPerSec := s.sampleRate * s.channels * (bitsPerSample / 8)
	if bytesPerSec <= 0 {
		return 0
	}
	return time.Duration(len(pcm)) * time.Second / time.Duration(bytesPerSec)
}

// infer uploads pcm as a WAV file to the /inference endpoint and returns the
// trimmed transcript text.
func (s *session) infer(ctx context.Context, pcm []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(pcm, s.sampleRate, s.channels)); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
		"language":        s.language,
		"model":           s.p.model,
		"prompt":          s.prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// encodeWAV wraps raw PCM16 little-endian data in a RIFF/WAV container.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}
