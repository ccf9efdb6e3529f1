// Package deepgram provides a Deepgram Aura TTS provider using the Deepgram
// REST speak endpoint. It implements the tts.Provider interface.
//
// The endpoint streams linear16 audio as a chunked HTTP response body;
// Synthesize forwards it as it arrives, always on 16-bit sample boundaries.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrWong99/radiomirchi/pkg/provider/tts"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

const (
	speakEndpoint     = "https://api.deepgram.com/v1/speak"
	defaultVoice      = "aura-2-thalia-en"
	defaultSampleRate = 24000
	defaultChunkSize  = 4800
)

// MaleVoices lists the Aura 2 English voices with a male presentation.
var MaleVoices = []string{
	"aura-2-odysseus-en", "aura-2-apollo-en", "aura-2-arcas-en", "aura-2-aries-en",
	"aura-2-atlas-en", "aura-2-draco-en", "aura-2-hermes-en", "aura-2-hyperion-en",
	"aura-2-jupiter-en", "aura-2-mars-en", "aura-2-neptune-en", "aura-2-orion-en",
	"aura-2-orpheus-en", "aura-2-pluto-en", "aura-2-saturn-en", "aura-2-zeus-en",
}

// FemaleVoices lists the Aura 2 English voices with a female presentation.
var FemaleVoices = []string{
	"aura-2-thalia-en", "aura-2-amalthea-en", "aura-2-andromeda-en", "aura-2-asteria-en",
	"aura-2-athena-en", "aura-2-aurora-en", "aura-2-callista-en", "aura-2-cora-en",
	"aura-2-cordelia-en", "aura-2-delia-en", "aura-2-electra-en", "aura-2-harmonia-en",
	"aura-2-helena-en", "aura-2-hera-en", "aura-2-iris-en", "aura-2-janus-en",
	"aura-2-juno-en", "aura-2-luna-en", "aura-2-minerva-en", "aura-2-ophelia-en",
	"aura-2-pandora-en", "aura-2-phoebe-en", "aura-2-selene-en", "aura-2-theia-en",
	"aura-2-vesta-en",
}

// Option is a functional option for configuring the Deepgram TTS Provider.
type Option func(*Provider)

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the speak endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client used for synthesis requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithChunkSize sets the maximum size in bytes of each emitted audio chunk.
func WithChunkSize(n int) Option {
	return func(p *Provider) {
		p.chunkSize = n
	}
}

// Provider implements tts.Provider backed by Deepgram Aura.
type Provider struct {
	apiKey     string
	sampleRate int
	chunkSize  int
	endpoint   string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// New creates a new Deepgram TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram tts: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		sampleRate: defaultSampleRate,
		chunkSize:  defaultChunkSize,
		endpoint:   speakEndpoint,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.chunkSize < 2 {
		p.chunkSize = defaultChunkSize
	}
	return p, nil
}

func (p *Provider) buildURL(model string) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	q.Set("container", "none")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Synthesize requests speech for text and streams the response body. An empty
// voice ID selects the default Aura voice.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Stream, error) {
	model := voice.ID
	if model == "" {
		model = defaultVoice
	}
	endpoint, err := p.buildURL(model)
	if err != nil {
		return nil, fmt.Errorf("deepgram tts: build URL: %w", err)
	}

	body, _ := json.Marshal(map[string]string{"text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deepgram tts: new request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram tts: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("deepgram tts: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	stream := tts.NewChanStream(8)
	go func() {
		defer resp.Body.Close()
		stream.Finish(p.relay(ctx, resp.Body, stream))
	}()
	return stream, nil
}

// relay copies r into stream in chunks of at most chunkSize bytes, holding back
// a trailing odd byte so every chunk contains whole samples.
func (p *Provider) relay(ctx context.Context, r io.Reader, stream *tts.ChanStream) error {
	buf := make([]byte, p.chunkSize)
	pending := 0
	for {
		n, err := r.Read(buf[pending:])
		pending += n
		if whole := pending &^ 1; whole > 0 {
			chunk := make([]byte, whole)
			copy(chunk, buf[:whole])
			if !stream.Send(ctx, chunk) {
				return ctx.Err()
			}
			pending = copy(buf, buf[whole:pending])
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("deepgram tts: read audio: %w", err)
		}
	}
}

// ListVoices returns the Aura 2 English voices with their gender.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	profiles := make([]types.VoiceProfile, 0, len(MaleVoices)+len(FemaleVoices))
	add := func(ids []string, gender string) {
		for _, id := range ids {
			profiles = append(profiles, types.VoiceProfile{
				ID:       id,
				Name:     voiceName(id),
				Provider: "deepgram",
				Gender:   gender,
			})
		}
	}
	add(MaleVoices, "male")
	add(FemaleVoices, "female")
	return profiles, nil
}

// voiceName turns "aura-2-thalia-en" into "Thalia".
func voiceName(id string) string {
	name := strings.TrimSuffix(strings.TrimPrefix(id, "aura-2-"), "-en")
	if name == "" {
		return id
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
