package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MrWong99/radiomirchi/pkg/mission"
	"github.com/MrWong99/radiomirchi/pkg/mission/storetest"
	sttmock "github.com/MrWong99/radiomirchi/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/radiomirchi/pkg/provider/tts/mock"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var catalogue = []types.VoiceProfile{
	{ID: "m1", Gender: "male"},
	{ID: "m2", Gender: "male"},
	{ID: "f1", Gender: "female"},
	{ID: "f2", Gender: "female"},
	{ID: "f3", Gender: "female"},
}

func gender(t *testing.T, id string) string {
	t.Helper()
	for _, v := range catalogue {
		if v.ID == id {
			return v.Gender
		}
	}
	t.Fatalf("voice %q not in catalogue", id)
	return ""
}

func TestCast_ByGender(t *testing.T) {
	t.Parallel()
	speakers := []mission.Speaker{
		{Name: "Arthur Sterling", Gender: "male"},
		{Name: "Luna Vale", Gender: "Female"},
		{Name: "Pat", Gender: ""},
	}
	c := Cast(catalogue, speakers)

	if g := gender(t, c.Voice("Arthur Sterling").ID); g != "male" {
		t.Errorf("Arthur Sterling got a %s voice", g)
	}
	if g := gender(t, c.Voice("luna vale").ID); g != "female" {
		t.Errorf("Luna Vale got a %s voice", g)
	}
	if g := gender(t, c.Voice("Pat").ID); g != DefaultGender {
		t.Errorf("Pat got a %s voice, want %s", g, DefaultGender)
	}
	if c.Voice("Luna Vale").ID == c.Voice("Pat").ID {
		t.Error("two female hosts share a voice while the pool has spares")
	}
}

func TestCast_Stable(t *testing.T) {
	t.Parallel()
	speakers := storetest.Fixture("m").Speakers
	a := Cast(catalogue, speakers)
	b := Cast(catalogue, speakers)
	for _, s := range speakers {
		if a.Voice(s.Name).ID != b.Voice(s.Name).ID {
			t.Errorf("%s cast differently across runs", s.Name)
		}
	}
}

func TestCast_UnknownSpeakerGetsFirstHostVoice(t *testing.T) {
	t.Parallel()
	speakers := storetest.Fixture("m").Speakers
	c := Cast(catalogue, speakers)
	if c.Voice("Narrator").ID != c.Voice(speakers[0].Name).ID {
		t.Error("unknown speaker did not fall back to the first host")
	}
}

func TestCast_EmptyGenderPoolUsesWholeCatalogue(t *testing.T) {
	t.Parallel()
	c := Cast([]types.VoiceProfile{{ID: "only", Gender: "female"}}, []mission.Speaker{{Name: "Arthur", Gender: "male"}})
	if c.Voice("Arthur").ID != "only" {
		t.Fatalf("Voice = %q, want only", c.Voice("Arthur").ID)
	}
}

func TestNewCaster_FallsBackToCatalogue(t *testing.T) {
	t.Parallel()
	m := storetest.Fixture("m")
	tests := []struct {
		name string
		p    *ttsmock.Provider
	}{
		{name: "list error", p: &ttsmock.Provider{ListVoicesErr: errors.New("unauthorised")}},
		{name: "empty list", p: &ttsmock.Provider{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewCaster(context.Background(), tt.p, m, catalogue, quiet)
			if c.Voice("Arthur Sterling").ID == "" {
				t.Fatal("no voice cast")
			}
		})
	}

	p := &ttsmock.Provider{ListVoicesResult: []types.VoiceProfile{{ID: "remote", Gender: "male"}}}
	if got := NewCaster(context.Background(), p, m, catalogue, quiet).Voice("Arthur Sterling").ID; got != "remote" {
		t.Fatalf("Voice = %q, want the provider's voice", got)
	}
}

func feed(chunks ...string) <-chan []byte {
	ch := make(chan []byte, len(chunks))
	for _, c := range chunks {
		ch <- []byte(c)
	}
	close(ch)
	return ch
}

func TestRecognizer_StreamConfig(t *testing.T) {
	t.Parallel()
	p := &sttmock.Provider{}
	r := NewRecognizer(p, storetest.Fixture("m"), WithRecognizerLogger(quiet), WithLanguage("en-GB"))
	if _, err := r.Recognize(context.Background(), feed()); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(p.StartStreamCalls) != 1 {
		t.Fatalf("StartStream called %d times, want 1", len(p.StartStreamCalls))
	}
	cfg := p.StartStreamCalls[0].Cfg
	if cfg.SampleRate != 16000 || cfg.Channels != 1 || cfg.Language != "en-GB" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[0].Keyword != "Arthur Sterling" {
		t.Errorf("Keywords = %+v", cfg.Keywords)
	}
}

func TestRecognizer_Transcript(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sess    *sttmock.Session
		want    string
		wantErr bool
	}{
		{
			name: "joins finals",
			sess: &sttmock.Session{Transcripts: []types.Transcript{
				{Text: "the moon", IsFinal: true},
				{Text: "  ", IsFinal: true},
				{Text: "is basalt", IsFinal: true},
			}},
			want: "the moon is basalt",
		},
		{name: "silence", sess: &sttmock.Session{}, want: ""},
		{
			name: "corrects host names",
			sess: &sttmock.Session{Transcripts: []types.Transcript{{Text: "I think lunar veil is lying", IsFinal: true}}},
			want: "I think Luna Vale is lying",
		},
		{
			name: "finish error discards partial transcript",
			sess: &sttmock.Session{
				Transcripts: []types.Transcript{{Text: "partial", IsFinal: true}},
				FinishErr:   errors.New("socket reset"),
			},
			wantErr: true,
		},
		{
			name: "send error discards partial transcript",
			sess: &sttmock.Session{
				Transcripts:  []types.Transcript{{Text: "partial", IsFinal: true}},
				SendAudioErr: errors.New("gone"),
			},
			wantErr: true,
		},
		{name: "finish error without text", sess: &sttmock.Session{FinishErr: errors.New("socket reset")}, wantErr: true},
		{name: "send error without text", sess: &sttmock.Session{SendAudioErr: errors.New("gone")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRecognizer(&sttmock.Provider{Session: tt.sess}, storetest.Fixture("m"), WithRecognizerLogger(quiet))
			got, err := r.Recognize(context.Background(), feed("a", "b"))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if got != "" {
					t.Fatalf("transcript = %q alongside error, want empty", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Recognize: %v", err)
			}
			if got != tt.want {
				t.Fatalf("transcript = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecognizer_ForwardsAudio(t *testing.T) {
	t.Parallel()
	sess := &sttmock.Session{}
	r := NewRecognizer(&sttmock.Provider{Session: sess}, storetest.Fixture("m"), WithRecognizerLogger(quiet))
	if _, err := r.Recognize(context.Background(), feed("a", "b", "c")); err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	chunks := sess.AudioChunks()
	if len(chunks) != 3 || string(chunks[2]) != "c" {
		t.Fatalf("chunks = %q", chunks)
	}
	if sess.FinishCallCount != 1 {
		t.Fatalf("Finish called %d times, want 1", sess.FinishCallCount)
	}
}

func TestRecognizer_StartErrorDrainsAudio(t *testing.T) {
	t.Parallel()
	errDown := errors.New("handshake failed")
	r := NewRecognizer(&sttmock.Provider{StartStreamErr: errDown}, storetest.Fixture("m"), WithRecognizerLogger(quiet))

	audio := make(chan []byte)
	done := make(chan error, 1)
	go func() {
		_, err := r.Recognize(context.Background(), audio)
		done <- err
	}()
	for range 3 {
		select {
		case audio <- []byte("x"):
		case <-time.After(3 * time.Second):
			t.Fatal("recognizer stopped draining audio")
		}
	}
	close(audio)
	if err := <-done; !errors.Is(err, errDown) {
		t.Fatalf("err = %v, want errDown", err)
	}
}

func TestRecognizer_CancelClosesStream(t *testing.T) {
	t.Parallel()
	sess := &sttmock.Session{}
	r := NewRecognizer(&sttmock.Provider{Session: sess}, storetest.Fixture("m"), WithRecognizerLogger(quiet))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Recognize(ctx, make(chan []byte))
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Recognize did not return after cancel")
	}
	if sess.CloseCallCount != 1 {
		t.Fatalf("Close called %d times, want 1", sess.CloseCallCount)
	}
}

func TestNameCorrector(t *testing.T) {
	t.Parallel()
	c := NewNameCorrector([]string{"Arthur Sterling", "Luna Vale"}, 0)
	tests := []struct {
		in, want string
	}{
		{"lunar veil, tell the truth!", "Luna Vale, tell the truth!"},
		{"ask arthur sterling.", "ask Arthur Sterling."},
		{"the moon is basalt", "the moon is basalt"},
		{"arthur", "arthur"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := c.Correct(tt.in); got != tt.want {
			t.Errorf("Correct(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNameCorrector_NoNames(t *testing.T) {
	t.Parallel()
	var nilCorrector *NameCorrector
	if got := nilCorrector.Correct("lunar veil"); got != "lunar veil" {
		t.Errorf("nil corrector changed text: %q", got)
	}
	if got := NewNameCorrector([]string{"  "}, 0).Correct("lunar veil"); got != "lunar veil" {
		t.Errorf("blank names changed text: %q", got)
	}
}
