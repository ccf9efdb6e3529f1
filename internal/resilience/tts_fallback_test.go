package resilience

import (
	"context"
	"errors"
	"testing"

	ttsmock "github.com/MrWong99/radiomirchi/pkg/provider/tts/mock"
	"github.com/MrWong99/radiomirchi/pkg/types"
)

func TestTTSFailover_Synthesize(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("503")}
	secondary := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("a1"), []byte("a2")}}

	f := NewTTSFailover("elevenlabs", primary, FailoverConfig{Logger: quiet})
	f.Add("deepgram", secondary)

	voice := types.VoiceProfile{ID: "aura-2-thalia-en", Name: "Thalia"}
	s, err := f.Synthesize(context.Background(), "Good evening.", voice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var n int
	for range s.Chunks() {
		n++
	}
	if n != 2 {
		t.Fatalf("chunks = %d, want 2", n)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("stream Err() = %v", err)
	}
	calls := secondary.Calls()
	if len(calls) != 1 || calls[0].Text != "Good evening." || calls[0].Voice.ID != voice.ID {
		t.Fatalf("secondary calls = %+v", calls)
	}
}

func TestTTSFailover_StreamErrorDoesNotFailOver(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeChunks: [][]byte{[]byte("a1")}, StreamErr: errBoom}
	secondary := &ttsmock.Provider{}

	f := NewTTSFailover("p", primary, FailoverConfig{Logger: quiet})
	f.Add("s", secondary)

	s, err := f.Synthesize(context.Background(), "x", types.VoiceProfile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range s.Chunks() {
	}
	if !errors.Is(s.Err(), errBoom) {
		t.Fatalf("stream Err() = %v, want errBoom", s.Err())
	}
	if len(secondary.Calls()) != 0 {
		t.Fatal("secondary called after stream started")
	}
}

func TestTTSFailover_ListVoices(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{ListVoicesErr: errBoom}
	secondary := &ttsmock.Provider{ListVoicesResult: []types.VoiceProfile{{ID: "v1"}}}

	f := NewTTSFailover("p", primary, FailoverConfig{Logger: quiet})
	f.Add("s", secondary)

	voices, err := f.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Fatalf("voices = %+v", voices)
	}
}

func TestTTSFailover_AllFailed(t *testing.T) {
	t.Parallel()
	f := NewTTSFailover("p", &ttsmock.Provider{SynthesizeErr: errBoom}, FailoverConfig{Logger: quiet})
	f.Add("s", &ttsmock.Provider{SynthesizeErr: errBoom})
	if _, err := f.Synthesize(context.Background(), "x", types.VoiceProfile{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
