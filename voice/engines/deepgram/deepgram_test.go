package deepgram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/talkcoach/voicekit/voice"
)

// failingMic errors on the first read and records Close.
type failingMic struct {
	mu     sync.Mutex
	closed bool
}

func (m *failingMic) Read([]byte) (int, error) {
	return 0, errors.New("capture device lost")
}

func (m *failingMic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *failingMic) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type stubWriter struct{}

func (stubWriter) Write(p []byte) (int, error) { return len(p), nil }
func (stubWriter) Stop()                       {}

func TestPumpFailureEndsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mic := &failingMic{}
	e := &Engine{config: DefaultConfig()}
	e.active = true
	e.mic = mic
	e.cancel = cancel

	var codes []string
	ended := make(chan struct{})
	events := voice.RecognitionEvents{
		OnError: func(code string, _ error) { codes = append(codes, code) },
		OnEnd:   func() { close(ended) },
	}

	handler := newChannelHandler()
	go e.dispatch(ctx, handler, events)

	e.pumpAudio(ctx, mic, stubWriter{}, events)

	select {
	case <-ctx.Done():
	default:
		t.Fatal("session context still live after capture failure")
	}

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("OnEnd not emitted after capture failure")
	}

	if len(codes) != 1 || codes[0] != voice.CodeAudioCapture {
		t.Errorf("error codes = %v, want [%s]", codes, voice.CodeAudioCapture)
	}
	if !mic.isClosed() {
		t.Error("microphone not released after capture failure")
	}
}

func TestMapAlternatives(t *testing.T) {
	tests := []struct {
		name string
		msg  *api.MessageResponse
		want int
	}{
		{
			name: "ranked alternatives pass through",
			msg: &api.MessageResponse{
				IsFinal: true,
				Channel: api.Channel{
					Alternatives: []api.Alternative{
						{Transcript: "hello world", Confidence: 0.95},
						{Transcript: "hollow world", Confidence: 0.4},
					},
				},
			},
			want: 2,
		},
		{
			name: "empty transcripts dropped",
			msg: &api.MessageResponse{
				Channel: api.Channel{
					Alternatives: []api.Alternative{
						{Transcript: "", Confidence: 0.5},
						{Transcript: "kept", Confidence: 0.8},
					},
				},
			},
			want: 1,
		},
		{
			name: "no alternatives",
			msg:  &api.MessageResponse{},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapAlternatives(tt.msg)
			if len(got) != tt.want {
				t.Fatalf("got %d alternatives, want %d", len(got), tt.want)
			}
			for _, alt := range got {
				if alt.Transcript == "" {
					t.Error("empty transcript survived mapping")
				}
			}
		})
	}
}

func TestAvailableRequiresAPIKey(t *testing.T) {
	e := &Engine{config: DefaultConfig()}
	if e.Available() {
		t.Error("Available() = true without an API key")
	}

	e.config.APIKey = "dg-test-key"
	if !e.Available() {
		t.Error("Available() = false with an API key")
	}
}
