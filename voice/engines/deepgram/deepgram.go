// Package deepgram adapts the Deepgram live transcription API to the
// voice.RecognitionEngine interface. Audio is pumped from the local
// microphone over a websocket; results come back through a channel handler.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/talkcoach/voicekit/voice"
	"github.com/talkcoach/voicekit/voice/audio"
)

// Config configures the Deepgram engine.
type Config struct {
	APIKey         string `yaml:"api_key" env:"DEEPGRAM_API_KEY"`
	Model          string `yaml:"model" env:"VOICEKIT_DEEPGRAM_MODEL" envDefault:"nova-3"`
	Language       string `yaml:"language" env:"VOICEKIT_DEEPGRAM_LANGUAGE" envDefault:"en-US"`
	InterimResults bool   `yaml:"interim_results" env:"VOICEKIT_DEEPGRAM_INTERIM" envDefault:"true"`
}

// DefaultConfig returns the default engine configuration. The API key must
// come from the environment or config file.
func DefaultConfig() Config {
	return Config{
		Model:          "nova-3",
		Language:       "en-US",
		InterimResults: true,
	}
}

// dgWriter wraps the client methods the engine needs, for testability.
type dgWriter interface {
	io.Writer
	Stop()
}

// Engine streams microphone audio to Deepgram and forwards transcription
// events. It owns the microphone for the lifetime of one native session.
type Engine struct {
	config Config

	// openMic is replaceable for tests.
	openMic func() (io.ReadCloser, error)

	mu      sync.Mutex
	active  bool
	aborted bool
	client  dgWriter
	mic     io.ReadCloser
	cancel  context.CancelFunc
}

// NewEngine creates a Deepgram engine.
func NewEngine(cfg Config) *Engine {
	client.InitWithDefault()
	return &Engine{
		config: cfg,
		openMic: func() (io.ReadCloser, error) {
			return audio.OpenMicrophone()
		},
	}
}

// Available reports whether the engine is configured with an API key.
func (e *Engine) Available() bool {
	return e.config.APIKey != ""
}

// Start opens the microphone, connects the websocket, and begins streaming.
// The engine emits OnStart once the connection is open; the context bounds
// the whole native session.
func (e *Engine) Start(ctx context.Context, events voice.RecognitionEvents) error {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return voice.ErrSessionActive
	}
	e.active = true
	e.aborted = false
	e.mu.Unlock()

	fail := func(err error) error {
		e.mu.Lock()
		e.active = false
		e.mu.Unlock()
		return err
	}

	mic, err := e.openMic()
	if err != nil {
		return fail(voice.NewError(voice.ErrAudioCapture, "deepgram").WithCode(voice.CodeAudioCapture))
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	handler := newChannelHandler()

	cOptions := &interfaces.ClientOptions{
		APIKey:          e.config.APIKey,
		EnableKeepAlive: true,
	}
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          e.config.Model,
		Language:       e.config.Language,
		Punctuate:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     audio.MicSampleRate,
		VadEvents:      true,
		InterimResults: e.config.InterimResults,
		UtteranceEndMs: "1000",
	}

	dgClient, err := client.NewWSUsingChan(sessionCtx, "", cOptions, tOptions, handler)
	if err != nil {
		cancel()
		_ = mic.Close()
		return fail(err)
	}
	if success := dgClient.Connect(); !success {
		cancel()
		_ = mic.Close()
		return fail(errors.New("failed to connect to deepgram"))
	}

	e.mu.Lock()
	e.client = dgClient
	e.mic = mic
	e.cancel = cancel
	e.mu.Unlock()

	go e.pumpAudio(sessionCtx, mic, dgClient, events)
	go e.dispatch(sessionCtx, handler, events)
	return nil
}

// Stop requests a graceful end. Deepgram flushes buffered results and then
// closes the connection, which surfaces as OnEnd through dispatch.
func (e *Engine) Stop() {
	e.mu.Lock()
	dgClient := e.client
	e.mu.Unlock()

	if dgClient != nil {
		dgClient.Stop()
	}
}

// Abort tears the session down immediately without further events.
func (e *Engine) Abort() {
	e.mu.Lock()
	e.aborted = true
	dgClient := e.client
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dgClient != nil {
		dgClient.Stop()
	}
	e.cleanup()
}

// pumpAudio streams microphone frames to Deepgram until the session ends.
func (e *Engine) pumpAudio(ctx context.Context, mic io.ReadCloser, dgClient dgWriter, events voice.RecognitionEvents) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := mic.Read(buf)
		if err != nil {
			if ctx.Err() == nil && !e.isAborted() {
				log.Warn("deepgram: microphone read failed", "error", err)
				if events.OnError != nil {
					events.OnError(voice.CodeAudioCapture, err)
				}
			}
			// End the session so dispatch releases the microphone claim
			// and surfaces OnEnd.
			e.cancelSession()
			return
		}
		if n == 0 {
			continue
		}
		if _, err := dgClient.Write(buf[:n]); err != nil {
			if ctx.Err() == nil && !e.isAborted() {
				log.Warn("deepgram: audio write failed", "error", err)
				if events.OnError != nil {
					events.OnError(voice.CodeNetwork, err)
				}
			}
			e.cancelSession()
			return
		}
	}
}

// dispatch translates Deepgram channel events into engine callbacks.
func (e *Engine) dispatch(ctx context.Context, handler *channelHandler, events voice.RecognitionEvents) {
	defer func() {
		e.cleanup()
		if !e.isAborted() && events.OnEnd != nil {
			events.OnEnd()
		}
	}()

	for {
		select {
		case <-handler.openChan:
			if events.OnStart != nil {
				events.OnStart()
			}
		case msg := <-handler.messageChan:
			if msg == nil {
				continue
			}
			alternatives := mapAlternatives(msg)
			if len(alternatives) == 0 {
				continue
			}
			if events.OnResult != nil {
				events.OnResult(alternatives, msg.IsFinal)
			}
		case dgErr := <-handler.errorChan:
			if dgErr == nil {
				continue
			}
			if !e.isAborted() && events.OnError != nil {
				events.OnError(voice.CodeNetwork, fmt.Errorf("%s", dgErr))
			}
		case <-handler.closeChan:
			return
		case <-handler.speechStartedChan:
		case <-handler.utteranceEndChan:
		case <-handler.metadataChan:
		case <-handler.unhandledChan:
		case <-ctx.Done():
			return
		}
	}
}

// cancelSession cancels the session context, unblocking dispatch so its
// deferred cleanup runs.
func (e *Engine) cancelSession() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *Engine) cleanup() {
	e.mu.Lock()
	mic := e.mic
	cancel := e.cancel
	e.mic = nil
	e.client = nil
	e.cancel = nil
	e.active = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if mic != nil {
		_ = mic.Close()
	}
}

func (e *Engine) isAborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aborted
}

// mapAlternatives converts a Deepgram message into ranked alternatives,
// dropping empty transcripts.
func mapAlternatives(msg *api.MessageResponse) []voice.Alternative {
	out := make([]voice.Alternative, 0, len(msg.Channel.Alternatives))
	for _, alt := range msg.Channel.Alternatives {
		if alt.Transcript == "" {
			continue
		}
		out = append(out, voice.Alternative{
			Transcript: alt.Transcript,
			Confidence: alt.Confidence,
		})
	}
	return out
}
