// Package piper adapts the piper text-to-speech binary to the
// voice.SynthesisEngine interface. Each utterance runs a fresh piper
// process producing raw PCM, played through the shared audio player.
package piper

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/talkcoach/voicekit/voice"
	"github.com/talkcoach/voicekit/voice/audio"
)

// Config configures the piper engine.
type Config struct {
	BinaryPath       string        `yaml:"binary_path" env:"VOICEKIT_PIPER_BINARY" envDefault:"piper"`
	ModelPath        string        `yaml:"model_path" env:"VOICEKIT_PIPER_MODEL"`
	SampleRate       int           `yaml:"sample_rate" env:"VOICEKIT_PIPER_SAMPLE_RATE" envDefault:"22050"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" env:"VOICEKIT_PIPER_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns the default piper configuration.
func DefaultConfig() Config {
	return Config{
		BinaryPath:       "piper",
		SampleRate:       22050,
		SynthesisTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration for sanity.
func (c Config) Validate() error {
	if c.BinaryPath == "" {
		return fmt.Errorf("piper binary path is required")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", c.SampleRate)
	}
	if c.SynthesisTimeout <= 0 {
		return fmt.Errorf("synthesis timeout must be positive, got %v", c.SynthesisTimeout)
	}
	return nil
}

// Engine drives the piper binary. Speak is asynchronous: synthesis and
// playback run in a goroutine and report through the utterance events.
type Engine struct {
	config Config
	player *audio.Player

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	events     voice.UtteranceEvents
}

// NewEngine creates a piper engine and its audio player.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	player, err := audio.NewPlayer(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	return &Engine{config: cfg, player: player}, nil
}

// Available reports whether the piper binary can run.
func (e *Engine) Available() bool {
	if e.config.ModelPath == "" {
		return false
	}
	return exec.Command(e.config.BinaryPath, "--version").Run() == nil
}

// Voices returns the single voice provided by the configured model.
func (e *Engine) Voices() []voice.Voice {
	return []voice.Voice{
		{ID: "piper-default", Name: "Piper", Language: "en-US", Gender: "neutral"},
	}
}

// Speak synthesizes and plays one utterance. Callers serialize; a second
// Speak before the first completes supersedes it.
func (e *Engine) Speak(u voice.Utterance, events voice.UtteranceEvents) error {
	if u.Text == "" {
		return voice.ErrEmptyUtterance
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.SynthesisTimeout)

	e.mu.Lock()
	e.generation++
	gen := e.generation
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.events = events
	e.mu.Unlock()

	go e.run(ctx, u, events, gen)
	return nil
}

// Cancel stops the in-flight utterance. Its events will not fire after
// Cancel returns.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.generation++
	cancel := e.cancel
	e.cancel = nil
	e.events = voice.UtteranceEvents{}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.player.Stop()
}

// Pause suspends playback of the in-flight utterance.
func (e *Engine) Pause() {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()

	e.player.Pause()
	if events.OnPause != nil {
		events.OnPause()
	}
}

// Resume continues a paused utterance.
func (e *Engine) Resume() {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()

	e.player.Resume()
	if events.OnResume != nil {
		events.OnResume()
	}
}

// Close stops playback and releases the audio player.
func (e *Engine) Close() error {
	e.Cancel()
	return e.player.Close()
}

func (e *Engine) run(ctx context.Context, u voice.Utterance, events voice.UtteranceEvents, gen uint64) {
	pcm, err := e.synthesize(ctx, u)
	if e.stale(gen) {
		return
	}
	if err != nil {
		log.Warn("piper: synthesis failed", "error", err)
		if events.OnError != nil {
			events.OnError(err)
		}
		return
	}

	if events.OnStart != nil {
		events.OnStart()
	}
	err = e.player.Play(pcm, func() {
		if e.stale(gen) {
			return
		}
		if events.OnEnd != nil {
			events.OnEnd()
		}
	})
	if err != nil && !e.stale(gen) {
		if events.OnError != nil {
			events.OnError(err)
		}
	}
}

// synthesisArgs builds the piper command line for one utterance.
func synthesisArgs(cfg Config, u voice.Utterance) []string {
	args := []string{
		"--model", cfg.ModelPath,
		"--output-raw",
	}
	if u.Rate > 0 && u.Rate != 1.0 {
		// piper's length scale is the inverse of speech rate.
		args = append(args, "--length-scale", strconv.FormatFloat(1.0/u.Rate, 'f', 2, 64))
	}
	return args
}

// synthesize runs one piper process and returns raw PCM.
func (e *Engine) synthesize(ctx context.Context, u voice.Utterance) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.config.BinaryPath, synthesisArgs(e.config, u)...)
	cmd.Stdin = bytes.NewBufferString(u.Text + "\n")

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("piper failed: %w", err)
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("piper produced no audio")
	}

	log.Debug("piper: synthesized",
		"bytes", len(output),
		"duration", e.player.Duration(output))
	return output, nil
}

func (e *Engine) stale(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen != e.generation
}
