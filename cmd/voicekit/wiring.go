package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/talkcoach/voicekit/voice"
	"github.com/talkcoach/voicekit/voice/capability"
	"github.com/talkcoach/voicekit/voice/config"
	"github.com/talkcoach/voicekit/voice/engines/deepgram"
	"github.com/talkcoach/voicekit/voice/engines/mock"
	"github.com/talkcoach/voicekit/voice/engines/piper"
	"github.com/talkcoach/voicekit/voice/fallback"
	"github.com/talkcoach/voicekit/voice/store"
)

// stack is the assembled voice subsystem shared by the subcommands.
type stack struct {
	recognition voice.RecognitionEngine
	synthesis   voice.SynthesisEngine
	assessor    *capability.Assessor
	coordinator *fallback.Coordinator

	closers []func() error
}

// buildStack wires engines, store, assessor, and coordinator from config.
func buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	s := &stack{}

	switch cfg.RecognitionEngine {
	case config.RecognitionEngineDeepgram:
		s.recognition = deepgram.NewEngine(cfg.Deepgram)
	default:
		s.recognition = mock.NewRecognitionEngine()
	}

	switch cfg.SynthesisEngine {
	case config.SynthesisEnginePiper:
		engine, err := piper.NewEngine(cfg.Piper)
		if err != nil {
			return nil, fmt.Errorf("creating piper engine: %w", err)
		}
		s.synthesis = engine
		s.closers = append(s.closers, engine.Close)
	default:
		s.synthesis = mock.NewSynthesisEngine()
	}

	var st store.Store
	switch cfg.StateStore {
	case config.StoreRedis:
		redisStore, err := store.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		st = redisStore
		s.closers = append(s.closers, redisStore.Close)
	default:
		st = store.NewMemoryStore()
	}

	s.assessor = capability.NewAssessor(cfg.Capability, s.recognition, s.synthesis, nil)
	s.coordinator = fallback.NewCoordinator(cfg.Fallback, s.assessor, st, sessionID())
	s.closers = append(s.closers, func() error {
		s.coordinator.Close()
		return nil
	})

	return s, nil
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// sessionID identifies this installation's persisted fallback state. One ID
// per host keeps state across restarts without colliding between machines.
func sessionID() string {
	if data, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
