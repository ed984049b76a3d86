// Package config aggregates configuration for every voice component and
// loads it from file, environment, and defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/talkcoach/voicekit/voice/capability"
	"github.com/talkcoach/voicekit/voice/engines/deepgram"
	"github.com/talkcoach/voicekit/voice/engines/piper"
	"github.com/talkcoach/voicekit/voice/fallback"
	"github.com/talkcoach/voicekit/voice/recognition"
	"github.com/talkcoach/voicekit/voice/store"
	"github.com/talkcoach/voicekit/voice/synthesis"
)

// Engine selection values.
const (
	RecognitionEngineMock     = "mock"
	RecognitionEngineDeepgram = "deepgram"

	SynthesisEngineMock  = "mock"
	SynthesisEnginePiper = "piper"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config contains all voice subsystem configuration.
type Config struct {
	// Engine selection
	RecognitionEngine string `yaml:"recognition_engine" env:"VOICEKIT_RECOGNITION_ENGINE" envDefault:"deepgram"`
	SynthesisEngine   string `yaml:"synthesis_engine" env:"VOICEKIT_SYNTHESIS_ENGINE" envDefault:"piper"`
	StateStore        string `yaml:"state_store" env:"VOICEKIT_STATE_STORE" envDefault:"memory"`

	// Component configuration
	Capability  capability.Config  `yaml:"capability"`
	Recognition recognition.Config `yaml:"recognition"`
	Synthesis   synthesis.Config   `yaml:"synthesis"`
	Fallback    fallback.Config    `yaml:"fallback"`

	// Backend configuration
	Deepgram deepgram.Config   `yaml:"deepgram"`
	Piper    piper.Config      `yaml:"piper"`
	Redis    store.RedisConfig `yaml:"redis"`
}

// Default returns a Config with defaults for every component.
func Default() Config {
	return Config{
		RecognitionEngine: RecognitionEngineDeepgram,
		SynthesisEngine:   SynthesisEnginePiper,
		StateStore:        StoreMemory,

		Capability:  capability.DefaultConfig(),
		Recognition: recognition.DefaultConfig(),
		Synthesis:   synthesis.DefaultConfig(),
		Fallback:    fallback.DefaultConfig(),

		Deepgram: deepgram.DefaultConfig(),
		Piper:    piper.DefaultConfig(),
		Redis: store.RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "voicekit:",
			TTL:    24 * time.Hour,
		},
	}
}

// Validate checks engine selection and every component configuration.
func (c *Config) Validate() error {
	validRecognition := []string{RecognitionEngineMock, RecognitionEngineDeepgram}
	if !oneOf(c.RecognitionEngine, validRecognition) {
		return fmt.Errorf("invalid recognition engine %q: must be one of %v", c.RecognitionEngine, validRecognition)
	}
	c.RecognitionEngine = strings.ToLower(c.RecognitionEngine)

	validSynthesis := []string{SynthesisEngineMock, SynthesisEnginePiper}
	if !oneOf(c.SynthesisEngine, validSynthesis) {
		return fmt.Errorf("invalid synthesis engine %q: must be one of %v", c.SynthesisEngine, validSynthesis)
	}
	c.SynthesisEngine = strings.ToLower(c.SynthesisEngine)

	validStores := []string{StoreMemory, StoreRedis}
	if !oneOf(c.StateStore, validStores) {
		return fmt.Errorf("invalid state store %q: must be one of %v", c.StateStore, validStores)
	}
	c.StateStore = strings.ToLower(c.StateStore)

	if err := c.Capability.Validate(); err != nil {
		return fmt.Errorf("capability config: %w", err)
	}
	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}
	if err := c.Synthesis.Validate(); err != nil {
		return fmt.Errorf("synthesis config: %w", err)
	}
	if err := c.Fallback.Validate(); err != nil {
		return fmt.Errorf("fallback config: %w", err)
	}
	if c.SynthesisEngine == SynthesisEnginePiper {
		if err := c.Piper.Validate(); err != nil {
			return fmt.Errorf("piper config: %w", err)
		}
	}

	return nil
}

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if strings.EqualFold(value, v) {
			return true
		}
	}
	return false
}
