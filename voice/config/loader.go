package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Load resolves configuration in precedence order: defaults, then
// environment variables, then the config file (if one is found). An
// explicit file always wins over ambient environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("voicekit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/voicekit")
		v.AddConfigPath("/etc/voicekit")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	} else {
		log.Debug("config: loaded file", "path", v.ConfigFileUsed())
		applyViper(v, &cfg)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyViper overlays file settings onto cfg. Only keys present in the
// file override defaults.
func applyViper(v *viper.Viper, cfg *Config) {
	if v.IsSet("recognition_engine") {
		cfg.RecognitionEngine = v.GetString("recognition_engine")
	}
	if v.IsSet("synthesis_engine") {
		cfg.SynthesisEngine = v.GetString("synthesis_engine")
	}
	if v.IsSet("state_store") {
		cfg.StateStore = v.GetString("state_store")
	}

	if v.IsSet("capability.probe_timeout") {
		setDuration(v, "capability.probe_timeout", &cfg.Capability.ProbeTimeout)
	}

	if v.IsSet("recognition.normal_threshold") {
		cfg.Recognition.NormalThreshold = v.GetFloat64("recognition.normal_threshold")
	}
	if v.IsSet("recognition.filler_threshold") {
		cfg.Recognition.FillerThreshold = v.GetFloat64("recognition.filler_threshold")
	}
	if v.IsSet("recognition.min_transcript_length") {
		cfg.Recognition.MinTranscriptLength = v.GetInt("recognition.min_transcript_length")
	}
	if v.IsSet("recognition.restart_delay") {
		setDuration(v, "recognition.restart_delay", &cfg.Recognition.RestartDelay)
	}
	if v.IsSet("recognition.allow_unreported_confidence") {
		cfg.Recognition.AllowUnreportedConfidence = v.GetBool("recognition.allow_unreported_confidence")
	}

	if v.IsSet("synthesis.max_queue_size") {
		cfg.Synthesis.MaxQueueSize = v.GetInt("synthesis.max_queue_size")
	}
	if v.IsSet("synthesis.inter_utterance_pause") {
		setDuration(v, "synthesis.inter_utterance_pause", &cfg.Synthesis.InterUtterancePause)
	}
	if v.IsSet("synthesis.max_text_length") {
		cfg.Synthesis.MaxTextLength = v.GetInt("synthesis.max_text_length")
	}

	if v.IsSet("fallback.max_retries") {
		cfg.Fallback.MaxRetries = v.GetInt("fallback.max_retries")
	}
	if v.IsSet("fallback.backoff_base") {
		setDuration(v, "fallback.backoff_base", &cfg.Fallback.BackoffBase)
	}
	if v.IsSet("fallback.backoff_cap") {
		setDuration(v, "fallback.backoff_cap", &cfg.Fallback.BackoffCap)
	}
	if v.IsSet("fallback.staleness_expiry") {
		setDuration(v, "fallback.staleness_expiry", &cfg.Fallback.StalenessExpiry)
	}

	if v.IsSet("deepgram.api_key") {
		cfg.Deepgram.APIKey = v.GetString("deepgram.api_key")
	}
	if v.IsSet("deepgram.model") {
		cfg.Deepgram.Model = v.GetString("deepgram.model")
	}
	if v.IsSet("deepgram.language") {
		cfg.Deepgram.Language = v.GetString("deepgram.language")
	}
	if v.IsSet("deepgram.interim_results") {
		cfg.Deepgram.InterimResults = v.GetBool("deepgram.interim_results")
	}

	if v.IsSet("piper.binary_path") {
		cfg.Piper.BinaryPath = v.GetString("piper.binary_path")
	}
	if v.IsSet("piper.model_path") {
		cfg.Piper.ModelPath = v.GetString("piper.model_path")
	}
	if v.IsSet("piper.sample_rate") {
		cfg.Piper.SampleRate = v.GetInt("piper.sample_rate")
	}
	if v.IsSet("piper.synthesis_timeout") {
		setDuration(v, "piper.synthesis_timeout", &cfg.Piper.SynthesisTimeout)
	}

	if v.IsSet("redis.addr") {
		cfg.Redis.Addr = v.GetString("redis.addr")
	}
	if v.IsSet("redis.password") {
		cfg.Redis.Password = v.GetString("redis.password")
	}
	if v.IsSet("redis.db") {
		cfg.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("redis.prefix") {
		cfg.Redis.Prefix = v.GetString("redis.prefix")
	}
	if v.IsSet("redis.ttl") {
		setDuration(v, "redis.ttl", &cfg.Redis.TTL)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if d, err := time.ParseDuration(v.GetString(key)); err == nil {
		*dst = d
	}
}
