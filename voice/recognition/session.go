// Package recognition maintains a logical "continuously listening" session
// on top of a native recognition engine whose own sessions can terminate
// unexpectedly. The session restarts after engine-terminated ends, applies
// the confidence acceptance gate to final segments, and classifies fillers.
package recognition

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/talkcoach/voicekit/voice"
)

// SessionState represents the current state of a recognition session.
type SessionState int

const (
	// StateIdle indicates no session is active.
	StateIdle SessionState = iota
	// StateStarting indicates the engine is acquiring the audio stream.
	StateStarting
	// StateListening indicates the engine is actively transcribing.
	StateListening
	// StateEnding indicates the native session ended and a restart is pending.
	StateEnding
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Default session configuration.
const (
	// DefaultNormalThreshold is the acceptance threshold for normal speech.
	DefaultNormalThreshold = 0.6
	// DefaultFillerThreshold is the acceptance threshold for fillers. Lower
	// than the normal threshold: engines under-confidence short hesitation
	// sounds, and a uniform threshold would discard them entirely.
	DefaultFillerThreshold = 0.4
	// DefaultMinTranscriptLength is the minimum accepted transcript length.
	DefaultMinTranscriptLength = 1
	// DefaultRestartDelay is the pause before restarting after an
	// engine-terminated end.
	DefaultRestartDelay = 250 * time.Millisecond
)

// Config configures a recognition session.
type Config struct {
	NormalThreshold     float64       `yaml:"normal_threshold" env:"VOICEKIT_RECOGNITION_NORMAL_THRESHOLD" envDefault:"0.6"`
	FillerThreshold     float64       `yaml:"filler_threshold" env:"VOICEKIT_RECOGNITION_FILLER_THRESHOLD" envDefault:"0.4"`
	MinTranscriptLength int           `yaml:"min_transcript_length" env:"VOICEKIT_RECOGNITION_MIN_LENGTH" envDefault:"1"`
	RestartDelay        time.Duration `yaml:"restart_delay" env:"VOICEKIT_RECOGNITION_RESTART_DELAY" envDefault:"250ms"`

	// AllowUnreportedConfidence lets a confidence of exactly 0 bypass the
	// acceptance gate, for engines that do not produce confidence scores.
	AllowUnreportedConfidence bool `yaml:"allow_unreported_confidence" env:"VOICEKIT_RECOGNITION_ALLOW_UNREPORTED"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		NormalThreshold:     DefaultNormalThreshold,
		FillerThreshold:     DefaultFillerThreshold,
		MinTranscriptLength: DefaultMinTranscriptLength,
		RestartDelay:        DefaultRestartDelay,
	}
}

// Validate checks the configuration for sanity.
func (c Config) Validate() error {
	if c.NormalThreshold < 0 || c.NormalThreshold > 1 {
		return fmt.Errorf("normal threshold must be in [0, 1], got %v", c.NormalThreshold)
	}
	if c.FillerThreshold < 0 || c.FillerThreshold > 1 {
		return fmt.Errorf("filler threshold must be in [0, 1], got %v", c.FillerThreshold)
	}
	if c.FillerThreshold >= c.NormalThreshold {
		return fmt.Errorf("filler threshold (%v) must be below normal threshold (%v)",
			c.FillerThreshold, c.NormalThreshold)
	}
	if c.MinTranscriptLength < 1 {
		return fmt.Errorf("min transcript length must be at least 1, got %d", c.MinTranscriptLength)
	}
	if c.RestartDelay <= 0 {
		return fmt.Errorf("restart delay must be positive, got %v", c.RestartDelay)
	}
	return nil
}

// Handlers carries the session's outward callbacks. Registered once at
// construction; the session never exposes rebindable callback fields.
type Handlers struct {
	// OnStart fires when the engine begins listening.
	OnStart func()

	// OnResult fires for each accepted final segment.
	OnResult func(result voice.RecognitionResult)

	// OnInterim fires for every interim segment, unconditionally.
	OnInterim func(result voice.RecognitionResult)

	// OnError fires for every classified engine or session error.
	OnError func(err *voice.Error)

	// OnEnd fires when the logical session ends without a restart.
	OnEnd func()
}

// Session wraps a recognition engine in a logical continuous session. At
// most one Session should be active per process: the engine owns the
// microphone stream exclusively between Start and the final end.
type Session struct {
	config   Config
	engine   voice.RecognitionEngine
	handlers Handlers

	mu           sync.Mutex
	state        SessionState
	id           string
	generation   uint64
	manualStop   bool
	restartTimer *time.Timer
	ctx          context.Context

	// afterFunc is replaceable for tests.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

// NewSession creates a session over the given engine.
func NewSession(cfg Config, engine voice.RecognitionEngine, handlers Handlers) *Session {
	return &Session{
		config:    cfg,
		engine:    engine,
		handlers:  handlers,
		state:     StateIdle,
		afterFunc: time.AfterFunc,
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the identifier of the current logical session, or "" when idle.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Start begins the logical session. It reports false (and invokes OnError)
// when the engine is unavailable, a session is already active, or the
// engine fails to acquire the audio stream. The context bounds session
// establishment; it is retained for automatic restarts.
func (s *Session) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.reportError(voice.NewError(voice.ErrSessionActive, "recognition").
			NotRecoverable().WithSeverity(voice.SeverityWarning))
		return false
	}
	if !s.engine.Available() {
		s.mu.Unlock()
		s.reportError(voice.NewError(voice.ErrRecognitionUnavailable, "recognition").
			NotRecoverable())
		return false
	}

	s.state = StateStarting
	s.manualStop = false
	s.generation++
	s.id = uuid.NewString()
	s.ctx = ctx
	gen := s.generation
	id := s.id
	s.mu.Unlock()

	log.Debug("recognition: starting session", "session", id)
	return s.startEngine(ctx, gen)
}

// Stop ends the logical session. Idempotent; flags the termination as
// manual so the subsequent engine end event does not trigger a restart.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.cancelRestartLocked()

	if s.state == StateEnding {
		// The native session already ended; only the pending restart had
		// to be suppressed.
		s.generation++
		s.state = StateIdle
		s.manualStop = false
		s.id = ""
		s.mu.Unlock()
		log.Debug("recognition: pending restart cancelled by stop")
		if s.handlers.OnEnd != nil {
			s.handlers.OnEnd()
		}
		return
	}

	s.manualStop = true
	id := s.id
	s.mu.Unlock()

	log.Debug("recognition: stopping session", "session", id)
	s.engine.Stop()
}

// Abort tears the session down immediately, discarding pending results and
// any scheduled restart.
func (s *Session) Abort() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.cancelRestartLocked()
	s.generation++
	s.state = StateIdle
	s.manualStop = false
	s.id = ""
	s.mu.Unlock()

	s.engine.Abort()
	if s.handlers.OnEnd != nil {
		s.handlers.OnEnd()
	}
}

// Restart aborts any current native session and starts a fresh one. The
// bumped generation guarantees stale callbacks and timers cannot fire into
// the new session.
func (s *Session) Restart(ctx context.Context) bool {
	s.mu.Lock()
	s.cancelRestartLocked()
	active := s.state == StateStarting || s.state == StateListening
	s.generation++
	s.state = StateStarting
	s.manualStop = false
	s.id = uuid.NewString()
	s.ctx = ctx
	gen := s.generation
	id := s.id
	s.mu.Unlock()

	if active {
		s.engine.Abort()
	}
	log.Debug("recognition: restarting session", "session", id)
	return s.startEngine(ctx, gen)
}

// startEngine drives one native engine start attempt for generation gen.
func (s *Session) startEngine(ctx context.Context, gen uint64) bool {
	err := s.engine.Start(ctx, s.events(gen))
	if err == nil {
		return true
	}

	s.mu.Lock()
	if gen == s.generation {
		s.state = StateIdle
		s.id = ""
	}
	s.mu.Unlock()

	log.Error("recognition: engine start failed", "error", err)
	s.reportError(voice.NewError(err, "recognition"))
	return false
}

// events builds the engine callback set for generation gen. Every callback
// checks the generation first so a superseded native session cannot touch
// fresh state.
func (s *Session) events(gen uint64) voice.RecognitionEvents {
	return voice.RecognitionEvents{
		OnStart: func() {
			s.handleEngineStart(gen)
		},
		OnResult: func(alternatives []voice.Alternative, isFinal bool) {
			s.handleResult(gen, alternatives, isFinal)
		},
		OnError: func(code string, err error) {
			s.handleError(gen, code, err)
		},
		OnEnd: func() {
			s.handleEnd(gen)
		},
	}
}

func (s *Session) handleEngineStart(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.state = StateListening
	id := s.id
	s.mu.Unlock()

	log.Debug("recognition: listening", "session", id)
	if s.handlers.OnStart != nil {
		s.handlers.OnStart()
	}
}

func (s *Session) handleResult(gen uint64, alternatives []voice.Alternative, isFinal bool) {
	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale || len(alternatives) == 0 {
		return
	}

	chosen, classification := selectAlternative(alternatives)
	result := voice.RecognitionResult{
		Transcript:     chosen.Transcript,
		Confidence:     chosen.Confidence,
		IsFinal:        isFinal,
		Timestamp:      time.Now(),
		Classification: classification,
	}

	// Interim segments bypass the acceptance gate.
	if !isFinal {
		if s.handlers.OnInterim != nil {
			s.handlers.OnInterim(result)
		}
		return
	}

	if !s.accept(result) {
		log.Debug("recognition: low-confidence result ignored",
			"transcript", result.Transcript,
			"confidence", result.Confidence,
			"classification", result.Classification)
		return
	}

	if s.handlers.OnResult != nil {
		s.handlers.OnResult(result)
	}
}

func (s *Session) handleError(gen uint64, code string, err error) {
	s.mu.Lock()
	stale := gen != s.generation
	s.mu.Unlock()
	if stale {
		return
	}

	verr := voice.NewEngineError(code, err, "recognition")
	log.Warn("recognition: engine error",
		"code", code,
		"category", verr.Category,
		"recoverable", verr.Recoverable)
	s.reportError(verr)
}

func (s *Session) handleEnd(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}

	if s.manualStop {
		s.manualStop = false
		s.state = StateIdle
		id := s.id
		s.id = ""
		s.mu.Unlock()

		log.Debug("recognition: session ended", "session", id, "manual", true)
		if s.handlers.OnEnd != nil {
			s.handlers.OnEnd()
		}
		return
	}

	// Engine-terminated end (device timeout, transient fault). Restart
	// after a short delay to preserve the continuous session.
	s.state = StateEnding
	s.generation++
	restartGen := s.generation
	ctx := s.ctx
	s.restartTimer = s.afterFunc(s.config.RestartDelay, func() {
		s.runRestart(ctx, restartGen)
	})
	s.mu.Unlock()

	log.Debug("recognition: engine ended session, restart scheduled",
		"delay", s.config.RestartDelay)
}

// runRestart fires from the restart timer. A stale generation means a stop,
// abort, or explicit restart superseded this timer.
func (s *Session) runRestart(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != StateEnding {
		s.mu.Unlock()
		return
	}
	s.state = StateStarting
	s.restartTimer = nil
	s.mu.Unlock()

	s.startEngine(ctx, gen)
}

func (s *Session) cancelRestartLocked() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
}

// accept applies the acceptance gate to a final segment: minimum length and
// the classification-specific confidence threshold.
func (s *Session) accept(r voice.RecognitionResult) bool {
	transcript := strings.TrimSpace(r.Transcript)
	if len([]rune(transcript)) < s.config.MinTranscriptLength {
		return false
	}
	if r.Confidence == 0 && s.config.AllowUnreportedConfidence {
		return true
	}
	return r.Confidence >= s.threshold(r.Classification)
}

func (s *Session) threshold(c voice.Classification) float64 {
	if c == voice.ClassFiller {
		return s.config.FillerThreshold
	}
	return s.config.NormalThreshold
}

func (s *Session) reportError(err *voice.Error) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

// selectAlternative picks the alternative to surface from one segment's
// ranked hypotheses. A filler match is preferred over the raw
// top-confidence alternative: engines under-confidence short hesitation
// sounds, but they are semantically informative for coaching.
func selectAlternative(alternatives []voice.Alternative) (voice.Alternative, voice.Classification) {
	top := alternatives[0]
	for _, alt := range alternatives[1:] {
		if alt.Confidence > top.Confidence {
			top = alt
		}
	}

	var bestFiller *voice.Alternative
	for i := range alternatives {
		if Classify(alternatives[i].Transcript) != voice.ClassFiller {
			continue
		}
		if bestFiller == nil || alternatives[i].Confidence > bestFiller.Confidence {
			bestFiller = &alternatives[i]
		}
	}

	if bestFiller != nil {
		return *bestFiller, voice.ClassFiller
	}
	return top, Classify(top.Transcript)
}
