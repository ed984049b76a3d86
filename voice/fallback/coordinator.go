// Package fallback selects the voice subsystem's operating mode. The
// coordinator combines capability snapshots with runtime failures from
// recognition and synthesis, retries recoverable failures with exponential
// backoff, and degrades to text-only operation when retries are exhausted.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/talkcoach/voicekit/voice"
	"github.com/talkcoach/voicekit/voice/store"
)

// Default coordinator configuration.
const (
	// DefaultMaxRetries bounds retry attempts before degrading to text-only.
	DefaultMaxRetries = 3
	// DefaultBackoffBase is the first retry delay.
	DefaultBackoffBase = time.Second
	// DefaultBackoffCap caps the exponential retry delay.
	DefaultBackoffCap = 10 * time.Second
	// DefaultStalenessExpiry discards persisted state older than this.
	DefaultStalenessExpiry = time.Hour
	// persistTimeout bounds each best-effort store write.
	persistTimeout = 2 * time.Second
)

// Config configures the fallback coordinator.
type Config struct {
	MaxRetries      int           `yaml:"max_retries" env:"VOICEKIT_FALLBACK_MAX_RETRIES" envDefault:"3"`
	BackoffBase     time.Duration `yaml:"backoff_base" env:"VOICEKIT_FALLBACK_BACKOFF_BASE" envDefault:"1s"`
	BackoffCap      time.Duration `yaml:"backoff_cap" env:"VOICEKIT_FALLBACK_BACKOFF_CAP" envDefault:"10s"`
	StalenessExpiry time.Duration `yaml:"staleness_expiry" env:"VOICEKIT_FALLBACK_STALENESS" envDefault:"1h"`
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      DefaultMaxRetries,
		BackoffBase:     DefaultBackoffBase,
		BackoffCap:      DefaultBackoffCap,
		StalenessExpiry: DefaultStalenessExpiry,
	}
}

// Validate checks the configuration for sanity.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff base must be positive, got %v", c.BackoffBase)
	}
	if c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff cap (%v) must be at least the base (%v)", c.BackoffCap, c.BackoffBase)
	}
	if c.StalenessExpiry <= 0 {
		return fmt.Errorf("staleness expiry must be positive, got %v", c.StalenessExpiry)
	}
	return nil
}

// Assessor produces capability snapshots. Satisfied by capability.Assessor.
type Assessor interface {
	Assess(ctx context.Context) voice.CapabilitySnapshot
}

// Listener receives synchronous notification on every state mutation.
type Listener func(state State)

// Coordinator is the single source of truth for the operating mode. All
// failure reports and capability changes flow through it; no other
// component writes FallbackState.
type Coordinator struct {
	config    Config
	assessor  Assessor
	store     store.Store // nil disables persistence
	sessionID string

	mu           sync.Mutex
	state        State
	listeners    map[int]Listener
	nextListener int
	generation   uint64
	retryTimer   *time.Timer

	// afterFunc and now are replaceable for tests.
	afterFunc func(d time.Duration, fn func()) *time.Timer
	now       func() time.Time
}

// NewCoordinator creates a coordinator. st may be nil, which disables
// persistence; sessionID keys the persisted state.
func NewCoordinator(cfg Config, assessor Assessor, st store.Store, sessionID string) *Coordinator {
	return &Coordinator{
		config:    cfg,
		assessor:  assessor,
		store:     st,
		sessionID: sessionID,
		listeners: make(map[int]Listener),
		afterFunc: time.AfterFunc,
		now:       time.Now,
	}
}

// Initialize restores persisted state, assesses capability, and derives the
// initial mode. Persisted state older than the staleness expiry is
// discarded. Returns the resulting state.
func (c *Coordinator) Initialize(ctx context.Context) State {
	restored, ok := c.restore(ctx)

	snapshot := c.assessor.Assess(ctx)
	mode := deriveMode(snapshot)

	next := State{Mode: mode, Timestamp: c.now()}
	if ok && restored.Mode == mode {
		// Same conditions as last run; keep the failure history.
		next.Category = restored.Category
		next.RetryCount = restored.RetryCount
		next.LastError = restored.LastError
	}
	if mode == voice.ModeNone || mode == voice.ModePartial {
		next.RetryCount = 0
	}

	log.Info("fallback: initialized", "mode", mode, "restored", ok)
	c.setState(ctx, next)
	return c.State()
}

// State returns a copy of the current fallback state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current operating mode.
func (c *Coordinator) Mode() voice.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Mode
}

// AddListener registers a listener and returns its id for removal.
func (c *Coordinator) AddListener(l Listener) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l
	return id
}

// RemoveListener removes a previously registered listener.
func (c *Coordinator) RemoveListener(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// ReportFailure feeds a runtime failure into fallback accounting. Retryable
// failures enter retry_pending and schedule a backoff that re-assesses
// capability; non-recoverable failures downgrade immediately.
func (c *Coordinator) ReportFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var verr *voice.Error
	if !errors.As(err, &verr) {
		verr = voice.NewError(err, "voice")
	}

	c.mu.Lock()
	current := c.state
	c.mu.Unlock()

	retryable := verr.Category.Retryable() &&
		verr.Recoverable &&
		current.RetryCount < c.config.MaxRetries

	log.Warn("fallback: failure reported",
		"component", verr.Component,
		"category", verr.Category,
		"retryable", retryable,
		"retry_count", current.RetryCount)

	if !retryable {
		c.applyTerminalFailure(ctx, verr)
		return
	}

	c.mu.Lock()
	if c.state.Mode == voice.ModeRetryPending {
		// A retry cycle is already in flight; record the error and let the
		// scheduled backoff run its course.
		next := c.state
		next.LastError = verr.Error()
		next.Timestamp = c.now()
		c.mu.Unlock()
		c.setState(ctx, next)
		return
	}

	c.generation++
	gen := c.generation
	delay := c.backoffFor(c.state.RetryCount)
	c.cancelRetryLocked()
	c.retryTimer = c.afterFunc(delay, func() {
		c.runRetry(ctx, gen)
	})
	next := State{
		Mode:       voice.ModeRetryPending,
		Category:   verr.Category,
		RetryCount: c.state.RetryCount,
		LastError:  verr.Error(),
		Timestamp:  c.now(),
	}
	c.mu.Unlock()

	log.Debug("fallback: retry scheduled", "delay", delay, "attempt", next.RetryCount+1)
	c.setState(ctx, next)
}

// ForceTextMode downgrades immediately and unconditionally, bypassing retry
// logic. For unrecoverable top-level failures.
func (c *Coordinator) ForceTextMode(ctx context.Context, reason string) {
	c.mu.Lock()
	c.generation++
	c.cancelRetryLocked()
	next := State{
		Mode:       voice.ModeTextOnly,
		Category:   c.state.Category,
		RetryCount: 0,
		LastError:  reason,
		Timestamp:  c.now(),
	}
	c.mu.Unlock()

	log.Warn("fallback: forced text mode", "reason", reason)
	c.setState(ctx, next)
}

// Reset returns bookkeeping to a freshly derived state. Used on
// user-initiated retry or environment change.
func (c *Coordinator) Reset(ctx context.Context) State {
	c.mu.Lock()
	c.generation++
	c.cancelRetryLocked()
	c.mu.Unlock()

	snapshot := c.assessor.Assess(ctx)
	next := State{Mode: deriveMode(snapshot), Timestamp: c.now()}

	log.Info("fallback: reset", "mode", next.Mode)
	c.setState(ctx, next)
	return c.State()
}

// Close cancels any scheduled retry.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cancelRetryLocked()
}

// runRetry fires from the backoff timer: re-assess capability, recover if
// it improved, otherwise count the attempt and either back off again or
// exhaust into text-only.
func (c *Coordinator) runRetry(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.mu.Unlock()

	snapshot := c.assessor.Assess(ctx)
	mode := deriveMode(snapshot)

	if mode == voice.ModeNone || mode == voice.ModePartial {
		// Capability recovered; clear the failure history.
		log.Info("fallback: recovered", "mode", mode)
		c.setState(ctx, State{Mode: mode, Timestamp: c.now()})
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	retryCount := c.state.RetryCount + 1
	if retryCount >= c.config.MaxRetries {
		next := State{
			Mode:       voice.ModeTextOnly,
			Category:   c.state.Category,
			RetryCount: 0,
			LastError:  c.state.LastError,
			Timestamp:  c.now(),
		}
		c.mu.Unlock()

		log.Warn("fallback: retries exhausted, degrading to text-only",
			"attempts", retryCount)
		c.setState(ctx, next)
		return
	}

	delay := c.backoffFor(retryCount)
	c.retryTimer = c.afterFunc(delay, func() {
		c.runRetry(ctx, gen)
	})
	next := c.state
	next.RetryCount = retryCount
	next.Timestamp = c.now()
	c.mu.Unlock()

	log.Debug("fallback: retry failed, backing off",
		"delay", delay, "attempt", retryCount+1)
	c.setState(ctx, next)
}

// applyTerminalFailure maps a non-retryable failure to its terminal mode.
func (c *Coordinator) applyTerminalFailure(ctx context.Context, verr *voice.Error) {
	c.mu.Lock()
	c.generation++
	c.cancelRetryLocked()
	current := c.state
	c.mu.Unlock()

	next := State{
		Category:  verr.Category,
		LastError: verr.Error(),
		Timestamp: c.now(),
	}

	switch verr.Category {
	case voice.CategoryPermission:
		next.Mode = voice.ModePermissionRequired
	case voice.CategoryCompatibility:
		next.Mode = voice.ModeUpgradeRequired
	case voice.CategoryRuntime:
		// Runtime failures are handled per-item by their component; record
		// the error without changing mode.
		next.Mode = current.Mode
		next.RetryCount = current.RetryCount
	default:
		next.Mode = voice.ModeTextOnly
	}

	c.setState(ctx, next)
}

// setState commits a mutation: persists it and notifies listeners. States
// that compare equal to the current one are committed without notification.
func (c *Coordinator) setState(ctx context.Context, next State) {
	c.mu.Lock()
	changed := !c.state.equal(next)
	c.state = next
	var listeners []Listener
	if changed {
		listeners = make([]Listener, 0, len(c.listeners))
		for _, l := range c.listeners {
			listeners = append(listeners, l)
		}
	}
	c.mu.Unlock()

	c.persist(ctx, next)

	for _, l := range listeners {
		l(next)
	}
}

// restore loads persisted state, discarding stale entries.
func (c *Coordinator) restore(ctx context.Context) (State, bool) {
	if c.store == nil {
		return State{}, false
	}

	data, err := c.store.Get(ctx, c.storeKey())
	if errors.Is(err, voice.ErrNotFound) {
		return State{}, false
	}
	if err != nil {
		log.Warn("fallback: failed to restore state", "error", err)
		return State{}, false
	}

	restored, err := decodeState(data)
	if err != nil {
		log.Warn("fallback: discarding corrupt persisted state", "error", err)
		_ = c.store.Remove(ctx, c.storeKey())
		return State{}, false
	}

	if c.now().Sub(restored.Timestamp) > c.config.StalenessExpiry {
		log.Debug("fallback: discarding stale persisted state",
			"age", c.now().Sub(restored.Timestamp))
		_ = c.store.Remove(ctx, c.storeKey())
		return State{}, false
	}

	return restored, true
}

// persist writes the state best-effort; persistence failures never affect
// mode decisions.
func (c *Coordinator) persist(ctx context.Context, s State) {
	if c.store == nil {
		return
	}

	data, err := encodeState(s)
	if err != nil {
		log.Warn("fallback: failed to encode state", "error", err)
		return
	}

	// Detach from the caller context so a cancelled shutdown context does
	// not lose the final state write.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := c.store.Set(writeCtx, c.storeKey(), data); err != nil {
		log.Warn("fallback: failed to persist state", "error", err)
	}
}

func (c *Coordinator) storeKey() string {
	return "fallback:" + c.sessionID
}

func (c *Coordinator) cancelRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// backoffFor computes the exponential retry delay for the given attempt
// count: base doubled per attempt, capped.
func (c *Coordinator) backoffFor(retryCount int) time.Duration {
	delay := c.config.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= c.config.BackoffCap {
			return c.config.BackoffCap
		}
	}
	if delay > c.config.BackoffCap {
		return c.config.BackoffCap
	}
	return delay
}

// deriveMode maps a capability snapshot to an operating mode.
func deriveMode(s voice.CapabilitySnapshot) voice.Mode {
	switch {
	case s.MicrophonePermission == voice.PermissionDenied:
		return voice.ModePermissionRequired
	case !s.RecognitionSupported && !s.SynthesisSupported:
		return voice.ModeUpgradeRequired
	case s.VoiceReady():
		return voice.ModeNone
	case s.SynthesisOnly():
		return voice.ModePartial
	default:
		return voice.ModeTextOnly
	}
}
