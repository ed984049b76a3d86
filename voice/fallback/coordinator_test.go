package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talkcoach/voicekit/voice"
	"github.com/talkcoach/voicekit/voice/store"
)

type fakeAssessor struct {
	mu       sync.Mutex
	snapshot voice.CapabilitySnapshot
}

func (a *fakeAssessor) Assess(context.Context) voice.CapabilitySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

func (a *fakeAssessor) set(s voice.CapabilitySnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshot = s
}

func fullCapability() voice.CapabilitySnapshot {
	return voice.CapabilitySnapshot{
		RecognitionSupported: true,
		SynthesisSupported:   true,
		SecureContext:        true,
		MicrophonePermission: voice.PermissionGranted,
		Timestamp:            time.Now(),
	}
}

func synthesisOnlyCapability() voice.CapabilitySnapshot {
	s := fullCapability()
	s.RecognitionSupported = false
	return s
}

func brokenCapability() voice.CapabilitySnapshot {
	// Recognition present but synthesis gone: neither full nor
	// synthesis-only, so the derived mode is text_only.
	s := fullCapability()
	s.SynthesisSupported = false
	return s
}

// timerCapture replaces the coordinator's afterFunc so tests control when
// retries fire and can inspect the scheduled delays.
type timerCapture struct {
	mu     sync.Mutex
	delays []time.Duration
	fns    []func()
}

func (tc *timerCapture) afterFunc(d time.Duration, fn func()) *time.Timer {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.delays = append(tc.delays, d)
	tc.fns = append(tc.fns, fn)
	return time.NewTimer(time.Hour)
}

func (tc *timerCapture) fire(t *testing.T, i int) {
	t.Helper()
	tc.mu.Lock()
	if i >= len(tc.fns) {
		tc.mu.Unlock()
		t.Fatalf("no timer %d scheduled (have %d)", i, len(tc.fns))
	}
	fn := tc.fns[i]
	tc.mu.Unlock()
	fn()
}

func newTestCoordinator(assessor *fakeAssessor, st store.Store) (*Coordinator, *timerCapture) {
	c := NewCoordinator(DefaultConfig(), assessor, st, "session-1")
	tc := &timerCapture{}
	c.afterFunc = tc.afterFunc
	return c, tc
}

func networkError() *voice.Error {
	return voice.NewEngineError(voice.CodeNetwork, nil, "recognition")
}

func TestInitializeDerivesMode(t *testing.T) {
	tests := []struct {
		name     string
		snapshot voice.CapabilitySnapshot
		want     voice.Mode
	}{
		{"full capability", fullCapability(), voice.ModeNone},
		{"synthesis only", synthesisOnlyCapability(), voice.ModePartial},
		{"no engines", voice.CapabilitySnapshot{SecureContext: true, MicrophonePermission: voice.PermissionUnknown}, voice.ModeUpgradeRequired},
		{"recognition only", brokenCapability(), voice.ModeTextOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCoordinator(&fakeAssessor{snapshot: tt.snapshot}, nil)
			got := c.Initialize(context.Background())
			if got.Mode != tt.want {
				t.Errorf("Initialize() mode = %v, want %v", got.Mode, tt.want)
			}
		})
	}
}

func TestInitializePermissionDeniedOutranksCapability(t *testing.T) {
	snapshot := fullCapability()
	snapshot.MicrophonePermission = voice.PermissionDenied
	c, _ := newTestCoordinator(&fakeAssessor{snapshot: snapshot}, nil)

	got := c.Initialize(context.Background())
	if got.Mode != voice.ModePermissionRequired {
		t.Errorf("mode = %v, want %v", got.Mode, voice.ModePermissionRequired)
	}
}

func TestInsecureContextDegradesToPartial(t *testing.T) {
	snapshot := fullCapability()
	snapshot.SecureContext = false
	c, _ := newTestCoordinator(&fakeAssessor{snapshot: snapshot}, nil)

	got := c.Initialize(context.Background())
	if got.Mode != voice.ModePartial {
		t.Errorf("mode = %v, want %v", got.Mode, voice.ModePartial)
	}
}

func TestRetryExhaustionDegradesToTextOnly(t *testing.T) {
	assessor := &fakeAssessor{snapshot: fullCapability()}
	c, tc := newTestCoordinator(assessor, nil)
	c.Initialize(context.Background())

	assessor.set(brokenCapability())
	c.ReportFailure(context.Background(), networkError())

	if got := c.Mode(); got != voice.ModeRetryPending {
		t.Fatalf("mode = %v after retryable failure, want %v", got, voice.ModeRetryPending)
	}

	// Three failed attempts with doubling backoff, then exhaustion.
	for i := 0; i < 3; i++ {
		tc.fire(t, i)
		if got := c.State().RetryCount; got > DefaultMaxRetries {
			t.Fatalf("retry count = %d, exceeds %d", got, DefaultMaxRetries)
		}
	}

	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	tc.mu.Lock()
	gotDelays := append([]time.Duration(nil), tc.delays...)
	tc.mu.Unlock()
	if len(gotDelays) != len(wantDelays) {
		t.Fatalf("scheduled %d retries %v, want %v", len(gotDelays), gotDelays, wantDelays)
	}
	for i := range wantDelays {
		if gotDelays[i] != wantDelays[i] {
			t.Errorf("delay[%d] = %v, want %v", i, gotDelays[i], wantDelays[i])
		}
	}

	final := c.State()
	if final.Mode != voice.ModeTextOnly {
		t.Errorf("final mode = %v, want %v", final.Mode, voice.ModeTextOnly)
	}
	if final.RetryCount != 0 {
		t.Errorf("final retry count = %d, want 0 after exhaustion", final.RetryCount)
	}
}

func TestBackoffCapped(t *testing.T) {
	c, _ := newTestCoordinator(&fakeAssessor{snapshot: fullCapability()}, nil)
	if got := c.backoffFor(10); got != DefaultBackoffCap {
		t.Errorf("backoffFor(10) = %v, want cap %v", got, DefaultBackoffCap)
	}
}

func TestRecoveryRestoresModeAndClearsHistory(t *testing.T) {
	assessor := &fakeAssessor{snapshot: fullCapability()}
	c, tc := newTestCoordinator(assessor, nil)
	c.Initialize(context.Background())

	var notifications []State
	c.AddListener(func(s State) { notifications = append(notifications, s) })

	assessor.set(brokenCapability())
	c.ReportFailure(context.Background(), networkError())

	// Capability recovers before the retry fires.
	assessor.set(fullCapability())
	tc.fire(t, 0)

	got := c.State()
	if got.Mode != voice.ModeNone {
		t.Errorf("mode = %v after recovery, want %v", got.Mode, voice.ModeNone)
	}
	if got.RetryCount != 0 {
		t.Errorf("retry count = %d after recovery, want 0", got.RetryCount)
	}
	if got.LastError != "" {
		t.Errorf("last error = %q after recovery, want cleared", got.LastError)
	}

	// Repeating with unchanged capability must not re-notify.
	before := len(notifications)
	c.Reset(context.Background())
	if len(notifications) != before {
		t.Errorf("unchanged Reset() notified listeners, got %d extra", len(notifications)-before)
	}
}

func TestPermissionFailureIsTerminal(t *testing.T) {
	c, tc := newTestCoordinator(&fakeAssessor{snapshot: fullCapability()}, nil)
	c.Initialize(context.Background())

	c.ReportFailure(context.Background(), voice.NewEngineError(voice.CodeNotAllowed, nil, "recognition"))

	if got := c.Mode(); got != voice.ModePermissionRequired {
		t.Errorf("mode = %v, want %v", got, voice.ModePermissionRequired)
	}
	tc.mu.Lock()
	scheduled := len(tc.fns)
	tc.mu.Unlock()
	if scheduled != 0 {
		t.Errorf("scheduled %d retries for a permission failure, want 0", scheduled)
	}
}

func TestRuntimeFailureKeepsMode(t *testing.T) {
	c, _ := newTestCoordinator(&fakeAssessor{snapshot: fullCapability()}, nil)
	c.Initialize(context.Background())

	verr := voice.NewError(errors.New("decoder glitch"), "synthesis")
	verr.Category = voice.CategoryRuntime
	verr.Recoverable = false
	c.ReportFailure(context.Background(), verr)

	got := c.State()
	if got.Mode != voice.ModeNone {
		t.Errorf("mode = %v after runtime failure, want %v unchanged", got.Mode, voice.ModeNone)
	}
	if got.LastError == "" {
		t.Error("runtime failure not recorded in last error")
	}
}

func TestForceTextModeCancelsPendingRetry(t *testing.T) {
	assessor := &fakeAssessor{snapshot: fullCapability()}
	c, tc := newTestCoordinator(assessor, nil)
	c.Initialize(context.Background())

	assessor.set(brokenCapability())
	c.ReportFailure(context.Background(), networkError())
	c.ForceTextMode(context.Background(), "chat backend unreachable")

	got := c.State()
	if got.Mode != voice.ModeTextOnly {
		t.Fatalf("mode = %v, want %v", got.Mode, voice.ModeTextOnly)
	}
	if got.LastError != "chat backend unreachable" {
		t.Errorf("last error = %q, want the force reason", got.LastError)
	}

	// The superseded retry must be inert even if it fires.
	assessor.set(fullCapability())
	tc.fire(t, 0)
	if got := c.Mode(); got != voice.ModeTextOnly {
		t.Errorf("stale retry mutated mode to %v", got)
	}
}

func TestPersistedStateRestored(t *testing.T) {
	st := store.NewMemoryStore()
	assessor := &fakeAssessor{snapshot: brokenCapability()}

	first, _ := newTestCoordinator(assessor, st)
	first.Initialize(context.Background())
	verr := networkError()
	verr.Recoverable = false
	first.ReportFailure(context.Background(), verr) // terminal network failure: text_only

	second, _ := newTestCoordinator(assessor, st)
	got := second.Initialize(context.Background())
	if got.Mode != voice.ModeTextOnly {
		t.Errorf("restored mode = %v, want %v", got.Mode, voice.ModeTextOnly)
	}
	if got.LastError == "" {
		t.Error("restored state lost its failure history")
	}
}

func TestStalePersistedStateDiscarded(t *testing.T) {
	st := store.NewMemoryStore()
	stale := State{
		Mode:       voice.ModeTextOnly,
		Category:   voice.CategoryNetwork,
		RetryCount: 2,
		LastError:  "old failure",
		Timestamp:  time.Now().Add(-2 * time.Hour),
	}
	data, err := encodeState(stale)
	if err != nil {
		t.Fatalf("encodeState() error = %v", err)
	}
	if err := st.Set(context.Background(), "fallback:session-1", data); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	c, _ := newTestCoordinator(&fakeAssessor{snapshot: brokenCapability()}, st)
	got := c.Initialize(context.Background())

	if got.RetryCount != 0 || got.LastError != "" {
		t.Errorf("stale state not discarded: retryCount=%d lastError=%q",
			got.RetryCount, got.LastError)
	}
}

func TestListenerRemoval(t *testing.T) {
	assessor := &fakeAssessor{snapshot: fullCapability()}
	c, _ := newTestCoordinator(assessor, nil)
	c.Initialize(context.Background())

	calls := 0
	id := c.AddListener(func(State) { calls++ })
	c.RemoveListener(id)

	c.ForceTextMode(context.Background(), "test")
	if calls != 0 {
		t.Errorf("removed listener called %d times", calls)
	}
}

func TestStateRoundTrip(t *testing.T) {
	original := State{
		Mode:       voice.ModeRetryPending,
		Category:   voice.CategoryNetwork,
		RetryCount: 2,
		LastError:  "recognition: engine error: network",
		Timestamp:  time.Now().Truncate(time.Second),
	}

	data, err := encodeState(original)
	if err != nil {
		t.Fatalf("encodeState() error = %v", err)
	}
	decoded, err := decodeState(data)
	if err != nil {
		t.Fatalf("decodeState() error = %v", err)
	}

	if !decoded.equal(original) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, original)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"cap below base", func(c *Config) { c.BackoffCap = 500 * time.Millisecond }, true},
		{"zero staleness", func(c *Config) { c.StalenessExpiry = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
