// Package capability assesses platform support for voice features. The
// assessor produces immutable snapshots that the fallback coordinator uses
// to pick an initial operating mode.
package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/talkcoach/voicekit/voice"
)

// DefaultProbeTimeout bounds the permission probe. A hung platform query
// must not stall application startup.
const DefaultProbeTimeout = 2 * time.Second

// Config configures the capability assessor.
type Config struct {
	// ProbeTimeout bounds each platform probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" env:"VOICEKIT_CAPABILITY_PROBE_TIMEOUT" envDefault:"2s"`
}

// DefaultConfig returns the default assessor configuration.
func DefaultConfig() Config {
	return Config{ProbeTimeout: DefaultProbeTimeout}
}

// Validate checks the configuration for sanity.
func (c Config) Validate() error {
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %v", c.ProbeTimeout)
	}
	return nil
}

// Assessor produces capability snapshots. Engines may be nil when the
// corresponding feature is not wired; a nil engine reads as unsupported.
type Assessor struct {
	config      Config
	recognition voice.RecognitionEngine
	synthesis   voice.SynthesisEngine
	permissions voice.PermissionQuery

	// now is replaceable for tests.
	now func() time.Time
}

// NewAssessor creates an assessor over the given engines and permission
// query. permissions may be nil; the system default is used.
func NewAssessor(cfg Config, rec voice.RecognitionEngine, syn voice.SynthesisEngine, perms voice.PermissionQuery) *Assessor {
	if perms == nil {
		perms = NewSystemPermissions()
	}
	return &Assessor{
		config:      cfg,
		recognition: rec,
		synthesis:   syn,
		permissions: perms,
		now:         time.Now,
	}
}

// Assess probes the platform and returns a fresh snapshot. It never fails:
// any probe that cannot complete in time reports the conservative answer
// (unsupported, PermissionUnknown).
func (a *Assessor) Assess(ctx context.Context) voice.CapabilitySnapshot {
	snapshot := voice.CapabilitySnapshot{
		SecureContext: a.permissions.SecureContext(),
		Platform:      detectPlatform(),
		Timestamp:     a.now(),
	}

	if a.recognition != nil {
		snapshot.RecognitionSupported = a.recognition.Available()
	}
	if a.synthesis != nil {
		snapshot.SynthesisSupported = a.synthesis.Available()
	}

	snapshot.MicrophonePermission = a.probePermission(ctx)

	log.Debug("capability assessed",
		"recognition", snapshot.RecognitionSupported,
		"synthesis", snapshot.SynthesisSupported,
		"secure", snapshot.SecureContext,
		"permission", snapshot.MicrophonePermission,
		"audio", snapshot.Platform.AudioSubsystem)

	return snapshot
}

// probePermission queries the microphone permission with a bounded wait.
func (a *Assessor) probePermission(ctx context.Context) voice.PermissionState {
	probeCtx, cancel := context.WithTimeout(ctx, a.config.ProbeTimeout)
	defer cancel()

	result := make(chan voice.PermissionState, 1)
	go func() {
		result <- a.permissions.MicrophonePermission(probeCtx)
	}()

	select {
	case state := <-result:
		return state
	case <-probeCtx.Done():
		log.Warn("microphone permission probe timed out",
			"timeout", a.config.ProbeTimeout)
		return voice.PermissionUnknown
	}
}

// SystemPermissions is the default PermissionQuery for native processes.
// Native processes have no browser-style permission prompt; grant state is
// inferred from device visibility.
type SystemPermissions struct{}

// NewSystemPermissions creates the default permission query.
func NewSystemPermissions() *SystemPermissions {
	return &SystemPermissions{}
}

// MicrophonePermission infers grant state from capture device visibility.
// A visible capture device reads as granted; no device reads as unknown
// rather than denied, since absence of hardware is not a permission state.
func (p *SystemPermissions) MicrophonePermission(_ context.Context) voice.PermissionState {
	if hasCaptureDevice() {
		return voice.PermissionGranted
	}
	return voice.PermissionUnknown
}

// SecureContext reports true for native processes; credentials and audio
// never cross an untrusted transport locally. Remote engine adapters enforce
// their own transport security.
func (p *SystemPermissions) SecureContext() bool {
	return true
}
