// Package voice defines the shared vocabulary of the voicekit orchestration
// layer: recognition results, utterances, capability snapshots, operating
// modes, and the engine interfaces the orchestrators drive.
package voice

import "time"

// Classification distinguishes substantive speech from discourse fillers.
type Classification int

const (
	// ClassNormal indicates ordinary substantive speech.
	ClassNormal Classification = iota
	// ClassFiller indicates a short hesitation marker ("uh", "hmm", ...).
	ClassFiller
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	switch c {
	case ClassNormal:
		return "normal"
	case ClassFiller:
		return "filler"
	default:
		return "unknown"
	}
}

// Alternative is one ranked hypothesis for a recognized segment.
type Alternative struct {
	Transcript string  // Recognized text
	Confidence float64 // Engine confidence in [0, 1]
}

// RecognitionResult is a recognized segment after alternative selection
// and classification.
type RecognitionResult struct {
	Transcript     string
	Confidence     float64
	IsFinal        bool
	Timestamp      time.Time
	Classification Classification
}

// Priority orders utterances in the synthesis queue.
type Priority int

const (
	// PriorityLow is spoken after everything else.
	PriorityLow Priority = iota
	// PriorityNormal is the default queue priority.
	PriorityNormal
	// PriorityHigh jumps ahead of queued normal/low utterances.
	PriorityHigh
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Utterance is a single request to synthesize speech from text.
type Utterance struct {
	Text     string   // Text to speak (normalized before queueing)
	Voice    string   // Voice identifier; empty means engine default
	Rate     float64  // Speech rate multiplier (1.0 = normal)
	Pitch    float64  // Pitch adjustment (1.0 = normal)
	Volume   float64  // Volume level (0.0 to 1.0)
	Priority Priority // Queue priority
}

// Voice describes a synthesis voice offered by an engine.
type Voice struct {
	ID       string // Voice identifier
	Name     string // Human-readable name
	Language string // Language code (e.g., "en-US")
	Gender   string // Voice gender
}

// PermissionState reports the microphone permission as seen by the platform.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
	PermissionUnknown PermissionState = "unknown"
)

// PlatformInfo carries platform metadata captured in a capability snapshot.
type PlatformInfo struct {
	OS             string            // Operating system ("linux", "darwin", ...)
	Arch           string            // CPU architecture
	AudioSubsystem string            // Detected audio subsystem ("alsa", "coreaudio", ...)
	IsCI           bool              // Running in a CI environment
	Details        map[string]string // Additional probe output
}

// CapabilitySnapshot is an immutable point-in-time assessment of platform
// support for voice features. Recomputed on demand by the assessor; never
// mutated after creation.
type CapabilitySnapshot struct {
	RecognitionSupported bool
	SynthesisSupported   bool
	SecureContext        bool
	MicrophonePermission PermissionState
	Platform             PlatformInfo
	Timestamp            time.Time
}

// VoiceReady reports whether both engines are usable and the microphone is
// not blocked. This is the precondition for full-duplex operation.
func (s CapabilitySnapshot) VoiceReady() bool {
	return s.RecognitionSupported && s.SynthesisSupported &&
		s.SecureContext && s.MicrophonePermission != PermissionDenied
}

// SynthesisOnly reports whether only the output half of the pipeline works.
func (s CapabilitySnapshot) SynthesisOnly() bool {
	return s.SynthesisSupported && (!s.RecognitionSupported || !s.SecureContext)
}

// Mode is the fallback coordinator's operating tier. It governs which voice
// features are enabled for the surrounding application.
type Mode int

const (
	// ModeNone means no fallback is active; full voice operation.
	ModeNone Mode = iota
	// ModePartial means synthesis works but recognition does not.
	ModePartial
	// ModeTextOnly means all voice features are disabled.
	ModeTextOnly
	// ModeRetryPending means a recoverable failure is being retried.
	ModeRetryPending
	// ModePermissionRequired means the user must grant microphone access.
	ModePermissionRequired
	// ModeUpgradeRequired means the environment supports no voice engines.
	ModeUpgradeRequired
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModePartial:
		return "partial"
	case ModeTextOnly:
		return "text_only"
	case ModeRetryPending:
		return "retry_pending"
	case ModePermissionRequired:
		return "permission_required"
	case ModeUpgradeRequired:
		return "upgrade_required"
	default:
		return "unknown"
	}
}

// ParseMode converts a persisted mode string back into a Mode. Unknown
// strings map to ModeTextOnly, the most conservative tier.
func ParseMode(s string) Mode {
	switch s {
	case "none":
		return ModeNone
	case "partial":
		return ModePartial
	case "text_only":
		return ModeTextOnly
	case "retry_pending":
		return ModeRetryPending
	case "permission_required":
		return ModePermissionRequired
	case "upgrade_required":
		return ModeUpgradeRequired
	default:
		return ModeTextOnly
	}
}
