package voice

import "context"

// Engine error codes emitted by recognition engines. The set mirrors the
// native event codes of the underlying platforms so adapters can pass them
// through unchanged.
const (
	CodeNetwork           = "network"
	CodeNotAllowed        = "not-allowed"
	CodeNoSpeech          = "no-speech"
	CodeAudioCapture      = "audio-capture"
	CodeServiceNotAllowed = "service-not-allowed"
	CodeAborted           = "aborted"
	CodeNoMatch           = "no-match"
)

// RecognitionEvents carries the callbacks a recognition engine invokes over
// the lifetime of one native session. Handlers are registered once at Start;
// engines never expose rebindable callback fields.
type RecognitionEvents struct {
	// OnStart fires when the engine has acquired the audio stream and is
	// actively listening.
	OnStart func()

	// OnResult fires for each recognized segment with its ranked
	// alternatives. isFinal distinguishes interim hypotheses from the
	// segment's final result.
	OnResult func(alternatives []Alternative, isFinal bool)

	// OnError fires with a native error code from the Code* set.
	OnError func(code string, err error)

	// OnEnd fires when the native session terminates, whether by Stop or
	// by the engine itself (device timeout, transient fault).
	OnEnd func()
}

// RecognitionEngine is an opaque continuous speech-recognition engine. One
// Start corresponds to one native session; the engine owns the microphone
// stream between Start and the matching OnEnd.
type RecognitionEngine interface {
	// Start begins a native recognition session. It blocks until the
	// session is established (permission granted, stream acquired) or
	// fails. The context bounds session establishment only.
	Start(ctx context.Context, events RecognitionEvents) error

	// Stop requests a graceful end of the current session. The engine
	// emits any buffered final results, then OnEnd.
	Stop()

	// Abort tears the session down immediately, discarding pending results.
	Abort()

	// Available reports whether the engine can be started at all.
	Available() bool
}

// UtteranceEvents carries the per-utterance callbacks of a synthesis engine.
type UtteranceEvents struct {
	OnStart  func()
	OnEnd    func()
	OnError  func(err error)
	OnPause  func()
	OnResume func()
}

// SynthesisEngine is an opaque speech-synthesis engine. Speak is
// asynchronous: it returns once synthesis has been accepted and reports
// completion through the events.
type SynthesisEngine interface {
	// Speak synthesizes and plays one utterance. Only one utterance is in
	// flight at a time; callers serialize.
	Speak(u Utterance, events UtteranceEvents) error

	// Cancel stops the in-flight utterance, if any. Its OnError or OnEnd
	// will not fire after Cancel returns.
	Cancel()

	// Pause suspends playback of the in-flight utterance.
	Pause()

	// Resume continues a paused utterance.
	Resume()

	// Voices lists the voices the engine offers.
	Voices() []Voice

	// Available reports whether the engine can synthesize at all.
	Available() bool
}

// PermissionQuery reports microphone grant state and transport security.
// Implementations probe the platform; queries are bounded by the context.
type PermissionQuery interface {
	// MicrophonePermission returns the current grant state, or
	// PermissionUnknown when the platform cannot say.
	MicrophonePermission(ctx context.Context) PermissionState

	// SecureContext reports whether the transport satisfies the engines'
	// security requirements.
	SecureContext() bool
}
