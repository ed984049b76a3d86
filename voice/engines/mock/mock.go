// Package mock provides fully controllable recognition and synthesis
// engines for development and tests. Emit* and Complete/Fail methods drive
// the engine callbacks the way a native engine would.
package mock

import (
	"context"
	"sync"

	"github.com/talkcoach/voicekit/voice"
)

// RecognitionEngine is a scriptable recognition engine.
type RecognitionEngine struct {
	mu         sync.Mutex
	available  bool
	startErr   error
	events     voice.RecognitionEvents
	active     bool
	startCount int
	stopCount  int
	abortCount int
}

// NewRecognitionEngine creates an available recognition engine.
func NewRecognitionEngine() *RecognitionEngine {
	return &RecognitionEngine{available: true}
}

// SetAvailable controls Available().
func (e *RecognitionEngine) SetAvailable(available bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = available
}

// SetStartError makes subsequent Start calls fail with err.
func (e *RecognitionEngine) SetStartError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startErr = err
}

// Start records the events and emits OnStart.
func (e *RecognitionEngine) Start(_ context.Context, events voice.RecognitionEvents) error {
	e.mu.Lock()
	e.startCount++
	if e.startErr != nil {
		err := e.startErr
		e.mu.Unlock()
		return err
	}
	e.events = events
	e.active = true
	e.mu.Unlock()

	if events.OnStart != nil {
		events.OnStart()
	}
	return nil
}

// Stop emits OnEnd, mirroring a native engine's graceful shutdown.
func (e *RecognitionEngine) Stop() {
	e.mu.Lock()
	e.stopCount++
	events := e.events
	wasActive := e.active
	e.active = false
	e.mu.Unlock()

	if wasActive && events.OnEnd != nil {
		events.OnEnd()
	}
}

// Abort tears down silently, without an end event.
func (e *RecognitionEngine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abortCount++
	e.active = false
	e.events = voice.RecognitionEvents{}
}

// Available reports the scripted availability.
func (e *RecognitionEngine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

// EmitResult delivers a result batch to the active session.
func (e *RecognitionEngine) EmitResult(alternatives []voice.Alternative, isFinal bool) {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()
	if events.OnResult != nil {
		events.OnResult(alternatives, isFinal)
	}
}

// EmitTranscript delivers a single-alternative final result.
func (e *RecognitionEngine) EmitTranscript(transcript string, confidence float64) {
	e.EmitResult([]voice.Alternative{{Transcript: transcript, Confidence: confidence}}, true)
}

// EmitError delivers a native error code.
func (e *RecognitionEngine) EmitError(code string, err error) {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()
	if events.OnError != nil {
		events.OnError(code, err)
	}
}

// EmitEnd simulates an engine-terminated session end.
func (e *RecognitionEngine) EmitEnd() {
	e.mu.Lock()
	events := e.events
	e.active = false
	e.mu.Unlock()
	if events.OnEnd != nil {
		events.OnEnd()
	}
}

// StartCount returns how many times Start was called.
func (e *RecognitionEngine) StartCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.startCount
}

// SynthesisEngine is a scriptable synthesis engine.
type SynthesisEngine struct {
	mu        sync.Mutex
	available bool
	speakErr  error
	voices    []voice.Voice
	spoken    []voice.Utterance
	events    voice.UtteranceEvents
	speaking  bool
	cancels   int
}

// NewSynthesisEngine creates an available synthesis engine with one voice.
func NewSynthesisEngine() *SynthesisEngine {
	return &SynthesisEngine{
		available: true,
		voices: []voice.Voice{
			{ID: "mock-en", Name: "Mock English", Language: "en-US", Gender: "neutral"},
		},
	}
}

// SetAvailable controls Available().
func (e *SynthesisEngine) SetAvailable(available bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = available
}

// SetSpeakError makes subsequent Speak calls fail with err.
func (e *SynthesisEngine) SetSpeakError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speakErr = err
}

// Speak records the utterance and emits OnStart.
func (e *SynthesisEngine) Speak(u voice.Utterance, events voice.UtteranceEvents) error {
	e.mu.Lock()
	if e.speakErr != nil {
		err := e.speakErr
		e.mu.Unlock()
		return err
	}
	e.spoken = append(e.spoken, u)
	e.events = events
	e.speaking = true
	e.mu.Unlock()

	if events.OnStart != nil {
		events.OnStart()
	}
	return nil
}

// Cancel drops the in-flight utterance without further events.
func (e *SynthesisEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
	e.speaking = false
	e.events = voice.UtteranceEvents{}
}

// Pause emits OnPause.
func (e *SynthesisEngine) Pause() {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()
	if events.OnPause != nil {
		events.OnPause()
	}
}

// Resume emits OnResume.
func (e *SynthesisEngine) Resume() {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()
	if events.OnResume != nil {
		events.OnResume()
	}
}

// Voices returns the scripted voice list.
func (e *SynthesisEngine) Voices() []voice.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voices
}

// Available reports the scripted availability.
func (e *SynthesisEngine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available
}

// Complete finishes the in-flight utterance with OnEnd.
func (e *SynthesisEngine) Complete() {
	e.mu.Lock()
	events := e.events
	e.speaking = false
	e.mu.Unlock()
	if events.OnEnd != nil {
		events.OnEnd()
	}
}

// Fail finishes the in-flight utterance with OnError.
func (e *SynthesisEngine) Fail(err error) {
	e.mu.Lock()
	events := e.events
	e.speaking = false
	e.mu.Unlock()
	if events.OnError != nil {
		events.OnError(err)
	}
}

// Spoken returns a copy of every utterance passed to Speak.
func (e *SynthesisEngine) Spoken() []voice.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]voice.Utterance, len(e.spoken))
	copy(out, e.spoken)
	return out
}

// Cancels returns how many times Cancel was called.
func (e *SynthesisEngine) Cancels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancels
}

// Speaking reports whether an utterance is in flight.
func (e *SynthesisEngine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}
