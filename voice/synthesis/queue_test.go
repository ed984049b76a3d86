package synthesis

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/talkcoach/voicekit/voice"
)

// fakeSynth is a controllable synthesis engine. complete and fail drive the
// stored per-utterance events the way a native engine would.
type fakeSynth struct {
	mu       sync.Mutex
	spoken   []voice.Utterance
	events   voice.UtteranceEvents
	cancels  int
	pauses   int
	resumes  int
	speakErr error
}

func (f *fakeSynth) Speak(u voice.Utterance, events voice.UtteranceEvents) error {
	f.mu.Lock()
	f.spoken = append(f.spoken, u)
	f.events = events
	err := f.speakErr
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if events.OnStart != nil {
		events.OnStart()
	}
	return nil
}

func (f *fakeSynth) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.events = voice.UtteranceEvents{}
}

func (f *fakeSynth) Pause() {
	f.mu.Lock()
	events := f.events
	f.pauses++
	f.mu.Unlock()
	if events.OnPause != nil {
		events.OnPause()
	}
}

func (f *fakeSynth) Resume() {
	f.mu.Lock()
	events := f.events
	f.resumes++
	f.mu.Unlock()
	if events.OnResume != nil {
		events.OnResume()
	}
}

func (f *fakeSynth) Voices() []voice.Voice { return nil }
func (f *fakeSynth) Available() bool       { return true }

func (f *fakeSynth) complete() {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	if events.OnEnd != nil {
		events.OnEnd()
	}
}

func (f *fakeSynth) fail(err error) {
	f.mu.Lock()
	events := f.events
	f.mu.Unlock()
	if events.OnError != nil {
		events.OnError(err)
	}
}

func (f *fakeSynth) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, len(f.spoken))
	for i, u := range f.spoken {
		texts[i] = u.Text
	}
	return texts
}

// queueRecorder collects queue handler invocations.
type queueRecorder struct {
	started []voice.Utterance
	ended   []voice.Utterance
	depths  []int
	errors  []*voice.Error
}

func (r *queueRecorder) handlers() Handlers {
	return Handlers{
		OnUtteranceStart: func(u voice.Utterance) { r.started = append(r.started, u) },
		OnUtteranceEnd:   func(u voice.Utterance) { r.ended = append(r.ended, u) },
		OnQueueChange:    func(depth int) { r.depths = append(r.depths, depth) },
		OnError:          func(err *voice.Error) { r.errors = append(r.errors, err) },
	}
}

// newTestQueue wires a queue whose inter-utterance pause timer is captured
// instead of scheduled, so tests fire it deterministically.
func newTestQueue(cfg Config, engine *fakeSynth, rec *queueRecorder) (*Queue, *func()) {
	q := NewQueue(cfg, engine, rec.handlers())
	var pending func()
	q.afterFunc = func(_ time.Duration, fn func()) *time.Timer {
		pending = fn
		return time.NewTimer(time.Hour)
	}
	return q, &pending
}

func utter(text string) voice.Utterance {
	return voice.Utterance{Text: text, Priority: voice.PriorityNormal, Volume: 1, Rate: 1, Pitch: 1}
}

func TestEnqueuePlaysImmediatelyWhenIdle(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, _ := newTestQueue(DefaultConfig(), engine, rec)

	pos, err := q.Enqueue(utter("hello there"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if pos != 0 {
		t.Errorf("position = %d, want 0", pos)
	}
	if got := engine.spokenTexts(); len(got) != 1 || got[0] != "hello there" {
		t.Errorf("spoken = %v, want [hello there]", got)
	}
	if !q.Playing() {
		t.Error("Playing() = false, want true")
	}
	if len(rec.started) != 1 {
		t.Errorf("got %d start callbacks, want 1", len(rec.started))
	}
}

func TestPlaybackSerializes(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, pending := newTestQueue(DefaultConfig(), engine, rec)

	q.Enqueue(utter("first"))
	q.Enqueue(utter("second"))

	if got := len(engine.spokenTexts()); got != 1 {
		t.Fatalf("spoken %d utterances while first still playing, want 1", got)
	}
	if got := q.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}

	engine.complete()

	if q.Playing() {
		t.Error("Playing() = true during inter-utterance pause")
	}
	if *pending == nil {
		t.Fatal("no next-utterance timer scheduled after completion")
	}
	(*pending)()

	if got := engine.spokenTexts(); len(got) != 2 || got[1] != "second" {
		t.Errorf("spoken = %v, want [first second]", got)
	}
	if len(rec.ended) != 1 {
		t.Errorf("got %d end callbacks, want 1", len(rec.ended))
	}
}

func TestOverflowDropsOldestPending(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 2
	q, _ := newTestQueue(cfg, engine, rec)

	q.Enqueue(utter("playing")) // starts immediately
	q.Enqueue(utter("oldest pending"))
	q.Enqueue(utter("newer pending"))
	q.Enqueue(utter("overflow"))

	if got := q.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
	// The playing utterance is never dropped; the oldest pending one is.
	engine.mu.Lock()
	playing := engine.spoken[0].Text
	engine.mu.Unlock()
	if playing != "playing" {
		t.Errorf("playing utterance = %q, want %q", playing, "playing")
	}

	q.Stop()
	if got := len(rec.depths); got == 0 {
		t.Error("no queue-change notifications emitted")
	}
}

func TestInterruptCancelsAtEngineLevel(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, _ := newTestQueue(DefaultConfig(), engine, rec)

	q.Enqueue(utter("utterance a")) // playing
	q.Enqueue(utter("queued c"))    // pending

	if err := q.Speak(utter("utterance b"), true); err != nil {
		t.Fatalf("Speak() error = %v", err)
	}

	engine.mu.Lock()
	cancels := engine.cancels
	engine.mu.Unlock()
	if cancels != 1 {
		t.Errorf("engine cancels = %d, want 1", cancels)
	}
	if got := engine.spokenTexts(); len(got) != 2 || got[1] != "utterance b" {
		t.Errorf("spoken = %v, want interrupting utterance to start immediately", got)
	}
	if got := q.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1 (queue unaffected by interrupt)", got)
	}
	if !q.Playing() {
		t.Error("Playing() = false, want true after interrupt")
	}
}

func TestHighPriorityJumpsAhead(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, pending := newTestQueue(DefaultConfig(), engine, rec)

	q.Enqueue(utter("playing"))
	low := utter("low one")
	low.Priority = voice.PriorityLow
	q.Enqueue(low)
	q.Enqueue(utter("normal one"))
	high := utter("high one")
	high.Priority = voice.PriorityHigh
	pos, _ := q.Enqueue(high)

	if pos != 0 {
		t.Errorf("high-priority position = %d, want 0", pos)
	}

	var order []string
	for i := 0; i < 3; i++ {
		engine.complete()
		if *pending == nil {
			t.Fatalf("no timer scheduled before utterance %d", i)
		}
		fn := *pending
		*pending = nil
		fn()
		texts := engine.spokenTexts()
		order = append(order, texts[len(texts)-1])
	}

	want := []string{"high one", "normal one", "low one"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("play order = %v, want %v", order, want)
		}
	}
}

func TestSynthesisErrorDiscardsAndContinues(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, pending := newTestQueue(DefaultConfig(), engine, rec)

	q.Enqueue(utter("doomed"))
	q.Enqueue(utter("survivor"))

	engine.fail(errors.New("synthesis backend crashed"))

	if len(rec.errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(rec.errors))
	}
	if got := rec.errors[0].Category; got != voice.CategoryRuntime {
		t.Errorf("error category = %q, want %q", got, voice.CategoryRuntime)
	}
	if len(rec.ended) != 0 {
		t.Errorf("got %d end callbacks for a failed utterance, want 0", len(rec.ended))
	}

	if *pending == nil {
		t.Fatal("queue did not schedule next utterance after failure")
	}
	(*pending)()

	if got := engine.spokenTexts(); len(got) != 2 || got[1] != "survivor" {
		t.Errorf("spoken = %v, want playback to continue with [survivor]", got)
	}
}

func TestPauseResume(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, _ := newTestQueue(DefaultConfig(), engine, rec)

	// Pause with nothing playing is a no-op.
	q.Pause()
	engine.mu.Lock()
	pauses := engine.pauses
	engine.mu.Unlock()
	if pauses != 0 {
		t.Errorf("engine pauses = %d with nothing playing, want 0", pauses)
	}

	q.Enqueue(utter("something to say"))
	q.Pause()

	if !q.Paused() {
		t.Error("Paused() = false after pause")
	}
	if q.Playing() {
		t.Error("Playing() = true while paused")
	}

	q.Resume()
	if q.Paused() {
		t.Error("Paused() = true after resume")
	}

	// Resume with nothing paused is a no-op.
	q.Resume()
	engine.mu.Lock()
	resumes := engine.resumes
	engine.mu.Unlock()
	if resumes != 1 {
		t.Errorf("engine resumes = %d, want 1", resumes)
	}
}

func TestEnqueueRejectsEmptyText(t *testing.T) {
	engine := &fakeSynth{}
	q, _ := newTestQueue(DefaultConfig(), engine, &queueRecorder{})

	if _, err := q.Enqueue(utter("<p>   </p>")); !errors.Is(err, voice.ErrEmptyUtterance) {
		t.Errorf("Enqueue(markup-only) error = %v, want ErrEmptyUtterance", err)
	}
}

func TestClosedQueueRejectsEnqueue(t *testing.T) {
	engine := &fakeSynth{}
	q, _ := newTestQueue(DefaultConfig(), engine, &queueRecorder{})

	q.Close()
	if _, err := q.Enqueue(utter("too late")); !errors.Is(err, voice.ErrQueueClosed) {
		t.Errorf("Enqueue() after Close error = %v, want ErrQueueClosed", err)
	}
}

func TestStopDuringPauseWindowCancelsTimer(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, pending := newTestQueue(DefaultConfig(), engine, rec)

	q.Enqueue(utter("first"))
	q.Enqueue(utter("waiting"))
	engine.complete()

	if *pending == nil {
		t.Fatal("no next-utterance timer scheduled after completion")
	}
	stale := *pending

	q.Stop()

	q.mu.Lock()
	timer := q.pauseTimer
	q.mu.Unlock()
	if timer != nil {
		t.Error("pause timer still set after Stop")
	}

	stale()
	if got := engine.spokenTexts(); len(got) != 1 {
		t.Errorf("stale pause timer started playback, spoken = %v", got)
	}
	if got := q.Pending(); got != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", got)
	}
}

func TestStopClearsQueueAndCancelsPlayback(t *testing.T) {
	engine := &fakeSynth{}
	rec := &queueRecorder{}
	q, pending := newTestQueue(DefaultConfig(), engine, rec)

	q.Enqueue(utter("playing"))
	q.Enqueue(utter("pending"))
	q.Stop()

	engine.mu.Lock()
	cancels := engine.cancels
	engine.mu.Unlock()
	if cancels != 1 {
		t.Errorf("engine cancels = %d, want 1", cancels)
	}
	if got := q.Pending(); got != 0 {
		t.Errorf("Pending() = %d after Stop, want 0", got)
	}
	if q.Playing() {
		t.Error("Playing() = true after Stop")
	}

	// A timer scheduled before Stop must be inert.
	if *pending != nil {
		(*pending)()
		if got := len(engine.spokenTexts()); got != 1 {
			t.Errorf("stale timer started playback, spoken = %d", got)
		}
	}
}
