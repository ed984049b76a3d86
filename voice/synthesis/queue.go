// Package synthesis serializes spoken output. The queue guarantees that
// utterances never overlap, lets high-priority utterances jump ahead, and
// keeps a natural cadence with a short pause between utterances.
package synthesis

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/talkcoach/voicekit/voice"
)

// Default queue configuration.
const (
	// DefaultMaxQueueSize bounds the number of pending utterances.
	DefaultMaxQueueSize = 10
	// DefaultInterUtterancePause is the gap between consecutive utterances.
	DefaultInterUtterancePause = 300 * time.Millisecond
	// DefaultMaxTextLength bounds utterance text length before truncation.
	DefaultMaxTextLength = 600
)

// Config configures a synthesis queue.
type Config struct {
	MaxQueueSize        int           `yaml:"max_queue_size" env:"VOICEKIT_SYNTHESIS_MAX_QUEUE" envDefault:"10"`
	InterUtterancePause time.Duration `yaml:"inter_utterance_pause" env:"VOICEKIT_SYNTHESIS_PAUSE" envDefault:"300ms"`
	MaxTextLength       int           `yaml:"max_text_length" env:"VOICEKIT_SYNTHESIS_MAX_TEXT" envDefault:"600"`
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:        DefaultMaxQueueSize,
		InterUtterancePause: DefaultInterUtterancePause,
		MaxTextLength:       DefaultMaxTextLength,
	}
}

// Validate checks the configuration for sanity.
func (c Config) Validate() error {
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("max queue size must be at least 1, got %d", c.MaxQueueSize)
	}
	if c.InterUtterancePause < 0 {
		return fmt.Errorf("inter-utterance pause must not be negative, got %v", c.InterUtterancePause)
	}
	return nil
}

// Handlers carries the queue's outward callbacks.
type Handlers struct {
	// OnUtteranceStart fires when an utterance begins playing.
	OnUtteranceStart func(u voice.Utterance)

	// OnUtteranceEnd fires when an utterance finishes playing.
	OnUtteranceEnd func(u voice.Utterance)

	// OnQueueChange fires whenever the pending depth changes.
	OnQueueChange func(depth int)

	// OnError fires for every synthesis failure. Failures are non-fatal to
	// the queue; the failed utterance is discarded and playback continues.
	OnError func(err *voice.Error)
}

// item is one queued utterance. seq preserves enqueue order so overflow can
// drop the oldest item even after priority insertion reordered the slice.
type item struct {
	id        string
	utterance voice.Utterance
	seq       uint64
}

// Queue serializes utterance playback over a synthesis engine.
type Queue struct {
	config   Config
	engine   voice.SynthesisEngine
	handlers Handlers

	mu         sync.Mutex
	items      []item
	current    *item
	playing    bool
	paused     bool
	closed     bool
	generation uint64
	nextSeq    uint64
	pauseTimer *time.Timer

	// afterFunc is replaceable for tests.
	afterFunc func(d time.Duration, fn func()) *time.Timer
}

// NewQueue creates a queue over the given engine.
func NewQueue(cfg Config, engine voice.SynthesisEngine, handlers Handlers) *Queue {
	return &Queue{
		config:    cfg,
		engine:    engine,
		handlers:  handlers,
		afterFunc: time.AfterFunc,
	}
}

// Enqueue normalizes and queues an utterance, returning its position in the
// pending queue (0 = next to play). When the queue is full, the oldest
// pending item is dropped to make room.
func (q *Queue) Enqueue(u voice.Utterance) (int, error) {
	u.Text = Normalize(u.Text, q.config.MaxTextLength)
	if u.Text == "" {
		return 0, voice.ErrEmptyUtterance
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, voice.ErrQueueClosed
	}

	if len(q.items) >= q.config.MaxQueueSize {
		dropped := q.dropOldestLocked()
		log.Debug("queue: overflow, dropped oldest pending utterance",
			"dropped", preview(dropped.utterance.Text))
	}

	it := item{id: uuid.NewString(), utterance: u, seq: q.nextSeq}
	q.nextSeq++
	position := q.insertLocked(it)
	depth := len(q.items)

	idle := !q.playing && q.pauseTimer == nil && !q.paused
	var startItem *item
	var gen uint64
	if idle {
		next := q.popLocked()
		q.current = &next
		q.playing = true
		q.generation++
		gen = q.generation
		startItem = &next
		depth = len(q.items)
	}
	q.mu.Unlock()

	q.notifyQueueChange(depth)
	log.Debug("queue: enqueued",
		"priority", u.Priority,
		"position", position,
		"depth", depth)

	if startItem != nil {
		q.play(*startItem, gen)
	}
	return position, nil
}

// Speak plays an utterance. With interrupt set, any playing utterance is
// cancelled at the engine level and the new one starts immediately without
// touching the pending queue; otherwise Speak behaves like Enqueue.
func (q *Queue) Speak(u voice.Utterance, interrupt bool) error {
	normalized := Normalize(u.Text, q.config.MaxTextLength)
	if normalized == "" {
		return voice.ErrEmptyUtterance
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return voice.ErrQueueClosed
	}

	if interrupt && (q.playing || q.paused) {
		q.generation++
		gen := q.generation
		q.cancelPauseTimerLocked()
		u.Text = normalized
		it := item{id: uuid.NewString(), utterance: u, seq: q.nextSeq}
		q.nextSeq++
		q.current = &it
		q.playing = true
		q.paused = false
		q.mu.Unlock()

		log.Debug("queue: interrupting current utterance")
		q.engine.Cancel()
		q.play(it, gen)
		return nil
	}
	q.mu.Unlock()

	_, err := q.Enqueue(u)
	return err
}

// Pause suspends the playing utterance. A no-op unless something is
// actively playing.
func (q *Queue) Pause() {
	q.mu.Lock()
	active := q.playing && !q.paused
	q.mu.Unlock()

	if active {
		q.engine.Pause()
	}
}

// Resume continues a paused utterance. A no-op with nothing paused.
func (q *Queue) Resume() {
	q.mu.Lock()
	paused := q.paused
	q.mu.Unlock()

	if paused {
		q.engine.Resume()
	}
}

// Stop cancels the current utterance and clears all pending items.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.generation++
	q.cancelPauseTimerLocked()
	wasActive := q.playing || q.paused
	q.current = nil
	q.playing = false
	q.paused = false
	cleared := len(q.items)
	q.items = nil
	q.mu.Unlock()

	if wasActive {
		q.engine.Cancel()
	}
	if cleared > 0 || wasActive {
		q.notifyQueueChange(0)
	}
	log.Debug("queue: stopped", "cleared", cleared)
}

// Close stops playback and rejects all further enqueues.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Stop()
}

// Playing reports whether an utterance is actively playing.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing && !q.paused
}

// Paused reports whether the current utterance is paused.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Pending returns the number of queued utterances, excluding the current.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// play drives one engine speak call for generation gen.
func (q *Queue) play(it item, gen uint64) {
	events := voice.UtteranceEvents{
		OnStart: func() {
			if q.stale(gen) {
				return
			}
			if q.handlers.OnUtteranceStart != nil {
				q.handlers.OnUtteranceStart(it.utterance)
			}
		},
		OnEnd: func() {
			q.handleDone(gen, it, nil)
		},
		OnError: func(err error) {
			q.handleDone(gen, it, err)
		},
		OnPause: func() {
			q.setPaused(gen, true)
		},
		OnResume: func() {
			q.setPaused(gen, false)
		},
	}

	log.Debug("queue: speaking", "text", preview(it.utterance.Text))
	if err := q.engine.Speak(it.utterance, events); err != nil {
		q.handleDone(gen, it, err)
	}
}

// handleDone runs on completion or failure of the current utterance and
// schedules the next one after the inter-utterance pause.
func (q *Queue) handleDone(gen uint64, it item, err error) {
	q.mu.Lock()
	if gen != q.generation {
		q.mu.Unlock()
		return
	}
	q.current = nil
	q.playing = false
	q.paused = false

	hasNext := len(q.items) > 0
	if hasNext {
		q.pauseTimer = q.afterFunc(q.config.InterUtterancePause, func() {
			q.startNext(gen)
		})
	}
	q.mu.Unlock()

	if err != nil {
		// Non-fatal: discard the failed utterance and report upward.
		verr := voice.NewError(err, "synthesis")
		verr.Category = voice.CategoryRuntime
		verr.Recoverable = false
		log.Warn("queue: utterance failed",
			"text", preview(it.utterance.Text),
			"error", err)
		if q.handlers.OnError != nil {
			q.handlers.OnError(verr)
		}
	} else if q.handlers.OnUtteranceEnd != nil {
		q.handlers.OnUtteranceEnd(it.utterance)
	}
}

// startNext fires from the inter-utterance pause timer.
func (q *Queue) startNext(gen uint64) {
	q.mu.Lock()
	if gen != q.generation || q.closed || len(q.items) == 0 {
		q.pauseTimer = nil
		q.mu.Unlock()
		return
	}
	q.pauseTimer = nil
	next := q.popLocked()
	q.current = &next
	q.playing = true
	depth := len(q.items)
	q.mu.Unlock()

	q.notifyQueueChange(depth)
	q.play(next, gen)
}

// cancelPauseTimerLocked stops a scheduled inter-utterance pause timer.
// Callers hold q.mu.
func (q *Queue) cancelPauseTimerLocked() {
	if q.pauseTimer != nil {
		q.pauseTimer.Stop()
		q.pauseTimer = nil
	}
}

func (q *Queue) setPaused(gen uint64, paused bool) {
	q.mu.Lock()
	if gen != q.generation {
		q.mu.Unlock()
		return
	}
	q.paused = paused
	q.mu.Unlock()
}

func (q *Queue) stale(gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return gen != q.generation
}

// insertLocked places an item by priority, after all items of equal or
// higher priority, and returns its position.
func (q *Queue) insertLocked(it item) int {
	pos := len(q.items)
	for i := range q.items {
		if it.utterance.Priority > q.items[i].utterance.Priority {
			pos = i
			break
		}
	}
	q.items = append(q.items, item{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = it
	return pos
}

// popLocked removes and returns the head of the pending queue.
func (q *Queue) popLocked() item {
	next := q.items[0]
	q.items = q.items[1:]
	return next
}

// dropOldestLocked removes the item with the lowest sequence number, the
// oldest pending (never the playing) utterance.
func (q *Queue) dropOldestLocked() item {
	oldest := 0
	for i := range q.items {
		if q.items[i].seq < q.items[oldest].seq {
			oldest = i
		}
	}
	dropped := q.items[oldest]
	q.items = append(q.items[:oldest], q.items[oldest+1:]...)
	return dropped
}

func (q *Queue) notifyQueueChange(depth int) {
	if q.handlers.OnQueueChange != nil {
		q.handlers.OnQueueChange(depth)
	}
}

func preview(text string) string {
	const max = 40
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
