// Package audio provides PCM playback and microphone capture for the local
// engine adapters.
package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// PCM format constants. Engines producing audio for the Player must emit
// 16-bit little-endian mono PCM.
const (
	BytesPerSample = 2
	Channels       = 1
	Format         = oto.FormatSignedInt16LE

	// monitorInterval is how often playback completion is polled.
	monitorInterval = 50 * time.Millisecond
)

// Player plays PCM buffers through the platform audio device. Each Player
// owns its own audio context; callers create one per process and inject it
// where needed.
type Player struct {
	sampleRate int
	context    *oto.Context

	mu         sync.Mutex
	current    *oto.Player
	data       []byte
	generation uint64
	closed     bool
}

// NewPlayer creates a player for the given sample rate and blocks until the
// platform audio context is ready.
func NewPlayer(sampleRate int) (*Player, error) {
	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: Channels,
		Format:       Format,
		BufferSize:   50 * time.Millisecond,
	}

	context, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	log.Debug("audio: player ready", "sample_rate", sampleRate)
	return &Player{sampleRate: sampleRate, context: context}, nil
}

// Play starts playback of a PCM buffer, cancelling any current playback.
// onDone fires once when playback completes; it does not fire after Stop.
func (p *Player) Play(pcm []byte, onDone func()) error {
	if len(pcm) == 0 {
		return fmt.Errorf("empty audio data")
	}
	if len(pcm)%BytesPerSample != 0 {
		return fmt.Errorf("pcm data length %d not aligned to %d-byte samples",
			len(pcm), BytesPerSample)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("player is closed")
	}
	p.stopLocked()
	p.generation++
	gen := p.generation

	player := p.context.NewPlayer(bytes.NewReader(pcm))
	p.current = player
	p.data = pcm
	p.mu.Unlock()

	player.Play()
	go p.monitor(player, gen, onDone)
	return nil
}

// Pause suspends the current playback.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Pause()
	}
}

// Resume continues a paused playback.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Play()
	}
}

// Stop cancels the current playback. Its onDone will not fire.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.stopLocked()
}

// Playing reports whether audio is currently playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.IsPlaying()
}

// Duration returns the play time of a PCM buffer at the player's rate.
func (p *Player) Duration(pcm []byte) time.Duration {
	samples := len(pcm) / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(p.sampleRate)
}

// Close stops playback and releases the audio context.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	p.stopLocked()
	p.closed = true
	return nil
}

func (p *Player) stopLocked() {
	if p.current != nil {
		p.current.Pause()
		_ = p.current.Close()
		p.current = nil
		p.data = nil
	}
}

// monitor polls the oto player for completion. A bumped generation means
// Stop or a newer Play superseded this playback.
func (p *Player) monitor(player *oto.Player, gen uint64, onDone func()) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if gen != p.generation {
			p.mu.Unlock()
			return
		}
		if player.IsPlaying() {
			p.mu.Unlock()
			continue
		}
		// Drained and stopped: playback finished.
		p.stopLocked()
		p.mu.Unlock()

		if onDone != nil {
			onDone()
		}
		return
	}
}
