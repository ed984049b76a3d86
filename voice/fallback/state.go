package fallback

import (
	"encoding/json"
	"time"

	"github.com/talkcoach/voicekit/voice"
)

// State is the authoritative fallback bookkeeping. A single instance exists
// per coordinator and only the coordinator mutates it.
type State struct {
	Mode       voice.Mode
	Category   voice.Category
	RetryCount int
	LastError  string
	Timestamp  time.Time
}

// persistedState is the durable JSON form of State. Mode is stored as its
// string form so persisted entries survive enum reordering.
type persistedState struct {
	Mode       string    `json:"mode"`
	Category   string    `json:"category"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// encodeState serializes a State for the durable store.
func encodeState(s State) ([]byte, error) {
	return json.Marshal(persistedState{
		Mode:       s.Mode.String(),
		Category:   string(s.Category),
		RetryCount: s.RetryCount,
		LastError:  s.LastError,
		Timestamp:  s.Timestamp,
	})
}

// decodeState deserializes a persisted State.
func decodeState(data []byte) (State, error) {
	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return State{}, err
	}
	return State{
		Mode:       voice.ParseMode(p.Mode),
		Category:   voice.Category(p.Category),
		RetryCount: p.RetryCount,
		LastError:  p.LastError,
		Timestamp:  p.Timestamp,
	}, nil
}

// equal reports whether two states are the same for listener-notification
// purposes. Timestamp is excluded: an unchanged state re-derived later is
// still unchanged.
func (s State) equal(other State) bool {
	return s.Mode == other.Mode &&
		s.Category == other.Category &&
		s.RetryCount == other.RetryCount &&
		s.LastError == other.LastError
}
