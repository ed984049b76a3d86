package audio

import (
	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

// Microphone capture format: 16-bit mono PCM.
const (
	MicSampleRate      = 16000
	micFramesPerBuffer = 1024
)

// Microphone is an io.ReadCloser over the default capture device. The
// recognition engine that opens it holds the exclusive microphone claim;
// Close releases the stream and must run on every terminal path.
type Microphone struct {
	stream *portaudio.Stream
	buffer []int16
}

// OpenMicrophone initializes the capture backend and starts recording from
// the default input device.
func OpenMicrophone() (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	buffer := make([]int16, micFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(MicSampleRate), len(buffer), buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, err
	}

	log.Debug("audio: microphone opened", "sample_rate", MicSampleRate)
	return &Microphone{stream: stream, buffer: buffer}, nil
}

// Read captures one frame and copies it into p as little-endian bytes.
func (m *Microphone) Read(p []byte) (int, error) {
	if err := m.stream.Read(); err != nil {
		return 0, err
	}
	return copy(p, int16ToBytes(m.buffer)), nil
}

// Close stops the stream and releases the capture backend.
func (m *Microphone) Close() error {
	var err error
	if m.stream != nil {
		if stopErr := m.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := m.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.stream = nil
	}
	portaudio.Terminate()
	return err
}

func int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, v := range in {
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
