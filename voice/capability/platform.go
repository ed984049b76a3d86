package capability

import (
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/talkcoach/voicekit/voice"
)

// Audio subsystem names reported in platform metadata.
const (
	audioALSA       = "alsa"
	audioPulseAudio = "pulseaudio"
	audioCoreAudio  = "coreaudio"
	audioWASAPI     = "wasapi"
	audioNone       = "none"
)

// detectPlatform probes the host for platform metadata: OS, architecture,
// audio subsystem, and CI status.
func detectPlatform() voice.PlatformInfo {
	info := voice.PlatformInfo{
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		IsCI:    isCI(),
		Details: map[string]string{"goversion": runtime.Version()},
	}

	switch runtime.GOOS {
	case "linux":
		info.AudioSubsystem = detectLinuxAudio()
	case "darwin":
		info.AudioSubsystem = audioCoreAudio
	case "windows":
		info.AudioSubsystem = audioWASAPI
	default:
		info.AudioSubsystem = audioNone
	}

	log.Debug("platform detected",
		"os", info.OS,
		"audio", info.AudioSubsystem,
		"is_ci", info.IsCI)

	return info
}

// detectLinuxAudio detects the audio subsystem on Linux.
func detectLinuxAudio() string {
	// PulseAudio first; it is the common case on desktop Linux.
	if isCommandAvailable("pactl") {
		if output, err := exec.Command("pactl", "info").Output(); err == nil {
			if strings.Contains(string(output), "Server Name") {
				return audioPulseAudio
			}
		}
	}

	if _, err := os.Stat("/proc/asound"); err == nil {
		return audioALSA
	}
	if isCommandAvailable("aplay") {
		return audioALSA
	}

	return audioNone
}

// hasCaptureDevice reports whether a microphone-capable device is visible.
// Any ambiguity maps to false, the conservative answer.
func hasCaptureDevice() bool {
	switch runtime.GOOS {
	case "linux":
		return hasLinuxCaptureDevice()
	case "darwin", "windows":
		// Capture hardware is nearly universal; the permission probe is
		// the meaningful gate on these platforms.
		return true
	default:
		return false
	}
}

func hasLinuxCaptureDevice() bool {
	if entries, err := os.ReadDir("/dev/snd"); err == nil {
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), "pcm") && strings.HasSuffix(entry.Name(), "c") {
				return true
			}
		}
	}

	if isCommandAvailable("pactl") {
		if output, err := exec.Command("pactl", "list", "short", "sources").Output(); err == nil {
			return len(strings.TrimSpace(string(output))) > 0
		}
	}

	return false
}

// isCI reports whether the process runs in a CI environment.
func isCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

func isCommandAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}
