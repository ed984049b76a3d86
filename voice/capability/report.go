package capability

import (
	"fmt"
	"strings"

	"github.com/talkcoach/voicekit/voice"
)

// Report renders a snapshot as a human-readable diagnostic, one finding per
// line. Intended for CLI output and bug reports, not for parsing.
func Report(s voice.CapabilitySnapshot) string {
	var b strings.Builder

	b.WriteString("Voice Capability Report\n")
	b.WriteString("=======================\n")
	fmt.Fprintf(&b, "Assessed at:       %s\n", s.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Platform:          %s/%s (%s audio)\n", s.Platform.OS, s.Platform.Arch, s.Platform.AudioSubsystem)
	if s.Platform.IsCI {
		b.WriteString("Environment:       CI (audio hardware typically absent)\n")
	}
	fmt.Fprintf(&b, "Recognition:       %s\n", supported(s.RecognitionSupported))
	fmt.Fprintf(&b, "Synthesis:         %s\n", supported(s.SynthesisSupported))
	fmt.Fprintf(&b, "Secure context:    %s\n", yesNo(s.SecureContext))
	fmt.Fprintf(&b, "Mic permission:    %s\n", s.MicrophonePermission)

	b.WriteString("\n")
	switch {
	case s.VoiceReady():
		b.WriteString("Verdict: full voice operation available.\n")
	case s.SynthesisOnly():
		b.WriteString("Verdict: synthesis only; spoken replies work, dictation does not.\n")
	default:
		b.WriteString("Verdict: voice features unavailable; text mode recommended.\n")
	}

	return b.String()
}

func supported(ok bool) string {
	if ok {
		return "supported"
	}
	return "not supported"
}

func yesNo(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
