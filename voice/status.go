package voice

// StatusSeverity grades a user-facing status for display.
type StatusSeverity string

const (
	StatusSuccess StatusSeverity = "success"
	StatusWarning StatusSeverity = "warning"
	StatusInfo    StatusSeverity = "info"
)

// Status is the canonical user-facing description of an operating mode.
// It is deliberately separate from diagnostic logging: this copy is shown
// to users, diagnostics go to the log.
type Status struct {
	Mode     Mode
	Severity StatusSeverity
	Message  string
}

// StatusFor returns the canonical status for a mode.
func StatusFor(mode Mode) Status {
	switch mode {
	case ModeNone:
		return Status{mode, StatusSuccess, "Voice is ready. Speak whenever you like."}
	case ModePartial:
		return Status{mode, StatusWarning, "Spoken replies are available, but your microphone cannot be used. Type your messages instead."}
	case ModeTextOnly:
		return Status{mode, StatusInfo, "Voice features are unavailable right now. You can continue in text."}
	case ModeRetryPending:
		return Status{mode, StatusInfo, "Reconnecting voice features..."}
	case ModePermissionRequired:
		return Status{mode, StatusWarning, "Microphone access is blocked. Allow microphone access to talk with your coach."}
	case ModeUpgradeRequired:
		return Status{mode, StatusWarning, "This device does not support voice features. Please continue in text."}
	default:
		return Status{mode, StatusInfo, "Voice features are unavailable right now. You can continue in text."}
	}
}
