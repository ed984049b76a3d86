package voice

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors for the voice subsystem.
var (
	// Engine errors
	ErrRecognitionUnavailable = errors.New("speech recognition engine is not available")
	ErrSynthesisUnavailable   = errors.New("speech synthesis engine is not available")
	ErrEngineStartFailed      = errors.New("engine failed to start")

	// Permission and environment errors
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrInsecureContext  = errors.New("secure context required for voice features")

	// Session errors
	ErrSessionActive   = errors.New("a recognition session is already active")
	ErrSessionInactive = errors.New("no recognition session is active")

	// Queue errors
	ErrQueueClosed    = errors.New("synthesis queue is closed")
	ErrEmptyUtterance = errors.New("utterance text is empty")

	// Recognition runtime errors
	ErrNoSpeech           = errors.New("no speech detected")
	ErrAudioCapture       = errors.New("audio capture failed")
	ErrServiceUnavailable = errors.New("speech service unavailable")
	ErrNoMatch            = errors.New("speech detected but not recognized")

	// Store errors
	ErrNotFound = errors.New("key not found")
)

// Category classifies a failure for fallback accounting. Categories decide
// whether the coordinator retries or downgrades.
type Category string

const (
	CategoryNone           Category = ""
	CategoryPermission     Category = "permission"
	CategoryCompatibility  Category = "compatibility"
	CategorySecurity       Category = "security"
	CategoryNetwork        Category = "network"
	CategoryTemporary      Category = "temporary"
	CategoryInitialization Category = "initialization"
	CategoryRuntime        Category = "runtime"
)

// Retryable reports whether failures in this category are worth retrying.
// Permission, compatibility, and security failures need an external change;
// runtime failures default to per-item discard rather than session retries.
func (c Category) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryTemporary, CategoryInitialization:
		return true
	default:
		return false
	}
}

// Severity grades an error for logging and status display.
type Severity int

const (
	// SeverityInfo is for conditions that need no attention.
	SeverityInfo Severity = iota
	// SeverityWarning is for degraded but functional operation.
	SeverityWarning
	// SeverityError is for failures that disable a feature.
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Error wraps an engine or orchestration failure with the context the
// fallback coordinator needs: which component failed, the taxonomy category,
// and whether a retry can plausibly succeed.
type Error struct {
	Err         error     // Underlying error
	Component   string    // Component that produced it ("recognition", "synthesis", ...)
	Code        string    // Native engine code, if any
	Category    Category  // Taxonomy category
	Recoverable bool      // Whether a retry can plausibly succeed
	Severity    Severity  // Display severity
	Timestamp   time.Time // When the error occurred
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: unknown voice error", e.Component)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Err.Error())
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with component context, categorizing it in the process.
func NewError(err error, component string) *Error {
	cat := Categorize(err)
	return &Error{
		Err:         err,
		Component:   component,
		Category:    cat,
		Recoverable: cat.Retryable(),
		Severity:    SeverityError,
		Timestamp:   time.Now(),
	}
}

// NewEngineError wraps a native engine error, categorizing by its code
// rather than its message. A nil err is replaced with a code-derived one.
func NewEngineError(code string, err error, component string) *Error {
	if err == nil {
		err = fmt.Errorf("engine error: %s", code)
	}
	cat := CategorizeCode(code)
	return &Error{
		Err:         err,
		Component:   component,
		Code:        code,
		Category:    cat,
		Recoverable: cat.Retryable(),
		Severity:    SeverityError,
		Timestamp:   time.Now(),
	}
}

// WithCode attaches the native engine code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithSeverity overrides the display severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// NotRecoverable marks the error as hopeless regardless of category.
func (e *Error) NotRecoverable() *Error {
	e.Recoverable = false
	return e
}

// CategorizeCode maps a native recognition engine code to a category.
func CategorizeCode(code string) Category {
	switch code {
	case CodeNetwork:
		return CategoryNetwork
	case CodeNotAllowed, CodeServiceNotAllowed:
		return CategoryPermission
	case CodeNoSpeech, CodeNoMatch, CodeAborted:
		return CategoryTemporary
	case CodeAudioCapture:
		return CategoryInitialization
	default:
		return CategoryRuntime
	}
}

// Categorize classifies an arbitrary error against the fixed taxonomy by
// sentinel identity first, then by message pattern. Unmatched errors are
// runtime failures.
func Categorize(err error) Category {
	if err == nil {
		return CategoryNone
	}

	var verr *Error
	if errors.As(err, &verr) && verr.Category != CategoryNone {
		return verr.Category
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return CategoryPermission
	case errors.Is(err, ErrInsecureContext):
		return CategorySecurity
	case errors.Is(err, ErrRecognitionUnavailable),
		errors.Is(err, ErrSynthesisUnavailable):
		return CategoryCompatibility
	case errors.Is(err, ErrServiceUnavailable):
		return CategoryNetwork
	case errors.Is(err, ErrEngineStartFailed),
		errors.Is(err, ErrAudioCapture):
		return CategoryInitialization
	case errors.Is(err, ErrNoSpeech), errors.Is(err, ErrNoMatch):
		return CategoryTemporary
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "permission", "not allowed", "denied"):
		return CategoryPermission
	case containsAny(msg, "secure context", "https", "insecure"):
		return CategorySecurity
	case containsAny(msg, "not supported", "unsupported", "unavailable"):
		return CategoryCompatibility
	case containsAny(msg, "network", "connection", "timeout", "dial", "refused"):
		return CategoryNetwork
	case containsAny(msg, "initialize", "initialization", "failed to start", "audio capture"):
		return CategoryInitialization
	case containsAny(msg, "temporar", "busy", "try again", "no speech"):
		return CategoryTemporary
	default:
		return CategoryRuntime
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
