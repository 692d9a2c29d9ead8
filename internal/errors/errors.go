// Package errors provides the error taxonomy used across pollen.
// Every failure that reaches the command layer is tagged with a Kind so the
// top level can decide whether to exit, report and continue, or degrade.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error by where it came from.
type Kind string

const (
	// KindCredential: API key missing. Fatal before any network call.
	KindCredential Kind = "credential"
	// KindConfig: unreadable or invalid configuration.
	KindConfig Kind = "config"
	// KindTransport: the remote endpoint could not be reached or refused the request.
	KindTransport Kind = "transport"
	// KindSpeech: recognizer or synthesizer failure.
	KindSpeech Kind = "speech"
	// KindValidation: structured output did not match the declared schema.
	KindValidation Kind = "validation"
	// KindTool: a local tool failed. Normally fed back to the model in-band.
	KindTool Kind = "tool"
	// KindConversation: an append would break conversation ordering.
	KindConversation Kind = "conversation"
	// KindUnknown is returned by KindOf for untagged errors.
	KindUnknown Kind = "unknown"
)

// Error is a tagged error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New tags err with kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf tags a formatted message with kind.
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost Kind in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsCredential reports whether err is a missing-credential error.
func IsCredential(err error) bool { return KindOf(err) == KindCredential }

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsSpeech reports whether err came from a speech collaborator.
func IsSpeech(err error) bool { return KindOf(err) == KindSpeech }

// IsValidation reports whether err is a structured-output validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// Is and As re-export the standard helpers so callers only import one errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// ErrorType says whether a transport failure looks transient.
// pollen never retries; this only shapes the message shown to the user.
type ErrorType string

const (
	ErrorTypeTransient ErrorType = "transient"
	ErrorTypePermanent ErrorType = "permanent"
)

// ClassifyError inspects the message of a transport error.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	msg := strings.ToLower(err.Error())

	transientPatterns := []string{
		// Network errors
		"connection refused",
		"connection reset",
		"no such host",
		"timeout",
		"deadline exceeded",
		"temporary failure",
		"network is unreachable",
		// Rate limiting
		"rate limit",
		"too many requests",
		"429",
		"503",
		"service unavailable",
		// Server errors
		"internal server error",
		"500",
		"502",
		"504",
		"overloaded",
		"unexpected eof",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ErrorTypeTransient
		}
	}
	return ErrorTypePermanent
}

// RecoveryResult holds the result of a recovered panic.
type RecoveryResult struct {
	Recovered  bool
	PanicValue interface{}
	ErrorMsg   string
}

// RecoverPanic converts a recovered value into a RecoveryResult.
// Use with defer:
//
//	defer func() {
//	    if r := errors.RecoverPanic(recover()); r.Recovered {
//	        // Handle recovered panic
//	    }
//	}()
func RecoverPanic(r interface{}) RecoveryResult {
	if r == nil {
		return RecoveryResult{Recovered: false}
	}

	result := RecoveryResult{
		Recovered:  true,
		PanicValue: r,
	}

	switch v := r.(type) {
	case error:
		result.ErrorMsg = fmt.Sprintf("panic: %v", v)
	case string:
		result.ErrorMsg = fmt.Sprintf("panic: %s", v)
	default:
		result.ErrorMsg = fmt.Sprintf("panic: %+v", v)
	}

	return result
}
