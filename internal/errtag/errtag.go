// Package errtag classifies errors per the taxonomy in the system's error
// handling design: transient I/O, protocol decode errors, policy
// rejections, configuration errors, and fatal conditions. Internal
// functions return these tagged errors; code that crosses a goroutine
// boundary converts them to counters and log lines rather than letting
// the tag leak into unrelated layers.
package errtag

import "fmt"

// Kind is the error category.
type Kind int

const (
	// Transient covers rigctl timeouts, UDP send failures, and audio
	// backend underflow/overflow. Callers retry on the next tick or
	// drop-oldest; they never propagate as process failures.
	Transient Kind = iota
	// Decode covers CRC mismatch, uncorrectable FEC, unknown opcode.
	Decode
	// Policy covers grants blocked by allow-list, disabled data/enc
	// toggles, or untrusted IDEN entries.
	Policy
	// Config covers invalid CLI options, malformed INI, malformed key
	// material.
	Config
	// Fatal covers unrecoverable conditions; only this kind should ever
	// lead to runtime.RequestShutdown.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Decode:
		return "decode"
	case Policy:
		return "policy"
	case Config:
		return "config"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is an error annotated with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error with no underlying cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags an existing error.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if te, ok := err.(*Error); ok {
			if te.Kind == kind {
				return true
			}
			err = te.Err
			continue
		}
		break
	}
	return false
}
