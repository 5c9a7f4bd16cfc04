// Package errs defines the typed error kinds shared by the mail client
// boundary and the periodic components that call it.
package errs

import "errors"

// Kind classifies a failure so callers can decide whether to retry, refresh
// credentials, or pause a mailbox, per spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientNetwork
	KindExpiredToken
	KindNeedsReauth
	KindInvalidPlan
	KindDuplicateDispatch
	KindContentGeneratorEmpty
	KindUnknownProvider
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindExpiredToken:
		return "expired_token"
	case KindNeedsReauth:
		return "needs_reauth"
	case KindInvalidPlan:
		return "invalid_plan"
	case KindDuplicateDispatch:
		return "duplicate_dispatch"
	case KindContentGeneratorEmpty:
		return "content_generator_empty"
	case KindUnknownProvider:
		return "unknown_provider"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so the dispatcher and friends
// can branch on classification without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind. A nil err is still wrapped so callers can use
// New purely to classify a sentinel condition.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Kind == kind {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}
