// Package errs defines the error taxonomy shared by source adapters,
// the orchestrator and the API layer. Adapter failures are classified
// into a Kind so the fallback loop can treat every adapter uniformly.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNetworkTimeout Kind = "network_timeout"
	KindBlocked        Kind = "blocked"
	KindParseMismatch  Kind = "parse_mismatch"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindValidation     Kind = "validation"
	KindUpstreamAPI    Kind = "upstream_api"
)

// SourceError carries a classified failure from a source adapter or one
// of its collaborators. Source is the adapter name when known.
type SourceError struct {
	Kind   Kind
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func New(kind Kind, source string, err error) *SourceError {
	return &SourceError{Kind: kind, Source: source, Err: err}
}

func Newf(kind Kind, source, format string, args ...any) *SourceError {
	return &SourceError{Kind: kind, Source: source, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, or the empty Kind when err was not
// produced by this package.
func KindOf(err error) Kind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
