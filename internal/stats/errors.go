package stats

import (
	"errors"

	"markin/internal/core"
)

// Kind is the failure taxonomy of a stats fetch.
type Kind int

const (
	// KindTransport means the exchange could not be completed: network
	// error, timeout, or a body that is not a JSON envelope.
	KindTransport Kind = iota + 1
	// KindServerReported means the exchange completed but the envelope
	// reported no data.
	KindServerReported
)

var (
	ErrServerUnreachable = errors.New("could not reach server")
	ErrStatsUnavailable  = errors.New("stats unavailable")
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindServerReported:
		return "server_reported"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	if k == KindServerReported {
		return ErrStatsUnavailable
	}
	return ErrServerUnreachable
}

// FetchError wraps the cause of a failed fetch. errors.Is matches it
// against ErrServerUnreachable or ErrStatsUnavailable depending on Kind.
type FetchError struct {
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Kind.sentinel().Error()
	}
	return e.Kind.sentinel().Error() + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func transportError(err error) *FetchError {
	return &FetchError{Kind: KindTransport, Err: err}
}

func serverReported(err error) *FetchError {
	return &FetchError{Kind: KindServerReported, Err: err}
}

// KindOf classifies err. Errors that are not a FetchError count as
// transport failures, matching how the page treats any thrown error.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, ErrStatsUnavailable) {
		return KindServerReported
	}
	return KindTransport
}

// OutcomeOf maps a FetchStats result to a fetch log outcome.
func OutcomeOf(err error) core.FetchOutcome {
	switch KindOf(err) {
	case 0:
		return core.OutcomeSuccess
	case KindServerReported:
		return core.OutcomeStatsUnavailable
	default:
		return core.OutcomeServerUnreachable
	}
}
