package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a gateway failure. Callers decide retry policy from it;
// the gateway itself never retries.
type Kind int

const (
	// KindNetworkUnreachable covers DNS, connection refused and other
	// transport-level failures before a response was received.
	KindNetworkUnreachable Kind = iota + 1
	// KindTimeout covers request deadlines, both the per-request ceiling
	// and caller-supplied context deadlines.
	KindTimeout
	// KindHTTP covers responses with a 4xx/5xx status.
	KindHTTP
	// KindMalformedResponse covers 2xx responses whose body could not be
	// decoded as the expected JSON shape.
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindNetworkUnreachable:
		return "network_unreachable"
	case KindTimeout:
		return "timeout"
	case KindHTTP:
		return "http_error"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is the single failure type crossing the gateway boundary.
type Error struct {
	Kind     Kind
	Status   int    // set when Kind == KindHTTP
	Endpoint string // path only, never the full URL
	Message  string // remote error message when the body carried one
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTP:
		if e.Message != "" {
			return fmt.Sprintf("gateway: %s: http %d: %s", e.Endpoint, e.Status, e.Message)
		}
		return fmt.Sprintf("gateway: %s: http %d", e.Endpoint, e.Status)
	default:
		return fmt.Sprintf("gateway: %s: %s: %v", e.Endpoint, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying the same request could reasonably
// succeed: network failures, timeouts and 5xx responses. 4xx responses and
// malformed bodies are permanent.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindNetworkUnreachable, KindTimeout:
		return true
	case KindHTTP:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// AsError unwraps err into a *Error, or nil when err is not gateway-born.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return nil
}

// IsTransient reports whether err is a gateway error safe to retry.
func IsTransient(err error) bool {
	if ge := AsError(err); ge != nil {
		return ge.Transient()
	}
	return false
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool {
	ge := AsError(err)
	return ge != nil && ge.Kind == KindTimeout
}
