package transmit

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotRunning = errors.New("transmitter not running")
var ErrAlreadyRunning = errors.New("transmitter already running")
var ErrSuppressed = errors.New("lobby deleted, update suppressed")
var ErrRateLimited = errors.New("no rate limit token available")
var ErrRejected = errors.New("sink rejected request")

// FailureKind classifies a failed send for the retry policy.
type FailureKind int

const (
	KindNetwork FailureKind = iota + 1
	KindServer
	KindRateLimited
	KindAuth
	KindClient
)

func (k FailureKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindRateLimited:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

func (k FailureKind) Retryable() bool {
	return k == KindNetwork || k == KindServer || k == KindRateLimited
}

// SendError is the result of a failed send. Status is 0 when no response
// was received.
type SendError struct {
	Kind   FailureKind
	Status int
	Err    error
}

func (e *SendError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error (HTTP %d): %v", e.Kind, e.Status, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// KindForStatus maps a non-success HTTP status to its failure kind.
func KindForStatus(status int) FailureKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	default:
		return KindClient
	}
}

func asSendError(err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return &SendError{Kind: KindNetwork, Err: err}
}
