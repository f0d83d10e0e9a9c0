package solana

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind buckets RPC and transaction failures so callers can decide
// whether to retry, rotate endpoints, shrink a batch, or give up.
type ErrorKind int

const (
	// ErrKindUnknown is the catch-all for unclassified failures.
	ErrKindUnknown ErrorKind = iota
	// ErrKindRateLimited means the endpoint returned 429; retry after cooldown.
	ErrKindRateLimited
	// ErrKindUnauthorized means the endpoint rejected our credentials.
	// Rotating endpoints cannot fix this, so it is never retried.
	ErrKindUnauthorized
	// ErrKindEndpointUnavailable covers network and 5xx failures; rotate and retry.
	ErrKindEndpointUnavailable
	// ErrKindSimulationFailed means pre-flight simulation reverted.
	ErrKindSimulationFailed
	// ErrKindTransactionFailed means a broadcast transaction landed with an
	// on-chain error. Unlike a simulation revert, fees were spent.
	ErrKindTransactionFailed
	// ErrKindTransactionTooLarge means the serialized transaction exceeds
	// the wire limit; the batcher shrinks and retries.
	ErrKindTransactionTooLarge
	// ErrKindConfirmationTimeout means the transaction was broadcast but
	// never observed confirmed within the deadline. The transaction may
	// still land; this is not a definitive failure.
	ErrKindConfirmationTimeout
	// ErrKindInsufficientFunds means the wallet cannot cover the network fee.
	ErrKindInsufficientFunds
)

// String returns the kind name used in logs and metrics labels.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindUnauthorized:
		return "unauthorized"
	case ErrKindEndpointUnavailable:
		return "endpoint_unavailable"
	case ErrKindSimulationFailed:
		return "simulation_failed"
	case ErrKindTransactionFailed:
		return "transaction_failed"
	case ErrKindTransactionTooLarge:
		return "transaction_too_large"
	case ErrKindConfirmationTimeout:
		return "confirmation_timeout"
	case ErrKindInsufficientFunds:
		return "insufficient_funds"
	default:
		return "unknown"
	}
}

// Error is a classified RPC failure. Endpoint names the endpoint that
// produced it; Logs carries decoded simulation logs when present.
type Error struct {
	Kind     ErrorKind
	Endpoint string
	Logs     []string
	Err      error
}

func (e *Error) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s (endpoint %s): %v", e.Kind, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classified kind of err, unwrapping as needed.
func KindOf(err error) ErrorKind {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind
	}
	return classify(err)
}

// classify buckets an arbitrary error by sniffing its message. The RPC
// library surfaces HTTP status codes only in error text, so this mirrors
// how the status is actually available to us.
func classify(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests"):
		return ErrKindRateLimited
	case strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized") || strings.Contains(msg, "api key"):
		return ErrKindUnauthorized
	case strings.Contains(msg, "too large") || strings.Contains(msg, "Transaction too large"):
		return ErrKindTransactionTooLarge
	case strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "insufficient lamports"):
		return ErrKindInsufficientFunds
	default:
		return ErrKindEndpointUnavailable
	}
}
