// Package wallet defines the port the fetch pipeline uses to page through a
// Lightning wallet's transaction history.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"v4v/internal/core"
)

// TypeIncoming selects received payments.
const TypeIncoming = "incoming"

// ErrReplyTimeout is returned when the wallet does not answer a request in time.
var ErrReplyTimeout = errors.New("reply timeout")

// ListParams selects one page of the wallet's transaction list. Wallets
// return the page newest first.
type ListParams struct {
	Type   string
	Limit  int
	Offset int
}

// Client is an open wallet session.
type Client interface {
	ListTransactions(ctx context.Context, params ListParams) ([]core.Transaction, error)
	Close() error
}

// Opener acquires a wallet session. Every successful Open must be paired
// with a Close.
type Opener interface {
	Open(ctx context.Context) (Client, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Client, error)

func (f OpenerFunc) Open(ctx context.Context) (Client, error) { return f(ctx) }

// RemoteError is an error reported by the wallet service itself.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet error %s", e.Code)
	}
	return fmt.Sprintf("wallet error %s: %s", e.Code, e.Message)
}

// Transient reports whether retrying the same request may succeed.
func (e *RemoteError) Transient() bool {
	return e.Code == "RATE_LIMITED" || e.Code == "INTERNAL"
}

// IsTransient reports whether err is worth retrying: reply timeouts,
// deadline expiry of a single request, and wallet errors marked transient.
// Cancellation by the caller is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrReplyTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Transient()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "reply timeout") || strings.Contains(msg, "timed out")
}
