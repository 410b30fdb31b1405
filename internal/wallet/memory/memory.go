// Package memory provides an in-process wallet for tests, demos and offline runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"v4v/internal/core"
	"v4v/internal/wallet"
)

// Wallet serves a fixed transaction history and can be scripted to fail.
type Wallet struct {
	mu       sync.Mutex
	txs      []core.Transaction
	failures []error
	openErr  error
	calls    []wallet.ListParams
	opens    int
	closes   int
}

var _ wallet.Opener = (*Wallet)(nil)

// New returns a wallet holding txs, ordered newest first like a real wallet.
func New(txs ...core.Transaction) *Wallet {
	w := &Wallet{}
	w.txs = append(w.txs, txs...)
	core.SortByTimestampDesc(w.txs)
	return w
}

// NewFromFile loads a JSON fixture. The file may hold a bare array of
// transactions or an object with a "transactions" array, so both a wallet
// dump and a cache snapshot work.
func NewFromFile(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet fixture: %w", err)
	}
	var txs []core.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		var wrapped struct {
			Transactions []core.Transaction `json:"transactions"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decode wallet fixture: %w", err)
		}
		txs = wrapped.Transactions
	}
	return New(txs...), nil
}

// Receive adds payments as if they had just arrived.
func (w *Wallet) Receive(txs ...core.Transaction) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.txs = append(append([]core.Transaction(nil), txs...), w.txs...)
	core.SortByTimestampDesc(w.txs)
}

// FailNext makes the next len(errs) list calls return the given errors in order.
// A nil entry lets that call succeed.
func (w *Wallet) FailNext(errs ...error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = append(w.failures, errs...)
}

// FailOpen makes Open return err until cleared with FailOpen(nil).
func (w *Wallet) FailOpen(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.openErr = err
}

// Calls returns the parameters of every list request served so far.
func (w *Wallet) Calls() []wallet.ListParams {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]wallet.ListParams(nil), w.calls...)
}

// Sessions returns how many sessions were opened and closed.
func (w *Wallet) Sessions() (opened, closed int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opens, w.closes
}

func (w *Wallet) Open(ctx context.Context) (wallet.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.openErr != nil {
		return nil, w.openErr
	}
	w.opens++
	return &client{w: w}, nil
}

type client struct {
	w      *Wallet
	mu     sync.Mutex
	closed bool
}

func (c *client) ListTransactions(ctx context.Context, p wallet.ListParams) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("wallet session closed")
	}

	w := c.w
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls = append(w.calls, p)
	if len(w.failures) > 0 {
		err := w.failures[0]
		w.failures = w.failures[1:]
		if err != nil {
			return nil, err
		}
	}

	matching := make([]core.Transaction, 0, len(w.txs))
	for _, tx := range w.txs {
		if p.Type == "" || tx.Type == "" || tx.Type == p.Type {
			matching = append(matching, tx)
		}
	}
	if p.Offset >= len(matching) {
		return []core.Transaction{}, nil
	}
	end := len(matching)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return append([]core.Transaction(nil), matching[p.Offset:end]...), nil
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.w.mu.Lock()
	c.w.closes++
	c.w.mu.Unlock()
	return nil
}
