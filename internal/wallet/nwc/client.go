// Package nwc implements the wallet port over Nostr Wallet Connect (NIP-47).
package nwc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"

	"v4v/internal/core"
	"v4v/internal/log"
	"v4v/internal/wallet"
)

const (
	KindRequest  = 23194
	KindResponse = 23195

	DefaultTimeout = 30 * time.Second
)

// roundTripper publishes a signed request and waits for the wallet's reply.
type roundTripper interface {
	RoundTrip(ctx context.Context, req nostr.Event) (*nostr.Event, error)
	Close() error
}

type dialFunc func(ctx context.Context, uri URI) (roundTripper, error)

// Opener connects to the wallet's relay on demand.
type Opener struct {
	uri     URI
	timeout time.Duration
	logger  *log.Logger
	dial    dialFunc
}

var _ wallet.Opener = (*Opener)(nil)

// NewOpener validates the connection string. No network traffic happens
// until Open is called.
func NewOpener(connection string, timeout time.Duration, logger *log.Logger) (*Opener, error) {
	uri, err := ParseURI(connection)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Opener{
		uri:     uri,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentWallet),
		dial:    dialRelay,
	}, nil
}

func (o *Opener) Open(ctx context.Context) (wallet.Client, error) {
	rt, err := o.dial(ctx, o.uri)
	if err != nil {
		return nil, err
	}
	c, err := newClient(o.uri, rt, o.timeout, o.logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return c, nil
}

// Client is an open NWC session.
type Client struct {
	uri       URI
	rt        roundTripper
	clientPub string
	shared    []byte
	timeout   time.Duration
	logger    *log.Logger
}

func newClient(uri URI, rt roundTripper, timeout time.Duration, logger *log.Logger) (*Client, error) {
	pub, err := nostr.GetPublicKey(uri.Secret)
	if err != nil {
		return nil, fmt.Errorf("derive client key: %w", err)
	}
	shared, err := nip04.ComputeSharedSecret(uri.WalletPubkey, uri.Secret)
	if err != nil {
		return nil, fmt.Errorf("compute shared secret: %w", err)
	}
	return &Client{
		uri:       uri,
		rt:        rt,
		clientPub: pub,
		shared:    shared,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

type request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

type response struct {
	ResultType string          `json:"result_type"`
	Error      *responseError  `json:"error"`
	Result     json.RawMessage `json:"result"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type listTransactionsParams struct {
	Type   string `json:"type,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset"`
}

type listTransactionsResult struct {
	Transactions []core.Transaction `json:"transactions"`
}

func (c *Client) ListTransactions(ctx context.Context, p wallet.ListParams) ([]core.Transaction, error) {
	var res listTransactionsResult
	err := c.call(ctx, "list_transactions", listTransactionsParams{Type: p.Type, Limit: p.Limit, Offset: p.Offset}, &res)
	if err != nil {
		return nil, err
	}
	if res.Transactions == nil {
		return []core.Transaction{}, nil
	}
	return res.Transactions, nil
}

func (c *Client) Close() error {
	return c.rt.Close()
}

func (c *Client) call(ctx context.Context, method string, params, out any) error {
	payload, err := json.Marshal(request{Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}
	content, err := nip04.Encrypt(string(payload), c.shared)
	if err != nil {
		return fmt.Errorf("%s: encrypt request: %w", method, err)
	}

	ev := nostr.Event{
		PubKey:    c.clientPub,
		CreatedAt: nostr.Now(),
		Kind:      KindRequest,
		Tags:      nostr.Tags{nostr.Tag{"p", c.uri.WalletPubkey}},
		Content:   content,
	}
	if err := ev.Sign(c.uri.Secret); err != nil {
		return fmt.Errorf("%s: sign request: %w", method, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.rt.RoundTrip(reqCtx, ev)
	if err != nil {
		if ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w after %v", method, wallet.ErrReplyTimeout, c.timeout)
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	c.logger.Debug("Wallet replied", "method", method, log.FieldDuration, time.Since(start).Milliseconds())

	plain, err := nip04.Decrypt(reply.Content, c.shared)
	if err != nil {
		return fmt.Errorf("%s: decrypt reply: %w", method, err)
	}
	var resp response
	if err := json.Unmarshal([]byte(plain), &resp); err != nil {
		return fmt.Errorf("%s: decode reply: %w", method, err)
	}
	if resp.Error != nil && resp.Error.Code != "" {
		return &wallet.RemoteError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// relayTransport carries requests over a single relay connection.
type relayTransport struct {
	relay        *nostr.Relay
	walletPubkey string
}

func dialRelay(ctx context.Context, uri URI) (roundTripper, error) {
	var lastErr error
	for _, url := range uri.Relays {
		relay, err := nostr.RelayConnect(ctx, url)
		if err == nil {
			return &relayTransport{relay: relay, walletPubkey: uri.WalletPubkey}, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("connect to relay: %w", lastErr)
}

func (t *relayTransport) RoundTrip(ctx context.Context, req nostr.Event) (*nostr.Event, error) {
	// Subscribe before publishing so a fast reply is not missed.
	sub, err := t.relay.Subscribe(ctx, nostr.Filters{{
		Kinds:   []int{KindResponse},
		Authors: []string{t.walletPubkey},
		Tags:    nostr.TagMap{"e": []string{req.ID}},
	}})
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsub()

	if err := t.relay.Publish(ctx, req); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, errors.New("relay closed the subscription")
			}
			if ev != nil && ev.Kind == KindResponse {
				return ev, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *relayTransport) Close() error {
	return t.relay.Close()
}
