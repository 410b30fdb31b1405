package nwc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v4v/internal/wallet"
)

type keypair struct {
	secret string
	pubkey string
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	return keypair{secret: sk, pubkey: pk}
}

func connectionString(walletPub, secret string) string {
	return fmt.Sprintf("%s://%s?relay=%s&secret=%s", Scheme, walletPub, url.QueryEscape("wss://relay.example.com"), secret)
}

// fakeWallet plays the wallet service side of the exchange.
type fakeWallet struct {
	t      *testing.T
	keys   keypair
	handle func(method string, params json.RawMessage) (any, *responseError)
	block  bool
	seen   []nostr.Event
	closed bool
}

func (f *fakeWallet) RoundTrip(ctx context.Context, req nostr.Event) (*nostr.Event, error) {
	f.seen = append(f.seen, req)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ok, err := req.CheckSignature()
	require.NoError(f.t, err)
	require.True(f.t, ok, "request must be signed")

	shared, err := nip04.ComputeSharedSecret(req.PubKey, f.keys.secret)
	require.NoError(f.t, err)
	plain, err := nip04.Decrypt(req.Content, shared)
	require.NoError(f.t, err)

	var in struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(f.t, json.Unmarshal([]byte(plain), &in))

	result, rerr := f.handle(in.Method, in.Params)
	body := map[string]any{"result_type": in.Method}
	if rerr != nil {
		body["error"] = rerr
	} else {
		body["result"] = result
	}
	raw, _ := json.Marshal(body)
	content, err := nip04.Encrypt(string(raw), shared)
	require.NoError(f.t, err)

	reply := nostr.Event{
		PubKey:    f.keys.pubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindResponse,
		Tags:      nostr.Tags{nostr.Tag{"e", req.ID}, nostr.Tag{"p", req.PubKey}},
		Content:   content,
	}
	require.NoError(f.t, reply.Sign(f.keys.secret))
	return &reply, nil
}

func (f *fakeWallet) Close() error {
	f.closed = true
	return nil
}

func newTestOpener(t *testing.T, fw *fakeWallet, timeout time.Duration) *Opener {
	t.Helper()
	client := newKeypair(t)
	o, err := NewOpener(connectionString(fw.keys.pubkey, client.secret), timeout, nil)
	require.NoError(t, err)
	o.dial = func(context.Context, URI) (roundTripper, error) { return fw, nil }
	return o
}

func TestClient_ListTransactions(t *testing.T) {
	var gotParams listTransactionsParams
	fw := &fakeWallet{t: t, keys: newKeypair(t)}
	fw.handle = func(method string, params json.RawMessage) (any, *responseError) {
		assert.Equal(t, "list_transactions", method)
		require.NoError(t, json.Unmarshal(params, &gotParams))
		return map[string]any{"transactions": []map[string]any{
			{"type": "incoming", "payment_hash": "h1", "amount": 21000, "settled_at": 1710000000, "created_at": 1709999990, "description": "example.com/hello"},
			{"type": "incoming", "payment_hash": "h2", "amount": 1000, "settled_at": nil, "created_at": 1709990000},
		}}, nil
	}

	o := newTestOpener(t, fw, time.Second)
	c, err := o.Open(context.Background())
	require.NoError(t, err)

	txs, err := c.ListTransactions(context.Background(), wallet.ListParams{Type: wallet.TypeIncoming, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, listTransactionsParams{Type: "incoming", Limit: 10, Offset: 20}, gotParams)
	assert.Equal(t, "h1", txs[0].PaymentHash)
	assert.Equal(t, int64(21), txs[0].Sats())
	assert.Equal(t, "example.com/hello", txs[0].Description)
	assert.Nil(t, txs[1].SettledAt)
	ts, ok := txs[1].Timestamp()
	assert.True(t, ok)
	assert.Equal(t, int64(1709990000), ts)

	require.Len(t, fw.seen, 1)
	assert.Equal(t, KindRequest, fw.seen[0].Kind)
	assert.Equal(t, fw.keys.pubkey, fw.seen[0].Tags.GetFirst([]string{"p"}).Value())

	require.NoError(t, c.Close())
	assert.True(t, fw.closed)
}

func TestClient_RemoteError(t *testing.T) {
	fw := &fakeWallet{t: t, keys: newKeypair(t)}
	fw.handle = func(string, json.RawMessage) (any, *responseError) {
		return nil, &responseError{Code: "RESTRICTED", Message: "list_transactions not permitted"}
	}
	c, err := newTestOpener(t, fw, time.Second).Open(context.Background())
	require.NoError(t, err)

	_, err = c.ListTransactions(context.Background(), wallet.ListParams{Limit: 1})
	var remote *wallet.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "RESTRICTED", remote.Code)
	assert.False(t, wallet.IsTransient(err))
}

func TestClient_ReplyTimeout(t *testing.T) {
	fw := &fakeWallet{t: t, keys: newKeypair(t), block: true}
	c, err := newTestOpener(t, fw, 20*time.Millisecond).Open(context.Background())
	require.NoError(t, err)

	_, err = c.ListTransactions(context.Background(), wallet.ListParams{Limit: 1})
	require.ErrorIs(t, err, wallet.ErrReplyTimeout)
	assert.True(t, wallet.IsTransient(err))
}

func TestClient_CallerCancellationIsNotATimeout(t *testing.T) {
	fw := &fakeWallet{t: t, keys: newKeypair(t), block: true}
	c, err := newTestOpener(t, fw, time.Minute).Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = c.ListTransactions(ctx, wallet.ListParams{Limit: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, wallet.ErrReplyTimeout))
	assert.False(t, wallet.IsTransient(err))
}

func TestOpener_DialFailure(t *testing.T) {
	fw := &fakeWallet{t: t, keys: newKeypair(t)}
	o := newTestOpener(t, fw, time.Second)
	o.dial = func(context.Context, URI) (roundTripper, error) { return nil, errors.New("connection refused") }

	_, err := o.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestParseURI(t *testing.T) {
	walletKeys := newKeypair(t)
	client := newKeypair(t)

	uri, err := ParseURI(connectionString(walletKeys.pubkey, client.secret) + "&lud16=alice%40example.com")
	require.NoError(t, err)
	assert.Equal(t, walletKeys.pubkey, uri.WalletPubkey)
	assert.Equal(t, []string{"wss://relay.example.com"}, uri.Relays)
	assert.Equal(t, client.secret, uri.Secret)
	assert.Equal(t, "alice@example.com", uri.LUD16)

	tests := []struct {
		name string
		raw  string
	}{
		{"wrong scheme", "https://" + walletKeys.pubkey + "?relay=wss://r&secret=" + client.secret},
		{"short pubkey", Scheme + "://abcd?relay=wss://r&secret=" + client.secret},
		{"no relay", Scheme + "://" + walletKeys.pubkey + "?secret=" + client.secret},
		{"bad secret", Scheme + "://" + walletKeys.pubkey + "?relay=wss://r&secret=xyz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURI(tt.raw)
			assert.Error(t, err)
		})
	}
}
