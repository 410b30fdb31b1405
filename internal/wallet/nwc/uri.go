package nwc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const Scheme = "nostr+walletconnect"

// URI is a parsed Nostr Wallet Connect connection string.
type URI struct {
	WalletPubkey string
	Relays       []string
	Secret       string
	LUD16        string
}

// ParseURI parses nostr+walletconnect://<wallet pubkey>?relay=<url>&secret=<hex>.
func ParseURI(raw string) (URI, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return URI{}, fmt.Errorf("parse connection string: %w", err)
	}
	if u.Scheme != Scheme {
		return URI{}, fmt.Errorf("unexpected scheme %q", u.Scheme)
	}

	pubkey := u.Host
	if pubkey == "" {
		pubkey = strings.TrimPrefix(u.Opaque, "//")
	}
	if !isHexKey(pubkey) {
		return URI{}, errors.New("wallet pubkey must be 64 hex characters")
	}

	q := u.Query()
	out := URI{
		WalletPubkey: strings.ToLower(pubkey),
		Secret:       strings.ToLower(q.Get("secret")),
		LUD16:        q.Get("lud16"),
	}
	for _, r := range q["relay"] {
		if r = strings.TrimSpace(r); r != "" {
			out.Relays = append(out.Relays, r)
		}
	}
	if len(out.Relays) == 0 {
		return URI{}, errors.New("connection string has no relay")
	}
	if !isHexKey(out.Secret) {
		return URI{}, errors.New("secret must be 64 hex characters")
	}
	return out, nil
}

func isHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
