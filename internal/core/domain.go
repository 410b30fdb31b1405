package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

const (
	SortBySats   SortMode = "sats"
	SortByCount  SortMode = "count"
	SortByRecent SortMode = "recent"
)

// GeneralBucket is the reserved bucket key for V4V payments without a slug.
const GeneralBucket = "_general"

type (
	Granularity string

	SortMode string

	// Transaction is an incoming wallet payment. Amount is in millisatoshis.
	Transaction struct {
		PaymentHash string `json:"payment_hash"`
		Amount      int64  `json:"amount"`
		SettledAt   *int64 `json:"settled_at,omitempty"`
		CreatedAt   *int64 `json:"created_at,omitempty"`
		Description string `json:"description,omitempty"`
		Type        string `json:"type,omitempty"`
	}

	EssayBucket struct {
		Slug        string `json:"slug"`
		Sats        int64  `json:"sats"`
		Count       int    `json:"count"`
		LastPayment int64  `json:"last_payment"`
	}

	PeriodBucket struct {
		Key   string `json:"period"`
		Sats  int64  `json:"sats"`
		Count int    `json:"count"`
	}
)

var (
	ErrInsufficientData   = errors.New("insufficient data: need at least two periods")
	ErrInvalidGranularity = errors.New("invalid granularity")
)

// Timestamp returns the effective time of the payment: settlement time when
// present, otherwise creation time. ok is false when neither is set.
func (t Transaction) Timestamp() (ts int64, ok bool) {
	if t.SettledAt != nil {
		return *t.SettledAt, true
	}
	if t.CreatedAt != nil {
		return *t.CreatedAt, true
	}
	return 0, false
}

// Sats returns the amount truncated to whole satoshis.
func (t Transaction) Sats() int64 {
	return MsatsToSats(t.Amount)
}

// IsGeneral reports whether the bucket is the reserved general bucket.
func (b EssayBucket) IsGeneral() bool {
	return b.Slug == GeneralBucket
}

// ParseGranularity accepts daily, weekly or monthly (case-insensitive).
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Daily, Weekly, Monthly:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

// ParseSortMode never fails: unrecognized modes fall back to sats.
func ParseSortMode(s string) SortMode {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SortBySats, SortByCount, SortByRecent:
		return m
	default:
		return SortBySats
	}
}

// Dedupe collapses transactions sharing a payment hash. The first occurrence wins
// and input order is preserved.
func Dedupe(txs []Transaction) []Transaction {
	seen := make(map[string]struct{}, len(txs))
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := seen[tx.PaymentHash]; ok {
			continue
		}
		seen[tx.PaymentHash] = struct{}{}
		out = append(out, tx)
	}
	return out
}

// SortByTimestampDesc orders transactions newest first. Records without a
// timestamp sort as zero, i.e. last. The sort is stable.
func SortByTimestampDesc(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, _ := txs[i].Timestamp()
		b, _ := txs[j].Timestamp()
		return a > b
	})
}

// LatestTimestamp returns the maximum effective timestamp, or 0 for an empty list.
func LatestTimestamp(txs []Transaction) int64 {
	var latest int64
	for _, tx := range txs {
		if ts, _ := tx.Timestamp(); ts > latest {
			latest = ts
		}
	}
	return latest
}

// Int64 returns a pointer to v. Handy for building fixtures and optional fields.
func Int64(v int64) *int64 {
	return &v
}
