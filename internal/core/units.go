// Package core provides the payment domain: unit conversion, attribution and
// aggregation of V4V payments.
//
// This file contains the unit helpers for millisatoshis, satoshis and USD and
// the derivation of period keys from Unix timestamps.
package core

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const (
	MsatsPerSat = 1000
	SatsPerBTC  = 100_000_000
)

var satsPerBTC = decimal.NewFromInt(SatsPerBTC)

// MsatsToSats converts millisatoshis to whole satoshis, truncating.
func MsatsToSats(msat int64) int64 {
	return msat / MsatsPerSat
}

// SatsToUSD converts satoshis to USD at the given BTC price. It returns nil
// when no price is available.
//
// Examples:
//
//	SatsToUSD(100_000, &50_000) -> 50
//	SatsToUSD(n, nil)           -> nil
func SatsToUSD(sats int64, btcPrice *float64) *float64 {
	if btcPrice == nil {
		return nil
	}
	usd, _ := decimal.NewFromInt(sats).
		Div(satsPerBTC).
		Mul(decimal.NewFromFloat(*btcPrice)).
		Float64()
	return &usd
}

// FormatUSD renders a USD amount with two decimals, or "n/a" when unknown.
func FormatUSD(usd *float64) string {
	if usd == nil {
		return "n/a"
	}
	return "$" + decimal.NewFromFloat(*usd).StringFixed(2)
}

// FormatSats renders a satoshi amount with thousands separators.
func FormatSats(sats int64) string {
	return humanize.Comma(sats)
}

// PeriodKey derives the bucket key of a Unix timestamp (seconds, UTC).
// Daily keys are ISO dates, weekly keys are the ISO date of that week's Monday,
// and monthly keys are YYYY-MM. All keys are fixed width so they sort lexically.
func PeriodKey(ts int64, g Granularity) string {
	t := time.Unix(ts, 0).UTC()
	switch g {
	case Weekly:
		// Sunday is 0 in time.Weekday; shift so Monday starts the week.
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	case Monthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}
