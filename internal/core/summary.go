package core

import "math"

// Summary is a compact overview of a set of V4V payments. USD fields are nil
// whenever no BTC price was available.
type Summary struct {
	Count        int      `json:"count"`
	TotalSats    int64    `json:"total_sats"`
	AvgSats      int64    `json:"avg_sats"`
	EssayCount   int      `json:"essay_count"`
	EssaySats    int64    `json:"essay_sats"`
	GeneralCount int      `json:"general_count"`
	GeneralSats  int64    `json:"general_sats"`
	BTCPrice     *float64 `json:"btc_price"`
	TotalUSD     *float64 `json:"total_usd"`
	EssayUSD     *float64 `json:"essay_usd"`
	GeneralUSD   *float64 `json:"general_usd"`
}

// BuildSummary totals the transactions and splits them into attributed and
// general payments. It is a pure function of its inputs.
func BuildSummary(txs []Transaction, btcPrice *float64, attr *Attributor) Summary {
	s := Summary{Count: len(txs), BTCPrice: btcPrice}
	for _, tx := range txs {
		sats := tx.Sats()
		s.TotalSats += sats
		if _, ok := attr.Slug(tx.Description); ok {
			s.EssaySats += sats
			s.EssayCount++
		} else {
			s.GeneralSats += sats
			s.GeneralCount++
		}
	}
	if s.Count > 0 {
		s.AvgSats = int64(math.Round(float64(s.TotalSats) / float64(s.Count)))
	}
	s.TotalUSD = SatsToUSD(s.TotalSats, btcPrice)
	s.EssayUSD = SatsToUSD(s.EssaySats, btcPrice)
	s.GeneralUSD = SatsToUSD(s.GeneralSats, btcPrice)
	return s
}
