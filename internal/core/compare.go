package core

// Comparison holds the change between the two most recent periods.
// Percent fields are nil when the previous value is zero.
type Comparison struct {
	Current    PeriodBucket `json:"current"`
	Previous   PeriodBucket `json:"previous"`
	SatsDelta  int64        `json:"sats_delta"`
	CountDelta int          `json:"count_delta"`
	SatsPct    *float64     `json:"sats_pct"`
	CountPct   *float64     `json:"count_pct"`
}

// ComparePeriods compares the first two buckets of a most-recent-first list as
// returned by AggregateByPeriod. It returns ErrInsufficientData when fewer than
// two periods are present.
func ComparePeriods(buckets []PeriodBucket) (Comparison, error) {
	if len(buckets) < 2 {
		return Comparison{}, ErrInsufficientData
	}
	cur, prev := buckets[0], buckets[1]
	return Comparison{
		Current:    cur,
		Previous:   prev,
		SatsDelta:  cur.Sats - prev.Sats,
		CountDelta: cur.Count - prev.Count,
		SatsPct:    percentChange(float64(cur.Sats), float64(prev.Sats)),
		CountPct:   percentChange(float64(cur.Count), float64(prev.Count)),
	}, nil
}

func percentChange(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	pct := (current - previous) / previous * 100
	return &pct
}
