package core

import (
	"sort"
	"time"
)

// AggregateByEssay groups transactions by attributed slug. Payments without a
// slug land in GeneralBucket. Buckets are sorted descending by mode; ties keep
// the order in which each bucket was first seen.
func AggregateByEssay(txs []Transaction, mode SortMode, attr *Attributor) []EssayBucket {
	index := make(map[string]int)
	var buckets []EssayBucket
	for _, tx := range txs {
		key := attr.Bucket(tx.Description)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, EssayBucket{Slug: key})
		}
		b := &buckets[i]
		b.Sats += tx.Sats()
		b.Count++
		if ts, ok := tx.Timestamp(); ok && ts > b.LastPayment {
			b.LastPayment = ts
		}
	}

	var less func(a, b EssayBucket) bool
	switch ParseSortMode(string(mode)) {
	case SortByCount:
		less = func(a, b EssayBucket) bool { return a.Count > b.Count }
	case SortByRecent:
		less = func(a, b EssayBucket) bool { return a.LastPayment > b.LastPayment }
	default:
		less = func(a, b EssayBucket) bool { return a.Sats > b.Sats }
	}
	sort.SliceStable(buckets, func(i, j int) bool { return less(buckets[i], buckets[j]) })

	if buckets == nil {
		return []EssayBucket{}
	}
	return buckets
}

// AggregateByPeriod groups transactions into calendar periods, most recent
// period first. Transactions without any timestamp are skipped.
func AggregateByPeriod(txs []Transaction, g Granularity) []PeriodBucket {
	index := make(map[string]int)
	buckets := []PeriodBucket{}
	for _, tx := range txs {
		ts, ok := tx.Timestamp()
		if !ok {
			continue
		}
		key := PeriodKey(ts, g)
		i, seen := index[key]
		if !seen {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, PeriodBucket{Key: key})
		}
		buckets[i].Sats += tx.Sats()
		buckets[i].Count++
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Key > buckets[j].Key })
	return buckets
}

// FilterSince keeps transactions whose effective timestamp is at or after since.
// A zero since returns the input unchanged.
func FilterSince(txs []Transaction, since time.Time) []Transaction {
	if since.IsZero() {
		return txs
	}
	cutoff := since.Unix()
	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if ts, ok := tx.Timestamp(); ok && ts >= cutoff {
			out = append(out, tx)
		}
	}
	return out
}

// TopN returns at most n buckets. n <= 0 means no limit.
func TopN(buckets []EssayBucket, n int) []EssayBucket {
	if n <= 0 || len(buckets) <= n {
		return buckets
	}
	return buckets[:n]
}
