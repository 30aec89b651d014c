package analytics

import (
	"sort"
	"time"

	"github.com/BTreeMap/Shanbot/internal/util"
)

// ReplyLatencies returns how long the user took to answer each AI message,
// measured from an AI entry to the first user entry after it.
func ReplyLatencies(history []HistoryEntry) []time.Duration {
	var (
		out       []time.Duration
		lastAI    time.Time
		awaitUser bool
	)
	for _, h := range history {
		ts, err := util.ParseTimestamp(h.Timestamp)
		if err != nil {
			continue
		}
		if h.Type == MessageTypeAI {
			lastAI = ts
			awaitUser = true
			continue
		}
		if awaitUser {
			if lat := ts.Sub(lastAI); lat >= 0 {
				out = append(out, lat)
			}
			awaitUser = false
		}
	}
	return out
}

// MedianLatency returns the median of latencies; ok is false when there are none.
func MedianLatency(latencies []time.Duration) (time.Duration, bool) {
	if len(latencies) == 0 {
		return 0, false
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

// TypicalResponseBucket buckets the median reply latency of a conversation.
// It returns "" when the user has never answered the bot.
func TypicalResponseBucket(history []HistoryEntry) string {
	median, ok := MedianLatency(ReplyLatencies(history))
	if !ok {
		return ""
	}
	return util.ResponseTimeBucket(median)
}
