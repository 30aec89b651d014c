package scheduler

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/BTreeMap/Shanbot/internal/analytics"
	"github.com/BTreeMap/Shanbot/internal/util"
)

// Default delay bounds.
const (
	DefaultMinDelay = 2 * time.Minute
	DefaultMaxDelay = 4 * time.Hour
	DefaultBucket   = "2-5 minutes"
)

// DelayPolicy bounds the reply delay. Rand returns a value in [0, 1) and picks
// where inside the typical bucket the delay lands.
type DelayPolicy struct {
	Min           time.Duration
	Max           time.Duration
	DefaultBucket string
	Rand          func() float64
}

// DefaultDelayPolicy returns the production policy.
func DefaultDelayPolicy() DelayPolicy {
	return DelayPolicy{
		Min:           DefaultMinDelay,
		Max:           DefaultMaxDelay,
		DefaultBucket: DefaultBucket,
		Rand:          rand.Float64,
	}
}

func (p DelayPolicy) withDefaults() DelayPolicy {
	if p.Min <= 0 {
		p.Min = DefaultMinDelay
	}
	if p.Max <= 0 {
		p.Max = DefaultMaxDelay
	}
	if p.Max < p.Min {
		p.Max = p.Min
	}
	if _, _, ok := util.BucketBounds(p.DefaultBucket); !ok {
		p.DefaultBucket = DefaultBucket
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	return p
}

// ComputeDelay picks a send delay inside the subscriber's typical reply bucket,
// using only history up to incoming, clamped to [Min, Max].
func ComputeDelay(conv analytics.Conversation, incoming time.Time, policy DelayPolicy) time.Duration {
	p := policy.withDefaults()

	bucket := analytics.TypicalResponseBucket(historyUntil(conv.Metrics.ConversationHistory, incoming))
	if bucket == "" {
		bucket = p.DefaultBucket
	}
	lo, hi, _ := util.BucketBounds(bucket)
	if hi == 0 {
		hi = p.Max
	}
	if hi < lo {
		hi = lo
	}

	r := p.Rand()
	if r < 0 || r >= 1 {
		r = 0
	}
	d := lo + time.Duration(r*float64(hi-lo))
	return clamp(d, p.Min, p.Max)
}

// DelayMinutes rounds a delay up to whole minutes.
func DelayMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func historyUntil(history []analytics.HistoryEntry, cutoff time.Time) []analytics.HistoryEntry {
	if cutoff.IsZero() {
		return history
	}
	out := make([]analytics.HistoryEntry, 0, len(history))
	for _, h := range history {
		ts, err := util.ParseTimestamp(h.Timestamp)
		if err != nil || ts.After(cutoff) {
			continue
		}
		out = append(out, h)
	}
	return out
}
