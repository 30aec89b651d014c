package util

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimestampParse is matched by every *TimestampParseError.
var ErrTimestampParse = errors.New("timestamp parse error")

// TimestampParseError reports a timestamp that matched none of the accepted layouts.
type TimestampParseError struct {
	Value string
}

func (e *TimestampParseError) Error() string {
	return fmt.Sprintf("unrecognised timestamp %q", e.Value)
}

// Is lets errors.Is(err, ErrTimestampParse) match.
func (e *TimestampParseError) Is(target error) bool {
	return target == ErrTimestampParse
}

// Layouts tried in order. Naive layouts are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 style timestamp and normalises it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, &TimestampParseError{Value: s}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &TimestampParseError{Value: s}
}

// FormatTimestamp renders t in the canonical history format (RFC 3339, UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type latencyBucket struct {
	label  string
	lo, hi time.Duration
}

// Upper bounds are exclusive; the last bucket is open-ended (hi == 0).
var latencyBuckets = []latencyBucket{
	{"0-2 minutes", 0, 2 * time.Minute},
	{"2-5 minutes", 2 * time.Minute, 5 * time.Minute},
	{"5-10 minutes", 5 * time.Minute, 10 * time.Minute},
	{"10-20 minutes", 10 * time.Minute, 20 * time.Minute},
	{"20-30 minutes", 20 * time.Minute, 30 * time.Minute},
	{"30-60 minutes", 30 * time.Minute, time.Hour},
	{"1-2 hours", time.Hour, 2 * time.Hour},
	{"2-5 hours", 2 * time.Hour, 5 * time.Hour},
	{"5+ hours", 5 * time.Hour, 0},
}

// ResponseTimeBucket maps a response latency to its display bucket.
func ResponseTimeBucket(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	for _, b := range latencyBuckets {
		if b.hi == 0 || d < b.hi {
			return b.label
		}
	}
	return latencyBuckets[len(latencyBuckets)-1].label
}

// BucketBounds returns the [lo, hi) range of a bucket label. hi is zero for the
// open-ended bucket. ok is false for unknown labels.
func BucketBounds(label string) (lo, hi time.Duration, ok bool) {
	for _, b := range latencyBuckets {
		if b.label == label {
			return b.lo, b.hi, true
		}
	}
	return 0, 0, false
}

// BucketLabels lists every bucket label, fastest first.
func BucketLabels() []string {
	labels := make([]string, len(latencyBuckets))
	for i, b := range latencyBuckets {
		labels[i] = b.label
	}
	return labels
}
