package util

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339 zulu", "2024-03-05T14:30:00Z", want},
		{"rfc3339 offset", "2024-03-05T16:30:00+02:00", want},
		{"naive iso", "2024-03-05T14:30:00", want},
		{"naive iso fractional", "2024-03-05T14:30:00.000000", want},
		{"space separated", "2024-03-05 14:30:00", want},
		{"surrounding whitespace", "  2024-03-05T14:30:00Z ", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error: %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ParseTimestamp(%q) location = %v, want UTC", tt.input, got.Location())
			}
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, input := range []string{"", "yesterday", "05/03/2024 14:30", "2024-13-45T99:00:00Z"} {
		_, err := ParseTimestamp(input)
		if err == nil {
			t.Errorf("ParseTimestamp(%q) expected error", input)
			continue
		}
		if !errors.Is(err, ErrTimestampParse) {
			t.Errorf("ParseTimestamp(%q) error %v does not match ErrTimestampParse", input, err)
		}
		var tpe *TimestampParseError
		if !errors.As(err, &tpe) || tpe.Value != input {
			t.Errorf("ParseTimestamp(%q) error should carry the raw value, got %v", input, err)
		}
	}
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	orig := time.Date(2024, 3, 5, 14, 30, 15, 123456789, time.FixedZone("x", 3600))
	got, err := ParseTimestamp(FormatTimestamp(orig))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if !got.Equal(orig) {
		t.Errorf("round trip = %v, want %v", got, orig)
	}
}

func TestResponseTimeBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Minute, "0-2 minutes"},
		{0, "0-2 minutes"},
		{119 * time.Second, "0-2 minutes"},
		{2 * time.Minute, "2-5 minutes"},
		{7 * time.Minute, "5-10 minutes"},
		{15 * time.Minute, "10-20 minutes"},
		{25 * time.Minute, "20-30 minutes"},
		{45 * time.Minute, "30-60 minutes"},
		{90 * time.Minute, "1-2 hours"},
		{3 * time.Hour, "2-5 hours"},
		{5 * time.Hour, "5+ hours"},
		{72 * time.Hour, "5+ hours"},
	}
	for _, tt := range tests {
		if got := ResponseTimeBucket(tt.d); got != tt.want {
			t.Errorf("ResponseTimeBucket(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestBucketBounds(t *testing.T) {
	lo, hi, ok := BucketBounds("10-20 minutes")
	if !ok || lo != 10*time.Minute || hi != 20*time.Minute {
		t.Errorf("BucketBounds(10-20 minutes) = %v, %v, %v", lo, hi, ok)
	}
	lo, hi, ok = BucketBounds("5+ hours")
	if !ok || lo != 5*time.Hour || hi != 0 {
		t.Errorf("BucketBounds(5+ hours) = %v, %v, %v", lo, hi, ok)
	}
	if _, _, ok := BucketBounds("forever"); ok {
		t.Error("BucketBounds should reject unknown labels")
	}
	if got := len(BucketLabels()); got != 9 {
		t.Errorf("BucketLabels() returned %d labels, want 9", got)
	}
}
