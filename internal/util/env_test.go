package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SHANBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SHANBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("SHANBOT_TEST_DUR", "90s")
	if got := ParseDurationEnv("SHANBOT_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("ParseDurationEnv = %v, want 90s", got)
	}
	t.Setenv("SHANBOT_TEST_DUR", "soon")
	if got := ParseDurationEnv("SHANBOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv invalid = %v, want default", got)
	}
}

func TestParseListEnv(t *testing.T) {
	t.Setenv("SHANBOT_TEST_LIST", " http://a , ,http://b")
	got := ParseListEnv("SHANBOT_TEST_LIST")
	if len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Errorf("ParseListEnv = %q", got)
	}
}
