package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"ON", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"off", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
		{" true ", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_BOOL_ENV", tt.value)
			}
			if got := ParseBoolEnv("TEST_BOOL_ENV", tt.defaultValue); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION_ENV", "30s")
	if got := ParseDurationEnv("TEST_DURATION_ENV", time.Minute); got != 30*time.Second {
		t.Errorf("ParseDurationEnv = %v, want 30s", got)
	}

	t.Setenv("TEST_DURATION_ENV", "not-a-duration")
	if got := ParseDurationEnv("TEST_DURATION_ENV", time.Minute); got != time.Minute {
		t.Errorf("ParseDurationEnv with invalid value = %v, want default 1m", got)
	}

	if got := ParseDurationEnv("TEST_DURATION_ENV_UNSET", 5*time.Second); got != 5*time.Second {
		t.Errorf("ParseDurationEnv with unset key = %v, want default 5s", got)
	}
}
