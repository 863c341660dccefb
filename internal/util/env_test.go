package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	const key = "LOOPPIPE_TEST_BOOL"
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
		t.Setenv(key, tt.value)
		if got := ParseBoolEnv(key, tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}
