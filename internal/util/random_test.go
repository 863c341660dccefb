package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantLength int
	}{
		{"outbox prefix", "ob_", 24, 27},
		{"custom prefix", "test_", 16, 21},
		{"no hex", "x_", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.prefix)
			}
			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}
			if !isValidHex(got[len(tt.prefix):]) {
				t.Errorf("GenerateRandomID() hex part of %v is not valid hex", got)
			}
		})
	}
}

func TestGenerateRandomAlphaNumeric(t *testing.T) {
	for _, length := range []int{-1, 0, 8, 64} {
		got := GenerateRandomAlphaNumeric(length)
		want := length
		if want < 0 {
			want = 0
		}
		if len(got) != want {
			t.Errorf("GenerateRandomAlphaNumeric(%d) length = %d, want %d", length, len(got), want)
		}
		if !isValidAlphaNumeric(got) {
			t.Errorf("GenerateRandomAlphaNumeric(%d) = %q is not alphanumeric", length, got)
		}
	}
}

func TestGenerateShortCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code := GenerateShortCode()
		if !IsShortCode(code) {
			t.Fatalf("GenerateShortCode() = %q does not satisfy IsShortCode", code)
		}
		if seen[code] {
			t.Errorf("GenerateShortCode() generated duplicate: %v", code)
		}
		seen[code] = true
	}
}

func TestIsShortCode(t *testing.T) {
	tests := map[string]bool{
		"aB3dE6gH":  true,
		"short":     false,
		"aB3dE6gH9": false,
		"aB3d-6gH":  false,
		"":          false,
	}
	for in, want := range tests {
		if got := IsShortCode(in); got != want {
			t.Errorf("IsShortCode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGenerateOutboxID(t *testing.T) {
	got := GenerateOutboxID()
	if !strings.HasPrefix(got, "ob_") || len(got) != 27 {
		t.Errorf("GenerateOutboxID() = %v, want ob_ + 24 hex chars", got)
	}
}

func isValidHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

func isValidAlphaNumeric(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return true
}
