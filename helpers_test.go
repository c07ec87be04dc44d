package arya

import "testing"

func TestMaskToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "•••••"},
		{"ghp_1234567890abcd", "ghp_…abcd"},
		{"github_pat_11AAAAAAA0zzzz", "github_…zzzz"},
		{"plainlongtoken9876", "…9876"},
	}
	for _, tt := range tests {
		if got := MaskToken(tt.in); got != tt.want {
			t.Errorf("MaskToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
