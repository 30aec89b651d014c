package analytics

import "testing"

func TestResponderCategory(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{-3, CategoryNoResponder},
		{0, CategoryNoResponder},
		{1, CategoryLowResponder},
		{10, CategoryLowResponder},
		{11, CategoryMediumResponder},
		{50, CategoryMediumResponder},
		{51, CategoryHighResponder},
		{1000, CategoryHighResponder},
	}
	for _, tt := range tests {
		if got := ResponderCategory(tt.n); got != tt.want {
			t.Errorf("ResponderCategory(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
