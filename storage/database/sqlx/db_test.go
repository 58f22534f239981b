package sqlxrepos

import "testing"

func Test_likePattern(t *testing.T) {
	tests := []struct {
		term string
		want string
	}{
		{term: "jo kid", want: "%jo kid%"},
		{term: "100%", want: `%100\%%`},
		{term: "roll_42", want: `%roll\_42%`},
		{term: `C:\tmp`, want: `%C:\\tmp%`},
		{term: "%_", want: `%\%\_%`},
		{term: "", want: "%%"},
	}
	for _, tt := range tests {
		if got := likePattern(tt.term); got != tt.want {
			t.Errorf("likePattern(%q) = %q; want %q", tt.term, got, tt.want)
		}
	}
}
