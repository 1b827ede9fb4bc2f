package pgx

import "testing"

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "long_hair", want: `long\_hair`},
		{name: "percent", in: "100%", want: `100\%`},
		{name: "trailing backslash", in: `face\`, want: `face\\`},
		{name: "no wildcards", in: "cat", want: "cat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeLike(tt.in); got != tt.want {
				t.Fatalf("escapeLike(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
