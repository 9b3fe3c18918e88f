package sanitizer

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "us number with formatting",
			input: "(415) 555-2671",
			want:  "+14155552671",
		},
		{
			name:  "already e164",
			input: "+14155552671",
			want:  "+14155552671",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
		{
			name:  "garbage",
			input: "not a phone",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePhone(tt.input)
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
