package sanitizer

import (
	"reflect"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercase and trim",
			input: "  John Smith  ",
			want:  "john smith",
		},
		{
			name:  "strip diacritics",
			input: "José García",
			want:  "jose garcia",
		},
		{
			name:  "punctuation removed",
			input: "O'Brien, Patrick Jr.",
			want:  "o brien patrick jr",
		},
		{
			name:  "hyphenated surname",
			input: "Mary-Anne Wells",
			want:  "mary anne wells",
		},
		{
			name:  "collapse internal whitespace",
			input: "Smith,\t John",
			want:  "smith john",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only punctuation",
			input: "---",
			want:  "",
		},
		{
			name:  "idempotent",
			input: "jose garcia",
			want:  "jose garcia",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeName(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNameTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "comma ordering irrelevant",
			input: "Smith, John",
			want:  []string{"smith", "john"},
		},
		{
			name:  "empty",
			input: "   ",
			want:  nil,
		},
		{
			name:  "single token",
			input: "Cher",
			want:  []string{"cher"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NameTokens(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NameTokens(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "lowercase",
			input: "J.Smith@Example.COM",
			want:  "j.smith@example.com",
		},
		{
			name:  "trim",
			input: "  a@b.com ",
			want:  "a@b.com",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeEmail(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
