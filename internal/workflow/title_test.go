package workflow

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"drops fillers and title-cases", "write a song about rainy tokyo nights", "Rainy Tokyo Nights"},
		{"empty input", "   ", "Untitled Song"},
		{"all fillers", "make a song about the", "Untitled Song"},
		{"punctuation only", "!!! ... ???", "Untitled Song"},
		{"keeps alphanumeric tokens", "lofi2025 beats", "Lofi2025 Beats"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.in); got != tc.want {
				t.Fatalf("DeriveTitle(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDeriveTitle_CapsWordsAndLength(t *testing.T) {
	long := strings.Repeat("melancholy ", 20)
	got := DeriveTitle(long)
	if n := len(strings.Fields(got)); n > titleMaxWords {
		t.Fatalf("words = %d, want <= %d", n, titleMaxWords)
	}
	if utf8.RuneCountInString(got) > titleMaxRunes {
		t.Fatalf("runes = %d, want <= %d", utf8.RuneCountInString(got), titleMaxRunes)
	}
}
