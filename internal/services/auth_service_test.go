package services

import (
	"strings"
	"testing"
)

func TestRandomBase36Shape(t *testing.T) {
	for _, n := range []int{1, 9, 32} {
		s, err := randomBase36(n)
		if err != nil {
			t.Fatalf("randomBase36(%d): %v", n, err)
		}
		if len(s) != n {
			t.Errorf("len = %d, want %d", len(s), n)
		}
		for _, c := range s {
			if !strings.ContainsRune(userIDAlphabet, c) {
				t.Errorf("character %q outside the alphabet", c)
			}
		}
	}
}

func TestRandomBase36CoversAlphabet(t *testing.T) {
	// 5000 draws of 9 chars leave each alphabet character a vanishing
	// chance of never appearing; a missing one means skewed sampling.
	seen := map[rune]bool{}
	for i := 0; i < 5000; i++ {
		s, err := randomBase36(9)
		if err != nil {
			t.Fatalf("randomBase36: %v", err)
		}
		for _, c := range s {
			seen[c] = true
		}
	}
	for _, c := range userIDAlphabet {
		if !seen[c] {
			t.Errorf("character %q never drawn", c)
		}
	}
}
