package timing

import (
	"strings"
	"testing"
	"time"
)

func TestEstimateSpeechDuration(t *testing.T) {
	if got := EstimateSpeechDuration("   \n\t "); got != 0 {
		t.Fatalf("whitespace duration = %v, want 0", got)
	}

	text := strings.TrimSpace(strings.Repeat("word ", 225))
	if got := EstimateSpeechDuration(text); got != time.Minute {
		t.Fatalf("225 words = %v, want 1m", got)
	}
}

func TestBaseTypingDelay_Bounds(t *testing.T) {
	if got := BaseTypingDelay("", 0); got != 26*time.Millisecond {
		t.Fatalf("empty text delay = %v, want 26ms", got)
	}

	inputs := []string{
		"a",
		"Hi!",
		"supercalifragilisticexpialidocious",
		strings.Repeat("long sentence with many words ", 40),
		"🎉🎉🎉",
	}
	for _, in := range inputs {
		got := BaseTypingDelay(in, 0)
		if got < 18*time.Millisecond || got > 70*time.Millisecond {
			t.Fatalf("BaseTypingDelay(%q) = %v, out of [18ms,70ms]", in, got)
		}
	}
}

func TestBaseTypingDelay_UsesActualDuration(t *testing.T) {
	// 100 runes over 5s: 50ms per rune * 0.68 + 10 = 44ms.
	text := strings.Repeat("x", 100)
	if got := BaseTypingDelay(text, 5*time.Second); got != 44*time.Millisecond {
		t.Fatalf("delay = %v, want 44ms", got)
	}

	// Very long audio saturates at the upper bound.
	if got := BaseTypingDelay("hi", time.Minute); got != 70*time.Millisecond {
		t.Fatalf("delay = %v, want 70ms", got)
	}
}

func TestPerCharacterDelay(t *testing.T) {
	base := 20 * time.Millisecond
	tests := []struct {
		r    rune
		want time.Duration
	}{
		{'a', 20 * time.Millisecond},
		{'\n', 46 * time.Millisecond},
		{'🚀', 50 * time.Millisecond},
		{'!', 52 * time.Millisecond},
		{',', 28 * time.Millisecond},
		{' ', 22 * time.Millisecond},
		{'-', 23600 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := PerCharacterDelay(tt.r, base); got != tt.want {
			t.Fatalf("PerCharacterDelay(%q) = %v, want %v", tt.r, got, tt.want)
		}
	}
}

func TestPerCharacterDelay_FloorsBase(t *testing.T) {
	if got := PerCharacterDelay('a', 5*time.Millisecond); got != 18*time.Millisecond {
		t.Fatalf("delay = %v, want 18ms floor", got)
	}
}

func TestIsEmoji(t *testing.T) {
	for _, r := range []rune{'😀', '🤖', '☀', '🪄'} {
		if !IsEmoji(r) {
			t.Fatalf("IsEmoji(%q) = false, want true", r)
		}
	}
	for _, r := range []rune{'a', '!', 'é'} {
		if IsEmoji(r) {
			t.Fatalf("IsEmoji(%q) = true, want false", r)
		}
	}
}
