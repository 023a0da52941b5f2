// Package timing estimates how long a reply takes to speak and turns that into typing delays.
// It is used only when real audio timing is unavailable.
package timing

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	wordsPerMinute = 225

	minBaseDelay     = 18 * time.Millisecond
	maxBaseDelay     = 70 * time.Millisecond
	defaultBaseDelay = 26 * time.Millisecond
)

// EstimateSpeechDuration returns the time needed to speak text at 225 words per minute.
func EstimateSpeechDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	minutes := float64(words) / wordsPerMinute
	return time.Duration(minutes * float64(time.Minute))
}

// BaseTypingDelay returns the per-character reveal delay for text. actual is used when
// positive, otherwise the duration is estimated from the word count.
func BaseTypingDelay(text string, actual time.Duration) time.Duration {
	duration := actual
	if duration <= 0 {
		duration = EstimateSpeechDuration(text)
	}
	if duration <= 0 {
		return defaultBaseDelay
	}

	perChar := ms(duration) / float64(max(utf8.RuneCountInString(text), 1))
	adjusted := perChar*0.68 + 10
	return fromMS(min(ms(maxBaseDelay), max(ms(minBaseDelay), adjusted)))
}

// PerCharacterDelay scales base by the pause a reader expects after r.
func PerCharacterDelay(r rune, base time.Duration) time.Duration {
	base = max(base, minBaseDelay)
	switch {
	case r == '\n':
		return scale(base, 2.3)
	case IsEmoji(r):
		return scale(base, 2.5)
	case r == '.' || r == '!' || r == '?':
		return scale(base, 2.6)
	case r == ',' || r == ';' || r == ':':
		return scale(base, 1.4)
	case r == ' ':
		return scale(base, 1.1)
	case r == '-':
		return scale(base, 1.18)
	default:
		return base
	}
}

// IsEmoji reports whether r falls in one of the pictograph ranges that get a longer pause.
func IsEmoji(r rune) bool {
	return (r >= 0x1F300 && r <= 0x1F6FF) ||
		(r >= 0x1F900 && r <= 0x1F9FF) ||
		(r >= 0x1F680 && r <= 0x1F6C5) ||
		(r >= 0x2600 && r <= 0x27BF) ||
		(r >= 0x1FA70 && r <= 0x1FAFF)
}

func scale(d time.Duration, factor float64) time.Duration {
	return fromMS(ms(d) * factor)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMS(v float64) time.Duration {
	return time.Duration(math.Round(v * float64(time.Millisecond)))
}
