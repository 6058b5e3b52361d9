package handler

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateBody(t *testing.T) {
	short := "привет"
	if got := truncateBody(short, pushBodyLimit); got != short {
		t.Errorf("short body changed: %q", got)
	}

	// Кириллица: два байта на руну, обрезка не должна резать руну пополам.
	long := strings.Repeat("ж", 200)
	got := truncateBody(long, pushBodyLimit)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated body is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != pushBodyLimit {
		t.Errorf("rune count = %d, want %d", n, pushBodyLimit)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("no ellipsis: %q", got)
	}
}
