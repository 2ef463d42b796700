package tgui

import (
	"strings"
	"testing"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"héllo", 3, "hél…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestSplitShortText(t *testing.T) {
	t.Parallel()
	got := Split("short", 100)
	if len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected chunks: %#v", got)
	}
}

func TestSplitRespectsLimit(t *testing.T) {
	t.Parallel()
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, strings.Repeat("word ", 20))
	}
	text := strings.Join(lines, "\n")
	for _, c := range Split(text, 200) {
		if len(c) > 200 {
			t.Fatalf("chunk exceeds limit: %d bytes", len(c))
		}
		if strings.TrimSpace(c) == "" {
			t.Fatal("empty chunk produced")
		}
	}
}

func TestSplitHardCutsLongWord(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 500)
	chunks := Split(text, 100)
	total := 0
	for _, c := range chunks {
		if len(c) > 100 {
			t.Fatalf("chunk exceeds limit: %d", len(c))
		}
		total += len(c)
	}
	if total != 500 {
		t.Fatalf("lost bytes: total=%d", total)
	}
}

func TestParseDataRoundTrip(t *testing.T) {
	t.Parallel()
	d := Data("sched", "hour", "7")
	scope, action, payload := ParseData(d)
	if scope != "sched" || action != "hour" || payload != "7" {
		t.Fatalf("unexpected parse: %q %q %q", scope, action, payload)
	}
	scope, action, payload = ParseData(Data("sched", "confirm", ""))
	if scope != "sched" || action != "confirm" || payload != "" {
		t.Fatalf("unexpected parse: %q %q %q", scope, action, payload)
	}
}
