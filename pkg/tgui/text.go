package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageLen is Telegram's text message length limit.
const MaxMessageLen = 4096

// MaxCaptionLen is Telegram's media caption length limit.
const MaxCaptionLen = 1024

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	cut := 0
	for i, r := range s {
		count++
		if count == n {
			cut = i + utf8.RuneLen(r)
			continue
		}
		if count > n {
			if cut <= 0 {
				cut = i
			}
			return s[:cut] + "…"
		}
	}
	return s
}

// Split breaks text into chunks no longer than limit bytes, preferring
// line boundaries, then word boundaries. Oversized single words are cut hard.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLen
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if cur.Len()+len(line)+1 > limit {
			flush()
			if len(line) > limit {
				for _, w := range strings.Fields(line) {
					if cur.Len()+len(w)+1 > limit {
						flush()
					}
					for len(w) > limit {
						chunks = append(chunks, w[:limit])
						w = w[limit:]
					}
					if cur.Len() > 0 {
						cur.WriteByte(' ')
					}
					cur.WriteString(w)
				}
				continue
			}
			cur.WriteString(line)
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}
