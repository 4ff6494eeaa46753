// Package validator enforces per-platform character and count budgets on
// finished units, repairing violations by truncation.
package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// URLWeight is the length every URL counts for in a tweet, whatever its
	// literal length.
	URLWeight = 23

	// Ellipsis marks truncated text.
	Ellipsis = "..."
)

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`)

// segment is a run of text that is either a URL or plain characters.
type segment struct {
	text  string
	isURL bool
}

func segments(s string) []segment {
	var out []segment
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(s, -1) {
		if loc[0] > last {
			out = append(out, segment{text: s[last:loc[0]]})
		}
		out = append(out, segment{text: s[loc[0]:loc[1]], isURL: true})
		last = loc[1]
	}
	if last < len(s) {
		out = append(out, segment{text: s[last:]})
	}
	return out
}

// TweetLength counts s the way the platform does: every URL weighs
// URLWeight, everything else counts one per rune.
func TweetLength(s string) int {
	n := 0
	for _, seg := range segments(s) {
		if seg.isURL {
			n += URLWeight
			continue
		}
		n += utf8.RuneCountInString(seg.text)
	}
	return n
}

// HasURL reports whether s contains anything counted as a URL.
func HasURL(s string) bool {
	return urlPattern.MatchString(s)
}

// FitsTweet reports whether s fits in limit counted by TweetLength.
func FitsTweet(s string, limit int) bool {
	return TweetLength(s) <= limit
}

// TruncateTweet shortens s so TweetLength(result) <= limit. The cut keeps
// limit-3 weighted characters, prefers a word boundary, and appends "...".
// URLs are never split: a URL that does not fit is dropped whole.
func TruncateTweet(s string, limit int) string {
	if TweetLength(s) <= limit {
		return s
	}
	available := limit - len(Ellipsis)
	if available <= 0 {
		return Ellipsis[:max(limit, 0)]
	}

	var b strings.Builder
	used := 0
	for _, seg := range segments(s) {
		if seg.isURL {
			if used+URLWeight > available {
				break
			}
			b.WriteString(seg.text)
			used += URLWeight
			continue
		}
		stop := false
		for _, r := range seg.text {
			if used+1 > available {
				stop = true
				break
			}
			b.WriteRune(r)
			used++
		}
		if stop {
			break
		}
	}

	truncated := b.String()
	return fitEllipsis(cutAtWord(truncated, utf8.RuneCountInString(truncated)), limit)
}

// fitEllipsis appends "..." to cut, dropping trailing words while the
// ellipsis turns a fragment like "www" into something counted as a URL.
func fitEllipsis(cut string, limit int) string {
	for {
		out := cut + Ellipsis
		if TweetLength(out) <= limit || cut == "" {
			return out
		}
		if i := strings.LastIndex(cut, " "); i > 0 {
			cut = strings.TrimRight(cut[:i], " .,;:!?")
			continue
		}
		_, size := utf8.DecodeLastRuneInString(cut)
		cut = cut[:len(cut)-size]
	}
}

// TruncateText shortens plain text to limit runes on a word boundary
// where possible, appending "...".
func TruncateText(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	available := limit - len(Ellipsis)
	if available <= 0 {
		return Ellipsis[:max(limit, 0)]
	}
	runes := []rune(s)
	return cutAtWord(string(runes[:available]), available) + Ellipsis
}

// TruncateHard cuts s to limit runes with "..." and no word boundary search.
// Carousel headings and subheadings use it so the cut position is exact.
func TruncateHard(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-len(Ellipsis)]) + Ellipsis
}

// cutAtWord trims back to the last space when that space is not too far
// back, then strips trailing punctuation so the ellipsis reads cleanly.
func cutAtWord(truncated string, available int) string {
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > 0 && utf8.RuneCountInString(truncated[:lastSpace]) > available/2 {
		truncated = truncated[:lastSpace]
	}
	return strings.TrimRight(truncated, " .,;:!?")
}
