// Package strategy plans which sections become posts and in what order.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/llm"
)

// MaxPosts is the hard cap on planned sections.
const MaxPosts = 5

// ErrNoSections is returned when nothing is left to post after exclusions.
var ErrNoSections = errors.New("no postable sections")

// excludedTitles matches section titles that are never core content. A bare
// "Ad" is a marker only when it stands alone or is bracketed or prefixed.
var excludedTitles = regexp.MustCompile(`(?i)\b(intro|introduction|welcome|outro|footer|sign[- ]?off|sponsor(ed|s)?|advertisement|promo(tion)?|partner(ed)? content)\b` +
	`|^\W*ads?\W*$|[\[(]\s*ads?\s*[\])]|^\s*ads?\s*:`)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Planned is a section selected for posting.
type Planned struct {
	PostNumber int
	Section    content.Section
}

// Strategist selects and orders sections.
type Strategist struct {
	client   llm.Client
	maxPosts int
}

// Config holds configuration for the strategist. A nil Client keeps source
// order with the main story first.
type Config struct {
	Client   llm.Client
	MaxPosts int
}

// New creates a Strategist. MaxPosts is clamped to [1, MaxPosts].
func New(cfg Config) *Strategist {
	n := cfg.MaxPosts
	if n <= 0 || n > MaxPosts {
		n = MaxPosts
	}
	return &Strategist{client: cfg.Client, maxPosts: n}
}

// Plan filters out non-core sections, merges same-topic sections, orders
// them and assigns post numbers starting at 1.
func (s *Strategist) Plan(ctx context.Context, sections []content.Section) ([]Planned, error) {
	kept := Merge(Exclude(sections))
	if len(kept) == 0 {
		return nil, ErrNoSections
	}

	ordered := mainFirst(kept)
	if s.client != nil && len(kept) > 1 {
		if prioritized, err := s.prioritize(ctx, kept); err != nil {
			slog.Warn("strategy ordering failed, keeping source order", "error", err)
		} else {
			ordered = prioritized
		}
	}

	if len(ordered) > s.maxPosts {
		ordered = ordered[:s.maxPosts]
	}

	plan := make([]Planned, len(ordered))
	for i, sec := range ordered {
		plan[i] = Planned{PostNumber: i + 1, Section: sec}
	}
	return plan, nil
}

// Exclude drops sections whose title marks them as intro, footer, sponsor or
// ad content, and sections with no body.
func Exclude(sections []content.Section) []content.Section {
	var out []content.Section
	for _, sec := range sections {
		if strings.TrimSpace(sec.Content) == "" {
			continue
		}
		if excludedTitles.MatchString(sec.Title) {
			slog.Debug("excluding section", "title", sec.Title)
			continue
		}
		out = append(out, sec)
	}
	return out
}

// Merge joins sections whose normalized titles match. The first occurrence
// keeps its position; later bodies and images are appended to it.
func Merge(sections []content.Section) []content.Section {
	index := make(map[string]int)
	var out []content.Section
	for _, sec := range sections {
		key := normalizeTitle(sec.Title)
		if i, ok := index[key]; ok && key != "" {
			merged := &out[i]
			merged.Content = merged.Content + "\n\n" + sec.Content
			merged.Images = appendUnique(merged.Images, sec.Images...)
			merged.Main = merged.Main || sec.Main
			continue
		}
		index[key] = len(out)
		sec.Images = append([]string(nil), sec.Images...)
		out = append(out, sec)
	}
	return out
}

func normalizeTitle(title string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(title), " "))
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			dst = append(dst, v)
		}
	}
	return dst
}

func mainFirst(sections []content.Section) []content.Section {
	out := make([]content.Section, 0, len(sections))
	for _, sec := range sections {
		if sec.Main {
			out = append(out, sec)
		}
	}
	for _, sec := range sections {
		if !sec.Main {
			out = append(out, sec)
		}
	}
	return out
}

type priorityAnswer struct {
	Order []int `json:"order"`
}

// prioritize asks the service for a priority order of section indices.
// Unknown and repeated indices are ignored; omitted sections keep their
// relative order after the ranked ones.
func (s *Strategist) prioritize(ctx context.Context, sections []content.Section) ([]content.Section, error) {
	var user strings.Builder
	for i, sec := range sections {
		fmt.Fprintf(&user, "[%d] %s\n%s\n\n", i, sec.Title, excerpt(sec.Content, 400))
	}

	answer, err := s.client.Complete(ctx, SystemPrompt, user.String())
	if err != nil {
		return nil, fmt.Errorf("prioritize sections: %w", err)
	}

	var parsed priorityAnswer
	if err := envelope.DecodeJSON(answer, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Order) == 0 {
		return nil, fmt.Errorf("%w: empty order", content.ErrSchemaViolation)
	}

	used := make([]bool, len(sections))
	out := make([]content.Section, 0, len(sections))
	for _, i := range parsed.Order {
		if i < 0 || i >= len(sections) || used[i] {
			continue
		}
		used[i] = true
		out = append(out, sections[i])
	}
	for i, sec := range sections {
		if !used[i] {
			out = append(out, sec)
		}
	}
	return out, nil
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// SystemPrompt asks for a priority order of numbered sections.
const SystemPrompt = `You plan social media posts from newsletter sections.
Rank the numbered sections by how well each stands alone as a social post, best first.
A main story, if there is one, comes first. Never rank introductions, sponsored content or footers.
Answer with JSON only, wrapped between ~! and !~: ~!{"order":[0,2,1]}!~`
