// Package analyzer splits cleaned newsletter text into topical sections.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/llm"
)

// DefaultMainStoryRatio is how many times longer than each sibling a section
// must be to count as the main story. It is a heuristic, not a guarantee.
const DefaultMainStoryRatio = 1.5

// FallbackTitle names the single section produced when the answer cannot be
// parsed.
const FallbackTitle = "main"

// Analyzer partitions newsletter text with one generative call.
type Analyzer struct {
	client         llm.Client
	mainStoryRatio float64
}

// Config holds configuration for the analyzer.
type Config struct {
	Client         llm.Client
	MainStoryRatio float64
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	ratio := cfg.MainStoryRatio
	if ratio <= 1 {
		ratio = DefaultMainStoryRatio
	}
	return &Analyzer{client: cfg.Client, mainStoryRatio: ratio}
}

type analysis struct {
	Sections []struct {
		Title   string `json:"section_title"`
		Content string `json:"section_content"`
	} `json:"sections"`
}

// Analyze returns the ordered, non-overlapping sections of text. An answer
// that cannot be parsed degrades to one section holding the whole text. A
// failed call is returned as an error.
func (a *Analyzer) Analyze(ctx context.Context, text string) ([]content.Section, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty newsletter text", content.ErrConfiguration)
	}

	answer, err := a.client.Complete(ctx, SystemPrompt, text)
	if err != nil {
		return nil, fmt.Errorf("analyze structure: %w", err)
	}

	var parsed analysis
	if err := envelope.DecodeJSON(answer, &parsed); err != nil {
		slog.Warn("structure answer unparseable, using single section", "error", err)
		return a.finish([]content.Section{{Title: FallbackTitle, Content: text}}), nil
	}

	var sections []content.Section
	for _, s := range parsed.Sections {
		body := strings.TrimSpace(s.Content)
		if body == "" {
			continue
		}
		sections = append(sections, content.Section{
			Title:   strings.TrimSpace(s.Title),
			Content: body,
		})
	}
	if len(sections) == 0 {
		slog.Warn("structure answer had no sections, using single section")
		sections = []content.Section{{Title: FallbackTitle, Content: text}}
	}

	return a.finish(sections), nil
}

// finish extracts image placeholders and flags the main story.
func (a *Analyzer) finish(sections []content.Section) []content.Section {
	for i := range sections {
		images, cleaned := content.ExtractImages(sections[i].Content)
		sections[i].Images = images
		sections[i].Content = cleaned
	}
	MarkMain(sections, a.mainStoryRatio)
	return sections
}

// MarkMain flags at most one section as the main story: the one whose length
// is at least ratio times that of every other section. Position never
// matters, and a lone section is always main.
func MarkMain(sections []content.Section, ratio float64) {
	for i := range sections {
		sections[i].Main = false
	}
	switch len(sections) {
	case 0:
		return
	case 1:
		sections[0].Main = true
		return
	}

	longest, runnerUp := -1, 0
	lengths := make([]int, len(sections))
	for i, s := range sections {
		lengths[i] = utf8.RuneCountInString(s.Content)
		if longest == -1 || lengths[i] > lengths[longest] {
			longest = i
		}
	}
	for i, n := range lengths {
		if i != longest && n > runnerUp {
			runnerUp = n
		}
	}
	if float64(lengths[longest]) >= ratio*float64(runnerUp) {
		sections[longest].Main = true
	}
}

// IsDegraded reports whether sections is the single fallback section.
func IsDegraded(sections []content.Section) bool {
	return len(sections) == 1 && sections[0].Title == FallbackTitle
}
