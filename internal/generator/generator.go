// Package generator produces the initial unit for a section and content type.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/llm"
	"github.com/abdulachik/recast/internal/validator"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 90 * time.Second

// Input is everything needed to generate one unit.
type Input struct {
	Section    content.Section
	Profile    content.Profile
	Type       content.Type
	PostNumber int

	// WebURL is the published article URL substituted for {web_url}.
	WebURL string

	// ThumbnailURL is the edition thumbnail, offered as an image candidate
	// for types that attach it.
	ThumbnailURL string
}

// Generator turns sections into units with one generative call each.
type Generator struct {
	client  llm.Client
	timeout time.Duration
}

// Config holds configuration for the generator.
type Config struct {
	Client  llm.Client
	Timeout time.Duration
}

// New creates a Generator.
func New(cfg Config) *Generator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{client: cfg.Client, timeout: timeout}
}

// Generate produces the unit for in. Any failure, including a timeout or an
// answer with no usable body, is returned: generation errors are fatal for
// the unit.
func (g *Generator) Generate(ctx context.Context, in Input) (content.Unit, error) {
	if !in.Type.Valid() {
		return content.Unit{}, fmt.Errorf("%w: unknown content type %q", content.ErrConfiguration, in.Type)
	}
	rules := in.Type.Rules()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, body := content.ExtractImages(in.Section.Content)
	answer, err := g.client.Complete(ctx, systemPrompt(rules, in.Profile), userPrompt(rules, in.Section.Title, body))
	if err != nil {
		return content.Unit{}, fmt.Errorf("generate %s: %w", in.Type, err)
	}

	generated, err := envelope.DecodeLenient(answer, in.Type)
	if err != nil {
		return content.Unit{}, fmt.Errorf("generate %s: %w", in.Type, err)
	}

	u := content.Unit{PostNumber: in.PostNumber, Type: in.Type}
	u.Items = bodyItems(generated.Items, rules)
	if len(u.Items) == 0 {
		return content.Unit{}, fmt.Errorf("generate %s: %w: no %s items in answer", in.Type, content.ErrSchemaViolation, rules.BodyPostType)
	}

	values := map[string]string{
		content.PlaceholderSubscribeURL: in.Profile.SubscribeURL,
		content.PlaceholderWebURL:       in.WebURL,
	}
	for i := range u.Items {
		u.Items[i].Text = content.FillTemplate(u.Items[i].Text, values)
	}
	for _, tail := range rules.Tail {
		text := content.FillTemplate(tail.Template, values)
		if text == "" {
			continue
		}
		u.Items = append(u.Items, content.Item{PostType: tail.PostType, Text: text})
	}

	if rules.Kind == content.KindSlide {
		u = validator.RepairCarousel(u)
		if rules.MinSlides > 0 && len(u.Items) < rules.MinSlides {
			slog.Warn("carousel below minimum slides", "type", in.Type, "slides", len(u.Items), "min", rules.MinSlides)
		}
	}

	return u, nil
}

// Candidates returns the image URLs a unit generated from in may use.
func Candidates(in Input) []string {
	out := append([]string(nil), in.Section.Images...)
	if in.Type.Rules().AttachThumbnail && in.ThumbnailURL != "" {
		seen := false
		for _, u := range out {
			if u == in.ThumbnailURL {
				seen = true
				break
			}
		}
		if !seen {
			out = append([]string{in.ThumbnailURL}, out...)
		}
	}
	return out
}

// bodyItems keeps the generated items of the body role, in order, up to the
// type's cap. Tail roles are never taken from the answer.
func bodyItems(items []content.Item, rules content.Rules) []content.Item {
	limit := rules.MaxBodyItems
	if rules.Kind == content.KindSlide {
		limit = rules.MaxSlides
	}

	var out []content.Item
	for _, it := range items {
		if it.PostType != rules.BodyPostType {
			continue
		}
		if !it.IsSlide() && strings.TrimSpace(it.Text) == "" {
			continue
		}
		it.Images = nil
		it.Link = ""
		out = append(out, it)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
