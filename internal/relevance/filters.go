// Package relevance assigns candidate images and links to the items of a
// unit, never proposing anything outside the candidate sets.
package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/llm"
	"github.com/abdulachik/recast/internal/validator"
)

// ImageFilter picks images for each item from a candidate set.
type ImageFilter struct {
	client llm.Client
}

// NewImageFilter creates an ImageFilter.
func NewImageFilter(client llm.Client) *ImageFilter {
	return &ImageFilter{client: client}
}

// Apply returns u with images assigned. Any failure to obtain a usable
// answer leaves every item without images.
func (f *ImageFilter) Apply(ctx context.Context, u content.Unit, candidates []string) content.Unit {
	out := clearImages(u)
	if len(candidates) == 0 {
		return out
	}

	answer, err := ask(ctx, f.client, imagePrompt, out, "Available images:", candidates)
	if err != nil {
		slog.Warn("image relevance failed", "type", u.Type, "error", err)
		return out
	}
	picked, err := envelope.DecodeLenient(answer, u.Type)
	if err != nil || len(picked.Items) != len(out.Items) {
		slog.Warn("image relevance answer unusable", "type", u.Type, "error", err)
		return out
	}

	allowed := toSet(candidates)
	for i := range out.Items {
		seen := make(map[string]bool)
		for _, img := range picked.Items[i].Images {
			img = strings.TrimSpace(img)
			if !allowed[img] || seen[img] {
				continue
			}
			seen[img] = true
			out.Items[i].Images = append(out.Items[i].Images, img)
		}
	}
	return validator.CapImages(out)
}

func clearImages(u content.Unit) content.Unit {
	out := u.Clone()
	for i := range out.Items {
		out.Items[i].Images = nil
	}
	return out
}

// LinkFilter picks at most one link for each item from the edition's links.
type LinkFilter struct {
	client  llm.Client
	fetcher *Fetcher
}

// NewLinkFilter creates a LinkFilter. A nil fetcher sends links without
// metadata.
func NewLinkFilter(client llm.Client, fetcher *Fetcher) *LinkFilter {
	return &LinkFilter{client: client, fetcher: fetcher}
}

// candidateLink is a link as shown to the service.
type candidateLink struct {
	content.Link
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Apply returns u with links assigned. Links not in the candidate set are
// dropped, items whose text already holds a URL get none, and a failed
// answer leaves every item without a link.
func (f *LinkFilter) Apply(ctx context.Context, u content.Unit, links []content.Link) content.Unit {
	out := u.Clone()
	for i := range out.Items {
		out.Items[i].Link = ""
	}
	if len(links) == 0 {
		return out
	}

	enriched := f.enrich(ctx, links)
	answer, err := ask(ctx, f.client, linkPrompt, out, "Available links with metadata:", enriched)
	if err != nil {
		slog.Warn("link relevance failed", "type", u.Type, "error", err)
		return out
	}
	picked, err := envelope.DecodeLenient(answer, u.Type)
	if err != nil || len(picked.Items) != len(out.Items) {
		slog.Warn("link relevance answer unusable", "type", u.Type, "error", err)
		return out
	}

	allowed := make(map[string]bool, len(links))
	for _, l := range links {
		allowed[l.URL] = true
	}
	rules := u.Type.Rules()
	for i := range out.Items {
		link := strings.TrimSpace(picked.Items[i].Link)
		if link == "" {
			continue
		}
		if it := out.Items[i]; rules.IsTail(it.PostType) || validator.HasURL(it.Text) {
			slog.Debug("item already carries a link", "index", i, "post_type", it.PostType)
			continue
		}
		if allowed[link] {
			out.Items[i].Link = link
		} else if link != "" {
			slog.Debug("rejecting link outside candidate set", "link", link)
		}
	}
	return out
}

func (f *LinkFilter) enrich(ctx context.Context, links []content.Link) []candidateLink {
	out := make([]candidateLink, len(links))
	for i, l := range links {
		out[i] = candidateLink{Link: l}
	}
	if f.fetcher == nil {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range out {
		g.Go(func() error {
			md, err := f.fetcher.Fetch(gctx, out[i].URL)
			if err != nil {
				slog.Debug("link metadata unavailable", "url", out[i].URL, "error", err)
				return nil
			}
			out[i].Metadata = &md
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func ask(ctx context.Context, client llm.Client, system string, u content.Unit, label string, candidates any) (string, error) {
	encoded, err := envelope.Encode(u)
	if err != nil {
		return "", err
	}
	list, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	system = system + "\n\n" + envelope.Instructions(u.Type)
	user := fmt.Sprintf("Content to evaluate:\n%s\n\n%s\n%s", encoded, label, list)
	answer, err := client.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("relevance: %w", err)
	}
	return answer, nil
}

func toSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		out[v] = true
	}
	return out
}

const imagePrompt = `You decide which images make social posts better.
Be selective: skip logos, branding and generic images that do not match the text. No image is a fine answer.
Assign at most 4 images to a post, using an "images" list of URLs on the item. Use at most one gif across all posts.
Only use URLs from the list of available images.
Return the full content structure with the images assigned and the text unchanged.`

const linkPrompt = `You decide which links add value to social posts.
A link belongs on a post only if it gives meaningful context: sources and references usually do, promotional or tangential links do not.
Assign at most one link to a post, using a "link" field with the URL. Only use URLs from the list of available links.
Return the full content structure with the links assigned and the text unchanged.`
