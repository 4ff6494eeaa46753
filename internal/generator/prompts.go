package generator

import (
	"strings"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
)

const baseSystemPrompt = `You are a social media manager who repurposes newsletter stories into posts.
Write in the author's own voice using the ideas and arguments of the newsletter, never your own.
Avoid anything that reads as AI-written: stacked emojis, hype, cliches and generic phrases.
Never add links or hashtags; they are handled elsewhere.`

func systemPrompt(rules content.Rules, profile content.Profile) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	if profile.CustomPrompt != "" {
		b.WriteString("\n\nAuthor instructions:\n")
		b.WriteString(profile.CustomPrompt)
	}
	if sample := profile.StyleSample(rules.Platform); sample != "" {
		b.WriteString("\n\nExample of the author's posts:\n")
		b.WriteString(sample)
	}
	b.WriteString("\n\n")
	b.WriteString(envelope.Instructions(rules.Type))
	return b.String()
}

func userPrompt(rules content.Rules, title, body string) string {
	var b strings.Builder
	b.WriteString(rules.Instruction)
	b.WriteString("\n\nSection: ")
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(body)
	return b.String()
}
