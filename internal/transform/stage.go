package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/envelope"
	"github.com/abdulachik/recast/internal/llm"
)

// Stage names.
const (
	StageEditor        = "editor"
	StagePersonalizer  = "personalizer"
	StageHookWriter    = "hook_writer"
	StageAIPolisher    = "ai_polisher"
	StageFinalReviewer = "final_reviewer"
)

// llmStage is a stage that sends the encoded unit with a brief and decodes
// the rewritten unit from the answer.
type llmStage struct {
	name   string
	client llm.Client
	brief  func(ctx context.Context, u content.Unit, in Input) string
}

func (s *llmStage) Name() string { return s.name }

func (s *llmStage) Apply(ctx context.Context, u content.Unit, in Input) (content.Unit, error) {
	answer, err := s.ask(ctx, u, in)
	if err != nil {
		return u, err
	}
	return envelope.Recover(u, answer)
}

func (s *llmStage) ask(ctx context.Context, u content.Unit, in Input) (string, error) {
	encoded, err := envelope.Encode(u)
	if err != nil {
		return "", err
	}
	system := s.brief(ctx, u, in) + "\n\n" + envelope.Instructions(u.Type)
	user := fmt.Sprintf("Content type: %s\nPlatform: %s\n\n%s", u.Type, u.Type.Platform(), encoded)

	answer, err := s.client.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.name, err)
	}
	return answer, nil
}

// NewEditor tightens the copy and sharpens the hook within the type's rules.
func NewEditor(client llm.Client) Stage {
	return &llmStage{
		name:   StageEditor,
		client: client,
		brief: func(_ context.Context, u content.Unit, in Input) string {
			return editorPrompt + "\n\nFormat rules:\n" + u.Type.Rules().Instruction
		},
	}
}

// StyleSource looks up archived posts similar to a query.
type StyleSource interface {
	Sample(ctx context.Context, accountID string, platform content.Platform, query string) (string, error)
}

// NewPersonalizer rewrites the unit in the author's voice. The style sample
// comes from the profile, then the archive, then the newsletter itself.
func NewPersonalizer(client llm.Client, archive StyleSource) Stage {
	return &llmStage{
		name:   StagePersonalizer,
		client: client,
		brief: func(ctx context.Context, u content.Unit, in Input) string {
			return personalizerPrompt + "\n\nWriting sample:\n" + styleSample(ctx, archive, u, in)
		},
	}
}

const maxNewsletterSample = 2000

func styleSample(ctx context.Context, archive StyleSource, u content.Unit, in Input) string {
	platform := u.Type.Platform()
	if sample := strings.TrimSpace(in.Profile.StyleSample(platform)); sample != "" {
		return sample
	}
	if archive != nil {
		sample, err := archive.Sample(ctx, in.Profile.AccountID, platform, in.Section.Content)
		if err == nil && strings.TrimSpace(sample) != "" {
			return sample
		}
	}
	r := []rune(in.Newsletter)
	if len(r) > maxNewsletterSample {
		r = r[:maxNewsletterSample]
	}
	return string(r)
}

type hookWriter struct {
	llmStage
}

// Skips reports true for carousel types, which have no hook item.
func (h *hookWriter) Skips(t content.Type) bool {
	return t.IsCarousel() || !t.Rules().Hooks
}

// NewHookWriter rewrites the opening line of the first item.
func NewHookWriter(client llm.Client) Stage {
	return &hookWriter{llmStage{
		name:   StageHookWriter,
		client: client,
		brief: func(_ context.Context, _ content.Unit, _ Input) string {
			return hookPrompt
		},
	}}
}

// NewAIPolisher removes phrasing that reads as machine-written.
func NewAIPolisher(client llm.Client) Stage {
	return &llmStage{
		name:   StageAIPolisher,
		client: client,
		brief: func(_ context.Context, _ content.Unit, _ Input) string {
			return polisherPrompt
		},
	}
}

var approvals = regexp.MustCompile(`(?i)\b(looks good|no changes( needed| required)?|approved|ready to post|lgtm)\b`)

type finalReviewer struct {
	llmStage
}

// Apply treats an answer without an envelope that approves the unit as a
// no-op rather than a parse failure.
func (r *finalReviewer) Apply(ctx context.Context, u content.Unit, in Input) (content.Unit, error) {
	answer, err := r.ask(ctx, u, in)
	if err != nil {
		return u, err
	}
	if _, ok := envelope.Extract(answer); !ok && IsApproval(answer) {
		return u, nil
	}
	return envelope.Recover(u, answer)
}

// IsApproval reports whether a free-text answer says no changes are needed.
func IsApproval(answer string) bool {
	return approvals.MatchString(answer)
}

// NewFinalReviewer does a last consistency pass over the unit.
func NewFinalReviewer(client llm.Client) Stage {
	return &finalReviewer{llmStage{
		name:   StageFinalReviewer,
		client: client,
		brief: func(_ context.Context, u content.Unit, _ Input) string {
			return reviewerPrompt + "\n\nFormat rules:\n" + u.Type.Rules().Instruction
		},
	}}
}

// Stages builds the standard stage order. The final review is optional.
func Stages(client llm.Client, archive StyleSource, finalReview bool) []Stage {
	stages := []Stage{
		NewEditor(client),
		NewPersonalizer(client, archive),
		NewHookWriter(client),
		NewAIPolisher(client),
	}
	if finalReview {
		stages = append(stages, NewFinalReviewer(client))
	}
	return stages
}
