package content

import (
	"fmt"
	"strings"
)

// Type is the closed set of content types the pipeline can render.
type Type string

const (
	TypePreCTATweet   Type = "precta_tweet"
	TypePostCTATweet  Type = "postcta_tweet"
	TypeThreadTweet   Type = "thread_tweet"
	TypeLongFormTweet Type = "long_form_tweet"
	TypeLongFormPost  Type = "long_form_post"
	TypeCarouselTweet Type = "carousel_tweet"
	TypeCarouselPost  Type = "carousel_post"
)

// ItemKind selects the item schema used by a content type.
type ItemKind int

const (
	KindTweet ItemKind = iota
	KindLongForm
	KindSlide
)

// Per-platform budgets.
const (
	TweetMaxChars         = 280
	LongFormTweetMaxChars = 25000
	LinkedInMaxChars      = 3000
	HeadingMaxChars       = 50
	SubheadingMaxChars    = 100
	MaxImagesPerItem      = 4
	MaxGIFsPerUnit        = 1
)

// Template placeholders substituted by the generator.
const (
	PlaceholderSubscribeURL = "{subscribe_url}"
	PlaceholderWebURL       = "{web_url}"
)

// TailItem is a fixed call-to-action item appended after the generated body.
type TailItem struct {
	PostType PostType
	Template string
}

// Rules is the static instruction and constraint record for a content type.
type Rules struct {
	Type     Type
	Platform Platform
	Kind     ItemKind

	// Instruction is the generation brief handed to the generative service.
	Instruction string

	// BodyPostType is the role tag given to generated items.
	BodyPostType PostType
	MaxBodyItems int

	// MaxChars is the character budget of a single text item.
	MaxChars int

	MinSlides int
	MaxSlides int

	Tail  []TailItem
	Hooks bool

	// AttachThumbnail offers the edition thumbnail as an image candidate.
	AttachThumbnail bool
}

var rules = map[Type]Rules{
	TypePreCTATweet: {
		Type:     TypePreCTATweet,
		Platform: PlatformTwitter,
		Kind:     KindTweet,
		Instruction: "Write one teaser tweet announcing this newsletter story before it is sent. " +
			"Tease the most surprising idea without giving it away. No hashtags, no links.",
		BodyPostType: PostMain,
		MaxBodyItems: 1,
		MaxChars:     TweetMaxChars,
		Tail: []TailItem{
			{PostType: PostReply, Template: "If this sounds interesting, subscribe for free to get it in your inbox! " + PlaceholderSubscribeURL},
		},
		Hooks: true,
	},
	TypePostCTATweet: {
		Type:     TypePostCTATweet,
		Platform: PlatformTwitter,
		Kind:     KindTweet,
		Instruction: "Write one tweet summarizing the key takeaway of this published newsletter story. " +
			"Make it stand alone. No hashtags, no links.",
		BodyPostType: PostMain,
		MaxBodyItems: 1,
		MaxChars:     TweetMaxChars,
		Tail: []TailItem{
			{PostType: PostReply, Template: "If this sounds interesting, check out the full article online now! " + PlaceholderWebURL},
		},
		Hooks:           true,
		AttachThumbnail: true,
	},
	TypeThreadTweet: {
		Type:     TypeThreadTweet,
		Platform: PlatformTwitter,
		Kind:     KindTweet,
		Instruction: "Turn this newsletter story into a thread of up to 5 tweets. " +
			"The first tweet is the hook, each following tweet carries one idea. No hashtags, no links.",
		BodyPostType: PostThread,
		MaxBodyItems: 5,
		MaxChars:     TweetMaxChars,
		Tail: []TailItem{
			{PostType: PostArticleLink, Template: "If you want to go even deeper, check out the full article! " + PlaceholderWebURL},
			{PostType: PostQuote, Template: "If you found value in this thread, please give it a like and share!"},
		},
		Hooks: true,
	},
	TypeLongFormTweet: {
		Type:     TypeLongFormTweet,
		Platform: PlatformTwitter,
		Kind:     KindTweet,
		Instruction: "Write one long-form tweet of about 850 characters covering this newsletter story. " +
			"Use short paragraphs separated by blank lines.",
		BodyPostType: PostMain,
		MaxBodyItems: 1,
		MaxChars:     LongFormTweetMaxChars,
		Hooks:        true,
	},
	TypeLongFormPost: {
		Type:     TypeLongFormPost,
		Platform: PlatformLinkedIn,
		Kind:     KindLongForm,
		Instruction: "Write one LinkedIn post covering this newsletter story for a professional audience. " +
			"Open with a strong first line, use short paragraphs, end with a question.",
		BodyPostType: PostLongForm,
		MaxBodyItems: 1,
		MaxChars:     LinkedInMaxChars,
		Hooks:        true,
	},
	TypeCarouselTweet: {
		Type:     TypeCarouselTweet,
		Platform: PlatformTwitter,
		Kind:     KindSlide,
		Instruction: "Turn this newsletter story into a 4 slide image carousel. " +
			"Each slide has a heading of at most 50 characters and a subheading of at most 100 characters.",
		BodyPostType: PostSlide,
		MaxSlides:    4,
	},
	TypeCarouselPost: {
		Type:     TypeCarouselPost,
		Platform: PlatformLinkedIn,
		Kind:     KindSlide,
		Instruction: "Turn this newsletter story into a LinkedIn carousel of 6 to 8 slides. " +
			"Each slide has a heading of at most 50 characters and a subheading of at most 100 characters.",
		BodyPostType: PostSlide,
		MinSlides:    6,
		MaxSlides:    8,
	},
}

// AllTypes lists every content type in a stable order.
func AllTypes() []Type {
	return []Type{
		TypePreCTATweet,
		TypePostCTATweet,
		TypeThreadTweet,
		TypeLongFormTweet,
		TypeLongFormPost,
		TypeCarouselTweet,
		TypeCarouselPost,
	}
}

// ParseType converts a name into a Type. Unknown names are configuration
// errors so they are rejected before a run starts.
func ParseType(name string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(name)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown content type %q", ErrConfiguration, name)
	}
	return t, nil
}

// ParseTypes parses a list of names, dropping duplicates.
func ParseTypes(names []string) ([]Type, error) {
	seen := make(map[Type]bool)
	var out []Type
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, err := ParseType(name)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// Valid reports whether t is one of the known content types.
func (t Type) Valid() bool {
	_, ok := rules[t]
	return ok
}

// Rules returns the constraint record for t.
func (t Type) Rules() Rules {
	return rules[t]
}

// Platform returns the platform t is published to.
func (t Type) Platform() Platform {
	return rules[t].Platform
}

// IsCarousel reports whether t renders as image slides.
func (t Type) IsCarousel() bool {
	return rules[t].Kind == KindSlide
}

// Allows reports whether a post type may appear in a unit of this type.
func (r Rules) Allows(pt PostType) bool {
	if pt == r.BodyPostType {
		return true
	}
	for _, tail := range r.Tail {
		if tail.PostType == pt {
			return true
		}
	}
	return false
}

// IsTail reports whether pt is one of the fixed call-to-action roles of
// this type. Tail items come from the rule table and are never rewritten.
func (r Rules) IsTail(pt PostType) bool {
	for _, tail := range r.Tail {
		if tail.PostType == pt && pt != r.BodyPostType {
			return true
		}
	}
	return false
}

// MaxItems is the largest container a unit of this type may hold.
func (r Rules) MaxItems() int {
	if r.Kind == KindSlide {
		return r.MaxSlides
	}
	return r.MaxBodyItems + len(r.Tail)
}
