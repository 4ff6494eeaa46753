// Package content defines the units that flow through the repurposing
// pipeline and the closed set of content types they can take.
package content

import "strings"

// Platform identifies a social network a unit is published to.
type Platform string

const (
	PlatformTwitter  Platform = "twitter"
	PlatformLinkedIn Platform = "linkedin"
)

// PostType is the role tag of an item inside a unit's container.
type PostType string

const (
	PostMain        PostType = "main_tweet"
	PostReply       PostType = "reply_tweet"
	PostThread      PostType = "thread_tweet"
	PostArticleLink PostType = "article_link"
	PostQuote       PostType = "quote_tweet"
	PostLongForm    PostType = "long_form_post"
	PostSlide       PostType = "carousel_slide"
)

// Item is one post inside a unit. Tweet and long-form items use Text,
// carousel slides use Heading and Subheading.
type Item struct {
	PostType   PostType
	Text       string
	Heading    string
	Subheading string

	// Images and Link are assigned by the relevance filters.
	Images []string
	Link   string
}

// IsSlide reports whether the item is a carousel slide.
func (i Item) IsSlide() bool {
	return i.PostType == PostSlide
}

// PostText is the text actually published for the item: the text with the
// assigned link appended when the text does not already contain it.
func (i Item) PostText() string {
	if i.Link == "" || strings.Contains(i.Text, i.Link) {
		return i.Text
	}
	if i.Text == "" {
		return i.Link
	}
	return i.Text + "\n\n" + i.Link
}

// Unit is one platform-ready post or post group.
type Unit struct {
	PostNumber int
	Type       Type
	Items      []Item
}

// Clone returns a deep copy of the unit.
func (u Unit) Clone() Unit {
	out := Unit{
		PostNumber: u.PostNumber,
		Type:       u.Type,
		Items:      make([]Item, len(u.Items)),
	}
	for i, item := range u.Items {
		item.Images = append([]string(nil), item.Images...)
		out.Items[i] = item
	}
	return out
}

// SameShape reports whether b keeps a's content type and the count, order
// and role tags of its items.
func SameShape(a, b Unit) bool {
	if a.Type != b.Type || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i].PostType != b.Items[i].PostType {
			return false
		}
	}
	return true
}

// Section is a topically coherent, boilerplate-free excerpt of a newsletter.
type Section struct {
	Title   string
	Content string

	// Images holds the URLs of image placeholders found in Content.
	Images []string

	// Main is set by the structure analyzer's relative-length heuristic.
	Main bool
}

// Profile is the per-account configuration read during a run.
type Profile struct {
	AccountID       string
	DisplayName     string
	SubscribeURL    string
	CustomPrompt    string
	ExampleTwitter  string
	ExampleLinkedIn string
}

// StyleSample returns the account's writing sample for a platform.
func (p Profile) StyleSample(platform Platform) string {
	switch platform {
	case PlatformTwitter:
		return p.ExampleTwitter
	case PlatformLinkedIn:
		return p.ExampleLinkedIn
	}
	return ""
}

// Link is a candidate link found in the source edition.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text,omitempty"`
}
