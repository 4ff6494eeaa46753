package envelope

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/content"
)

func sampleUnits() []content.Unit {
	return []content.Unit{
		{
			PostNumber: 1,
			Type:       content.TypePreCTATweet,
			Items: []content.Item{
				{PostType: content.PostMain, Text: "Big idea incoming.", Images: []string{"https://cdn.example.com/a.png"}},
				{PostType: content.PostReply, Text: "Subscribe https://news.example.com"},
			},
		},
		{
			PostNumber: 2,
			Type:       content.TypeThreadTweet,
			Items: []content.Item{
				{PostType: content.PostThread, Text: "1/ Hook", Link: "https://example.com/source"},
				{PostType: content.PostThread, Text: "2/ \"quoted\" {braces} and ~ tildes"},
				{PostType: content.PostArticleLink, Text: "Go deeper"},
				{PostType: content.PostQuote, Text: "Like and share"},
			},
		},
		{
			PostNumber: 3,
			Type:       content.TypeCarouselTweet,
			Items: []content.Item{
				{PostType: content.PostSlide, Heading: "Slide one", Subheading: "Detail"},
				{PostType: content.PostSlide, Heading: "Slide two"},
			},
		},
		{
			PostNumber: 4,
			Type:       content.TypeLongFormPost,
			Items: []content.Item{
				{PostType: content.PostLongForm, Text: "Line one\n\nLine two"},
			},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	for _, u := range sampleUnits() {
		t.Run(string(u.Type), func(t *testing.T) {
			encoded, err := Encode(u)
			require.NoError(t, err)
			assert.True(t, len(encoded) > len(Open)+len(Close))
			assert.Equal(t, Open, encoded[:len(Open)])

			decoded, err := Decode(encoded, u.Type)
			require.NoError(t, err)
			if diff := cmp.Diff(u, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_StructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"missing delimiters", `{"content_type":"precta_tweet","content_container":[]}`},
		{"missing close", `~!{"content_type":"precta_tweet","content_container":[]}`},
		{"invalid json", `~!{"content_type": "precta_tweet", "content_container": [}!~`},
		{"not an object", `~!"just a string"!~`},
		{"missing container", `~!{"content_type":"precta_tweet"}!~`},
		{"container not a list", `~!{"content_type":"precta_tweet","content_container":"text"}!~`},
		{"missing content type", `~!{"content_container":[]}!~`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.answer, content.TypePreCTATweet)
			assert.ErrorIs(t, err, content.ErrStructuralParse)
		})
	}
}

func TestDecode_SchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		expect content.Type
		answer string
	}{
		{
			"tweet missing post_content",
			content.TypePreCTATweet,
			`~!{"content_type":"precta_tweet","content_container":[{"post_type":"main_tweet"}]}!~`,
		},
		{
			"tweet missing post_type",
			content.TypePreCTATweet,
			`~!{"content_type":"precta_tweet","content_container":[{"post_content":"hi"}]}!~`,
		},
		{
			"post type not allowed",
			content.TypePreCTATweet,
			`~!{"content_type":"precta_tweet","content_container":[{"post_type":"quote_tweet","post_content":"hi"}]}!~`,
		},
		{
			"slide missing heading",
			content.TypeCarouselTweet,
			`~!{"content_type":"carousel_tweet","content_container":[{"subheading":"only"}]}!~`,
		},
		{
			"content type mismatch",
			content.TypePreCTATweet,
			`~!{"content_type":"thread_tweet","content_container":[]}!~`,
		},
		{
			"unknown content type",
			"",
			`~!{"content_type":"tiktok","content_container":[]}!~`,
		},
		{
			"item not an object",
			content.TypePreCTATweet,
			`~!{"content_type":"precta_tweet","content_container":["text"]}!~`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.answer, tt.expect)
			assert.ErrorIs(t, err, content.ErrSchemaViolation)
		})
	}
}

func TestDecode_IgnoresSurroundingText(t *testing.T) {
	answer := "Here you go:\n~!{\"content_type\":\"carousel_post\",\"content_container\":[{\"heading\":\"H\"}]}!~\nEnjoy!"

	u, err := Decode(answer, content.TypeCarouselPost)
	require.NoError(t, err)
	require.Len(t, u.Items, 1)
	assert.Equal(t, content.PostSlide, u.Items[0].PostType)
	assert.Equal(t, "H", u.Items[0].Heading)
	assert.Empty(t, u.Items[0].Subheading)
}

func TestRecover(t *testing.T) {
	prev := sampleUnits()[0]

	t.Run("returns prior input on failure", func(t *testing.T) {
		got, err := Recover(prev, "Sorry, I can't help with that.")
		assert.ErrorIs(t, err, content.ErrStructuralParse)
		assert.Equal(t, prev, got)
	})

	t.Run("keeps post number", func(t *testing.T) {
		answer := `~!{"content_type":"precta_tweet","content_container":[{"post_type":"main_tweet","post_content":"new"},{"post_type":"reply_tweet","post_content":"r"}]}!~`
		got, err := Recover(prev, answer)
		require.NoError(t, err)
		assert.Equal(t, prev.PostNumber, got.PostNumber)
		assert.Equal(t, "new", got.Items[0].Text)
	})
}

func TestDecodeLenient(t *testing.T) {
	t.Run("fenced block", func(t *testing.T) {
		answer := "```json\n{\"content_type\":\"long_form_post\",\"content_container\":[{\"post_type\":\"long_form_post\",\"post_content\":\"x\"}]}\n```"
		u, err := DecodeLenient(answer, content.TypeLongFormPost)
		require.NoError(t, err)
		assert.Equal(t, "x", u.Items[0].Text)
	})

	t.Run("bare container list", func(t *testing.T) {
		answer := `[{"heading":"A"},{"heading":"B","subheading":"b"}]`
		u, err := DecodeLenient(answer, content.TypeCarouselTweet)
		require.NoError(t, err)
		assert.Equal(t, content.TypeCarouselTweet, u.Type)
		assert.Len(t, u.Items, 2)
	})

	t.Run("defaults content type", func(t *testing.T) {
		answer := `{"content_container":[{"post_type":"main_tweet","post_content":"x"}]}`
		u, err := DecodeLenient(answer, content.TypeLongFormTweet)
		require.NoError(t, err)
		assert.Equal(t, content.TypeLongFormTweet, u.Type)
	})

	t.Run("plain prose", func(t *testing.T) {
		_, err := DecodeLenient("no json here", content.TypeLongFormTweet)
		assert.ErrorIs(t, err, content.ErrStructuralParse)
	})
}

func TestDecodeJSON(t *testing.T) {
	type sections struct {
		Sections []struct {
			Title string `json:"section_title"`
		} `json:"sections"`
	}

	t.Run("preamble and trailing text", func(t *testing.T) {
		var got sections
		err := DecodeJSON(`Sure! {"sections":[{"section_title":"a {b}"}]} Hope this helps`, &got)
		require.NoError(t, err)
		require.Len(t, got.Sections, 1)
		assert.Equal(t, "a {b}", got.Sections[0].Title)
	})

	t.Run("malformed", func(t *testing.T) {
		var got sections
		err := DecodeJSON(`{"sections":[{"section_title":"unclosed`, &got)
		assert.ErrorIs(t, err, content.ErrStructuralParse)
	})
}

func TestInstructions(t *testing.T) {
	assert.Contains(t, Instructions(content.TypeCarouselPost), `"heading"`)
	assert.Contains(t, Instructions(content.TypeThreadTweet), `"post_type":"thread_tweet"`)
	assert.Contains(t, Instructions(content.TypeThreadTweet), Open)
}
