package generator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/llm"
)

func answering(answer string) llm.Client {
	return llm.CompleteFunc(func(ctx context.Context, system, user string) (string, error) {
		return answer, nil
	})
}

func profile() content.Profile {
	return content.Profile{
		AccountID:      "acct-1",
		SubscribeURL:   "https://news.example.com/subscribe",
		ExampleTwitter: "short. punchy. lowercase.",
	}
}

func TestGenerate_PreCTA(t *testing.T) {
	var gotSystem, gotUser string
	client := llm.CompleteFunc(func(ctx context.Context, system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return `~!{"content_type":"precta_tweet","content_container":[{"post_type":"main_tweet","post_content":"Tomorrow: the one habit that doubled my list."}]}!~`, nil
	})

	in := Input{
		Section:    content.Section{Title: "Main Story", Content: strings.Repeat("Growth lessons. ", 130) + "[image:https://cdn.example.com/x.png]"},
		Profile:    profile(),
		Type:       content.TypePreCTATweet,
		PostNumber: 1,
	}
	require.Greater(t, len(in.Section.Content), 2000)

	u, err := New(Config{Client: client}).Generate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, u.Items, 2)
	assert.Equal(t, content.PostMain, u.Items[0].PostType)
	assert.Equal(t, content.PostReply, u.Items[1].PostType)
	assert.Contains(t, u.Items[1].Text, "https://news.example.com/subscribe")
	assert.Equal(t, 1, u.PostNumber)

	assert.Contains(t, gotSystem, "short. punchy. lowercase.")
	assert.Contains(t, gotSystem, "~!")
	assert.NotContains(t, gotUser, "[image:")
}

func TestGenerate_Thread(t *testing.T) {
	var items []string
	for i := 1; i <= 7; i++ {
		items = append(items, fmt.Sprintf(`{"post_type":"thread_tweet","post_content":"%d/ point"}`, i))
	}
	items = append(items, `{"post_type":"quote_tweet","post_content":"generated cta"}`)
	answer := `{"content_type":"thread_tweet","content_container":[` + strings.Join(items, ",") + `]}`

	u, err := New(Config{Client: answering(answer)}).Generate(context.Background(), Input{
		Section: content.Section{Title: "S", Content: "body"},
		Profile: profile(),
		Type:    content.TypeThreadTweet,
		WebURL:  "https://news.example.com/p/story",
	})
	require.NoError(t, err)
	require.Len(t, u.Items, 7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, content.PostThread, u.Items[i].PostType)
	}
	assert.Equal(t, content.PostArticleLink, u.Items[5].PostType)
	assert.Contains(t, u.Items[5].Text, "https://news.example.com/p/story")
	assert.Equal(t, content.PostQuote, u.Items[6].PostType)
	assert.NotContains(t, u.Items[6].Text, "generated cta")
}

func TestGenerate_MissingPlaceholderValueIsRemoved(t *testing.T) {
	answer := `~!{"content_type":"postcta_tweet","content_container":[{"post_type":"main_tweet","post_content":"Takeaway"}]}!~`
	u, err := New(Config{Client: answering(answer)}).Generate(context.Background(), Input{
		Section: content.Section{Title: "S", Content: "body"},
		Type:    content.TypePostCTATweet,
	})
	require.NoError(t, err)
	require.Len(t, u.Items, 2)
	assert.NotContains(t, u.Items[1].Text, "{web_url}")
	assert.True(t, strings.HasSuffix(u.Items[1].Text, "online now!"))
}

func TestGenerate_CarouselCaps(t *testing.T) {
	var slides []string
	for i := 0; i < 5; i++ {
		slides = append(slides, fmt.Sprintf(`{"heading":"Slide %d %s","subheading":"%s"}`, i, strings.Repeat("h", 60), strings.Repeat("s", 120)))
	}
	answer := `~!{"content_type":"carousel_tweet","content_container":[` + strings.Join(slides, ",") + `]}!~`

	u, err := New(Config{Client: answering(answer)}).Generate(context.Background(), Input{
		Section: content.Section{Title: "S", Content: "body"},
		Type:    content.TypeCarouselTweet,
	})
	require.NoError(t, err)
	require.Len(t, u.Items, 4)
	for i, it := range u.Items {
		assert.True(t, strings.HasPrefix(it.Heading, fmt.Sprintf("Slide %d", i)))
		assert.Len(t, it.Heading, content.HeadingMaxChars)
		assert.Len(t, it.Subheading, content.SubheadingMaxChars)
		assert.True(t, strings.HasSuffix(it.Heading, "..."))
	}
}

func TestGenerate_Failures(t *testing.T) {
	in := Input{Section: content.Section{Title: "S", Content: "body"}, Type: content.TypeLongFormPost}

	t.Run("unparseable answer", func(t *testing.T) {
		_, err := New(Config{Client: answering("Sure, here is a post")}).Generate(context.Background(), in)
		assert.ErrorIs(t, err, content.ErrStructuralParse)
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := New(Config{Client: answering(`~!{"content_type":"long_form_post","content_container":[]}!~`)}).Generate(context.Background(), in)
		assert.ErrorIs(t, err, content.ErrSchemaViolation)
	})

	t.Run("timeout", func(t *testing.T) {
		slow := llm.CompleteFunc(func(ctx context.Context, system, user string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		_, err := New(Config{Client: slow, Timeout: 10 * time.Millisecond}).Generate(context.Background(), in)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := New(Config{Client: answering("")}).Generate(context.Background(), Input{Type: "tiktok"})
		assert.ErrorIs(t, err, content.ErrConfiguration)
	})
}

func TestCandidates(t *testing.T) {
	in := Input{
		Section:      content.Section{Images: []string{"https://x/1.png"}},
		Type:         content.TypePostCTATweet,
		ThumbnailURL: "https://x/thumb.png",
	}
	assert.Equal(t, []string{"https://x/thumb.png", "https://x/1.png"}, Candidates(in))

	in.Type = content.TypePreCTATweet
	assert.Equal(t, []string{"https://x/1.png"}, Candidates(in))
}
