package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/llm"
)

func fixed(answer string, err error) llm.Client {
	return llm.CompleteFunc(func(ctx context.Context, system, user string) (string, error) {
		return answer, err
	})
}

func TestAnalyze(t *testing.T) {
	ctx := context.Background()

	t.Run("single essay yields one section", func(t *testing.T) {
		a := New(Config{Client: fixed(`~!{"sections":[{"section_title":"Essay","section_content":"One long argument."}]}!~`, nil)})
		sections, err := a.Analyze(ctx, "One long argument.")
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, "Essay", sections[0].Title)
		assert.True(t, sections[0].Main)
	})

	t.Run("extracts image placeholders", func(t *testing.T) {
		answer := `~!{"sections":[{"section_title":"A","section_content":"Look [image:https://cdn.example.com/a.png alt=\"chart\"] here"},{"section_title":"B","section_content":"More"}]}!~`
		a := New(Config{Client: fixed(answer, nil)})
		sections, err := a.Analyze(ctx, "text")
		require.NoError(t, err)
		require.Len(t, sections, 2)
		assert.Equal(t, []string{"https://cdn.example.com/a.png"}, sections[0].Images)
		assert.Equal(t, "Look here", sections[0].Content)
	})

	t.Run("unparseable answer degrades", func(t *testing.T) {
		a := New(Config{Client: fixed("I could not split this.", nil)})
		sections, err := a.Analyze(ctx, "Whole newsletter")
		require.NoError(t, err)
		require.Len(t, sections, 1)
		assert.Equal(t, FallbackTitle, sections[0].Title)
		assert.Equal(t, "Whole newsletter", sections[0].Content)
		assert.True(t, IsDegraded(sections))
	})

	t.Run("service error is returned", func(t *testing.T) {
		a := New(Config{Client: fixed("", &content.ServiceError{Service: "anthropic", StatusCode: 500})})
		_, err := a.Analyze(ctx, "text")
		assert.ErrorIs(t, err, content.ErrExternalService)
	})

	t.Run("empty text", func(t *testing.T) {
		a := New(Config{Client: fixed("", errors.New("not called"))})
		_, err := a.Analyze(ctx, "   ")
		assert.ErrorIs(t, err, content.ErrConfiguration)
	})
}

func TestMarkMain(t *testing.T) {
	section := func(n int) content.Section {
		return content.Section{Content: strings.Repeat("x", n)}
	}

	tests := []struct {
		name    string
		lengths []int
		want    []bool
	}{
		{"clear main story", []int{100, 400, 120}, []bool{false, true, false}},
		{"exactly at ratio", []int{300, 200}, []bool{true, false}},
		{"no dominant section", []int{300, 250, 100}, []bool{false, false, false}},
		{"position does not matter", []int{100, 100}, []bool{false, false}},
		{"lone section", []int{10}, []bool{true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sections []content.Section
			for _, n := range tt.lengths {
				sections = append(sections, section(n))
			}
			MarkMain(sections, DefaultMainStoryRatio)
			for i, s := range sections {
				assert.Equal(t, tt.want[i], s.Main, "section %d", i)
			}
		})
	}
}
