package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/abdulachik/recast/internal/content"
)

// decodeItem validates one container item against the schema of its
// content type's item kind.
func decodeItem(raw json.RawMessage, rules content.Rules) (content.Item, error) {
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return content.Item{}, fmt.Errorf("%w: item is not an object", content.ErrSchemaViolation)
	}

	switch rules.Kind {
	case content.KindSlide:
		return decodeSlide(it)
	default:
		return decodeText(it, rules)
	}
}

// decodeText handles tweet and long-form items: post_type and post_content
// are both required.
func decodeText(it item, rules content.Rules) (content.Item, error) {
	if it.PostType == nil {
		return content.Item{}, fmt.Errorf("%w: missing post_type", content.ErrSchemaViolation)
	}
	if it.PostContent == nil {
		return content.Item{}, fmt.Errorf("%w: missing post_content", content.ErrSchemaViolation)
	}
	pt := content.PostType(*it.PostType)
	if !rules.Allows(pt) {
		return content.Item{}, fmt.Errorf("%w: post_type %q not allowed in %s", content.ErrSchemaViolation, pt, rules.Type)
	}
	return content.Item{
		PostType: pt,
		Text:     *it.PostContent,
		Images:   it.Images,
		Link:     it.Link,
	}, nil
}

// decodeSlide handles carousel items: heading is required, subheading is
// optional.
func decodeSlide(it item) (content.Item, error) {
	if it.Heading == nil {
		return content.Item{}, fmt.Errorf("%w: missing heading", content.ErrSchemaViolation)
	}
	out := content.Item{
		PostType: content.PostSlide,
		Heading:  *it.Heading,
		Images:   it.Images,
		Link:     it.Link,
	}
	if it.Subheading != nil {
		out.Subheading = *it.Subheading
	}
	return out, nil
}

// Instructions describes the expected answer format for a content type.
func Instructions(t content.Type) string {
	rules := t.Rules()
	var example string
	switch rules.Kind {
	case content.KindSlide:
		example = fmt.Sprintf(`{"content_type":%q,"content_container":[{"heading":"...","subheading":"..."}]}`, t)
	default:
		example = fmt.Sprintf(`{"content_type":%q,"content_container":[{"post_type":%q,"post_content":"..."}]}`, t, rules.BodyPostType)
	}
	return "Respond only with JSON wrapped between " + Open + " and " + Close + ", exactly in this shape:\n" +
		Open + example + Close + "\n" +
		"Keep every item, its order and its post_type exactly as given. Do not add text outside the delimiters."
}
