// Package envelope implements the delimiter-wrapped JSON contract exchanged
// with the generative service by every pipeline stage.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abdulachik/recast/internal/content"
)

// Sentinels wrapping the JSON interior of an answer.
const (
	Open  = "~!"
	Close = "!~"
)

type item struct {
	PostType    *string  `json:"post_type,omitempty"`
	PostContent *string  `json:"post_content,omitempty"`
	Heading     *string  `json:"heading,omitempty"`
	Subheading  *string  `json:"subheading,omitempty"`
	Images      []string `json:"images,omitempty"`
	Link        string   `json:"link,omitempty"`
}

type document struct {
	PostNumber       int    `json:"post_number,omitempty"`
	ContentType      string `json:"content_type"`
	ContentContainer []item `json:"content_container"`
}

// Encode renders a unit in the canonical delimited form.
func Encode(u content.Unit) (string, error) {
	doc := document{
		PostNumber:       u.PostNumber,
		ContentType:      string(u.Type),
		ContentContainer: make([]item, 0, len(u.Items)),
	}
	for _, it := range u.Items {
		doc.ContentContainer = append(doc.ContentContainer, encodeItem(it))
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return Open + string(body) + Close, nil
}

func encodeItem(it content.Item) item {
	out := item{
		Images: it.Images,
		Link:   it.Link,
	}
	if it.IsSlide() {
		heading := it.Heading
		out.Heading = &heading
		if it.Subheading != "" {
			sub := it.Subheading
			out.Subheading = &sub
		}
		return out
	}
	pt := string(it.PostType)
	text := it.Text
	out.PostType = &pt
	out.PostContent = &text
	return out
}

// Decode parses a delimited answer into a unit of the expected type.
// Missing delimiters or invalid JSON yield content.ErrStructuralParse,
// items that do not fit the type's schema yield content.ErrSchemaViolation.
func Decode(answer string, expect content.Type) (content.Unit, error) {
	interior, ok := Extract(answer)
	if !ok {
		return content.Unit{}, fmt.Errorf("%w: missing %s...%s delimiters", content.ErrStructuralParse, Open, Close)
	}
	return decodeInterior(interior, expect, false)
}

// DecodeLenient is Decode for answers that may omit the delimiters, wrap the
// JSON in a code fence, or return a bare container list.
func DecodeLenient(answer string, expect content.Type) (content.Unit, error) {
	interior, err := ExtractJSON(answer)
	if err != nil {
		return content.Unit{}, err
	}
	return decodeInterior(interior, expect, true)
}

// Recover decodes an answer produced from prev. Any failure returns prev
// unchanged alongside the error. The post number always carries over.
func Recover(prev content.Unit, answer string) (content.Unit, error) {
	u, err := Decode(answer, prev.Type)
	if err != nil {
		return prev.Clone(), err
	}
	u.PostNumber = prev.PostNumber
	return u, nil
}

// Extract returns the text between the first Open and the last Close.
func Extract(answer string) (string, bool) {
	start := strings.Index(answer, Open)
	if start == -1 {
		return "", false
	}
	rest := answer[start+len(Open):]
	end := strings.LastIndex(rest, Close)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func decodeInterior(interior string, expect content.Type, lenient bool) (content.Unit, error) {
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(interior), &raw); err != nil {
		return content.Unit{}, fmt.Errorf("%w: %v", content.ErrStructuralParse, err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if lenient && strings.HasPrefix(trimmed, "[") {
		trimmed = fmt.Sprintf(`{"content_type":%q,"content_container":%s}`, expect, trimmed)
	}
	if !strings.HasPrefix(trimmed, "{") {
		return content.Unit{}, fmt.Errorf("%w: envelope is not a JSON object", content.ErrStructuralParse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return content.Unit{}, fmt.Errorf("%w: %v", content.ErrStructuralParse, err)
	}

	var ctName string
	if rawCT, ok := fields["content_type"]; ok {
		if err := json.Unmarshal(rawCT, &ctName); err != nil {
			return content.Unit{}, fmt.Errorf("%w: content_type is not a string", content.ErrStructuralParse)
		}
	} else if lenient && expect != "" {
		ctName = string(expect)
	} else {
		return content.Unit{}, fmt.Errorf("%w: missing content_type", content.ErrStructuralParse)
	}

	rawContainer, ok := fields["content_container"]
	if !ok {
		return content.Unit{}, fmt.Errorf("%w: missing content_container", content.ErrStructuralParse)
	}
	var rawItems []json.RawMessage
	if err := json.Unmarshal(rawContainer, &rawItems); err != nil {
		return content.Unit{}, fmt.Errorf("%w: content_container is not a list", content.ErrStructuralParse)
	}

	ct := content.Type(ctName)
	if !ct.Valid() {
		return content.Unit{}, fmt.Errorf("%w: unknown content_type %q", content.ErrSchemaViolation, ctName)
	}
	if expect != "" && ct != expect {
		return content.Unit{}, fmt.Errorf("%w: content_type %q, want %q", content.ErrSchemaViolation, ct, expect)
	}

	u := content.Unit{Type: ct, Items: make([]content.Item, 0, len(rawItems))}
	if rawPN, ok := fields["post_number"]; ok {
		_ = json.Unmarshal(rawPN, &u.PostNumber)
	}

	rules := ct.Rules()
	for i, rawItem := range rawItems {
		it, err := decodeItem(rawItem, rules)
		if err != nil {
			return content.Unit{}, fmt.Errorf("item %d: %w", i, err)
		}
		u.Items = append(u.Items, it)
	}
	return u, nil
}
