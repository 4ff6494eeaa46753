package content

import (
	"regexp"
	"strings"
)

var (
	imagePlaceholder = regexp.MustCompile(`\[image:(.*?)\]`)
	repeatedSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// ImagePlaceholder renders the text marker used for an inline image.
func ImagePlaceholder(url, alt string) string {
	if alt == "" {
		return "[image:" + url + "]"
	}
	return "[image:" + url + ` alt="` + strings.ReplaceAll(alt, `"`, "'") + `"]`
}

// ExtractImages returns the URLs of all image placeholders in text and the
// text with the placeholders removed.
func ExtractImages(text string) ([]string, string) {
	var urls []string
	seen := make(map[string]bool)
	for _, m := range imagePlaceholder.FindAllStringSubmatch(text, -1) {
		fields := strings.Fields(m[1])
		if len(fields) == 0 {
			continue
		}
		url := fields[0]
		if seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
	cleaned := imagePlaceholder.ReplaceAllString(text, "")
	return urls, tidy(cleaned)
}

// FillTemplate replaces placeholders with their values. A placeholder whose
// value is empty is removed instead of being left in the text.
func FillTemplate(text string, values map[string]string) string {
	for key, val := range values {
		text = strings.ReplaceAll(text, key, val)
	}
	for _, key := range []string{PlaceholderSubscribeURL, PlaceholderWebURL} {
		text = strings.ReplaceAll(text, key, "")
	}
	return tidy(text)
}

func tidy(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(repeatedSpaces.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
