package source

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	readability "codeberg.org/readeck/go-readability/v2"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/abdulachik/recast/internal/content"
)

// minWords is the shortest readability result accepted before falling back
// to collecting paragraphs.
const minWords = 30

var (
	imageToken  = regexp.MustCompile(`RECASTIMG(\d+)X`)
	blankLines  = regexp.MustCompile(`\n{3,}`)
	skippedLink = regexp.MustCompile(`(?i)unsubscribe|manage.?preferences|/subscribe\b|mailto:|javascript:`)
)

// Parse extracts an article from an edition page. Readability picks the
// content node, images are swapped for placeholders and the rest is
// rendered as markdown. Pages readability cannot reduce fall back to their
// paragraphs.
func Parse(data []byte, pageURL string) (*Article, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: page url: %v", content.ErrConfiguration, err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", content.ErrStructuralParse, err)
	}

	meta := readMeta(doc, base)
	a := &Article{
		Title:        meta.title,
		CanonicalURL: meta.canonical,
		ThumbnailURL: meta.image,
	}
	if a.CanonicalURL == "" {
		a.CanonicalURL = base.String()
	}

	var node *html.Node
	if article, err := readability.FromReader(bytes.NewReader(data), base); err == nil && article.Node != nil {
		node = article.Node
		if t := article.Title(); t != "" {
			a.Title = t
		}
	}

	if node != nil {
		a.Links = collectLinks(node, base)
		if text, err := toMarkdown(node, base); err == nil && len(strings.Fields(text)) >= minWords {
			a.ContentText = text
		}
	}
	if a.ContentText == "" {
		a.ContentText = paragraphs(doc)
		if a.Links == nil {
			a.Links = collectLinks(doc, base)
		}
	}
	if strings.TrimSpace(a.ContentText) == "" {
		return nil, fmt.Errorf("%w: no readable text in %s", content.ErrStructuralParse, pageURL)
	}
	return a, nil
}

// toMarkdown replaces every <img> under node with a token the converter
// leaves alone, converts, then swaps the tokens for image placeholders.
func toMarkdown(node *html.Node, base *url.URL) (string, error) {
	var placeholders []string
	var imgs []*html.Node
	walk(node, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			imgs = append(imgs, n)
		}
	})
	for _, img := range imgs {
		src := resolve(base, attr(img, "src"))
		if src == "" || img.Parent == nil {
			continue
		}
		token := &html.Node{Type: html.TextNode, Data: fmt.Sprintf(" RECASTIMG%dX ", len(placeholders))}
		img.Parent.InsertBefore(token, img)
		img.Parent.RemoveChild(img)
		placeholders = append(placeholders, content.ImagePlaceholder(src, trimText(attr(img, "alt"))))
	}

	md, err := htmltomarkdown.ConvertNode(node)
	if err != nil {
		return "", err
	}
	text := imageToken.ReplaceAllStringFunc(string(md), func(tok string) string {
		var i int
		if _, err := fmt.Sscanf(tok, "RECASTIMG%dX", &i); err != nil || i >= len(placeholders) {
			return ""
		}
		return placeholders[i]
	})
	return normalize(text), nil
}

// paragraphs joins the text of every <p>, the way a bare extractor would.
func paragraphs(doc *html.Node) string {
	var parts []string
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			if t := trimText(textOf(n)); t != "" {
				parts = append(parts, t)
			}
		}
	})
	return strings.Join(parts, "\n\n")
}

func collectLinks(node *html.Node, base *url.URL) []content.Link {
	var links []content.Link
	seen := make(map[string]bool)
	walk(node, func(n *html.Node) {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			return
		}
		href := attr(n, "href")
		if href == "" || strings.HasPrefix(href, "#") || skippedLink.MatchString(href) {
			return
		}
		abs := resolve(base, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, content.Link{URL: abs, Text: trimText(textOf(n))})
	})
	return links
}

type pageMeta struct {
	title     string
	canonical string
	image     string
}

func readMeta(doc *html.Node, base *url.URL) pageMeta {
	var m pageMeta
	var titleTag string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.DataAtom {
		case atom.Title:
			if titleTag == "" {
				titleTag = trimText(textOf(n))
			}
		case atom.Link:
			if strings.EqualFold(attr(n, "rel"), "canonical") && m.canonical == "" {
				m.canonical = resolve(base, attr(n, "href"))
			}
		case atom.Meta:
			key := attr(n, "property")
			if key == "" {
				key = attr(n, "name")
			}
			val := attr(n, "content")
			switch strings.ToLower(key) {
			case "og:title":
				if m.title == "" {
					m.title = trimText(val)
				}
			case "og:url":
				if m.canonical == "" {
					m.canonical = resolve(base, val)
				}
			case "og:image", "twitter:image":
				if m.image == "" {
					m.image = resolve(base, val)
				}
			}
		}
	})
	if m.title == "" {
		m.title = titleTag
	}
	return m
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	})
	return b.String()
}

// resolve makes ref absolute against base. Only http(s) results are kept.
func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
