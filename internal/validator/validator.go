package validator

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/abdulachik/recast/internal/content"
)

// Violation records one budget that was exceeded and repaired.
type Violation struct {
	ItemIndex int
	Field     string
	Length    int
	Limit     int
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s: item %d %s length %d exceeds %d",
		content.ErrConstraintViolation, v.ItemIndex, v.Field, v.Length, v.Limit)
}

// Unwrap lets errors.Is match content.ErrConstraintViolation.
func (v Violation) Unwrap() error {
	return content.ErrConstraintViolation
}

// Report lists the violations repaired by Validate.
type Report struct {
	Violations []Violation
}

// OK reports whether the unit needed no repair.
func (r Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) add(index int, field string, length, limit int) {
	r.Violations = append(r.Violations, Violation{ItemIndex: index, Field: field, Length: length, Limit: limit})
}

// Validate enforces the budgets of the unit's content type and returns the
// repaired copy. It is idempotent: a valid unit comes back unchanged.
func Validate(u content.Unit) (content.Unit, Report) {
	out := u.Clone()
	var report Report
	rules := u.Type.Rules()

	if rules.Kind == content.KindSlide {
		repairSlides(&out, rules, &report)
	} else {
		for i := range out.Items {
			repairText(&out.Items[i], i, rules, &report)
		}
	}

	repairImages(&out, &report)
	return out, report
}

// RepairCarousel applies only the slide count and heading budgets. The
// transform chain runs it at every stage boundary.
func RepairCarousel(u content.Unit) content.Unit {
	if !u.Type.IsCarousel() {
		return u
	}
	out := u.Clone()
	var report Report
	repairSlides(&out, u.Type.Rules(), &report)
	return out
}

func repairSlides(u *content.Unit, rules content.Rules, report *Report) {
	if rules.MaxSlides > 0 && len(u.Items) > rules.MaxSlides {
		report.add(rules.MaxSlides, "slides", len(u.Items), rules.MaxSlides)
		u.Items = u.Items[:rules.MaxSlides]
	}
	for i := range u.Items {
		it := &u.Items[i]
		if n := utf8.RuneCountInString(it.Heading); n > content.HeadingMaxChars {
			report.add(i, "heading", n, content.HeadingMaxChars)
			it.Heading = TruncateHard(it.Heading, content.HeadingMaxChars)
		}
		if n := utf8.RuneCountInString(it.Subheading); n > content.SubheadingMaxChars {
			report.add(i, "subheading", n, content.SubheadingMaxChars)
			it.Subheading = TruncateHard(it.Subheading, content.SubheadingMaxChars)
		}
	}
}

func repairText(it *content.Item, index int, rules content.Rules, report *Report) {
	limit := rules.MaxChars
	if limit <= 0 {
		return
	}
	// The appended link shares the budget with the text.
	reserve := 0
	if it.PostText() != it.Text && it.Text != "" {
		reserve = len("\n\n")
		if rules.Platform == content.PlatformTwitter {
			reserve += TweetLength(it.Link)
		} else {
			reserve += utf8.RuneCountInString(it.Link)
		}
	}

	if rules.Platform == content.PlatformTwitter {
		if n := TweetLength(it.PostText()); n > limit {
			report.add(index, "text", n, limit)
			it.Text = TruncateTweet(it.Text, limit-reserve)
		}
		return
	}
	if n := utf8.RuneCountInString(it.PostText()); n > limit {
		report.add(index, "text", n, limit)
		it.Text = TruncateText(it.Text, limit-reserve)
	}
}

// repairImages keeps at most MaxImagesPerItem images per item and at most
// MaxGIFsPerUnit animated images across the unit.
func repairImages(u *content.Unit, report *Report) {
	gifs := 0
	for i := range u.Items {
		it := &u.Items[i]
		if len(it.Images) == 0 {
			continue
		}
		kept := make([]string, 0, len(it.Images))
		for _, img := range it.Images {
			if len(kept) == content.MaxImagesPerItem {
				break
			}
			if IsGIF(img) {
				if gifs == content.MaxGIFsPerUnit {
					continue
				}
				gifs++
			}
			kept = append(kept, img)
		}
		if len(kept) != len(it.Images) {
			report.add(i, "images", len(it.Images), content.MaxImagesPerItem)
		}
		it.Images = kept
	}
}

// CapImages applies only the per-item image and per-unit gif caps.
func CapImages(u content.Unit) content.Unit {
	out := u.Clone()
	var report Report
	repairImages(&out, &report)
	return out
}

// IsGIF reports whether an image URL points at a gif.
func IsGIF(url string) bool {
	if i := strings.IndexAny(url, "?#"); i != -1 {
		url = url[:i]
	}
	return strings.EqualFold(path.Ext(url), ".gif")
}
