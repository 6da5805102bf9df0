package platform

import (
	"html"
	"regexp"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

var (
	lineBreaks     = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphEnds  = regexp.MustCompile(`(?i)</p\s*>`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	stripPolicy    = bluemonday.StrictPolicy()
)

// PlainText converts editor HTML to the plain text platforms accept.
func PlainText(s string) string {
	s = lineBreaks.ReplaceAllString(s, "\n")
	s = paragraphEnds.ReplaceAllString(s, "\n\n")
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = excessNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// AppendHashtags adds tags not already present in text.
func AppendHashtags(text string, hashtags []string) string {
	var tags []string
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	for _, h := range hashtags {
		h = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(h), "#"))
		if h == "" {
			continue
		}
		tag := "#" + h
		key := strings.ToLower(tag)
		if seen[key] || strings.Contains(lower, key) {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}

	if len(tags) == 0 {
		return text
	}
	if text == "" {
		return strings.Join(tags, " ")
	}
	return text + "\n\n" + strings.Join(tags, " ")
}

// BuildContent renders a post for one target. A variant keyed by
// "platform:connectionID" wins over one keyed by platform, which wins over
// the universal content.
func BuildContent(post *models.Post, platform, connectionID string) Content {
	text, title, hashtags, media := post.Content, post.Title, post.Hashtags, post.Media

	variant, ok := post.Variants[platform+":"+connectionID]
	if !ok {
		variant, ok = post.Variants[platform]
	}
	if ok {
		if variant.Content != "" {
			text = variant.Content
		}
		if variant.Title != "" {
			title = variant.Title
		}
		if variant.Hashtags != nil {
			hashtags = variant.Hashtags
		}
		if variant.MediaIDs != nil {
			media = pickMedia(post.Media, variant.MediaIDs)
		}
	}

	return Content{
		Text:  AppendHashtags(PlainText(text), hashtags),
		Title: PlainText(title),
		Media: media,
	}
}

func pickMedia(all []models.MediaRef, ids []string) []models.MediaRef {
	byID := make(map[string]models.MediaRef, len(all))
	for _, m := range all {
		byID[m.ID] = m
	}

	out := make([]models.MediaRef, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}
