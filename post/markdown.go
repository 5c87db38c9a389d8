package post

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"blogroll/models"
)

// TypeMarkdown marks posts whose content is rendered to content_html.
const TypeMarkdown = "markdown"

const defaultType = "text"

// Raw HTML in post content is escaped; the renderer runs without WithUnsafe.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
)

func renderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render fills ContentHTML for markdown posts. A post that fails to render
// keeps an empty ContentHTML.
func Render(posts ...*models.Post) {
	for _, p := range posts {
		if p.Type != TypeMarkdown {
			continue
		}
		html, err := renderMarkdown(p.Content)
		if err != nil {
			continue
		}
		p.ContentHTML = html
	}
}
