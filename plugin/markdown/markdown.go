// Package markdown renders assistant output to HTML for cached display.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Service converts markdown to HTML.
type Service interface {
	Render(source string) (string, error)
}

type service struct {
	md goldmark.Markdown
}

// NewService creates a markdown rendering service.
// GFM covers the tables, strikethrough and autolinks that models emit.
func NewService() Service {
	return &service{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
			),
		),
	}
}

func (s *service) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
