// Package export renders blog posts as standalone HTML documents or PDFs.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"blogwriter/api/internal/store"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing is returned when no Chrome binary can be found.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

type Service struct {
	markdown goldmark.Markdown
	pdf      PDFRenderer
}

func NewService() *Service {
	return &Service{
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		pdf:      renderPDF,
	}
}

func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, raw)
	}
}

func (s *Service) Export(ctx context.Context, post store.BlogPost, format Format) (*Result, error) {
	html, err := s.RenderHTML(post)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(post.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		data, err := s.pdf(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(post.Title) + ".pdf",
			MimeType: "application/pdf",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

type templateData struct {
	Title       string
	Excerpt     string
	ContentHTML template.HTML
	Keywords    []string
	Status      string
	UpdatedAt   time.Time
}

// RenderHTML converts the markdown body and wraps it in the print template.
// Raw HTML inside the markdown is dropped by the renderer.
func (s *Service) RenderHTML(post store.BlogPost) (string, error) {
	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(post.Content), &body); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	data := templateData{
		Title:       post.Title,
		Excerpt:     post.Excerpt,
		ContentHTML: template.HTML(body.String()),
		Keywords:    post.Keywords,
		Status:      post.Status,
		UpdatedAt:   post.UpdatedAt,
	}

	var buf bytes.Buffer
	if err := postTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func sanitizeFilename(title string) string {
	var result strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result.WriteRune(r)
		case r == ' ':
			result.WriteRune('-')
		case r == '-', r == '_':
			result.WriteRune(r)
		}
	}

	name := result.String()
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "post"
	}
	return name
}

var postTemplate = template.Must(template.New("post").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, 'Times New Roman', serif; line-height: 1.7; max-width: 760px; margin: 2rem auto; color: #222; }
    h1 { font-size: 2.2em; margin-bottom: 0.2em; }
    .excerpt { color: #555; font-style: italic; }
    .meta { color: #777; font-size: 0.85em; margin-bottom: 2rem; }
    .keywords span { display: inline-block; background: #eef; border-radius: 3px; padding: 0 6px; margin-right: 4px; }
    pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
    table { border-collapse: collapse; }
    td, th { border: 1px solid #ccc; padding: 4px 8px; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Excerpt}}<p class="excerpt">{{.Excerpt}}</p>{{end}}
  <div class="meta">{{.Status}}{{if not .UpdatedAt.IsZero}} | {{.UpdatedAt.Format "Jan 2, 2006"}}{{end}}</div>
  {{if .Keywords}}<div class="keywords">{{range .Keywords}}<span>{{.}}</span>{{end}}</div>{{end}}
  <article>{{.ContentHTML}}</article>
</body>
</html>`))
