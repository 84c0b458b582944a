// Package metatags builds SEO meta tags for a blog post, asking the LLM first
// and falling back to a deterministic summary of the post.
package metatags

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"blogwriter/api/internal/llm"
	"blogwriter/api/internal/store"
	"blogwriter/api/internal/util"
	"go.uber.org/zap"
)

const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"

	MaxTitleLength       = 60
	maxDescriptionLength = 155
	maxLLMDescription    = 160
	ellipsis             = "..."
)

var errEmptyTags = errors.New("llm returned empty meta tags")

type Tags struct {
	MetaTitle       string   `json:"meta_title"`
	MetaDescription string   `json:"meta_description"`
	OGTitle         string   `json:"og_title"`
	OGDescription   string   `json:"og_description"`
	Slug            string   `json:"slug"`
	Keywords        []string `json:"keywords"`
	Source          string   `json:"source"`
}

// Completer is satisfied by *llm.Client.
type Completer interface {
	Chat(ctx context.Context, req llm.Request, result any) error
}

type Generator struct {
	llm    Completer
	logger *zap.Logger
}

// NewGenerator accepts a nil completer, in which case every call takes the
// fallback path.
func NewGenerator(completer Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: completer, logger: logger}
}

func (g *Generator) Generate(ctx context.Context, post store.BlogPost) Tags {
	tags := Tags{
		Slug:     post.Slug,
		Keywords: post.Keywords,
	}
	if tags.Slug == "" {
		tags.Slug = util.Slugify(post.Title)
	}
	if tags.Keywords == nil {
		tags.Keywords = []string{}
	}

	title, description, err := g.fromLLM(ctx, post)
	if err != nil {
		g.logger.Warn("meta tags generated locally",
			zap.String("post_id", post.ID),
			zap.Error(err))
		title, description = Fallback(post)
		tags.Source = SourceFallback
	} else {
		tags.Source = SourceLLM
	}

	tags.MetaTitle = title
	tags.MetaDescription = description
	tags.OGTitle = title
	tags.OGDescription = description
	return tags
}

// Fallback derives a title of at most 60 characters and a description of at
// most 158 characters from the post itself.
func Fallback(post store.BlogPost) (string, string) {
	title := util.TruncateWords(post.Title, MaxTitleLength, "")

	source := util.StripMarkup(post.Excerpt)
	if source == "" {
		source = util.StripMarkup(post.Content)
	}
	description := source
	if utf8.RuneCountInString(source) > maxDescriptionLength {
		description = util.TruncateWords(source, maxDescriptionLength, "") + ellipsis
	}
	return title, description
}

type llmTags struct {
	MetaTitle       string `json:"meta_title"`
	MetaDescription string `json:"meta_description"`
}

var tagsSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"meta_title":       map[string]any{"type": "string", "description": "SEO title, at most 60 characters"},
		"meta_description": map[string]any{"type": "string", "description": "SEO description, 120 to 160 characters"},
	},
	"required":             []string{"meta_title", "meta_description"},
	"additionalProperties": false,
}

const systemPrompt = `You write SEO meta tags for blog posts.
Return a meta_title of at most 60 characters that contains the primary keyword,
and a meta_description between 120 and 160 characters that summarizes the post.`

func (g *Generator) fromLLM(ctx context.Context, post store.BlogPost) (string, string, error) {
	if g.llm == nil {
		return "", "", errors.New("llm disabled")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", post.Title)
	if len(post.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(post.Keywords, ", "))
	}
	if post.Excerpt != "" {
		fmt.Fprintf(&b, "Excerpt: %s\n", util.StripMarkup(post.Excerpt))
	}
	fmt.Fprintf(&b, "Content: %s\n", util.FirstWords(util.StripMarkup(post.Content), 400))

	var out llmTags
	err := g.llm.Chat(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   b.String(),
		SchemaName:   "meta_tags",
		Schema:       tagsSchema,
		MaxTokens:    300,
	}, &out)
	if err != nil {
		return "", "", err
	}

	title := strings.TrimSpace(out.MetaTitle)
	description := strings.TrimSpace(out.MetaDescription)
	if title == "" || description == "" {
		return "", "", errEmptyTags
	}
	return util.TruncateWords(title, MaxTitleLength, ""), util.TruncateWords(description, maxLLMDescription, ""), nil
}
