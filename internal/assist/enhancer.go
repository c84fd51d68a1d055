// Package assist rewrites template HTML with an OpenAI compatible chat model
// while keeping every placeholder intact.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mailtmpl/internal/model"
	"github.com/mailtmpl/internal/placeholder"
)

var (
	ErrDisabled            = errors.New("assist: no API key configured")
	ErrPlaceholdersDropped = errors.New("assist: rewritten content dropped placeholders")
	ErrEmptyResponse       = errors.New("assist: model returned no content")
)

const defaultModel = "gpt-4o-mini"

type Kind string

const (
	KindImprove      Kind = "improve"
	KindEngaging     Kind = "engaging"
	KindProfessional Kind = "professional"
	KindExpand       Kind = "expand"
	KindShorten      Kind = "shorten"
	KindCustom       Kind = "custom"
)

var guidance = map[Kind]string{
	KindImprove:      "Fix grammar, clarity and flow without changing the meaning.",
	KindEngaging:     "Make the copy more engaging with a stronger hook and compelling language.",
	KindProfessional: "Use a formal, professional tone and a clear structure.",
	KindExpand:       "Add helpful detail and examples while keeping the same purpose.",
	KindShorten:      "Make the copy concise and direct. Remove filler.",
}

const systemPrompt = `You edit HTML email templates.
Return only the rewritten HTML, with no commentary and no Markdown fences.
Keep the existing HTML structure, inline styles, links and images.
Placeholders look like {{name}}. Copy every placeholder exactly as written, never translate, rename, remove or add one.`

type Request struct {
	Content      string `json:"content"`
	Kind         Kind   `json:"kind"`
	Instructions string `json:"instructions,omitempty"`
}

// Validate reports problems per field; the result is empty when r is usable.
func (r Request) Validate() model.FieldErrors {
	errs := model.FieldErrors{}
	if strings.TrimSpace(r.Content) == "" {
		errs["content"] = "Content is required"
	}
	switch r.Kind {
	case KindCustom:
		if strings.TrimSpace(r.Instructions) == "" {
			errs["instructions"] = "Instructions are required for custom enhancement"
		}
	default:
		if _, ok := guidance[r.Kind]; !ok {
			errs["kind"] = "Unknown enhancement kind"
		}
	}
	return errs
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

// Enhancer is safe for concurrent use.
type Enhancer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// New returns an Enhancer. Without an API key every call fails with
// ErrDisabled.
func New(cfg Config) *Enhancer {
	e := &Enhancer{model: cfg.Model, timeout: 60 * time.Second}
	if e.model == "" {
		e.model = defaultModel
	}
	if cfg.APIKey == "" {
		return e
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	e.client = openai.NewClientWithConfig(cc)
	return e
}

func (e *Enhancer) Enabled() bool { return e != nil && e.client != nil }

// Enhance rewrites req.Content. The result is rejected when any placeholder
// of the input is missing from it.
func (e *Enhancer) Enhance(ctx context.Context, req Request) (string, error) {
	if !e.Enabled() {
		return "", ErrDisabled
	}
	if errs := req.Validate(); len(errs) > 0 {
		return "", fmt.Errorf("assist: invalid request: %v", errs)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	instruction := guidance[req.Kind]
	if req.Kind == KindCustom {
		instruction = strings.TrimSpace(req.Instructions)
	}
	tokens := placeholder.Extract(req.Content)

	user := fmt.Sprintf("Task: %s\nPlaceholders that must appear unchanged: %s\n\nTemplate:\n%s",
		instruction, listOrNone(tokens), req.Content)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.4,
	})
	if err != nil {
		slog.Error("assist: completion failed", "kind", req.Kind, "err", err)
		return "", fmt.Errorf("assist: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	out := stripFences(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyResponse
	}

	if lost := placeholder.Missing(tokens, toValues(placeholder.Extract(out))); len(lost) > 0 {
		return "", fmt.Errorf("%w: %s", ErrPlaceholdersDropped, strings.Join(lost, ", "))
	}
	return out, nil
}

func listOrNone(tokens []string) string {
	if len(tokens) == 0 {
		return "none"
	}
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = "{{" + t + "}}"
	}
	return strings.Join(parts, ", ")
}

func toValues(tokens []string) placeholder.Values {
	v := make(placeholder.Values, len(tokens))
	for _, t := range tokens {
		v[t] = ""
	}
	return v
}

// stripFences removes a Markdown code fence some models wrap output in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
