// Package render turns a template and a value set into a sendable email and
// builds previews for the admin editor.
package render

import (
	"fmt"
	"time"

	"github.com/mailtmpl/internal/placeholder"
)

type Rendered struct {
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Render substitutes values into tmpl and derives the text alternative from
// the resulting HTML.
func Render(tmpl placeholder.Template, values placeholder.Values) (Rendered, error) {
	out := placeholder.ReplaceTemplate(tmpl, values)
	text, err := PlainText(out.HTMLBody)
	if err != nil {
		return Rendered{}, fmt.Errorf("render: plain text: %w", err)
	}
	return Rendered{Subject: out.Subject, HTML: out.HTMLBody, Text: text}, nil
}

type Mode string

const (
	ModeHTML  Mode = "html"
	ModePlain Mode = "plain"
	ModeSplit Mode = "split"
)

// ParseMode accepts the preview modes, defaulting to split when s is empty.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeSplit, nil
	case ModeHTML, ModePlain, ModeSplit:
		return m, nil
	}
	return "", fmt.Errorf("render: unknown preview mode %q", s)
}

// Preview is a rendering plus a report of the tokens the template uses.
type Preview struct {
	Rendered
	Mode    Mode     `json:"mode"`
	Tokens  []string `json:"tokens"`
	Missing []string `json:"missing"`
	Unknown []string `json:"unknown"`
}

// BuildPreview renders tmpl with the sample values for now, overridden by
// overrides.
func BuildPreview(tmpl placeholder.Template, overrides placeholder.Values, now time.Time, mode Mode) (Preview, error) {
	values := placeholder.WithOverrides(placeholder.Defaults(now), overrides)
	r, err := Render(tmpl, values)
	if err != nil {
		return Preview{}, err
	}
	switch mode {
	case ModeHTML:
		r.Text = ""
	case ModePlain:
		r.HTML = ""
	}

	tokens := placeholder.ExtractTemplate(tmpl)
	return Preview{
		Rendered: r,
		Mode:     mode,
		Tokens:   tokens,
		Missing:  placeholder.Missing(tokens, values),
		Unknown:  placeholder.Unknown(tokens),
	}, nil
}
