package render

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText converts an HTML email body into a readable text alternative.
// Block elements become line breaks, links keep their target in
// parentheses and script or style content is dropped.
func PlainText(body string) (string, error) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writeText(doc, &sb)
	return tidy(sb.String()), nil
}

func writeText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(collapseSpace(n.Data))
		return
	case html.ElementNode:
		switch n.Data {
		case "head", "script", "style", "noscript", "template":
			return
		case "br":
			sb.WriteString("\n")
			return
		case "hr":
			sb.WriteString("\n\n")
			return
		case "img":
			if alt := attr(n, "alt"); alt != "" {
				sb.WriteString(alt)
			}
			return
		case "li":
			sb.WriteString("\n- ")
		case "td", "th":
			sb.WriteString(" ")
		case "tr":
			sb.WriteString("\n")
		default:
			if isBlock(n.Data) {
				sb.WriteString("\n\n")
			}
		}
	}

	start := sb.Len()
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, sb)
	}

	if n.Type != html.ElementNode {
		return
	}
	switch {
	case n.Data == "a":
		href := attr(n, "href")
		label := strings.TrimSpace(sb.String()[start:])
		if href != "" && !strings.HasPrefix(href, "#") && href != label {
			sb.WriteString(" (" + href + ")")
		}
	case isBlock(n.Data):
		sb.WriteString("\n\n")
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "table", "ul", "ol",
		"blockquote", "section", "article", "header", "footer", "pre":
		return true
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// collapseSpace folds every whitespace run into one space, keeping a single
// leading or trailing space so adjacent inline elements stay separated.
func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
			if !space {
				sb.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// tidy trims every line, squeezes inner spaces and keeps at most one blank
// line between paragraphs.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
