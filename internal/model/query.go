package model

import (
	"slices"
	"strings"
)

type ActiveFilter string

const (
	ActiveAll      ActiveFilter = "all"
	ActiveOnly     ActiveFilter = "active"
	ActiveInactive ActiveFilter = "inactive"
)

// Filter narrows a template list. Zero values match everything.
type Filter struct {
	Category Category
	Active   ActiveFilter
	Type     TemplateType
	Search   string
}

type SortKey string

const (
	SortSubject  SortKey = "subject"
	SortCreated  SortKey = "created"
	SortType     SortKey = "type"
	SortCategory SortKey = "category"
)

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

type Sort struct {
	By    SortKey
	Order SortOrder
}

// Match reports whether t passes every criterion of f.
func (f Filter) Match(t *EmailTemplate) bool {
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	switch f.Active {
	case ActiveOnly:
		if !t.IsActive {
			return false
		}
	case ActiveInactive:
		if t.IsActive {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		fields := []string{
			t.Subject,
			string(t.Type),
			string(t.Category),
			deref(t.Name),
			deref(t.Description),
			t.HTMLCode,
		}
		found := false
		for _, s := range fields {
			if strings.Contains(strings.ToLower(s), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s Sort) compare(a, b *EmailTemplate) int {
	var c int
	switch s.By {
	case SortSubject:
		c = strings.Compare(strings.ToLower(a.Subject), strings.ToLower(b.Subject))
	case SortCreated:
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	case SortType:
		c = strings.Compare(string(a.Type), string(b.Type))
	case SortCategory:
		c = strings.Compare(string(a.Category), string(b.Category))
	default:
		return 0
	}
	if s.Order == Desc {
		return -c
	}
	return c
}

// Apply filters and sorts list into a new slice. The input is left untouched
// and equal elements keep their relative order.
func Apply(list []*EmailTemplate, f Filter, s Sort) []*EmailTemplate {
	out := make([]*EmailTemplate, 0, len(list))
	for _, t := range list {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, s.compare)
	return out
}

// TruncateText keeps the first n runes of s and appends "..." when it cut
// anything.
func TruncateText(s string, n int) string {
	r := []rune(s)
	if n < 0 {
		n = 0
	}
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
