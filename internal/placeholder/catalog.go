package placeholder

import (
	"bytes"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Info describes a known placeholder.
type Info struct {
	Key         string `yaml:"key" json:"key"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
	Example     string `yaml:"example" json:"example"`
	Category    string `yaml:"category" json:"category"`
}

// TypeInfo describes a template type and the placeholders it is expected to use.
type TypeInfo struct {
	Value          string   `yaml:"value" json:"value"`
	Label          string   `yaml:"label" json:"label"`
	Description    string   `yaml:"description" json:"description"`
	Category       string   `yaml:"category" json:"category"`
	DefaultSubject string   `yaml:"default_subject" json:"default_subject"`
	Placeholders   []string `yaml:"placeholders" json:"placeholders"`
}

// CategoryStandard placeholders are available to every template type.
const CategoryStandard = "standard"

type catalogDocument struct {
	Placeholders []Info     `yaml:"placeholders"`
	Types        []TypeInfo `yaml:"types"`
}

//go:embed catalog.yaml
var catalogYAML []byte

var catalog = mustLoadCatalog(catalogYAML)

func mustLoadCatalog(data []byte) catalogDocument {
	doc, err := decodeCatalog(data)
	if err != nil {
		panic(err)
	}
	return doc
}

func decodeCatalog(data []byte) (catalogDocument, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc catalogDocument
	if err := dec.Decode(&doc); err != nil {
		return catalogDocument{}, fmt.Errorf("placeholder: parse catalog: %w", err)
	}
	keys := make(map[string]struct{}, len(doc.Placeholders))
	for _, p := range doc.Placeholders {
		if _, dup := keys[p.Key]; dup {
			return catalogDocument{}, fmt.Errorf("placeholder: duplicate catalog key %q", p.Key)
		}
		keys[p.Key] = struct{}{}
	}
	for _, t := range doc.Types {
		for _, k := range t.Placeholders {
			if _, ok := keys[k]; !ok {
				return catalogDocument{}, fmt.Errorf("placeholder: type %s references unknown key %q", t.Value, k)
			}
		}
	}
	return doc, nil
}

// Catalog returns every known placeholder in catalog order.
func Catalog() []Info {
	out := make([]Info, len(catalog.Placeholders))
	copy(out, catalog.Placeholders)
	return out
}

// Types returns every known template type.
func Types() []TypeInfo {
	out := make([]TypeInfo, len(catalog.Types))
	copy(out, catalog.Types)
	return out
}

// InfoFor looks up a placeholder by key.
func InfoFor(key string) (Info, bool) {
	for _, p := range catalog.Placeholders {
		if p.Key == key {
			return p, true
		}
	}
	return Info{}, false
}

// TypeInfoFor looks up a template type.
func TypeInfoFor(templateType string) (TypeInfo, bool) {
	for _, t := range catalog.Types {
		if t.Value == templateType {
			return t, true
		}
	}
	return TypeInfo{}, false
}

// AvailableFor returns the placeholders relevant to a template type: the
// type's own keys plus every standard placeholder. Unknown types get the
// whole catalog.
func AvailableFor(templateType string) []Info {
	t, ok := TypeInfoFor(templateType)
	if !ok {
		return Catalog()
	}
	relevant := make(map[string]struct{}, len(t.Placeholders))
	for _, k := range t.Placeholders {
		relevant[k] = struct{}{}
	}
	var out []Info
	for _, p := range catalog.Placeholders {
		if _, ok := relevant[p.Key]; ok || p.Category == CategoryStandard {
			out = append(out, p)
		}
	}
	return out
}

// DefaultSubject returns the suggested subject for a template type.
func DefaultSubject(templateType string) string {
	t, _ := TypeInfoFor(templateType)
	return t.DefaultSubject
}

// Unknown returns the tokens that are not in the catalog.
func Unknown(tokens []string) []string {
	out := []string{}
	for _, tok := range tokens {
		if _, ok := InfoFor(tok); !ok {
			out = append(out, tok)
		}
	}
	return out
}
