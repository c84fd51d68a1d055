// Package bundle reads and writes portable YAML collections of templates.
package bundle

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/mailtmpl/internal/model"
)

const Version = 1

//go:embed schema.json
var schemaJSON []byte

var bundleSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("bundle.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("bundle: load schema: %v", err))
	}
	s, err := compiler.Compile("bundle.json")
	if err != nil {
		panic(fmt.Sprintf("bundle: compile schema: %v", err))
	}
	return s
}

var ErrInvalidBundle = errors.New("bundle: invalid document")

// Entry is one template in a bundle.
type Entry struct {
	Form      model.Form
	IsDefault bool
}

// Template returns a new, unsaved template for e.
func (e Entry) Template() *model.EmailTemplate {
	t := &model.EmailTemplate{IsDefault: e.IsDefault}
	e.Form.Apply(t)
	return t
}

// EntryError lists the field problems of the entry at Index.
type EntryError struct {
	Index  int
	Fields model.FieldErrors
}

// ValidationError is returned by Decode when entries pass the schema but
// fail template validation.
type ValidationError struct {
	Entries []EntryError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("bundle: invalid templates:")
	for _, ee := range e.Entries {
		keys := make([]string, 0, len(ee.Fields))
		for k := range ee.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n  templates[%d].%s: %s", ee.Index, k, ee.Fields[k])
		}
	}
	return sb.String()
}

func (e *ValidationError) Unwrap() error { return ErrInvalidBundle }

type document struct {
	Version   int        `yaml:"version"`
	Templates []entryDoc `yaml:"templates"`
}

type entryDoc struct {
	OrganizationID  *string `yaml:"organization_id,omitempty"`
	Type            string  `yaml:"type"`
	Subject         string  `yaml:"subject"`
	HTMLCode        string  `yaml:"html_code"`
	Name            string  `yaml:"name,omitempty"`
	Description     string  `yaml:"description,omitempty"`
	LogoImage       string  `yaml:"email_main_logo_image,omitempty"`
	FromAddressType string  `yaml:"from_email_address_type,omitempty"`
	IsActive        *bool   `yaml:"is_active,omitempty"`
	IsDefault       bool    `yaml:"is_default,omitempty"`
	Category        string  `yaml:"category,omitempty"`
}

// Decode parses a bundle, checks it against the bundle schema and then
// validates each template. Omitted optional fields take the same defaults
// as a new template in the editor.
func Decode(r io.Reader) ([]Entry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	normalized, err := toJSONValue(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if err := bundleSchema.Validate(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}

	entries := make([]Entry, 0, len(doc.Templates))
	var verr ValidationError
	for i, d := range doc.Templates {
		e := d.entry()
		if fe := model.Validate(e.Form); !fe.Valid() {
			verr.Entries = append(verr.Entries, EntryError{Index: i, Fields: fe})
		}
		entries = append(entries, e)
	}
	if len(verr.Entries) > 0 {
		return nil, &verr
	}
	return entries, nil
}

// Encode writes templates as a bundle.
func Encode(w io.Writer, templates []*model.EmailTemplate) error {
	doc := document{Version: Version, Templates: make([]entryDoc, 0, len(templates))}
	for _, t := range templates {
		doc.Templates = append(doc.Templates, docFromTemplate(t))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("bundle: encode: %w", err)
	}
	return enc.Close()
}

func (d entryDoc) entry() Entry {
	f := model.EmptyForm(d.OrganizationID)
	f.Type = model.TemplateType(d.Type)
	f.Subject = d.Subject
	f.HTMLCode = d.HTMLCode
	f.Name = d.Name
	f.Description = d.Description
	f.LogoImage = d.LogoImage
	if d.FromAddressType != "" {
		f.FromAddressType = model.FromAddressType(d.FromAddressType)
	}
	if d.Category != "" {
		f.Category = model.Category(d.Category)
	}
	if d.IsActive != nil {
		f.IsActive = *d.IsActive
	}
	return Entry{Form: f, IsDefault: d.IsDefault}
}

func docFromTemplate(t *model.EmailTemplate) entryDoc {
	f := model.FormFromTemplate(t)
	active := f.IsActive
	return entryDoc{
		OrganizationID:  f.OrganizationID,
		Type:            string(f.Type),
		Subject:         f.Subject,
		HTMLCode:        f.HTMLCode,
		Name:            f.Name,
		Description:     f.Description,
		LogoImage:       f.LogoImage,
		FromAddressType: string(f.FromAddressType),
		IsActive:        &active,
		IsDefault:       t.IsDefault,
		Category:        string(f.Category),
	}
}

// toJSONValue converts a YAML decoded value into the shapes produced by
// encoding/json, which is what the schema validator expects.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
