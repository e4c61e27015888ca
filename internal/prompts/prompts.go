// Package prompts holds the model prompt text and the per-category extraction fields.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"
	"text/template"

	"receipt-agent/internal/models"

	"github.com/pelletier/go-toml/v2"
)

//go:embed prompts.toml
var raw []byte

// Field maps a label shown to the vision model to the record key it is stored under.
type Field struct {
	Label string `toml:"label"`
	Key   string `toml:"key"`
}

// Catalog is the decoded prompts.toml.
type Catalog struct {
	Classification struct {
		Prompt string `toml:"prompt"`
	} `toml:"classification"`
	Extraction struct {
		Prompt string `toml:"prompt"`
	} `toml:"extraction"`
	Fields map[string][]Field `toml:"fields"`
	Agent  struct {
		System     string `toml:"system"`
		Correction string `toml:"correction"`
		ToolResult string `toml:"tool_result"`
	} `toml:"agent"`
	Notifications struct {
		DuplicateSubject string `toml:"duplicate_subject"`
		DuplicateBody    string `toml:"duplicate_body"`
	} `toml:"notifications"`

	templates map[string]*template.Template
}

var (
	loadOnce sync.Once
	catalog  *Catalog
	loadErr  error
)

// Load parses the embedded catalog once.
func Load() (*Catalog, error) {
	loadOnce.Do(func() {
		catalog, loadErr = Parse(raw)
	})
	return catalog, loadErr
}

// MustLoad panics when the embedded catalog is invalid.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a catalog and compiles its templates.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	for _, cat := range models.Categories {
		if len(c.Fields[string(cat)]) == 0 {
			return nil, fmt.Errorf("prompts: no extraction fields for %s", cat)
		}
	}

	c.templates = make(map[string]*template.Template)
	sources := map[string]string{
		"extraction":     c.Extraction.Prompt,
		"agent":          c.Agent.System,
		"correction":     c.Agent.Correction,
		"tool_result":    c.Agent.ToolResult,
		"duplicate_body": c.Notifications.DuplicateBody,
	}
	for name, src := range sources {
		t, err := template.New(name).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("prompts: template %s: %w", name, err)
		}
		c.templates[name] = t
	}
	return &c, nil
}

// FieldsFor returns the extraction fields of a category.
func (c *Catalog) FieldsFor(cat models.Category) []Field {
	return c.Fields[string(cat)]
}

// Render executes a named template.
func (c *Catalog) Render(name string, data interface{}) (string, error) {
	t, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("prompts: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("prompts: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// ExtractionPrompt renders the field request for a category.
func (c *Catalog) ExtractionPrompt(cat models.Category) (string, error) {
	return c.Render("extraction", struct{ Fields []Field }{c.FieldsFor(cat)})
}
