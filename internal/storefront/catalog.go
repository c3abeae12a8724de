// Package storefront loads storefront templates: named storefront configurations that pick a
// theme and switch checkout features on or off.
package storefront

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// ErrTemplateNotFound is returned for unknown template ids.
var ErrTemplateNotFound = errors.New("storefront: template not found")

// Features toggles checkout behaviour per template.
type Features struct {
	CODEnabled        bool `yaml:"codEnabled" json:"codEnabled"`
	AutoShipment      bool `yaml:"autoShipment" json:"autoShipment"`
	ConfirmationEmail bool `yaml:"confirmationEmail" json:"confirmationEmail"`
}

// Template is one storefront configuration.
type Template struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Theme        string   `yaml:"theme"`
	Currency     string   `yaml:"currency"`
	SupportEmail string   `yaml:"supportEmail"`
	Features     Features `yaml:"features"`
}

// PublicTemplate is what the storefront client may see.
type PublicTemplate struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Theme          string   `json:"theme"`
	Currency       string   `json:"currency"`
	SupportEmail   string   `json:"supportEmail,omitempty"`
	PaymentOptions []string `json:"paymentOptions"`
}

// Public returns the client-facing projection.
func (t Template) Public() PublicTemplate {
	options := []string{"PREPAID"}
	if t.Features.CODEnabled {
		options = append(options, "CASH_ON_DELIVERY")
	}
	return PublicTemplate{
		ID:             t.ID,
		Name:           t.Name,
		Theme:          t.Theme,
		Currency:       t.Currency,
		SupportEmail:   t.SupportEmail,
		PaymentOptions: options,
	}
}

// Catalog is an immutable set of templates with a default.
type Catalog struct {
	templates map[string]Template
	order     []string
	defaultID string
}

type catalogFile struct {
	Templates []Template `yaml:"templates"`
}

// Parse decodes a YAML catalogue. Template ids are case-insensitive and must be unique; the
// default id must exist.
func Parse(data []byte, defaultID string) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("storefront: parse catalog: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, errors.New("storefront: catalog has no templates")
	}

	c := &Catalog{templates: make(map[string]Template, len(file.Templates))}
	for i, tpl := range file.Templates {
		id := normaliseID(tpl.ID)
		if id == "" {
			return nil, fmt.Errorf("storefront: template %d has no id", i)
		}
		if _, dup := c.templates[id]; dup {
			return nil, fmt.Errorf("storefront: duplicate template id %q", id)
		}
		tpl.ID = id
		if tpl.Name == "" {
			tpl.Name = tpl.ID
		}
		tpl.Currency = strings.ToUpper(strings.TrimSpace(tpl.Currency))
		if tpl.Currency == "" {
			tpl.Currency = "INR"
		}
		c.templates[id] = tpl
		c.order = append(c.order, id)
	}

	c.defaultID = normaliseID(defaultID)
	if c.defaultID == "" {
		c.defaultID = c.order[0]
	}
	if _, ok := c.templates[c.defaultID]; !ok {
		return nil, fmt.Errorf("storefront: default template %q is not in the catalog", c.defaultID)
	}
	return c, nil
}

// Load reads the catalogue at path, or the built-in catalogue when path is empty.
func Load(path, defaultID string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog, defaultID)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storefront: read catalog: %w", err)
	}
	return Parse(data, defaultID)
}

// Get returns the template by id. An empty id selects the default.
func (c *Catalog) Get(id string) (Template, error) {
	id = normaliseID(id)
	if id == "" {
		id = c.defaultID
	}
	tpl, ok := c.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return tpl, nil
}

// Default returns the default template.
func (c *Catalog) Default() Template {
	return c.templates[c.defaultID]
}

// List returns templates in file order.
func (c *Catalog) List() []Template {
	out := make([]Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.templates[id])
	}
	return out
}

func normaliseID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
