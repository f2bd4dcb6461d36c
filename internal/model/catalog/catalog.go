package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModels []byte

// Model describes a backend model the user can switch to.
type Model struct {
	ID          string `yaml:"-" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Web         bool   `yaml:"web" json:"web"`
	Description string `yaml:"description" json:"description"`
}

// Catalog is the known model list.
type Catalog struct {
	models map[string]Model
}

// Default returns the catalogue shipped with the client.
func Default() *Catalog {
	c, err := Parse(defaultModels)
	if err != nil {
		panic(fmt.Sprintf("embedded models.yaml is invalid: %v", err))
	}
	return c
}

// Parse reads a catalogue document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Models map[string]Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	models := make(map[string]Model, len(doc.Models))
	for id, m := range doc.Models {
		m.ID = id
		models[id] = m
	}
	return &Catalog{models: models}, nil
}

// Describe looks up a model by identifier.
func (c *Catalog) Describe(id string) (Model, bool) {
	m, ok := c.models[id]
	return m, ok
}

// List returns the models sorted by identifier.
func (c *Catalog) List() []Model {
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
