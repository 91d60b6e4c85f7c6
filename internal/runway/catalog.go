package runway

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var defaultCatalog []byte

const CustomLabel = "Custom"

type Scenario struct {
	ID     string `yaml:"id" json:"id"`
	Label  string `yaml:"label" json:"label"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

type Catalog struct {
	Default   string     `yaml:"default" json:"default"`
	Scenarios []Scenario `yaml:"scenarios" json:"scenarios"`
}

// DefaultCatalog returns the built-in scenarios.
func DefaultCatalog() *Catalog {
	c, err := parseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("runway: embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog; an empty path yields the built-in one.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runway: read catalog: %w", err)
	}
	return parseCatalog(b)
}

func parseCatalog(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("runway: parse catalog: %w", err)
	}
	if len(c.Scenarios) == 0 {
		return nil, fmt.Errorf("runway: catalog has no scenarios")
	}
	for i, s := range c.Scenarios {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Prompt) == "" {
			return nil, fmt.Errorf("runway: scenario %d needs an id and a prompt", i)
		}
		if s.Label == "" {
			c.Scenarios[i].Label = s.ID
		}
	}
	if _, ok := c.lookup(c.Default); !ok {
		c.Default = c.Scenarios[0].ID
	}
	return &c, nil
}

func (c *Catalog) lookup(key string) (Scenario, bool) {
	key = strings.TrimSpace(key)
	for _, s := range c.Scenarios {
		if strings.EqualFold(s.ID, key) || strings.EqualFold(s.Label, key) {
			return s, true
		}
	}
	return Scenario{}, false
}

// Resolve maps a scenario id or label onto the catalog. Blank input picks
// the default scenario; any other text becomes a custom scene prompt.
func (c *Catalog) Resolve(key string) Scenario {
	if strings.TrimSpace(key) == "" {
		s, _ := c.lookup(c.Default)
		return s
	}
	if s, ok := c.lookup(key); ok {
		return s
	}
	return Scenario{ID: "custom", Label: CustomLabel, Prompt: strings.TrimSpace(key)}
}
