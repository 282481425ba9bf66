package coach

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/betterme/internal/domain"
)

//go:embed resources.yaml
var defaultCatalogYAML []byte

const maxResourcesPerTask = 3

type catalogEntry struct {
	Title    string   `yaml:"title"`
	URL      string   `yaml:"url"`
	Keywords []string `yaml:"keywords"`
}

// Catalog maps task keywords to learning resources.
type Catalog struct {
	entries []catalogEntry
}

// ParseCatalog reads a YAML list of {title, url, keywords} entries.
func ParseCatalog(data []byte) (*Catalog, error) {
	var entries []catalogEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse resource catalog: %w", err)
	}
	for i := range entries {
		if entries[i].URL == "" {
			return nil, fmt.Errorf("resource catalog entry %d has no url", i)
		}
		for j, k := range entries[i].Keywords {
			entries[i].Keywords[j] = strings.ToLower(k)
		}
	}
	return &Catalog{entries: entries}, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Pick returns up to three resources whose keywords appear in text, in
// catalog order, without duplicate URLs.
func (c *Catalog) Pick(text string) []domain.Resource {
	if c == nil {
		return nil
	}
	t := strings.ToLower(text)
	seen := make(map[string]bool)
	var out []domain.Resource
	for _, e := range c.entries {
		if seen[e.URL] || !containsAny(t, e.Keywords) {
			continue
		}
		seen[e.URL] = true
		out = append(out, domain.Resource{Title: e.Title, URL: e.URL})
		if len(out) == maxResourcesPerTask {
			break
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}
