package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/issuetriage/internal/domain/model"
)

// DefaultCategories is the taxonomy used when no categories file is given.
func DefaultCategories() []model.Category {
	return []model.Category{
		{Name: "UX BUG", Color: "d73a4a", Description: "Something in the interface is broken or confusing"},
		{Name: "FEATURE REQUEST", Color: "a2eeef", Description: "New functionality or an enhancement"},
		{Name: "PERFORMANCE", Color: "fbca04", Description: "Slowness, memory or resource usage"},
		{Name: "ACCESSIBILITY", Color: "0e8a16", Description: "Barriers for assistive technology users"},
		{Name: "DOCUMENTATION", Color: "0075ca", Description: "Missing or wrong documentation"},
	}
}

type categoriesFile struct {
	Categories []model.Category `yaml:"categories"`
}

// LoadCategories reads the categorization taxonomy from a yaml document of
// the form `categories: [{name, color, description}]`. An empty path returns
// DefaultCategories.
func LoadCategories(path string) ([]model.Category, error) {
	if path == "" {
		return DefaultCategories(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read categories file: %w", err)
	}
	return ParseCategories(data)
}

// ParseCategories decodes a yaml taxonomy. Names must be non-empty and
// unique ignoring case; colors lose any leading '#'.
func ParseCategories(data []byte) ([]model.Category, error) {
	var doc categoriesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("parse categories: no categories defined")
	}

	seen := make(map[string]bool, len(doc.Categories))
	out := make([]model.Category, 0, len(doc.Categories))
	for i, c := range doc.Categories {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("parse categories: entry %d has no name", i)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return nil, fmt.Errorf("parse categories: duplicate category %q", c.Name)
		}
		seen[key] = true

		c.Color = strings.TrimPrefix(strings.TrimSpace(c.Color), "#")
		if c.Color == "" {
			c.Color = "ededed"
		}
		out = append(out, c)
	}
	return out, nil
}

// CategoryNames returns the names of categories in order.
func CategoryNames(categories []model.Category) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}
	return names
}
