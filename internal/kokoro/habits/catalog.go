// Package habits maps a mood to habit categories and draws concrete habit
// suggestions from a fixed catalogue.
package habits

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a habit category key.
type Category string

const (
	StressRelief      Category = "stress_relief"
	MoodBoost         Category = "mood_boost"
	AnxietyManagement Category = "anxiety_management"
	DepressionSupport Category = "depression_support"
	GeneralWellness   Category = "general_wellness"
)

// Categories lists every known category.
var Categories = []Category{StressRelief, MoodBoost, AnxietyManagement, DepressionSupport, GeneralWellness}

// CatalogVersion is the only catalogue schema version understood.
const CatalogVersion = 1

// DefaultEstimatedTime is used when neither the category nor the catalogue
// provides one.
const DefaultEstimatedTime = "10-15 minutes"

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// CategorySpec is one category's habit pool.
type CategorySpec struct {
	EstimatedTime string   `yaml:"estimated_time"`
	Habits        []string `yaml:"habits"`
}

// Catalog is the full habit table.
type Catalog struct {
	Version     int                       `yaml:"version"`
	DefaultTime string                    `yaml:"default_time"`
	Categories  map[Category]CategorySpec `yaml:"categories"`
}

// DefaultCatalog returns the embedded catalogue.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("habits: embedded catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads and validates a catalogue file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("habits: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates raw YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("habits: parse catalog yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("habits: invalid catalog: %w", err)
	}
	return &c, nil
}

// Validate checks the catalogue. Only the five known categories may appear
// and each must carry at least one non-blank habit.
func (c *Catalog) Validate() error {
	if c.Version != CatalogVersion {
		return fmt.Errorf("version must be %d, got %d", CatalogVersion, c.Version)
	}
	if len(c.Categories) == 0 {
		return fmt.Errorf("categories must not be empty")
	}
	for cat, pool := range c.Categories {
		if !slices.Contains(Categories, cat) {
			return fmt.Errorf("unknown category %q", cat)
		}
		if len(pool.Habits) == 0 {
			return fmt.Errorf("category %q has no habits", cat)
		}
		for i, h := range pool.Habits {
			if strings.TrimSpace(h) == "" {
				return fmt.Errorf("category %q habit %d is blank", cat, i)
			}
		}
	}
	return nil
}

// Pool returns the habit names for cat, nil if unknown.
func (c *Catalog) Pool(cat Category) []string {
	return c.Categories[cat].Habits
}

// EstimatedTime returns the time estimate for cat.
func (c *Catalog) EstimatedTime(cat Category) string {
	if t := c.Categories[cat].EstimatedTime; t != "" {
		return t
	}
	if c.DefaultTime != "" {
		return c.DefaultTime
	}
	return DefaultEstimatedTime
}
