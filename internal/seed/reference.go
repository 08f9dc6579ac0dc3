package seed

import (
	_ "embed"
	"fmt"

	"blogicum/internal/models"
	"blogicum/internal/validation"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed reference.yml
var referenceYAML []byte

// CategoryFixture is one category of the reference data.
type CategoryFixture struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	IsPublished bool   `yaml:"is_published"`
}

// LocationFixture is one location of the reference data.
type LocationFixture struct {
	Name        string `yaml:"name"`
	IsPublished bool   `yaml:"is_published"`
}

// Reference is the fixed set of categories and locations every install starts with.
type Reference struct {
	Categories []CategoryFixture `yaml:"categories"`
	Locations  []LocationFixture `yaml:"locations"`
}

// LoadReference parses the embedded reference data.
func LoadReference() (*Reference, error) {
	return ParseReference(referenceYAML)
}

// ParseReference parses reference data in the embedded format.
func ParseReference(data []byte) (*Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parse reference data: %w", err)
	}
	seen := map[string]bool{}
	for _, c := range ref.Categories {
		if c.Slug == "" || c.Title == "" {
			return nil, fmt.Errorf("category %q: title and slug are required", c.Title)
		}
		if err := validation.ValidateSlug(c.Slug); err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Title, err)
		}
		if seen[c.Slug] {
			return nil, fmt.Errorf("duplicate category slug %q", c.Slug)
		}
		seen[c.Slug] = true
	}
	for _, l := range ref.Locations {
		if l.Name == "" {
			return nil, fmt.Errorf("location name is required")
		}
	}
	return &ref, nil
}

// SeedReference upserts the reference categories (by slug) and locations (by name).
// Running it twice leaves one row per fixture.
func SeedReference(db *gorm.DB, ref *Reference) ([]models.Category, []models.Location, error) {
	var categories []models.Category
	var locations []models.Location

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, item := range ref.Categories {
			category := models.Category{
				Title:       item.Title,
				Slug:        item.Slug,
				Description: item.Description,
				IsPublished: item.IsPublished,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"title", "description", "is_published"}),
			}).Create(&category).Error; err != nil {
				return fmt.Errorf("category %s: %w", item.Slug, err)
			}
			if err := tx.Where("slug = ?", item.Slug).Take(&category).Error; err != nil {
				return err
			}
			categories = append(categories, category)
		}

		for _, item := range ref.Locations {
			var location models.Location
			err := tx.Where(models.Location{Name: item.Name}).
				Assign(map[string]any{"is_published": item.IsPublished}).
				FirstOrCreate(&location).Error
			if err != nil {
				return fmt.Errorf("location %s: %w", item.Name, err)
			}
			locations = append(locations, location)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return categories, locations, nil
}
