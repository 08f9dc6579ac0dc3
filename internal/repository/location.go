package repository

import (
	"context"

	"blogicum/internal/models"

	"gorm.io/gorm"
)

// LocationRepository defines persistence operations for locations.
type LocationRepository interface {
	Create(ctx context.Context, location *models.Location) error
	GetByID(ctx context.Context, id uint) (*models.Location, error)
	List(ctx context.Context, onlyPublished bool) ([]models.Location, error)
	Delete(ctx context.Context, id uint) error
}

type locationRepository struct {
	db *gorm.DB
}

// NewLocationRepository returns a new LocationRepository implementation.
func NewLocationRepository(db *gorm.DB) LocationRepository {
	return &locationRepository{db: db}
}

func (r *locationRepository) Create(ctx context.Context, location *models.Location) error {
	if err := r.db.WithContext(ctx).Create(location).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *locationRepository) GetByID(ctx context.Context, id uint) (*models.Location, error) {
	var location models.Location
	if err := r.db.WithContext(ctx).First(&location, id).Error; err != nil {
		return nil, notFoundOr(err, "Location", id)
	}
	return &location, nil
}

func (r *locationRepository) List(ctx context.Context, onlyPublished bool) ([]models.Location, error) {
	var locations []models.Location
	db := r.db.WithContext(ctx).Order("name ASC").Order("id ASC")
	if onlyPublished {
		db = db.Where("is_published = ?", true)
	}
	if err := db.Find(&locations).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return locations, nil
}

// Delete removes the location. Its posts survive without a location.
func (r *locationRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Post{}).Where("location_id = ?", id).Update("location_id", nil).Error; err != nil {
			return models.NewInternalError(err)
		}
		res := tx.Delete(&models.Location{}, id)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Location", id)
		}
		return nil
	})
}
