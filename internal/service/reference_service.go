package service

import (
	"context"

	"blogicum/internal/models"
	"blogicum/internal/repository"
)

// ReferenceService serves the category and location lists used by forms and the API.
type ReferenceService struct {
	categoryRepo repository.CategoryRepository
	locationRepo repository.LocationRepository
}

func NewReferenceService(categoryRepo repository.CategoryRepository, locationRepo repository.LocationRepository) *ReferenceService {
	return &ReferenceService{categoryRepo: categoryRepo, locationRepo: locationRepo}
}

// Categories lists categories; form selects pass onlyPublished=false.
func (s *ReferenceService) Categories(ctx context.Context, onlyPublished bool) ([]models.Category, error) {
	return s.categoryRepo.List(ctx, onlyPublished)
}

// Locations lists locations; form selects pass onlyPublished=false.
func (s *ReferenceService) Locations(ctx context.Context, onlyPublished bool) ([]models.Location, error) {
	return s.locationRepo.List(ctx, onlyPublished)
}
