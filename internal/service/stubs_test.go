package service

import (
	"context"
	"testing"

	"blogicum/internal/media"
	"blogicum/internal/models"
	"blogicum/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// postRepoStub is a stub for repository.PostRepository.
type postRepoStub struct {
	createFn  func(context.Context, *models.Post) error
	getByIDFn func(context.Context, uint) (*models.Post, error)
	listFn    func(context.Context, repository.PostQuery) ([]*models.Post, error)
	countFn   func(context.Context, repository.PostQuery) (int64, error)
	updateFn  func(context.Context, *models.Post) error
	deleteFn  func(context.Context, uint) error
}

func (s *postRepoStub) WithTx(*gorm.DB) repository.PostRepository { return s }
func (s *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	return s.createFn(ctx, post)
}
func (s *postRepoStub) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return s.getByIDFn(ctx, id)
}
func (s *postRepoStub) List(ctx context.Context, q repository.PostQuery) ([]*models.Post, error) {
	return s.listFn(ctx, q)
}
func (s *postRepoStub) Count(ctx context.Context, q repository.PostQuery) (int64, error) {
	return s.countFn(ctx, q)
}
func (s *postRepoStub) Update(ctx context.Context, post *models.Post) error {
	return s.updateFn(ctx, post)
}
func (s *postRepoStub) Delete(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func noopPostRepo() *postRepoStub {
	return &postRepoStub{
		createFn:  func(_ context.Context, _ *models.Post) error { return nil },
		getByIDFn: func(_ context.Context, id uint) (*models.Post, error) { return nil, models.NewNotFoundError("Post", id) },
		listFn:    func(_ context.Context, _ repository.PostQuery) ([]*models.Post, error) { return nil, nil },
		countFn:   func(_ context.Context, _ repository.PostQuery) (int64, error) { return 0, nil },
		updateFn:  func(_ context.Context, _ *models.Post) error { return nil },
		deleteFn:  func(_ context.Context, _ uint) error { return nil },
	}
}

// categoryRepoStub is a map-backed repository.CategoryRepository.
type categoryRepoStub struct {
	byID map[uint]*models.Category
}

func newCategoryRepoStub(categories ...*models.Category) *categoryRepoStub {
	s := &categoryRepoStub{byID: map[uint]*models.Category{}}
	for _, c := range categories {
		s.byID[c.ID] = c
	}
	return s
}

func (s *categoryRepoStub) Create(_ context.Context, c *models.Category) error {
	c.ID = uint(len(s.byID) + 1)
	s.byID[c.ID] = c
	return nil
}
func (s *categoryRepoStub) GetByID(_ context.Context, id uint) (*models.Category, error) {
	if c, ok := s.byID[id]; ok {
		return c, nil
	}
	return nil, models.NewNotFoundError("Category", id)
}
func (s *categoryRepoStub) GetBySlug(_ context.Context, slug string) (*models.Category, error) {
	for _, c := range s.byID {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, models.NewNotFoundError("Category", slug)
}
func (s *categoryRepoStub) List(_ context.Context, _ bool) ([]models.Category, error) {
	out := make([]models.Category, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, *c)
	}
	return out, nil
}
func (s *categoryRepoStub) Delete(_ context.Context, id uint) error {
	delete(s.byID, id)
	return nil
}

// locationRepoStub is a map-backed repository.LocationRepository.
type locationRepoStub struct {
	byID map[uint]*models.Location
}

func newLocationRepoStub(locations ...*models.Location) *locationRepoStub {
	s := &locationRepoStub{byID: map[uint]*models.Location{}}
	for _, l := range locations {
		s.byID[l.ID] = l
	}
	return s
}

func (s *locationRepoStub) Create(_ context.Context, l *models.Location) error {
	l.ID = uint(len(s.byID) + 1)
	s.byID[l.ID] = l
	return nil
}
func (s *locationRepoStub) GetByID(_ context.Context, id uint) (*models.Location, error) {
	if l, ok := s.byID[id]; ok {
		return l, nil
	}
	return nil, models.NewNotFoundError("Location", id)
}
func (s *locationRepoStub) List(_ context.Context, _ bool) ([]models.Location, error) {
	out := make([]models.Location, 0, len(s.byID))
	for _, l := range s.byID {
		out = append(out, *l)
	}
	return out, nil
}
func (s *locationRepoStub) Delete(_ context.Context, id uint) error {
	delete(s.byID, id)
	return nil
}

// imageStoreStub records saved and deleted images.
type imageStoreStub struct {
	saved   []string
	deleted []string
	saveErr error
}

func (s *imageStoreStub) SavePostImage(in media.Upload) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	rel := "posts/" + in.Filename + ".webp"
	s.saved = append(s.saved, rel)
	return rel, nil
}

func (s *imageStoreStub) Delete(rel string) error {
	s.deleted = append(s.deleted, rel)
	return nil
}

func assertCode(t *testing.T, err error, code string) *models.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := models.AsAppError(err)
	require.True(t, ok, "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Message)
	return appErr
}

func assertValidationError(t *testing.T, err error, field string) {
	t.Helper()
	appErr := assertCode(t, err, models.CodeValidation)
	require.Contains(t, appErr.Fields, field)
}

func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeUnauthorized)
}
