// Package service holds the business rules: feed composition, visibility
// gating and ownership checks.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"blogicum/internal/media"
	"blogicum/internal/middleware"
	"blogicum/internal/models"
	"blogicum/internal/observability"
	"blogicum/internal/repository"
	"blogicum/internal/validation"
	"blogicum/internal/visibility"

	"go.opentelemetry.io/otel/attribute"
)

// Clock returns the current instant. Tests replace it to pin "now".
type Clock func() time.Time

// SystemClock is the default Clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// ImageStore persists post images.
type ImageStore interface {
	SavePostImage(in media.Upload) (string, error)
	Delete(rel string) error
}

type scopeKind int

const (
	scopeAllPublished scopeKind = iota
	scopeCategory
	scopeAuthor
)

// Scope names the slice of posts a feed shows.
type Scope struct {
	kind     scopeKind
	slug     string
	authorID uint
}

// AllPublished is the home feed: every public post.
func AllPublished() Scope {
	return Scope{kind: scopeAllPublished}
}

// ByCategory is the feed of one published category.
func ByCategory(slug string) Scope {
	return Scope{kind: scopeCategory, slug: slug}
}

// ByAuthor is a profile feed. The author sees all of their own posts.
func ByAuthor(userID uint) Scope {
	return Scope{kind: scopeAuthor, authorID: userID}
}

func (s Scope) String() string {
	switch s.kind {
	case scopeCategory:
		return "category"
	case scopeAuthor:
		return "author"
	default:
		return "all"
	}
}

// Page is one page of a feed.
type Page struct {
	Items      []*models.Post
	Number     int
	Size       int
	Total      int64
	NumPages   int
	HasPrev    bool
	HasNext    bool
	PrevNumber int
	NextNumber int
	// Category is set for ByCategory feeds.
	Category *models.Category
}

// newPage clamps number into [1, last page]. An empty feed has one empty page.
func newPage(number, size int, total int64) *Page {
	numPages := int((total + int64(size) - 1) / int64(size))
	if numPages < 1 {
		numPages = 1
	}
	if number < 1 {
		number = 1
	}
	if number > numPages {
		number = numPages
	}
	p := &Page{
		Number:   number,
		Size:     size,
		Total:    total,
		NumPages: numPages,
		HasPrev:  number > 1,
		HasNext:  number < numPages,
	}
	if p.HasPrev {
		p.PrevNumber = number - 1
	}
	if p.HasNext {
		p.NextNumber = number + 1
	}
	return p
}

func (p *Page) offset() int {
	return (p.Number - 1) * p.Size
}

// PostInput carries the editable fields of a post.
type PostInput struct {
	Title       string
	Text        string
	PubDate     time.Time
	IsPublished bool
	CategoryID  *uint
	LocationID  *uint
	// Image replaces the current image when set.
	Image *media.Upload
	// ClearImage removes the current image.
	ClearImage bool
}

type PostService struct {
	postRepo     repository.PostRepository
	categoryRepo repository.CategoryRepository
	locationRepo repository.LocationRepository
	images       ImageStore
	pageSize     int
	now          Clock
}

func NewPostService(
	postRepo repository.PostRepository,
	categoryRepo repository.CategoryRepository,
	locationRepo repository.LocationRepository,
	images ImageStore,
	pageSize int,
	now Clock,
) *PostService {
	if pageSize <= 0 {
		pageSize = 10
	}
	if now == nil {
		now = SystemClock
	}
	return &PostService{
		postRepo:     postRepo,
		categoryRepo: categoryRepo,
		locationRepo: locationRepo,
		images:       images,
		pageSize:     pageSize,
		now:          now,
	}
}

// Now returns the service clock reading.
func (s *PostService) Now() time.Time {
	return s.now()
}

// PageSize returns the configured number of posts per page.
func (s *PostService) PageSize() int {
	return s.pageSize
}

// ListPosts returns one page of the feed for scope as seen by viewer.
func (s *PostService) ListPosts(ctx context.Context, scope Scope, viewer visibility.Viewer, page int) (result *Page, err error) {
	ctx, span := observability.StartSpan(ctx, "service", "ListPosts",
		attribute.String("scope", scope.String()), attribute.Int("page", page))
	defer func() { observability.EndSpan(span, err) }()

	now := s.now()
	q := repository.PostQuery{Published: visibility.Published(now)}
	var category *models.Category

	switch scope.kind {
	case scopeCategory:
		category, err = s.categoryRepo.GetBySlug(ctx, scope.slug)
		if err != nil {
			return nil, err
		}
		if !category.IsPublished {
			return nil, models.NewNotFoundError("Category", scope.slug)
		}
		q.CategoryID = &category.ID
	case scopeAuthor:
		authorID := scope.authorID
		q.AuthorID = &authorID
		if viewer.Is(authorID) {
			q.Published = nil
		}
	}

	total, err := s.postRepo.Count(ctx, q)
	if err != nil {
		return nil, err
	}

	result = newPage(page, s.pageSize, total)
	result.Category = category
	q.Limit = result.Size
	q.Offset = result.offset()

	if total == 0 {
		result.Items = []*models.Post{}
		return result, nil
	}

	items, err := s.postRepo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	result.Items = items
	return result, nil
}

// GetPost returns the post if viewer may see it. Hidden and missing posts
// produce the same NOT_FOUND error.
func (s *PostService) GetPost(ctx context.Context, id uint, viewer visibility.Viewer) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanViewPost(viewer, post, s.now()) {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

// GetOwnPost returns the post for an edit or delete form. Non-owners get UNAUTHORIZED.
func (s *PostService) GetOwnPost(ctx context.Context, id uint, viewer visibility.Viewer) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanModify(viewer, post.AuthorID) {
		observability.OwnershipRedirects.WithLabelValues("post").Inc()
		return nil, models.NewUnauthorizedError("You can only change your own posts")
	}
	return post, nil
}

// CreatePost validates in and stores a new post authored by viewer.
func (s *PostService) CreatePost(ctx context.Context, viewer visibility.Viewer, in PostInput) (*models.Post, error) {
	if viewer.Anonymous() {
		return nil, models.NewUnauthorizedError("Login required")
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:       strings.TrimSpace(in.Title),
		Text:        in.Text,
		PubDate:     in.PubDate.UTC(),
		IsPublished: in.IsPublished,
		AuthorID:    viewer.UserID,
		CategoryID:  in.CategoryID,
		LocationID:  in.LocationID,
	}

	if in.Image != nil && s.images != nil {
		rel, err := s.images.SavePostImage(*in.Image)
		if err != nil {
			return nil, err
		}
		post.Image = rel
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		s.removeImage(ctx, post.Image)
		return nil, err
	}
	observability.PostsWritten.WithLabelValues("create").Inc()
	return post, nil
}

// UpdatePost applies in to the post if viewer owns it.
func (s *PostService) UpdatePost(ctx context.Context, viewer visibility.Viewer, id uint, in PostInput) (*models.Post, error) {
	post, err := s.GetOwnPost(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, &in); err != nil {
		return nil, err
	}

	oldImage := post.Image
	post.Title = strings.TrimSpace(in.Title)
	post.Text = in.Text
	post.PubDate = in.PubDate.UTC()
	post.IsPublished = in.IsPublished
	post.CategoryID = in.CategoryID
	post.LocationID = in.LocationID

	switch {
	case in.Image != nil && s.images != nil:
		rel, err := s.images.SavePostImage(*in.Image)
		if err != nil {
			return nil, err
		}
		post.Image = rel
	case in.ClearImage:
		post.Image = ""
	}

	if err := s.postRepo.Update(ctx, post); err != nil {
		if post.Image != oldImage {
			s.removeImage(ctx, post.Image)
		}
		return nil, err
	}
	if post.Image != oldImage {
		s.removeImage(ctx, oldImage)
	}
	observability.PostsWritten.WithLabelValues("update").Inc()
	return s.postRepo.GetByID(ctx, id)
}

// DeletePost removes the post, its comments and its image if viewer owns it.
func (s *PostService) DeletePost(ctx context.Context, viewer visibility.Viewer, id uint) error {
	post, err := s.GetOwnPost(ctx, id, viewer)
	if err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.removeImage(ctx, post.Image)
	observability.PostsWritten.WithLabelValues("delete").Inc()
	return nil
}

func (s *PostService) validate(ctx context.Context, in *PostInput) error {
	fields := map[string]string{}
	if err := validation.ValidateTitle(in.Title); err != nil {
		fields["title"] = err.Error()
	}
	if err := validation.ValidateText(in.Text); err != nil {
		fields["text"] = err.Error()
	}
	if in.PubDate.IsZero() {
		in.PubDate = s.now()
	}
	if in.CategoryID != nil {
		if _, err := s.categoryRepo.GetByID(ctx, *in.CategoryID); err != nil {
			if !models.IsCode(err, models.CodeNotFound) {
				return err
			}
			fields["category"] = "select a valid choice"
		}
	}
	if in.LocationID != nil {
		if _, err := s.locationRepo.GetByID(ctx, *in.LocationID); err != nil {
			if !models.IsCode(err, models.CodeNotFound) {
				return err
			}
			fields["location"] = "select a valid choice"
		}
	}
	if len(fields) > 0 {
		return models.NewFieldValidationError(fields)
	}
	return nil
}

func (s *PostService) removeImage(ctx context.Context, rel string) {
	if rel == "" || s.images == nil {
		return
	}
	if err := s.images.Delete(rel); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to remove post image",
			slog.String("image", rel), slog.String("error", err.Error()))
	}
}
