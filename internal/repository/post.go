package repository

import (
	"context"

	"blogicum/internal/models"
	"blogicum/internal/visibility"

	"gorm.io/gorm"
)

// PostQuery selects a slice of the post feed. Nil fields do not filter.
type PostQuery struct {
	AuthorID   *uint
	CategoryID *uint
	// Published restricts the result to posts that are public at Published.Now.
	Published *visibility.Filter
	Limit     int
	Offset    int
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	WithTx(tx *gorm.DB) PostRepository
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context, q PostQuery) ([]*models.Post, error)
	Count(ctx context.Context, q PostQuery) (int64, error)
	Update(ctx context.Context, post *models.Post) error
	Delete(ctx context.Context, id uint) error
}

// postRepository implements PostRepository
type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) WithTx(tx *gorm.DB) PostRepository {
	if tx == nil {
		return r
	}
	return &postRepository{db: tx}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	post.PubDate = post.PubDate.UTC()
	if err := r.db.WithContext(ctx).Omit("Author", "Category", "Location").Create(post).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// withDetails selects posts together with author, category and location in
// one statement and adds the comment count as a correlated subquery.
func (r *postRepository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Post{}).
		Select("posts.*, (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id) AS comment_count").
		Joins("Author").
		Joins("Category").
		Joins("Location")
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.withDetails(ctx).Where("posts.id = ?", id).Take(&post).Error; err != nil {
		return nil, notFoundOr(err, "Post", id)
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, q PostQuery) ([]*models.Post, error) {
	var posts []*models.Post
	db := applyPostQuery(r.withDetails(ctx), q).
		Order("posts.pub_date DESC").
		Order("posts.id DESC")
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Offset > 0 {
		db = db.Offset(q.Offset)
	}
	if err := db.Find(&posts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return posts, nil
}

func (r *postRepository) Count(ctx context.Context, q PostQuery) (int64, error) {
	var total int64
	if err := applyPostQuery(r.db.WithContext(ctx).Model(&models.Post{}), q).Count(&total).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return total, nil
}

// applyPostQuery adds the scope filters. Columns are qualified because the
// detail query joins tables that share column names.
func applyPostQuery(db *gorm.DB, q PostQuery) *gorm.DB {
	if q.AuthorID != nil {
		db = db.Where("posts.author_id = ?", *q.AuthorID)
	}
	if q.CategoryID != nil {
		db = db.Where("posts.category_id = ?", *q.CategoryID)
	}
	if q.Published != nil {
		db = db.
			Where("posts.is_published = ?", true).
			Where("posts.pub_date <= ?", q.Published.Now.UTC()).
			Where("(posts.category_id IS NULL OR posts.category_id IN (SELECT id FROM categories WHERE categories.is_published = ?))", true)
	}
	return db
}

// Update writes the editable columns of post. Author and creation time never change.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	post.PubDate = post.PubDate.UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Post{ID: post.ID}).
		Select("title", "text", "pub_date", "is_published", "location_id", "category_id", "image").
		Updates(post)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	return nil
}

// Delete removes the post and its comments.
func (r *postRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Post", id)
		}
		return nil
	})
}
