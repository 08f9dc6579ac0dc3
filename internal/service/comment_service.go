package service

import (
	"context"

	"blogicum/internal/models"
	"blogicum/internal/observability"
	"blogicum/internal/repository"
	"blogicum/internal/validation"
	"blogicum/internal/visibility"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type CommentService struct {
	commentRepo repository.CommentRepository
	postRepo    repository.PostRepository
	tx          repository.Transactor
	now         Clock
}

type CreateCommentInput struct {
	PostID uint
	Text   string
}

type UpdateCommentInput struct {
	PostID    uint
	CommentID uint
	Text      string
}

func NewCommentService(
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	tx repository.Transactor,
	now Clock,
) *CommentService {
	if now == nil {
		now = SystemClock
	}
	return &CommentService{
		commentRepo: commentRepo,
		postRepo:    postRepo,
		tx:          tx,
		now:         now,
	}
}

// ListComments returns the comments of a post the caller already may see, oldest first.
func (s *CommentService) ListComments(ctx context.Context, postID uint) ([]*models.Comment, error) {
	return s.commentRepo.ListByPost(ctx, postID)
}

// ListVisibleComments returns the comments of post postID if viewer may see the post.
func (s *CommentService) ListVisibleComments(ctx context.Context, postID uint, viewer visibility.Viewer) ([]*models.Comment, error) {
	if _, err := s.visiblePost(ctx, s.postRepo, postID, viewer); err != nil {
		return nil, err
	}
	return s.commentRepo.ListByPost(ctx, postID)
}

// CreateComment binds a comment to viewer and the post and stores it. The post
// is re-read inside the same transaction as the insert.
func (s *CommentService) CreateComment(ctx context.Context, viewer visibility.Viewer, in CreateCommentInput) (comment *models.Comment, err error) {
	ctx, span := observability.StartSpan(ctx, "service", "CreateComment", attribute.Int64("post_id", int64(in.PostID)))
	defer func() { observability.EndSpan(span, err) }()

	if viewer.Anonymous() {
		return nil, models.NewUnauthorizedError("Login required")
	}
	if verr := validation.ValidateCommentText(in.Text); verr != nil {
		// The parent must be visible before the form is re-rendered.
		if _, gerr := s.visiblePost(ctx, s.postRepo, in.PostID, viewer); gerr != nil {
			return nil, gerr
		}
		return nil, models.NewFieldValidationError(map[string]string{"text": verr.Error()})
	}

	comment = &models.Comment{
		PostID:   in.PostID,
		AuthorID: viewer.UserID,
		Text:     in.Text,
	}
	err = s.tx.WithinTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.visiblePost(ctx, s.postRepo.WithTx(tx), in.PostID, viewer); err != nil {
			return err
		}
		return s.commentRepo.WithTx(tx).Create(ctx, comment)
	})
	if err != nil {
		if _, ok := models.AsAppError(err); !ok {
			err = models.NewInternalError(err)
		}
		return nil, err
	}
	observability.CommentsWritten.WithLabelValues("create").Inc()
	return comment, nil
}

// GetOwnComment returns the comment for an edit or delete form.
// The post must be visible and own the comment (NOT_FOUND otherwise);
// viewer must be its author (UNAUTHORIZED otherwise).
func (s *CommentService) GetOwnComment(ctx context.Context, viewer visibility.Viewer, postID, commentID uint) (*models.Comment, error) {
	post, err := s.visiblePost(ctx, s.postRepo, postID, viewer)
	if err != nil {
		return nil, err
	}
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !visibility.CanViewComment(viewer, comment, post, s.now()) {
		return nil, models.NewNotFoundError("Comment", commentID)
	}
	if !visibility.CanModify(viewer, comment.AuthorID) {
		observability.OwnershipRedirects.WithLabelValues("comment").Inc()
		return nil, models.NewUnauthorizedError("You can only change your own comments")
	}
	return comment, nil
}

func (s *CommentService) UpdateComment(ctx context.Context, viewer visibility.Viewer, in UpdateCommentInput) (*models.Comment, error) {
	comment, err := s.GetOwnComment(ctx, viewer, in.PostID, in.CommentID)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateCommentText(in.Text); err != nil {
		return nil, models.NewFieldValidationError(map[string]string{"text": err.Error()})
	}

	comment.Text = in.Text
	if err := s.commentRepo.Update(ctx, comment); err != nil {
		return nil, err
	}
	observability.CommentsWritten.WithLabelValues("update").Inc()
	return comment, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, viewer visibility.Viewer, postID, commentID uint) error {
	if _, err := s.GetOwnComment(ctx, viewer, postID, commentID); err != nil {
		return err
	}
	if err := s.commentRepo.Delete(ctx, commentID); err != nil {
		return err
	}
	observability.CommentsWritten.WithLabelValues("delete").Inc()
	return nil
}

func (s *CommentService) visiblePost(ctx context.Context, posts repository.PostRepository, postID uint, viewer visibility.Viewer) (*models.Post, error) {
	post, err := posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !visibility.CanViewPost(viewer, post, s.now()) {
		return nil, models.NewNotFoundError("Post", postID)
	}
	return post, nil
}
