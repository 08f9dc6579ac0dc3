package server

import (
	"blogicum/internal/middleware"
	"blogicum/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AddComment handles POST /posts/:id/comment/
func (s *Server) AddComment(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	text := c.FormValue("text")
	_, err = s.commentService.CreateComment(middleware.WithLocals(c), viewerOf(c), service.CreateCommentInput{
		PostID: id,
		Text:   text,
	})
	if err != nil {
		if fields, ok := validationFields(err); ok {
			return s.renderDetail(c, id, fiber.StatusBadRequest, map[string]string{"text": text}, fields)
		}
		return err
	}
	return c.Redirect(postURL(id), fiber.StatusFound)
}

// EditCommentForm handles GET /posts/:id/edit_comment/:commentId/
func (s *Server) EditCommentForm(c *fiber.Ctx) error {
	postID, commentID, err := commentParams(c)
	if err != nil {
		return err
	}
	comment, err := s.commentService.GetOwnComment(middleware.WithLocals(c), viewerOf(c), postID, commentID)
	if err != nil {
		return redirectIfNotOwner(c, err, postID)
	}
	return s.render(c, fiber.StatusOK, "blog/comment", fiber.Map{
		"PageTitle": "Edit comment",
		"Comment":   comment,
		"Form":      map[string]string{"text": comment.Text},
	})
}

// EditComment handles POST /posts/:id/edit_comment/:commentId/
func (s *Server) EditComment(c *fiber.Ctx) error {
	postID, commentID, err := commentParams(c)
	if err != nil {
		return err
	}
	ctx := middleware.WithLocals(c)
	viewer := viewerOf(c)
	text := c.FormValue("text")

	_, err = s.commentService.UpdateComment(ctx, viewer, service.UpdateCommentInput{
		PostID:    postID,
		CommentID: commentID,
		Text:      text,
	})
	if err != nil {
		if fields, ok := validationFields(err); ok {
			comment, gerr := s.commentService.GetOwnComment(ctx, viewer, postID, commentID)
			if gerr != nil {
				return redirectIfNotOwner(c, gerr, postID)
			}
			return s.render(c, fiber.StatusBadRequest, "blog/comment", fiber.Map{
				"PageTitle": "Edit comment",
				"Comment":   comment,
				"Form":      map[string]string{"text": text},
				"Errors":    fields,
			})
		}
		return redirectIfNotOwner(c, err, postID)
	}
	return c.Redirect(postURL(postID), fiber.StatusFound)
}

// DeleteCommentForm handles GET /posts/:id/delete_comment/:commentId/
func (s *Server) DeleteCommentForm(c *fiber.Ctx) error {
	postID, commentID, err := commentParams(c)
	if err != nil {
		return err
	}
	comment, err := s.commentService.GetOwnComment(middleware.WithLocals(c), viewerOf(c), postID, commentID)
	if err != nil {
		return redirectIfNotOwner(c, err, postID)
	}
	return s.render(c, fiber.StatusOK, "blog/comment", fiber.Map{
		"PageTitle": "Delete comment",
		"Comment":   comment,
		"Deleting":  true,
	})
}

// DeleteComment handles POST /posts/:id/delete_comment/:commentId/
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	postID, commentID, err := commentParams(c)
	if err != nil {
		return err
	}
	if err := s.commentService.DeleteComment(middleware.WithLocals(c), viewerOf(c), postID, commentID); err != nil {
		return redirectIfNotOwner(c, err, postID)
	}
	return c.Redirect(postURL(postID), fiber.StatusFound)
}

func commentParams(c *fiber.Ctx) (postID, commentID uint, err error) {
	if postID, err = parseID(c, "id"); err != nil {
		return 0, 0, err
	}
	if commentID, err = parseID(c, "commentId"); err != nil {
		return 0, 0, err
	}
	return postID, commentID, nil
}
