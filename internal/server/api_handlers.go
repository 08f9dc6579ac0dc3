package server

import (
	"blogicum/internal/middleware"
	"blogicum/internal/models"
	"blogicum/internal/service"

	"github.com/gofiber/fiber/v2"
)

// PageResponse is the JSON form of a feed page.
type PageResponse struct {
	Items      []*models.Post   `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	Total      int64            `json:"total"`
	NumPages   int              `json:"num_pages"`
	HasNext    bool             `json:"has_next"`
	HasPrev    bool             `json:"has_prev"`
	Category   *models.Category `json:"category,omitempty"`
	AuthorName string           `json:"author,omitempty"`
}

func newPageResponse(p *service.Page) PageResponse {
	for _, post := range p.Items {
		redactPost(post)
	}
	return PageResponse{
		Items:    p.Items,
		Page:     p.Number,
		PageSize: p.Size,
		Total:    p.Total,
		NumPages: p.NumPages,
		HasNext:  p.HasNext,
		HasPrev:  p.HasPrev,
		Category: p.Category,
	}
}

// redactPost drops the author's email from API output.
func redactPost(p *models.Post) {
	p.Author.Email = ""
}

// APIListPosts handles GET /api/posts
// @Summary Home feed
// @Description Published posts, newest first. Scheduled, unpublished and hidden-category posts are excluded.
// @Tags posts
// @Produce json
// @Param page query int false "Page number, clamped to the last page"
// @Success 200 {object} server.PageResponse
// @Router /posts [get]
func (s *Server) APIListPosts(c *fiber.Ctx) error {
	page, err := s.postService.ListPosts(middleware.WithLocals(c), service.AllPublished(), viewerOf(c), pageNumber(c))
	if err != nil {
		return err
	}
	return c.JSON(newPageResponse(page))
}

// APIGetPost handles GET /api/posts/:id
// @Summary Get post
// @Description A post the caller may view. Hidden and missing posts both return 404.
// @Tags posts
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {object} models.Post
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id} [get]
func (s *Server) APIGetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.GetPost(middleware.WithLocals(c), id, viewerOf(c))
	if err != nil {
		return err
	}
	redactPost(post)
	return c.JSON(post)
}

// APIListComments handles GET /api/posts/:id/comments
// @Summary List comments
// @Description Comments of a visible post, oldest first.
// @Tags comments
// @Produce json
// @Param id path int true "Post ID"
// @Success 200 {array} models.Comment
// @Failure 404 {object} models.ErrorResponse
// @Router /posts/{id}/comments [get]
func (s *Server) APIListComments(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	comments, err := s.commentService.ListVisibleComments(middleware.WithLocals(c), id, viewerOf(c))
	if err != nil {
		return err
	}
	for _, comment := range comments {
		comment.Author.Email = ""
	}
	return c.JSON(comments)
}

// APICategoryPosts handles GET /api/category/:slug
// @Summary Category feed
// @Description Published posts of a published category.
// @Tags posts
// @Produce json
// @Param slug path string true "Category slug"
// @Param page query int false "Page number"
// @Success 200 {object} server.PageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /category/{slug} [get]
func (s *Server) APICategoryPosts(c *fiber.Ctx) error {
	page, err := s.postService.ListPosts(middleware.WithLocals(c), service.ByCategory(c.Params("slug")), viewerOf(c), pageNumber(c))
	if err != nil {
		return err
	}
	return c.JSON(newPageResponse(page))
}

// APIProfilePosts handles GET /api/profile/:username
// @Summary Profile feed
// @Description Posts of one author. The author sees all of their posts, others only visible ones.
// @Tags posts
// @Produce json
// @Param username path string true "Username"
// @Param page query int false "Page number"
// @Success 200 {object} server.PageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /profile/{username} [get]
func (s *Server) APIProfilePosts(c *fiber.Ctx) error {
	ctx := middleware.WithLocals(c)
	profile, err := s.userService.GetUserByUsername(ctx, c.Params("username"))
	if err != nil {
		return err
	}
	page, err := s.postService.ListPosts(ctx, service.ByAuthor(profile.ID), viewerOf(c), pageNumber(c))
	if err != nil {
		return err
	}
	resp := newPageResponse(page)
	resp.AuthorName = profile.Username
	return c.JSON(resp)
}

// APICategories handles GET /api/categories: published categories only.
// @Summary List categories
// @Tags reference
// @Produce json
// @Success 200 {array} models.Category
// @Router /categories [get]
func (s *Server) APICategories(c *fiber.Ctx) error {
	categories, err := s.referenceService.Categories(middleware.WithLocals(c), true)
	if err != nil {
		return err
	}
	return c.JSON(categories)
}

// APILocations handles GET /api/locations: published locations only.
// @Summary List locations
// @Tags reference
// @Produce json
// @Success 200 {array} models.Location
// @Router /locations [get]
func (s *Server) APILocations(c *fiber.Ctx) error {
	locations, err := s.referenceService.Locations(middleware.WithLocals(c), true)
	if err != nil {
		return err
	}
	return c.JSON(locations)
}
