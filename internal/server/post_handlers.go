package server

import (
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"blogicum/internal/media"
	"blogicum/internal/middleware"
	"blogicum/internal/models"
	"blogicum/internal/service"
	"blogicum/internal/views"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// Index handles GET /
func (s *Server) Index(c *fiber.Ctx) error {
	page, err := s.postService.ListPosts(middleware.WithLocals(c), service.AllPublished(), viewerOf(c), pageNumber(c))
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "blog/index", fiber.Map{"Page": page})
}

// CategoryPosts handles GET /category/:slug/
func (s *Server) CategoryPosts(c *fiber.Ctx) error {
	page, err := s.postService.ListPosts(middleware.WithLocals(c), service.ByCategory(c.Params("slug")), viewerOf(c), pageNumber(c))
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "blog/category", fiber.Map{
		"PageTitle": page.Category.Title,
		"Category":  page.Category,
		"Page":      page,
	})
}

// Profile handles GET /profile/:username/. The owner also sees hidden posts.
func (s *Server) Profile(c *fiber.Ctx) error {
	ctx := middleware.WithLocals(c)
	profile, err := s.userService.GetUserByUsername(ctx, c.Params("username"))
	if err != nil {
		return err
	}
	viewer := viewerOf(c)
	page, err := s.postService.ListPosts(ctx, service.ByAuthor(profile.ID), viewer, pageNumber(c))
	if err != nil {
		return err
	}
	return s.render(c, fiber.StatusOK, "blog/profile", fiber.Map{
		"PageTitle": profile.Username,
		"Profile":   profile,
		"IsOwner":   viewer.Is(profile.ID),
		"Page":      page,
	})
}

// PostDetail handles GET /posts/:id/. Hidden posts are indistinguishable from missing ones.
func (s *Server) PostDetail(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	return s.renderDetail(c, id, fiber.StatusOK, nil, nil)
}

func (s *Server) renderDetail(c *fiber.Ctx, id uint, status int, form, fieldErrs map[string]string) error {
	ctx := middleware.WithLocals(c)
	viewer := viewerOf(c)
	post, err := s.postService.GetPost(ctx, id, viewer)
	if err != nil {
		return err
	}
	comments, err := s.commentService.ListComments(ctx, post.ID)
	if err != nil {
		return err
	}
	return s.render(c, status, "blog/detail", fiber.Map{
		"PageTitle": post.Title,
		"Post":      post,
		"Comments":  comments,
		"IsOwner":   viewer.Is(post.AuthorID),
		"Form":      form,
		"Errors":    fieldErrs,
	})
}

// CreatePostForm handles GET /posts/create/
func (s *Server) CreatePostForm(c *fiber.Ctx) error {
	return s.renderPostForm(c, fiber.StatusOK, nil, map[string]string{
		"pub_date":     views.FormatInput(s.postService.Now(), s.config.Location()),
		"is_published": "on",
	}, nil)
}

// CreatePost handles POST /posts/create/ and redirects to the author's profile.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	in, form, err := s.readPostForm(c)
	if err == nil {
		_, err = s.postService.CreatePost(middleware.WithLocals(c), viewerOf(c), in)
	}
	if err != nil {
		if fields, ok := validationFields(err); ok {
			return s.renderPostForm(c, fiber.StatusBadRequest, nil, form, fields)
		}
		return err
	}
	return c.Redirect(profileURL(currentUser(c).Username), fiber.StatusFound)
}

// EditPostForm handles GET /posts/:id/edit/
func (s *Server) EditPostForm(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.GetOwnPost(middleware.WithLocals(c), id, viewerOf(c))
	if err != nil {
		return redirectIfNotOwner(c, err, id)
	}
	return s.renderPostForm(c, fiber.StatusOK, post, s.postFormValues(post), nil)
}

// EditPost handles POST /posts/:id/edit/ and redirects to the post.
func (s *Server) EditPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ctx := middleware.WithLocals(c)
	viewer := viewerOf(c)

	// Ownership is decided before the body is looked at.
	post, err := s.postService.GetOwnPost(ctx, id, viewer)
	if err != nil {
		return redirectIfNotOwner(c, err, id)
	}

	in, form, err := s.readPostForm(c)
	if err == nil {
		_, err = s.postService.UpdatePost(ctx, viewer, id, in)
	}
	if err != nil {
		if fields, ok := validationFields(err); ok {
			return s.renderPostForm(c, fiber.StatusBadRequest, post, form, fields)
		}
		return redirectIfNotOwner(c, err, id)
	}
	return c.Redirect(postURL(id), fiber.StatusFound)
}

// DeletePostForm handles GET /posts/:id/delete/
func (s *Server) DeletePostForm(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.GetOwnPost(middleware.WithLocals(c), id, viewerOf(c))
	if err != nil {
		return redirectIfNotOwner(c, err, id)
	}
	return s.render(c, fiber.StatusOK, "blog/create", fiber.Map{
		"PageTitle": "Delete post",
		"Post":      post,
		"Deleting":  true,
	})
}

// DeletePost handles POST /posts/:id/delete/ and redirects to the author's profile.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.postService.DeletePost(middleware.WithLocals(c), viewerOf(c), id); err != nil {
		return redirectIfNotOwner(c, err, id)
	}
	return c.Redirect(profileURL(currentUser(c).Username), fiber.StatusFound)
}

func (s *Server) renderPostForm(c *fiber.Ctx, status int, post *models.Post, form, fieldErrs map[string]string) error {
	ctx := middleware.WithLocals(c)
	categories, err := s.referenceService.Categories(ctx, false)
	if err != nil {
		return err
	}
	locations, err := s.referenceService.Locations(ctx, false)
	if err != nil {
		return err
	}

	title := "New post"
	data := fiber.Map{
		"Form":       form,
		"Errors":     fieldErrs,
		"FormError":  fieldErrs["form"],
		"Categories": categories,
		"Locations":  locations,
	}
	if post != nil {
		title = "Edit post"
		data["Post"] = post
	}
	data["PageTitle"] = title
	return s.render(c, status, "blog/create", data)
}

func (s *Server) postFormValues(post *models.Post) map[string]string {
	form := map[string]string{
		"title":    post.Title,
		"text":     post.Text,
		"pub_date": views.FormatInput(post.PubDate, s.config.Location()),
	}
	if post.IsPublished {
		form["is_published"] = "on"
	}
	if post.CategoryID != nil {
		form["category"] = strconv.FormatUint(uint64(*post.CategoryID), 10)
	}
	if post.LocationID != nil {
		form["location"] = strconv.FormatUint(uint64(*post.LocationID), 10)
	}
	return form
}

// readPostForm decodes the post form. Undecodable fields produce a
// VALIDATION_ERROR; the echo of the submitted values is always returned.
func (s *Server) readPostForm(c *fiber.Ctx) (service.PostInput, map[string]string, error) {
	form := map[string]string{
		"title":        c.FormValue("title"),
		"text":         c.FormValue("text"),
		"pub_date":     c.FormValue("pub_date"),
		"category":     c.FormValue("category"),
		"location":     c.FormValue("location"),
		"is_published": c.FormValue("is_published"),
	}
	in := service.PostInput{
		Title:       form["title"],
		Text:        form["text"],
		IsPublished: isChecked(form["is_published"]),
		ClearImage:  isChecked(c.FormValue("image-clear")),
	}
	fields := map[string]string{}

	pubDate, err := views.ParseInput(form["pub_date"], s.config.Location())
	if err != nil {
		fields["pub_date"] = "enter a valid date/time"
	}
	in.PubDate = pubDate

	if in.CategoryID, err = optionalID(form["category"]); err != nil {
		fields["category"] = "select a valid choice"
	}
	if in.LocationID, err = optionalID(form["location"]); err != nil {
		fields["location"] = "select a valid choice"
	}

	upload, err := readUpload(c, "image")
	if err != nil {
		fields["image"] = "the submitted file could not be read"
	}
	in.Image = upload

	if len(fields) > 0 {
		return in, form, models.NewFieldValidationError(fields)
	}
	return in, form, nil
}

func isChecked(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

func optionalID(v string) (*uint, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil || n == 0 {
		return nil, errors.New("invalid id")
	}
	id := uint(n)
	return &id, nil
}

// readUpload returns nil when the field is absent or empty.
func readUpload(c *fiber.Ctx, field string) (*media.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
			return nil, nil
		}
		return nil, err
	}
	if fh.Size == 0 && fh.Filename == "" {
		return nil, nil
	}
	content, err := readFileHeader(fh)
	if err != nil {
		return nil, err
	}
	return &media.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	}, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}
