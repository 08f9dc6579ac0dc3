package server

import (
	"errors"
	"log/slog"
	"strings"

	"blogicum/internal/middleware"
	"blogicum/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	csrfFormField  = "csrf_token"
	csrfContextKey = "csrf"
)

// render executes a page template inside the base layout. It fills the keys
// every page reads: Viewer, CSRFToken, Form, Errors and Path.
func (s *Server) render(c *fiber.Ctx, status int, name string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	if u := currentUser(c); u != nil {
		data["Viewer"] = u
	}
	if token, ok := c.Locals(csrfContextKey).(string); ok {
		data["CSRFToken"] = token
	}
	if _, ok := data["Form"]; !ok {
		data["Form"] = map[string]string{}
	}
	if errs, ok := data["Errors"].(map[string]string); !ok || errs == nil {
		data["Errors"] = map[string]string{}
	}
	data["Path"] = c.Path()
	return c.Status(status).Render(name, data)
}

func (s *Server) staticPage(name, title string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return s.render(c, fiber.StatusOK, name, fiber.Map{"PageTitle": title})
	}
}

func (s *Server) tooManyRequests(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).SendString("Too many requests, please try again later.")
}

// handleError is the fiber ErrorHandler: JSON for /api, error pages otherwise.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	ctx := middleware.WithLocals(c)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(ctx, "request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
		if _, ok := models.AsAppError(err); !ok && fe == nil {
			err = models.NewInternalError(err)
		}
	}

	if isAPIPath(c.Path()) {
		return models.RespondWithError(c, status, err)
	}

	var rerr error
	switch {
	case status == fiber.StatusNotFound:
		rerr = s.render(c, status, "pages/404", fiber.Map{"PageTitle": "Not found"})
	case status >= fiber.StatusInternalServerError:
		rerr = s.render(c, status, "pages/500", fiber.Map{"PageTitle": "Server error"})
	default:
		return c.Status(status).SendString(utils.StatusMessage(status))
	}
	if rerr != nil {
		middleware.Logger.ErrorContext(ctx, "failed to render error page", slog.String("error", rerr.Error()))
		return c.Status(status).SendString(utils.StatusMessage(status))
	}
	return nil
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

// redirectIfNotOwner turns an ownership failure into a 302 to the post page.
// Other errors pass through.
func redirectIfNotOwner(c *fiber.Ctx, err error, postID uint) error {
	if models.IsCode(err, models.CodeUnauthorized) {
		return c.Redirect(postURL(postID), fiber.StatusFound)
	}
	return err
}

// parseID reads a positive integer route parameter. Anything else is a 404,
// the same as an unmatched route.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		return 0, models.NewNotFoundError("Page", c.Params(param))
	}
	return uint(id), nil
}

// pageNumber reads ?page=; invalid values mean the first page.
func pageNumber(c *fiber.Ctx) int {
	page := c.QueryInt("page", 1)
	if page < 1 {
		return 1
	}
	return page
}

// validationFields returns the field messages of a validation error.
func validationFields(err error) (map[string]string, bool) {
	appErr, ok := models.AsAppError(err)
	if !ok || appErr.Code != models.CodeValidation {
		return nil, false
	}
	if appErr.Fields == nil {
		return map[string]string{"form": appErr.Message}, true
	}
	return appErr.Fields, true
}
