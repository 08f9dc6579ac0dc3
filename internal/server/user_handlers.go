package server

import (
	"blogicum/internal/middleware"
	"blogicum/internal/service"

	"github.com/gofiber/fiber/v2"
)

// EditProfileForm handles GET /profile/edit-profile/
func (s *Server) EditProfileForm(c *fiber.Ctx) error {
	user := currentUser(c)
	return s.render(c, fiber.StatusOK, "blog/user", fiber.Map{
		"PageTitle": "Edit profile",
		"Form": map[string]string{
			"username":   user.Username,
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
		},
	})
}

// EditProfile handles POST /profile/edit-profile/ and redirects to the profile.
func (s *Server) EditProfile(c *fiber.Ctx) error {
	in := service.UpdateProfileInput{
		Username:  c.FormValue("username"),
		Email:     c.FormValue("email"),
		FirstName: c.FormValue("first_name"),
		LastName:  c.FormValue("last_name"),
	}
	user, err := s.userService.UpdateProfile(middleware.WithLocals(c), viewerOf(c), in)
	if err != nil {
		if fields, ok := validationFields(err); ok {
			return s.render(c, fiber.StatusBadRequest, "blog/user", fiber.Map{
				"PageTitle": "Edit profile",
				"Form": map[string]string{
					"username":   in.Username,
					"email":      in.Email,
					"first_name": in.FirstName,
					"last_name":  in.LastName,
				},
				"Errors":    fields,
				"FormError": fields["form"],
			})
		}
		return err
	}
	return c.Redirect(profileURL(user.Username), fiber.StatusFound)
}
