package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"blogicum/internal/cache"
	"blogicum/internal/middleware"
	"blogicum/internal/models"
	"blogicum/internal/service"
	"blogicum/internal/visibility"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionCookie = "blogicum_session"
	tokenIssuer   = "blogicum"
	tokenAudience = "blogicum-web"

	localUser   = "user"
	localClaims = "claims"
)

type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// issueToken signs a session token for user.
func (s *Server) issueToken(user *models.User, now time.Time) (string, *sessionClaims, error) {
	if s.config.JWTSecret == "" {
		return "", nil, errors.New("JWT secret not configured")
	}
	claims := &sessionClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (s *Server) parseToken(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// tokenFromRequest prefers the session cookie and falls back to a Bearer header.
func tokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies(sessionCookie); token != "" {
		return token
	}
	parts := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// loadViewer resolves the session, if any, into locals "userID", "user" and "claims".
// Invalid, revoked or orphaned tokens leave the request anonymous.
func (s *Server) loadViewer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := tokenFromRequest(c)
		if raw == "" {
			return c.Next()
		}

		claims, err := s.parseToken(raw)
		if err != nil {
			s.clearSession(c)
			return c.Next()
		}

		revoked, err := cache.IsTokenRevoked(c.UserContext(), s.redis, claims.ID)
		if err != nil {
			middleware.Logger.WarnContext(c.UserContext(), "token revocation check failed",
				slog.String("error", err.Error()))
		} else if revoked {
			s.clearSession(c)
			return c.Next()
		}

		userID, err := strconv.ParseUint(claims.Subject, 10, 32)
		if err != nil {
			s.clearSession(c)
			return c.Next()
		}
		user, err := s.userRepo.GetByID(c.UserContext(), uint(userID))
		if err != nil {
			if !models.IsCode(err, models.CodeNotFound) {
				return err
			}
			s.clearSession(c)
			return c.Next()
		}

		c.Locals("userID", user.ID)
		c.Locals(localUser, user)
		c.Locals(localClaims, claims)
		return c.Next()
	}
}

// LoginRequired redirects anonymous visitors to the login page and back afterwards.
func (s *Server) LoginRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if viewerOf(c).Anonymous() {
			return c.Redirect("/auth/login/?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
		}
		return c.Next()
	}
}

func viewerOf(c *fiber.Ctx) visibility.Viewer {
	if uid, ok := c.Locals("userID").(uint); ok {
		return visibility.Viewer{UserID: uid}
	}
	return visibility.Viewer{}
}

func currentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(localUser).(*models.User)
	return u
}

func (s *Server) startSession(c *fiber.Ctx, user *models.User) error {
	token, claims, err := s.issueToken(user, time.Now())
	if err != nil {
		return models.NewInternalError(err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HTTPOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

func (s *Server) clearSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// safeNext accepts only local absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

// LoginForm handles GET /auth/login/
func (s *Server) LoginForm(c *fiber.Ctx) error {
	if !viewerOf(c).Anonymous() {
		return c.Redirect("/", fiber.StatusFound)
	}
	return s.render(c, fiber.StatusOK, "registration/login", fiber.Map{
		"PageTitle": "Log in",
		"Next":      safeNext(c.Query("next")),
	})
}

// Login handles POST /auth/login/
func (s *Server) Login(c *fiber.Ctx) error {
	ctx := middleware.WithLocals(c)
	username := c.FormValue("username")
	next := safeNext(c.FormValue("next"))

	user, err := s.userService.Authenticate(ctx, username, c.FormValue("password"))
	if err != nil {
		if appErr, ok := models.AsAppError(err); ok && appErr.Code == models.CodeValidation {
			return s.render(c, fiber.StatusBadRequest, "registration/login", fiber.Map{
				"PageTitle": "Log in",
				"Next":      next,
				"Form":      map[string]string{"username": username},
				"FormError": appErr.Fields["form"],
			})
		}
		return err
	}

	if err := s.startSession(c, user); err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "user logged in", slog.Uint64("user_id", uint64(user.ID)))
	if next == "" {
		next = "/"
	}
	return c.Redirect(next, fiber.StatusFound)
}

// RegistrationForm handles GET /auth/registration/
func (s *Server) RegistrationForm(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, "registration/registration_form", fiber.Map{"PageTitle": "Sign up"})
}

// Register handles POST /auth/registration/ and logs the new user in.
func (s *Server) Register(c *fiber.Ctx) error {
	ctx := middleware.WithLocals(c)
	in := service.RegisterInput{
		Username:        c.FormValue("username"),
		Email:           c.FormValue("email"),
		FirstName:       c.FormValue("first_name"),
		LastName:        c.FormValue("last_name"),
		Password:        c.FormValue("password1"),
		PasswordConfirm: c.FormValue("password2"),
	}

	user, err := s.userService.Register(ctx, in)
	if err != nil {
		if appErr, ok := models.AsAppError(err); ok && appErr.Code == models.CodeValidation {
			return s.render(c, fiber.StatusBadRequest, "registration/registration_form", fiber.Map{
				"PageTitle": "Sign up",
				"Form": map[string]string{
					"username":   in.Username,
					"email":      in.Email,
					"first_name": in.FirstName,
					"last_name":  in.LastName,
				},
				"Errors":    appErr.Fields,
				"FormError": formErrorFor(appErr),
			})
		}
		return err
	}

	if err := s.startSession(c, user); err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "user registered", slog.Uint64("user_id", uint64(user.ID)))
	return c.Redirect("/", fiber.StatusFound)
}

// Logout handles POST /auth/logout/: the token is revoked until it would expire.
func (s *Server) Logout(c *fiber.Ctx) error {
	if claims, ok := c.Locals(localClaims).(*sessionClaims); ok && claims.ExpiresAt != nil {
		if err := cache.RevokeToken(c.UserContext(), s.redis, claims.ID, claims.ExpiresAt.Time); err != nil {
			middleware.Logger.WarnContext(middleware.WithLocals(c), "failed to revoke token",
				slog.String("error", err.Error()))
		}
	}
	s.clearSession(c)
	return c.Redirect("/", fiber.StatusFound)
}

// formErrorFor returns the message of a validation error that names no field.
func formErrorFor(appErr *models.AppError) string {
	if len(appErr.Fields) == 0 {
		return appErr.Message
	}
	if msg, ok := appErr.Fields["form"]; ok {
		return msg
	}
	return ""
}

func postURL(id uint) string {
	return fmt.Sprintf("/posts/%d/", id)
}

func profileURL(username string) string {
	return "/profile/" + url.PathEscape(username) + "/"
}
