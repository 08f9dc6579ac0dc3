// Package server contains the HTML and JSON handlers of the blog.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "blogicum/docs" // swagger docs
	"blogicum/internal/config"
	"blogicum/internal/database"
	"blogicum/internal/media"
	"blogicum/internal/middleware"
	"blogicum/internal/repository"
	"blogicum/internal/service"
	"blogicum/internal/views"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config           *config.Config
	db               *gorm.DB
	redis            *redis.Client
	app              *fiber.App
	promMiddleware   *fiberprometheus.FiberPrometheus
	rateLimiter      *middleware.RateLimiter
	media            *media.Store
	userRepo         repository.UserRepository
	postService      *service.PostService
	commentService   *service.CommentService
	userService      *service.UserService
	referenceService *service.ReferenceService
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil: rate limits then fail open and logout only drops the cookie.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	locationRepo := repository.NewLocationRepository(db)

	store := media.NewStore(cfg.MediaRoot, cfg.MediaURL, cfg.ImageMaxUploadSizeMB)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("blogicum"),
		rateLimiter:    middleware.NewRateLimiter(redisClient, cfg.Env),
		media:          store,
		userRepo:       userRepo,
	}
	s.postService = service.NewPostService(postRepo, categoryRepo, locationRepo, store, cfg.PageSize, service.SystemClock)
	s.commentService = service.NewCommentService(commentRepo, postRepo, repository.NewTransactor(db), service.SystemClock)
	s.userService = service.NewUserService(userRepo)
	s.referenceService = service.NewReferenceService(categoryRepo, locationRepo)
	return s, nil
}

// NewApp builds the fiber application with views, middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Blogicum",
		BodyLimit:    (s.config.ImageMaxUploadSizeMB + 1) * 1024 * 1024,
		Views:        views.NewEngine(views.Options{Location: s.config.Location(), MediaURL: s.config.MediaURL}),
		ViewsLayout:  views.Layout,
		ErrorHandler: s.handleError,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware(isOperationalPath))
	}

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		// Post images are served from the same origin without CORP headers.
		CrossOriginEmbedderPolicy: "unsafe-none",
	}))

	// Resolve the viewer before the logger and rate limits read userID.
	app.Use(s.loadViewer())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.StructuredLogger())

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return isOperationalPath(c.Path()) || strings.HasPrefix(c.Path(), s.config.MediaURL+"/")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).SendString("Too many requests, please try again later.")
		},
	}))

	if s.config.CSRFEnabled {
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:" + csrfFormField,
			CookieName:     "csrftoken",
			CookieSameSite: "Lax",
			CookieSecure:   s.config.CookieSecure,
			CookieHTTPOnly: true,
			Expiration:     12 * time.Hour,
			ContextKey:     csrfContextKey,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				middleware.Logger.WarnContext(middleware.WithLocals(c), "csrf check failed",
					slog.String("path", c.Path()), slog.String("error", err.Error()))
				return s.render(c, fiber.StatusForbidden, "pages/403csrf", fiber.Map{"PageTitle": "Forbidden"})
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Static(s.config.MediaURL, s.media.Root(), fiber.Static{ByteRange: true, MaxAge: 3600})

	app.Get("/", s.Index)
	app.Get("/category/:slug", s.CategoryPosts)

	profile := app.Group("/profile")
	// Before /:username so that the literal segment wins.
	profile.Get("/edit-profile", s.LoginRequired(), s.EditProfileForm)
	profile.Post("/edit-profile", s.LoginRequired(), s.EditProfile)
	profile.Get("/:username", s.Profile)

	posts := app.Group("/posts")
	posts.Get("/create", s.LoginRequired(), s.CreatePostForm)
	posts.Post("/create", s.LoginRequired(), s.CreatePost)
	posts.Get("/:id", s.PostDetail)
	posts.Get("/:id/edit", s.LoginRequired(), s.EditPostForm)
	posts.Post("/:id/edit", s.LoginRequired(), s.EditPost)
	posts.Get("/:id/delete", s.LoginRequired(), s.DeletePostForm)
	posts.Post("/:id/delete", s.LoginRequired(), s.DeletePost)
	posts.Post("/:id/comment", s.LoginRequired(),
		s.rateLimiter.Handler("comment", 10, time.Minute, s.tooManyRequests), s.AddComment)
	posts.Get("/:id/edit_comment/:commentId", s.LoginRequired(), s.EditCommentForm)
	posts.Post("/:id/edit_comment/:commentId", s.LoginRequired(), s.EditComment)
	posts.Get("/:id/delete_comment/:commentId", s.LoginRequired(), s.DeleteCommentForm)
	posts.Post("/:id/delete_comment/:commentId", s.LoginRequired(), s.DeleteComment)

	auth := app.Group("/auth")
	auth.Get("/registration", s.RegistrationForm)
	auth.Post("/registration",
		s.rateLimiter.Handler("registration", 3, 10*time.Minute, s.tooManyRequests), s.Register)
	auth.Get("/login", s.LoginForm)
	auth.Post("/login",
		s.rateLimiter.Handler("login", 10, 5*time.Minute, s.tooManyRequests), s.Login)
	auth.Post("/logout", s.Logout)

	pages := app.Group("/pages")
	pages.Get("/about", s.staticPage("pages/about", "About"))
	pages.Get("/rules", s.staticPage("pages/rules", "Rules"))

	api := app.Group("/api")
	api.Get("/docs/*", swagger.HandlerDefault)
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "Blogicum Metrics Dashboard"}))
	api.Get("/posts", s.APIListPosts)
	api.Get("/posts/:id/comments", s.APIListComments)
	api.Get("/posts/:id", s.APIGetPost)
	api.Get("/category/:slug", s.APICategoryPosts)
	api.Get("/profile/:username", s.APIProfilePosts)
	api.Get("/categories", s.APICategories)
	api.Get("/locations", s.APILocations)
}

func isOperationalPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics" || strings.HasPrefix(path, "/api/metrics")
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and redis reachability. Redis is optional:
// without a client the check reports "disabled" and does not fail.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start builds the app and listens on the configured port.
func (s *Server) Start() error {
	s.app = s.NewApp()
	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, then closes the database and redis.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := database.Close(s.db); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	middleware.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
