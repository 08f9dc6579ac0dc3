// Package seed fills a database with reference data and demo content.
// It is intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"blogicum/internal/middleware"
	"blogicum/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DemoPassword is the password of every generated user.
const DemoPassword = "blogicum-demo"

// Options controls how much demo content is generated.
type Options struct {
	Users    int
	Posts    int
	Comments int
	// DryRun generates everything but writes nothing.
	DryRun bool
	// SkipBcrypt stores a cheap hash; for tests only.
	SkipBcrypt bool
	// MaxDays spreads publication dates over the last MaxDays days.
	MaxDays int
	// RandSeed makes the output reproducible when non-zero.
	RandSeed int64
}

// Summary reports what a run produced.
type Summary struct {
	Categories int
	Locations  int
	Users      int
	Posts      int
	Comments   int
}

// Seeder generates demo data with gofakeit.
type Seeder struct {
	db     *gorm.DB
	opts   Options
	faker  *gofakeit.Faker
	now    time.Time
	nextID uint
}

// NewSeeder returns a Seeder writing to db.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}
	return &Seeder{
		db:     db,
		opts:   opts,
		faker:  gofakeit.New(seed),
		now:    time.Now().UTC(),
		nextID: 1000,
	}
}

// Run seeds the reference data, then users, posts and comments.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	ref, err := LoadReference()
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	var categories []models.Category
	var locations []models.Location
	if s.opts.DryRun {
		for i, c := range ref.Categories {
			categories = append(categories, models.Category{ID: uint(i + 1), Title: c.Title, Slug: c.Slug, IsPublished: c.IsPublished})
		}
		for i, l := range ref.Locations {
			locations = append(locations, models.Location{ID: uint(i + 1), Name: l.Name, IsPublished: l.IsPublished})
		}
	} else {
		categories, locations, err = SeedReference(s.db.WithContext(ctx), ref)
		if err != nil {
			return nil, err
		}
	}
	summary.Categories = len(categories)
	summary.Locations = len(locations)

	users := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		u, err := s.CreateUser(ctx)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	summary.Users = len(users)
	if len(users) == 0 {
		return summary, nil
	}

	posts := make([]*models.Post, 0, s.opts.Posts)
	for i := 0; i < s.opts.Posts; i++ {
		author := users[s.faker.Number(0, len(users)-1)]
		posts = append(posts, s.BuildPost(author, categories, locations))
	}
	if err := s.persist(ctx, "posts", posts); err != nil {
		return nil, err
	}
	summary.Posts = len(posts)
	if len(posts) == 0 {
		return summary, nil
	}

	comments := make([]*models.Comment, 0, s.opts.Comments)
	for i := 0; i < s.opts.Comments; i++ {
		post := posts[s.faker.Number(0, len(posts)-1)]
		author := users[s.faker.Number(0, len(users)-1)]
		comments = append(comments, s.BuildComment(post, author))
	}
	if err := s.persist(ctx, "comments", comments); err != nil {
		return nil, err
	}
	summary.Comments = len(comments)

	middleware.Logger.InfoContext(ctx, "seed complete",
		slog.Int("users", summary.Users),
		slog.Int("posts", summary.Posts),
		slog.Int("comments", summary.Comments),
		slog.Bool("dry_run", s.opts.DryRun))
	return summary, nil
}

// CreateUser builds and stores a user with DemoPassword.
func (s *Seeder) CreateUser(ctx context.Context) (*models.User, error) {
	first, last := s.faker.FirstName(), s.faker.LastName()
	user := &models.User{
		Username:  fmt.Sprintf("%s%d", strings.ToLower(s.faker.Username()), s.faker.Number(100, 9999)),
		Email:     s.faker.Email(),
		FirstName: first,
		LastName:  last,
	}

	if s.opts.SkipBcrypt {
		user.Password = DemoPassword
	} else {
		hashed, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		user.Password = string(hashed)
	}

	if s.opts.DryRun {
		s.nextID++
		user.ID = s.nextID
		return user, nil
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return user, nil
}

// BuildPost returns an unsaved post. Roughly one in ten is a draft and one in
// ten is scheduled for the next week, so every visibility rule has examples.
func (s *Seeder) BuildPost(author *models.User, categories []models.Category, locations []models.Location) *models.Post {
	start := s.now.Add(-time.Duration(s.opts.MaxDays) * 24 * time.Hour)
	post := &models.Post{
		Title:       strings.TrimSuffix(s.faker.Sentence(s.faker.Number(3, 7)), "."),
		Text:        s.faker.Paragraph(s.faker.Number(1, 4), 4, 12, "\n\n"),
		PubDate:     s.faker.DateRange(start, s.now),
		IsPublished: true,
		AuthorID:    author.ID,
	}
	switch s.faker.Number(1, 10) {
	case 1:
		post.IsPublished = false
	case 2:
		post.PubDate = s.faker.DateRange(s.now.Add(time.Hour), s.now.Add(7*24*time.Hour))
	}
	post.PubDate = post.PubDate.UTC()

	if len(categories) > 0 && s.faker.Number(1, 5) > 1 {
		id := categories[s.faker.Number(0, len(categories)-1)].ID
		post.CategoryID = &id
	}
	if len(locations) > 0 && s.faker.Bool() {
		id := locations[s.faker.Number(0, len(locations)-1)].ID
		post.LocationID = &id
	}
	return post
}

// BuildComment returns an unsaved comment dated after the post.
func (s *Seeder) BuildComment(post *models.Post, author *models.User) *models.Comment {
	from := post.PubDate
	if from.After(s.now) {
		from = s.now.Add(-time.Hour)
	}
	return &models.Comment{
		Text:      s.faker.Sentence(s.faker.Number(4, 20)),
		PostID:    post.ID,
		AuthorID:  author.ID,
		CreatedAt: s.faker.DateRange(from, s.now).UTC(),
	}
}

// ClearContent removes generated users, posts and comments. Categories and
// locations stay, so reference data survives a reseed.
func (s *Seeder) ClearContent(ctx context.Context) error {
	if s.opts.DryRun {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Comment{}, &models.Post{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("clear %T: %w", model, err)
			}
		}
		return nil
	})
}

func (s *Seeder) persist(ctx context.Context, what string, rows any) error {
	if s.opts.DryRun {
		switch v := rows.(type) {
		case []*models.Post:
			for _, p := range v {
				s.nextID++
				p.ID = s.nextID
			}
		case []*models.Comment:
			for _, c := range v {
				s.nextID++
				c.ID = s.nextID
			}
		}
		return nil
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).CreateInBatches(rows, 100).Error; err != nil {
		return fmt.Errorf("create %s: %w", what, err)
	}
	return nil
}
