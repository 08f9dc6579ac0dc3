// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"blogicum/internal/database"
	"blogicum/internal/models"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database with the full schema.
// The pool is pinned to one connection so every query sees the same memory
// database; code running inside a transaction must use only the tx handle.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(database.SQLiteDSN(":memory:")), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

// Password is the plain-text password of users made by CreateUser.
const Password = "S3cure-pass!"

var passwordHash = sync.OnceValues(func() ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
})

// CreateUser inserts a user with Password as password.
func CreateUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	hash, err := passwordHash()
	require.NoError(t, err)
	u := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hash),
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateCategory inserts a category.
func CreateCategory(t *testing.T, db *gorm.DB, slug string, published bool) *models.Category {
	t.Helper()
	c := &models.Category{Title: slug, Description: "About " + slug, Slug: slug, IsPublished: published}
	require.NoError(t, db.Create(c).Error)
	return c
}

// CreateLocation inserts a location.
func CreateLocation(t *testing.T, db *gorm.DB, name string, published bool) *models.Location {
	t.Helper()
	l := &models.Location{Name: name, IsPublished: published}
	require.NoError(t, db.Create(l).Error)
	return l
}

// PostOption adjusts a post before CreatePost inserts it.
type PostOption func(*models.Post)

// InCategory places the post in c.
func InCategory(c *models.Category) PostOption {
	return func(p *models.Post) { p.CategoryID = &c.ID }
}

// AtLocation places the post at l.
func AtLocation(l *models.Location) PostOption {
	return func(p *models.Post) { p.LocationID = &l.ID }
}

// PublishedAt sets the publication date.
func PublishedAt(at time.Time) PostOption {
	return func(p *models.Post) { p.PubDate = at.UTC() }
}

// Unpublished clears the published flag.
func Unpublished() PostOption {
	return func(p *models.Post) { p.IsPublished = false }
}

// CreatePost inserts a published post dated one hour ago.
func CreatePost(t *testing.T, db *gorm.DB, author *models.User, title string, opts ...PostOption) *models.Post {
	t.Helper()
	p := &models.Post{
		Title:       title,
		Text:        "Text of " + title,
		PubDate:     time.Now().UTC().Add(-time.Hour),
		IsPublished: true,
		AuthorID:    author.ID,
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, db.Omit("Author", "Category", "Location").Create(p).Error)
	return p
}

// CreateComment inserts a comment at the given time.
func CreateComment(t *testing.T, db *gorm.DB, post *models.Post, author *models.User, text string, at time.Time) *models.Comment {
	t.Helper()
	c := &models.Comment{PostID: post.ID, AuthorID: author.ID, Text: text, CreatedAt: at.UTC()}
	require.NoError(t, db.Omit("Author", "Post").Create(c).Error)
	return c
}
