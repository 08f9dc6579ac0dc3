package seed

import (
	"context"
	"testing"
	"time"

	"blogicum/internal/models"
	"blogicum/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoadReference(t *testing.T) {
	ref, err := LoadReference()
	require.NoError(t, err)
	assert.NotEmpty(t, ref.Categories)
	assert.NotEmpty(t, ref.Locations)

	var hidden int
	for _, c := range ref.Categories {
		if !c.IsPublished {
			hidden++
		}
	}
	assert.Equal(t, 1, hidden, "reference data ships one unpublished category")
}

func TestParseReference_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"Malformed", "categories: [this is: not"},
		{"Missing slug", "categories:\n  - title: Travel\n"},
		{"Slug with spaces and slash", "categories:\n  - {title: Road trips, slug: \"Road Trips/2024\"}\n"},
		{"Uppercase slug", "categories:\n  - {title: Travel, slug: Travel}\n"},
		{"Duplicate slug", "categories:\n  - {title: A, slug: a}\n  - {title: B, slug: a}\n"},
		{"Unnamed location", "locations:\n  - is_published: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReference([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestSeedReference_Idempotent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	ref, err := LoadReference()
	require.NoError(t, err)

	categories, locations, err := SeedReference(db, ref)
	require.NoError(t, err)
	assert.Len(t, categories, len(ref.Categories))
	assert.Len(t, locations, len(ref.Locations))

	ref.Categories[0].Title = "Renamed"
	ref.Locations[0].IsPublished = !ref.Locations[0].IsPublished
	_, _, err = SeedReference(db, ref)
	require.NoError(t, err)

	var categoryCount, locationCount int64
	require.NoError(t, db.Model(&models.Category{}).Count(&categoryCount).Error)
	require.NoError(t, db.Model(&models.Location{}).Count(&locationCount).Error)
	assert.EqualValues(t, len(ref.Categories), categoryCount)
	assert.EqualValues(t, len(ref.Locations), locationCount)

	var first models.Category
	require.NoError(t, db.Where("slug = ?", ref.Categories[0].Slug).Take(&first).Error)
	assert.Equal(t, "Renamed", first.Title)

	var loc models.Location
	require.NoError(t, db.Where("name = ?", ref.Locations[0].Name).Take(&loc).Error)
	assert.Equal(t, ref.Locations[0].IsPublished, loc.IsPublished)
}

func TestSeeder_Run(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, Options{Users: 4, Posts: 20, Comments: 30, SkipBcrypt: true, RandSeed: 42})

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Users)
	assert.Equal(t, 20, summary.Posts)
	assert.Equal(t, 30, summary.Comments)

	var posts []models.Post
	require.NoError(t, db.Find(&posts).Error)
	require.Len(t, posts, 20)
	for _, p := range posts {
		assert.NotEmpty(t, p.Title)
		assert.NotZero(t, p.AuthorID)
	}

	var comments int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&comments).Error)
	assert.EqualValues(t, 30, comments)

	require.NoError(t, s.ClearContent(context.Background()))
	var users, categories int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Category{}).Count(&categories).Error)
	assert.Zero(t, users)
	assert.NotZero(t, categories)
}

func TestSeeder_DryRunWritesNothing(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, Options{Users: 2, Posts: 5, Comments: 5, DryRun: true, SkipBcrypt: true, RandSeed: 7})

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Posts)

	for _, model := range []any{&models.User{}, &models.Post{}, &models.Comment{}, &models.Category{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n, "%T", model)
	}
}

func TestSeeder_CreateUserHashesPassword(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	s := NewSeeder(db, Options{RandSeed: 1})

	u, err := s.CreateUser(context.Background())
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(DemoPassword)))
}

func TestSeeder_BuildCommentNotBeforePost(t *testing.T) {
	s := NewSeeder(nil, Options{RandSeed: 3})
	author := &models.User{ID: 1}
	post := &models.Post{ID: 1, PubDate: time.Now().UTC().Add(-48 * time.Hour)}

	for i := 0; i < 20; i++ {
		c := s.BuildComment(post, author)
		assert.False(t, c.CreatedAt.Before(post.PubDate))
	}
}
