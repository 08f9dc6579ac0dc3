package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"blogicum/internal/media"
	"blogicum/internal/models"
	"blogicum/internal/repository"
	"blogicum/internal/testutil"
	"blogicum/internal/visibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func uintPtr(v uint) *uint { return &v }

func TestNewPage(t *testing.T) {
	tests := []struct {
		name                   string
		number, size           int
		total                  int64
		wantNumber, wantPages  int
		wantPrev, wantNext     bool
		wantPrevNum, wantNextN int
	}{
		{"Empty feed", 1, 10, 0, 1, 1, false, false, 0, 0},
		{"Zero becomes first", 0, 10, 25, 1, 3, false, true, 0, 2},
		{"Negative becomes first", -4, 10, 25, 1, 3, false, true, 0, 2},
		{"Middle", 2, 10, 25, 2, 3, true, true, 1, 3},
		{"Past the end becomes last", 99, 10, 25, 3, 3, true, false, 2, 0},
		{"Exact multiple", 2, 10, 20, 2, 2, true, false, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPage(tt.number, tt.size, tt.total)
			assert.Equal(t, tt.wantNumber, p.Number)
			assert.Equal(t, tt.wantPages, p.NumPages)
			assert.Equal(t, tt.wantPrev, p.HasPrev)
			assert.Equal(t, tt.wantNext, p.HasNext)
			assert.Equal(t, tt.wantPrevNum, p.PrevNumber)
			assert.Equal(t, tt.wantNextN, p.NextNumber)
		})
	}
}

func TestPostService_ListPosts_Queries(t *testing.T) {
	published := &models.Category{ID: 1, Slug: "travel", IsPublished: true}
	hidden := &models.Category{ID: 2, Slug: "secret", IsPublished: false}

	var seen []repository.PostQuery
	repo := noopPostRepo()
	repo.countFn = func(_ context.Context, q repository.PostQuery) (int64, error) {
		seen = append(seen, q)
		return 25, nil
	}
	repo.listFn = func(_ context.Context, q repository.PostQuery) ([]*models.Post, error) {
		seen = append(seen, q)
		return []*models.Post{{ID: 1}}, nil
	}
	svc := NewPostService(repo, newCategoryRepoStub(published, hidden), newLocationRepoStub(), nil, 10, fixedClock)
	ctx := context.Background()

	t.Run("All published", func(t *testing.T) {
		seen = nil
		page, err := svc.ListPosts(ctx, AllPublished(), visibility.Viewer{UserID: 3}, 2)
		require.NoError(t, err)
		require.Len(t, seen, 2)
		list := seen[1]
		require.NotNil(t, list.Published)
		assert.Equal(t, fixedNow, list.Published.Now)
		assert.Nil(t, list.AuthorID)
		assert.Nil(t, list.CategoryID)
		assert.Equal(t, 10, list.Limit)
		assert.Equal(t, 10, list.Offset)
		assert.Equal(t, 2, page.Number)
		assert.Nil(t, page.Category)
	})

	t.Run("Page past the end is clamped", func(t *testing.T) {
		seen = nil
		page, err := svc.ListPosts(ctx, AllPublished(), visibility.Viewer{}, 7)
		require.NoError(t, err)
		assert.Equal(t, 3, page.Number)
		assert.Equal(t, 20, seen[1].Offset)
	})

	t.Run("Category", func(t *testing.T) {
		seen = nil
		page, err := svc.ListPosts(ctx, ByCategory("travel"), visibility.Viewer{}, 1)
		require.NoError(t, err)
		require.NotNil(t, seen[1].CategoryID)
		assert.Equal(t, uint(1), *seen[1].CategoryID)
		assert.NotNil(t, seen[1].Published)
		assert.Equal(t, published, page.Category)
	})

	t.Run("Unknown category", func(t *testing.T) {
		_, err := svc.ListPosts(ctx, ByCategory("nope"), visibility.Viewer{}, 1)
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("Unpublished category", func(t *testing.T) {
		_, err := svc.ListPosts(ctx, ByCategory("secret"), visibility.Viewer{}, 1)
		assertCode(t, err, models.CodeNotFound)
	})

	t.Run("Own profile is unfiltered", func(t *testing.T) {
		seen = nil
		_, err := svc.ListPosts(ctx, ByAuthor(5), visibility.Viewer{UserID: 5}, 1)
		require.NoError(t, err)
		require.NotNil(t, seen[1].AuthorID)
		assert.Equal(t, uint(5), *seen[1].AuthorID)
		assert.Nil(t, seen[1].Published)
	})

	t.Run("Someone else's profile is filtered", func(t *testing.T) {
		seen = nil
		_, err := svc.ListPosts(ctx, ByAuthor(5), visibility.Viewer{UserID: 6}, 1)
		require.NoError(t, err)
		assert.NotNil(t, seen[1].Published)
	})
}

func TestPostService_ListPosts_EmptySkipsList(t *testing.T) {
	repo := noopPostRepo()
	repo.listFn = func(context.Context, repository.PostQuery) ([]*models.Post, error) {
		t.Fatal("List must not be called for an empty feed")
		return nil, nil
	}
	svc := NewPostService(repo, newCategoryRepoStub(), newLocationRepoStub(), nil, 10, fixedClock)

	page, err := svc.ListPosts(context.Background(), AllPublished(), visibility.Viewer{}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Number)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

// seedFeed builds one author with a visible, a scheduled, a draft and a
// hidden-category post, relative to fixedNow.
func seedFeed(t *testing.T) (*PostService, *models.User, *models.User) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	author := testutil.CreateUser(t, db, "author")
	reader := testutil.CreateUser(t, db, "reader")
	open := testutil.CreateCategory(t, db, "open", true)
	closed := testutil.CreateCategory(t, db, "closed", false)

	testutil.CreatePost(t, db, author, "visible", testutil.InCategory(open), testutil.PublishedAt(fixedNow.Add(-time.Hour)))
	testutil.CreatePost(t, db, author, "uncategorized", testutil.PublishedAt(fixedNow.Add(-2*time.Hour)))
	testutil.CreatePost(t, db, author, "scheduled", testutil.PublishedAt(fixedNow.Add(time.Hour)))
	testutil.CreatePost(t, db, author, "draft", testutil.Unpublished(), testutil.PublishedAt(fixedNow.Add(-time.Hour)))
	testutil.CreatePost(t, db, author, "closed", testutil.InCategory(closed), testutil.PublishedAt(fixedNow.Add(-time.Hour)))
	testutil.CreatePost(t, db, reader, "reader's", testutil.PublishedAt(fixedNow.Add(-3*time.Hour)))

	svc := NewPostService(
		repository.NewPostRepository(db),
		repository.NewCategoryRepository(db),
		repository.NewLocationRepository(db),
		nil, 10, fixedClock,
	)
	return svc, author, reader
}

func postIDs(posts []*models.Post) map[uint]bool {
	out := map[uint]bool{}
	for _, p := range posts {
		out[p.ID] = true
	}
	return out
}

func TestPostService_ProfileOwnerSeesSuperset(t *testing.T) {
	svc, author, reader := seedFeed(t)
	ctx := context.Background()

	own, err := svc.ListPosts(ctx, ByAuthor(author.ID), visibility.Viewer{UserID: author.ID}, 1)
	require.NoError(t, err)
	other, err := svc.ListPosts(ctx, ByAuthor(author.ID), visibility.Viewer{UserID: reader.ID}, 1)
	require.NoError(t, err)
	anon, err := svc.ListPosts(ctx, ByAuthor(author.ID), visibility.Viewer{}, 1)
	require.NoError(t, err)

	assert.Len(t, own.Items, 5)
	assert.Len(t, other.Items, 2)
	assert.Equal(t, postIDs(other.Items), postIDs(anon.Items))

	ownIDs := postIDs(own.Items)
	for id := range postIDs(other.Items) {
		assert.True(t, ownIDs[id], "post %d missing from the owner's profile", id)
	}
}

func TestPostService_HomeFeedOnlyHasViewablePosts(t *testing.T) {
	svc, _, reader := seedFeed(t)
	ctx := context.Background()

	for _, viewer := range []visibility.Viewer{{}, {UserID: reader.ID}} {
		page, err := svc.ListPosts(ctx, AllPublished(), viewer, 1)
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		for _, p := range page.Items {
			assert.True(t, visibility.CanViewPost(visibility.Viewer{}, p, fixedNow), p.Title)
		}
		assert.Equal(t, "visible", page.Items[0].Title)
	}
}

func TestPostService_GetPost(t *testing.T) {
	future := &models.Post{ID: 1, AuthorID: 7, IsPublished: true, PubDate: fixedNow.Add(time.Hour)}
	repo := noopPostRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.Post, error) {
		if id == future.ID {
			return future, nil
		}
		return nil, models.NewNotFoundError("Post", id)
	}
	svc := NewPostService(repo, newCategoryRepoStub(), newLocationRepoStub(), nil, 10, fixedClock)
	ctx := context.Background()

	_, err := svc.GetPost(ctx, 1, visibility.Viewer{})
	assertCode(t, err, models.CodeNotFound)

	_, err = svc.GetPost(ctx, 1, visibility.Viewer{UserID: 8})
	assertCode(t, err, models.CodeNotFound)

	got, err := svc.GetPost(ctx, 1, visibility.Viewer{UserID: 7})
	require.NoError(t, err)
	assert.Equal(t, future, got)

	_, err = svc.GetPost(ctx, 2, visibility.Viewer{UserID: 7})
	assertCode(t, err, models.CodeNotFound)
}

func TestPostService_CreatePost(t *testing.T) {
	cats := newCategoryRepoStub(&models.Category{ID: 1, Slug: "travel", IsPublished: true})
	locs := newLocationRepoStub(&models.Location{ID: 4, Name: "Island"})
	ctx := context.Background()

	t.Run("Anonymous", func(t *testing.T) {
		svc := NewPostService(noopPostRepo(), cats, locs, nil, 10, fixedClock)
		_, err := svc.CreatePost(ctx, visibility.Viewer{}, PostInput{Title: "t", Text: "x"})
		assertUnauthorizedError(t, err)
	})

	t.Run("Invalid input writes nothing", func(t *testing.T) {
		repo := noopPostRepo()
		repo.createFn = func(context.Context, *models.Post) error {
			t.Fatal("Create must not be called")
			return nil
		}
		images := &imageStoreStub{}
		svc := NewPostService(repo, cats, locs, images, 10, fixedClock)

		_, err := svc.CreatePost(ctx, visibility.Viewer{UserID: 1}, PostInput{
			Title:      " ",
			Text:       "x",
			CategoryID: uintPtr(99),
			LocationID: uintPtr(4),
			Image:      &media.Upload{Filename: "pic"},
		})
		assertValidationError(t, err, "title")
		assertValidationError(t, err, "category")
		assert.Empty(t, images.saved)
	})

	t.Run("Success", func(t *testing.T) {
		var stored *models.Post
		repo := noopPostRepo()
		repo.createFn = func(_ context.Context, p *models.Post) error {
			p.ID = 10
			stored = p
			return nil
		}
		images := &imageStoreStub{}
		svc := NewPostService(repo, cats, locs, images, 10, fixedClock)

		post, err := svc.CreatePost(ctx, visibility.Viewer{UserID: 3}, PostInput{
			Title:       "  Trip  ",
			Text:        "Went places",
			IsPublished: true,
			CategoryID:  uintPtr(1),
			LocationID:  uintPtr(4),
			Image:       &media.Upload{Filename: "pic"},
		})
		require.NoError(t, err)
		assert.Same(t, stored, post)
		assert.Equal(t, "Trip", post.Title)
		assert.Equal(t, uint(3), post.AuthorID)
		assert.Equal(t, fixedNow, post.PubDate)
		assert.Equal(t, "posts/pic.webp", post.Image)
	})

	t.Run("Failed insert removes the image", func(t *testing.T) {
		repo := noopPostRepo()
		repo.createFn = func(context.Context, *models.Post) error { return models.NewInternalError(errors.New("db down")) }
		images := &imageStoreStub{}
		svc := NewPostService(repo, cats, locs, images, 10, fixedClock)

		_, err := svc.CreatePost(ctx, visibility.Viewer{UserID: 3}, PostInput{Title: "t", Text: "x", Image: &media.Upload{Filename: "pic"}})
		assertCode(t, err, models.CodeInternal)
		assert.Equal(t, []string{"posts/pic.webp"}, images.deleted)
	})
}

func TestPostService_UpdatePost(t *testing.T) {
	ctx := context.Background()
	existing := func() *models.Post {
		return &models.Post{ID: 1, AuthorID: 7, Title: "old", Text: "old", PubDate: fixedNow, IsPublished: true, Image: "posts/old.webp"}
	}

	t.Run("Non-owner", func(t *testing.T) {
		repo := noopPostRepo()
		repo.getByIDFn = func(context.Context, uint) (*models.Post, error) { return existing(), nil }
		repo.updateFn = func(context.Context, *models.Post) error {
			t.Fatal("Update must not be called")
			return nil
		}
		svc := NewPostService(repo, newCategoryRepoStub(), newLocationRepoStub(), nil, 10, fixedClock)

		_, err := svc.UpdatePost(ctx, visibility.Viewer{UserID: 8}, 1, PostInput{Title: "new", Text: "new"})
		assertUnauthorizedError(t, err)
	})

	t.Run("Owner replaces image", func(t *testing.T) {
		var updated *models.Post
		repo := noopPostRepo()
		repo.getByIDFn = func(context.Context, uint) (*models.Post, error) {
			if updated != nil {
				return updated, nil
			}
			return existing(), nil
		}
		repo.updateFn = func(_ context.Context, p *models.Post) error {
			updated = p
			return nil
		}
		images := &imageStoreStub{}
		svc := NewPostService(repo, newCategoryRepoStub(), newLocationRepoStub(), images, 10, fixedClock)

		post, err := svc.UpdatePost(ctx, visibility.Viewer{UserID: 7}, 1, PostInput{
			Title: "new", Text: "new", PubDate: fixedNow.Add(time.Hour), Image: &media.Upload{Filename: "fresh"},
		})
		require.NoError(t, err)
		assert.Equal(t, "new", post.Title)
		assert.False(t, post.IsPublished)
		assert.Equal(t, "posts/fresh.webp", post.Image)
		assert.Equal(t, []string{"posts/old.webp"}, images.deleted)
	})

	t.Run("Owner clears image", func(t *testing.T) {
		repo := noopPostRepo()
		repo.getByIDFn = func(context.Context, uint) (*models.Post, error) { return existing(), nil }
		images := &imageStoreStub{}
		svc := NewPostService(repo, newCategoryRepoStub(), newLocationRepoStub(), images, 10, fixedClock)

		_, err := svc.UpdatePost(ctx, visibility.Viewer{UserID: 7}, 1, PostInput{Title: "t", Text: "x", ClearImage: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"posts/old.webp"}, images.deleted)
	})
}

func TestPostService_DeletePost(t *testing.T) {
	ctx := context.Background()
	deleted := false
	repo := noopPostRepo()
	repo.getByIDFn = func(context.Context, uint) (*models.Post, error) {
		return &models.Post{ID: 1, AuthorID: 7, Image: "posts/a.webp"}, nil
	}
	repo.deleteFn = func(context.Context, uint) error {
		deleted = true
		return nil
	}
	images := &imageStoreStub{}
	svc := NewPostService(repo, newCategoryRepoStub(), newLocationRepoStub(), images, 10, fixedClock)

	assertUnauthorizedError(t, svc.DeletePost(ctx, visibility.Viewer{UserID: 8}, 1))
	assertUnauthorizedError(t, svc.DeletePost(ctx, visibility.Viewer{}, 1))
	assert.False(t, deleted)

	require.NoError(t, svc.DeletePost(ctx, visibility.Viewer{UserID: 7}, 1))
	assert.True(t, deleted)
	assert.Equal(t, []string{"posts/a.webp"}, images.deleted)
}
