package repository

import (
	"context"
	"testing"
	"time"

	"blogicum/internal/models"
	"blogicum/internal/testutil"
	"blogicum/internal/visibility"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(posts []*models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.Title)
	}
	return out
}

func TestPostRepository_ListPublishedFilter(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	author := testutil.CreateUser(t, db, "author")
	open := testutil.CreateCategory(t, db, "open", true)
	hidden := testutil.CreateCategory(t, db, "hidden", false)

	testutil.CreatePost(t, db, author, "visible", testutil.InCategory(open), testutil.PublishedAt(now.Add(-2*time.Hour)))
	testutil.CreatePost(t, db, author, "no category", testutil.PublishedAt(now.Add(-3*time.Hour)))
	testutil.CreatePost(t, db, author, "draft", testutil.InCategory(open), testutil.Unpublished())
	testutil.CreatePost(t, db, author, "scheduled", testutil.InCategory(open), testutil.PublishedAt(now.Add(time.Hour)))
	testutil.CreatePost(t, db, author, "hidden category", testutil.InCategory(hidden))

	q := PostQuery{Published: visibility.Published(now)}
	posts, err := repo.List(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"visible", "no category"}, titles(posts))

	total, err := repo.Count(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	all, err := repo.List(ctx, PostQuery{AuthorID: &author.ID})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestPostRepository_ListJoinsAndCounts(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author")
	reader := testutil.CreateUser(t, db, "reader")
	cat := testutil.CreateCategory(t, db, "travel", true)
	loc := testutil.CreateLocation(t, db, "Island", true)

	post := testutil.CreatePost(t, db, author, "trip", testutil.InCategory(cat), testutil.AtLocation(loc))
	testutil.CreatePost(t, db, author, "quiet", testutil.PublishedAt(time.Now().Add(-48*time.Hour)))
	for i := 0; i < 3; i++ {
		testutil.CreateComment(t, db, post, reader, "nice", time.Now())
	}

	posts, err := repo.List(ctx, PostQuery{Published: visibility.Published(time.Now())})
	require.NoError(t, err)
	require.Len(t, posts, 2)

	first := posts[0]
	assert.Equal(t, "trip", first.Title)
	assert.Equal(t, int64(3), first.CommentCount)
	assert.Equal(t, "author", first.Author.Username)
	require.NotNil(t, first.Category)
	assert.Equal(t, "travel", first.Category.Slug)
	require.NotNil(t, first.Location)
	assert.Equal(t, "Island", first.Location.Name)

	assert.Equal(t, int64(0), posts[1].CommentCount)
	assert.Nil(t, posts[1].CategoryID)

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.CommentCount)
	assert.Equal(t, "author", got.Author.Username)
}

func TestPostRepository_OrderingAndPagination(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")

	same := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	testutil.CreatePost(t, db, author, "oldest", testutil.PublishedAt(same.Add(-time.Hour)))
	testutil.CreatePost(t, db, author, "tie-a", testutil.PublishedAt(same))
	testutil.CreatePost(t, db, author, "tie-b", testutil.PublishedAt(same))
	testutil.CreatePost(t, db, author, "newest", testutil.PublishedAt(same.Add(30*time.Minute)))

	q := PostQuery{Published: visibility.Published(time.Now()), Limit: 2}
	page1, err := repo.List(ctx, q)
	require.NoError(t, err)
	q.Offset = 2
	page2, err := repo.List(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, []string{"newest", "tie-b"}, titles(page1))
	assert.Equal(t, []string{"tie-a", "oldest"}, titles(page2))
}

func TestPostRepository_CategoryScope(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	travel := testutil.CreateCategory(t, db, "travel", true)
	food := testutil.CreateCategory(t, db, "food", true)

	testutil.CreatePost(t, db, author, "trip", testutil.InCategory(travel))
	testutil.CreatePost(t, db, author, "soup", testutil.InCategory(food))

	posts, err := repo.List(ctx, PostQuery{CategoryID: &travel.ID, Published: visibility.Published(time.Now())})
	require.NoError(t, err)
	assert.Equal(t, []string{"trip"}, titles(posts))
}

func TestPostRepository_UpdateAndNotFound(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	cat := testutil.CreateCategory(t, db, "travel", true)
	post := testutil.CreatePost(t, db, author, "before", testutil.InCategory(cat))

	post.Title = "after"
	post.IsPublished = false
	post.CategoryID = nil
	require.NoError(t, repo.Update(ctx, post))

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.False(t, got.IsPublished)
	assert.Nil(t, got.CategoryID)
	assert.Equal(t, author.ID, got.AuthorID)

	_, err = repo.GetByID(ctx, 9999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	err = repo.Update(ctx, &models.Post{ID: 9999, Title: "x", Text: "x", PubDate: time.Now()})
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostRepository_CreateKeepsUnpublishedFlag(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")

	post := &models.Post{Title: "draft", Text: "x", PubDate: time.Now(), AuthorID: author.ID, IsPublished: false}
	require.NoError(t, repo.Create(ctx, post))

	got, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPublished)
	assert.Equal(t, time.UTC, got.PubDate.Location())
}

func TestPostRepository_DeleteRemovesComments(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author")
	post := testutil.CreatePost(t, db, author, "doomed")
	testutil.CreateComment(t, db, post, author, "bye", time.Now())

	require.NoError(t, repo.Delete(ctx, post.ID))

	var comments int64
	require.NoError(t, db.Model(&models.Comment{}).Where("post_id = ?", post.ID).Count(&comments).Error)
	assert.Zero(t, comments)

	err := repo.Delete(ctx, post.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
