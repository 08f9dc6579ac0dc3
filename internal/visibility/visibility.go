// Package visibility decides who may see and who may change posts and comments.
//
// A post is public when it is published, its publication date has passed and
// its category, if any, is published. Authors always see their own posts.
package visibility

import (
	"time"

	"blogicum/internal/models"
)

// Viewer is the caller a decision is made for. The zero value is anonymous.
type Viewer struct {
	UserID uint
}

// Anonymous reports whether nobody is logged in.
func (v Viewer) Anonymous() bool {
	return v.UserID == 0
}

// Is reports whether the viewer is the user with the given id.
// An anonymous viewer is nobody.
func (v Viewer) Is(userID uint) bool {
	return !v.Anonymous() && v.UserID == userID
}

// CanViewPost reports whether v may see p at instant now.
// A post whose category was not loaded is treated as hidden.
func CanViewPost(v Viewer, p *models.Post, now time.Time) bool {
	if p == nil {
		return false
	}
	if v.Is(p.AuthorID) {
		return true
	}
	return isPublic(p, now)
}

func isPublic(p *models.Post, now time.Time) bool {
	if !p.IsPublished {
		return false
	}
	if p.PubDate.After(now) {
		return false
	}
	if p.CategoryID != nil {
		if p.Category == nil || !p.Category.IsPublished {
			return false
		}
	}
	return true
}

// CanViewComment reports whether c belongs to p and p is visible to v.
func CanViewComment(v Viewer, c *models.Comment, p *models.Post, now time.Time) bool {
	if c == nil || p == nil || c.PostID != p.ID {
		return false
	}
	return CanViewPost(v, p, now)
}

// CanModify reports whether v owns the object authored by authorID.
func CanModify(v Viewer, authorID uint) bool {
	return v.Is(authorID)
}

// Filter is the public-post rule in a form the repository turns into SQL.
type Filter struct {
	Now time.Time
}

// Published returns the filter matching posts that are public at now.
func Published(now time.Time) *Filter {
	return &Filter{Now: now.UTC()}
}
