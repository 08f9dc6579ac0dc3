package models

import "time"

// Post is a dated publication. IsPublished has no gorm default tag: a false
// value must reach the INSERT.
type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:256;not null" json:"title"`
	Text        string    `gorm:"type:text;not null" json:"text"`
	PubDate     time.Time `gorm:"not null;index" json:"pub_date"`
	IsPublished bool      `gorm:"not null;index" json:"is_published"`
	AuthorID    uint      `gorm:"not null;index" json:"author_id"`
	Author      User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author"`
	LocationID  *uint     `gorm:"index" json:"location_id,omitempty"`
	Location    *Location `gorm:"foreignKey:LocationID;constraint:OnDelete:SET NULL" json:"location,omitempty"`
	CategoryID  *uint     `gorm:"index" json:"category_id,omitempty"`
	Category    *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Image       string    `gorm:"size:255" json:"image,omitempty"`
	// CommentCount is not persisted; computed at query time
	CommentCount int64     `gorm:"->;-:migration" json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}
