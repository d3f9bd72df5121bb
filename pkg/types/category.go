package types

import "time"

type Category struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Slug         string    `db:"slug" json:"slug"`
	Description  *string   `db:"description" json:"description,omitempty"`
	ImageKey     *string   `db:"image_key" json:"imageKey,omitempty"`
	DisplayOrder int       `db:"display_order" json:"displayOrder"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`

	// Active projects in this category, derived on read
	ProjectCount int `db:"-" json:"projectCount"`
}
