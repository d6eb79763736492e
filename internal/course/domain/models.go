package domain

import "time"

type Course struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	Slug        string     `gorm:"not null;uniqueIndex" json:"slug"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description,omitempty"`
	Price       int64      `gorm:"not null" json:"price"`
	Currency    string     `gorm:"not null" json:"currency"`
	Capacity    *int       `json:"capacity,omitempty"`
	IsPublished bool       `gorm:"not null;default:false" json:"is_published"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Course) TableName() string { return "courses" }

// HasCapacity reports whether the course limits the number of paid seats.
func (c Course) HasCapacity() bool {
	return c.Capacity != nil && *c.Capacity > 0
}
