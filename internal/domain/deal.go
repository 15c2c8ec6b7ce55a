package domain

import "time"

// Business is the owner of a deal. Deal relevance is decided by the
// business taxonomy, never by the deal itself.
type Business struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	CategoryID    string  `json:"category_id"`
	SubcategoryID *string `json:"subcategory_id,omitempty"`
}

// Deal is a time-bounded offer published by a business.
type Deal struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Discount    *string    `json:"discount,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Business    *Business  `json:"business,omitempty"`
}
