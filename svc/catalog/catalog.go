// Package catalog serves the audiobook catalog together with per-user
// favorites and playback progress.
package catalog

import (
	"errors"
	"time"

	"github.com/storify-asia/storify/pkg/validator"
)

type Book struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	CoverURL    string `json:"coverUrl"`
	// AudioURL is either an absolute URL or an object key that is presigned
	// on the way out.
	AudioURL   string `json:"audioUrl"`
	Duration   int    `json:"duration"`
	Category   string `json:"category"`
	IsFeatured bool   `json:"isFeatured"`
}

// NewBook is the input for CreateBook.
type NewBook struct {
	Title       string `json:"title" yaml:"title"`
	Author      string `json:"author" yaml:"author"`
	Description string `json:"description" yaml:"description"`
	CoverURL    string `json:"coverUrl" yaml:"cover_url"`
	AudioURL    string `json:"audioUrl" yaml:"audio_url"`
	Duration    int    `json:"duration" yaml:"duration"`
	Category    string `json:"category" yaml:"category"`
	IsFeatured  bool   `json:"isFeatured" yaml:"is_featured"`
}

func (b NewBook) validate() error {
	err := validator.Apply(
		validator.Required("title", b.Title),
		validator.MaxLen("title", b.Title, 255),
		validator.Required("author", b.Author),
		validator.Required("audioUrl", b.AudioURL),
		validator.Required("category", b.Category),
		validator.Positive("duration", b.Duration),
	)
	if err != nil {
		return errors.Join(ErrInvalidBook, err)
	}
	return nil
}

type ListParams struct {
	Search   string
	Category string
	Featured *bool
}

func (p ListParams) matches(b Book) bool {
	if p.Category != "" && b.Category != p.Category {
		return false
	}
	if p.Featured != nil && b.IsFeatured != *p.Featured {
		return false
	}
	return true
}

// Progress is how far a user got in a book. Progress is a percentage,
// CurrentTime the playhead in seconds.
type Progress struct {
	BookID      int64     `json:"bookId"`
	Progress    float64   `json:"progress"`
	CurrentTime float64   `json:"currentTime"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// RecentBook is a book with the caller's progress in it.
type RecentBook struct {
	Book
	Progress    float64 `json:"progress"`
	CurrentTime float64 `json:"currentTime"`
}
