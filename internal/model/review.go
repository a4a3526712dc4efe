package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is the single review a user holds for a module.
type Review struct {
	ID           uuid.UUID
	ModuleUUID   string
	UserID       uuid.UUID
	Rating       int
	Title        string
	Body         string
	HelpfulCount int64 // opaque; never mutated by the aggregator
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Joined author fields (read paths only).
	Username  string
	AvatarURL string
}

// RatingCounts is the stored rollup of a module's reviews.
type RatingCounts struct {
	Count     int64
	Sum       int64
	Histogram [5]int64 // index 0 is rating 1
}

// Add folds one rating into the counts.
func (c *RatingCounts) Add(rating int) {
	c.Count++
	c.Sum += int64(rating)
	c.Histogram[rating-1]++
}

// RatingSummary is the public aggregate for a module.
type RatingSummary struct {
	Average   float64
	Count     int64
	Histogram map[int]int64 // keys 1..5, always present
}

// Summary derives the public aggregate. The average is rounded to one decimal
// place with round-half-to-even, computed in integers so that x.x5 ties are exact.
func (c RatingCounts) Summary() RatingSummary {
	s := RatingSummary{Count: c.Count, Histogram: make(map[int]int64, MaxRating)}
	for r := MinRating; r <= MaxRating; r++ {
		s.Histogram[r] = c.Histogram[r-1]
	}
	if c.Count == 0 {
		return s
	}
	num := c.Sum * 10
	q, rem := num/c.Count, num%c.Count
	switch {
	case 2*rem > c.Count:
		q++
	case 2*rem == c.Count && q%2 == 1:
		q++
	}
	s.Average = float64(q) / 10
	return s
}
