package recipe

import (
	"math"

	"github.com/dishly/dishly/internal/backend"
)

// RatingSummary aggregates the reviews of a recipe. Reviews without a numeric
// rating count toward Total only. When no review carries a rating the
// summary is Pending and has no Average.
type RatingSummary struct {
	Average *float64 `json:"average,omitempty"`
	Rated   int      `json:"rated"`
	Total   int      `json:"total"`
	Pending bool     `json:"pending"`
}

func Summarize(reviews []backend.Review) RatingSummary {
	s := RatingSummary{Total: len(reviews)}
	var sum float64
	for _, r := range reviews {
		if r.Rating == nil || math.IsNaN(*r.Rating) {
			continue
		}
		sum += *r.Rating
		s.Rated++
	}
	if s.Rated == 0 {
		s.Pending = true
		return s
	}
	avg := math.Round(sum/float64(s.Rated)*10) / 10
	s.Average = &avg
	return s
}
