// Package freshness converts a posting's age and expiry into a validity flag
// and a display label.
//
// Internal postings are valid until their expiry regardless of age; external
// postings (cached or live) are valid only within the freshness window.
package freshness

import (
	"time"

	"jobmate/match-service/internal/model"
)

// DefaultWindowDays is the maximum age, in days, of a valid external posting.
const DefaultWindowDays = 15

const day = 24 * time.Hour

// Result is the outcome of classifying one posting.
type Result struct {
	DaysOld int
	Label   model.FreshnessLabel
	Valid   bool
}

// Classifier classifies postings against a fixed window.
type Classifier struct {
	WindowDays int
}

// New returns a Classifier; a non-positive window falls back to the default.
func New(windowDays int) Classifier {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return Classifier{WindowDays: windowDays}
}

// Classify computes days old, label and validity of p at instant now.
func (c Classifier) Classify(p *model.Posting, now time.Time) Result {
	window := c.WindowDays
	if window <= 0 {
		window = DefaultWindowDays
	}

	if p.Source == model.SourceInternal {
		valid := p.ExpiresAt != nil && now.Before(*p.ExpiresAt)
		if p.PostedDate.IsZero() {
			return Result{DaysOld: 0, Label: model.FreshJustPosted, Valid: valid}
		}
		d := DaysOld(p.PostedDate, now)
		return Result{DaysOld: d, Label: Label(d), Valid: valid}
	}

	if p.PostedDate.IsZero() {
		return Result{Label: model.FreshStale, Valid: false}
	}
	d := DaysOld(p.PostedDate, now)
	return Result{DaysOld: d, Label: Label(d), Valid: d <= window}
}

// DaysOld returns floor((now - posted) / 1 day), never negative.
func DaysOld(posted, now time.Time) int {
	age := now.Sub(posted)
	if age <= 0 {
		return 0
	}
	return int(age / day)
}

// Label buckets an age in days: 0–3 just-posted, 4–7 this-week, 8–15 recent,
// older is stale.
func Label(daysOld int) model.FreshnessLabel {
	switch {
	case daysOld <= 3:
		return model.FreshJustPosted
	case daysOld <= 7:
		return model.FreshThisWeek
	case daysOld <= 15:
		return model.FreshRecent
	default:
		return model.FreshStale
	}
}
