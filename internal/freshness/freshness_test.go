package freshness_test

import (
	"testing"
	"time"

	"jobmate/match-service/internal/freshness"
	"jobmate/match-service/internal/model"
)

var now = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return now.Add(-time.Duration(n) * 24 * time.Hour) }

// ── Labels ─────────────────────────────────────────────────────────────────

func TestLabel_Boundaries(t *testing.T) {
	cases := []struct {
		days int
		want model.FreshnessLabel
	}{
		{0, model.FreshJustPosted},
		{3, model.FreshJustPosted},
		{4, model.FreshThisWeek},
		{7, model.FreshThisWeek},
		{8, model.FreshRecent},
		{15, model.FreshRecent},
		{16, model.FreshStale},
		{400, model.FreshStale},
	}
	for _, c := range cases {
		if got := freshness.Label(c.days); got != c.want {
			t.Errorf("Label(%d) = %q, want %q", c.days, got, c.want)
		}
	}
}

func TestDaysOld_FloorsPartialDays(t *testing.T) {
	if got := freshness.DaysOld(now.Add(-47*time.Hour), now); got != 1 {
		t.Errorf("DaysOld(47h) = %d, want 1", got)
	}
	if got := freshness.DaysOld(now.Add(time.Hour), now); got != 0 {
		t.Errorf("DaysOld(future) = %d, want 0", got)
	}
}

// ── External postings ──────────────────────────────────────────────────────

func TestClassify_ExternalWindow(t *testing.T) {
	c := freshness.New(0)
	cases := []struct {
		days      int
		wantLabel model.FreshnessLabel
		wantValid bool
	}{
		{3, model.FreshJustPosted, true},
		{4, model.FreshThisWeek, true},
		{15, model.FreshRecent, true},
		{16, model.FreshStale, false},
	}
	for _, src := range []model.Source{model.SourceCachedExternal, model.SourceLiveDiscovery} {
		for _, tc := range cases {
			p := model.Posting{Source: src, PostedDate: daysAgo(tc.days)}
			r := c.Classify(&p, now)
			if r.Label != tc.wantLabel || r.Valid != tc.wantValid || r.DaysOld != tc.days {
				t.Errorf("%s age %d: got %+v, want label=%s valid=%v", src, tc.days, r, tc.wantLabel, tc.wantValid)
			}
		}
	}
}

func TestClassify_ExternalWithoutPostedDateIsInvalid(t *testing.T) {
	p := model.Posting{Source: model.SourceCachedExternal}
	if freshness.New(15).Classify(&p, now).Valid {
		t.Error("external posting without posted date must be invalid")
	}
}

// ── Internal postings ──────────────────────────────────────────────────────

// Internal postings ignore the age window: only the expiry matters.
func TestClassify_InternalOldButUnexpired(t *testing.T) {
	exp := now.Add(48 * time.Hour)
	p := model.Posting{Source: model.SourceInternal, PostedDate: daysAgo(16), ExpiresAt: &exp}
	r := freshness.New(15).Classify(&p, now)
	if !r.Valid {
		t.Error("unexpired internal posting must stay valid regardless of age")
	}
	if r.Label != model.FreshStale || r.DaysOld != 16 {
		t.Errorf("got %+v, want stale / 16 days", r)
	}
}

func TestClassify_InternalExpired(t *testing.T) {
	exp := now
	p := model.Posting{Source: model.SourceInternal, PostedDate: daysAgo(1), ExpiresAt: &exp}
	if freshness.New(15).Classify(&p, now).Valid {
		t.Error("posting expiring exactly now must be invalid (now < expiresAt is required)")
	}
}

func TestClassify_InternalWithoutPostedDateIsFresh(t *testing.T) {
	exp := now.Add(time.Hour)
	p := model.Posting{Source: model.SourceInternal, ExpiresAt: &exp}
	r := freshness.New(15).Classify(&p, now)
	if !r.Valid || r.Label != model.FreshJustPosted || r.DaysOld != 0 {
		t.Errorf("got %+v, want valid just-posted 0 days", r)
	}
}
