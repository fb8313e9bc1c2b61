package ranker

import "jobmate/match-service/internal/model"

// DefaultMaxExternal caps the discovered section.
const DefaultMaxExternal = 20

// Sections is the two-view presentation of a ranked result.
type Sections struct {
	// Direct holds every internal match.
	Direct []model.ScoredMatch
	// Discovered holds the best external matches, at most the cap.
	Discovered []model.ScoredMatch
	// DiscoveredTotal counts external matches before the cap.
	DiscoveredTotal int
}

// Section splits ranked matches by origin and caps the external view at
// maxExternal (DefaultMaxExternal when not positive). Input order is kept,
// so callers pass Rank output.
func Section(matches []model.ScoredMatch, maxExternal int) Sections {
	if maxExternal <= 0 {
		maxExternal = DefaultMaxExternal
	}

	s := Sections{
		Direct:     make([]model.ScoredMatch, 0),
		Discovered: make([]model.ScoredMatch, 0),
	}
	for _, m := range matches {
		if m.Posting.Source == model.SourceInternal {
			s.Direct = append(s.Direct, m)
			continue
		}
		s.DiscoveredTotal++
		if len(s.Discovered) < maxExternal {
			s.Discovered = append(s.Discovered, m)
		}
	}
	return s
}
