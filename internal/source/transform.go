package source

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"jobmate/match-service/internal/model"
	"jobmate/match-service/internal/scoring"
)

// RequirementsPlaceholder is used when no requirement sentence is found.
const RequirementsPlaceholder = "See job description for detailed requirements."

const maxRequirements = 8

// vocabulary is the tech keyword list recognised in free text. Display
// forms are returned as written here.
var vocabulary = []string{
	"Go", "Golang", "Python", "Java", "Kotlin", "Scala", "Rust", "C++", "C#", ".NET",
	"JavaScript", "TypeScript", "Node.js", "React", "Angular", "Vue.js", "Svelte", "Next.js",
	"PHP", "Symfony", "Laravel", "Ruby", "Rails", "Django", "Flask", "FastAPI", "Spring",
	"Swift", "Objective-C", "Flutter", "Dart", "Android", "iOS",
	"SQL", "PostgreSQL", "MySQL", "MongoDB", "Redis", "Elasticsearch", "Kafka", "RabbitMQ",
	"GraphQL", "REST", "gRPC",
	"Docker", "Kubernetes", "Terraform", "Ansible", "AWS", "GCP", "Azure", "Linux",
	"CI/CD", "Git", "Jenkins",
	"HTML", "CSS", "Tailwind", "Figma",
	"Machine Learning", "Deep Learning", "TensorFlow", "PyTorch", "Pandas", "Spark",
	"Data Science", "DevOps", "Microservices", "Agile", "Scrum",
}

var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "tr": true, "td": true,
}

// StripMarkup removes HTML tags and entities, keeping text content.
// Script and style bodies are discarded. Whitespace is collapsed; block
// elements become line breaks.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpaces(s)
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseSpaces(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				skip++
			case blockTags[tag]:
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case (tag == "script" || tag == "style") && skip > 0:
				skip--
			case blockTags[tag]:
				b.WriteByte('\n')
			}
		}
	}
}

// collapseSpaces trims each line, collapses runs of blanks and drops empty
// lines.
func collapseSpaces(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// NormalizeLocation trims blanks and drops empty or repeated comma-separated
// parts: " Paris ,  Île-de-France, paris " → "Paris, Île-de-France".
func NormalizeLocation(s string) string {
	seen := make(map[string]bool)
	var parts []string
	for _, p := range strings.Split(s, ",") {
		p = strings.Join(strings.Fields(p), " ")
		k := strings.ToLower(p)
		if p == "" || seen[k] {
			continue
		}
		seen[k] = true
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

var (
	hybridRe = regexp.MustCompile(`(?i)\b(hybrid|hybride|partial(ly)? remote|\d\s*days? (remote|from home))\b`)
	remoteRe = regexp.MustCompile(`(?i)(\b(full(y)?[ -]remote|remote|work from home|wfh)\b|t[ée]l[ée]travail)`)
	onsiteRe = regexp.MustCompile(`(?i)\b(on[ -]?site|in[ -]office|sur site|pr[ée]sentiel)\b`)
)

// DetectWorkArrangement derives a work arrangement from free text. Hybrid
// wins over remote since hybrid listings usually mention both.
func DetectWorkArrangement(texts ...string) model.WorkArrangement {
	all := strings.Join(texts, " ")
	switch {
	case hybridRe.MatchString(all):
		return model.WorkHybrid
	case remoteRe.MatchString(all):
		return model.WorkRemote
	case onsiteRe.MatchString(all):
		return model.WorkOnsite
	}
	return ""
}

// ExtractSkills returns vocabulary terms and extra (candidate) skills found
// in text, deduplicated on their normalized form. Single-token terms must
// match a whole token; multi-word terms match as a phrase.
func ExtractSkills(text string, extra []string) []string {
	lower := strings.ToLower(text)
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(lower, isTokenSep) {
		tok = strings.Trim(tok, ".-/")
		if n := scoring.NormalizeSkill(tok); n != "" {
			tokens[n] = true
		}
	}

	seen := make(map[string]bool)
	var skills []string
	add := func(term string) {
		n := scoring.NormalizeSkill(term)
		if n == "" || seen[n] {
			return
		}
		var found bool
		if strings.ContainsFunc(strings.TrimSpace(term), unicode.IsSpace) {
			found = strings.Contains(lower, strings.ToLower(term))
		} else {
			found = tokens[n]
		}
		if found {
			seen[n] = true
			skills = append(skills, term)
		}
	}

	for _, term := range vocabulary {
		add(term)
	}
	for _, term := range extra {
		add(strings.TrimSpace(term))
	}
	return skills
}

func isTokenSep(r rune) bool {
	return !(unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("+#./-", r))
}

var (
	sentenceSplitRe = regexp.MustCompile(`[.!?]\s+|\n+|•|;`)
	requirementRes  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b\d+\s*\+?\s*(years?|yrs?|ans|années)\b`),
		regexp.MustCompile(`(?i)\b(bachelor'?s?|master'?s?|degree|diploma|phd|bac\s*\+\s*\d|dipl[ôo]me)\b`),
		regexp.MustCompile(`(?i)^\s*(required|requirements?|must[ -]have|qualifications?|you have|you are|profil)\b`),
		regexp.MustCompile(`(?i)\b(experience (with|in)|proficien(t|cy) in|knowledge of|expérience (en|de|avec))\b`),
	}
)

// ExtractRequirements picks requirement-like sentences out of a plain-text
// description: experience durations, degree mentions and "required:"
// style lead-ins. It never returns an empty list.
func ExtractRequirements(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range sentenceSplitRe.Split(text, -1) {
		s = strings.Trim(strings.Join(strings.Fields(s), " "), " -*:")
		if len(s) < 8 || seen[s] {
			continue
		}
		for _, re := range requirementRes {
			if re.MatchString(s) {
				seen[s] = true
				out = append(out, s)
				break
			}
		}
		if len(out) == maxRequirements {
			break
		}
	}
	if len(out) == 0 {
		return []string{RequirementsPlaceholder}
	}
	return out
}
