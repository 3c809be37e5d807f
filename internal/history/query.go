package history

import "strings"

// Query narrows the history view. Zero fields match everything.
type Query struct {
	SearchText string `json:"q,omitempty"`
	Project    string `json:"project,omitempty"`
}

// IsZero reports whether q filters nothing.
func (q Query) IsZero() bool {
	return q.SearchText == "" && q.Project == ""
}

// Matches applies both predicates: a case-insensitive substring of the
// analysis text, project or any tag, and exact project equality. The search
// text is used as given, surrounding whitespace included.
func (q Query) Matches(s Submission) bool {
	if q.Project != "" && s.Project != q.Project {
		return false
	}
	needle := strings.ToLower(q.SearchText)
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(s.AnalysisText), needle) ||
		strings.Contains(strings.ToLower(s.Project), needle) {
		return true
	}
	for _, t := range s.Tags {
		if strings.Contains(strings.ToLower(t), needle) {
			return true
		}
	}
	return false
}

// Filter returns the submissions matching q, keeping order.
func Filter(subs []Submission, q Query) []Submission {
	out := make([]Submission, 0, len(subs))
	for _, s := range subs {
		if q.Matches(s) {
			out = append(out, s)
		}
	}
	return out
}

// DistinctProjects returns non-empty project names in first-seen order.
func DistinctProjects(subs []Submission) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range subs {
		if s.Project != "" && !seen[s.Project] {
			seen[s.Project] = true
			out = append(out, s.Project)
		}
	}
	return out
}

// DistinctTags returns tags in first-seen order across all submissions.
// Tags differing only in case count once, under the first spelling seen.
func DistinctTags(subs []Submission) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range subs {
		for _, t := range s.Tags {
			k := strings.ToLower(t)
			if t != "" && !seen[k] {
				seen[k] = true
				out = append(out, t)
			}
		}
	}
	return out
}
