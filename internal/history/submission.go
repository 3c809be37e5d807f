// Package history archives completed submissions and derives the filtered
// views the session navigates.
package history

import (
	"strings"
	"time"
)

// Image is an archived screenshot, captured by value at submission time.
type Image struct {
	DisplayName string `json:"display_name"`
	MIMEType    string `json:"mime_type"`
	Payload     []byte `json:"payload,omitempty"`
}

// Submission is one completed analysis. Archived submissions are never
// edited; only deleted.
type Submission struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Images       []Image   `json:"images"`
	PromptText   string    `json:"prompt_text"`
	AnalysisText string    `json:"analysis_text"`
	Project      string    `json:"project,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
}

// Clone returns a deep copy.
func (s Submission) Clone() Submission {
	out := s
	if s.Images != nil {
		out.Images = make([]Image, len(s.Images))
		for i, img := range s.Images {
			out.Images[i] = img
			if img.Payload != nil {
				out.Images[i].Payload = append([]byte(nil), img.Payload...)
			}
		}
	}
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	return out
}

// Summary is the list view of a submission without image payloads.
type Summary struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ImageCount int       `json:"image_count"`
	Project    string    `json:"project,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Preview    string    `json:"preview"`
}

const previewLen = 140

// Summarize builds the list view of s.
func Summarize(s Submission) Summary {
	preview := strings.Join(strings.Fields(s.AnalysisText), " ")
	if r := []rune(preview); len(r) > previewLen {
		preview = string(r[:previewLen]) + "…"
	}
	return Summary{
		ID:         s.ID,
		Timestamp:  s.Timestamp,
		ImageCount: len(s.Images),
		Project:    s.Project,
		Tags:       append([]string(nil), s.Tags...),
		Preview:    preview,
	}
}

// NormalizeTags trims, drops empties and removes duplicates while keeping
// first-seen order. Duplicates compare case-insensitively, matching search,
// and the first spelling wins.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		k := strings.ToLower(t)
		if t == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// ParseTags splits a comma-separated tag list.
func ParseTags(raw string) []string {
	return NormalizeTags(strings.Split(raw, ","))
}
