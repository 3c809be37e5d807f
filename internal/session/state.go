package session

import (
	"strconv"

	"github.com/hpungsan/screenflow/internal/history"
)

// ImageView describes one image on display. Placeholder images come from
// an archived entry and cannot be resubmitted.
type ImageView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	MIMEType    string `json:"mime_type"`
	Placeholder bool   `json:"placeholder"`
}

// State is a point-in-time copy of the session for rendering.
type State struct {
	ID          string        `json:"id"`
	Mode        Mode          `json:"mode"`
	Cursor      int           `json:"cursor"`
	FilteredLen int           `json:"filtered_len"`
	Filter      history.Query `json:"filter"`
	Images      []ImageView   `json:"images"`
	PromptText  string        `json:"prompt_text"`
	Project     string        `json:"project,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	ViewingID   string        `json:"viewing_id,omitempty"`
	ActiveID    string        `json:"active_id,omitempty"`
	Result      *Result       `json:"-"`
	InFlight    bool          `json:"in_flight"`
}

// CanSubmit mirrors the preconditions the UI uses to enable the analyze
// action. The credential check happens at submit time.
func (s State) CanSubmit() bool {
	return s.Mode == ModeComposing && !s.InFlight && len(s.Images) > 0 && s.PromptText != ""
}

// HasPrev reports whether Navigate(-1) would move.
func (s State) HasPrev() bool {
	return s.Mode == ModeViewingHistory && s.Cursor > 0
}

// HasNext reports whether Navigate(+1) would move.
func (s State) HasNext() bool {
	return s.Mode == ModeViewingHistory && s.Cursor < s.FilteredLen-1
}

// State reconciles the cursor against the current history and returns a copy.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconcileLocked()

	st := State{
		ID:         c.id,
		Mode:       c.mode,
		Cursor:     c.cursor,
		Filter:     c.filter,
		PromptText: c.draft.PromptText,
		Project:    c.draft.Project,
		Tags:       append([]string(nil), c.draft.Tags...),
		ActiveID:   c.activeID,
		Result:     c.copyResult(),
		InFlight:   c.inFlight,
	}
	if c.mode == ModeViewingHistory {
		st.FilteredLen = len(c.filteredLocked())
		st.ViewingID = c.viewing.ID
		for i, img := range c.viewing.Images {
			st.Images = append(st.Images, ImageView{
				ID:          placeholderID(c.viewing.ID, i),
				DisplayName: img.DisplayName,
				MIMEType:    img.MIMEType,
				Placeholder: true,
			})
		}
		return st
	}

	for _, it := range c.images.Items() {
		st.Images = append(st.Images, ImageView{
			ID:          it.ID,
			DisplayName: it.DisplayName,
			MIMEType:    it.MIMEType,
		})
	}
	return st
}

func placeholderID(submissionID string, index int) string {
	return submissionID + "/" + strconv.Itoa(index)
}
