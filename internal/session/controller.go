// Package session mediates which submission is current: the live draft
// being composed, or an archived entry being browsed through the filtered
// history view.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	flowerr "github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/imageset"
	"github.com/hpungsan/screenflow/internal/inference"
	"github.com/hpungsan/screenflow/internal/prompts"
	"github.com/hpungsan/screenflow/internal/submission"
)

// Mode is the controller state.
type Mode string

const (
	ModeComposing      Mode = "composing"
	ModeViewingHistory Mode = "viewing_history"
)

// Result is the analysis currently on display. Err is set when the last
// submission failed in transport; the draft is kept for a retry.
type Result struct {
	SubmissionID string
	AnalysisText string
	Err          error
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Images    *imageset.Set
	Prompts   *prompts.Library
	History   *history.Store
	Builder   *submission.Builder
	Transport inference.Transport
	Logger    *slog.Logger
}

// Controller owns one user session. Safe for concurrent use; the lock is
// never held across the inference call.
type Controller struct {
	id        string
	images    *imageset.Set
	prompts   *prompts.Library
	store     *history.Store
	builder   *submission.Builder
	transport inference.Transport
	log       *slog.Logger

	mu       sync.Mutex
	mode     Mode
	cursor   int
	filter   history.Query
	draft    submission.Draft
	viewing  *history.Submission
	result   *Result
	activeID string
	inFlight bool
}

// New returns a Controller in Composing with a draft seeded from the
// preferred prompt.
func New(d Deps) *Controller {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	images := d.Images
	if images == nil {
		images = imageset.New(logger)
	}

	id := uuid.NewString()
	if v7, err := uuid.NewV7(); err == nil {
		id = v7.String()
	}

	c := &Controller{
		id:        id,
		images:    images,
		prompts:   d.Prompts,
		store:     d.History,
		builder:   d.Builder,
		transport: d.Transport,
		log:       logger.With("session_id", id),
	}
	c.startNewLocked()
	return c
}

// ID identifies the session in logs.
func (c *Controller) ID() string { return c.id }

func (c *Controller) startNewLocked() {
	c.mode = ModeComposing
	c.cursor = -1
	c.viewing = nil
	c.result = nil
	c.images.Clear()
	c.draft = submission.Draft{PromptText: c.seedPrompt()}
}

func (c *Controller) seedPrompt() string {
	if c.prompts == nil {
		return prompts.DefaultText()
	}
	return c.prompts.Preferred()
}

// StartNew discards the draft and any displayed result and returns to
// Composing.
func (c *Controller) StartNew() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startNewLocked()
}

func (c *Controller) requireComposingLocked() error {
	if c.mode != ModeComposing {
		return flowerr.NewReadOnly("archived submissions cannot be edited; start a new analysis first")
	}
	return nil
}

// Attach adds images to the draft in source order.
func (c *Controller) Attach(ctx context.Context, sources ...imageset.Source) ([]imageset.Item, error) {
	c.mu.Lock()
	if err := c.requireComposingLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	return c.images.Attach(ctx, sources...)
}

// RemoveImage drops an image from the draft. Unknown ids are a no-op.
func (c *Controller) RemoveImage(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireComposingLocked(); err != nil {
		return false, err
	}
	return c.images.Remove(id), nil
}

// ReorderImage moves an image to target (clamped).
func (c *Controller) ReorderImage(id string, target int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireComposingLocked(); err != nil {
		return false, err
	}
	return c.images.Reorder(id, target), nil
}

// DraftImage returns one draft image with its payload.
func (c *Controller) DraftImage(id string) (imageset.Item, bool) {
	return c.images.Get(id)
}

// SetPrompt replaces the draft prompt text.
func (c *Controller) SetPrompt(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireComposingLocked(); err != nil {
		return err
	}
	c.draft.PromptText = text
	return nil
}

// UseTemplate copies a built-in or custom template into the draft prompt.
func (c *Controller) UseTemplate(id string) error {
	if c.prompts == nil {
		return flowerr.NewNotFound("template", id)
	}
	text, err := c.prompts.Lookup(id)
	if err != nil {
		return err
	}
	return c.SetPrompt(text)
}

// SetProject sets the draft project.
func (c *Controller) SetProject(project string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireComposingLocked(); err != nil {
		return err
	}
	c.draft.Project = strings.TrimSpace(project)
	return nil
}

// SetTags replaces the draft tags.
func (c *Controller) SetTags(tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireComposingLocked(); err != nil {
		return err
	}
	c.draft.Tags = history.NormalizeTags(tags)
	return nil
}

// Submit builds the draft and sends it. Refusals (preconditions, a request
// already in flight, viewing history) come back as the error. A transport
// failure does not: it is recorded in the returned Result and the draft is
// left intact so the user can retry.
func (c *Controller) Submit(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if err := c.requireComposingLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.inFlight {
		c.mu.Unlock()
		return nil, flowerr.NewRequestInFlight()
	}
	req, err := c.builder.Build(ctx, c.draft, c.images.Items())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.inFlight = true
	c.result = nil
	c.mu.Unlock()

	c.log.Info("submitting analysis", "images", len(req.Snapshot.Images))
	analysis, inferErr := c.transport.Infer(ctx, req.Credential, req.Blocks)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false

	if inferErr != nil {
		c.log.Warn("analysis failed", "reason", flowerr.Reason(inferErr), "error", inferErr)
		c.result = &Result{Err: inferErr}
		return c.copyResult(), nil
	}

	sub := c.builder.Commit(ctx, req, analysis)
	c.commitSubmissionLocked(sub)
	c.log.Info("analysis archived", "submission_id", sub.ID)
	return c.copyResult(), nil
}

// commitSubmissionLocked makes a freshly archived entry active and returns
// to Composing.
func (c *Controller) commitSubmissionLocked(sub history.Submission) {
	c.mode = ModeComposing
	c.cursor = -1
	c.viewing = nil
	c.activeID = sub.ID
	c.result = &Result{SubmissionID: sub.ID, AnalysisText: sub.AnalysisText}
}

func (c *Controller) copyResult() *Result {
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

func (c *Controller) filteredLocked() []history.Submission {
	return history.Filter(c.store.Snapshot(), c.filter)
}

// LoadFromHistory shows the entry at filteredIndex of the current filtered
// view. The draft is replaced by the archived values; images become
// placeholders and no request is made.
func (c *Controller) LoadFromHistory(filteredIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	filtered := c.filteredLocked()
	if filteredIndex < 0 || filteredIndex >= len(filtered) {
		return flowerr.NewInvalidRequest("history index out of range")
	}
	c.viewLocked(filtered, filteredIndex)
	return nil
}

func (c *Controller) viewLocked(filtered []history.Submission, index int) {
	sub := filtered[index]
	c.mode = ModeViewingHistory
	c.cursor = index
	c.viewing = &sub
	c.images.Clear()
	c.draft = submission.Draft{
		PromptText: sub.PromptText,
		Project:    sub.Project,
		Tags:       append([]string(nil), sub.Tags...),
	}
	c.result = &Result{SubmissionID: sub.ID, AnalysisText: sub.AnalysisText}
}

// Navigate moves the cursor by delta within the filtered view. Moves past
// either end, and any move while Composing, are no-ops.
func (c *Controller) Navigate(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeViewingHistory {
		return
	}
	c.reconcileLocked()
	if c.mode != ModeViewingHistory {
		return
	}
	filtered := c.filteredLocked()
	next := c.cursor + delta
	if next < 0 || next >= len(filtered) {
		return
	}
	c.viewLocked(filtered, next)
}

// SetFilter changes the history query and keeps the cursor valid.
func (c *Controller) SetFilter(q history.Query) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.filter = q
	c.reconcileLocked()
}

// Filter returns the active history query.
func (c *Controller) Filter() history.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// reconcileLocked restores the cursor invariant after the filter or the
// history changed. A viewed entry that no longer exists forces StartNew; one
// that merely fell out of the filter moves the cursor to the clamped
// position, or back to Composing if the view is empty.
func (c *Controller) reconcileLocked() {
	if c.mode != ModeViewingHistory {
		return
	}
	if _, _, ok := c.store.Find(c.viewing.ID); !ok {
		c.startNewLocked()
		return
	}

	filtered := c.filteredLocked()
	if len(filtered) == 0 {
		c.startNewLocked()
		return
	}
	for i, s := range filtered {
		if s.ID == c.viewing.ID {
			c.cursor = i
			return
		}
	}
	c.viewLocked(filtered, min(c.cursor, len(filtered)-1))
}

// DeleteSubmission removes an archived entry. Deleting the entry on
// display returns to Composing with a fresh draft.
func (c *Controller) DeleteSubmission(ctx context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := c.store.DeleteByID(ctx, id)
	if !found {
		return false
	}

	if c.activeID == id {
		c.activeID = ""
	}
	if c.mode == ModeViewingHistory && c.viewing.ID == id {
		c.startNewLocked()
		return true
	}
	if c.result != nil && c.result.SubmissionID == id {
		c.result = nil
	}
	c.reconcileLocked()
	return true
}

// ClearHistory removes every archived entry.
func (c *Controller) ClearHistory(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Clear(ctx)
	c.activeID = ""
	if c.mode == ModeViewingHistory {
		c.startNewLocked()
		return
	}
	if c.result != nil && c.result.SubmissionID != "" {
		c.result = nil
	}
}

// Filtered returns the current filtered history view.
func (c *Controller) Filtered() []history.Submission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filteredLocked()
}

// Projects returns the distinct projects across all history.
func (c *Controller) Projects() []string {
	return history.DistinctProjects(c.store.Snapshot())
}

// Tags returns the distinct tags across all history.
func (c *Controller) Tags() []string {
	return history.DistinctTags(c.store.Snapshot())
}
