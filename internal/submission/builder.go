// Package submission turns a draft into an inference request and archives
// the outcome.
package submission

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/screenflow/internal/credential"
	flowerr "github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/imageset"
	"github.com/hpungsan/screenflow/internal/inference"
)

// Draft is the editable metadata of the in-progress submission.
type Draft struct {
	PromptText string
	Project    string
	Tags       []string
}

// Request is a validated, ready-to-send submission. Snapshot holds the
// values that will be archived if the call succeeds, captured at build
// time so later draft edits do not leak into history.
type Request struct {
	Credential string
	Blocks     []inference.Block
	Snapshot   history.Submission
}

// Builder validates drafts and commits successful results.
type Builder struct {
	creds   credential.Store
	store   *history.Store
	now     func() time.Time
	mu      sync.Mutex
	entropy io.Reader
}

// NewBuilder returns a Builder that reads credentials from creds and
// archives into store.
func NewBuilder(creds credential.Store, store *history.Store) *Builder {
	return &Builder{
		creds:   creds,
		store:   store,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Build checks preconditions in order (credential, images, prompt) and
// assembles the request: one text block with the prompt followed by one
// image block per item in set order.
func (b *Builder) Build(ctx context.Context, draft Draft, items []imageset.Item) (*Request, error) {
	key, ok, err := b.creds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if !ok {
		return nil, flowerr.NewMissingCredential()
	}
	if len(items) == 0 {
		return nil, flowerr.NewEmptyImageSet()
	}
	if strings.TrimSpace(draft.PromptText) == "" {
		return nil, flowerr.NewEmptyPrompt()
	}

	blocks := make([]inference.Block, 0, len(items)+1)
	blocks = append(blocks, inference.TextBlock(draft.PromptText))

	images := make([]history.Image, 0, len(items))
	for _, it := range items {
		payload := append([]byte(nil), it.Payload...)
		blocks = append(blocks, inference.ImageBlock(it.MIMEType, payload))
		images = append(images, history.Image{
			DisplayName: it.DisplayName,
			MIMEType:    it.MIMEType,
			Payload:     payload,
		})
	}

	return &Request{
		Credential: key,
		Blocks:     blocks,
		Snapshot: history.Submission{
			Images:     images,
			PromptText: draft.PromptText,
			Project:    strings.TrimSpace(draft.Project),
			Tags:       history.NormalizeTags(draft.Tags),
		},
	}, nil
}

// Commit archives req with analysis as the newest history entry and
// returns the stored submission.
func (b *Builder) Commit(ctx context.Context, req *Request, analysis string) history.Submission {
	sub := req.Snapshot.Clone()

	b.mu.Lock()
	now := b.now()
	sub.ID = ulid.MustNew(ulid.Timestamp(now), b.entropy).String()
	b.mu.Unlock()

	sub.Timestamp = now.UTC()
	sub.AnalysisText = analysis
	b.store.InsertFront(ctx, sub)
	return sub
}

// Run builds, sends and commits in one call. Used by the one-shot CLI and
// MCP surfaces that have no session.
func (b *Builder) Run(ctx context.Context, tr inference.Transport, draft Draft, items []imageset.Item) (history.Submission, error) {
	req, err := b.Build(ctx, draft, items)
	if err != nil {
		return history.Submission{}, err
	}
	analysis, err := tr.Infer(ctx, req.Credential, req.Blocks)
	if err != nil {
		return history.Submission{}, err
	}
	return b.Commit(ctx, req, analysis), nil
}
