package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/screenflow/internal/credential"
	flowerr "github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/history"
	"github.com/hpungsan/screenflow/internal/imageset"
	"github.com/hpungsan/screenflow/internal/inference"
	"github.com/hpungsan/screenflow/internal/kv"
	"github.com/hpungsan/screenflow/internal/prompts"
	"github.com/hpungsan/screenflow/internal/submission"
)

type fakeTransport struct {
	mu      sync.Mutex
	text    string
	err     error
	calls   int
	blocks  []inference.Block
	release chan struct{}
	started chan struct{}
}

func (f *fakeTransport) Infer(_ context.Context, _ string, blocks []inference.Block) (string, error) {
	f.mu.Lock()
	f.calls++
	f.blocks = blocks
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.text, f.err
}

type fixture struct {
	ctrl  *Controller
	store *history.Store
	lib   *prompts.Library
	tr    *fakeTransport
}

func newFixture(t *testing.T, key string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := history.New(ctx, kv.NewMemoryStore(), nil)
	lib := prompts.New(ctx, kv.NewMemoryStore(), nil)
	tr := &fakeTransport{text: "flow description"}
	ctrl := New(Deps{
		Prompts:   lib,
		History:   store,
		Builder:   submission.NewBuilder(credential.Static(key), store),
		Transport: tr,
	})
	return &fixture{ctrl: ctrl, store: store, lib: lib, tr: tr}
}

func png(name string) imageset.Source {
	return imageset.BytesSource{Filename: name, Data: []byte(name), MIMEType: "image/png"}
}

func seed(t *testing.T, store *history.Store, subs ...history.Submission) {
	t.Helper()
	// insert oldest first so the slice order ends up newest first
	for i := len(subs) - 1; i >= 0; i-- {
		store.InsertFront(context.Background(), subs[i])
	}
}

func entry(id, analysis, project string, tags ...string) history.Submission {
	return history.Submission{
		ID:           id,
		Timestamp:    time.Now(),
		Images:       []history.Image{{DisplayName: id + ".png", MIMEType: "image/png", Payload: []byte(id)}},
		PromptText:   "prompt for " + id,
		AnalysisText: analysis,
		Project:      project,
		Tags:         tags,
	}
}

func TestNew_StartsComposingWithPreferredPrompt(t *testing.T) {
	f := newFixture(t, "k")
	st := f.ctrl.State()

	assert.Equal(t, ModeComposing, st.Mode)
	assert.Equal(t, -1, st.Cursor)
	assert.Empty(t, st.Images)
	assert.Equal(t, prompts.DefaultText(), st.PromptText)
	assert.NotEmpty(t, f.ctrl.ID())
}

func TestSubmit_ReorderedScenario(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()

	added, err := f.ctrl.Attach(ctx, png("A"), png("B"), png("C"))
	require.NoError(t, err)
	ok, err := f.ctrl.ReorderImage(added[2].ID, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.ctrl.SetPrompt("walk through these"))

	res, err := f.ctrl.Submit(ctx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, "flow description", res.AnalysisText)

	got, ok := f.store.Get(0)
	require.True(t, ok)
	var order []string
	for _, img := range got.Images {
		order = append(order, img.DisplayName)
	}
	assert.Equal(t, []string{"C", "A", "B"}, order)
	assert.Equal(t, "walk through these", got.PromptText)
	assert.Equal(t, "flow description", got.AnalysisText)

	// the transport saw the same order
	require.Len(t, f.tr.blocks, 4)
	assert.Equal(t, "C", string(f.tr.blocks[1].Data))

	st := f.ctrl.State()
	assert.Equal(t, ModeComposing, st.Mode)
	assert.Equal(t, -1, st.Cursor)
	assert.Equal(t, got.ID, st.ActiveID)
}

func TestSubmit_PreconditionsSkipTransport(t *testing.T) {
	ctx := context.Background()

	t.Run("credential", func(t *testing.T) {
		f := newFixture(t, "")
		_, err := f.ctrl.Attach(ctx, png("a"))
		require.NoError(t, err)
		_, err = f.ctrl.Submit(ctx)
		assert.True(t, flowerr.Is(err, flowerr.ErrMissingCredential))
		assert.Equal(t, 0, f.tr.calls)
	})

	t.Run("images", func(t *testing.T) {
		f := newFixture(t, "k")
		_, err := f.ctrl.Submit(ctx)
		assert.True(t, flowerr.Is(err, flowerr.ErrEmptyImageSet))
		assert.Equal(t, 0, f.tr.calls)
	})

	t.Run("prompt", func(t *testing.T) {
		f := newFixture(t, "k")
		_, err := f.ctrl.Attach(ctx, png("a"))
		require.NoError(t, err)
		require.NoError(t, f.ctrl.SetPrompt(""))
		_, err = f.ctrl.Submit(ctx)
		assert.True(t, flowerr.Is(err, flowerr.ErrEmptyPrompt))
		assert.Equal(t, 0, f.tr.calls)
	})
}

func TestSubmit_TransportFailureKeepsDraft(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()
	f.tr.err = flowerr.NewTransport(flowerr.ReasonInvalidCredential, "invalid x-api-key")

	_, err := f.ctrl.Attach(ctx, png("a"), png("b"))
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SetProject("Shop"))

	res, err := f.ctrl.Submit(ctx)
	require.NoError(t, err)
	require.Error(t, res.Err)
	assert.Equal(t, "invalid x-api-key", res.Err.(*flowerr.FlowError).Message)

	assert.Equal(t, 0, f.store.Size())
	st := f.ctrl.State()
	assert.Len(t, st.Images, 2)
	assert.Equal(t, "Shop", st.Project)
	require.NotNil(t, st.Result)
	assert.Error(t, st.Result.Err)

	// retry without re-attaching
	f.tr.err = nil
	res, err = f.ctrl.Submit(ctx)
	require.NoError(t, err)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, f.store.Size())
}

func TestSubmit_SingleRequestInFlight(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()
	f.tr.release = make(chan struct{})
	f.tr.started = make(chan struct{})

	_, err := f.ctrl.Attach(ctx, png("a"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Submit(ctx)
		done <- err
	}()
	<-f.tr.started

	assert.True(t, f.ctrl.State().InFlight)
	_, err = f.ctrl.Submit(ctx)
	assert.True(t, flowerr.Is(err, flowerr.ErrRequestInFlight))

	close(f.tr.release)
	require.NoError(t, <-done)
	assert.False(t, f.ctrl.State().InFlight)
	assert.Equal(t, 1, f.store.Size())
}

func TestSubmit_SnapshotDecoupledFromLaterEdits(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()

	added, err := f.ctrl.Attach(ctx, png("a"), png("b"))
	require.NoError(t, err)
	_, err = f.ctrl.Submit(ctx)
	require.NoError(t, err)

	_, err = f.ctrl.RemoveImage(added[0].ID)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SetPrompt("edited later"))

	got, _ := f.store.Get(0)
	assert.Len(t, got.Images, 2)
	assert.Equal(t, prompts.DefaultText(), got.PromptText)
}

func TestLoadFromHistory(t *testing.T) {
	f := newFixture(t, "k")
	seed(t, f.store, entry("s1", "first", "Shop", "mobile"), entry("s2", "second", ""))

	require.NoError(t, f.ctrl.LoadFromHistory(0))
	st := f.ctrl.State()

	assert.Equal(t, ModeViewingHistory, st.Mode)
	assert.Equal(t, 0, st.Cursor)
	assert.Equal(t, "s1", st.ViewingID)
	assert.Equal(t, "prompt for s1", st.PromptText)
	assert.Equal(t, "Shop", st.Project)
	assert.Equal(t, []string{"mobile"}, st.Tags)
	require.Len(t, st.Images, 1)
	assert.True(t, st.Images[0].Placeholder)
	assert.Equal(t, "first", st.Result.AnalysisText)
	assert.Equal(t, 0, f.tr.calls, "viewing history never re-requests")

	assert.Error(t, f.ctrl.LoadFromHistory(5))
}

func TestViewingHistory_IsReadOnly(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()
	seed(t, f.store, entry("s1", "first", ""))
	require.NoError(t, f.ctrl.LoadFromHistory(0))

	_, err := f.ctrl.Attach(ctx, png("a"))
	assert.True(t, flowerr.Is(err, flowerr.ErrReadOnly))
	assert.True(t, flowerr.Is(f.ctrl.SetPrompt("x"), flowerr.ErrReadOnly))
	assert.True(t, flowerr.Is(f.ctrl.SetProject("x"), flowerr.ErrReadOnly))
	assert.True(t, flowerr.Is(f.ctrl.SetTags([]string{"x"}), flowerr.ErrReadOnly))
	_, err = f.ctrl.Submit(ctx)
	assert.True(t, flowerr.Is(err, flowerr.ErrReadOnly))
}

func TestNavigate(t *testing.T) {
	f := newFixture(t, "k")
	seed(t, f.store, entry("s1", "a", ""), entry("s2", "b", ""), entry("s3", "c", ""))

	// no-op while composing
	f.ctrl.Navigate(1)
	assert.Equal(t, ModeComposing, f.ctrl.State().Mode)

	require.NoError(t, f.ctrl.LoadFromHistory(0))

	f.ctrl.Navigate(-1)
	assert.Equal(t, 0, f.ctrl.State().Cursor, "navigate(-1) at 0 is a no-op")

	f.ctrl.Navigate(1)
	f.ctrl.Navigate(1)
	st := f.ctrl.State()
	assert.Equal(t, 2, st.Cursor)
	assert.Equal(t, "s3", st.ViewingID)
	assert.False(t, st.HasNext())
	assert.True(t, st.HasPrev())

	f.ctrl.Navigate(1)
	assert.Equal(t, 2, f.ctrl.State().Cursor, "no wrap past the end")
}

func TestDeleteViewedEntry_StartsNew(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()
	seed(t, f.store, entry("s1", "a", ""), entry("s2", "b", ""))

	require.NoError(t, f.ctrl.LoadFromHistory(1))
	assert.True(t, f.ctrl.DeleteSubmission(ctx, "s2"))

	st := f.ctrl.State()
	assert.Equal(t, ModeComposing, st.Mode)
	assert.Empty(t, st.Images)
	assert.Nil(t, st.Result)
	assert.Equal(t, prompts.DefaultText(), st.PromptText)
	assert.Empty(t, st.Project)
}

func TestDeleteOtherEntry_RelocatesCursor(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()
	seed(t, f.store, entry("s1", "a", ""), entry("s2", "b", ""), entry("s3", "c", ""))

	require.NoError(t, f.ctrl.LoadFromHistory(2))
	assert.True(t, f.ctrl.DeleteSubmission(ctx, "s1"))
	assert.False(t, f.ctrl.DeleteSubmission(ctx, "s1"))

	st := f.ctrl.State()
	assert.Equal(t, ModeViewingHistory, st.Mode)
	assert.Equal(t, "s3", st.ViewingID)
	assert.Equal(t, 1, st.Cursor)
}

func TestSetFilter_ClampsOrReturnsToComposing(t *testing.T) {
	f := newFixture(t, "k")
	seed(t, f.store,
		entry("s1", "login page", "Auth"),
		entry("s2", "cart", "Shop"),
		entry("s3", "checkout", "Shop"),
	)

	require.NoError(t, f.ctrl.LoadFromHistory(2))

	// viewed entry still matches: cursor follows it
	f.ctrl.SetFilter(history.Query{Project: "Shop"})
	st := f.ctrl.State()
	assert.Equal(t, "s3", st.ViewingID)
	assert.Equal(t, 1, st.Cursor)
	assert.Equal(t, 2, st.FilteredLen)

	// viewed entry filtered out: cursor clamps into the new view
	f.ctrl.SetFilter(history.Query{SearchText: "LOGIN"})
	st = f.ctrl.State()
	assert.Equal(t, ModeViewingHistory, st.Mode)
	assert.Equal(t, 0, st.Cursor)
	assert.Equal(t, "s1", st.ViewingID)

	// empty view: back to composing
	f.ctrl.SetFilter(history.Query{SearchText: "nothing matches this"})
	st = f.ctrl.State()
	assert.Equal(t, ModeComposing, st.Mode)
	assert.Equal(t, -1, st.Cursor)
}

func TestClearHistory(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()
	seed(t, f.store, entry("s1", "a", "P", "t"))
	require.NoError(t, f.ctrl.LoadFromHistory(0))

	f.ctrl.ClearHistory(ctx)
	assert.Equal(t, 0, f.store.Size())
	assert.Equal(t, ModeComposing, f.ctrl.State().Mode)
	assert.Empty(t, f.ctrl.Projects())
	assert.Empty(t, f.ctrl.Tags())
}

func TestExternalDeleteIsReconciled(t *testing.T) {
	f := newFixture(t, "k")
	seed(t, f.store, entry("s1", "a", ""))
	require.NoError(t, f.ctrl.LoadFromHistory(0))

	// another surface removes the entry behind the controller's back
	f.store.DeleteByID(context.Background(), "s1")
	assert.Equal(t, ModeComposing, f.ctrl.State().Mode)
}

func TestStartNew_ReseedsPreferredPrompt(t *testing.T) {
	f := newFixture(t, "k")
	ctx := context.Background()

	require.NoError(t, f.lib.SetPreferred(ctx, "my default"))
	_, err := f.ctrl.Attach(ctx, png("a"))
	require.NoError(t, err)
	require.NoError(t, f.ctrl.SetTags([]string{"x"}))

	f.ctrl.StartNew()
	st := f.ctrl.State()
	assert.Equal(t, "my default", st.PromptText)
	assert.Empty(t, st.Images)
	assert.Empty(t, st.Tags)
}

func TestUseTemplate(t *testing.T) {
	f := newFixture(t, "k")
	require.NoError(t, f.ctrl.UseTemplate("accessibility"))
	assert.Contains(t, f.ctrl.State().PromptText, "accessibility")

	assert.True(t, flowerr.Is(f.ctrl.UseTemplate("nope"), flowerr.ErrNotFound))
}

func TestFacets(t *testing.T) {
	f := newFixture(t, "k")
	var subs []history.Submission
	for i := 0; i < 3; i++ {
		subs = append(subs, entry(fmt.Sprintf("s%d", i), "x", fmt.Sprintf("P%d", i%2), "t"))
	}
	seed(t, f.store, subs...)

	assert.Equal(t, []string{"P0", "P1"}, f.ctrl.Projects())
	assert.Equal(t, []string{"t"}, f.ctrl.Tags())
	assert.Len(t, f.ctrl.Filtered(), 3)
}
