package submission

import (
	"context"
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
)

type fakeTransport struct {
	text  string
	err   error
	calls int
	got   []inference.Block
}

func (f *fakeTransport) Infer(_ context.Context, _ string, blocks []inference.Block) (string, error) {
	f.calls++
	f.got = blocks
	return f.text, f.err
}

func items(names ...string) []imageset.Item {
	out := make([]imageset.Item, len(names))
	for i, n := range names {
		out[i] = imageset.Item{ID: n, DisplayName: n, MIMEType: "image/png", Payload: []byte(n)}
	}
	return out
}

func newBuilder(t *testing.T, key string) (*Builder, *history.Store) {
	t.Helper()
	store := history.New(context.Background(), kv.NewMemoryStore(), nil)
	return NewBuilder(credential.Static(key), store), store
}

func TestBuild_PreconditionOrder(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		prompt string
		images []imageset.Item
		code   flowerr.ErrorCode
	}{
		{"all missing reports credential first", "", "", nil, flowerr.ErrMissingCredential},
		{"images before prompt", "k", "", nil, flowerr.ErrEmptyImageSet},
		{"prompt", "k", "  \n", items("a"), flowerr.ErrEmptyPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newBuilder(t, tt.key)
			_, err := b.Build(context.Background(), Draft{PromptText: tt.prompt}, tt.images)
			require.Error(t, err)
			assert.True(t, flowerr.Is(err, tt.code), "got %v", err)
			assert.True(t, flowerr.IsPrecondition(err))
		})
	}
}

func TestBuild_BlockOrder(t *testing.T) {
	b, _ := newBuilder(t, "k")

	req, err := b.Build(context.Background(), Draft{PromptText: "describe"}, items("c", "a", "b"))
	require.NoError(t, err)

	require.Len(t, req.Blocks, 4)
	assert.Equal(t, inference.BlockText, req.Blocks[0].Type)
	assert.Equal(t, "describe", req.Blocks[0].Text)
	for i, want := range []string{"c", "a", "b"} {
		assert.Equal(t, inference.BlockImage, req.Blocks[i+1].Type)
		assert.Equal(t, want, string(req.Blocks[i+1].Data))
	}
	assert.Equal(t, "k", req.Credential)
}

func TestBuild_SnapshotIsIndependentOfDraft(t *testing.T) {
	b, _ := newBuilder(t, "k")
	imgs := items("a")
	draft := Draft{PromptText: "p", Project: " Shop ", Tags: []string{"x", "x", " y "}}

	req, err := b.Build(context.Background(), draft, imgs)
	require.NoError(t, err)

	imgs[0].Payload[0] = 'z'
	draft.Tags[0] = "changed"

	assert.Equal(t, "a", string(req.Snapshot.Images[0].Payload))
	assert.Equal(t, "Shop", req.Snapshot.Project)
	assert.Equal(t, []string{"x", "y"}, req.Snapshot.Tags)
}

func TestCommit_InsertsNewestFirst(t *testing.T) {
	b, store := newBuilder(t, "k")
	ctx := context.Background()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	req, err := b.Build(ctx, Draft{PromptText: "p", Project: "Shop"}, items("a", "b"))
	require.NoError(t, err)

	sub := b.Commit(ctx, req, "the analysis")
	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.Timestamp.Equal(fixed))

	got, ok := store.Get(0)
	require.True(t, ok)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, "the analysis", got.AnalysisText)
	assert.Equal(t, "Shop", got.Project)
	require.Len(t, got.Images, 2)
	assert.Equal(t, "a", got.Images[0].DisplayName)
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("success commits", func(t *testing.T) {
		b, store := newBuilder(t, "k")
		tr := &fakeTransport{text: "ok"}
		sub, err := b.Run(ctx, tr, Draft{PromptText: "p"}, items("a"))
		require.NoError(t, err)
		assert.Equal(t, "ok", sub.AnalysisText)
		assert.Equal(t, 1, store.Size())
	})

	t.Run("transport failure leaves history untouched", func(t *testing.T) {
		b, store := newBuilder(t, "k")
		tr := &fakeTransport{err: flowerr.NewTransport(flowerr.ReasonUnavailable, "down")}
		_, err := b.Run(ctx, tr, Draft{PromptText: "p"}, items("a"))
		assert.True(t, flowerr.Is(err, flowerr.ErrTransport))
		assert.Equal(t, 0, store.Size())
	})

	t.Run("precondition failure skips transport", func(t *testing.T) {
		b, _ := newBuilder(t, "")
		tr := &fakeTransport{text: "ok"}
		_, err := b.Run(ctx, tr, Draft{PromptText: "p"}, items("a"))
		assert.True(t, flowerr.Is(err, flowerr.ErrMissingCredential))
		assert.Equal(t, 0, tr.calls)
	})
}
