// Package prompts manages the built-in prompt templates, user-defined
// templates and the preferred working prompt.
package prompts

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	flowerr "github.com/hpungsan/screenflow/internal/errors"
	"github.com/hpungsan/screenflow/internal/kv"
)

// Storage keys.
const (
	KeyCustom    = "prompts/custom"
	KeyPreferred = "prompts/preferred"
)

// Custom is a user-defined template. Names need not be unique.
type Custom struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type preferredBlob struct {
	Text string `json:"text"`
}

// Library is the prompt library. Reads never touch storage after New.
type Library struct {
	mu        sync.RWMutex
	store     kv.Store
	log       *slog.Logger
	entropy   io.Reader
	custom    []Custom
	preferred string
	degraded  bool
}

// New loads custom templates and the preferred prompt from store.
// Missing or unreadable blobs load as empty.
func New(ctx context.Context, store kv.Store, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Library{
		store:   store,
		log:     logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}

	if data, ok := l.load(ctx, KeyCustom); ok {
		var custom []Custom
		if err := json.Unmarshal(data, &custom); err != nil {
			l.log.Warn("discarding unreadable custom prompts", "error", err)
		} else {
			l.custom = custom
		}
	}
	if data, ok := l.load(ctx, KeyPreferred); ok {
		var p preferredBlob
		if err := json.Unmarshal(data, &p); err != nil {
			l.log.Warn("discarding unreadable preferred prompt", "error", err)
		} else {
			l.preferred = p.Text
		}
	}
	return l
}

func (l *Library) load(ctx context.Context, key string) ([]byte, bool) {
	data, err := l.store.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			l.log.Warn("prompt storage read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

// ListBuiltins returns the fixed templates.
func (l *Library) ListBuiltins() []Template {
	return Builtins()
}

// ListCustom returns user templates in creation order.
func (l *Library) ListCustom() []Custom {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Custom, len(l.custom))
	copy(out, l.custom)
	return out
}

// DefaultText returns the default prompt text.
func (l *Library) DefaultText() string {
	return DefaultText()
}

// Save appends a custom template. Duplicate names are allowed.
func (l *Library) Save(ctx context.Context, name, text string) (Custom, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Custom{}, flowerr.NewInvalidRequest("name is required")
	}
	if strings.TrimSpace(text) == "" {
		return Custom{}, flowerr.NewInvalidRequest("text is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c := Custom{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String(),
		Name:      name,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	l.custom = append(l.custom, c)
	l.persistLocked(ctx, KeyCustom, l.custom)
	return c, nil
}

// Delete removes a custom template. Built-in ids are rejected with
// READ_ONLY; unknown ids return false.
func (l *Library) Delete(ctx context.Context, id string) (bool, error) {
	if isBuiltin(id) {
		return false, flowerr.NewReadOnly("built-in templates cannot be deleted")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, c := range l.custom {
		if c.ID == id {
			l.custom = append(l.custom[:i], l.custom[i+1:]...)
			l.persistLocked(ctx, KeyCustom, l.custom)
			return true, nil
		}
	}
	return false, nil
}

// Lookup returns the text of a built-in or custom template.
func (l *Library) Lookup(id string) (string, error) {
	for _, b := range builtins {
		if b.ID == id {
			return b.Text, nil
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, c := range l.custom {
		if c.ID == id {
			return c.Text, nil
		}
	}
	return "", flowerr.NewNotFound("template", id)
}

// Preferred returns the saved working prompt, or the default text.
func (l *Library) Preferred() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.preferred != "" {
		return l.preferred
	}
	return DefaultText()
}

// SetPreferred saves text as the prompt new drafts start from.
func (l *Library) SetPreferred(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return flowerr.NewEmptyPrompt()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.preferred = text
	l.persistLocked(ctx, KeyPreferred, preferredBlob{Text: text})
	return nil
}

// ResetPreferred reverts the working prompt to the default text.
func (l *Library) ResetPreferred(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.preferred = ""
	l.persistLocked(ctx, KeyPreferred, preferredBlob{})
}

// Degraded reports whether a write has failed and changes are memory-only.
func (l *Library) Degraded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.degraded
}

// MarkDegraded records that the library has no durable backend.
func (l *Library) MarkDegraded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.degraded = true
}

// persistLocked writes v under key. Failures are logged; in-memory state
// stays authoritative.
func (l *Library) persistLocked(ctx context.Context, key string, v any) {
	if l.degraded {
		return
	}
	data, err := json.Marshal(v)
	if err == nil {
		err = l.store.Save(ctx, key, data)
	}
	if err != nil {
		l.degraded = true
		l.log.Error("prompt storage write failed; continuing in memory", "key", key, "error", err)
	}
}
