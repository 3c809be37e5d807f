// Package imageset holds the ordered collection of screenshots attached to
// the draft submission.
package imageset

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentReads bounds how many sources are acquired at once.
const maxConcurrentReads = 4

// Item is one attached image.
type Item struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	MIMEType    string `json:"mime_type"`
	Payload     []byte `json:"-"`
}

// Set is an ordered, mutex-guarded list of images. The zero value is not
// usable; call New.
type Set struct {
	mu      sync.Mutex
	items   []Item
	entropy io.Reader
	log     *slog.Logger
}

// New returns an empty Set.
func New(logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		entropy: ulid.Monotonic(rand.Reader, 0),
		log:     logger,
	}
}

// slot receives the outcome of one source read.
type slot struct {
	name string
	data []byte
	mime string
	err  error
}

// Attach acquires every source concurrently and appends the results in the
// order the sources were given, regardless of which read finished first.
// Sources whose type is not image/* are dropped without error. A source that
// fails to read is dropped too; its error is joined into the returned error
// after the successful items have been appended.
func (s *Set) Attach(ctx context.Context, sources ...Source) ([]Item, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	slots := make([]slot, len(sources))

	var g errgroup.Group
	g.SetLimit(maxConcurrentReads)
	for i, src := range sources {
		g.Go(func() error {
			data, mime, err := src.Acquire(ctx)
			slots[i] = slot{name: src.Name(), data: data, mime: mime, err: err}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		added []Item
		errs  []error
	)
	for _, sl := range slots {
		if sl.err != nil {
			s.log.Warn("image read failed", "name", sl.name, "error", sl.err)
			errs = append(errs, fmt.Errorf("read %s: %w", sl.name, sl.err))
			continue
		}
		if !IsImageType(sl.mime) {
			s.log.Debug("skipping non-image attachment", "name", sl.name, "mime_type", sl.mime)
			continue
		}
		item := Item{
			ID:          s.newID(),
			DisplayName: sl.name,
			MIMEType:    sl.mime,
			Payload:     sl.data,
		}
		s.items = append(s.items, item)
		added = append(added, cloneItem(item))
	}

	return added, errors.Join(errs...)
}

// Remove deletes the item with the given id. Returns false if no item matched.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

// Reorder moves the item with the given id to target. Out-of-range targets
// are clamped to the first or last position. Returns false if no item matched.
func (s *Set) Reorder(id string, target int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.indexOf(id)
	if from < 0 {
		return false
	}
	target = max(0, min(target, len(s.items)-1))
	if from == target {
		return true
	}

	item := s.items[from]
	s.items = append(s.items[:from], s.items[from+1:]...)
	s.items = append(s.items[:target], append([]Item{item}, s.items[target:]...)...)
	return true
}

// Clear removes every item.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Replace swaps the contents for items, assigning fresh ids.
func (s *Set) Replace(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]Item, 0, len(items))
	for _, it := range items {
		it = cloneItem(it)
		it.ID = s.newID()
		s.items = append(s.items, it)
	}
}

// Items returns a copy of the current items in order.
func (s *Set) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	for i, it := range s.items {
		out[i] = cloneItem(it)
	}
	return out
}

// Get returns a copy of the item with the given id.
func (s *Set) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Item{}, false
	}
	return cloneItem(s.items[i]), true
}

// Len returns the number of items.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Set) indexOf(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// newID must be called with mu held; the monotonic reader is not safe for
// concurrent use.
func (s *Set) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// IsImageType reports whether mime names an image/* media type.
func IsImageType(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}

func cloneItem(it Item) Item {
	if it.Payload != nil {
		p := make([]byte, len(it.Payload))
		copy(p, it.Payload)
		it.Payload = p
	}
	return it
}
