// Package library is the facade over the persistent store, the smart album
// evaluator, and the thumbnail cache. It holds the entire catalog in memory
// for instant reads, applies mutations to memory first, and persists them
// through a single background writer so the UI thread never waits on the
// database.
package library

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"photo-library/internal/liberr"
	"photo-library/internal/logging"
	"photo-library/internal/metrics"
	"photo-library/internal/store"
)

// EventType classifies change notifications.
type EventType string

const (
	EventImageAdded   EventType = "imageAdded"
	EventImageUpdated EventType = "imageUpdated"
	EventImageDeleted EventType = "imageDeleted"
	EventAlbumChanged EventType = "albumChanged"
	EventAlbumDeleted EventType = "albumDeleted"
	EventPersistError EventType = "persistError"
)

// Event describes one catalog change. ID is the image or album affected,
// empty for persist errors.
type Event struct {
	Type EventType
	ID   string
}

// Observer receives change events. Observers are called synchronously on
// the mutating goroutine and must not block.
type Observer func(Event)

// Invalidator drops cached thumbnails for an image. Satisfied by the
// thumbnail cache; nil disables invalidation.
type Invalidator interface {
	Invalidate(imageID string)
}

const persistTimeout = 30 * time.Second

type persistOp struct {
	name string
	run  func(ctx context.Context) error
}

// Library is the in-memory catalog facade. All exported methods are safe
// for concurrent use.
type Library struct {
	store *store.Store
	cache Invalidator

	mu            sync.RWMutex
	images        map[string]*store.Image
	imagesByFP    map[string]string // fingerprint -> image id
	edits         map[string]*store.EditState
	albums        map[string]*store.Album

	persistCh chan persistOp
	drained   chan struct{}
	closed    bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int

	errMu      sync.Mutex
	persistErr error
}

// Open loads the whole catalog from the store and starts the background
// persister. cache may be nil.
func Open(ctx context.Context, st *store.Store, cache Invalidator) (*Library, error) {
	images, err := st.FetchAllImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	keywords, err := st.FetchKeywordLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load keywords: %w", err)
	}
	albums, err := st.FetchAllAlbums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load albums: %w", err)
	}

	l := &Library{
		store:      st,
		cache:      cache,
		images:     make(map[string]*store.Image, len(images)),
		imagesByFP: make(map[string]string, len(images)),
		edits:      make(map[string]*store.EditState),
		albums:     make(map[string]*store.Album, len(albums)),
		persistCh:  make(chan persistOp, 256),
		drained:    make(chan struct{}),
		observers:  make(map[int]Observer),
	}
	for _, img := range images {
		img.Keywords = keywords[img.ID]
		l.images[img.ID] = img
		l.imagesByFP[img.Fingerprint] = img.ID
	}
	for _, a := range albums {
		l.albums[a.ID] = a
	}

	go l.persister()

	logging.Info("Library loaded: %d images, %d albums", len(images), len(albums))
	return l, nil
}

// Close drains pending persist operations and stops the persister. The
// library must not be used afterwards.
func (l *Library) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.persistCh)
	l.mu.Unlock()

	<-l.drained
	return l.LastPersistError()
}

// persister applies queued writes in order on a single goroutine. A failed
// write is logged, counted, and surfaced through LastPersistError; the
// queue keeps moving so one bad write cannot wedge the library.
func (l *Library) persister() {
	for op := range l.persistCh {
		metrics.FacadePersistQueueDepth.Set(float64(len(l.persistCh)))

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := op.run(ctx)
		cancel()

		if err != nil {
			metrics.FacadePersistFailures.Inc()
			logging.Error("Persist %s failed: %v", op.name, err)
			l.errMu.Lock()
			l.persistErr = fmt.Errorf("persist %s: %w", op.name, err)
			l.errMu.Unlock()
			l.notify(Event{Type: EventPersistError})
		}
	}
	close(l.drained)
}

func (l *Library) enqueue(name string, run func(ctx context.Context) error) {
	metrics.FacadeMutationsTotal.WithLabelValues(name).Inc()
	l.persistCh <- persistOp{name: name, run: run}
	metrics.FacadePersistQueueDepth.Set(float64(len(l.persistCh)))
}

// Flush blocks until every previously enqueued write has been attempted.
func (l *Library) Flush(ctx context.Context) error {
	done := make(chan struct{})
	l.persistCh <- persistOp{name: "flush", run: func(context.Context) error {
		close(done)
		return nil
	}}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", liberr.ErrCanceled, ctx.Err())
	}
}

// LastPersistError returns the most recent background write failure, or
// nil. The error sticks until ClearPersistError.
func (l *Library) LastPersistError() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.persistErr
}

// ClearPersistError acknowledges a surfaced write failure.
func (l *Library) ClearPersistError() {
	l.errMu.Lock()
	l.persistErr = nil
	l.errMu.Unlock()
}

// Subscribe registers an observer and returns its unsubscribe function.
func (l *Library) Subscribe(obs Observer) func() {
	l.obsMu.Lock()
	id := l.nextObsID
	l.nextObsID++
	l.observers[id] = obs
	l.obsMu.Unlock()

	return func() {
		l.obsMu.Lock()
		delete(l.observers, id)
		l.obsMu.Unlock()
	}
}

func (l *Library) notify(ev Event) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	for _, obs := range l.observers {
		obs(ev)
	}
}

// Images returns clones of every image, newest capture first with undated
// images last, matching the store's load order.
func (l *Library) Images() []*store.Image {
	l.mu.RLock()
	out := make([]*store.Image, 0, len(l.images))
	for _, img := range l.images {
		out = append(out, img.Clone())
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.CaptureDate == nil && b.CaptureDate == nil:
			return a.ImportDate.After(b.ImportDate)
		case a.CaptureDate == nil:
			return false
		case b.CaptureDate == nil:
			return true
		case !a.CaptureDate.Equal(*b.CaptureDate):
			return a.CaptureDate.After(*b.CaptureDate)
		default:
			return a.ImportDate.After(b.ImportDate)
		}
	})
	return out
}

// Image returns a clone of one image or liberr.ErrNotFound.
func (l *Library) Image(id string) (*store.Image, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	img, ok := l.images[id]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
	}
	return img.Clone(), nil
}

// FindByFingerprint is the import pipeline's duplicate probe.
func (l *Library) FindByFingerprint(ctx context.Context, fp string) (*store.Image, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if id, ok := l.imagesByFP[fp]; ok {
		return l.images[id].Clone(), nil
	}
	return nil, fmt.Errorf("fingerprint %s: %w", fp, liberr.ErrNotFound)
}

// Insert registers a new image, memory first, store write in the
// background. Used by the import pipeline.
func (l *Library) Insert(ctx context.Context, img *store.Image) error {
	clone := img.Clone()

	l.mu.Lock()
	if _, exists := l.images[clone.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("image %s: %w", clone.ID, liberr.ErrConstraint)
	}
	if _, exists := l.imagesByFP[clone.Fingerprint]; exists {
		l.mu.Unlock()
		return fmt.Errorf("fingerprint %s: %w", clone.Fingerprint, liberr.ErrConstraint)
	}
	l.images[clone.ID] = clone
	l.imagesByFP[clone.Fingerprint] = clone.ID
	l.mu.Unlock()

	persisted := clone.Clone()
	l.enqueue("insertImage", func(ctx context.Context) error {
		if err := l.store.InsertImage(ctx, persisted); err != nil {
			return err
		}
		for _, word := range persisted.Keywords {
			if err := l.store.AddKeyword(ctx, persisted.ID, word); err != nil {
				return err
			}
		}
		return nil
	})
	l.notify(Event{Type: EventImageAdded, ID: clone.ID})
	return nil
}

// SetRating sets an image's star rating, 0 meaning unrated.
func (l *Library) SetRating(id string, rating int) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("rating %d out of range: %w", rating, liberr.ErrConstraint)
	}
	return l.updateImage("setRating", id, func(img *store.Image) {
		img.Rating = rating
	})
}

// SetFlag sets the pick/reject flag.
func (l *Library) SetFlag(id string, flag store.Flag) error {
	if !store.ValidFlag(flag) {
		return fmt.Errorf("flag %q: %w", flag, liberr.ErrConstraint)
	}
	return l.updateImage("setFlag", id, func(img *store.Image) {
		img.Flag = flag
	})
}

// SetColorLabel sets the color label; empty clears it.
func (l *Library) SetColorLabel(id string, label string) error {
	return l.updateImage("setColorLabel", id, func(img *store.Image) {
		img.ColorLabel = label
	})
}

// updateImage applies mutate under the write lock, persists the whole row,
// and notifies observers. Last writer wins on the stored row.
func (l *Library) updateImage(op, id string, mutate func(*store.Image)) error {
	l.mu.Lock()
	img, ok := l.images[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
	}
	mutate(img)
	persisted := img.Clone()
	l.mu.Unlock()

	l.enqueue(op, func(ctx context.Context) error {
		return l.store.UpdateImage(ctx, persisted)
	})
	l.notify(Event{Type: EventImageUpdated, ID: id})
	return nil
}

// AddKeyword tags an image. Keywords are case-insensitively unique per
// image; re-adding an existing tag is a no-op.
func (l *Library) AddKeyword(id, word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return fmt.Errorf("empty keyword: %w", liberr.ErrConstraint)
	}

	l.mu.Lock()
	img, ok := l.images[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
	}
	for _, w := range img.Keywords {
		if strings.EqualFold(w, word) {
			l.mu.Unlock()
			return nil
		}
	}
	img.Keywords = append(img.Keywords, word)
	l.mu.Unlock()

	l.enqueue("addKeyword", func(ctx context.Context) error {
		return l.store.AddKeyword(ctx, id, word)
	})
	l.notify(Event{Type: EventImageUpdated, ID: id})
	return nil
}

// RemoveKeyword untags an image. Removing an absent tag is a no-op.
func (l *Library) RemoveKeyword(id, word string) error {
	l.mu.Lock()
	img, ok := l.images[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
	}
	found := false
	for i, w := range img.Keywords {
		if strings.EqualFold(w, word) {
			img.Keywords = append(img.Keywords[:i], img.Keywords[i+1:]...)
			found = true
			break
		}
	}
	l.mu.Unlock()

	if !found {
		return nil
	}
	l.enqueue("removeKeyword", func(ctx context.Context) error {
		return l.store.RemoveKeyword(ctx, id, word)
	})
	l.notify(Event{Type: EventImageUpdated, ID: id})
	return nil
}

// ApplyAdjustments appends a new edit version holding the full adjustment
// stack and returns the new version number. Edit history is append-only;
// earlier versions stay untouched.
func (l *Library) ApplyAdjustments(id string, adjustments []store.Adjustment) (int, error) {
	for i := range adjustments {
		if err := adjustments[i].Validate(); err != nil {
			return 0, err
		}
	}

	l.mu.Lock()
	img, ok := l.images[id]
	if !ok {
		l.mu.Unlock()
		return 0, fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
	}
	img.EditVersion++
	edit := &store.EditState{
		ID:          uuid.New().String(),
		ImageID:     id,
		Version:     img.EditVersion,
		Adjustments: adjustments,
		CreatedAt:   time.Now().UTC(),
	}
	l.edits[id] = edit
	version := edit.Version
	persisted := edit.Clone()
	l.mu.Unlock()

	l.enqueue("applyAdjustments", func(ctx context.Context) error {
		return l.store.SaveEdit(ctx, persisted)
	})
	if l.cache != nil {
		l.cache.Invalidate(id)
	}
	l.notify(Event{Type: EventImageUpdated, ID: id})
	return version, nil
}

// LatestEdit returns the newest edit state for an image, nil when it has
// never been edited. Reads through to the store on a cold cache.
func (l *Library) LatestEdit(ctx context.Context, id string) (*store.EditState, error) {
	l.mu.RLock()
	img, ok := l.images[id]
	if !ok {
		l.mu.RUnlock()
		return nil, fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
	}
	if edit, cached := l.edits[id]; cached {
		l.mu.RUnlock()
		return edit.Clone(), nil
	}
	version := img.EditVersion
	l.mu.RUnlock()

	if version == 0 {
		return nil, nil
	}

	edit, err := l.store.FetchLatestEdit(ctx, id)
	if err != nil {
		if errors.Is(err, liberr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	l.mu.Lock()
	l.edits[id] = edit
	l.mu.Unlock()
	return edit.Clone(), nil
}

// EditHistory returns every edit version for an image, oldest first.
func (l *Library) EditHistory(ctx context.Context, id string) ([]*store.EditState, error) {
	if _, err := l.Image(id); err != nil {
		return nil, err
	}
	return l.store.FetchEditHistory(ctx, id)
}

// DeleteImage removes an image from the catalog, every manual album, and
// its edit history. The source file on disk is left alone.
func (l *Library) DeleteImage(id string) error {
	l.mu.Lock()
	img, ok := l.images[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
	}
	delete(l.images, id)
	delete(l.imagesByFP, img.Fingerprint)
	delete(l.edits, id)
	for _, a := range l.albums {
		if a.IsSmart {
			continue
		}
		for i, member := range a.ImageIDs {
			if member == id {
				a.ImageIDs = append(a.ImageIDs[:i], a.ImageIDs[i+1:]...)
				break
			}
		}
	}
	l.mu.Unlock()

	l.enqueue("deleteImage", func(ctx context.Context) error {
		// Membership rows are removed explicitly, mirroring the in-memory
		// cascade, before the image row (and its edits) go.
		if err := l.store.RemoveImageFromAlbums(ctx, id); err != nil {
			return err
		}
		return l.store.DeleteImage(ctx, id)
	})
	if l.cache != nil {
		l.cache.Invalidate(id)
	}
	l.notify(Event{Type: EventImageDeleted, ID: id})
	return nil
}

// Stats summarizes the in-memory catalog. Edit counts lean on versions
// being dense from 1, which the append-only history guarantees.
func (l *Library) Stats() store.LibraryStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := store.LibraryStats{TotalAlbums: len(l.albums)}
	keywords := make(map[string]bool)
	for _, img := range l.images {
		stats.TotalImages++
		stats.TotalEdits += img.EditVersion
		if img.ImportDate.After(stats.LastImport) {
			stats.LastImport = img.ImportDate
		}
		for _, w := range img.Keywords {
			keywords[strings.ToLower(w)] = true
		}
	}
	stats.TotalKeywords = len(keywords)
	return stats
}
