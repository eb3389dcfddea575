package library

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"photo-library/internal/liberr"
	"photo-library/internal/smartalbum"
	"photo-library/internal/store"
)

// Albums returns clones of every album, sorted by name.
func (l *Library) Albums() []*store.Album {
	l.mu.RLock()
	out := make([]*store.Album, 0, len(l.albums))
	for _, a := range l.albums {
		out = append(out, a.Clone())
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Album returns a clone of one album or liberr.ErrNotFound.
func (l *Library) Album(id string) (*store.Album, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.albums[id]
	if !ok {
		return nil, fmt.Errorf("album %s: %w", id, liberr.ErrNotFound)
	}
	return a.Clone(), nil
}

// CreateAlbum creates a manual album. parentID may be empty for a
// top-level album.
func (l *Library) CreateAlbum(name, parentID string) (*store.Album, error) {
	return l.createAlbum(name, parentID, false, "")
}

// CreateSmartAlbum creates a smart album from encoded criteria. The
// criteria are validated before anything is stored.
func (l *Library) CreateSmartAlbum(name, parentID, criteria string) (*store.Album, error) {
	if _, err := smartalbum.Parse(criteria); err != nil {
		return nil, fmt.Errorf("invalid criteria: %w", err)
	}
	return l.createAlbum(name, parentID, true, criteria)
}

func (l *Library) createAlbum(name, parentID string, smart bool, criteria string) (*store.Album, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("empty album name: %w", liberr.ErrConstraint)
	}

	l.mu.Lock()
	if parentID != "" {
		if _, ok := l.albums[parentID]; !ok {
			l.mu.Unlock()
			return nil, fmt.Errorf("parent album %s: %w", parentID, liberr.ErrNotFound)
		}
	}
	album := &store.Album{
		ID:        uuid.New().String(),
		Name:      name,
		ParentID:  parentID,
		IsSmart:   smart,
		Criteria:  criteria,
		CreatedAt: time.Now().UTC(),
	}
	l.albums[album.ID] = album
	persisted := album.Clone()
	l.mu.Unlock()

	l.enqueue("createAlbum", func(ctx context.Context) error {
		return l.store.InsertAlbum(ctx, persisted)
	})
	l.notify(Event{Type: EventAlbumChanged, ID: album.ID})
	return album.Clone(), nil
}

// RenameAlbum changes an album's display name.
func (l *Library) RenameAlbum(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("empty album name: %w", liberr.ErrConstraint)
	}
	return l.updateAlbum("renameAlbum", id, func(a *store.Album) error {
		a.Name = name
		return nil
	})
}

// SetSmartCriteria replaces a smart album's criteria. Fails on a manual
// album or invalid criteria.
func (l *Library) SetSmartCriteria(id, criteria string) error {
	if _, err := smartalbum.Parse(criteria); err != nil {
		return fmt.Errorf("invalid criteria: %w", err)
	}
	return l.updateAlbum("setSmartCriteria", id, func(a *store.Album) error {
		if !a.IsSmart {
			return fmt.Errorf("album %s is not smart: %w", id, liberr.ErrConstraint)
		}
		a.Criteria = criteria
		return nil
	})
}

// AddToAlbum appends an image to a manual album's ordered list. Adding an
// existing member is a no-op.
func (l *Library) AddToAlbum(albumID, imageID string) error {
	return l.updateAlbum("addToAlbum", albumID, func(a *store.Album) error {
		if a.IsSmart {
			return fmt.Errorf("album %s is smart: %w", albumID, liberr.ErrConstraint)
		}
		if _, ok := l.images[imageID]; !ok {
			return fmt.Errorf("image %s: %w", imageID, liberr.ErrNotFound)
		}
		for _, member := range a.ImageIDs {
			if member == imageID {
				return nil
			}
		}
		a.ImageIDs = append(a.ImageIDs, imageID)
		return nil
	})
}

// RemoveFromAlbum drops an image from a manual album. Removing a
// non-member is a no-op.
func (l *Library) RemoveFromAlbum(albumID, imageID string) error {
	return l.updateAlbum("removeFromAlbum", albumID, func(a *store.Album) error {
		if a.IsSmart {
			return fmt.Errorf("album %s is smart: %w", albumID, liberr.ErrConstraint)
		}
		for i, member := range a.ImageIDs {
			if member == imageID {
				a.ImageIDs = append(a.ImageIDs[:i], a.ImageIDs[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

// updateAlbum applies mutate under the write lock and persists the whole
// album row, membership included.
func (l *Library) updateAlbum(op, id string, mutate func(*store.Album) error) error {
	l.mu.Lock()
	a, ok := l.albums[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("album %s: %w", id, liberr.ErrNotFound)
	}
	if err := mutate(a); err != nil {
		l.mu.Unlock()
		return err
	}
	persisted := a.Clone()
	l.mu.Unlock()

	l.enqueue(op, func(ctx context.Context) error {
		return l.store.UpdateAlbum(ctx, persisted)
	})
	l.notify(Event{Type: EventAlbumChanged, ID: id})
	return nil
}

// DeleteAlbum removes an album. Images stay in the library.
func (l *Library) DeleteAlbum(id string) error {
	l.mu.Lock()
	if _, ok := l.albums[id]; !ok {
		l.mu.Unlock()
		return fmt.Errorf("album %s: %w", id, liberr.ErrNotFound)
	}
	delete(l.albums, id)
	// Orphaned children become top-level rather than cascading away.
	for _, child := range l.albums {
		if child.ParentID == id {
			child.ParentID = ""
		}
	}
	l.mu.Unlock()

	l.enqueue("deleteAlbum", func(ctx context.Context) error {
		return l.store.DeleteAlbum(ctx, id)
	})
	l.notify(Event{Type: EventAlbumDeleted, ID: id})
	return nil
}

// AlbumImages resolves an album's membership. Manual albums return their
// ordered list; smart albums are evaluated against the live catalog on
// every call, so membership is never stale.
func (l *Library) AlbumImages(id string) ([]*store.Image, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.albums[id]
	if !ok {
		return nil, fmt.Errorf("album %s: %w", id, liberr.ErrNotFound)
	}

	if !a.IsSmart {
		out := make([]*store.Image, 0, len(a.ImageIDs))
		for _, imageID := range a.ImageIDs {
			if img, ok := l.images[imageID]; ok {
				out = append(out, img.Clone())
			}
		}
		return out, nil
	}

	criteria, err := smartalbum.Parse(a.Criteria)
	if err != nil {
		return nil, fmt.Errorf("album %s has invalid criteria: %w", id, err)
	}
	var out []*store.Image
	for _, img := range l.images {
		if criteria.Matches(img) {
			out = append(out, img.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FileName < out[j].FileName
	})
	return out, nil
}
