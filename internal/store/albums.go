package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photo-library/internal/liberr"
)

// InsertAlbum persists a new album. A smart album must not carry a manual
// image list; a manual album must not carry criteria.
func (s *Store) InsertAlbum(ctx context.Context, album *Album) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_album", start, err) }()

	if album.IsSmart && len(album.ImageIDs) > 0 {
		err = fmt.Errorf("smart album %q cannot have a manual image list", album.Name)
		return err
	}
	if !album.IsSmart && album.Criteria != "" {
		err = fmt.Errorf("manual album %q cannot have smart criteria", album.Name)
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tx *sql.Tx
	tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO albums (id, name, parent_id, is_smart, criteria, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		album.ID, album.Name, nullIfEmpty(album.ParentID),
		boolToInt(album.IsSmart), nullIfEmpty(album.Criteria),
		album.CreatedAt.Unix())
	if err != nil {
		err = mapSQLiteError(err)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	err = insertAlbumImages(ctx, tx, album.ID, album.ImageIDs)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	err = tx.Commit()
	return err
}

// UpdateAlbum overwrites an album's fields and, for manual albums, replaces
// its ordered membership list.
func (s *Store) UpdateAlbum(ctx context.Context, album *Album) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_album", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var tx *sql.Tx
	tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	var result sql.Result
	result, err = tx.ExecContext(ctx, `
		UPDATE albums SET name = ?, parent_id = ?, is_smart = ?, criteria = ?
		WHERE id = ?`,
		album.Name, nullIfEmpty(album.ParentID), boolToInt(album.IsSmart),
		nullIfEmpty(album.Criteria), album.ID)
	if err != nil {
		err = mapSQLiteError(err)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}
	if rows, raErr := result.RowsAffected(); raErr == nil && rows == 0 {
		err = fmt.Errorf("album %s: %w", album.ID, liberr.ErrNotFound)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	if !album.IsSmart {
		_, err = tx.ExecContext(ctx,
			"DELETE FROM album_images WHERE album_id = ?", album.ID)
		if err == nil {
			err = insertAlbumImages(ctx, tx, album.ID, album.ImageIDs)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
			return err
		}
	}

	err = tx.Commit()
	return err
}

// DeleteAlbum removes an album and its membership rows.
func (s *Store) DeleteAlbum(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_album", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var result sql.Result
	result, err = s.db.ExecContext(ctx, "DELETE FROM albums WHERE id = ?", id)
	if err != nil {
		return err
	}
	if rows, raErr := result.RowsAffected(); raErr == nil && rows == 0 {
		err = fmt.Errorf("album %s: %w", id, liberr.ErrNotFound)
		return err
	}
	return nil
}

// FetchAllAlbums returns every album. Manual albums include their ordered
// image id lists; smart albums never do.
func (s *Store) FetchAllAlbums(ctx context.Context) ([]*Album, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_all_albums", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, parent_id, is_smart, criteria, created_at
		FROM albums ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var albums []*Album
	byID := make(map[string]*Album)
	for rows.Next() {
		var album Album
		var parentID, criteria sql.NullString
		var isSmart int
		var createdAt int64

		if err = rows.Scan(&album.ID, &album.Name, &parentID, &isSmart,
			&criteria, &createdAt); err != nil {
			return nil, err
		}
		album.ParentID = parentID.String
		album.IsSmart = isSmart != 0
		album.Criteria = criteria.String
		album.CreatedAt = time.Unix(createdAt, 0)

		albums = append(albums, &album)
		byID[album.ID] = &album
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	memberRows, err := s.db.QueryContext(ctx, `
		SELECT album_id, image_id FROM album_images
		ORDER BY album_id, position`)
	if err != nil {
		return nil, err
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var albumID, imageID string
		if err = memberRows.Scan(&albumID, &imageID); err != nil {
			return nil, err
		}
		if album, ok := byID[albumID]; ok {
			album.ImageIDs = append(album.ImageIDs, imageID)
		}
	}
	err = memberRows.Err()
	if err != nil {
		return nil, err
	}
	return albums, nil
}

// RemoveImageFromAlbums strips an image id out of every manual album. Called
// as part of image deletion; the FK cascade covers the catalog, this keeps
// any caller-held Album lists rebuildable.
func (s *Store) RemoveImageFromAlbums(ctx context.Context, imageID string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_image_from_albums", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		"DELETE FROM album_images WHERE image_id = ?", imageID)
	return err
}

func insertAlbumImages(ctx context.Context, tx *sql.Tx, albumID string, imageIDs []string) error {
	for position, imageID := range imageIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO album_images (album_id, image_id, position)
			VALUES (?, ?, ?)`, albumID, imageID, position); err != nil {
			return mapSQLiteError(err)
		}
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
