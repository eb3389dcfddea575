package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"photo-library/internal/liberr"
)

// SaveEdit appends a new edit version for an image. The version history is
// append-only: saving an (image, version) pair that already exists fails
// with liberr.ErrConstraint. Adjustments are validated against their type
// schemas before anything is written.
func (s *Store) SaveEdit(ctx context.Context, edit *EditState) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("save_edit", start, err) }()

	for i := range edit.Adjustments {
		if err = edit.Adjustments[i].Validate(); err != nil {
			return fmt.Errorf("adjustment %d: %w", i, err)
		}
	}

	var adjustments []byte
	adjustments, err = json.Marshal(edit.Adjustments)
	if err != nil {
		return fmt.Errorf("failed to encode adjustments: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	// The edit row and the image's current-version pointer move together.
	var tx *sql.Tx
	tx, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO edits (id, image_id, version, adjustments, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		edit.ID, edit.ImageID, edit.Version, string(adjustments),
		edit.CreatedAt.Unix())
	if err != nil {
		err = mapSQLiteError(err)
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE images SET edit_version = ? WHERE id = ?",
		edit.Version, edit.ImageID)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	err = tx.Commit()
	return err
}

// FetchLatestEdit returns the highest-version edit state for an image, or
// liberr.ErrNotFound if the image has never been edited.
func (s *Store) FetchLatestEdit(ctx context.Context, imageID string) (*EditState, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_latest_edit", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var edit EditState
	var adjustments string
	var createdAt int64

	err = s.db.QueryRowContext(ctx, `
		SELECT id, image_id, version, adjustments, created_at
		FROM edits WHERE image_id = ?
		ORDER BY version DESC LIMIT 1`, imageID).
		Scan(&edit.ID, &edit.ImageID, &edit.Version, &adjustments, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("edits for image %s: %w", imageID, liberr.ErrNotFound)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(adjustments), &edit.Adjustments); err != nil {
		err = fmt.Errorf("failed to decode adjustments for edit %s: %w", edit.ID, err)
		return nil, err
	}

	edit.CreatedAt = time.Unix(createdAt, 0)
	return &edit, nil
}

// FetchEditHistory returns every edit version for an image, oldest first.
func (s *Store) FetchEditHistory(ctx context.Context, imageID string) ([]*EditState, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_edit_history", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_id, version, adjustments, created_at
		FROM edits WHERE image_id = ?
		ORDER BY version ASC`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []*EditState
	for rows.Next() {
		var edit EditState
		var adjustments string
		var createdAt int64

		if err = rows.Scan(&edit.ID, &edit.ImageID, &edit.Version,
			&adjustments, &createdAt); err != nil {
			return nil, err
		}
		if err = json.Unmarshal([]byte(adjustments), &edit.Adjustments); err != nil {
			err = fmt.Errorf("failed to decode adjustments for edit %s: %w", edit.ID, err)
			return nil, err
		}
		edit.CreatedAt = time.Unix(createdAt, 0)
		edits = append(edits, &edit)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return edits, nil
}
