package store

import (
	"context"
	"time"
)

// AddKeyword attaches a keyword to an image, creating the keyword row if
// the word has never been used. Both operations are idempotent.
func (s *Store) AddKeyword(ctx context.Context, imageID, word string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("add_keyword", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO keywords (word) VALUES (?) ON CONFLICT(word) DO NOTHING", word)
	if err != nil {
		err = mapSQLiteError(err)
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO image_keywords (image_id, keyword_id)
		SELECT ?, id FROM keywords WHERE word = ? COLLATE NOCASE
		ON CONFLICT(image_id, keyword_id) DO NOTHING`, imageID, word)
	err = mapSQLiteError(err)
	return err
}

// RemoveKeyword detaches a keyword from an image. The keyword row itself
// stays; an orphaned keyword is harmless and may be reused.
func (s *Store) RemoveKeyword(ctx context.Context, imageID, word string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove_keyword", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM image_keywords
		WHERE image_id = ?
		  AND keyword_id IN (SELECT id FROM keywords WHERE word = ? COLLATE NOCASE)`,
		imageID, word)
	return err
}

// FetchKeywords returns the keywords attached to one image, sorted.
func (s *Store) FetchKeywords(ctx context.Context, imageID string) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_keywords", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT k.word FROM keywords k
		JOIN image_keywords ik ON ik.keyword_id = k.id
		WHERE ik.image_id = ?
		ORDER BY k.word COLLATE NOCASE`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var word string
		if err = rows.Scan(&word); err != nil {
			return nil, err
		}
		words = append(words, word)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return words, nil
}

// FetchKeywordLinks returns every image-keyword association in one query,
// keyed by image id. Used for the wholesale load at library open.
func (s *Store) FetchKeywordLinks(ctx context.Context) (map[string][]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_keyword_links", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT ik.image_id, k.word FROM image_keywords ik
		JOIN keywords k ON k.id = ik.keyword_id
		ORDER BY ik.image_id, k.word COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make(map[string][]string)
	for rows.Next() {
		var imageID, word string
		if err = rows.Scan(&imageID, &word); err != nil {
			return nil, err
		}
		links[imageID] = append(links[imageID], word)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return links, nil
}
