package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
)

// SaveLink stores a new link record and sets its ID
func (s *Store) SaveLink(link *domain.ControlledLink) error {
	query := `
		INSERT INTO links (user_id, reference, folder_path, share_id, file_id, file_target, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	result, err := s.db.Exec(query,
		link.UserID, link.Reference, link.FolderPath.String(), link.ShareID, link.FileID, link.FileTarget,
		dbTime(link.ExpiresAt), dbTime(link.CreatedAt),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id

	return nil
}

// GetLink retrieves a link by ID
func (s *Store) GetLink(id int64) (*domain.ControlledLink, error) {
	query := `
		SELECT id, user_id, reference, folder_path, share_id, file_id, file_target, expires_at, created_at
		FROM links
		WHERE id = ?
	`

	link, err := scanLink(s.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

// ListActiveLinks returns the user's links that expire after now, newest first
func (s *Store) ListActiveLinks(userID string, now time.Time) ([]*domain.ControlledLink, error) {
	query := `
		SELECT id, user_id, reference, folder_path, share_id, file_id, file_target, expires_at, created_at
		FROM links
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.Query(query, userID, dbTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*domain.ControlledLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// DeleteExpiredLinks removes links that expired before the cutoff
func (s *Store) DeleteExpiredLinks(before time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM links WHERE expires_at <= ?`, dbTime(before))
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.ControlledLink, error) {
	link := &domain.ControlledLink{}
	var folderPath string
	err := row.Scan(
		&link.ID, &link.UserID, &link.Reference, &folderPath,
		&link.ShareID, &link.FileID, &link.FileTarget,
		&link.ExpiresAt, &link.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	link.FolderPath = vo.NewRemotePath(folderPath)
	return link, nil
}
