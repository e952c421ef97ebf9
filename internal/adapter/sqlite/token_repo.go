package sqlite

import (
	"database/sql"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
)

// GetToken retrieves a token by key
func (s *Store) GetToken(key string) (*domain.LinkedToken, error) {
	query := `
		SELECT key, username, access_token, refresh_token, token_type, expiry, updated_at
		FROM tokens
		WHERE key = ?
	`

	token := &domain.LinkedToken{}
	var expiry sql.NullTime

	err := s.db.QueryRow(query, key).Scan(
		&token.Key, &token.Username, &token.AccessToken, &token.RefreshToken,
		&token.TokenType, &expiry, &token.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if expiry.Valid {
		token.Expiry = expiry.Time
	}

	return token, nil
}

// SaveToken inserts or replaces the token stored under token.Key
func (s *Store) SaveToken(token *domain.LinkedToken) error {
	query := `
		INSERT INTO tokens (key, username, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			username = excluded.username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`

	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now()
	}

	var expiry sql.NullTime
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: dbTime(token.Expiry), Valid: true}
	}

	_, err := s.db.Exec(query,
		token.Key, token.Username, token.AccessToken, token.RefreshToken,
		token.TokenType, expiry, dbTime(token.UpdatedAt),
	)
	return err
}

// DeleteToken unlinks the token stored under key
func (s *Store) DeleteToken(key string) error {
	result, err := s.db.Exec(`DELETE FROM tokens WHERE key = ?`, key)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
