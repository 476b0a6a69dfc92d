package sqlite

import (
	"context"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

type refreshTokenHashesRepo struct {
	db dbtx
}

func (r *refreshTokenHashesRepo) SetSessionTokenHash(
	ctx context.Context,
	sessionID idx.ID,
	hash domain.TokenHash,
) error {
	// Replacing the session's own row is rotation; colliding with another
	// session's hash is a conflict surfaced via the unique index.
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_refresh_tokens (session_id, token_hash) VALUES (?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET token_hash = excluded.token_hash`,
		sessionID.String(), hash.Bytes())
	return mapConflict(err)
}

func (r *refreshTokenHashesRepo) GetSessionTokenHash(
	ctx context.Context,
	sessionID idx.ID,
) (domain.TokenHash, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT token_hash FROM session_refresh_tokens WHERE session_id = ?`,
		sessionID.String()).Scan(&raw)
	if err != nil {
		return domain.TokenHash{}, mapNotFound(err)
	}
	return domain.TokenHashFromBytes(raw)
}

func (r *refreshTokenHashesRepo) GetSessionIDByTokenHash(
	ctx context.Context,
	hash domain.TokenHash,
) (idx.ID, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT session_id FROM session_refresh_tokens WHERE token_hash = ?`,
		hash.Bytes()).Scan(&id)
	if err != nil {
		return idx.Zero, mapNotFound(err)
	}
	return idx.ID(id), nil
}

func (r *refreshTokenHashesRepo) ListTokenHashesByUser(
	ctx context.Context,
	userID idx.ID,
) ([]domain.TokenHash, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.token_hash
		 FROM session_refresh_tokens t
		 JOIN sessions s ON s.id = t.session_id
		 WHERE s.user_id = ?`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []domain.TokenHash
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		h, err := domain.TokenHashFromBytes(raw)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}
