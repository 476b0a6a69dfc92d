package sqlite

import (
	"context"
	"database/sql"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/idx"
)

type oauth2LinksRepo struct {
	db dbtx
}

const linkColumns = `id, user_id, provider_id, remote_id, remote_name, created_at`

func (r *oauth2LinksRepo) CreateLink(ctx context.Context, l domain.OAuth2Link) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth2_links (`+linkColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID.String(),
		l.UserID.String(),
		l.ProviderID,
		l.RemoteUser.ID,
		l.RemoteUser.Name,
		l.CreatedAt,
	)
	return mapConflict(err)
}

func (r *oauth2LinksRepo) GetLinkByID(ctx context.Context, userID, linkID idx.ID) (domain.OAuth2Link, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM oauth2_links WHERE id = ? AND user_id = ?`,
		linkID.String(), userID.String())
	return scanLink(row)
}

func (r *oauth2LinksRepo) GetLinkByRemote(
	ctx context.Context,
	providerID, remoteID string,
) (domain.OAuth2Link, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM oauth2_links WHERE provider_id = ? AND remote_id = ?`,
		providerID, remoteID)
	return scanLink(row)
}

func (r *oauth2LinksRepo) ListLinksByUser(ctx context.Context, userID idx.ID) ([]domain.OAuth2Link, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM oauth2_links WHERE user_id = ? ORDER BY created_at DESC`,
		userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.OAuth2Link
	for rows.Next() {
		var (
			l          domain.OAuth2Link
			id, userID string
		)
		if err := rows.Scan(&id, &userID, &l.ProviderID, &l.RemoteUser.ID, &l.RemoteUser.Name, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ID = idx.ID(id)
		l.UserID = idx.ID(userID)
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *oauth2LinksRepo) DeleteLink(ctx context.Context, userID, linkID idx.ID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM oauth2_links WHERE id = ? AND user_id = ?`,
		linkID.String(), userID.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *oauth2LinksRepo) CountLinksByUser(ctx context.Context, userID idx.ID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM oauth2_links WHERE user_id = ?`,
		userID.String()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanLink(row *sql.Row) (domain.OAuth2Link, error) {
	var (
		l          domain.OAuth2Link
		id, userID string
	)
	err := row.Scan(&id, &userID, &l.ProviderID, &l.RemoteUser.ID, &l.RemoteUser.Name, &l.CreatedAt)
	if err != nil {
		return domain.OAuth2Link{}, mapNotFound(err)
	}
	l.ID = idx.ID(id)
	l.UserID = idx.ID(userID)
	return l, nil
}
