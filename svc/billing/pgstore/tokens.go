package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/svc/billing"
)

const tokenColumns = `id, merchant_id, subscriber_id, token, session_id, expires_at, used, used_at, created_at`

func scanToken(row pgx.Row) (*billing.AccessToken, error) {
	var tok billing.AccessToken
	err := row.Scan(&tok.ID, &tok.MerchantID, &tok.SubscriberID, &tok.Token, &tok.SessionID,
		&tok.ExpiresAt, &tok.Used, &tok.UsedAt, &tok.CreatedAt)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrAccessTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan access token: %w", err)
	}
	return &tok, nil
}

func (s *Store) SaveAccessToken(ctx context.Context, tok *billing.AccessToken) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO access_tokens (id, merchant_id, subscriber_id, token, session_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING`,
		tok.ID, tok.MerchantID, tok.SubscriberID, tok.Token, tok.SessionID, tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("save access token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetAccessToken(ctx context.Context, sessionID string) (*billing.AccessToken, error) {
	return scanToken(s.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE session_id = $1`, sessionID))
}

// ConsumeAccessToken is a single conditional update; of concurrent callers
// only the one whose update matched the row gets it back.
func (s *Store) ConsumeAccessToken(ctx context.Context, sessionID string, now time.Time) (*billing.AccessToken, error) {
	return scanToken(s.pool.QueryRow(ctx, `
		UPDATE access_tokens SET used = true, used_at = $2
		WHERE session_id = $1 AND used = false AND expires_at > $2
		RETURNING `+tokenColumns, sessionID, now))
}
