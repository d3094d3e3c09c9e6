package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/substrack/pkg/pg"
	"github.com/dmitrymomot/substrack/pkg/secrets"
	"github.com/dmitrymomot/substrack/svc/billing"
)

var errSealerMissing = errors.New("credentials are sealed but no sealer is configured")

const merchantColumns = `id, name, email, address, tax_id, logo_ref, phone,
	stripe_secret_key, stripe_publishable_key, stripe_webhook_secret, created_at, updated_at`

func (s *Store) GetMerchant(ctx context.Context, id uuid.UUID) (*billing.Merchant, error) {
	var m billing.Merchant
	err := s.pool.QueryRow(ctx, `SELECT `+merchantColumns+` FROM merchants WHERE id = $1`, id).Scan(
		&m.ID, &m.Name, &m.Email, &m.Address, &m.TaxID, &m.LogoRef, &m.Phone,
		&m.Credentials.SecretKey, &m.Credentials.PublishableKey, &m.Credentials.WebhookSecret,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get merchant: %w", err)
	}
	if m.Credentials, err = s.openCredentials(m.ID, m.Credentials); err != nil {
		return nil, fmt.Errorf("get merchant %s: %w", m.ID, err)
	}
	return &m, nil
}

func (s *Store) UpdateMerchantCredentials(ctx context.Context, id uuid.UUID, creds billing.ProcessorCredentials) error {
	creds, err := s.sealCredentials(id, creds)
	if err != nil {
		return fmt.Errorf("update merchant credentials: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE merchants
		SET stripe_secret_key = $2, stripe_publishable_key = $3, stripe_webhook_secret = $4, updated_at = now()
		WHERE id = $1`,
		id, creds.SecretKey, creds.PublishableKey, creds.WebhookSecret,
	)
	if err != nil {
		return fmt.Errorf("update merchant credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrMerchantNotFound
	}
	return nil
}

// CreateMerchant inserts a merchant. Merchants are managed outside the
// webhook pipeline; this backs seeding and tests.
func (s *Store) CreateMerchant(ctx context.Context, m *billing.Merchant) error {
	creds, err := s.sealCredentials(m.ID, m.Credentials)
	if err != nil {
		return fmt.Errorf("create merchant: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO merchants (id, name, email, address, tax_id, logo_ref, phone,
			stripe_secret_key, stripe_publishable_key, stripe_webhook_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.Name, m.Email, m.Address, m.TaxID, m.LogoRef, m.Phone,
		creds.SecretKey, creds.PublishableKey, creds.WebhookSecret,
	)
	if err != nil {
		return fmt.Errorf("create merchant: %w", err)
	}
	return nil
}

// The publishable key is public and stays in clear text.
func (s *Store) sealCredentials(id uuid.UUID, c billing.ProcessorCredentials) (billing.ProcessorCredentials, error) {
	if s.sealer == nil {
		return c, nil
	}
	var err error
	if c.SecretKey, err = s.sealer.Seal(id[:], c.SecretKey); err != nil {
		return c, err
	}
	if c.WebhookSecret, err = s.sealer.Seal(id[:], c.WebhookSecret); err != nil {
		return c, err
	}
	return c, nil
}

func (s *Store) openCredentials(id uuid.UUID, c billing.ProcessorCredentials) (billing.ProcessorCredentials, error) {
	if !secrets.IsSealed(c.SecretKey) && !secrets.IsSealed(c.WebhookSecret) {
		return c, nil
	}
	if s.sealer == nil {
		return c, errSealerMissing
	}
	var err error
	if c.SecretKey, err = s.sealer.Open(id[:], c.SecretKey); err != nil {
		return c, err
	}
	if c.WebhookSecret, err = s.sealer.Open(id[:], c.WebhookSecret); err != nil {
		return c, err
	}
	return c, nil
}
