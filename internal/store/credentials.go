package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fknsrs.biz/p/sorm"

	"fknsrs.biz/p/vidscribe/models"
)

func FindCredential(ctx context.Context, q Querier, id int) (*models.PlatformCredential, error) {
	var c models.PlatformCredential
	if err := sorm.FindFirstWhere(ctx, q, &c, "where id = ?", id); err != nil {
		return nil, fmt.Errorf("store.FindCredential: %w", err)
	}

	return &c, nil
}

// ListCredentials returns credentials newest first, for display.
func ListCredentials(ctx context.Context, q Querier) ([]models.PlatformCredential, error) {
	var a []models.PlatformCredential
	if err := sorm.FindWhere(ctx, q, &a, "order by created_at desc, id desc"); err != nil {
		return nil, fmt.Errorf("store.ListCredentials: %w", err)
	}

	return a, nil
}

// CredentialsInStoreOrder returns credentials oldest first, the order used
// when matching a credential to a URL.
func CredentialsInStoreOrder(ctx context.Context, q Querier) ([]models.PlatformCredential, error) {
	var a []models.PlatformCredential
	if err := sorm.FindWhere(ctx, q, &a, "order by created_at asc, id asc"); err != nil {
		return nil, fmt.Errorf("store.CredentialsInStoreOrder: %w", err)
	}

	return a, nil
}

func CreateCredential(ctx context.Context, tx *sql.Tx, now time.Time, c *models.PlatformCredential) error {
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := sorm.CreateRecord(ctx, tx, c); err != nil {
		return fmt.Errorf("store.CreateCredential: %w", err)
	}

	return nil
}

func SaveCredential(ctx context.Context, tx *sql.Tx, now time.Time, c *models.PlatformCredential) error {
	c.UpdatedAt = now

	if err := sorm.SaveRecord(ctx, tx, c); err != nil {
		return fmt.Errorf("store.SaveCredential: %w", err)
	}

	return nil
}

func DeleteCredential(ctx context.Context, tx *sql.Tx, id int) error {
	res, err := tx.ExecContext(ctx, "delete from platform_credentials where id = ?", id)
	if err != nil {
		return fmt.Errorf("store.DeleteCredential: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store.DeleteCredential: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store.DeleteCredential: %w", sql.ErrNoRows)
	}

	return nil
}
