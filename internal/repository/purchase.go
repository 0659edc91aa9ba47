package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"city-raid/internal/catalog"
	"city-raid/internal/model"
)

const purchaseColumns = `
	p.id, p.profile_id, p.item_id, c.kind, c.name, c.bonus, c.tag_style, p.status, p.created_at`

// PurchaseRepository reads purchases and keeps the catalog table in sync.
// Purchases themselves are written by the payment flow.
type PurchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository creates a new PurchaseRepository instance.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{pool: pool}
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	if err := row.Scan(
		&p.ID,
		&p.ProfileID,
		&p.ItemID,
		&p.Kind,
		&p.Name,
		&p.Bonus,
		&p.TagStyle,
		&p.Status,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// SyncCatalog upserts the given items into catalog_items.
func (r *PurchaseRepository) SyncCatalog(ctx context.Context, items []catalog.Item) error {
	const query = `
		INSERT INTO catalog_items (id, kind, name, bonus, tag_style)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (id)
		DO UPDATE SET kind = EXCLUDED.kind, name = EXCLUDED.name,
			bonus = EXCLUDED.bonus, tag_style = EXCLUDED.tag_style
	`
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(query, item.ID, string(item.Kind), item.Name, item.Bonus, item.TagStyle)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to sync catalog: %w", err)
	}
	return nil
}

// Create records a purchase. Used by seeding and tests.
func (r *PurchaseRepository) Create(ctx context.Context, profileID int64, itemID, status string) (*model.Purchase, error) {
	query := `
		WITH p AS (
			INSERT INTO purchases (profile_id, item_id, status)
			VALUES ($1, $2, $3)
			RETURNING *
		)
		SELECT ` + purchaseColumns + `
		FROM p
		JOIN catalog_items c ON c.id = p.item_id
	`
	p, err := scanPurchase(r.pool.QueryRow(ctx, query, profileID, itemID, status))
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	return p, nil
}

// ListOwned returns the profile's completed purchases of one catalog kind,
// oldest first.
func (r *PurchaseRepository) ListOwned(ctx context.Context, profileID int64, kind catalog.Kind) ([]model.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases p
		JOIN catalog_items c ON c.id = p.item_id
		WHERE p.profile_id = $1 AND p.status = 'completed' AND c.kind = $2
		ORDER BY p.id
	`
	rows, err := r.pool.Query(ctx, query, profileID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var out []model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetOwned returns one completed purchase belonging to the profile.
// Returns ErrPurchaseNotFound if it does not exist, belongs to someone else,
// or is not completed.
func (r *PurchaseRepository) GetOwned(ctx context.Context, profileID, purchaseID int64) (*model.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM purchases p
		JOIN catalog_items c ON c.id = p.item_id
		WHERE p.id = $1 AND p.profile_id = $2 AND p.status = 'completed'
	`
	p, err := scanPurchase(r.pool.QueryRow(ctx, query, purchaseID, profileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}
