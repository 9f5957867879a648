// Package collab holds the Postgres-backed implementations of the external
// collaborator interfaces the engine consumes: the cart reader and the
// address resolver. The tables they read are owned by the catalog and cart
// services; the engine never writes carts or products.
package collab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/checkout-engine/internal/domain/checkout"
)

// PostgresCartReader reads carts with their items re-priced against the
// current catalog price, defending against stale prices captured when the
// item was added to the cart.
type PostgresCartReader struct {
	db *sql.DB
}

func NewPostgresCartReader(db *sql.DB) *PostgresCartReader {
	return &PostgresCartReader{db: db}
}

func (r *PostgresCartReader) GetCartWithItems(ctx context.Context, cartID string) (*checkout.Cart, error) {
	cart := &checkout.Cart{ID: cartID}
	err := r.db.QueryRowContext(ctx,
		`SELECT currency, COALESCE(owner_id, '') FROM carts WHERE id = $1`,
		cartID,
	).Scan(&cart.Currency, &cart.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart %s: %w", cartID, checkout.ErrCartNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ci.id, ci.product_id, p.sku, p.name, ci.quantity, p.price, p.weight_grams
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.created_at ASC`,
		cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item checkout.CartItem
		if err := rows.Scan(&item.LineItemID, &item.ProductID, &item.SKU, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.WeightGrams); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}
	return cart, rows.Err()
}

// VerifyGuestToken compares the presented token against the bcrypt hash
// stored on the anonymous cart row.
func (r *PostgresCartReader) VerifyGuestToken(ctx context.Context, cartID, token string) (bool, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(guest_token_hash, '') FROM carts WHERE id = $1`,
		cartID,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("cart %s: %w", cartID, checkout.ErrCartNotFound)
	}
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return false, nil
	}
	return true, nil
}
