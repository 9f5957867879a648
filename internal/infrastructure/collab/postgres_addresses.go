package collab

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/checkout-engine/internal/domain/address"
)

// PostgresAddressResolver stores checkout address snapshots. Addresses of
// authenticated owners are deduplicated by fingerprint; guest addresses are
// always created fresh and never reused.
type PostgresAddressResolver struct {
	db *sql.DB
}

func NewPostgresAddressResolver(db *sql.DB) *PostgresAddressResolver {
	return &PostgresAddressResolver{db: db}
}

func (r *PostgresAddressResolver) ResolveOrCreate(ctx context.Context, addr address.Address, ownerID string, addrType address.Type) (string, error) {
	if ownerID != "" {
		var existingID string
		err := r.db.QueryRowContext(ctx,
			`SELECT id FROM addresses WHERE owner_id = $1 AND fingerprint = $2 LIMIT 1`,
			ownerID, addr.Fingerprint(),
		).Scan(&existingID)
		if err == nil {
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
	}

	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO addresses (id, owner_id, address_type, name, line1, line2, city, region,
			postal_code, country_code, phone, fingerprint, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		id, ownerID, addrType, addr.Name, addr.Line1, addr.Line2, addr.City, addr.Region,
		addr.PostalCode, addr.CountryCode, addr.Phone, addr.Fingerprint(), time.Now(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}
