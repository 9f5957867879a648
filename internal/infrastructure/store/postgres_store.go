package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/example/checkout-engine/internal/domain/checkout"
	"github.com/example/checkout-engine/internal/domain/inventory"
	"github.com/example/checkout-engine/internal/domain/reservation"
	"github.com/example/checkout-engine/internal/metrics"
)

// ConnectPostgres establishes a connection to PostgreSQL.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS checkout_sessions (
	id                  UUID PRIMARY KEY,
	cart_id             TEXT NOT NULL,
	shipping_address_id TEXT NOT NULL,
	billing_address_id  TEXT NOT NULL,
	shipping_method     TEXT NOT NULL,
	currency            TEXT NOT NULL,
	subtotal            BIGINT NOT NULL,
	tax_total           BIGINT NOT NULL,
	shipping_total      BIGINT NOT NULL,
	grand_total         BIGINT NOT NULL,
	status              TEXT NOT NULL,
	expires_at          TIMESTAMPTZ NOT NULL,
	completed_at        TIMESTAMPTZ,
	failed_at           TIMESTAMPTZ,
	failure_reason      TEXT,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON checkout_sessions (status, expires_at);

CREATE TABLE IF NOT EXISTS reservations (
	id             UUID PRIMARY KEY,
	session_id     UUID NOT NULL REFERENCES checkout_sessions (id),
	line_item_id   TEXT NOT NULL,
	product_id     TEXT NOT NULL,
	sku            TEXT NOT NULL,
	quantity       INT NOT NULL CHECK (quantity > 0),
	status         TEXT NOT NULL,
	expires_at     TIMESTAMPTZ NOT NULL,
	released_at    TIMESTAMPTZ,
	release_reason TEXT,
	confirmed_at   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, line_item_id)
);
CREATE INDEX IF NOT EXISTS idx_reservations_session ON reservations (session_id);

CREATE TABLE IF NOT EXISTS inventory (
	product_id          TEXT PRIMARY KEY,
	quantity            INT NOT NULL CHECK (quantity >= 0),
	low_stock_threshold INT NOT NULL DEFAULT 0,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS inventory_ledger (
	id         UUID PRIMARY KEY,
	product_id TEXT NOT NULL,
	delta      INT NOT NULL,
	quantity   INT NOT NULL,
	reason     TEXT NOT NULL,
	actor      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_product ON inventory_ledger (product_id, created_at DESC);
`

// LedgerSink receives a copy of every inventory ledger entry, for mirroring
// the audit trail to a secondary store.
type LedgerSink interface {
	Append(ctx context.Context, entry inventory.LedgerEntry) error
}

// PostgresStore is the transactional checkout.Store. The reservation insert
// loop and the session row share one database transaction; stock updates
// are compare-and-swap statements, so two sessions competing for the last
// unit of a SKU resolve deterministically.
type PostgresStore struct {
	db     *sql.DB
	sink   LedgerSink
	logger zerolog.Logger
}

func NewPostgresStore(db *sql.DB, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger.With().Str("component", "postgres-store").Logger(),
	}
}

// SetLedgerSink attaches a best-effort mirror for inventory ledger entries.
// Entries written inside a transaction reach the sink only after the
// transaction commits, so the mirror never records rolled-back holds.
func (s *PostgresStore) SetLedgerSink(sink LedgerSink) {
	s.sink = sink
}

// EnsureSchema creates the engine's tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// queryer abstracts *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithinTx runs fn inside a READ COMMITTED transaction. Stock adjustments
// are CAS updates, so this level is sufficient; lock ordering is the
// ledger's responsibility (ascending product id).
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	ptx := &pgTx{store: s, q: tx}
	if err := fn(ptx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	// Side effects staged during the transaction fire only now: a rollback
	// must leave no trace in the metrics, logs, or the audit mirror.
	for _, sig := range ptx.lowStock {
		s.reportLowStock(sig)
	}
	for _, entry := range ptx.mirror {
		s.mirrorEntry(ctx, entry)
	}
	return nil
}

func (s *PostgresStore) reportLowStock(sig lowStockSignal) {
	metrics.LowStock.WithLabelValues(sig.productID).Inc()
	s.logger.Warn().
		Str("product_id", sig.productID).
		Int("quantity", sig.quantity).
		Int("threshold", sig.threshold).
		Msg("product at or below low-stock threshold")
}

func (s *PostgresStore) mirrorEntry(ctx context.Context, entry inventory.LedgerEntry) {
	if err := s.sink.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("product_id", entry.ProductID).Msg("ledger sink append failed")
	}
}

func (s *PostgresStore) Sessions() checkout.SessionRepository {
	return &pgSessions{q: s.db}
}

func (s *PostgresStore) Reservations() reservation.Repository {
	return &pgReservations{q: s.db}
}

func (s *PostgresStore) Inventory() inventory.Store {
	return &pgInventory{store: s, q: s.db}
}

// pgTx buffers observable side effects (audit-mirror entries, low-stock
// signals) until the enclosing transaction commits.
type pgTx struct {
	store    *PostgresStore
	q        queryer
	mirror   []inventory.LedgerEntry
	lowStock []lowStockSignal
}

type lowStockSignal struct {
	productID string
	quantity  int
	threshold int
}

func (t *pgTx) Sessions() checkout.SessionRepository { return &pgSessions{q: t.q} }
func (t *pgTx) Reservations() reservation.Repository { return &pgReservations{q: t.q} }
func (t *pgTx) Inventory() inventory.Store {
	return &pgInventory{store: t.store, q: t.q, tx: t}
}

// --- sessions ---

type pgSessions struct{ q queryer }

const sessionColumns = `id, cart_id, shipping_address_id, billing_address_id, shipping_method,
	currency, subtotal, tax_total, shipping_total, grand_total, status,
	expires_at, completed_at, failed_at, COALESCE(failure_reason, ''), created_at, updated_at`

func (r *pgSessions) Insert(ctx context.Context, s *checkout.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO checkout_sessions (id, cart_id, shipping_address_id, billing_address_id,
			shipping_method, currency, subtotal, tax_total, shipping_total, grand_total,
			status, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.CartID, s.ShippingAddressID, s.BillingAddressID,
		s.ShippingMethod, s.Currency, s.Subtotal, s.TaxTotal, s.ShippingTotal, s.GrandTotal,
		s.Status, s.ExpiresAt, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *pgSessions) scan(row *sql.Row) (*checkout.Session, error) {
	var s checkout.Session
	err := row.Scan(
		&s.ID, &s.CartID, &s.ShippingAddressID, &s.BillingAddressID, &s.ShippingMethod,
		&s.Currency, &s.Subtotal, &s.TaxTotal, &s.ShippingTotal, &s.GrandTotal, &s.Status,
		&s.ExpiresAt, &s.CompletedAt, &s.FailedAt, &s.FailureReason, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, checkout.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *pgSessions) Get(ctx context.Context, id string) (*checkout.Session, error) {
	return r.scan(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM checkout_sessions WHERE id = $1`, id))
}

func (r *pgSessions) GetForUpdate(ctx context.Context, id string) (*checkout.Session, error) {
	return r.scan(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM checkout_sessions WHERE id = $1 FOR UPDATE`, id))
}

func (r *pgSessions) SetStatus(ctx context.Context, id string, status checkout.Status, at time.Time, reason string) error {
	var err error
	switch status {
	case checkout.StatusCompleted:
		_, err = r.q.ExecContext(ctx,
			`UPDATE checkout_sessions SET status = $2, completed_at = $3, updated_at = $3 WHERE id = $1`,
			id, status, at)
	case checkout.StatusFailed:
		_, err = r.q.ExecContext(ctx,
			`UPDATE checkout_sessions SET status = $2, failed_at = $3, failure_reason = $4, updated_at = $3 WHERE id = $1`,
			id, status, at, reason)
	default:
		_, err = r.q.ExecContext(ctx,
			`UPDATE checkout_sessions SET status = $2, failure_reason = $4, updated_at = $3 WHERE id = $1`,
			id, status, at, reason)
	}
	return err
}

func (r *pgSessions) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id FROM checkout_sessions
		 WHERE status = $1 AND expires_at < $2
		 ORDER BY expires_at ASC
		 LIMIT $3`,
		checkout.StatusActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- reservations ---

type pgReservations struct{ q queryer }

const reservationColumns = `id, session_id, line_item_id, product_id, sku, quantity, status,
	expires_at, released_at, COALESCE(release_reason, ''), confirmed_at, created_at`

func (r *pgReservations) Insert(ctx context.Context, res *reservation.Reservation) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO reservations (id, session_id, line_item_id, product_id, sku, quantity,
			status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		res.ID, res.SessionID, res.LineItemID, res.ProductID, res.SKU, res.Quantity,
		res.Status, res.ExpiresAt, res.CreatedAt,
	)
	return err
}

func scanReservation(scan func(dest ...any) error) (*reservation.Reservation, error) {
	var res reservation.Reservation
	err := scan(
		&res.ID, &res.SessionID, &res.LineItemID, &res.ProductID, &res.SKU, &res.Quantity,
		&res.Status, &res.ExpiresAt, &res.ReleasedAt, &res.ReleaseReason, &res.ConfirmedAt, &res.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reservation.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *pgReservations) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	return scanReservation(row.Scan)
}

func (r *pgReservations) ListBySession(ctx context.Context, sessionID string) ([]*reservation.Reservation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*reservation.Reservation
	for rows.Next() {
		res, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *pgReservations) MarkReleased(ctx context.Context, id, reason string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE reservations SET status = $2, release_reason = $3, released_at = $4
		 WHERE id = $1 AND status = $5`,
		id, reservation.StatusReleased, reason, at, reservation.StatusActive)
	if err != nil {
		return err
	}
	return requireRow(result, id)
}

func (r *pgReservations) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE reservations SET status = $2, confirmed_at = $3
		 WHERE id = $1 AND status = $4`,
		id, reservation.StatusConfirmed, at, reservation.StatusActive)
	if err != nil {
		return err
	}
	return requireRow(result, id)
}

// requireRow maps a zero-row update on a guarded transition to ErrNotActive:
// the row either does not exist or already left the active state.
func requireRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("reservation %s: %w", id, reservation.ErrNotActive)
	}
	return nil
}

// --- inventory ---

type pgInventory struct {
	store *PostgresStore
	q     queryer
	tx    *pgTx // nil outside a transaction
}

func (r *pgInventory) Get(ctx context.Context, productID string) (*inventory.Record, error) {
	var rec inventory.Record
	err := r.q.QueryRowContext(ctx,
		`SELECT product_id, quantity, low_stock_threshold, updated_at FROM inventory WHERE product_id = $1`,
		productID,
	).Scan(&rec.ProductID, &rec.Quantity, &rec.LowStockThreshold, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, inventory.ErrProductNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Adjust is a single compare-and-swap UPDATE: the row lock it takes plus
// the quantity guard make concurrent decrements of the last unit resolve
// to exactly one winner.
func (r *pgInventory) Adjust(ctx context.Context, productID string, delta int, reason, actor string) (int, error) {
	var (
		quantity  int
		threshold int
	)
	err := r.q.QueryRowContext(ctx,
		`UPDATE inventory
		 SET quantity = quantity + $2, updated_at = NOW()
		 WHERE product_id = $1 AND quantity + $2 >= 0
		 RETURNING quantity, low_stock_threshold`,
		productID, delta,
	).Scan(&quantity, &threshold)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if probeErr := r.q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM inventory WHERE product_id = $1)`, productID,
		).Scan(&exists); probeErr != nil {
			return 0, probeErr
		}
		if !exists {
			return 0, fmt.Errorf("product %s: %w", productID, inventory.ErrProductNotFound)
		}
		return 0, fmt.Errorf("product %s: %w", productID, inventory.ErrInsufficientStock)
	}
	if err != nil {
		return 0, err
	}

	entry := inventory.LedgerEntry{
		ID:        uuid.New().String(),
		ProductID: productID,
		Delta:     delta,
		Quantity:  quantity,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO inventory_ledger (id, product_id, delta, quantity, reason, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.ProductID, entry.Delta, entry.Quantity, entry.Reason, entry.Actor, entry.CreatedAt,
	); err != nil {
		return 0, fmt.Errorf("append ledger entry: %w", err)
	}

	if quantity <= threshold {
		sig := lowStockSignal{productID: productID, quantity: quantity, threshold: threshold}
		if r.tx != nil {
			r.tx.lowStock = append(r.tx.lowStock, sig)
		} else {
			r.store.reportLowStock(sig)
		}
	}

	if r.store.sink != nil {
		if r.tx != nil {
			r.tx.mirror = append(r.tx.mirror, entry)
		} else {
			r.store.mirrorEntry(ctx, entry)
		}
	}

	return quantity, nil
}

func (r *pgInventory) Ledger(ctx context.Context, productID string, limit int) ([]inventory.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, product_id, delta, quantity, reason, actor, created_at
		 FROM inventory_ledger
		 WHERE product_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []inventory.LedgerEntry
	for rows.Next() {
		var e inventory.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Delta, &e.Quantity, &e.Reason, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
