package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/checkout-engine/internal/domain/checkout"
	"github.com/example/checkout-engine/internal/domain/inventory"
	"github.com/example/checkout-engine/internal/domain/reservation"
)

// MemoryStore is an in-memory checkout.Store used by tests and local
// development. Transactions hold the store mutex end to end and roll back
// by restoring a snapshot, which gives the same all-or-nothing and mutual
// exclusion guarantees the Postgres store gets from the database.
type MemoryStore struct {
	mu           sync.Mutex
	sessions     map[string]*checkout.Session
	reservations map[string]*reservation.Reservation
	ledger       map[string][]inventory.LedgerEntry
	inventory    map[string]*inventory.Record
	sink         LedgerSink
	clock        func() time.Time
}

func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		sessions:     make(map[string]*checkout.Session),
		reservations: make(map[string]*reservation.Reservation),
		ledger:       make(map[string][]inventory.LedgerEntry),
		inventory:    make(map[string]*inventory.Record),
		clock:        clock,
	}
}

// SetLedgerSink attaches a mirror for inventory ledger entries. Entries
// written inside a transaction reach the sink only after the transaction
// commits, matching the Postgres store.
func (s *MemoryStore) SetLedgerSink(sink LedgerSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// SeedInventory installs or replaces a product's stock record.
func (s *MemoryStore) SeedInventory(productID string, quantity, lowStockThreshold int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[productID] = &inventory.Record{
		ProductID:         productID,
		Quantity:          quantity,
		LowStockThreshold: lowStockThreshold,
		UpdatedAt:         s.clock(),
	}
}

type memSnapshot struct {
	sessions     map[string]*checkout.Session
	reservations map[string]*reservation.Reservation
	ledger       map[string][]inventory.LedgerEntry
	inventory    map[string]*inventory.Record
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		sessions:     make(map[string]*checkout.Session, len(s.sessions)),
		reservations: make(map[string]*reservation.Reservation, len(s.reservations)),
		ledger:       make(map[string][]inventory.LedgerEntry, len(s.ledger)),
		inventory:    make(map[string]*inventory.Record, len(s.inventory)),
	}
	for id, sess := range s.sessions {
		c := *sess
		snap.sessions[id] = &c
	}
	for id, r := range s.reservations {
		c := *r
		snap.reservations[id] = &c
	}
	for id, entries := range s.ledger {
		snap.ledger[id] = append([]inventory.LedgerEntry(nil), entries...)
	}
	for id, rec := range s.inventory {
		c := *rec
		snap.inventory[id] = &c
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.sessions = snap.sessions
	s.reservations = snap.reservations
	s.ledger = snap.ledger
	s.inventory = snap.inventory
}

// WithinTx serializes against all other store access; on error the snapshot
// taken at entry is restored, discarding every write fn made.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	tx := &memTx{s: s}
	if err := fn(tx); err != nil {
		s.restore(snap)
		return err
	}

	// Staged mirror entries flush only on commit; a rollback leaves no
	// trace in the sink.
	if s.sink != nil {
		for _, entry := range tx.mirror {
			_ = s.sink.Append(ctx, entry)
		}
	}
	return nil
}

func (s *MemoryStore) Sessions() checkout.SessionRepository {
	return &memSessions{s: s, locking: true}
}

func (s *MemoryStore) Reservations() reservation.Repository {
	return &memReservations{s: s, locking: true}
}

func (s *MemoryStore) Inventory() inventory.Store {
	return &memInventory{s: s, locking: true}
}

// memTx hands out repository views that skip locking: the transaction
// already owns the store mutex.
type memTx struct {
	s      *MemoryStore
	mirror []inventory.LedgerEntry
}

func (t *memTx) Sessions() checkout.SessionRepository { return &memSessions{s: t.s} }
func (t *memTx) Reservations() reservation.Repository { return &memReservations{s: t.s} }
func (t *memTx) Inventory() inventory.Store           { return &memInventory{s: t.s, tx: t} }

// --- sessions ---

type memSessions struct {
	s       *MemoryStore
	locking bool
}

func (r *memSessions) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *memSessions) Insert(ctx context.Context, sess *checkout.Session) error {
	defer r.lock()()
	if _, exists := r.s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	c := *sess
	r.s.sessions[sess.ID] = &c
	return nil
}

func (r *memSessions) Get(ctx context.Context, id string) (*checkout.Session, error) {
	defer r.lock()()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, checkout.ErrNotFound)
	}
	c := *sess
	return &c, nil
}

func (r *memSessions) GetForUpdate(ctx context.Context, id string) (*checkout.Session, error) {
	return r.Get(ctx, id)
}

func (r *memSessions) SetStatus(ctx context.Context, id string, status checkout.Status, at time.Time, reason string) error {
	defer r.lock()()
	sess, ok := r.s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, checkout.ErrNotFound)
	}
	sess.Status = status
	sess.UpdatedAt = at
	switch status {
	case checkout.StatusCompleted:
		t := at
		sess.CompletedAt = &t
	case checkout.StatusFailed:
		t := at
		sess.FailedAt = &t
		sess.FailureReason = reason
	case checkout.StatusExpired:
		sess.FailureReason = reason
	}
	return nil
}

func (r *memSessions) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	defer r.lock()()
	var ids []string
	for id, sess := range r.s.sessions {
		if sess.Status == checkout.StatusActive && now.After(sess.ExpiresAt) {
			ids = append(ids, id)
		}
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

// --- reservations ---

type memReservations struct {
	s       *MemoryStore
	locking bool
}

func (r *memReservations) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *memReservations) Insert(ctx context.Context, res *reservation.Reservation) error {
	defer r.lock()()
	if _, exists := r.s.reservations[res.ID]; exists {
		return fmt.Errorf("reservation %s already exists", res.ID)
	}
	for _, existing := range r.s.reservations {
		if existing.SessionID == res.SessionID && existing.LineItemID == res.LineItemID {
			return fmt.Errorf("duplicate reservation for session %s line item %s", res.SessionID, res.LineItemID)
		}
	}
	c := *res
	r.s.reservations[res.ID] = &c
	return nil
}

func (r *memReservations) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	defer r.lock()()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}
	c := *res
	return &c, nil
}

func (r *memReservations) ListBySession(ctx context.Context, sessionID string) ([]*reservation.Reservation, error) {
	defer r.lock()()
	var out []*reservation.Reservation
	for _, res := range r.s.reservations {
		if res.SessionID == sessionID {
			c := *res
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memReservations) MarkReleased(ctx context.Context, id, reason string, at time.Time) error {
	defer r.lock()()
	res, ok := r.s.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}
	if res.Status != reservation.StatusActive {
		return fmt.Errorf("reservation %s: %w", id, reservation.ErrNotActive)
	}
	res.Status = reservation.StatusReleased
	res.ReleaseReason = reason
	t := at
	res.ReleasedAt = &t
	return nil
}

func (r *memReservations) MarkConfirmed(ctx context.Context, id string, at time.Time) error {
	defer r.lock()()
	res, ok := r.s.reservations[id]
	if !ok {
		return fmt.Errorf("reservation %s: %w", id, reservation.ErrNotFound)
	}
	if res.Status != reservation.StatusActive {
		return fmt.Errorf("reservation %s: %w", id, reservation.ErrNotActive)
	}
	res.Status = reservation.StatusConfirmed
	t := at
	res.ConfirmedAt = &t
	return nil
}

// --- inventory ---

type memInventory struct {
	s       *MemoryStore
	locking bool
	tx      *memTx // nil outside a transaction
}

func (r *memInventory) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *memInventory) Get(ctx context.Context, productID string) (*inventory.Record, error) {
	defer r.lock()()
	rec, ok := r.s.inventory[productID]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", productID, inventory.ErrProductNotFound)
	}
	c := *rec
	return &c, nil
}

func (r *memInventory) Adjust(ctx context.Context, productID string, delta int, reason, actor string) (int, error) {
	defer r.lock()()
	rec, ok := r.s.inventory[productID]
	if !ok {
		return 0, fmt.Errorf("product %s: %w", productID, inventory.ErrProductNotFound)
	}
	if rec.Quantity+delta < 0 {
		return 0, fmt.Errorf("product %s: %w", productID, inventory.ErrInsufficientStock)
	}
	rec.Quantity += delta
	rec.UpdatedAt = r.s.clock()

	entry := inventory.LedgerEntry{
		ID:        uuid.New().String(),
		ProductID: productID,
		Delta:     delta,
		Quantity:  rec.Quantity,
		Reason:    reason,
		Actor:     actor,
		CreatedAt: rec.UpdatedAt,
	}
	r.s.ledger[productID] = append(r.s.ledger[productID], entry)

	if r.s.sink != nil {
		if r.tx != nil {
			r.tx.mirror = append(r.tx.mirror, entry)
		} else {
			_ = r.s.sink.Append(ctx, entry)
		}
	}
	return rec.Quantity, nil
}

func (r *memInventory) Ledger(ctx context.Context, productID string, limit int) ([]inventory.LedgerEntry, error) {
	defer r.lock()()
	entries := r.s.ledger[productID]
	out := append([]inventory.LedgerEntry(nil), entries...)
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
