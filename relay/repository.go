package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alovak/everypay-relay/relay/models"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
)

var (
	ErrNotFound          = fmt.Errorf("not found")
	ErrConflict          = fmt.Errorf("conflict")
	ErrInvalidTransition = fmt.Errorf("invalid payment state transition")
	ErrClosed            = fmt.Errorf("repository closed")
)

// Repository is the payment ledger. Without a db it keeps payments in memory.
type Repository struct {
	mu       sync.RWMutex
	payments map[string]*models.Payment
	closed   bool

	db  *sql.DB
	now func() time.Time
}

func NewRepository() *Repository {
	return &Repository{
		payments: make(map[string]*models.Payment),
		now:      time.Now,
	}
}

// NewPGRepository constructs a db-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

var migrations = []string{
	`create schema if not exists relay`,
	`create table if not exists relay.payments (
		payment_reference text primary key,
		order_reference   text not null,
		amount            bigint not null default 0,
		email             text not null default '',
		state             text not null,
		created_at        timestamptz not null default now(),
		updated_at        timestamptz not null default now()
	)`,
	`create index if not exists payments_order_reference_idx on relay.payments(order_reference)`,
}

// Migrate creates the ledger schema. It is a no-op for the memory backend.
func (r *Repository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	for _, m := range migrations {
		if _, err := r.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// CreatePayment records a freshly initiated payment. ErrConflict if the reference is known.
func (r *Repository) CreatePayment(ctx context.Context, p *models.Payment) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.payments[p.PaymentReference]; ok {
			return fmt.Errorf("payment %s exists: %w", p.PaymentReference, ErrConflict)
		}
		now := r.now()
		stored := *p
		stored.CreatedAt, stored.UpdatedAt = now, now
		r.payments[p.PaymentReference] = &stored
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO relay.payments(payment_reference, order_reference, amount, email, state)
		VALUES ($1,$2,$3,$4,$5)
	`, p.PaymentReference, p.OrderReference, p.Amount, p.Email, string(p.State))
	if isUniqueViolation(err) {
		return fmt.Errorf("payment %s exists: %w", p.PaymentReference, ErrConflict)
	}
	return err
}

func (r *Repository) GetPayment(ctx context.Context, paymentReference string) (*models.Payment, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		p, ok := r.payments[paymentReference]
		if !ok {
			return nil, ErrNotFound
		}
		cp := *p
		return &cp, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT payment_reference, order_reference, amount, email, state, created_at, updated_at
		  FROM relay.payments WHERE payment_reference=$1
	`, paymentReference)
	var p models.Payment
	var state string
	if err := row.Scan(&p.PaymentReference, &p.OrderReference, &p.Amount, &p.Email, &state, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.State = models.PaymentState(state)
	return &p, nil
}

// ApplyTransition moves a payment to state, creating the row when the payment is unknown.
// Returns changed=false when the payment is already in state, and ErrInvalidTransition
// when the current state does not allow the move.
func (r *Repository) ApplyTransition(ctx context.Context, paymentReference, orderReference string, state models.PaymentState) (bool, error) {
	if state == "" {
		return false, fmt.Errorf("empty payment state: %w", ErrInvalidTransition)
	}
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		now := r.now()
		p, ok := r.payments[paymentReference]
		if !ok {
			r.payments[paymentReference] = &models.Payment{
				PaymentReference: paymentReference,
				OrderReference:   orderReference,
				State:            state,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			return true, nil
		}
		if p.State == state {
			return false, nil
		}
		if !p.State.CanTransition(state) {
			return false, fmt.Errorf("%s -> %s: %w", p.State, state, ErrInvalidTransition)
		}
		p.State = state
		p.UpdatedAt = now
		if p.OrderReference == "" {
			p.OrderReference = orderReference
		}
		return true, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `set local statement_timeout = '3s'`); err != nil {
		return false, err
	}

	var inserted string
	err = tx.QueryRowContext(ctx, `
		insert into relay.payments(payment_reference, order_reference, state)
		values ($1,$2,$3)
		on conflict (payment_reference) do nothing
		returning payment_reference
	`, paymentReference, orderReference, string(state)).Scan(&inserted)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if inserted != "" {
		return true, tx.Commit()
	}

	var current string
	if err := tx.QueryRowContext(ctx, `
		select state from relay.payments where payment_reference=$1 for update
	`, paymentReference).Scan(&current); err != nil {
		return false, err
	}
	from := models.PaymentState(current)
	if from == state {
		return false, tx.Commit()
	}
	if !from.CanTransition(state) {
		return false, fmt.Errorf("%s -> %s: %w", from, state, ErrInvalidTransition)
	}
	if _, err := tx.ExecContext(ctx, `
		update relay.payments
		   set state=$2,
		       order_reference=case when order_reference='' then $3 else order_reference end,
		       updated_at=now()
		 where payment_reference=$1
	`, paymentReference, string(state), orderReference); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Ping returns DB readiness
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.closed {
			return ErrClosed
		}
		return nil
	}
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	if r.db == nil {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		return nil
	}
	return r.db.Close()
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
