package relay_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/alovak/everypay-relay/relay"
	"github.com/alovak/everypay-relay/relay/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// TestPGLedgerTransitions runs the ledger against Postgres.
// Skips unless DB_DSN is provided and REPO_BACKEND=pg.
func TestPGLedgerTransitions(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatalf("ping db: %v", err)
	}

	ctx := context.Background()
	repo := relay.NewPGRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ref := "it-" + uuid.NewString()
	err = repo.CreatePayment(ctx, &models.Payment{
		PaymentReference: ref,
		OrderReference:   "ORD-IT",
		Amount:           1000,
		Email:            "a@b.com",
		State:            models.PaymentStateInitial,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}

	err = repo.CreatePayment(ctx, &models.Payment{PaymentReference: ref, State: models.PaymentStateInitial})
	if !errors.Is(err, relay.ErrConflict) {
		t.Fatalf("duplicate create: got %v want ErrConflict", err)
	}

	changed, err := repo.ApplyTransition(ctx, ref, "ORD-IT", models.PaymentStateSettled)
	if err != nil || !changed {
		t.Fatalf("settle: changed=%v err=%v", changed, err)
	}

	changed, err = repo.ApplyTransition(ctx, ref, "ORD-IT", models.PaymentStateSettled)
	if err != nil || changed {
		t.Fatalf("settle again: changed=%v err=%v", changed, err)
	}

	if _, err := repo.ApplyTransition(ctx, ref, "ORD-IT", models.PaymentStateFailed); !errors.Is(err, relay.ErrInvalidTransition) {
		t.Fatalf("settled -> failed: got %v want ErrInvalidTransition", err)
	}

	var state string
	row := db.QueryRow(`select state from relay.payments where payment_reference=$1`, ref)
	if err := row.Scan(&state); err != nil {
		t.Fatalf("scan state: %v", err)
	}
	if state != string(models.PaymentStateSettled) {
		t.Fatalf("state = %q want settled", state)
	}

	// a webhook for a payment the relay never saw creates the row
	unseen := "it-" + uuid.NewString()
	changed, err = repo.ApplyTransition(ctx, unseen, "ORD-X", models.PaymentStateFailed)
	if err != nil || !changed {
		t.Fatalf("unseen payment: changed=%v err=%v", changed, err)
	}
	p, err := repo.GetPayment(ctx, unseen)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.OrderReference != "ORD-X" || p.State != models.PaymentStateFailed {
		t.Fatalf("unexpected payment: %+v", p)
	}
}
