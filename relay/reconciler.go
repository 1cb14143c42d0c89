package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/alovak/everypay-relay/internal/webhook"
	"golang.org/x/exp/slog"
)

// Reconciler applies a verified status_updated event.
type Reconciler interface {
	Reconcile(ctx context.Context, ev webhook.Event) error
}

// LedgerReconciler asks the processor for the authoritative state and stores it.
// The state in the webhook body is not trusted on its own.
type LedgerReconciler struct {
	gateway Gateway
	repo    *Repository
	logger  *slog.Logger
}

func NewLedgerReconciler(gateway Gateway, repo *Repository, logger *slog.Logger) *LedgerReconciler {
	return &LedgerReconciler{
		gateway: gateway,
		repo:    repo,
		logger:  logger.With(slog.String("component", "reconciler")),
	}
}

func (r *LedgerReconciler) Reconcile(ctx context.Context, ev webhook.Event) error {
	if ev.PaymentReference == "" {
		r.logger.Warn("event without payment_reference acknowledged",
			slog.String("event_name", ev.EventName),
			slog.String("order_reference", ev.OrderReference))
		return nil
	}

	status, err := r.gateway.Lookup(ctx, ev.PaymentReference)
	if err != nil {
		return fmt.Errorf("looking up payment: %w", err)
	}
	if status.PaymentState == "" {
		return fmt.Errorf("processor returned no state for %s", ev.PaymentReference)
	}

	order := status.OrderReference
	if order == "" {
		order = ev.OrderReference
	}

	changed, err := r.repo.ApplyTransition(ctx, ev.PaymentReference, order, status.PaymentState)
	if errors.Is(err, ErrInvalidTransition) {
		// redelivery will not change the outcome, so the event is acknowledged
		r.logger.Warn("state transition rejected",
			slog.String("payment_reference", ev.PaymentReference),
			slog.String("state", string(status.PaymentState)),
			slog.Any("err", err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("applying transition: %w", err)
	}

	r.logger.Info("payment reconciled",
		slog.String("payment_reference", ev.PaymentReference),
		slog.String("order_reference", order),
		slog.String("state", string(status.PaymentState)),
		slog.Bool("changed", changed))
	return nil
}
