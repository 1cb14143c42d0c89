package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/alovak/everypay-relay/internal/everypay"
	"github.com/alovak/everypay-relay/internal/webhook"
	"github.com/alovak/everypay-relay/relay/models"
	"golang.org/x/exp/slog"
)

var (
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrMalformedRequest  = errors.New("malformed request")
)

const (
	statusError         = "error"
	statusUnknown       = "unknown"
	msgMissingReference = "missing payment reference"
	msgLookupFailed     = "payment status lookup failed"
	msgInternalError    = "internal error"
)

// Gateway is the part of the processor API the relay needs.
type Gateway interface {
	Initiate(ctx context.Context, req models.PaymentRequest) (models.PaymentLink, error)
	Lookup(ctx context.Context, paymentReference string) (models.PaymentStatus, error)
}

type Service struct {
	gateway    Gateway
	repo       *Repository
	reconciler Reconciler
	cfg        *Config
	logger     *slog.Logger
}

func NewService(gateway Gateway, repo *Repository, reconciler Reconciler, cfg *Config, logger *slog.Logger) *Service {
	return &Service{
		gateway:    gateway,
		repo:       repo,
		reconciler: reconciler,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "service")),
	}
}

// InitiatePayment asks the processor for a payment link and records the payment in the ledger.
func (s *Service) InitiatePayment(ctx context.Context, req models.PaymentRequest) (models.PaymentLink, error) {
	link, err := s.gateway.Initiate(ctx, req)
	if err != nil {
		s.logUpstream("payment initiation failed", err, slog.String("order_reference", req.OrderReference))
		return models.PaymentLink{}, fmt.Errorf("initiating payment: %w", err)
	}

	err = s.repo.CreatePayment(ctx, &models.Payment{
		PaymentReference: link.PaymentReference,
		OrderReference:   req.OrderReference,
		Amount:           req.Amount,
		Email:            req.Email,
		State:            models.PaymentStateInitial,
	})
	if err != nil {
		// the first status_updated webhook creates the row if this insert was lost
		s.logger.Warn("recording initiated payment",
			slog.String("payment_reference", link.PaymentReference),
			slog.Any("err", err))
	}

	s.logger.Info("payment initiated",
		slog.String("payment_reference", link.PaymentReference),
		slog.String("order_reference", req.OrderReference))
	return link, nil
}

// TranslateCallback turns the processor's redirect-back into a frontend result URL.
// It never fails: every error becomes an error redirect.
func (s *Service) TranslateCallback(ctx context.Context, paymentReference, orderReference string) string {
	if paymentReference == "" {
		s.logger.Warn("callback without payment reference", slog.String("order_reference", orderReference))
		return s.errorRedirect(msgMissingReference, orderReference)
	}

	status, err := s.gateway.Lookup(ctx, paymentReference)
	if err != nil {
		s.logUpstream("callback lookup failed", err,
			slog.String("payment_reference", paymentReference),
			slog.String("order_reference", orderReference))
		return s.errorRedirect(clientMessage(err, msgLookupFailed), orderReference)
	}

	reference := status.PaymentReference
	if reference == "" {
		reference = paymentReference
	}
	state := string(status.PaymentState)
	if state == "" {
		state = statusUnknown
	} else {
		// the query string is browser-supplied, the ledger keeps the processor's order
		ledgerOrder := status.OrderReference
		if ledgerOrder == "" {
			ledgerOrder = orderReference
		}
		s.record(ctx, reference, ledgerOrder, status.PaymentState)
	}

	q := url.Values{}
	q.Set("status", state)
	q.Set("reference", reference)
	q.Set("order", orderReference)
	return s.cfg.ResultURL() + "?" + q.Encode()
}

func (s *Service) errorRedirect(message, orderReference string) string {
	q := url.Values{}
	q.Set("status", statusError)
	q.Set("message", message)
	q.Set("order", orderReference)
	return s.cfg.ResultURL() + "?" + q.Encode()
}

// record feeds a state seen on the callback into the ledger. Failures are only logged.
func (s *Service) record(ctx context.Context, paymentReference, orderReference string, state models.PaymentState) {
	changed, err := s.repo.ApplyTransition(ctx, paymentReference, orderReference, state)
	if err != nil {
		s.logger.Debug("callback state not recorded",
			slog.String("payment_reference", paymentReference),
			slog.Any("err", err))
		return
	}
	if changed {
		s.logger.Info("payment state updated from callback",
			slog.String("payment_reference", paymentReference),
			slog.String("state", string(state)))
	}
}

// HandleWebhook verifies the signature over the raw body before looking at it.
// A mismatch returns ErrSignatureMismatch and nothing else happens.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !webhook.Verify(s.cfg.WebhookScheme, body, signature, []byte(s.cfg.WebhookSecret)) {
		s.logger.Warn("webhook signature mismatch", slog.Int("body_bytes", len(body)))
		return ErrSignatureMismatch
	}

	ev, err := webhook.ParseEvent(body)
	if err != nil {
		s.logger.Warn("webhook payload rejected", slog.Any("err", err))
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	switch ev.EventName {
	case webhook.EventStatusUpdated:
		if err := s.reconciler.Reconcile(ctx, ev); err != nil {
			return fmt.Errorf("reconciling payment %s: %w", ev.PaymentReference, err)
		}
	default:
		s.logger.Info("webhook event ignored",
			slog.String("event_name", ev.EventName),
			slog.String("payment_reference", ev.PaymentReference))
	}
	return nil
}

func (s *Service) GetPayment(ctx context.Context, paymentReference string) (*models.Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentReference)
	if err != nil {
		return nil, fmt.Errorf("finding payment: %w", err)
	}
	return p, nil
}

func (s *Service) logUpstream(msg string, err error, attrs ...any) {
	var upErr *everypay.UpstreamError
	if errors.As(err, &upErr) {
		attrs = append(attrs,
			slog.String("operation", upErr.Operation),
			slog.Int("upstream_status", upErr.StatusCode),
			slog.String("upstream_message", upErr.Message))
		if upErr.Err != nil {
			attrs = append(attrs, slog.Any("cause", upErr.Err))
		}
	} else {
		attrs = append(attrs, slog.Any("err", err))
	}
	s.logger.Error(msg, attrs...)
}

// clientMessage reduces err to the short text shown to clients.
func clientMessage(err error, fallback string) string {
	var upErr *everypay.UpstreamError
	if errors.As(err, &upErr) && upErr.Message != "" {
		return upErr.Message
	}
	return fallback
}
