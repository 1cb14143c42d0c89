package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/alovak/everypay-relay/internal/everypay"
	"github.com/alovak/everypay-relay/internal/webhook"
	"github.com/alovak/everypay-relay/relay/models"
	"github.com/go-chi/chi/v5"
)

const (
	maxInitiateBody = 64 << 10
	maxWebhookBody  = 1 << 20
)

// API is a HTTP API for the relay service
type API struct {
	relay *Service
}

func NewAPI(relay *Service) *API {
	return &API{
		relay: relay,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Post("/initiate-payment", a.initiatePayment)
	r.Get("/payment-callback", a.paymentCallback)
	r.Get("/payment-result", a.paymentResult)
	r.Post("/webhook", a.webhook)
	r.Get("/payments/{paymentReference}", a.getPayment)
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (a *API) initiatePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInitiateBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Details: err.Error()})
		return
	}
	if err := validateJSONSchema(initiatePaymentLoader, body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Details: err.Error()})
		return
	}

	req := models.PaymentRequest{}
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request", Details: err.Error()})
		return
	}
	req.CustomerIP = clientIP(r)

	link, err := a.relay.InitiatePayment(r.Context(), req)
	if err != nil {
		var upErr *everypay.UpstreamError
		if errors.As(err, &upErr) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Payment initiation failed", Details: upErr.Message})
		} else {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Payment initiation failed", Details: msgInternalError})
		}
		return
	}

	writeJSON(w, http.StatusOK, link)
}

// paymentCallback is hit by the shopper's browser; it always answers with a redirect.
func (a *API) paymentCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := a.relay.TranslateCallback(r.Context(), q.Get("payment_reference"), q.Get("order_reference"))
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *API) paymentResult(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, models.PaymentResult{
		PaymentStatus:    q.Get("status"),
		PaymentReference: q.Get("reference"),
		ErrorMessage:     q.Get("message"),
	})
}

func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeText(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	err = a.relay.HandleWebhook(r.Context(), body, r.Header.Get(webhook.SignatureHeader))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrSignatureMismatch):
		writeText(w, http.StatusBadRequest, "Invalid signature")
	case errors.Is(err, ErrMalformedRequest):
		writeText(w, http.StatusBadRequest, "Invalid payload")
	default:
		a.relay.logger.Error("webhook processing failed", "err", err)
		writeText(w, http.StatusInternalServerError, "Webhook processing failed")
	}
}

func (a *API) getPayment(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "paymentReference")

	payment, err := a.relay.GetPayment(r.Context(), ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, payment)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, msg)
}

// clientIP expects chi's RealIP middleware to have rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
