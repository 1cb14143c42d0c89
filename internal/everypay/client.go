package everypay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alovak/everypay-relay/relay/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// Config holds the processor credentials and endpoints.
type Config struct {
	BaseURL     string
	APIUsername string
	APISecret   string
	AccountName string
	// CustomerURL is where the processor sends the shopper back after payment.
	CustomerURL string
	Timeout     time.Duration
}

// Client talks to the EveryPay REST API. It never retries.
type Client struct {
	cfg  Config
	base string
	HTTP *http.Client
	now  func() time.Time
}

func New(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		cfg:  cfg,
		base: strings.TrimRight(cfg.BaseURL, "/"),
		HTTP: hc,
		now:  time.Now,
	}
}

type oneoffRequest struct {
	APIUsername    string      `json:"api_username"`
	AccountName    string      `json:"account_name"`
	Amount         json.Number `json:"amount"`
	OrderReference string      `json:"order_reference"`
	Nonce          string      `json:"nonce"`
	Timestamp      string      `json:"timestamp"`
	CustomerURL    string      `json:"customer_url"`
	CustomerEmail  string      `json:"customer_email"`
	CustomerIP     string      `json:"customer_ip,omitempty"`
}

// Initiate creates a one-off payment and returns the hosted payment link.
func (c *Client) Initiate(ctx context.Context, req models.PaymentRequest) (models.PaymentLink, error) {
	const op = "initiate payment"

	body := oneoffRequest{
		APIUsername:    c.cfg.APIUsername,
		AccountName:    c.cfg.AccountName,
		Amount:         json.Number(MinorToMajor(req.Amount).StringFixed(2)),
		OrderReference: req.OrderReference,
		Nonce:          uuid.New().String(),
		Timestamp:      c.now().UTC().Format(time.RFC3339),
		CustomerURL:    c.cfg.CustomerURL,
		CustomerEmail:  req.Email,
		CustomerIP:     req.CustomerIP,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return models.PaymentLink{}, fmt.Errorf("encoding oneoff request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/payments/oneoff", bytes.NewReader(b))
	if err != nil {
		return models.PaymentLink{}, fmt.Errorf("building oneoff request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var link models.PaymentLink
	if err := c.do(httpReq, op, &link); err != nil {
		return models.PaymentLink{}, err
	}
	return link, nil
}

// Lookup fetches the current state of a payment. The processor rejects the call
// unless api_username is passed as a query parameter.
func (c *Client) Lookup(ctx context.Context, paymentReference string) (models.PaymentStatus, error) {
	const op = "lookup payment"

	u, err := url.Parse(c.base + "/payments/" + url.PathEscape(paymentReference))
	if err != nil {
		return models.PaymentStatus{}, fmt.Errorf("parse base: %w", err)
	}
	q := u.Query()
	q.Set("api_username", c.cfg.APIUsername)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.PaymentStatus{}, fmt.Errorf("building lookup request: %w", err)
	}

	var status models.PaymentStatus
	if err := c.do(httpReq, op, &status); err != nil {
		return models.PaymentStatus{}, err
	}
	return status, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	req.SetBasicAuth(c.cfg.APIUsername, c.cfg.APISecret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &UpstreamError{Operation: op, Message: unreachableMessage, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &UpstreamError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    processorMessage(b),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    genericFailureMessage,
			Err:        fmt.Errorf("decoding response: %w", err),
		}
	}
	return nil
}

func processorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Error.Message == "" {
		return genericFailureMessage
	}
	return er.Error.Message
}

// MinorToMajor converts an amount in cents to the processor's decimal amount.
func MinorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
