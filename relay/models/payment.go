package models

import "time"

// PaymentRequest is built per initiate call and handed to the processor.
type PaymentRequest struct {
	// Amount in minor units (cents)
	Amount         int64  `json:"amount"`
	OrderReference string `json:"order_reference"`
	Email          string `json:"email"`
	CustomerIP     string `json:"-"`
}

type PaymentLink struct {
	PaymentLink      string `json:"payment_link"`
	PaymentReference string `json:"payment_reference"`
}

// PaymentStatus is the processor's view of a single payment attempt.
type PaymentStatus struct {
	PaymentReference string       `json:"payment_reference"`
	OrderReference   string       `json:"order_reference"`
	PaymentState     PaymentState `json:"payment_state"`
}

// Payment is a ledger row kept by the relay for reconciliation.
// Email is stored but never rendered.
type Payment struct {
	PaymentReference string       `json:"payment_reference"`
	OrderReference   string       `json:"order_reference"`
	Amount           int64        `json:"amount"`
	Email            string       `json:"-"`
	State            PaymentState `json:"state"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// PaymentResult is what the frontend reads back from /payment-result.
type PaymentResult struct {
	PaymentStatus    string `json:"paymentStatus"`
	PaymentReference string `json:"paymentReference"`
	ErrorMessage     string `json:"errorMessage"`
}
