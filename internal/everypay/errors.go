package everypay

import "fmt"

const (
	genericFailureMessage = "payment processor request failed"
	unreachableMessage    = "payment processor unreachable"
)

// UpstreamError is returned when the processor rejects a request or cannot be reached.
// Message is safe to show to clients; Err and StatusCode are for logs.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: status=%d: %s", e.Operation, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
