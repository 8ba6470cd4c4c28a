// Package transport provides HTTP request/response types for the verify domain.
package transport

// VerifyResponse is the response for a verification request.
type VerifyResponse struct {
	Verdict  string `json:"verdict"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
