// Package types holds the JSON envelopes shared by the API and its clients.
package types

// SuccessEnvelope wraps every 2xx body. Clients and tests decode with a
// concrete T; the server writes SuccessEnvelope[any].
type SuccessEnvelope[T any] struct {
	Data T `json:"data"`
}

// APIError is the public shape of a failure. Details is only set for codes
// that allow it.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
