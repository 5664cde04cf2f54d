package services

import (
	"context"

	"ingenico/gateway"
)

// Transport posts a form-encoded body and returns the reply without
// following redirects.
type Transport interface {
	Post(ctx context.Context, url string, body string) (*gateway.RawResponse, error)
}
