package internal

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"ingenico/gateway"
)

// HttpTransport posts form bodies to the gateway. Redirects are returned to
// the caller instead of being followed, because alias creation answers with
// a 302 whose Location carries the result.
type HttpTransport struct {
	httpClient *http.Client
}

func NewHttpTransport(timeout time.Duration) *HttpTransport {
	return &HttpTransport{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (t *HttpTransport) Post(ctx context.Context, url string, body string) (*gateway.RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, gateway.NewTransportError(0, "create request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gateway.NewTransportError(0, "request timeout or cancelled", ctx.Err())
		}
		return nil, gateway.NewTransportError(0, "post request", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(response.Body)

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, gateway.NewTransportError(response.StatusCode, "read response body", err)
	}
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusFound {
		return nil, gateway.NewTransportError(response.StatusCode, "unexpected status", nil)
	}

	return &gateway.RawResponse{
		StatusCode: response.StatusCode,
		Header:     response.Header,
		Body:       data,
	}, nil
}
