package gateway

import (
	"fmt"
	"strings"
)

// DefaultBaseUrl is the gateway host prefix replaced by a white-label base.
const DefaultBaseUrl = "https://secure.ogone.com/"

type Environment string

const (
	EnvironmentTest Environment = "test"
	EnvironmentProd Environment = "prod"
)

// ParseEnvironment maps the configured mode onto the URL segment.
func ParseEnvironment(mode string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "test", "":
		return EnvironmentTest, nil
	case "live", "prod", "production":
		return EnvironmentProd, nil
	}
	return "", NewConfigError("mode", fmt.Sprintf("unknown gateway mode %q", mode))
}

// RequestKind identifies an operation family and therefore its endpoint.
type RequestKind string

const (
	KindAlias       RequestKind = "alias"
	KindPayment     RequestKind = "payment"
	KindMaintenance RequestKind = "maintenance"
	KindQuery       RequestKind = "query"
	KindECommerce   RequestKind = "ecommerce"
)

var endpointPaths = map[RequestKind]string{
	KindAlias:       "alias_gateway_utf8.asp",
	KindPayment:     "orderdirect.asp",
	KindMaintenance: "maintenancedirect.asp",
	KindQuery:       "querydirect.asp",
	KindECommerce:   "orderstandard_utf8.asp",
}

// Endpoints resolves gateway URLs for one environment.
type Endpoints struct {
	environment Environment
	baseUrl     string
}

// NewEndpoints uses whitelabel as the host prefix when it is not empty.
func NewEndpoints(environment Environment, whitelabel string) Endpoints {
	base := strings.TrimSpace(whitelabel)
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Endpoints{
		environment: environment,
		baseUrl:     base,
	}
}

func (e Endpoints) Environment() Environment {
	return e.environment
}

func (e Endpoints) Url(kind RequestKind) string {
	url := fmt.Sprintf("%sncol/%s/%s", DefaultBaseUrl, e.environment, endpointPaths[kind])
	if e.baseUrl != "" {
		url = strings.Replace(url, DefaultBaseUrl, e.baseUrl, 1)
	}
	return url
}
