package services

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"

	"ingenico/entity"
)

// Payments are the maintenance operations shared by both gateway modes. A
// nil amount means the outstanding balance.
type Payments interface {
	GetPayment(ctx context.Context, id string) (*entity.Payment, error)
	CapturePayment(ctx context.Context, id string, amount *decimal.Decimal) (*entity.Payment, error)
	VoidPayment(ctx context.Context, id string) (*entity.Payment, error)
	RefundPayment(ctx context.Context, id string, amount *decimal.Decimal) (*entity.Payment, error)
	RenewAuthorization(ctx context.Context, id string) (*entity.Payment, error)
	QueryPayment(ctx context.Context, id string, payIdSub string) (*entity.Payment, error)
}

// DirectLink is the on-site mode: card data is posted server to server.
type DirectLink interface {
	CreatePaymentMethod(ctx context.Context, request *entity.PaymentMethodRequest) (*entity.PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id string) error
	CreatePayment(ctx context.Context, request *entity.PaymentRequest, client entity.ClientInfo) (*entity.PaymentResult, error)
}

// ECommerce is the off-site mode: the browser is redirected to the hosted
// payment page and the result comes back on return and notify.
type ECommerce interface {
	CreateRedirect(ctx context.Context, request *entity.PaymentRequest, client entity.ClientInfo) (*entity.Redirect, error)
	OnReturn(ctx context.Context, values url.Values) (*entity.Payment, error)
	OnNotify(ctx context.Context, values url.Values) (*entity.Payment, error)
	OnCancel(ctx context.Context, values url.Values) (*entity.Payment, error)
}
