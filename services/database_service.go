package services

import (
	"context"

	"ingenico/entity"
)

// Database stores payments and payment methods. UpdatePayment is a
// compare-and-set on Version and returns entity.ErrVersionConflict when the
// stored record changed in between. Missing records yield entity.ErrNotFound.
type Database interface {
	WriteLogMessage(ctx context.Context, data Data) error

	GetPayment(ctx context.Context, id string) (*entity.Payment, error)
	GetPaymentByOrderId(ctx context.Context, orderId string) (*entity.Payment, error)
	CreatePayment(ctx context.Context, payment *entity.Payment) error
	UpdatePayment(ctx context.Context, payment *entity.Payment) error

	GetPaymentMethod(ctx context.Context, id string) (*entity.PaymentMethod, error)
	SavePaymentMethod(ctx context.Context, paymentMethod *entity.PaymentMethod) error
	DeletePaymentMethod(ctx context.Context, id string) error
}

type Data interface {
	DataType() string
}
