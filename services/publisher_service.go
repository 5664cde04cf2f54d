package services

import (
	"context"

	"ingenico/entity"
)

type Publisher interface {
	Publish(ctx context.Context, event *entity.PaymentEvent) error
}
