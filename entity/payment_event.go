package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEvent is published after a payment changed state.
type PaymentEvent struct {
	PaymentId      string          `json:"payment_id"`
	OrderNumber    string          `json:"order_number"`
	Gateway        string          `json:"gateway"`
	From           PaymentState    `json:"from"`
	To             PaymentState    `json:"to"`
	Amount         decimal.Decimal `json:"amount"`
	CapturedAmount decimal.Decimal `json:"captured_amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Currency       string          `json:"currency"`
	RemoteId       string          `json:"remote_id,omitempty"`
	RemoteState    string          `json:"remote_state,omitempty"`
	Time           time.Time       `json:"time"`
}

func NewPaymentEvent(payment *Payment, from PaymentState) *PaymentEvent {
	return &PaymentEvent{
		PaymentId:      payment.Id,
		OrderNumber:    payment.Order.Number,
		Gateway:        payment.Gateway,
		From:           from,
		To:             payment.State,
		Amount:         payment.Amount,
		CapturedAmount: payment.CapturedAmount,
		RefundedAmount: payment.RefundedAmount,
		Currency:       payment.Currency,
		RemoteId:       payment.RemoteId,
		RemoteState:    payment.RemoteState,
		Time:           payment.ChangedTime,
	}
}

func (e *PaymentEvent) RoutingKey() string {
	return "payment." + string(e.To)
}
