// Package entity defines the records of the Ingenico payment service.
package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentState string

const (
	StateNew                      PaymentState = "new"
	StateAuthorization            PaymentState = "authorization"
	StatePartiallyCaptured        PaymentState = "partially_captured"
	StateCaptureCompleted         PaymentState = "capture_completed"
	StateAuthorizationVoided      PaymentState = "authorization_voided"
	StateCapturePartiallyRefunded PaymentState = "capture_partially_refunded"
	StateCaptureRefunded          PaymentState = "capture_refunded"
	StateFailed                   PaymentState = "failed"
)

// Gateway modes a payment can be created with.
const (
	GatewayDirectLink = "directlink"
	GatewayECommerce  = "ecommerce"
)

// Payment is one payment of an order. Amounts are in the payment currency.
// Version is bumped by storage on every successful save.
type Payment struct {
	Id               string          `json:"payment_id"`
	Gateway          string          `json:"gateway"`
	Test             bool            `json:"test"`
	Order            Order           `json:"order"`
	OrderId          string          `json:"order_id"`
	PaymentMethodId  string          `json:"payment_method_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	State            PaymentState    `json:"state"`
	RemoteId         string          `json:"remote_id,omitempty"`
	RemoteState      string          `json:"remote_state,omitempty"`
	AuthorizedAmount decimal.Decimal `json:"authorized_amount"`
	CapturedAmount   decimal.Decimal `json:"captured_amount"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
	AuthorizedTime   *time.Time      `json:"authorized_time,omitempty"`
	CompletedTime    *time.Time      `json:"completed_time,omitempty"`
	CreatedTime      time.Time       `json:"created_time"`
	ChangedTime      time.Time       `json:"changed_time"`
	Version          int64           `json:"version"`
}

// NewPayment creates the local placeholder stored before the first gateway
// call, so feedback can be correlated with it.
func NewPayment(id, gateway string, order Order, amount decimal.Decimal, currency string, now time.Time) *Payment {
	return &Payment{
		Id:          id,
		Gateway:     gateway,
		Order:       order,
		Amount:      amount,
		Currency:    currency,
		State:       StateNew,
		CreatedTime: now,
		ChangedTime: now,
	}
}

func (p *Payment) Clone() *Payment {
	clone := *p
	clone.Order = p.Order.Clone()
	if p.AuthorizedTime != nil {
		t := *p.AuthorizedTime
		clone.AuthorizedTime = &t
	}
	if p.CompletedTime != nil {
		t := *p.CompletedTime
		clone.CompletedTime = &t
	}
	return &clone
}

// IsPending reports a payment that has not been answered by the gateway yet.
func (p *Payment) IsPending() bool {
	return p.State == StateNew
}

func (p *Payment) authorizedBase() decimal.Decimal {
	if p.AuthorizedAmount.IsPositive() {
		return p.AuthorizedAmount
	}
	return p.Amount
}

// UncapturedAmount is the authorized amount not captured yet.
func (p *Payment) UncapturedAmount() decimal.Decimal {
	balance := p.authorizedBase().Sub(p.CapturedAmount)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// UnrefundedAmount is the captured amount not refunded yet.
func (p *Payment) UnrefundedAmount() decimal.Decimal {
	balance := p.CapturedAmount.Sub(p.RefundedAmount)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

func (p *Payment) CanCapture() bool {
	switch p.State {
	case StateAuthorization, StatePartiallyCaptured, StateCapturePartiallyRefunded, StateCaptureRefunded:
		return true
	}
	return false
}

func (p *Payment) CanVoid() bool {
	return p.State == StateAuthorization
}

func (p *Payment) CanRenew() bool {
	return p.State == StateAuthorization
}

func (p *Payment) CanRefund() bool {
	switch p.State {
	case StatePartiallyCaptured, StateCaptureCompleted, StateCapturePartiallyRefunded:
		return true
	}
	return false
}

func (p *Payment) ValidateCapture(amount decimal.Decimal) error {
	if !p.CanCapture() {
		return fmt.Errorf("%w: capture from %s", ErrInvalidState, p.State)
	}
	return checkBalance("capture", amount, p.UncapturedAmount())
}

func (p *Payment) ValidateRefund(amount decimal.Decimal) error {
	if !p.CanRefund() {
		return fmt.Errorf("%w: refund from %s", ErrInvalidState, p.State)
	}
	return checkBalance("refund", amount, p.UnrefundedAmount())
}

func (p *Payment) ValidateVoid() error {
	if !p.CanVoid() {
		return fmt.Errorf("%w: void from %s", ErrInvalidState, p.State)
	}
	return nil
}

func (p *Payment) ValidateRenew() error {
	if !p.CanRenew() {
		return fmt.Errorf("%w: renew from %s", ErrInvalidState, p.State)
	}
	return nil
}

func checkBalance(operation string, amount, balance decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s amount %s must be positive", ErrInvalidAmount, operation, amount)
	}
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: %s amount %s exceeds balance %s", ErrInvalidAmount, operation, amount, balance)
	}
	return nil
}

// StateSuggestion derives the state from the captured and refunded totals.
func (p *Payment) StateSuggestion() PaymentState {
	if p.RefundedAmount.IsPositive() {
		if p.UnrefundedAmount().IsZero() {
			return StateCaptureRefunded
		}
		return StateCapturePartiallyRefunded
	}
	if p.CapturedAmount.IsPositive() {
		if p.UncapturedAmount().IsZero() {
			return StateCaptureCompleted
		}
		return StatePartiallyCaptured
	}
	return p.State
}

// ApplyCapture books an accepted capture.
func (p *Payment) ApplyCapture(amount decimal.Decimal, remoteState string, now time.Time) {
	p.CapturedAmount = p.CapturedAmount.Add(amount)
	p.RemoteState = remoteState
	p.State = p.StateSuggestion()
	if p.State == StateCaptureCompleted {
		p.CompletedTime = &now
	}
	p.ChangedTime = now
}

// ApplyRefund books an accepted refund.
func (p *Payment) ApplyRefund(amount decimal.Decimal, remoteState string, now time.Time) {
	p.RefundedAmount = p.RefundedAmount.Add(amount)
	p.RemoteState = remoteState
	p.State = p.StateSuggestion()
	p.ChangedTime = now
}

func (p *Payment) ApplyVoid(remoteState string, now time.Time) {
	p.State = StateAuthorizationVoided
	p.RemoteState = remoteState
	p.CompletedTime = &now
	p.ChangedTime = now
}

// UpdateRemoteState records the gateway status without a local transition.
func (p *Payment) UpdateRemoteState(remoteState string, now time.Time) bool {
	if remoteState == "" || p.RemoteState == remoteState {
		return false
	}
	p.RemoteState = remoteState
	p.ChangedTime = now
	return true
}

// Authorize moves a new payment to authorization. It returns false when the
// payment already moved on, which makes repeated feedback a no-op.
func (p *Payment) Authorize(remoteId, remoteState string, now time.Time) bool {
	if p.State != StateNew {
		return false
	}
	p.RemoteId = remoteId
	p.RemoteState = remoteState
	p.AuthorizedAmount = p.Amount
	p.AuthorizedTime = &now
	p.State = StateAuthorization
	p.ChangedTime = now
	return true
}

// Complete marks the full amount as captured. The captured total is set,
// never added to, so repeated feedback cannot inflate it.
func (p *Payment) Complete(remoteId, remoteState string, now time.Time) bool {
	if p.State != StateNew && p.State != StateAuthorization {
		return false
	}
	if !p.AuthorizedAmount.IsPositive() {
		p.AuthorizedAmount = p.Amount
		p.AuthorizedTime = &now
	}
	if remoteId != "" {
		p.RemoteId = remoteId
	}
	p.RemoteState = remoteState
	p.CapturedAmount = p.AuthorizedAmount
	p.State = StateCaptureCompleted
	p.CompletedTime = &now
	p.ChangedTime = now
	return true
}

// AwaitIdentification keeps a payment new while the customer completes
// 3-D Secure, remembering the gateway reference.
func (p *Payment) AwaitIdentification(remoteId, remoteState string, now time.Time) bool {
	if p.State != StateNew {
		return false
	}
	p.RemoteId = remoteId
	p.RemoteState = remoteState
	p.ChangedTime = now
	return true
}

// Fail moves a pending payment to failed. Payments that already have a
// gateway outcome are left alone.
func (p *Payment) Fail(remoteState string, now time.Time) bool {
	if !p.IsPending() {
		return false
	}
	if remoteState != "" {
		p.RemoteState = remoteState
	}
	p.State = StateFailed
	p.ChangedTime = now
	return true
}
