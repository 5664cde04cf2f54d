package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ingenico/entity"
	"ingenico/gateway"
)

// The alias gateway answers with a redirect to these URLs; the redirect is
// read from the Location header and never followed.
const (
	aliasAcceptUrl    = "https://localhost/alias/accept"
	aliasExceptionUrl = "https://localhost/alias/exception"
)

// DirectLink is the on-site mode: card data reaches the gateway server to
// server and payments are answered synchronously.
type DirectLink struct {
	*Payments
}

func NewDirectLink(payments *Payments) *DirectLink {
	return &DirectLink{Payments: payments}
}

// CreatePaymentMethod stores the card at the gateway and keeps the alias with
// the masked card number.
func (d *DirectLink) CreatePaymentMethod(ctx context.Context, request *entity.PaymentMethodRequest) (*entity.PaymentMethod, error) {
	if err := d.checkDatabase(); err != nil {
		return nil, err
	}
	if request == nil {
		return nil, gateway.NewConfigError("", "empty payment method request")
	}
	aliasRequest := &gateway.AliasRequest{
		AcceptUrl:         aliasAcceptUrl,
		ExceptionUrl:      aliasExceptionUrl,
		PersistedAfterUse: true,
		Card: gateway.Card{
			Number:      request.CardNumber,
			Holder:      request.CardHolder,
			Cvc:         request.CardCvc,
			ExpiryMonth: request.ExpiryMonth,
			ExpiryYear:  request.ExpiryYear,
			Brand:       request.CardType,
		},
	}
	response, err := d.send(ctx, aliasRequest, gateway.AliasSuccess)
	if err != nil {
		d.logger.Warn(fmt.Sprintf("[%s] create alias for card %s: %v", GetRequestID(ctx), gateway.MaskCardNumber(request.CardNumber), err))
		return nil, err
	}
	alias := response.Get(gateway.FieldAlias)
	if alias == "" {
		return nil, gateway.NewTransportError(0, "alias missing in reply", nil)
	}

	brand := response.Get(gateway.FieldBrand)
	if brand == "" {
		brand = request.CardType
	}
	paymentMethod := &entity.PaymentMethod{
		Id:          uuid.NewString(),
		RemoteId:    alias,
		CardType:    brand,
		CardNumber:  gateway.MaskCardNumber(request.CardNumber),
		CardHolder:  request.CardHolder,
		Email:       request.Email,
		Billing:     request.Billing,
		Test:        !d.conf.Gateway.IsLive(),
		CreatedTime: d.now(),
	}
	paymentMethod.SetExpiry(request.ExpiryMonth, request.ExpiryYear)

	if err = d.database.SavePaymentMethod(ctx, paymentMethod); err != nil {
		return nil, fmt.Errorf("save payment method: %w", err)
	}
	d.logger.Info(fmt.Sprintf("[%s] payment method %s saved; alias %s", GetRequestID(ctx), paymentMethod.Id, secret(alias)))
	return paymentMethod, nil
}

// DeletePaymentMethod forgets the method locally. The gateway keeps the alias
// until it expires.
func (d *DirectLink) DeletePaymentMethod(ctx context.Context, id string) error {
	if err := d.checkDatabase(); err != nil {
		return err
	}
	return d.database.DeletePaymentMethod(ctx, id)
}

// CreatePayment charges a stored payment method. The payment is stored as new
// before the gateway call so that 3-D Secure feedback can find it.
func (d *DirectLink) CreatePayment(ctx context.Context, request *entity.PaymentRequest, client entity.ClientInfo) (*entity.PaymentResult, error) {
	if err := d.checkDatabase(); err != nil {
		return nil, err
	}
	if err := checkPaymentRequest(request); err != nil {
		return nil, err
	}
	if request.PaymentMethodId == "" {
		return nil, gateway.NewConfigError("payment_method_id", "payment method is required")
	}
	paymentMethod, err := d.database.GetPaymentMethod(ctx, request.PaymentMethodId)
	if err != nil {
		return nil, err
	}
	now := d.now()
	if paymentMethod.IsExpired(now) {
		return nil, &gateway.DeclineError{Message: fmt.Sprintf("payment method %s expired", paymentMethod.Id)}
	}

	payment := entity.NewPayment(uuid.NewString(), entity.GatewayDirectLink, request.Order, request.Amount, request.Currency, now)
	payment.Test = !d.conf.Gateway.IsLive()
	payment.PaymentMethodId = paymentMethod.Id
	payment.OrderId = orderId(request.Order.Number, now)

	paymentRequest := &gateway.PaymentRequest{
		OrderId:   payment.OrderId,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Operation: paymentOperation(request.Capture),
		Alias:     paymentMethod.RemoteId,
		Customer:  customer(request.Order, paymentMethod.CardHolder),
		Correlation: gateway.Correlation{
			OrderNumber: request.Order.Number,
			PaymentId:   payment.Id,
		},
		RemoteAddr: client.Ip,
	}
	if paymentRequest.Customer.Email == "" {
		paymentRequest.Customer.Email = paymentMethod.Email
	}
	if d.conf.Gateway.ThreeDSecure {
		paymentRequest.ThreeDSecure = &gateway.ThreeDSecure{
			HttpAccept:    client.Accept,
			HttpUserAgent: client.UserAgent,
			AcceptUrl:     d.conf.Gateway.AcceptUrl,
			DeclineUrl:    d.conf.Gateway.DeclineUrl,
			ExceptionUrl:  d.conf.Gateway.ExceptionUrl,
			Language:      language(request.Order, d.conf.Gateway.Language),
		}
	}
	signed, err := d.build(paymentRequest)
	if err != nil {
		return nil, err
	}

	if err = d.database.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	unlock, err := d.lockPayment(ctx, payment.Id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	d.logger.Info(fmt.Sprintf("[%s] payment %s: order %s; %s %s %s", GetRequestID(ctx), payment.Id, payment.OrderId, paymentRequest.Operation, payment.Amount, payment.Currency))
	response, err := d.post(ctx, signed, gateway.PaymentSuccess)
	if err != nil {
		return d.paymentFailed(ctx, payment, response, err)
	}

	from := payment.State
	result := &entity.PaymentResult{Payment: payment}
	if response.RequiresIdentification() {
		html, err := response.ThreeDSecureHtml()
		if err != nil {
			return nil, err
		}
		payment.AwaitIdentification(response.PayId(), response.Status(), d.now())
		result.ThreeDSecureHtml = string(html)
	} else {
		d.applyPaymentStatus(payment, response)
	}
	if err = d.savePayment(ctx, payment, from); err != nil {
		return nil, err
	}
	return result, nil
}

// paymentFailed fails the payment on a decline or an untrusted reply. Any
// other error leaves it new, since the outcome at the gateway is unknown.
func (d *DirectLink) paymentFailed(ctx context.Context, payment *entity.Payment, response *gateway.Response, err error) (*entity.PaymentResult, error) {
	if !errors.Is(err, gateway.ErrDeclined) && !errors.Is(err, gateway.ErrVerification) {
		d.logger.Error(fmt.Sprintf("[%s] payment %s left %s", GetRequestID(ctx), payment.Id, payment.State), err)
		return nil, err
	}
	d.logger.Warn(fmt.Sprintf("[%s] payment %s failed: %v", GetRequestID(ctx), payment.Id, err))
	from := payment.State
	remoteState := ""
	if response != nil && errors.Is(err, gateway.ErrDeclined) {
		remoteState = response.Status()
		if payment.RemoteId == "" {
			payment.RemoteId = response.PayId()
		}
	}
	if payment.Fail(remoteState, d.now()) {
		if e := d.savePayment(ctx, payment, from); e != nil {
			d.logger.Error(fmt.Sprintf("[%s] save failed payment %s", GetRequestID(ctx), payment.Id), e)
		}
	}
	return nil, err
}

func language(order entity.Order, fallback string) string {
	if order.Language != "" {
		return order.Language
	}
	return fallback
}
