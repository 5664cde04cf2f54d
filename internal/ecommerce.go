package internal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"ingenico/entity"
	"ingenico/gateway"
)

type feedbackChannel string

const (
	channelReturn feedbackChannel = "return"
	channelNotify feedbackChannel = "notify"
	channelCancel feedbackChannel = "cancel"
)

// ECommerce is the off-site mode: the customer pays on the hosted payment
// page and the outcome arrives twice, on the browser return and on the
// server to server notification, in any order.
type ECommerce struct {
	*Payments
}

func NewECommerce(payments *Payments) *ECommerce {
	return &ECommerce{Payments: payments}
}

// CreateRedirect stores a new payment and returns the signed form the browser
// posts to the hosted payment page.
func (e *ECommerce) CreateRedirect(ctx context.Context, request *entity.PaymentRequest, client entity.ClientInfo) (*entity.Redirect, error) {
	if err := e.checkDatabase(); err != nil {
		return nil, err
	}
	if err := checkPaymentRequest(request); err != nil {
		return nil, err
	}
	now := e.now()
	payment := entity.NewPayment(uuid.NewString(), entity.GatewayECommerce, request.Order, request.Amount, request.Currency, now)
	payment.Test = !e.conf.Gateway.IsLive()
	payment.PaymentMethodId = request.PaymentMethodId
	payment.OrderId = orderId(request.Order.Number, now)

	order := request.Order
	ecommerceRequest := &gateway.ECommerceRequest{
		OrderId:      payment.OrderId,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Language:     language(order, e.conf.Gateway.Language),
		Operation:    paymentOperation(request.Capture),
		Customer:     customer(order, ""),
		Billing:      postalAddress(order.Billing),
		AcceptUrl:    e.conf.Gateway.AcceptUrl,
		DeclineUrl:   e.conf.Gateway.DeclineUrl,
		ExceptionUrl: e.conf.Gateway.ExceptionUrl,
		CancelUrl:    e.conf.Gateway.CancelUrl,
		BackUrl:      e.conf.Gateway.BackUrl,
		Correlation: gateway.Correlation{
			OrderNumber: order.Number,
			PaymentId:   payment.Id,
		},
		Device: detectDevice(client.UserAgent),
	}
	if order.Shipping != nil {
		shipping := postalAddress(*order.Shipping)
		ecommerceRequest.Shipping = &shipping
		ecommerceRequest.ShippingEmail = order.Email
	}

	signed, err := e.build(ecommerceRequest)
	if err != nil {
		return nil, err
	}
	endpoints, err := e.endpoints()
	if err != nil {
		return nil, err
	}
	if err = e.database.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if e.conf.Gateway.LogRequests {
		e.logger.Debug(fmt.Sprintf("[%s] redirect form: %s", GetRequestID(ctx), signed.Masked()))
	}
	e.logger.Info(fmt.Sprintf("[%s] payment %s: redirect for order %s; %s %s", GetRequestID(ctx), payment.Id, payment.OrderId, payment.Amount, payment.Currency))

	return &entity.Redirect{
		PaymentId: payment.Id,
		Url:       endpoints.Url(gateway.KindECommerce),
		Fields:    signed.Fields,
	}, nil
}

// OnReturn handles the browser coming back from the hosted page.
func (e *ECommerce) OnReturn(ctx context.Context, values url.Values) (*entity.Payment, error) {
	return e.processFeedback(ctx, values, channelReturn)
}

// OnNotify handles the gateway's server to server notification.
func (e *ECommerce) OnNotify(ctx context.Context, values url.Values) (*entity.Payment, error) {
	return e.processFeedback(ctx, values, channelNotify)
}

// OnCancel handles the customer leaving the hosted page. The cancellation is
// an expected outcome, so the decline is not reported as an error.
func (e *ECommerce) OnCancel(ctx context.Context, values url.Values) (*entity.Payment, error) {
	payment, err := e.processFeedback(ctx, values, channelCancel)
	if errors.Is(err, gateway.ErrDeclined) {
		return payment, nil
	}
	return payment, err
}

// processFeedback applies one verified feedback to the payment named by the
// signed ORDERID. Duplicate or stale feedback leaves the payment as it is.
func (e *ECommerce) processFeedback(ctx context.Context, values url.Values, channel feedbackChannel) (*entity.Payment, error) {
	if err := e.checkDatabase(); err != nil {
		return nil, err
	}
	response, err := gateway.ParseQuery(gateway.KindECommerce, values)
	if err != nil {
		return nil, err
	}
	if e.conf.Gateway.LogResponses {
		e.logger.Debug(fmt.Sprintf("[%s] %s feedback: %s", GetRequestID(ctx), channel, gateway.MaskFields(response.Fields).Encode()))
	}
	if response.OrderId() == "" {
		return nil, gateway.NewTransportError(0, "feedback without order id", nil)
	}
	found, err := e.database.GetPaymentByOrderId(ctx, response.OrderId())
	if err != nil {
		return nil, err
	}

	unlock, err := e.lockPayment(ctx, found.Id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payment, err := e.database.GetPayment(ctx, found.Id)
	if err != nil {
		return nil, err
	}
	from := payment.State

	if err = e.verifyFeedback(response, payment); err != nil {
		e.logger.Warn(fmt.Sprintf("[%s] %s for payment %s rejected: %v", GetRequestID(ctx), channel, payment.Id, err))
		if errors.Is(err, gateway.ErrVerification) && payment.Fail("", e.now()) {
			if saveErr := e.savePayment(ctx, payment, from); saveErr != nil {
				return nil, saveErr
			}
		}
		return payment, err
	}

	status := response.Status()
	changed := false
	switch {
	case response.Successful(gateway.PaymentSuccess):
		changed = e.applyPaymentStatus(payment, response)
		if channel == channelReturn {
			changed = e.recordPaymentMethod(ctx, payment, response) || changed
		}
	case gateway.IsPending(status) && !hasError(response):
		if !payment.IsPending() {
			break
		}
		if payment.RemoteId == "" && response.PayId() != "" {
			payment.RemoteId = response.PayId()
			changed = true
		}
		changed = payment.UpdateRemoteState(status, e.now()) || changed
	default:
		err = response.Decline()
		if payment.RemoteId == "" && response.PayId() != "" && payment.IsPending() {
			payment.RemoteId = response.PayId()
		}
		changed = payment.Fail(status, e.now())
	}

	if changed {
		if saveErr := e.savePayment(ctx, payment, from); saveErr != nil {
			return nil, saveErr
		}
	} else {
		e.logger.Debug(fmt.Sprintf("[%s] %s for payment %s: status %s; no change in %s", GetRequestID(ctx), channel, payment.Id, status, payment.State))
	}
	return payment, err
}

// verifyFeedback checks SHASIGN and that the unsigned PAYMENT_ID, when
// present, names the same payment as the signed ORDERID.
func (e *ECommerce) verifyFeedback(response *gateway.Response, payment *entity.Payment) error {
	signer, err := e.outSigner()
	if err != nil {
		return err
	}
	if err = response.Verify(signer); err != nil {
		return err
	}
	if id := response.Correlation().PaymentId; id != "" && id != payment.Id {
		return &gateway.VerificationError{
			OrderId: response.OrderId(),
			PayId:   response.PayId(),
			Message: fmt.Sprintf("payment id %s does not match order", id),
		}
	}
	return nil
}

// recordPaymentMethod keeps the card the customer used on the hosted page
// when the gateway returned an alias for it.
func (e *ECommerce) recordPaymentMethod(ctx context.Context, payment *entity.Payment, response *gateway.Response) bool {
	alias := response.Get(gateway.FieldAlias)
	if payment.PaymentMethodId != "" || alias == "" {
		return false
	}
	paymentMethod := &entity.PaymentMethod{
		Id:          uuid.NewString(),
		RemoteId:    alias,
		CardType:    response.Get(gateway.FieldBrand),
		CardNumber:  response.Get(gateway.FieldCardNo),
		CardHolder:  response.Get(gateway.FieldCardHolder),
		Email:       payment.Order.Email,
		Billing:     payment.Order.Billing,
		Test:        payment.Test,
		CreatedTime: e.now(),
	}
	if month, year, err := entity.ParseExpiry(response.Get(gateway.FieldExpiry)); err == nil {
		paymentMethod.SetExpiry(month, year)
	} else {
		e.logger.Warn(fmt.Sprintf("payment %s: %v", payment.Id, err))
	}
	if err := e.database.SavePaymentMethod(ctx, paymentMethod); err != nil {
		e.logger.Error(fmt.Sprintf("payment %s: save payment method", payment.Id), err)
		return false
	}
	payment.PaymentMethodId = paymentMethod.Id
	return true
}

func hasError(response *gateway.Response) bool {
	code := response.ErrorCode()
	return code != "" && code != "0"
}

func postalAddress(address entity.Address) gateway.Address {
	return gateway.Address{
		GivenName:   address.GivenName,
		FamilyName:  address.FamilyName,
		Line1:       address.Line1,
		Line2:       address.Line2,
		PostalCode:  address.PostalCode,
		City:        address.Locality,
		CountryCode: address.CountryCode,
	}
}

// detectDevice classifies the browser for the DEVICE field of the hosted
// page.
func detectDevice(userAgent string) string {
	agent := strings.ToLower(userAgent)
	switch {
	case agent == "":
		return ""
	case strings.Contains(agent, "ipad"), strings.Contains(agent, "tablet"),
		strings.Contains(agent, "android") && !strings.Contains(agent, "mobile"):
		return "tablet"
	case strings.Contains(agent, "mobi"), strings.Contains(agent, "iphone"), strings.Contains(agent, "ipod"):
		return "mobile"
	}
	return "computer"
}
