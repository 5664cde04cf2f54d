package internal

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingenico/config"
	"ingenico/entity"
	"ingenico/gateway"
)

const testAlias = "7D4B3E5A-61C0-4E5B-9C6A-2F3B1C0A9E11"

func newDirectLink(conf *config.Config) (*DirectLink, *testHarness) {
	h := newHarness(conf)
	return NewDirectLink(h.payments), h
}

func testPaymentMethodRequest() *entity.PaymentMethodRequest {
	return &entity.PaymentMethodRequest{
		CardNumber:  "4111111111111111",
		CardHolder:  "Jane Doe",
		CardCvc:     "123",
		CardType:    "VISA",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		Email:       "jane@example.com",
		Billing: entity.Address{
			GivenName:   "Jane",
			FamilyName:  "Doe",
			Line1:       "1 Main Street",
			PostalCode:  "1000",
			Locality:    "Brussels",
			CountryCode: "BE",
		},
	}
}

// aliasRedirect answers alias creation with a signed 302, as the alias
// gateway does.
func aliasRedirect(passphrase string, fields map[string]string) func(call transportCall) (*gateway.RawResponse, error) {
	return func(call transportCall) (*gateway.RawResponse, error) {
		values := url.Values{}
		for key, value := range signOut(fields, passphrase) {
			values.Set(key, value)
		}
		header := http.Header{}
		header.Set("Location", call.Fields.Get("ACCEPTURL")+"?"+values.Encode())
		return &gateway.RawResponse{StatusCode: http.StatusFound, Header: header}, nil
	}
}

func aliasFields() map[string]string {
	return map[string]string{
		"ALIAS":   testAlias,
		"BRAND":   "VISA",
		"CARDNO":  "XXXXXXXXXXXX1111",
		"CN":      "Jane Doe",
		"ED":      "1230",
		"NCERROR": "0",
		"STATUS":  gateway.AliasStatusCreated,
	}
}

func (h *testHarness) storedMethod(t *testing.T, expiryYear int) *entity.PaymentMethod {
	paymentMethod := &entity.PaymentMethod{
		Id:          uuid.NewString(),
		RemoteId:    testAlias,
		CardType:    "VISA",
		CardNumber:  "XXXXXXXXXXXX1111",
		CardHolder:  "Jane Doe",
		Email:       "jane@example.com",
		Test:        true,
		CreatedTime: testTime,
	}
	paymentMethod.SetExpiry(12, expiryYear)
	require.NoError(t, h.database.SavePaymentMethod(context.Background(), paymentMethod))
	return paymentMethod
}

func testPaymentRequest(methodId string) *entity.PaymentRequest {
	return &entity.PaymentRequest{
		Order: entity.Order{
			Number: "1001",
			Email:  "jane@example.com",
			Billing: entity.Address{
				GivenName:   "Jane",
				FamilyName:  "Doe",
				Line1:       "1 Main Street",
				PostalCode:  "1000",
				Locality:    "Brussels",
				CountryCode: "BE",
			},
		},
		Amount:          decimal.RequireFromString("100.00"),
		Currency:        "EUR",
		PaymentMethodId: methodId,
	}
}

func testClient() entity.ClientInfo {
	return entity.ClientInfo{
		Ip:        "203.0.113.7",
		Accept:    "text/html",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
	}
}

func paymentReply(status string, extra map[string]string) func(call transportCall) (*gateway.RawResponse, error) {
	return func(call transportCall) (*gateway.RawResponse, error) {
		fields := map[string]string{
			"orderID":  call.Fields.Get("ORDERID"),
			"PAYID":    testPayId,
			"NCSTATUS": "0",
			"NCERROR":  "0",
			"STATUS":   status,
			"amount":   "100",
			"currency": "EUR",
		}
		for key, value := range extra {
			fields[key] = value
		}
		return xmlReply(fields, ""), nil
	}
}

func TestCreatePaymentMethod(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	h.transport.reply = aliasRedirect(testShaOut, aliasFields())

	paymentMethod, err := directLink.CreatePaymentMethod(context.Background(), testPaymentMethodRequest())
	require.NoError(t, err)
	assert.Equal(t, testAlias, paymentMethod.RemoteId)
	assert.Equal(t, "VISA", paymentMethod.CardType)
	assert.Equal(t, "XXXXXXXXXXXX1111", paymentMethod.CardNumber)
	assert.Equal(t, 2030, paymentMethod.ExpiryYear)
	require.NotNil(t, paymentMethod.ExpiresTime)
	assert.Equal(t, time.Date(2030, time.December, 31, 23, 59, 59, 0, time.UTC), *paymentMethod.ExpiresTime)
	assert.True(t, paymentMethod.Test)

	call := h.transport.LastCall(t)
	assert.True(t, strings.HasSuffix(call.Url, "/ncol/test/alias_gateway_utf8.asp"))
	assert.Equal(t, "4111111111111111", call.Fields.Get("CARDNO"))
	assert.Equal(t, "1230", call.Fields.Get("ED"))
	assert.Equal(t, "Y", call.Fields.Get("ALIASPERSISTEDAFTERUSE"))
	assert.Empty(t, call.Fields.Get("USERID"))

	stored, err := h.database.GetPaymentMethod(context.Background(), paymentMethod.Id)
	require.NoError(t, err)
	assert.Equal(t, testAlias, stored.RemoteId)
}

func TestCreatePaymentMethodRejectsUntrustedReply(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	h.transport.reply = aliasRedirect("forged", aliasFields())

	_, err := directLink.CreatePaymentMethod(context.Background(), testPaymentMethodRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrVerification)
}

func TestCreatePaymentMethodAliasError(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	fields := aliasFields()
	fields["STATUS"] = gateway.AliasStatusError
	fields["NCERROR"] = "50001184"
	delete(fields, "ALIAS")
	h.transport.reply = aliasRedirect(testShaOut, fields)

	_, err := directLink.CreatePaymentMethod(context.Background(), testPaymentMethodRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrDeclined)
}

func TestCreatePaymentMethodInvalidCard(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	request := testPaymentMethodRequest()
	request.CardNumber = "4111-1111"

	_, err := directLink.CreatePaymentMethod(context.Background(), request)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrConfiguration)
	assert.Empty(t, h.transport.Calls())
}

func TestDirectPaymentAuthorized(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2030)
	h.transport.reply = paymentReply(gateway.StatusAuthorized, nil)

	result, err := directLink.CreatePayment(context.Background(), testPaymentRequest(paymentMethod.Id), testClient())
	require.NoError(t, err)
	payment := result.Payment
	assert.Empty(t, result.ThreeDSecureHtml)
	assert.Equal(t, entity.StateAuthorization, payment.State)
	assert.Equal(t, testPayId, payment.RemoteId)
	assert.True(t, payment.AuthorizedAmount.Equal(decimal.RequireFromString("100")))
	assert.Equal(t, entity.GatewayDirectLink, payment.Gateway)
	assert.Equal(t, paymentMethod.Id, payment.PaymentMethodId)

	call := h.transport.LastCall(t)
	assert.True(t, strings.HasSuffix(call.Url, "/ncol/test/orderdirect.asp"))
	assert.Equal(t, "RES", call.Fields.Get("OPERATION"))
	assert.Equal(t, "10000", call.Fields.Get("AMOUNT"))
	assert.Equal(t, testAlias, call.Fields.Get("ALIAS"))
	assert.Equal(t, orderId("1001", testTime), call.Fields.Get("ORDERID"))
	assert.Equal(t, "Jane Doe", call.Fields.Get("CN"))
	assert.Equal(t, "203.0.113.7", call.Fields.Get("REMOTE_ADDR"))
	assert.Equal(t, "7", call.Fields.Get("ECI"))
	assert.Empty(t, call.Fields.Get("FLAG3D"))
	plus, err := url.ParseQuery(call.Fields.Get("PARAMPLUS"))
	require.NoError(t, err)
	assert.Equal(t, payment.Id, plus.Get("PAYMENT_ID"))
	assert.Equal(t, "1001", plus.Get("ORDER_ID"))

	stored := h.stored(t, payment.Id)
	assert.Equal(t, entity.StateAuthorization, stored.State)
	events := h.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "payment.authorization", events[0].RoutingKey())

	h.transport.reply = maintenanceReplies
	payment, err = h.payments.CapturePayment(context.Background(), payment.Id, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.StateCaptureCompleted, payment.State)
}

func TestDirectPaymentSale(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2030)
	h.transport.reply = paymentReply(gateway.StatusPaymentRequested, nil)
	request := testPaymentRequest(paymentMethod.Id)
	request.Capture = true

	result, err := directLink.CreatePayment(context.Background(), request, testClient())
	require.NoError(t, err)
	assert.Equal(t, "SAL", h.transport.LastCall(t).Fields.Get("OPERATION"))
	assert.Equal(t, entity.StateCaptureCompleted, result.Payment.State)
	assert.True(t, result.Payment.CapturedAmount.Equal(decimal.RequireFromString("100")))
	require.NotNil(t, result.Payment.CompletedTime)
}

func TestDirectPaymentAmountMatchesGateway(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2030)
	h.transport.reply = paymentReply(gateway.StatusAuthorized, nil)
	request := testPaymentRequest(paymentMethod.Id)
	request.Amount = decimal.RequireFromString("99.999")

	result, err := directLink.CreatePayment(context.Background(), request, testClient())
	require.NoError(t, err)
	assert.Equal(t, "9999", h.transport.LastCall(t).Fields.Get("AMOUNT"))
	assert.True(t, result.Payment.Amount.Equal(decimal.RequireFromString("99.99")), result.Payment.Amount.String())
	assert.True(t, result.Payment.AuthorizedAmount.Equal(decimal.RequireFromString("99.99")))
}

func TestDirectPaymentDeclineFailsPayment(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2030)
	h.transport.reply = paymentReply(gateway.StatusAuthorizationRefused, map[string]string{
		"NCERROR":     "30001001",
		"NCERRORPLUS": "Payment refused by the acquirer",
	})

	_, err := directLink.CreatePayment(context.Background(), testPaymentRequest(paymentMethod.Id), testClient())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrDeclined)
	assert.Contains(t, err.Error(), "30001001")

	stored, err := h.database.GetPaymentByOrderId(context.Background(), orderId("1001", testTime))
	require.NoError(t, err)
	assert.Equal(t, entity.StateFailed, stored.State)
	assert.Equal(t, gateway.StatusAuthorizationRefused, stored.RemoteState)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.transitions.WithLabelValues("new", "failed")))
}

func TestDirectPaymentTransportErrorKeepsPaymentNew(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2030)
	h.transport.reply = func(call transportCall) (*gateway.RawResponse, error) {
		return nil, gateway.NewTransportError(http.StatusServiceUnavailable, "unexpected status", nil)
	}

	_, err := directLink.CreatePayment(context.Background(), testPaymentRequest(paymentMethod.Id), testClient())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrInvalidResponse)

	stored, err := h.database.GetPaymentByOrderId(context.Background(), orderId("1001", testTime))
	require.NoError(t, err)
	assert.Equal(t, entity.StateNew, stored.State)
	assert.Empty(t, h.publisher.Events())
}

func TestDirectPaymentExpiredMethod(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2025)

	_, err := directLink.CreatePayment(context.Background(), testPaymentRequest(paymentMethod.Id), testClient())
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrDeclined)
	assert.Empty(t, h.transport.Calls())
}

func TestDirectPaymentValidation(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2030)

	tests := []struct {
		name   string
		modify func(request *entity.PaymentRequest)
		target error
	}{
		{"zero amount", func(r *entity.PaymentRequest) { r.Amount = decimal.Zero }, gateway.ErrConfiguration},
		{"sub-cent amount", func(r *entity.PaymentRequest) { r.Amount = decimal.RequireFromString("0.009") }, gateway.ErrConfiguration},
		{"bad currency", func(r *entity.PaymentRequest) { r.Currency = "EURO" }, gateway.ErrConfiguration},
		{"no order number", func(r *entity.PaymentRequest) { r.Order.Number = "" }, gateway.ErrConfiguration},
		{"no payment method", func(r *entity.PaymentRequest) { r.PaymentMethodId = "" }, gateway.ErrConfiguration},
		{"unknown payment method", func(r *entity.PaymentRequest) { r.PaymentMethodId = "missing" }, entity.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := testPaymentRequest(paymentMethod.Id)
			tt.modify(request)
			_, err := directLink.CreatePayment(context.Background(), request, testClient())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
		})
	}
	assert.Empty(t, h.transport.Calls())
}

func TestDirectPaymentThreeDSecure(t *testing.T) {
	conf := testConfig()
	conf.Gateway.ThreeDSecure = true
	directLink, h := newDirectLink(conf)
	paymentMethod := h.storedMethod(t, 2030)
	challenge := "<form action=\"https://acs.example.com\"></form>"
	h.transport.reply = func(call transportCall) (*gateway.RawResponse, error) {
		return xmlReply(map[string]string{
			"orderID": call.Fields.Get("ORDERID"),
			"PAYID":   testPayId,
			"NCERROR": "0",
			"STATUS":  gateway.StatusWaitingIdentification,
		}, base64.StdEncoding.EncodeToString([]byte(challenge))), nil
	}

	result, err := directLink.CreatePayment(context.Background(), testPaymentRequest(paymentMethod.Id), testClient())
	require.NoError(t, err)
	assert.Equal(t, challenge, result.ThreeDSecureHtml)
	assert.Equal(t, entity.StateNew, result.Payment.State)
	assert.Equal(t, testPayId, result.Payment.RemoteId)
	assert.Equal(t, gateway.StatusWaitingIdentification, result.Payment.RemoteState)

	call := h.transport.LastCall(t)
	assert.Equal(t, "Y", call.Fields.Get("FLAG3D"))
	assert.Equal(t, "MAINW", call.Fields.Get("WIN3DS"))
	assert.Equal(t, testClient().UserAgent, call.Fields.Get("HTTP_USER_AGENT"))
	assert.Equal(t, conf.Gateway.AcceptUrl, call.Fields.Get("ACCEPTURL"))
	assert.Equal(t, "en_US", call.Fields.Get("LANGUAGE"))

	// the identification outcome arrives on the e-Commerce feedback channel
	ecommerce := NewECommerce(h.payments)
	values := feedbackValues(map[string]string{
		"orderID":  result.Payment.OrderId,
		"PAYID":    testPayId,
		"STATUS":   gateway.StatusAuthorized,
		"NCERROR":  "0",
		"amount":   "100",
		"currency": "EUR",
	}, result.Payment.Id)
	payment, err := ecommerce.OnReturn(context.Background(), values)
	require.NoError(t, err)
	assert.Equal(t, entity.StateAuthorization, payment.State)
	assert.Equal(t, paymentMethod.Id, payment.PaymentMethodId)
}

func TestDirectPaymentThreeDSecureNeedsBrowser(t *testing.T) {
	conf := testConfig()
	conf.Gateway.ThreeDSecure = true
	directLink, h := newDirectLink(conf)
	paymentMethod := h.storedMethod(t, 2030)

	_, err := directLink.CreatePayment(context.Background(), testPaymentRequest(paymentMethod.Id), entity.ClientInfo{})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrConfiguration)

	_, err = h.database.GetPaymentByOrderId(context.Background(), orderId("1001", testTime))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestDeletePaymentMethod(t *testing.T) {
	directLink, h := newDirectLink(testConfig())
	paymentMethod := h.storedMethod(t, 2030)

	require.NoError(t, directLink.DeletePaymentMethod(context.Background(), paymentMethod.Id))
	assert.ErrorIs(t, directLink.DeletePaymentMethod(context.Background(), paymentMethod.Id), entity.ErrNotFound)
	assert.Empty(t, h.transport.Calls())
}
