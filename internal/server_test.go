package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingenico/entity"
	"ingenico/gateway"
)

func newTestServer(h *testHarness) *Server {
	server := NewServer(h.conf)
	server.SetPaymentsService(h.payments)
	server.SetDirectLinkService(NewDirectLink(h.payments))
	server.SetECommerceService(NewECommerce(h.payments))
	return server
}

func serve(server *Server, method, target, body string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("User-Agent", testClient().UserAgent)
	request.RemoteAddr = "203.0.113.7:52100"
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	return recorder
}

func decodeJson(t *testing.T, recorder *httptest.ResponseRecorder, value any) {
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), value), recorder.Body.String())
}

func TestServerDirectLinkFlow(t *testing.T) {
	h := newHarness(testConfig())
	server := newTestServer(h)

	h.transport.reply = aliasRedirect(testShaOut, aliasFields())
	recorder := serve(server, http.MethodPost, paymentMethods, `{
		"card_number": "4111111111111111", "card_holder": "Jane Doe", "card_cvc": "123",
		"expiry_month": 12, "expiry_year": 2030, "email": "jane@example.com"}`)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	var paymentMethod entity.PaymentMethod
	decodeJson(t, recorder, &paymentMethod)
	assert.Equal(t, testAlias, paymentMethod.RemoteId)

	h.transport.reply = paymentReply(gateway.StatusAuthorized, nil)
	recorder = serve(server, http.MethodPost, directPayments, fmt.Sprintf(`{
		"order": {"number": "1001", "email": "jane@example.com"},
		"amount": "100.00", "currency": "EUR", "payment_method_id": %q}`, paymentMethod.Id))
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	var result entity.PaymentResult
	decodeJson(t, recorder, &result)
	require.NotNil(t, result.Payment)
	assert.Equal(t, entity.StateAuthorization, result.Payment.State)
	assert.Equal(t, "203.0.113.7", h.transport.LastCall(t).Fields.Get("REMOTE_ADDR"))

	h.transport.reply = maintenanceReplies
	recorder = serve(server, http.MethodPost, "/payments/"+result.Payment.Id+"/capture", `{"amount": "40"}`)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var payment entity.Payment
	decodeJson(t, recorder, &payment)
	assert.Equal(t, entity.StatePartiallyCaptured, payment.State)

	recorder = serve(server, http.MethodPost, "/payments/"+result.Payment.Id+"/capture", "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	decodeJson(t, recorder, &payment)
	assert.Equal(t, entity.StateCaptureCompleted, payment.State)

	recorder = serve(server, http.MethodPost, "/payments/"+result.Payment.Id+"/refund", `{"amount": "500"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	recorder = serve(server, http.MethodPost, "/payments/"+result.Payment.Id+"/void", "")
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder = serve(server, http.MethodGet, "/payments/"+result.Payment.Id, "")
	require.Equal(t, http.StatusOK, recorder.Code)
	decodeJson(t, recorder, &payment)
	assert.Equal(t, entity.StateCaptureCompleted, payment.State)
	assert.NotEmpty(t, recorder.Header().Get(requestIDHeader))

	recorder = serve(server, http.MethodDelete, "/directlink/payment-methods/"+paymentMethod.Id, "")
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestServerDeclineResponse(t *testing.T) {
	h := newHarness(testConfig())
	server := newTestServer(h)
	paymentMethod := h.storedMethod(t, 2030)
	h.transport.reply = paymentReply(gateway.StatusAuthorizationRefused, map[string]string{"NCERROR": "30001001"})

	recorder := serve(server, http.MethodPost, directPayments, fmt.Sprintf(`{
		"order": {"number": "1001"}, "amount": 12.5, "currency": "EUR", "payment_method_id": %q}`, paymentMethod.Id))
	assert.Equal(t, http.StatusPaymentRequired, recorder.Code)
	var response errorResponse
	decodeJson(t, recorder, &response)
	assert.Equal(t, "30001001", response.ErrorCode)
	assert.Equal(t, gateway.StatusAuthorizationRefused, response.Status)
	assert.NotEmpty(t, response.RequestId)
}

func TestServerECommerceFlow(t *testing.T) {
	h := newHarness(testConfig())
	server := newTestServer(h)

	recorder := serve(server, http.MethodPost, ecommercePayments, `{
		"order": {"number": "1001", "billing": {"given_name": "Jane", "family_name": "Doe", "country_code": "BE"}},
		"amount": "100.00", "currency": "EUR", "capture": true}`)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	var redirect entity.Redirect
	decodeJson(t, recorder, &redirect)
	assert.Equal(t, "SAL", redirect.Fields["OPERATION"])
	assert.Equal(t, "computer", redirect.Fields["DEVICE"])

	payment := h.stored(t, redirect.PaymentId)
	values := feedbackValues(statusFields(payment, gateway.StatusPaymentRequested), payment.Id)

	notify := httptest.NewRequest(http.MethodPost, ecommerceNotify, strings.NewReader(values.Encode()))
	notify.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, notify)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = serve(server, http.MethodGet, ecommerceReturn+"?"+values.Encode(), "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var returned entity.Payment
	decodeJson(t, recorder, &returned)
	assert.Equal(t, entity.StateCaptureCompleted, returned.State)

	tampered := url.Values{}
	for key, value := range values {
		tampered[key] = value
	}
	tampered.Set("STATUS", gateway.StatusAuthorized)
	recorder = serve(server, http.MethodGet, ecommerceReturn+"?"+tampered.Encode(), "")
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, entity.StateCaptureCompleted, h.stored(t, payment.Id).State)
}

func TestServerBadRequests(t *testing.T) {
	h := newHarness(testConfig())
	server := newTestServer(h)

	assert.Equal(t, http.StatusBadRequest, serve(server, http.MethodPost, directPayments, "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(server, http.MethodPost, directPayments, "{").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/payments/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(server, http.MethodPost, "/payments/missing/void", "").Code)
}

func TestServerQueryPassesPayIdSub(t *testing.T) {
	h := newHarness(testConfig())
	payment := h.authorizedPayment(t, "50.00")
	h.transport.reply = func(call transportCall) (*gateway.RawResponse, error) {
		return xmlReply(map[string]string{
			"PAYID":   call.Fields.Get("PAYID"),
			"STATUS":  gateway.StatusAuthorized,
			"NCERROR": "0",
		}, ""), nil
	}

	recorder := serve(newTestServer(h), http.MethodGet, "/payments/"+payment.Id+"/query?payidsub=3", "")
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Equal(t, "3", h.transport.LastCall(t).Fields.Get("PAYIDSUB"))
}

func TestServerMetrics(t *testing.T) {
	h := newHarness(testConfig())
	recorder := serve(newTestServer(h), http.MethodGet, metricsPath, "")
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestHttpStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{gateway.NewConfigError("PSPID", "missing"), http.StatusBadRequest},
		{fmt.Errorf("payment x: %w", entity.ErrNotFound), http.StatusNotFound},
		{entity.ErrInvalidState, http.StatusConflict},
		{entity.ErrVersionConflict, http.StatusConflict},
		{entity.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{&gateway.DeclineError{Status: "2"}, http.StatusPaymentRequired},
		{&gateway.VerificationError{Message: "signature mismatch"}, http.StatusForbidden},
		{gateway.NewTransportError(500, "unexpected status", nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatus(tt.err))
		})
	}
}

func TestClientInfo(t *testing.T) {
	request := httptest.NewRequest(http.MethodPost, directPayments, nil)
	request.RemoteAddr = "10.0.0.1:4000"
	request.Header.Set("Accept", "text/html")
	assert.Equal(t, "10.0.0.1", clientInfo(request).Ip)
	assert.Equal(t, "text/html", clientInfo(request).Accept)

	request.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	assert.Equal(t, "198.51.100.4", clientInfo(request).Ip)

	request.Header.Set("X-Forwarded-For", "unknown")
	assert.Empty(t, clientInfo(request).Ip)
}
