package gateway

import (
	"encoding/base64"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authorizedXml = `<?xml version="1.0"?>
<ncresponse orderID="1001-1700000000" PAYID="3014872211" NCSTATUS="0" NCERROR="0" NCERRORPLUS="!" ACCEPTANCE="test123" STATUS="5" amount="100" currency="EUR" PM="CreditCard" BRAND="VISA"></ncresponse>`

func TestParseXml(t *testing.T) {
	response, err := ParseResponse(KindPayment, &RawResponse{StatusCode: http.StatusOK, Body: []byte(authorizedXml)})
	require.NoError(t, err)

	assert.Equal(t, "3014872211", response.PayId())
	assert.Equal(t, "5", response.Status())
	assert.Equal(t, "1001-1700000000", response.OrderId())
	assert.Equal(t, "VISA", response.Get("brand"))
	assert.True(t, response.Successful(PaymentSuccess))
	assert.False(t, response.IsSigned())
}

func TestParseXmlLatin1(t *testing.T) {
	body := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><ncresponse PAYID=\"1\" STATUS=\"0\" NCERROR=\"50001111\" NCERRORPLUS=\"Donn\xe9es invalides\"/>")

	response, err := ParseXML(KindPayment, body)
	require.NoError(t, err)
	assert.Equal(t, "Données invalides", response.ErrorMessage())
	assert.False(t, response.Successful(PaymentSuccess))

	decline := response.Decline()
	assert.Equal(t, "50001111", decline.ErrorCode)
	assert.ErrorIs(t, decline, ErrDeclined)
}

func TestParseXmlErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  *RawResponse
	}{
		{"server error", &RawResponse{StatusCode: http.StatusInternalServerError, Body: []byte(authorizedXml)}},
		{"empty body", &RawResponse{StatusCode: http.StatusOK, Body: []byte("  ")}},
		{"not xml", &RawResponse{StatusCode: http.StatusOK, Body: []byte("<html")}},
		{"no attributes", &RawResponse{StatusCode: http.StatusOK, Body: []byte("<ncresponse/>")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(KindMaintenance, tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidResponse)
		})
	}
}

func TestThreeDSecureHtml(t *testing.T) {
	html := "<form action=\"https://acs.test\"></form>"
	body := `<ncresponse PAYID="7" STATUS="46" NCERROR="0"><HTML_ANSWER>` +
		base64.StdEncoding.EncodeToString([]byte(html)) + `</HTML_ANSWER></ncresponse>`

	response, err := ParseXML(KindPayment, []byte(body))
	require.NoError(t, err)
	decoded, err := response.ThreeDSecureHtml()
	require.NoError(t, err)
	assert.Equal(t, html, string(decoded))
	assert.False(t, response.Successful(PaymentSuccess))
}

func TestParseRedirect(t *testing.T) {
	signer := NewSigner("out", Sha512)
	fields := Fields{"ALIAS": "A-1", "BRAND": "VISA", "CARDNO": "XXXXXXXXXXXX1111", "ED": "0331", "NCERROR": "0", "STATUS": "0"}
	fields[FieldShaSign] = signer.Sign(fields, ShaOutFilter)
	location := "https://example.com/accept?" + fields.Encode()

	raw := &RawResponse{StatusCode: http.StatusFound, Header: http.Header{"Location": {location}}}
	response, err := ParseResponse(KindAlias, raw)
	require.NoError(t, err)
	assert.Equal(t, "A-1", response.Get(FieldAlias))
	assert.NoError(t, response.Verify(signer))
	assert.True(t, response.Successful(AliasSuccess))

	_, err = ParseResponse(KindAlias, &RawResponse{StatusCode: http.StatusFound, Header: http.Header{}})
	assert.ErrorIs(t, err, ErrInvalidResponse)

	_, err = ParseResponse(KindAlias, &RawResponse{StatusCode: http.StatusOK, Header: http.Header{"Location": {location}}})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseQueryVerification(t *testing.T) {
	signer := NewSigner("out", Sha1)
	fields := Fields{"orderID": "1001-1", "amount": "100", "currency": "EUR", "PM": "CreditCard", "STATUS": "9", "PAYID": "42", "NCERROR": "0"}
	fields[FieldShaSign] = signer.Sign(fields, ShaOutFilter)
	values := fields.Values()
	values.Set(ParamPaymentId, "p-1")
	values.Set(ParamOrderId, "1001")

	response, err := ParseQuery(KindECommerce, values)
	require.NoError(t, err)
	assert.NoError(t, response.Verify(signer), "pass-through parameters are not signed")
	assert.Equal(t, Correlation{OrderNumber: "1001", PaymentId: "p-1"}, response.Correlation())

	amount, err := response.Amount()
	require.NoError(t, err)
	assert.Equal(t, "100", amount.String())

	values.Set("STATUS", "5")
	tampered, err := ParseQuery(KindECommerce, values)
	require.NoError(t, err)
	err = tampered.Verify(signer)
	assert.ErrorIs(t, err, ErrVerification)

	values.Del(FieldShaSign)
	unsigned, err := ParseQuery(KindECommerce, values)
	require.NoError(t, err)
	assert.ErrorIs(t, unsigned.Verify(signer), ErrVerification)

	_, err = ParseQuery(KindECommerce, url.Values{})
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestMaintenanceSuccessSets(t *testing.T) {
	assert.True(t, MaintenanceSuccess(OperationCaptureLastOrFull).Contains(StatusPaymentRequested))
	assert.True(t, MaintenanceSuccess(OperationCapturePartial).Contains(StatusPaymentProcessing))
	assert.True(t, MaintenanceSuccess(OperationRefundPartial).Contains(StatusRefundPending))
	assert.True(t, MaintenanceSuccess(OperationAuthorizationDeleteAndClose).Contains(StatusAuthorizedAndCancelled))
	assert.True(t, MaintenanceSuccess(OperationAuthorizationRenew).Contains(StatusAuthorized))
	assert.False(t, MaintenanceSuccess(OperationRefundLastOrFull).Contains(StatusPaymentRequested))
}
