package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// RawResponse is what the transport hands back: status, headers and body.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Response is a parsed gateway reply. Field names are upper-cased.
type Response struct {
	Kind       RequestKind
	Fields     Fields
	htmlAnswer string
}

type xmlReply struct {
	XMLName    xml.Name
	Attrs      []xml.Attr `xml:",any,attr"`
	HtmlAnswer string     `xml:"HTML_ANSWER"`
}

// ParseResponse reads a transport reply according to the request kind.
// Alias creation answers with a redirect whose query holds the fields; the
// other API calls answer with an XML document.
func ParseResponse(kind RequestKind, raw *RawResponse) (*Response, error) {
	if raw == nil {
		return nil, NewTransportError(0, "no response", nil)
	}
	if kind == KindAlias {
		return ParseRedirect(kind, raw)
	}
	if raw.StatusCode != http.StatusOK {
		return nil, NewTransportError(raw.StatusCode, "unexpected status", nil)
	}
	return ParseXML(kind, raw.Body)
}

// ParseXML reads the attributes of the root element as response fields.
func ParseXML(kind RequestKind, body []byte) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, NewTransportError(0, "empty response body", nil)
	}
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.CharsetReader = charsetReader
	var reply xmlReply
	if err := decoder.Decode(&reply); err != nil {
		return nil, NewTransportError(0, "malformed xml response", err)
	}
	fields := make(Fields, len(reply.Attrs))
	for _, attr := range reply.Attrs {
		fields[strings.ToUpper(attr.Name.Local)] = attr.Value
	}
	if len(fields) == 0 {
		return nil, NewTransportError(0, "response has no fields", nil)
	}
	return &Response{
		Kind:       kind,
		Fields:     fields,
		htmlAnswer: strings.TrimSpace(reply.HtmlAnswer),
	}, nil
}

// ParseQuery reads redirect or notification parameters.
func ParseQuery(kind RequestKind, values url.Values) (*Response, error) {
	fields := FieldsFromValues(values).Upper()
	if len(fields) == 0 {
		return nil, NewTransportError(0, "empty feedback parameters", nil)
	}
	return &Response{Kind: kind, Fields: fields}, nil
}

// ParseRedirect reads the query string of the Location header of a 302.
func ParseRedirect(kind RequestKind, raw *RawResponse) (*Response, error) {
	if raw.StatusCode != http.StatusFound {
		return nil, NewTransportError(raw.StatusCode, "expected redirect", nil)
	}
	location := raw.Header.Get("Location")
	if location == "" {
		return nil, NewTransportError(raw.StatusCode, "redirect without location", nil)
	}
	target, err := url.Parse(location)
	if err != nil {
		return nil, NewTransportError(raw.StatusCode, "malformed redirect location", err)
	}
	return ParseQuery(kind, target.Query())
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "iso8859-1", "latin1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

func (r *Response) Get(key string) string {
	return r.Fields.Get(key)
}

func (r *Response) PayId() string {
	return r.Get(FieldPayId)
}

func (r *Response) Status() string {
	return r.Get(FieldStatus)
}

func (r *Response) ErrorCode() string {
	return r.Get(FieldError)
}

func (r *Response) ErrorMessage() string {
	return r.Get(FieldErrorPlus)
}

func (r *Response) OrderId() string {
	return r.Get(FieldOrderId)
}

func (r *Response) IsSigned() bool {
	return r.Get(FieldShaSign) != ""
}

// Amount parses the decimal AMOUNT echoed on feedback.
func (r *Response) Amount() (decimal.Decimal, error) {
	return decimal.NewFromString(r.Get(FieldAmount))
}

// Correlation reads the PARAMPLUS values, which the gateway echoes back as
// separate parameters.
func (r *Response) Correlation() Correlation {
	correlation := Correlation{
		OrderNumber: r.Get(ParamOrderId),
		PaymentId:   r.Get(ParamPaymentId),
	}
	if plus := r.Get(FieldParamPlus); plus != "" {
		if values, err := url.ParseQuery(plus); err == nil {
			if correlation.OrderNumber == "" {
				correlation.OrderNumber = values.Get(ParamOrderId)
			}
			if correlation.PaymentId == "" {
				correlation.PaymentId = values.Get(ParamPaymentId)
			}
		}
	}
	return correlation
}

// RequiresIdentification reports a DirectLink reply that hands the customer
// over to 3-D Secure.
func (r *Response) RequiresIdentification() bool {
	return r.htmlAnswer != "" && r.Status() == StatusWaitingIdentification
}

// ThreeDSecureHtml decodes HTML_ANSWER. It returns nil when the reply does
// not ask for identification.
func (r *Response) ThreeDSecureHtml() ([]byte, error) {
	if r.htmlAnswer == "" {
		return nil, nil
	}
	html, err := base64.StdEncoding.DecodeString(r.htmlAnswer)
	if err != nil {
		return nil, NewTransportError(0, "malformed html answer", err)
	}
	return html, nil
}

// Verify checks SHASIGN against the SHA-OUT signature.
func (r *Response) Verify(signer *Signer) error {
	if !r.IsSigned() {
		return &VerificationError{OrderId: r.OrderId(), PayId: r.PayId(), Message: "signature missing"}
	}
	if !signer.Verify(r.Fields, ShaOutFilter) {
		return &VerificationError{OrderId: r.OrderId(), PayId: r.PayId(), Message: "signature mismatch"}
	}
	return nil
}

// Successful reports a status inside the success set without an error code.
func (r *Response) Successful(success StatusSet) bool {
	code := r.ErrorCode()
	if code != "" && code != "0" {
		return false
	}
	return success.Contains(r.Status())
}

func (r *Response) Decline() *DeclineError {
	return &DeclineError{
		Status:    r.Status(),
		ErrorCode: r.ErrorCode(),
		Message:   r.ErrorMessage(),
	}
}
