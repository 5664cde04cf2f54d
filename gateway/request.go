package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Fixed values of the 3-D Secure and DirectLink payment fields.
const (
	Flag3D              = "Y"
	Win3DSMainWindow    = "MAINW"
	ComPlusSuccess      = "SUCCESS"
	EciECommerceWithSsl = "7"
)

// Keys carried inside PARAMPLUS and echoed back on return and notify.
const (
	ParamOrderId   = "ORDER_ID"
	ParamPaymentId = "PAYMENT_ID"
)

var validate = validator.New()

// Credentials are the merchant settings every request is built from.
type Credentials struct {
	PspId     string        `validate:"required"`
	UserId    string        `validate:"omitempty"`
	Password  string        `validate:"omitempty"`
	ShaIn     string        `validate:"required"`
	ShaOut    string        `validate:"required"`
	Algorithm HashAlgorithm `validate:"required,oneof=SHA-1 SHA-256 SHA-512"`
}

// Request is a typed field set for one operation kind.
type Request interface {
	Kind() RequestKind
	check() error
	fields(credentials Credentials) Fields
}

// SignedRequest is a field set that already carries SHASIGN.
type SignedRequest struct {
	Kind   RequestKind
	Fields Fields
}

func (r *SignedRequest) Encode() string {
	return r.Fields.Encode()
}

// Masked renders the body with card data and password hidden, for logs.
func (r *SignedRequest) Masked() string {
	return MaskFields(r.Fields).Encode()
}

// Builder validates typed requests and signs them with SHA-IN.
type Builder struct {
	credentials Credentials
	signer      *Signer
}

func NewBuilder(credentials Credentials) (*Builder, error) {
	if err := validate.Struct(credentials); err != nil {
		return nil, validationError(err)
	}
	return &Builder{
		credentials: credentials,
		signer:      NewSigner(credentials.ShaIn, credentials.Algorithm),
	}, nil
}

// Build validates the request and returns its signed field set. Nothing is
// sent; every error returned here is a *ConfigError.
func (b *Builder) Build(request Request) (*SignedRequest, error) {
	if err := validate.Struct(request); err != nil {
		return nil, validationError(err)
	}
	if err := request.check(); err != nil {
		return nil, err
	}
	kind := request.Kind()
	if requiresApiUser(kind) {
		if b.credentials.UserId == "" {
			return nil, NewConfigError("USERID", "api user is required for "+string(kind)+" requests")
		}
		if b.credentials.Password == "" {
			return nil, NewConfigError("PSWD", "api password is required for "+string(kind)+" requests")
		}
	}

	fields := request.fields(b.credentials)
	var filter FieldFilter
	if kind == KindAlias {
		filter = AliasShaInFilter
	}
	fields[FieldShaSign] = b.signer.Sign(fields, filter)
	return &SignedRequest{Kind: kind, Fields: fields}, nil
}

func requiresApiUser(kind RequestKind) bool {
	return kind == KindPayment || kind == KindMaintenance || kind == KindQuery
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return NewConfigError(errs[0].Namespace(), fmt.Sprintf("failed %q validation", errs[0].Tag()))
	}
	return NewConfigError("", err.Error())
}

func checkAmount(amount decimal.Decimal) error {
	if MinorUnits(amount) <= 0 {
		return NewConfigError(FieldAmount, fmt.Sprintf("amount %s must be positive", amount))
	}
	return nil
}

func apiUser(fields Fields, credentials Credentials) {
	fields.Set(FieldPspId, credentials.PspId)
	fields.Set(FieldUserId, credentials.UserId)
	fields.Set(FieldPassword, credentials.Password)
}

// Card holds raw card data. It is sent to the gateway but never stored.
type Card struct {
	Number      string `validate:"required,numeric,min=12,max=19"`
	Holder      string `validate:"required"`
	Cvc         string `validate:"required,numeric,min=3,max=4"`
	ExpiryMonth int    `validate:"required,min=1,max=12"`
	ExpiryYear  int    `validate:"required,min=2000,max=2099"`
	Brand       string
}

// Expiry formats the ED field as MMYY.
func (c Card) Expiry() string {
	return fmt.Sprintf("%02d%02d", c.ExpiryMonth, c.ExpiryYear%100)
}

func (c Card) apply(fields Fields) {
	fields.Set(FieldCardNo, c.Number)
	fields.Set(FieldCardHolder, c.Holder)
	fields.Set(FieldCvc, c.Cvc)
	fields.Set(FieldExpiry, c.Expiry())
	fields.Set(FieldBrand, c.Brand)
}

// Customer is the card owner block of a payment.
type Customer struct {
	Name    string
	Email   string `validate:"omitempty,email"`
	Address string
	Zip     string
	Town    string
	Country string `validate:"omitempty,len=2,alpha"`
	Phone   string
}

func (c Customer) apply(fields Fields) {
	fields.Set("CN", c.Name)
	fields.Set("EMAIL", c.Email)
	fields.Set("OWNERADDRESS", c.Address)
	fields.Set("OWNERZIP", c.Zip)
	fields.Set("OWNERTOWN", c.Town)
	fields.Set("OWNERCTY", c.Country)
	fields.Set("OWNERTELNO", c.Phone)
}

// Correlation ties gateway feedback to local records through PARAMPLUS.
type Correlation struct {
	OrderNumber string
	PaymentId   string
}

func (c Correlation) Encode() string {
	values := url.Values{}
	if c.OrderNumber != "" {
		values.Set(ParamOrderId, c.OrderNumber)
	}
	if c.PaymentId != "" {
		values.Set(ParamPaymentId, c.PaymentId)
	}
	return values.Encode()
}

// ThreeDSecure enables the 3-D Secure identification of a DirectLink
// payment. Browser headers come from the customer's request.
type ThreeDSecure struct {
	HttpAccept    string
	HttpUserAgent string `validate:"required"`
	AcceptUrl     string `validate:"required,url"`
	DeclineUrl    string `validate:"required,url"`
	ExceptionUrl  string `validate:"required,url"`
	Language      string
}

func (t ThreeDSecure) apply(fields Fields) {
	fields.Set("FLAG3D", Flag3D)
	fields.Set("HTTP_ACCEPT", t.HttpAccept)
	fields.Set("HTTP_USER_AGENT", t.HttpUserAgent)
	fields.Set("WIN3DS", Win3DSMainWindow)
	fields.Set("ACCEPTURL", t.AcceptUrl)
	fields.Set("DECLINEURL", t.DeclineUrl)
	fields.Set("EXCEPTIONURL", t.ExceptionUrl)
	fields.Set("COMPLUS", ComPlusSuccess)
	fields.Set("LANGUAGE", t.Language)
}

// AliasRequest stores a card at the gateway and returns an alias.
type AliasRequest struct {
	OrderId           string `validate:"omitempty,max=40"`
	Alias             string `validate:"omitempty,max=50"`
	PersistedAfterUse bool
	AcceptUrl         string `validate:"required,url"`
	ExceptionUrl      string `validate:"required,url"`
	Card              Card
}

func (r *AliasRequest) Kind() RequestKind {
	return KindAlias
}

func (r *AliasRequest) check() error {
	return nil
}

func (r *AliasRequest) fields(credentials Credentials) Fields {
	fields := Fields{}
	fields.Set(FieldPspId, credentials.PspId)
	fields.Set(FieldOrderId, r.OrderId)
	fields.Set(FieldAlias, r.Alias)
	persisted := "N"
	if r.PersistedAfterUse {
		persisted = "Y"
	}
	fields.Set("ALIASPERSISTEDAFTERUSE", persisted)
	fields.Set("ACCEPTURL", r.AcceptUrl)
	fields.Set("EXCEPTIONURL", r.ExceptionUrl)
	r.Card.apply(fields)
	return fields
}

// PaymentRequest is a DirectLink payment with a stored alias or raw card.
type PaymentRequest struct {
	OrderId      string           `validate:"required,max=40"`
	Amount       decimal.Decimal  `validate:"-"`
	Currency     string           `validate:"required,len=3,alpha"`
	Operation    PaymentOperation `validate:"required,oneof=RES SAL"`
	Alias        string
	Card         *Card
	Customer     Customer
	ThreeDSecure *ThreeDSecure
	Correlation  Correlation
	RemoteAddr   string `validate:"omitempty,ip"`
}

func (r *PaymentRequest) Kind() RequestKind {
	return KindPayment
}

func (r *PaymentRequest) check() error {
	if err := checkAmount(r.Amount); err != nil {
		return err
	}
	if r.Alias == "" && r.Card == nil {
		return NewConfigError(FieldAlias, "either alias or card is required")
	}
	return nil
}

func (r *PaymentRequest) fields(credentials Credentials) Fields {
	fields := Fields{}
	apiUser(fields, credentials)
	fields.Set(FieldOrderId, r.OrderId)
	fields.Set(FieldAmount, strconv.FormatInt(MinorUnits(r.Amount), 10))
	fields.Set(FieldCurrency, r.Currency)
	fields.Set(FieldOperation, string(r.Operation))
	r.Customer.apply(fields)
	if r.Card != nil {
		r.Card.apply(fields)
	}
	fields.Set(FieldAlias, r.Alias)
	fields.Set("ECI", EciECommerceWithSsl)
	fields.Set("REMOTE_ADDR", r.RemoteAddr)
	fields.Set(FieldParamPlus, r.Correlation.Encode())
	if r.ThreeDSecure != nil {
		r.ThreeDSecure.apply(fields)
	}
	return fields
}

// MaintenanceRequest captures, refunds, voids or renews an existing PAYID.
type MaintenanceRequest struct {
	PayId     string               `validate:"required"`
	Operation MaintenanceOperation `validate:"required,oneof=SAL SAS RFD RFS DEL DES REN"`
	Amount    decimal.Decimal      `validate:"-"`
}

func (r *MaintenanceRequest) Kind() RequestKind {
	return KindMaintenance
}

func (r *MaintenanceRequest) check() error {
	if r.Operation.HasAmount() {
		return checkAmount(r.Amount)
	}
	return nil
}

func (r *MaintenanceRequest) fields(credentials Credentials) Fields {
	fields := Fields{}
	apiUser(fields, credentials)
	fields.Set(FieldPayId, r.PayId)
	fields.Set(FieldOperation, string(r.Operation))
	if r.Operation.HasAmount() {
		fields.Set(FieldAmount, strconv.FormatInt(MinorUnits(r.Amount), 10))
	}
	return fields
}

// QueryRequest asks the gateway for the current status of a PAYID.
type QueryRequest struct {
	PayId    string `validate:"required"`
	PayIdSub string `validate:"omitempty,numeric"`
}

func (r *QueryRequest) Kind() RequestKind {
	return KindQuery
}

func (r *QueryRequest) check() error {
	return nil
}

func (r *QueryRequest) fields(credentials Credentials) Fields {
	fields := Fields{}
	apiUser(fields, credentials)
	fields.Set(FieldPayId, r.PayId)
	fields.Set(FieldPayIdSub, r.PayIdSub)
	return fields
}

// Address is a postal address in the ECOM_* layout.
type Address struct {
	GivenName   string
	FamilyName  string
	Line1       string
	Line2       string
	PostalCode  string
	City        string
	CountryCode string `validate:"omitempty,len=2,alpha"`
}

func (a Address) apply(fields Fields, prefix string) {
	fields.Set(prefix+"_POSTAL_NAME_FIRST", a.GivenName)
	fields.Set(prefix+"_POSTAL_NAME_LAST", a.FamilyName)
	fields.Set(prefix+"_POSTAL_STREET_LINE1", a.Line1)
	fields.Set(prefix+"_POSTAL_STREET_LINE2", a.Line2)
	fields.Set(prefix+"_POSTAL_POSTALCODE", a.PostalCode)
	fields.Set(prefix+"_POSTAL_CITY", a.City)
	fields.Set(prefix+"_POSTAL_COUNTRYCODE", a.CountryCode)
}

// ECommerceRequest is the form posted by the browser to the hosted page.
type ECommerceRequest struct {
	OrderId       string           `validate:"required,max=40"`
	Amount        decimal.Decimal  `validate:"-"`
	Currency      string           `validate:"required,len=3,alpha"`
	Language      string           `validate:"omitempty,len=5"`
	Operation     PaymentOperation `validate:"omitempty,oneof=RES SAL"`
	Customer      Customer
	Billing       Address
	Shipping      *Address
	ShippingEmail string `validate:"omitempty,email"`
	AcceptUrl     string `validate:"omitempty,url"`
	DeclineUrl    string `validate:"omitempty,url"`
	ExceptionUrl  string `validate:"omitempty,url"`
	CancelUrl     string `validate:"omitempty,url"`
	BackUrl       string `validate:"omitempty,url"`
	ParamVar      string `validate:"omitempty,alphanum,max=50"`
	Correlation   Correlation
	Device        string `validate:"omitempty,oneof=computer tablet mobile"`
}

func (r *ECommerceRequest) Kind() RequestKind {
	return KindECommerce
}

func (r *ECommerceRequest) check() error {
	return checkAmount(r.Amount)
}

func (r *ECommerceRequest) fields(credentials Credentials) Fields {
	fields := Fields{}
	fields.Set(FieldPspId, credentials.PspId)
	fields.Set(FieldOrderId, r.OrderId)
	fields.Set(FieldAmount, strconv.FormatInt(MinorUnits(r.Amount), 10))
	fields.Set(FieldCurrency, r.Currency)
	fields.Set("LANGUAGE", r.Language)
	fields.Set(FieldOperation, string(r.Operation))
	r.Customer.apply(fields)
	r.Billing.apply(fields, "ECOM_BILLTO")
	if r.Shipping != nil {
		r.Shipping.apply(fields, "ECOM_SHIPTO")
		fields.Set("ECOM_SHIPTO_ONLINE_EMAIL", r.ShippingEmail)
	}
	fields.Set("ACCEPTURL", r.AcceptUrl)
	fields.Set("DECLINEURL", r.DeclineUrl)
	fields.Set("EXCEPTIONURL", r.ExceptionUrl)
	fields.Set("CANCELURL", r.CancelUrl)
	fields.Set("BACKURL", r.BackUrl)
	fields.Set("PARAMVAR", r.ParamVar)
	fields.Set(FieldParamPlus, r.Correlation.Encode())
	fields.Set("DEVICE", r.Device)
	return fields
}
