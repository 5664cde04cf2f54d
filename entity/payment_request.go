package entity

import "github.com/shopspring/decimal"

// PaymentRequest starts a payment in either gateway mode.
type PaymentRequest struct {
	Order           Order           `json:"order"`
	Amount          decimal.Decimal `json:"amount" validate:"-"`
	Currency        string          `json:"currency" validate:"required,len=3,alpha"`
	PaymentMethodId string          `json:"payment_method_id,omitempty"`
	Capture         bool            `json:"capture"`
}

// PaymentMethodRequest carries card data for alias creation. It is never
// stored.
type PaymentMethodRequest struct {
	CardNumber  string  `json:"card_number"`
	CardHolder  string  `json:"card_holder"`
	CardCvc     string  `json:"card_cvc"`
	CardType    string  `json:"card_type,omitempty"`
	ExpiryMonth int     `json:"expiry_month"`
	ExpiryYear  int     `json:"expiry_year"`
	Email       string  `json:"email,omitempty"`
	Billing     Address `json:"billing"`
}

// AmountRequest is the body of capture and refund calls. A nil amount means
// the whole outstanding balance.
type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// ClientInfo is taken from the customer's browser request.
type ClientInfo struct {
	Ip        string `json:"ip"`
	Accept    string `json:"accept"`
	UserAgent string `json:"user_agent"`
}

// PaymentResult is the outcome of a DirectLink payment. ThreeDSecureHtml is
// set when the customer has to complete identification in the browser.
type PaymentResult struct {
	Payment          *Payment `json:"payment"`
	ThreeDSecureHtml string   `json:"three_d_secure_html,omitempty"`
}

// Redirect is the hosted payment page form the browser posts.
type Redirect struct {
	PaymentId string            `json:"payment_id"`
	Url       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
}
