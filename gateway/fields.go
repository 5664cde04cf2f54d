// Package gateway implements the Ingenico (Ogone) wire protocol: field sets,
// SHA signing, typed requests per operation kind, response parsing and
// endpoint resolution. It has no knowledge of storage or payment state.
package gateway

import (
	"net/url"
	"sort"
	"strings"
)

// Field names shared by several request and response kinds.
const (
	FieldPspId      = "PSPID"
	FieldUserId     = "USERID"
	FieldPassword   = "PSWD"
	FieldOrderId    = "ORDERID"
	FieldAmount     = "AMOUNT"
	FieldCurrency   = "CURRENCY"
	FieldOperation  = "OPERATION"
	FieldPayId      = "PAYID"
	FieldPayIdSub   = "PAYIDSUB"
	FieldStatus     = "STATUS"
	FieldError      = "NCERROR"
	FieldErrorPlus  = "NCERRORPLUS"
	FieldAlias      = "ALIAS"
	FieldBrand      = "BRAND"
	FieldCardNo     = "CARDNO"
	FieldCardHolder = "CN"
	FieldCvc        = "CVC"
	FieldExpiry     = "ED"
	FieldParamPlus  = "PARAMPLUS"
	FieldHtmlAnswer = "HTML_ANSWER"
	FieldShaSign    = "SHASIGN"
)

// Fields is a gateway field set. Keys are stored as given; lookups through
// Get are case-insensitive because the gateway echoes some keys in mixed case.
type Fields map[string]string

// Set stores a value; empty values are dropped so they never reach the wire.
func (f Fields) Set(key, value string) {
	if value == "" {
		delete(f, key)
		return
	}
	f[key] = value
}

func (f Fields) Get(key string) string {
	if value, ok := f[key]; ok {
		return value
	}
	for k, value := range f {
		if strings.EqualFold(k, key) {
			return value
		}
	}
	return ""
}

// Keys returns field names sorted case-insensitively.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToUpper(keys[i]) < strings.ToUpper(keys[j])
	})
	return keys
}

func (f Fields) Clone() Fields {
	clone := make(Fields, len(f))
	for key, value := range f {
		clone[key] = value
	}
	return clone
}

// Values converts the set to url.Values for form encoding.
func (f Fields) Values() url.Values {
	values := make(url.Values, len(f))
	for key, value := range f {
		values.Set(key, value)
	}
	return values
}

// Encode returns the application/x-www-form-urlencoded body.
func (f Fields) Encode() string {
	return f.Values().Encode()
}

// Upper returns a copy with every key converted to upper case.
func (f Fields) Upper() Fields {
	upper := make(Fields, len(f))
	for key, value := range f {
		upper[strings.ToUpper(key)] = value
	}
	return upper
}

// FieldsFromValues takes the first value of each query parameter.
func FieldsFromValues(values url.Values) Fields {
	fields := make(Fields, len(values))
	for key, list := range values {
		if len(list) > 0 {
			fields[key] = list[0]
		}
	}
	return fields
}
