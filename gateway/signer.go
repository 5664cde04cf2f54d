package gateway

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"gitee.com/golang-module/dongle"
)

type HashAlgorithm string

const (
	Sha1   HashAlgorithm = "SHA-1"
	Sha256 HashAlgorithm = "SHA-256"
	Sha512 HashAlgorithm = "SHA-512"
)

// ParseHashAlgorithm accepts the configured algorithm name, with or without
// the dash.
func ParseHashAlgorithm(value string) (HashAlgorithm, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), "-", "")) {
	case "SHA1":
		return Sha1, nil
	case "SHA256":
		return Sha256, nil
	case "SHA512":
		return Sha512, nil
	}
	return "", NewConfigError("sha_algorithm", fmt.Sprintf("unsupported hash algorithm %q", value))
}

// Digest returns the uppercase hex digest of data.
func (a HashAlgorithm) Digest(data string) string {
	source := dongle.Encrypt.FromString(data)
	var digest string
	switch a {
	case Sha1:
		digest = source.BySha1().ToHexString()
	case Sha512:
		digest = source.BySha512().ToHexString()
	default:
		digest = source.BySha256().ToHexString()
	}
	return strings.ToUpper(digest)
}

// FieldFilter decides whether an upper-cased field name takes part in the
// signature. A nil filter admits every field.
type FieldFilter func(key string) bool

func allowOnly(keys ...string) FieldFilter {
	allowed := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		allowed[key] = struct{}{}
	}
	return func(key string) bool {
		_, ok := allowed[key]
		return ok
	}
}

// AliasShaInFilter lists the alias creation fields covered by SHA-IN. Card
// data is sent alongside but never signed.
var AliasShaInFilter = allowOnly(
	"ACCEPTURL", "ALIAS", "ALIASPERSISTEDAFTERUSE", "BRAND",
	"EXCEPTIONURL", "ORDERID", "PARAMPLUS", "PSPID",
)

// ShaOutFilter lists the response fields covered by SHA-OUT. Pass-through
// values such as the PARAMPLUS content are echoed back unsigned.
var ShaOutFilter = allowOnly(
	"AAVADDRESS", "AAVCHECK", "AAVMAIL", "AAVNAME", "AAVPHONE", "AAVZIP",
	"ACCEPTANCE", "ALIAS", "AMOUNT", "BIC", "BIN", "BRAND", "CARDNO", "CCCTY",
	"CN", "COLLECTOR_BIC", "COLLECTOR_IBAN", "COMPLUS", "CREATION_STATUS",
	"CREDITDEBIT", "CURRENCY", "CVC", "CVCCHECK", "DCC_COMMPERCENTAGE",
	"DCC_CONVAMOUNT", "DCC_CONVCCY", "DCC_EXCHRATE", "DCC_EXCHRATESOURCE",
	"DCC_EXCHRATETS", "DCC_INDICATOR", "DCC_MARGINPERCENTAGE",
	"DCC_VALIDHOURS", "DEVICEID", "DIGESTCARDNO", "ECI", "ED", "EMAIL",
	"ENCCARDNO", "FXAMOUNT", "FXCURRENCY", "IP", "IPCTY", "MANDATEID",
	"MOBILEMODE", "NBREMAILUSAGE", "NBRIPUSAGE", "NBRIPUSAGE_ALLTX",
	"NBRUSAGE", "NCERROR", "NCERRORCARDNO", "NCERRORCN", "NCERRORCVC",
	"NCERRORED", "ORDERID", "PAYID", "PAYIDSUB", "PAYMENT_REFERENCE", "PM",
	"SCO_CATEGORY", "SCORING", "SEQUENCETYPE", "SIGNDATE", "STATUS",
	"STORAGEPERMISSION", "SUBBRAND", "SUBSCRIPTION_ID", "TRXDATE", "VC",
)

// Signer computes SHASIGN values with a single passphrase.
type Signer struct {
	passphrase string
	algorithm  HashAlgorithm
}

func NewSigner(passphrase string, algorithm HashAlgorithm) *Signer {
	return &Signer{
		passphrase: passphrase,
		algorithm:  algorithm,
	}
}

// Compose builds the string that is hashed: KEY=VALUE followed by the
// passphrase for every non-empty field, keys sorted case-insensitively.
// SHASIGN itself is never part of the input.
func (s *Signer) Compose(fields Fields, filter FieldFilter) string {
	var builder strings.Builder
	for _, key := range fields.Keys() {
		name := strings.ToUpper(key)
		value := fields[key]
		if value == "" || name == FieldShaSign {
			continue
		}
		if filter != nil && !filter(name) {
			continue
		}
		builder.WriteString(name)
		builder.WriteString("=")
		builder.WriteString(value)
		builder.WriteString(s.passphrase)
	}
	return builder.String()
}

func (s *Signer) Sign(fields Fields, filter FieldFilter) string {
	return s.algorithm.Digest(s.Compose(fields, filter))
}

// Verify compares the received SHASIGN with the expected one. A missing
// signature never verifies.
func (s *Signer) Verify(fields Fields, filter FieldFilter) bool {
	received := strings.ToUpper(fields.Get(FieldShaSign))
	if received == "" {
		return false
	}
	expected := s.Sign(fields, filter)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
