package gateway

import "strings"

// MaskCardNumber keeps the last four digits and pads the rest with X.
func MaskCardNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("X", len(number)-4) + number[len(number)-4:]
}

// LastDigits returns at most the last four characters of a card number.
func LastDigits(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

// MaskFields returns a copy suitable for logging.
func MaskFields(fields Fields) Fields {
	masked := fields.Clone()
	for key, value := range masked {
		switch strings.ToUpper(key) {
		case FieldCardNo:
			masked[key] = MaskCardNumber(value)
		case FieldCvc, FieldPassword:
			masked[key] = "***"
		}
	}
	return masked
}
