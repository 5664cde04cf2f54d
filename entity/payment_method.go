package entity

import (
	"fmt"
	"strconv"
	"time"
)

// PaymentMethod is a stored card represented at the gateway by an alias.
// Only the last digits of the card number are kept.
type PaymentMethod struct {
	Id          string     `json:"method_id" bson:"method_id"`
	RemoteId    string     `json:"remote_id" bson:"remote_id"`
	CardType    string     `json:"card_type" bson:"card_type"`
	CardNumber  string     `json:"card_number" bson:"card_number"`
	CardHolder  string     `json:"card_holder" bson:"card_holder"`
	ExpiryMonth int        `json:"expiry_month" bson:"expiry_month"`
	ExpiryYear  int        `json:"expiry_year" bson:"expiry_year"`
	ExpiresTime *time.Time `json:"expires_time,omitempty" bson:"expires_time,omitempty"`
	Email       string     `json:"email,omitempty" bson:"email,omitempty"`
	Billing     Address    `json:"billing" bson:"billing"`
	Test        bool       `json:"test" bson:"test"`
	CreatedTime time.Time  `json:"created_time" bson:"created_time"`
}

// SetExpiry stores the card expiry and the moment the method stops being
// usable, the last second of the expiry month.
func (pm *PaymentMethod) SetExpiry(month, year int) {
	pm.ExpiryMonth = month
	pm.ExpiryYear = year
	expires := CardExpiryTime(month, year)
	pm.ExpiresTime = &expires
}

func (pm *PaymentMethod) IsExpired(now time.Time) bool {
	return pm.ExpiresTime != nil && now.After(*pm.ExpiresTime)
}

func CardExpiryTime(month, year int) time.Time {
	return time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Second)
}

// ParseExpiry reads an MMYY expiry as echoed by the gateway.
func ParseExpiry(value string) (int, int, error) {
	if len(value) != 4 {
		return 0, 0, fmt.Errorf("expiry %q: want MMYY", value)
	}
	month, err := strconv.Atoi(value[:2])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("expiry %q: invalid month", value)
	}
	year, err := strconv.Atoi(value[2:])
	if err != nil {
		return 0, 0, fmt.Errorf("expiry %q: invalid year", value)
	}
	return month, 2000 + year, nil
}
