package entity

import "strings"

type Address struct {
	GivenName   string `json:"given_name,omitempty" bson:"given_name,omitempty"`
	FamilyName  string `json:"family_name,omitempty" bson:"family_name,omitempty"`
	Line1       string `json:"address_line1,omitempty" bson:"address_line1,omitempty"`
	Line2       string `json:"address_line2,omitempty" bson:"address_line2,omitempty"`
	PostalCode  string `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
	Locality    string `json:"locality,omitempty" bson:"locality,omitempty"`
	CountryCode string `json:"country_code,omitempty" bson:"country_code,omitempty" validate:"omitempty,len=2,alpha"`
}

func (a Address) FullName() string {
	return strings.TrimSpace(a.GivenName + " " + a.FamilyName)
}

// Street joins both address lines.
func (a Address) Street() string {
	return strings.TrimSpace(a.Line1 + " " + a.Line2)
}

// Order is the snapshot of the commerce order a payment belongs to.
type Order struct {
	Number   string   `json:"number" bson:"number" validate:"required,max=29"`
	Email    string   `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	Language string   `json:"language,omitempty" bson:"language,omitempty"`
	Billing  Address  `json:"billing" bson:"billing"`
	Shipping *Address `json:"shipping,omitempty" bson:"shipping,omitempty"`
}

func (o Order) Clone() Order {
	clone := o
	if o.Shipping != nil {
		shipping := *o.Shipping
		clone.Shipping = &shipping
	}
	return clone
}
