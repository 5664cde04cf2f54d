package gateway

import (
	"github.com/shopspring/decimal"
)

// PaymentOperation is the OPERATION value of a new payment.
type PaymentOperation string

const (
	OperationAuthorization PaymentOperation = "RES"
	OperationSale          PaymentOperation = "SAL"
)

// MaintenanceOperation is the OPERATION value of a maintenance request.
type MaintenanceOperation string

const (
	OperationCapturePartial              MaintenanceOperation = "SAL"
	OperationCaptureLastOrFull           MaintenanceOperation = "SAS"
	OperationRefundPartial               MaintenanceOperation = "RFD"
	OperationRefundLastOrFull            MaintenanceOperation = "RFS"
	OperationAuthorizationDelete         MaintenanceOperation = "DEL"
	OperationAuthorizationDeleteAndClose MaintenanceOperation = "DES"
	OperationAuthorizationRenew          MaintenanceOperation = "REN"
)

// HasAmount reports whether the operation moves money and needs AMOUNT.
func (o MaintenanceOperation) HasAmount() bool {
	switch o {
	case OperationCapturePartial, OperationCaptureLastOrFull, OperationRefundPartial, OperationRefundLastOrFull:
		return true
	}
	return false
}

func (o MaintenanceOperation) IsCapture() bool {
	return o == OperationCapturePartial || o == OperationCaptureLastOrFull
}

func (o MaintenanceOperation) IsRefund() bool {
	return o == OperationRefundPartial || o == OperationRefundLastOrFull
}

// CaptureOperation picks the last/full capture code when the amount clears
// the uncaptured balance exactly, partial otherwise.
func CaptureOperation(uncaptured, amount decimal.Decimal) MaintenanceOperation {
	if uncaptured.Sub(amount).IsZero() {
		return OperationCaptureLastOrFull
	}
	return OperationCapturePartial
}

// RefundOperation applies the same rule against the unrefunded balance.
func RefundOperation(unrefunded, amount decimal.Decimal) MaintenanceOperation {
	if unrefunded.Sub(amount).IsZero() {
		return OperationRefundLastOrFull
	}
	return OperationRefundPartial
}

// MinorUnits converts a decimal amount to the integer AMOUNT field. The
// fractional part beyond cents is truncated, not rounded.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).IntPart()
}

// TruncateAmount drops the fraction beyond cents, leaving exactly the value
// the AMOUNT field carries.
func TruncateAmount(amount decimal.Decimal) decimal.Decimal {
	return FromMinorUnits(MinorUnits(amount))
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(units int64) decimal.Decimal {
	return decimal.New(units, -2)
}
