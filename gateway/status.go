package gateway

// Transaction status codes returned in STATUS.
const (
	StatusIncomplete                 = "0"
	StatusCancelledByClient          = "1"
	StatusAuthorizationRefused       = "2"
	StatusOrderStored                = "4"
	StatusWaitingClientPayment       = "41"
	StatusWaitingIdentification      = "46"
	StatusAuthorized                 = "5"
	StatusAuthorizationWaiting       = "51"
	StatusAuthorizationNotKnown      = "52"
	StatusStandBy                    = "55"
	StatusAuthorizedAndCancelled     = "6"
	StatusAuthorizationDeletionWait  = "61"
	StatusAuthorizationDeletedPart   = "64"
	StatusPaymentDeleted             = "7"
	StatusPaymentDeletionPending     = "71"
	StatusPaymentDeletedFinal        = "74"
	StatusDeletionProcessedMerchant  = "75"
	StatusRefund                     = "8"
	StatusRefundPending              = "81"
	StatusRefundProcessedMerchant    = "85"
	StatusPaymentRequested           = "9"
	StatusPaymentProcessing          = "91"
	StatusPaymentUncertain           = "92"
	StatusPaymentRefused             = "93"
	StatusPaymentProcessedByMerchant = "95"
	StatusBeingProcessed             = "99"
)

// Alias creation uses its own STATUS values.
const (
	AliasStatusCreated   = "0"
	AliasStatusError     = "1"
	AliasStatusUpdated   = "2"
	AliasStatusCancelled = "3"
)

// StatusSet is a set of STATUS values treated as success for an operation.
type StatusSet map[string]struct{}

func NewStatusSet(statuses ...string) StatusSet {
	set := make(StatusSet, len(statuses))
	for _, status := range statuses {
		set[status] = struct{}{}
	}
	return set
}

func (s StatusSet) Contains(status string) bool {
	_, ok := s[status]
	return ok
}

var (
	authorizedStatuses = NewStatusSet(StatusAuthorized, StatusAuthorizationWaiting)
	capturedStatuses   = NewStatusSet(StatusPaymentRequested, StatusPaymentProcessing, StatusPaymentProcessedByMerchant)
	refundedStatuses   = NewStatusSet(StatusRefund, StatusRefundPending, StatusRefundProcessedMerchant)
	voidedStatuses     = NewStatusSet(
		StatusAuthorizedAndCancelled, StatusAuthorizationDeletionWait, StatusAuthorizationDeletedPart,
		StatusPaymentDeleted, StatusPaymentDeletionPending, StatusPaymentDeletedFinal, StatusDeletionProcessedMerchant,
	)

	// PaymentSuccess is the success set of direct payments and hosted page
	// feedback.
	PaymentSuccess = NewStatusSet(
		StatusAuthorized, StatusAuthorizationWaiting,
		StatusPaymentRequested, StatusPaymentProcessing, StatusPaymentProcessedByMerchant,
	)

	AliasSuccess = NewStatusSet(AliasStatusCreated, AliasStatusUpdated)

	pendingStatuses = NewStatusSet(
		StatusOrderStored, StatusWaitingClientPayment, StatusWaitingIdentification,
		StatusAuthorizationNotKnown, StatusStandBy, StatusPaymentUncertain, StatusBeingProcessed,
	)
)

// MaintenanceSuccess returns the success set for a maintenance operation.
func MaintenanceSuccess(operation MaintenanceOperation) StatusSet {
	switch {
	case operation.IsCapture():
		return capturedStatuses
	case operation.IsRefund():
		return refundedStatuses
	case operation == OperationAuthorizationRenew:
		return authorizedStatuses
	default:
		return voidedStatuses
	}
}

// IsAuthorized reports an authorization that has not been captured.
func IsAuthorized(status string) bool {
	return authorizedStatuses.Contains(status)
}

// IsPending reports a status that has no final outcome yet. Feedback with
// such a status neither confirms nor declines a payment.
func IsPending(status string) bool {
	return pendingStatuses.Contains(status)
}

// IsCaptured reports a status that means the funds were requested.
func IsCaptured(status string) bool {
	return capturedStatuses.Contains(status)
}
