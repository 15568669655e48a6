package render

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
)

// Seconds a client should wait before repeating a conflicting request
const conflictRetryAfter = "1"

type errorStatus struct {
	code    int
	message string
}

// Every wallet error kind gets its own status
var walletStatuses = map[apperrors.Kind]errorStatus{
	apperrors.KindValidation:          {http.StatusBadRequest, "Request is invalid"},
	apperrors.KindInsufficientFunds:   {http.StatusPaymentRequired, "Insufficient balance"},
	apperrors.KindInsufficientPoints:  {http.StatusPreconditionFailed, "Insufficient points"},
	apperrors.KindRewardUnavailable:   {http.StatusGone, "Reward is not available"},
	apperrors.KindAlreadyClaimed:      {http.StatusConflict, "Reward already claimed"},
	apperrors.KindNoEligibleCard:      {http.StatusUnprocessableEntity, "No loyalty card can pay for the reward"},
	apperrors.KindNotFound:            {http.StatusNotFound, "Not found"},
	apperrors.KindConcurrencyConflict: {http.StatusServiceUnavailable, "Account is busy, retry the request"},
	apperrors.KindStorageFailure:      {http.StatusInternalServerError, "Internal server error"},
}

// Status of the wallet error, 500 for anything unclassified
func WalletStatus(err error) int {
	if s, ok := walletStatuses[apperrors.KindOf(err)]; ok {
		return s.code
	}
	return http.StatusInternalServerError
}

// Render wallet error with its kind as error type
// Messages are fixed per kind so storage details never reach the client
func WalletError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	s, ok := walletStatuses[kind]
	if !ok {
		kind, s = apperrors.KindStorageFailure, walletStatuses[apperrors.KindStorageFailure]
	}

	response := ErrorResponse{
		Error:   string(kind),
		Message: s.message,
	}
	if kind == apperrors.KindValidation {
		response.Message = validationMessage(err)
	}
	if kind == apperrors.KindConcurrencyConflict {
		w.Header().Set("Retry-After", conflictRetryAfter)
	}

	jsonWithStatus(w, response, s.code)
}

var validationMessages = []struct {
	err     error
	message string
}{
	{apperrors.ErrAmountZero, "Amount must not be zero"},
	{apperrors.ErrAmountSign, "Amount must be positive"},
	{apperrors.ErrPointsNotPositive, "Points must be positive"},
	{apperrors.ErrPointsNegative, "Points must not be negative"},
	{apperrors.ErrBalanceOverflow, "Balance would exceed the allowed maximum"},
	{apperrors.ErrSelfTransfer, "Cannot transfer to the same account"},
	{apperrors.ErrCurrencyMismatch, "Currency does not match the account"},
	{apperrors.ErrInvalidPageCursor, "Invalid page cursor"},
	{apperrors.ErrAccountArchived, "Account is archived"},
}

func validationMessage(err error) string {
	for _, m := range validationMessages {
		if errors.Is(err, m.err) {
			return m.message
		}
	}
	return walletStatuses[apperrors.KindValidation].message
}
