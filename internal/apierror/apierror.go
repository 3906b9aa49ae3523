package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/blnkfinance/payroute/model"
	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrConflict        ErrorCode = "CONFLICT"
	ErrBadRequest      ErrorCode = "BAD_REQUEST"
	ErrInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrInvalidSchedule ErrorCode = "INVALID_SCHEDULE"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrUnprocessable   ErrorCode = "UNPROCESSABLE"
	ErrUnavailable     ErrorCode = "UNAVAILABLE"
	ErrInternalServer  ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// codeFor lists the route errors in the order they are matched.
var codeFor = []struct {
	err  error
	code ErrorCode
}{
	{model.ErrRouteNotFound, ErrNotFound},
	{model.ErrInvalidSchedule, ErrInvalidSchedule},
	{model.ErrInvalidParty, ErrInvalidInput},
	{model.ErrInvalidAmount, ErrInvalidInput},
	{model.ErrNotPayer, ErrForbidden},
	{model.ErrNotBeneficiary, ErrForbidden},
	{model.ErrNotDepositor, ErrForbidden},
	{model.ErrAlreadyDecided, ErrConflict},
	{model.ErrInsufficientBalance, ErrUnprocessable},
	{model.ErrExceedsDeposit, ErrUnprocessable},
	{model.ErrNothingClaimable, ErrUnprocessable},
	{model.ErrUnsupportedOperation, ErrBadRequest},
	{model.ErrFeePolicyUnavailable, ErrUnavailable},
}

// FromError converts err into an APIError. Errors that already are APIErrors
// pass through; route errors get their matching code; anything else is an
// internal server error.
func FromError(err error) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, c := range codeFor {
		if errors.Is(err, c.err) {
			return APIError{Code: c.code, Message: err.Error()}
		}
	}
	return APIError{Code: ErrInternalServer, Message: err.Error()}
}

// HasCode reports whether err wraps an APIError carrying code.
func HasCode(err error, code ErrorCode) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func MapErrorToHTTPStatus(err error) int {
	switch FromError(err).Code {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrInvalidInput, ErrInvalidSchedule, ErrBadRequest:
		return http.StatusBadRequest
	case ErrForbidden:
		return http.StatusForbidden
	case ErrUnprocessable:
		return http.StatusUnprocessableEntity
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
