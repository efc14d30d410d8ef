package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/referralhub/internal/authorization"
	bankingdomain "github.com/smallbiznis/referralhub/internal/banking/domain"
	eligibilitydomain "github.com/smallbiznis/referralhub/internal/eligibility/domain"
	notificationdomain "github.com/smallbiznis/referralhub/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/referralhub/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/referralhub/internal/payout/domain"
	"github.com/smallbiznis/referralhub/internal/providers/blob"
	"github.com/smallbiznis/referralhub/internal/ratelimit"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string
	Message string
}

type ValidationErrors struct {
	Errors []ValidationError
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorResponse struct {
	Success bool     `json:"success"`
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func invalidRequestError() error {
	return newValidationError("request", "invalid request")
}

func newValidationError(field, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Message: message}},
	}
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		fields := make([]string, 0, len(vErr.Errors))
		for _, e := range vErr.Errors {
			fields = append(fields, e.Field+": "+e.Message)
		}
		return http.StatusBadRequest, errorResponse{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fields,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorResponse{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []string{validationErrorField(code) + ": " + validationErrorMessage(code)},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor),
		isUnauthenticatedError(err):
		return http.StatusUnauthorized, errorResponse{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorResponse{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorResponse{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorResponse{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case errors.Is(err, ErrTooManyRequests),
		errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isUpstreamError(err):
		return http.StatusBadGateway, errorResponse{
			Type:    "upstream_error",
			Message: "upstream service unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorResponse{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the response type and the sentinel code so
// request logs can be grouped without logging error text.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if asValidationErrors(err) != nil {
		return payload.Type, "invalid_request"
	}
	if payload.Type == "internal_error" {
		return payload.Type, "internal_error"
	}
	code := err.Error()
	if i := strings.Index(code, ":"); i > 0 {
		code = code[:i]
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, referraldomain.ErrInvalidStatus),
		errors.Is(err, referraldomain.ErrUseFinalize),
		errors.Is(err, referraldomain.ErrInvalidCode),
		errors.Is(err, referraldomain.ErrInvalidCompanyName),
		errors.Is(err, referraldomain.ErrInvalidEmail),
		errors.Is(err, referraldomain.ErrInvalidDealValue),
		errors.Is(err, referraldomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrMissingLink),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, paymentdomain.ErrReferralMismatch),
		errors.Is(err, paymentdomain.ErrEmptyPatch),
		errors.Is(err, payoutdomain.ErrInvalidID),
		errors.Is(err, payoutdomain.ErrInvalidAmount),
		errors.Is(err, payoutdomain.ErrAmountExceedsEarned),
		errors.Is(err, payoutdomain.ErrInvalidStatus),
		errors.Is(err, payoutdomain.ErrReferenceRequired),
		errors.Is(err, payoutdomain.ErrInvalidAmountPaid),
		errors.Is(err, payoutdomain.ErrInvalidPageToken),
		errors.Is(err, bankingdomain.ErrInvalidBankCode),
		errors.Is(err, bankingdomain.ErrInvalidAccountNumber),
		errors.Is(err, bankingdomain.ErrAccountNotResolved),
		errors.Is(err, notificationdomain.ErrInvalidRequest),
		errors.Is(err, blob.ErrEmptyObject):
		return true
	default:
		return false
	}
}

func isUnauthenticatedError(err error) bool {
	switch {
	case errors.Is(err, referraldomain.ErrUnauthenticated),
		errors.Is(err, payoutdomain.ErrUnauthenticated),
		errors.Is(err, eligibilitydomain.ErrUnauthenticated),
		errors.Is(err, bankingdomain.ErrUnauthenticated),
		errors.Is(err, notificationdomain.ErrUnauthenticated):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, referraldomain.ErrNotFound),
		errors.Is(err, referraldomain.ErrLeadNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, bankingdomain.ErrNotFound),
		errors.Is(err, notificationdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, referraldomain.ErrTerminal),
		errors.Is(err, referraldomain.ErrSameStatus),
		errors.Is(err, referraldomain.ErrLeadExists),
		errors.Is(err, referraldomain.ErrConcurrentUpdate),
		errors.Is(err, referraldomain.ErrCodeExhausted),
		errors.Is(err, paymentdomain.ErrAlreadyConfirmed),
		errors.Is(err, payoutdomain.ErrNotEligible),
		errors.Is(err, payoutdomain.ErrPayoutExists),
		errors.Is(err, payoutdomain.ErrInvalidTransition),
		errors.Is(err, payoutdomain.ErrNotCancellable),
		errors.Is(err, payoutdomain.ErrNotPaid),
		errors.Is(err, payoutdomain.ErrConcurrentUpdate),
		errors.Is(err, ratelimit.ErrLocked):
		return true
	default:
		return false
	}
}

func isUpstreamError(err error) bool {
	switch {
	case errors.Is(err, payoutdomain.ErrProofUpload),
		errors.Is(err, bankingdomain.ErrLookupUnavailable):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, payoutdomain.ErrNotEligible):
		return "referral is not eligible for payout yet"
	case errors.Is(err, payoutdomain.ErrPayoutExists):
		return "payout already requested"
	case errors.Is(err, payoutdomain.ErrInvalidTransition):
		return "payout cannot move to the requested status"
	case errors.Is(err, payoutdomain.ErrNotCancellable):
		return "only pending payouts can be cancelled"
	case errors.Is(err, payoutdomain.ErrNotPaid):
		return "payout has not been paid"
	case errors.Is(err, referraldomain.ErrTerminal):
		return "referral is closed"
	case errors.Is(err, referraldomain.ErrSameStatus):
		return "referral already has this status"
	case errors.Is(err, referraldomain.ErrLeadExists):
		return "referral already has a lead"
	case errors.Is(err, paymentdomain.ErrAlreadyConfirmed):
		return "payment already confirmed"
	case errors.Is(err, referraldomain.ErrConcurrentUpdate),
		errors.Is(err, payoutdomain.ErrConcurrentUpdate),
		errors.Is(err, ratelimit.ErrLocked):
		return "resource was modified concurrently, retry"
	default:
		return "conflict"
	}
}

func validationErrorField(code string) string {
	switch code {
	case referraldomain.ErrUseFinalize.Error():
		return "status"
	case payoutdomain.ErrReferenceRequired.Error():
		return "payment_reference"
	case payoutdomain.ErrAmountExceedsEarned.Error():
		return "amount"
	case paymentdomain.ErrMissingLink.Error():
		return "referral_id"
	case paymentdomain.ErrReferralMismatch.Error():
		return "lead_id"
	case bankingdomain.ErrAccountNotResolved.Error():
		return "account_number"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return "request"
}

func validationErrorMessage(code string) string {
	switch code {
	case referraldomain.ErrUseFinalize.Error():
		return "use the finalize action to mark a deal fully paid"
	case payoutdomain.ErrReferenceRequired.Error():
		return "payment reference is required when marking a payout paid"
	case payoutdomain.ErrAmountExceedsEarned.Error():
		return "amount exceeds the commission earned on this referral"
	case payoutdomain.ErrInvalidAmountPaid.Error():
		return "amount paid must be positive and not exceed the payout amount"
	case paymentdomain.ErrMissingLink.Error():
		return "a referral or lead is required"
	case paymentdomain.ErrReferralMismatch.Error():
		return "lead belongs to a different referral"
	case paymentdomain.ErrEmptyPatch.Error():
		return "no updatable fields supplied"
	case bankingdomain.ErrAccountNotResolved.Error():
		return "bank account could not be verified"
	case ErrInvalidRequest.Error():
		return "invalid request"
	default:
		return "invalid value"
	}
}
