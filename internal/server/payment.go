package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/referralhub/internal/payment/domain"
)

type recordPaymentRequest struct {
	ReferralID           string          `json:"referral_id"`
	LeadID               string          `json:"lead_id"`
	Amount               decimal.Decimal `json:"amount"`
	PaymentDate          string          `json:"payment_date"`
	PaymentMethod        string          `json:"payment_method"`
	TransactionReference string          `json:"transaction_reference"`
	Notes                string          `json:"notes"`
	Status               string          `json:"status"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	referralID, err := parseOptionalSnowflakeID(req.ReferralID)
	if err != nil {
		AbortWithError(c, newValidationError("referral_id", "invalid id"))
		return
	}
	leadID, err := parseOptionalSnowflakeID(req.LeadID)
	if err != nil {
		AbortWithError(c, newValidationError("lead_id", "invalid id"))
		return
	}
	paymentDate, err := parseOptionalTime(req.PaymentDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid date"))
		return
	}

	resp, err := s.paymentSvc.Record(c.Request.Context(), paymentdomain.RecordPaymentRequest{
		ReferralID:           referralID,
		LeadID:               leadID,
		Amount:               req.Amount,
		PaymentDate:          paymentDate,
		PaymentMethod:        strings.TrimSpace(req.PaymentMethod),
		TransactionReference: strings.TrimSpace(req.TransactionReference),
		Notes:                strings.TrimSpace(req.Notes),
		Status:               strings.TrimSpace(req.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

// updatePaymentRequest lists the only fields a recorded payment may change.
type updatePaymentRequest struct {
	PaymentDate          *string `json:"payment_date"`
	PaymentMethod        *string `json:"payment_method"`
	TransactionReference *string `json:"transaction_reference"`
	Notes                *string `json:"notes"`
}

func (s *Server) UpdatePayment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updatePaymentRequest
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		AbortWithError(c, newValidationError("request", "only payment_date, payment_method, transaction_reference and notes can be changed"))
		return
	}

	patch := paymentdomain.Patch{
		PaymentMethod:        trimmedPtr(req.PaymentMethod),
		TransactionReference: trimmedPtr(req.TransactionReference),
		Notes:                trimmedPtr(req.Notes),
	}
	if req.PaymentDate != nil {
		paymentDate, err := parseOptionalTime(*req.PaymentDate, false)
		if err != nil || paymentDate == nil {
			AbortWithError(c, newValidationError("payment_date", "invalid date"))
			return
		}
		patch.PaymentDate = paymentDate
	}

	resp, err := s.paymentSvc.Update(c.Request.Context(), id, patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.Confirm(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	return &trimmed
}
