package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	payoutdomain "github.com/smallbiznis/referralhub/internal/payout/domain"
	"github.com/smallbiznis/referralhub/pkg/db/pagination"
)

const maxProofSize = 10 << 20

type requestPayoutRequest struct {
	ReferralID string              `json:"referral_id"`
	Amount     decimal.NullDecimal `json:"amount"`
}

func (s *Server) RequestPayout(c *gin.Context) {
	var req requestPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	referralID, err := parseOptionalSnowflakeID(req.ReferralID)
	if err != nil || referralID == nil {
		AbortWithError(c, newValidationError("referral_id", "invalid id"))
		return
	}

	resp, err := s.payoutSvc.Request(c.Request.Context(), payoutdomain.RequestPayoutRequest{
		ReferralID: *referralID,
		Amount:     req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListEligibleReferrals(c *gin.Context) {
	resp, err := s.eligibilitySvc.ListEligible(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"referrals":            resp.Referrals,
		"available_for_payout": resp.AvailableForPayout,
	})
}

func (s *Server) ListPartnerPayouts(c *gin.Context) {
	resp, err := s.payoutSvc.ListForPartner(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) ListPayoutsByStatus(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.ListByStatus(c.Request.Context(), payoutdomain.ListPayoutsRequest{
		Pagination: query.Pagination,
		Status:     strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) GetPayout(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.payoutSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) CancelPayout(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.payoutSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

type processPayoutRequest struct {
	Status           string              `json:"status" form:"status"`
	PaymentReference string              `json:"payment_reference" form:"payment_reference"`
	AmountPaid       decimal.NullDecimal `json:"amount_paid" form:"-"`
	Notes            string              `json:"notes" form:"notes"`
}

// ProcessPayout accepts multipart/form-data with an optional "proof" file, or
// a plain JSON body when no proof is attached.
func (s *Server) ProcessPayout(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var (
		req   processPayoutRequest
		proof *payoutdomain.Proof
	)
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		// leave room for the other form fields around the file
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxProofSize+(1<<20))
		if err := c.ShouldBind(&req); err != nil {
			AbortWithError(c, newValidationError("proof", "file must not exceed 10 MiB"))
			return
		}
		req.AmountPaid, err = parseOptionalDecimal(c.PostForm("amount_paid"))
		if err != nil {
			AbortWithError(c, newValidationError("amount_paid", "invalid amount"))
			return
		}
		proof, err = readProof(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.Process(c.Request.Context(), payoutdomain.ProcessPayoutRequest{
		PayoutID:         id,
		Status:           strings.TrimSpace(req.Status),
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		AmountPaid:       req.AmountPaid,
		Notes:            strings.TrimSpace(req.Notes),
		Proof:            proof,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func readProof(c *gin.Context) (*payoutdomain.Proof, error) {
	header, err := c.FormFile("proof")
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, newValidationError("proof", "invalid file")
	}
	if header.Size > maxProofSize {
		return nil, newValidationError("proof", "file must not exceed 10 MiB")
	}

	file, err := header.Open()
	if err != nil {
		return nil, newValidationError("proof", "invalid file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxProofSize+1))
	if err != nil {
		return nil, fmt.Errorf("read proof: %w", err)
	}
	if len(data) > maxProofSize {
		return nil, newValidationError("proof", "file must not exceed 10 MiB")
	}

	return &payoutdomain.Proof{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) DownloadRemittance(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdf, err := s.payoutSvc.Remittance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=remittance-%s.pdf", id.String()))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
