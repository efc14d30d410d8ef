package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
)

type createReferralRequest struct {
	CompanyName        string          `json:"company_name"`
	ContactName        string          `json:"contact_name"`
	ContactEmail       string          `json:"contact_email"`
	ContactPhone       string          `json:"contact_phone"`
	Industry           string          `json:"industry"`
	Notes              string          `json:"notes"`
	EstimatedDealValue decimal.Decimal `json:"estimated_deal_value"`
}

func (s *Server) CreateReferral(c *gin.Context) {
	var req createReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.referralSvc.Create(c.Request.Context(), referraldomain.CreateReferralRequest{
		CompanyName:        strings.TrimSpace(req.CompanyName),
		ContactName:        strings.TrimSpace(req.ContactName),
		ContactEmail:       strings.TrimSpace(req.ContactEmail),
		ContactPhone:       strings.TrimSpace(req.ContactPhone),
		Industry:           strings.TrimSpace(req.Industry),
		Notes:              strings.TrimSpace(req.Notes),
		EstimatedDealValue: req.EstimatedDealValue,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}

func (s *Server) ListReferrals(c *gin.Context) {
	resp, err := s.referralSvc.ListForPartner(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) GetReferral(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.referralSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) LookupReferral(c *gin.Context) {
	resp, err := s.referralSvc.LookupByCode(c.Request.Context(), c.Query("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

type transitionReferralRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) TransitionReferral(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req transitionReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.referralSvc.TransitionStatus(c.Request.Context(), referraldomain.TransitionRequest{
		ReferralID: id,
		Status:     strings.TrimSpace(req.Status),
		Notes:      strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

type finalizeReferralRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) FinalizeReferral(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req finalizeReferralRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.referralSvc.FinalizeDeal(c.Request.Context(), id, strings.TrimSpace(req.Notes))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

type createLeadRequest struct {
	AssignedTo string `json:"assigned_to"`
}

func (s *Server) CreateLead(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createLeadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.referralSvc.CreateLead(c.Request.Context(), referraldomain.CreateLeadRequest{
		ReferralID: id,
		AssignedTo: strings.TrimSpace(req.AssignedTo),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusCreated, resp)
}
