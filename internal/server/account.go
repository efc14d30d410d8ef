package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	bankingdomain "github.com/smallbiznis/referralhub/internal/banking/domain"
)

type setBankAccountRequest struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
}

func (s *Server) SetBankAccount(c *gin.Context) {
	var req setBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.bankingSvc.SetAccount(c.Request.Context(), bankingdomain.SetAccountRequest{
		BankCode:      strings.TrimSpace(req.BankCode),
		BankName:      strings.TrimSpace(req.BankName),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) GetBankAccount(c *gin.Context) {
	resp, err := s.bankingSvc.GetAccount(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) ListNotifications(c *gin.Context) {
	resp, err := s.notificationSvc.ListForUser(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}

func (s *Server) MarkNotificationRead(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.notificationSvc.MarkRead(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respond(c, http.StatusOK, resp)
}
