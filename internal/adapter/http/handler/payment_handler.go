package handler

import (
	"io"

	"ikaze-payments/internal/adapter/http/dto"
	"ikaze-payments/internal/adapter/http/middleware"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"
	"ikaze-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment lifecycle endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Initiate handles POST /api/v1/payments.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	svcReq, err := req.ToPorts(userID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.paymentSvc.Initiate(c.Request.Context(), svcReq)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Status == domain.StatusCompleted {
		response.Created(c, result)
		return
	}
	response.Accepted(c, result)
}

// GetStatus handles GET /api/v1/payments/:reference.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	result, err := h.paymentSvc.Verify(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Cancel handles POST /api/v1/payments/:reference/cancel.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	if err := h.paymentSvc.Cancel(c.Request.Context(), userID, c.Param("reference")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"reference": c.Param("reference"), "status": domain.StatusFailed})
}

// Refund handles POST /api/v1/admin/payments/:reference/refund (admin only).
func (h *PaymentHandler) Refund(c *gin.Context) {
	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	svcReq := ports.RefundPaymentRequest{
		Reference: c.Param("reference"),
		Reason:    req.Reason,
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			response.Error(c, apperror.ErrInvalidAmount())
			return
		}
		svcReq.Amount = &amount
	}

	result, err := h.paymentSvc.Refund(c.Request.Context(), svcReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Webhook handles POST /webhooks/:method. Authentication happens in the
// webhook middleware; by this point the payload is trusted.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	method := domain.PaymentMethod(c.Param("method"))

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	if err := h.paymentSvc.HandleWebhook(c.Request.Context(), method, payload); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"received": true})
}
