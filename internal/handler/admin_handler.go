package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-fee-api/internal/service"
	"github.com/noah-isme/hostel-fee-api/pkg/response"
)

// AdminHandler exposes operational endpoints: the monthly reset trigger
// and health.
type AdminHandler struct {
	reset *service.ResetService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(reset *service.ResetService) *AdminHandler {
	return &AdminHandler{reset: reset}
}

// MonthlyReset godoc
// @Summary Run the monthly fee reset
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/monthly-reset [post]
func (h *AdminHandler) MonthlyReset(c *gin.Context) {
	result, err := h.reset.CheckAndReset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// CheckMonthlyReset godoc
// @Summary Report whether a reset is due
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/check-monthly-reset [get]
func (h *AdminHandler) CheckMonthlyReset(c *gin.Context) {
	status, err := h.reset.CheckNeeded(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Health godoc
// @Summary Health check
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /health [get]
func (h *AdminHandler) Health(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}, nil)
}
