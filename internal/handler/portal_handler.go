package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	"github.com/noah-isme/hostel-fee-api/internal/service"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
	"github.com/noah-isme/hostel-fee-api/pkg/response"
)

// portalStudent is the reduced projection returned to the public portal.
type portalStudent struct {
	Name        string  `json:"name"`
	Room        string  `json:"room"`
	FeeStatus   string  `json:"feeStatus"`
	PaymentMode string  `json:"paymentMode,omitempty"`
	MonthlyFee  float64 `json:"monthlyFee"`
	UPIID       string  `json:"upiId,omitempty"`
	PayNow      bool    `json:"payNow"`
}

// selfReportRequest is the portal self-report payload.
type selfReportRequest struct {
	PaymentMode string `json:"paymentMode" binding:"omitempty,oneof=upi cash"`
}

// PortalHandler exposes the public student portal reached through the QR
// code: residents identify themselves by mobile number, no auth.
type PortalHandler struct {
	students *service.StudentService
	settings *service.SettingsService
}

// NewPortalHandler constructs PortalHandler.
func NewPortalHandler(students *service.StudentService, settings *service.SettingsService) *PortalHandler {
	return &PortalHandler{students: students, settings: settings}
}

// Lookup godoc
// @Summary Look up a resident by mobile number
// @Tags Portal
// @Produce json
// @Param mobile path string true "10-digit mobile number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /portal/students/{mobile} [get]
func (h *PortalHandler) Lookup(c *gin.Context) {
	student, err := h.students.FindByMobile(c.Request.Context(), c.Param("mobile"))
	if err != nil {
		response.Error(c, err)
		return
	}
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toPortalStudent(student, settings), nil)
}

// SelfReport godoc
// @Summary Resident self-reports a fee payment
// @Tags Portal
// @Accept json
// @Produce json
// @Param mobile path string true "10-digit mobile number"
// @Param payload body selfReportRequest true "Payment mode"
// @Success 200 {object} response.Envelope
// @Router /portal/students/{mobile}/fee-status [patch]
func (h *PortalHandler) SelfReport(c *gin.Context) {
	var req selfReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.SelfReportPayment(c.Request.Context(), c.Param("mobile"), req.PaymentMode)
	if err != nil {
		response.Error(c, err)
		return
	}
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, toPortalStudent(student, settings), nil)
}

func toPortalStudent(st *models.Student, settings *models.HostelSettings) portalStudent {
	return portalStudent{
		Name:        st.Name,
		Room:        st.Room,
		FeeStatus:   st.FeeStatus,
		PaymentMode: st.PaymentMode,
		MonthlyFee:  settings.MonthlyFee,
		UPIID:       settings.UPIID,
		PayNow:      settings.EnablePayNow,
	}
}
