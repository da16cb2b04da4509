package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/outreach/pkg/compliance"
	"github.com/jordanlanch/outreach/pkg/metrics"
	"github.com/jordanlanch/outreach/pkg/models"
)

// InboundHandler receives keyword replies forwarded by the messaging provider
type InboundHandler struct {
	compliance *compliance.Handler
	metrics    *metrics.Metrics
	validator  *validator.Validate
}

// NewInboundHandler creates a new inbound handler
func NewInboundHandler(h *compliance.Handler, m *metrics.Metrics) *InboundHandler {
	return &InboundHandler{compliance: h, metrics: m, validator: newValidator()}
}

// Receive applies one inbound keyword. Duplicate deliveries answer 200 with
// the duplicate action so the provider stops retrying.
func (h *InboundHandler) Receive(c echo.Context) error {
	var req models.InboundRequest
	if err := bind(c, h.validator, &req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	out, err := h.compliance.HandleInbound(ctx, compliance.Inbound{
		TenantID: req.TenantID,
		From:     req.From,
		Keyword:  req.Keyword,
		EventID:  req.EventID,
	})
	if err != nil {
		return fail(c, err)
	}
	if h.metrics != nil {
		h.metrics.RecordInbound(string(out.Action))
	}
	return c.JSON(http.StatusOK, out)
}
