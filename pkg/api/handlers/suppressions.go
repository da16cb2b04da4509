package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/middleware"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/suppression"
)

// SuppressionHandler handles manual suppression endpoints
type SuppressionHandler struct {
	ledger     *suppression.Ledger
	suppressor *suppression.Suppressor
	validator  *validator.Validate
	now        func() time.Time
}

// NewSuppressionHandler creates a new suppression handler
func NewSuppressionHandler(ledger *suppression.Ledger, suppressor *suppression.Suppressor) *SuppressionHandler {
	return &SuppressionHandler{ledger: ledger, suppressor: suppressor, validator: newValidator(), now: time.Now}
}

// suppressionResponse is the stored entry plus the enrollments it ended.
type suppressionResponse struct {
	*suppression.Entry
	OptedOut int `json:"opted_out"`
}

// List returns the entries that apply to the tenant, global ones included
func (h *SuppressionHandler) List(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	limit := defaultPageSize
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return apierrors.BadRequestError(c, "limit must be a positive integer")
		}
		limit = min(n, maxPageSize)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	list, err := h.ledger.List(ctx, tenantID, limit)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	return c.JSON(http.StatusOK, models.ListResponse[*suppression.Entry]{Data: list, Total: len(list)})
}

// Create suppresses an identity for the tenant and opts out its live
// enrollments. Global entries need the admin role.
func (h *SuppressionHandler) Create(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.SuppressionRequest
	if err := bind(c, h.validator, &req, func(verr *domain.ValidationError) error {
		if req.Identity != "" && suppression.NormalizeIdentity(req.Identity) == "" {
			verr.Add("identity", "required")
		}
		return nil
	}); err != nil {
		return fail(c, err)
	}

	scope := suppression.Scope(req.Scope)
	if scope == suppression.ScopeGlobal && !middleware.IsAdmin(c) {
		return apierrors.ForbiddenError(c, "global suppression requires admin")
	}
	if scope == "" {
		scope = suppression.ScopeTenant
	}
	reason := suppression.Reason(req.Reason)
	if reason == "" {
		reason = suppression.ReasonManual
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	res, err := h.suppressor.Suppress(ctx, suppression.Entry{
		TenantID: tenantID,
		Identity: req.Identity,
		Reason:   reason,
		Scope:    scope,
	}, h.now())
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	return c.JSON(status, suppressionResponse{Entry: res.Entry, OptedOut: res.OptedOut})
}
