package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/prospects"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ProspectHandler exposes the ingested prospects read-only
type ProspectHandler struct {
	prospects   *prospects.Store
	enrollments *enrollment.Store
}

// NewProspectHandler creates a new prospect handler
func NewProspectHandler(ps *prospects.Store, es *enrollment.Store) *ProspectHandler {
	return &ProspectHandler{prospects: ps, enrollments: es}
}

// List handles paging through the tenant's prospects
func (h *ProspectHandler) List(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	limit, offset := defaultPageSize, 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return apierrors.BadRequestError(c, "limit must be a positive integer")
		}
		limit = min(n, maxPageSize)
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return apierrors.BadRequestError(c, "offset must be 0 or greater")
		}
		offset = n
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	list, err := h.prospects.List(ctx, tenantID, limit, offset)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	total, err := h.prospects.Count(ctx, tenantID)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	return c.JSON(http.StatusOK, models.ListResponse[*prospects.Prospect]{Data: list, Total: total})
}

// Get handles retrieving one prospect
func (h *ProspectHandler) Get(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	p, err := h.prospects.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return fail(c, err, prospects.ErrNotFound)
	}
	return c.JSON(http.StatusOK, p)
}

// Enrollments lists every enrollment of one prospect
func (h *ProspectHandler) Enrollments(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	p, err := h.prospects.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return fail(c, err, prospects.ErrNotFound)
	}
	list, err := h.enrollments.ListByProspect(ctx, p.ID)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	return c.JSON(http.StatusOK, models.ListResponse[*enrollment.Enrollment]{Data: list, Total: len(list)})
}
