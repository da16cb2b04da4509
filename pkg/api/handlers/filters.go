package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/providers"
)

// FilterHandler handles the tenant's stored intake filters
type FilterHandler struct {
	store     *prospects.FilterStore
	registry  *providers.Registry
	validator *validator.Validate
}

// NewFilterHandler creates a new filter handler
func NewFilterHandler(store *prospects.FilterStore, registry *providers.Registry) *FilterHandler {
	return &FilterHandler{store: store, registry: registry, validator: newValidator()}
}

// Get returns the stored filters, empty when none were saved
func (h *FilterHandler) Get(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	f, err := h.store.Get(ctx, tenantID)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	return c.JSON(http.StatusOK, f)
}

// Put replaces the stored filters
func (h *FilterHandler) Put(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.FiltersRequest
	if err := bind(c, h.validator, &req, func(verr *domain.ValidationError) error {
		if req.EmployeeMax > 0 && req.EmployeeMin > req.EmployeeMax {
			verr.Add("employeeMax", "must not be below employeeMin")
		}
		for i, name := range req.Providers {
			if _, err := h.registry.Get(name); err != nil {
				verr.Add("providers["+strconv.Itoa(i)+"]", "unknown provider")
			}
		}
		return nil
	}); err != nil {
		return fail(c, err)
	}

	f := providers.Filters{
		Industries:  req.Industries,
		Titles:      req.Titles,
		Locations:   req.Locations,
		EmployeeMin: req.EmployeeMin,
		EmployeeMax: req.EmployeeMax,
		Keywords:    req.Keywords,
		Providers:   req.Providers,
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	if err := h.store.Put(ctx, tenantID, f); err != nil {
		return apierrors.DatabaseError(c, err)
	}
	return c.JSON(http.StatusOK, f)
}
