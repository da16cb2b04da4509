package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/templates"
)

// TemplateHandler handles template endpoints
type TemplateHandler struct {
	store     *templates.Store
	validator *validator.Validate
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(store *templates.Store) *TemplateHandler {
	return &TemplateHandler{store: store, validator: newValidator()}
}

// TemplateResponse is a stored template plus the non-fatal findings of its validation.
type TemplateResponse struct {
	*templates.Template
	Warnings []string `json:"warnings,omitempty"`
}

func templateInput(req models.TemplateRequest) templates.Input {
	return templates.Input{
		Name:             req.Name,
		Channel:          domain.Channel(req.Channel),
		Subject:          req.Subject,
		Body:             req.Body,
		ComplianceFooter: req.ComplianceFooter,
		Active:           req.Active,
	}
}

func (h *TemplateHandler) bind(c echo.Context) (templates.Input, error) {
	var req models.TemplateRequest
	err := bind(c, h.validator, &req, func(verr *domain.ValidationError) error {
		_, err := templates.Validate(templateInput(req))
		return merge(verr, err)
	})
	return templateInput(req), err
}

// Create handles creating a template
func (h *TemplateHandler) Create(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}
	in, err := h.bind(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	t, warnings, err := h.store.Create(ctx, tenantID, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, TemplateResponse{Template: t, Warnings: warnings})
}

// List handles listing the tenant's templates
func (h *TemplateHandler) List(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	list, err := h.store.List(ctx, tenantID)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	return c.JSON(http.StatusOK, models.ListResponse[*templates.Template]{Data: list, Total: len(list)})
}

// Get handles retrieving a single template
func (h *TemplateHandler) Get(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	t, err := h.store.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return fail(c, err, templates.ErrNotFound)
	}
	return c.JSON(http.StatusOK, t)
}

// Update edits a template. A template referenced by a live sequence is left
// untouched; the response then carries the new version.
func (h *TemplateHandler) Update(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}
	in, err := h.bind(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	t, warnings, err := h.store.Update(ctx, tenantID, c.Param("id"), in)
	if err != nil {
		return fail(c, err, templates.ErrNotFound)
	}
	return c.JSON(http.StatusOK, TemplateResponse{Template: t, Warnings: warnings})
}

// Delete removes an unreferenced template
func (h *TemplateHandler) Delete(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	err = h.store.Delete(ctx, tenantID, c.Param("id"))
	if errors.Is(err, templates.ErrInUse) {
		return apierrors.ConflictError(c, "Template is used by an active sequence.")
	}
	if err != nil {
		return fail(c, err, templates.ErrNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}
