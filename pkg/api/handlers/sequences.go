package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/sequences"
)

// SequenceHandler handles sequence endpoints
type SequenceHandler struct {
	store       *sequences.Store
	templates   sequences.TemplateLookup
	enrollments *enrollment.Store
	validator   *validator.Validate
	log         logger.Logger
	now         func() time.Time
}

// NewSequenceHandler creates a new sequence handler
func NewSequenceHandler(store *sequences.Store, templates sequences.TemplateLookup, enrollments *enrollment.Store, log logger.Logger) *SequenceHandler {
	return &SequenceHandler{
		store:       store,
		templates:   templates,
		enrollments: enrollments,
		validator:   newValidator(),
		log:         log,
		now:         time.Now,
	}
}

func settingsInput(req models.SequenceSettingsRequest) sequences.Settings {
	return sequences.Settings{
		Name:            req.Name,
		ThrottlePerDay:  req.ThrottlePerDay,
		Timezone:        req.Timezone,
		SendWindowStart: req.SendWindowStart,
		SendWindowEnd:   req.SendWindowEnd,
	}
}

func stepInput(req models.StepRequest) sequences.StepInput {
	return sequences.StepInput{
		StepOrder:   req.StepOrder,
		Channel:     domain.Channel(req.Channel),
		WaitMinutes: req.WaitMinutes,
		TemplateID:  req.TemplateID,
	}
}

func sequenceInput(req models.SequenceRequest) sequences.Input {
	in := sequences.Input{Settings: settingsInput(req.SequenceSettingsRequest)}
	for _, st := range req.Steps {
		in.Steps = append(in.Steps, stepInput(st))
	}
	return in
}

// Create handles creating a sequence with its steps
func (h *SequenceHandler) Create(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	var req models.SequenceRequest
	if err := bind(c, h.validator, &req, func(verr *domain.ValidationError) error {
		return merge(verr, sequences.Validate(ctx, tenantID, sequenceInput(req), nil, h.templates))
	}); err != nil {
		return fail(c, err)
	}

	seq, err := h.store.Create(ctx, tenantID, sequenceInput(req))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, seq)
}

// List handles listing the tenant's sequences
func (h *SequenceHandler) List(c echo.Context) error {
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
	return c.JSON(http.StatusOK, models.ListResponse[*sequences.Sequence]{Data: list, Total: len(list)})
}

// Get handles retrieving a sequence with its steps
func (h *SequenceHandler) Get(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	seq, err := h.store.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return fail(c, err, sequences.ErrNotFound)
	}
	return c.JSON(http.StatusOK, seq)
}

// Update handles changing the sequence-level settings
func (h *SequenceHandler) Update(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.SequenceSettingsRequest
	if err := bind(c, h.validator, &req, func(verr *domain.ValidationError) error {
		return merge(verr, sequences.ValidateSettings(settingsInput(req)))
	}); err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	seq, err := h.store.Update(ctx, tenantID, c.Param("id"), settingsInput(req))
	if err != nil {
		return fail(c, err, sequences.ErrNotFound)
	}
	return c.JSON(http.StatusOK, seq)
}

// AddStep handles appending a step to a stored sequence
func (h *SequenceHandler) AddStep(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.StepRequest
	if err := bind(c, h.validator, &req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	seq, err := h.store.AddStep(ctx, tenantID, c.Param("id"), stepInput(req))
	if err != nil {
		return fail(c, err, sequences.ErrNotFound)
	}
	return c.JSON(http.StatusCreated, seq)
}

// Delete archives a sequence and pauses its active enrollments
func (h *SequenceHandler) Delete(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}
	id := c.Param("id")

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	if err := h.store.Archive(ctx, tenantID, id); err != nil {
		return fail(c, err, sequences.ErrNotFound)
	}
	paused, err := h.enrollments.PauseSequence(ctx, id, h.now())
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}

	h.log.Info("sequence archived", "tenant_id", tenantID, "sequence_id", id, "paused", paused)
	return c.JSON(http.StatusOK, map[string]any{
		"id":     id,
		"status": sequences.StatusArchived,
		"paused": paused,
	})
}

// Enrollments lists the enrollments of a sequence
func (h *SequenceHandler) Enrollments(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	if _, err := h.store.Get(ctx, tenantID, c.Param("id")); err != nil {
		return fail(c, err, sequences.ErrNotFound)
	}
	list, err := h.enrollments.ListBySequence(ctx, tenantID, c.Param("id"))
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	return c.JSON(http.StatusOK, models.ListResponse[*enrollment.Enrollment]{Data: list, Total: len(list)})
}
