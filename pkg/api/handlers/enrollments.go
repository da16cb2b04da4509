package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/metrics"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/sequences"
)

// EnrollmentHandler handles enrollment endpoints
type EnrollmentHandler struct {
	enrollments *enrollment.Store
	prospects   *prospects.Store
	sequences   *sequences.Store
	metrics     *metrics.Metrics
	validator   *validator.Validate
	now         func() time.Time
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(es *enrollment.Store, ps *prospects.Store, ss *sequences.Store, m *metrics.Metrics) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: es,
		prospects:   ps,
		sequences:   ss,
		metrics:     m,
		validator:   newValidator(),
		now:         time.Now,
	}
}

// Create enrolls a prospect of the tenant in one of its live sequences
func (h *EnrollmentHandler) Create(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	var req models.EnrollRequest
	if err := bind(c, h.validator, &req); err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	if _, err := h.prospects.Get(ctx, tenantID, req.ProspectID); err != nil {
		return fail(c, err, prospects.ErrNotFound)
	}
	seq, err := h.sequences.Get(ctx, tenantID, req.SequenceID)
	if err != nil {
		return fail(c, err, sequences.ErrNotFound)
	}
	if seq.Archived() {
		return apierrors.ConflictError(c, "Sequence is archived.")
	}

	e, err := h.enrollments.Enroll(ctx, tenantID, req.ProspectID, req.SequenceID, h.now())
	if errors.Is(err, enrollment.ErrAlreadyEnrolled) {
		return apierrors.ConflictError(c, "Prospect is already enrolled in this sequence.")
	}
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	h.record("enrolled")
	return c.JSON(http.StatusCreated, e)
}

// Get handles retrieving a single enrollment
func (h *EnrollmentHandler) Get(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, readTimeout)
	defer cancel()

	e, err := h.enrollments.Get(ctx, tenantID, c.Param("id"))
	if err != nil {
		return fail(c, err, enrollment.ErrNotFound)
	}
	return c.JSON(http.StatusOK, e)
}

// Pause handles pausing an active enrollment
func (h *EnrollmentHandler) Pause(c echo.Context) error {
	return h.transition(c, "paused", h.enrollments.Pause)
}

// Resume handles resuming a paused enrollment
func (h *EnrollmentHandler) Resume(c echo.Context) error {
	return h.transition(c, "resumed", h.enrollments.Resume)
}

// OptOut handles opting a prospect out of one sequence
func (h *EnrollmentHandler) OptOut(c echo.Context) error {
	return h.transition(c, "opted_out", h.enrollments.OptOut)
}

type transitionFunc func(ctx context.Context, tenantID, id string, now time.Time) (*enrollment.Enrollment, error)

func (h *EnrollmentHandler) transition(c echo.Context, outcome string, apply transitionFunc) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	e, err := apply(ctx, tenantID, c.Param("id"), h.now())
	switch {
	case errors.Is(err, enrollment.ErrTerminal):
		return apierrors.ConflictError(c, "Enrollment has already finished.")
	case errors.Is(err, enrollment.ErrInvalidTransition):
		return apierrors.ConflictError(c, "Enrollment cannot be "+outcome+" from its current state.")
	case err != nil:
		return fail(c, err, enrollment.ErrNotFound)
	}
	h.record(outcome)
	return c.JSON(http.StatusOK, e)
}

func (h *EnrollmentHandler) record(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordEnrollment(outcome)
	}
}
