package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/runner"
)

// Ticker runs one scheduler pass.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) (*runner.TickResult, error)
}

// RunnerHandler lets an external scheduler trigger ticks
type RunnerHandler struct {
	runner Ticker
	now    func() time.Time
}

// NewRunnerHandler creates a new runner handler
func NewRunnerHandler(r Ticker) *RunnerHandler {
	return &RunnerHandler{runner: r, now: time.Now}
}

// Tick runs one scheduler pass and returns its counts
func (h *RunnerHandler) Tick(c echo.Context) error {
	res, err := h.runner.Tick(c.Request().Context(), h.now())
	if err != nil {
		return apierrors.InternalError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
