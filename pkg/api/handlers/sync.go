package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/metrics"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/providers"
)

const syncTimeout = 2 * time.Minute

// Syncer pulls a tenant's prospects from the configured providers.
type Syncer interface {
	Sync(ctx context.Context, tenantID string) (prospects.IngestResult, error)
}

// SyncHandler triggers prospect intake
type SyncHandler struct {
	intake  Syncer
	metrics *metrics.Metrics
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(intake Syncer, m *metrics.Metrics) *SyncHandler {
	return &SyncHandler{intake: intake, metrics: m}
}

// Sync runs intake with the tenant's stored filters and reports the counts.
// A provider failure still reports what was ingested before it.
func (h *SyncHandler) Sync(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, syncTimeout)
	defer cancel()

	res, err := h.intake.Sync(ctx, tenantID)
	if h.metrics != nil {
		h.metrics.RecordIngest(res.Inserted, res.Updated, res.Skipped)
	}

	body := models.SyncResponse{Inserted: res.Inserted, Updated: res.Updated, Skipped: res.Skipped}
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, body)
	case errors.Is(err, providers.ErrRateLimited):
		body.Error = "provider_rate_limited"
		return apierrors.UpstreamError(c, http.StatusTooManyRequests, body, err)
	case errors.Is(err, providers.ErrUnauthorized):
		body.Error = "provider_unauthorized"
		return apierrors.UpstreamError(c, http.StatusBadGateway, body, err)
	case errors.Is(err, providers.ErrUnknownProvider):
		return apierrors.BadRequestError(c, "Stored filters name an unknown provider.")
	default:
		return apierrors.InternalError(c, err)
	}
}
