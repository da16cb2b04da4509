package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/stats"
)

const (
	defaultStatsRange = 30 * 24 * time.Hour
	exportLimit       = 10000
	mimeXLSX          = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// StatsHandler reports aggregate delivery outcomes
type StatsHandler struct {
	stats *stats.Service
	now   func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(s *stats.Service) *StatsHandler {
	return &StatsHandler{stats: s, now: time.Now}
}

// parseTime accepts RFC 3339 timestamps or plain dates (UTC midnight).
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func (h *StatsHandler) query(c echo.Context, tenantID string) (stats.Query, error) {
	q := stats.Query{TenantID: tenantID, SequenceID: c.QueryParam("sequence_id"), To: h.now()}

	if v := c.QueryParam("to"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return q, fmt.Errorf("to must be RFC 3339 or YYYY-MM-DD")
		}
		q.To = t
	}
	q.From = q.To.Add(-defaultStatsRange)
	if v := c.QueryParam("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return q, fmt.Errorf("from must be RFC 3339 or YYYY-MM-DD")
		}
		q.From = t
	}
	if !q.From.Before(q.To) {
		return q, fmt.Errorf("from must be before to")
	}
	return q, nil
}

// Get returns counts over [from, to). With format=xlsx the counts and the
// individual attempts are returned as a workbook.
func (h *StatsHandler) Get(c echo.Context) error {
	tenantID, err := tenant(c)
	if err != nil {
		return fail(c, err)
	}
	q, err := h.query(c, tenantID)
	if err != nil {
		return apierrors.BadRequestError(c, err.Error())
	}
	format := c.QueryParam("format")
	if format != "" && format != "json" && format != "xlsx" {
		return apierrors.BadRequestError(c, "format must be json or xlsx")
	}

	ctx, cancel := withTimeout(c, writeTimeout)
	defer cancel()

	sum, err := h.stats.Summary(ctx, q)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	if format != "xlsx" {
		return c.JSON(http.StatusOK, sum)
	}

	attempts, err := h.stats.Attempts(ctx, q, exportLimit)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, mimeXLSX)
	res.Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="outreach-stats-%s.xlsx"`, q.To.UTC().Format("20060102")))
	res.WriteHeader(http.StatusOK)
	return stats.WriteXLSX(res, sum, attempts)
}
