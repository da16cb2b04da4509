package errors

import (
	stderrors "errors"
	"net/http"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/models"
)

var current atomic.Value

func init() {
	current.Store(logger.Default())
}

// SetLogger replaces the logger used to record underlying errors.
func SetLogger(l logger.Logger) {
	current.Store(l)
}

func log() logger.Logger {
	return current.Load().(logger.Logger)
}

// ValidationError returns a 400 listing every violated field. Field names and
// rules are exposed; the underlying error text is only logged.
func ValidationError(c echo.Context, err error) error {
	log().Warn("validation error", "path", c.Request().URL.Path, "error", err)

	resp := models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	}

	var verr *domain.ValidationError
	var fields validator.ValidationErrors
	switch {
	case stderrors.As(err, &verr):
		resp.Fields = verr.Fields
		resp.Warnings = verr.Warnings
	case stderrors.As(err, &fields):
		for _, f := range fields {
			resp.Fields = append(resp.Fields, domain.FieldError{Field: f.Field(), Rule: f.Tag()})
		}
	}
	return c.JSON(http.StatusBadRequest, resp)
}

// BadRequestError returns a 400 with a caller-safe message
func BadRequestError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// DatabaseError returns a generic database error without exposing internal details
func DatabaseError(c echo.Context, err error) error {
	log().Error("database error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "database_error",
		Message: "A database error occurred. Please try again later.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	log().Error("internal error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// UnauthorizedError returns the single 401 body used for every credential
// failure, whatever the reason.
func UnauthorizedError(c echo.Context, reason string) error {
	log().Debug("unauthorized", "path", c.Request().URL.Path, "reason", reason)

	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// ForbiddenError returns a generic forbidden error
func ForbiddenError(c echo.Context, reason string) error {
	log().Debug("forbidden", "path", c.Request().URL.Path, "reason", reason)

	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "You do not have permission to access this resource.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested " + resource + " was not found.",
	})
}

// ConflictError returns a generic conflict error
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message, // Message is safe to expose
	})
}

// UpstreamError reports a failing third-party provider
func UpstreamError(c echo.Context, status int, body any, err error) error {
	log().Warn("upstream error", "path", c.Request().URL.Path, "status", status, "error", err)
	return c.JSON(status, body)
}

// FromDomain maps a domain error to its response. Anything unrecognized is
// an internal error.
func FromDomain(c echo.Context, err error) error {
	if domain.IsValidation(err) {
		return ValidationError(c, err)
	}

	var de *domain.DomainError
	if !stderrors.As(err, &de) {
		return InternalError(c, err)
	}
	switch de.Code {
	case domain.ErrCodeNotFound:
		return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: de.Message})
	case domain.ErrCodeConflict:
		return ConflictError(c, de.Message)
	case domain.ErrCodeBadRequest:
		return BadRequestError(c, de.Message)
	case domain.ErrCodeUnauthorized:
		return UnauthorizedError(c, de.Message)
	case domain.ErrCodeForbidden:
		return ForbiddenError(c, de.Message)
	default:
		return InternalError(c, err)
	}
}
