package handlers

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/outreach/pkg/api/errors"
	"github.com/jordanlanch/outreach/pkg/domain"
	"github.com/jordanlanch/outreach/pkg/middleware"
)

const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

// newValidator returns a validator that names fields the way the domain
// validators do: the JSON name in lowerCamel case.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return lowerCamel(name)
	})
	return v
}

func lowerCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

// bind decodes the body into req and runs the struct tag rules plus any extra
// domain checks, so one response lists every violated field. A check that
// fails for another reason aborts with its error.
func bind(c echo.Context, v *validator.Validate, req any, extra ...func(*domain.ValidationError) error) error {
	if err := c.Bind(req); err != nil {
		return domain.NewBadRequestError("request body is not valid JSON")
	}

	verr := &domain.ValidationError{}
	if err := v.Struct(req); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			return err
		}
		for _, f := range fields {
			verr.Add(jsonPath(f.Namespace()), f.Tag())
		}
	}
	for _, check := range extra {
		if err := check(verr); err != nil {
			return err
		}
	}
	return verr.ErrOrNil()
}

// jsonPath drops the Go struct names validator puts in front of the
// namespace ("SequenceRequest.steps[0].channel" becomes "steps[0].channel").
// Embedded structs show up the same way.
func jsonPath(ns string) string {
	parts := strings.Split(ns, ".")
	for len(parts) > 1 && parts[0] != "" && unicode.IsUpper(rune(parts[0][0])) {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}

// merge folds the violations of err into verr. Errors that are not
// validation errors are returned unchanged.
func merge(verr *domain.ValidationError, err error) error {
	if err == nil {
		return nil
	}
	var other *domain.ValidationError
	if !errors.As(err, &other) {
		return err
	}
	verr.Fields = append(verr.Fields, other.Fields...)
	verr.Warnings = append(verr.Warnings, other.Warnings...)
	return nil
}

// tenant returns the tenant the operator token was issued for.
func tenant(c echo.Context) (string, error) {
	id, ok := middleware.TenantID(c)
	if !ok {
		return "", domain.NewUnauthorizedError()
	}
	return id, nil
}

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), d)
}

// fail maps package sentinels onto the shared error responses.
func fail(c echo.Context, err error, notFound ...error) error {
	for _, nf := range notFound {
		if errors.Is(err, nf) {
			return apierrors.FromDomain(c, domain.NewNotFoundError(resourceName(nf)))
		}
	}
	return apierrors.FromDomain(c, err)
}

// resourceName turns "sequence not found" into "sequence".
func resourceName(err error) string {
	return strings.TrimSuffix(err.Error(), " not found")
}
