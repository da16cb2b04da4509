package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/outreach/pkg/auth"
	"github.com/jordanlanch/outreach/pkg/compliance"
	"github.com/jordanlanch/outreach/pkg/database"
	"github.com/jordanlanch/outreach/pkg/database/dbtest"
	"github.com/jordanlanch/outreach/pkg/delivery"
	"github.com/jordanlanch/outreach/pkg/enrollment"
	"github.com/jordanlanch/outreach/pkg/logger"
	"github.com/jordanlanch/outreach/pkg/metrics"
	"github.com/jordanlanch/outreach/pkg/middleware"
	"github.com/jordanlanch/outreach/pkg/models"
	"github.com/jordanlanch/outreach/pkg/prospects"
	"github.com/jordanlanch/outreach/pkg/providers"
	"github.com/jordanlanch/outreach/pkg/runner"
	"github.com/jordanlanch/outreach/pkg/sequences"
	"github.com/jordanlanch/outreach/pkg/stats"
	"github.com/jordanlanch/outreach/pkg/suppression"
	"github.com/jordanlanch/outreach/pkg/templates"
	"github.com/jordanlanch/outreach/pkg/throttle"
)

const (
	testJWTSecret    = "test-secret-key-minimum-32-characters-long"
	testRunnerSecret = "runner-secret"
)

// t0 is inside the default send window in UTC.
var t0 = time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	sent []delivery.Message
}

func (s *recordingSender) Send(_ context.Context, msg delivery.Message) (delivery.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return delivery.Result{ProviderMessageID: fmt.Sprintf("m-%d", len(s.sent))}, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// providerFunc adapts a function to providers.Provider.
type providerFunc struct {
	name   string
	search func(page int) (providers.Page, error)
}

func (p providerFunc) Name() string { return p.name }

func (p providerFunc) Search(_ context.Context, _ providers.Filters, page int) (providers.Page, error) {
	return p.search(page)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testAPI struct {
	e           *echo.Echo
	db          *database.Client
	intake      *prospects.Intake
	prospects   *prospects.Store
	enrollments *enrollment.Store
	registry    *providers.Registry
	email       *recordingSender
	operator    string
	admin       string
	stranger    string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db := dbtest.Open(t)
	log := logger.Nop()
	m := metrics.New(prometheus.NewRegistry())

	tplStore := templates.NewStore(db)
	seqStore := sequences.NewStore(db, tplStore)
	prospectStore := prospects.NewStore(db)
	enrollments := enrollment.NewStore(db)
	ledger := suppression.NewLedger(db)
	filters := prospects.NewFilterStore(db)
	registry := providers.NewRegistry()
	intake := prospects.NewIntake(db, filters, registry, log)
	email := &recordingSender{}
	adapter := delivery.NewAdapter(log,
		delivery.EmailChannel{Sender: email},
		delivery.SMSChannel{Sender: &recordingSender{}},
	)

	r := runner.New(runner.Config{}, runner.Deps{
		Enrollments: enrollments,
		Sequences:   seqStore,
		Templates:   tplStore,
		Prospects:   prospectStore,
		Ledger:      ledger,
		Counter:     throttle.NewSQLCounter(db),
		Adapter:     adapter,
		Attempts:    delivery.NewAttemptLog(db),
		Metrics:     m,
		Log:         log,
	})

	clock := func() time.Time { return t0 }
	seqHandler := NewSequenceHandler(seqStore, tplStore, enrollments, log)
	seqHandler.now = clock
	enrollHandler := NewEnrollmentHandler(enrollments, prospectStore, seqStore, m)
	enrollHandler.now = clock
	runnerHandler := NewRunnerHandler(r)
	runnerHandler.now = clock
	statsHandler := NewStatsHandler(stats.NewService(db))
	statsHandler.now = clock

	h := Handlers{
		Templates:    NewTemplateHandler(tplStore),
		Sequences:    seqHandler,
		Enrollments:  enrollHandler,
		Prospects:    NewProspectHandler(prospectStore, enrollments),
		Filters:      NewFilterHandler(filters, registry),
		Suppressions: NewSuppressionHandler(ledger, suppression.NewSuppressor(ledger, prospectStore, enrollments)),
		Sync:         NewSyncHandler(intake, m),
		Stats:        statsHandler,
		Runner:       runnerHandler,
		Inbound:      NewInboundHandler(compliance.NewHandler(db, ledger, prospectStore, enrollments, adapter, compliance.DefaultHelpText, log), m),
	}

	hash, err := auth.HashSecret(testRunnerSecret)
	require.NoError(t, err)

	e := echo.New()
	h.Register(e,
		[]echo.MiddlewareFunc{middleware.OperatorAuth(testJWTSecret)},
		[]echo.MiddlewareFunc{middleware.RunnerAuth(hash)},
	)

	return &testAPI{
		e:           e,
		db:          db,
		intake:      intake,
		prospects:   prospectStore,
		enrollments: enrollments,
		registry:    registry,
		email:       email,
		operator:    testToken(t, "t1", auth.RoleOperator),
		admin:       testToken(t, "t1", auth.RoleAdmin),
		stranger:    testToken(t, "t2", auth.RoleOperator),
	}
}

func testToken(t *testing.T, tenantID, role string) string {
	t.Helper()
	tok, err := auth.GenerateJWT("op", tenantID, role, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends body (marshalled unless it is already a string) with the given
// bearer token. An empty token sends no Authorization header.
func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		r = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) runnerDo(path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.RunnerSecretHeader, testRunnerSecret)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func emailTemplateBody(name string) map[string]any {
	return map[string]any{
		"name":              name,
		"channel":           "email",
		"subject":           "Hi {{first_name}}",
		"body":              "Quick question about {{company}}",
		"compliance_footer": "Reply STOP to opt out",
	}
}

func (a *testAPI) createTemplate(t *testing.T) *templates.Template {
	t.Helper()
	rec := a.do(http.MethodPost, "/outreach/templates", a.operator, emailTemplateBody("Intro"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TemplateResponse](t, rec).Template
}

func (a *testAPI) createSequence(t *testing.T, templateID string) *sequences.Sequence {
	t.Helper()
	rec := a.do(http.MethodPost, "/outreach/sequences", a.operator, map[string]any{
		"name":             "Launch",
		"throttle_per_day": 50,
		"timezone":         "UTC",
		"steps": []map[string]any{
			{"step_order": 1, "channel": "email", "wait_minutes": 0, "template_id": templateID},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*sequences.Sequence](t, rec)
}

func (a *testAPI) createProspect(t *testing.T, tenantID, externalID, email string) *prospects.Prospect {
	t.Helper()
	ctx := context.Background()
	_, err := a.intake.Ingest(ctx, tenantID, providers.Filters{}, []providers.Record{{
		Provider: "apollo", ExternalID: externalID, FirstName: "Ada", Company: "Analytical", Email: email,
	}})
	require.NoError(t, err)
	p, err := a.prospects.FindByKey(ctx, tenantID, "apollo", externalID)
	require.NoError(t, err)
	return p
}

func (a *testAPI) enroll(t *testing.T, prospectID, sequenceID string) *enrollment.Enrollment {
	t.Helper()
	rec := a.do(http.MethodPost, "/outreach/enrollments", a.operator, map[string]any{
		"prospect_id": prospectID, "sequence_id": sequenceID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*enrollment.Enrollment](t, rec)
}

func fieldNames(resp models.ErrorResponse) []string {
	out := make([]string, len(resp.Fields))
	for i, f := range resp.Fields {
		out[i] = f.Field
	}
	return out
}

func TestAuth_OperatorAndRunnerRoutesRejectUniformly(t *testing.T) {
	a := newTestAPI(t)

	noToken := a.do(http.MethodGet, "/outreach/templates", "", nil)
	jwtOnRunner := a.do(http.MethodPost, "/outreach/runner", a.admin, nil)
	badToken := a.do(http.MethodPost, "/outreach/sync", "not-a-jwt", nil)

	for _, rec := range []*httptest.ResponseRecorder{noToken, jwtOnRunner, badToken} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, noToken.Body.String(), rec.Body.String())
	}
}

func TestTemplates_CRUD(t *testing.T) {
	a := newTestAPI(t)

	body := emailTemplateBody("Intro")
	body["body"] = "Hey {{nickname}}"
	rec := a.do(http.MethodPost, "/outreach/templates", a.operator, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[TemplateResponse](t, rec)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "t1", created.TenantID)
	require.Len(t, created.Warnings, 1)
	assert.Contains(t, created.Warnings[0], "nickname")

	rec = a.do(http.MethodGet, "/outreach/templates/"+created.ID, a.operator, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/outreach/templates/"+created.ID, a.stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/outreach/templates", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.ListResponse[*templates.Template]](t, rec).Total)

	body["body"] = "Hey {{first_name}}"
	rec = a.do(http.MethodPatch, "/outreach/templates/"+created.ID, a.operator, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[TemplateResponse](t, rec)
	assert.Equal(t, created.ID, updated.ID, "unreferenced templates are edited in place")
	assert.Empty(t, updated.Warnings)

	rec = a.do(http.MethodDelete, "/outreach/templates/"+created.ID, a.operator, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodGet, "/outreach/templates/"+created.ID, a.operator, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplates_ValidationListsEveryField(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/outreach/templates", a.operator, map[string]any{
		"name":    strings.Repeat("x", 201),
		"channel": "fax",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.ElementsMatch(t, []string{"name", "channel", "body", "complianceFooter"}, fieldNames(resp))

	rec = a.do(http.MethodPost, "/outreach/templates", a.operator, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[models.ErrorResponse](t, rec).Error)
}

func TestTemplates_ReferencedTemplateIsVersioned(t *testing.T) {
	a := newTestAPI(t)
	tpl := a.createTemplate(t)
	a.createSequence(t, tpl.ID)

	body := emailTemplateBody("Intro v2")
	rec := a.do(http.MethodPut, "/outreach/templates/"+tpl.ID, a.operator, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	next := decode[TemplateResponse](t, rec)
	assert.NotEqual(t, tpl.ID, next.ID)
	assert.Equal(t, tpl.FamilyID, next.FamilyID)
	assert.Equal(t, 2, next.Version)

	rec = a.do(http.MethodGet, "/outreach/templates/"+tpl.ID, a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Intro", decode[*templates.Template](t, rec).Name)

	rec = a.do(http.MethodDelete, "/outreach/templates/"+tpl.ID, a.operator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSequences_ValidationListsEveryField(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/outreach/sequences", a.operator, map[string]any{
		"name":             "",
		"throttle_per_day": 0,
		"timezone":         "Mars/Olympus",
		"steps": []map[string]any{
			{"step_order": 1, "channel": "email", "template_id": "missing"},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := fieldNames(decode[models.ErrorResponse](t, rec))
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "throttlePerDay")
	assert.Contains(t, fields, "timezone")
	assert.Contains(t, fields, "steps[0].templateId")
}

func TestSequences_Lifecycle(t *testing.T) {
	a := newTestAPI(t)
	tpl := a.createTemplate(t)
	seq := a.createSequence(t, tpl.ID)
	assert.Equal(t, sequences.DefaultSendWindowStart, seq.SendWindowStart)

	rec := a.do(http.MethodPost, "/outreach/sequences/"+seq.ID+"/steps", a.operator, map[string]any{
		"step_order": 2, "channel": "email", "wait_minutes": 1440, "template_id": tpl.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[*sequences.Sequence](t, rec).Steps, 2)

	rec = a.do(http.MethodPost, "/outreach/sequences/"+seq.ID+"/steps", a.operator, map[string]any{
		"step_order": 2, "channel": "email", "wait_minutes": 60, "template_id": tpl.ID,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, fieldNames(decode[models.ErrorResponse](t, rec)), "steps[0].stepOrder")

	rec = a.do(http.MethodPatch, "/outreach/sequences/"+seq.ID, a.operator, map[string]any{
		"name": "Launch EU", "throttle_per_day": 20, "timezone": "Europe/Madrid",
		"send_window_start": 9, "send_window_end": 18,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[*sequences.Sequence](t, rec)
	assert.Equal(t, "Europe/Madrid", updated.Timezone)
	assert.Equal(t, 9, updated.SendWindowStart)

	rec = a.do(http.MethodGet, "/outreach/sequences/"+seq.ID, a.stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	p := a.createProspect(t, "t1", "p-1", "ada@example.com")
	e := a.enroll(t, p.ID, seq.ID)

	rec = a.do(http.MethodGet, "/outreach/sequences/"+seq.ID+"/enrollments", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.ListResponse[*enrollment.Enrollment]](t, rec).Total)

	rec = a.do(http.MethodDelete, "/outreach/sequences/"+seq.ID, a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[map[string]any](t, rec)
	assert.Equal(t, sequences.StatusArchived, out["status"])
	assert.EqualValues(t, 1, out["paused"])

	got, err := a.enrollments.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPaused, got.Status)

	p2 := a.createProspect(t, "t1", "p-2", "grace@example.com")
	rec = a.do(http.MethodPost, "/outreach/enrollments", a.operator, map[string]any{
		"prospect_id": p2.ID, "sequence_id": seq.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodDelete, "/outreach/sequences/missing", a.operator, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnrollments_StateMachine(t *testing.T) {
	a := newTestAPI(t)
	seq := a.createSequence(t, a.createTemplate(t).ID)
	p := a.createProspect(t, "t1", "p-1", "ada@example.com")
	foreign := a.createProspect(t, "t2", "p-9", "eve@example.com")

	e := a.enroll(t, p.ID, seq.ID)
	assert.Equal(t, enrollment.StatusActive, e.Status)
	assert.True(t, t0.Equal(e.NextDueAt))

	rec := a.do(http.MethodPost, "/outreach/enrollments", a.operator, map[string]any{
		"prospect_id": p.ID, "sequence_id": seq.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/outreach/enrollments", a.operator, map[string]any{
		"prospect_id": foreign.ID, "sequence_id": seq.ID,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "prospects of other tenants are invisible")

	rec = a.do(http.MethodPost, "/outreach/enrollments", a.operator, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []string{"prospectId", "sequenceId"}, fieldNames(decode[models.ErrorResponse](t, rec)))

	path := "/outreach/enrollments/" + e.ID
	rec = a.do(http.MethodPost, path+"/pause", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enrollment.StatusPaused, decode[*enrollment.Enrollment](t, rec).Status)

	rec = a.do(http.MethodPost, path+"/pause", a.operator, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, path+"/resume", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enrollment.StatusActive, decode[*enrollment.Enrollment](t, rec).Status)

	rec = a.do(http.MethodPost, path+"/opt-out", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enrollment.StatusOptedOut, decode[*enrollment.Enrollment](t, rec).Status)

	for _, action := range []string{"pause", "resume", "opt-out"} {
		rec = a.do(http.MethodPost, path+"/"+action, a.operator, nil)
		assert.Equal(t, http.StatusConflict, rec.Code, action)
	}

	rec = a.do(http.MethodGet, path, a.operator, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, path, a.stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(http.MethodPost, "/outreach/enrollments/missing/pause", a.operator, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunnerTickAndInboundStop(t *testing.T) {
	a := newTestAPI(t)
	tpl := a.createTemplate(t)
	seq := a.createSequence(t, tpl.ID)
	p := a.createProspect(t, "t1", "p-1", "ada@example.com")
	e := a.enroll(t, p.ID, seq.ID)

	rec := a.runnerDo("/outreach/runner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[runner.TickResult](t, rec)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, a.email.count())

	stop := models.InboundRequest{TenantID: "t1", From: "ADA@example.com", Keyword: "stop", EventID: "evt-1"}
	rec = a.runnerDo("/outreach/inbound", stop)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[compliance.Outcome](t, rec)
	assert.Equal(t, compliance.ActionStop, out.Action)
	assert.Equal(t, "ada@example.com", out.Identity)

	rec = a.runnerDo("/outreach/inbound", stop)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, compliance.ActionDuplicate, decode[compliance.Outcome](t, rec).Action)

	rec = a.runnerDo("/outreach/inbound", models.InboundRequest{Keyword: "STOP"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	got, err := a.enrollments.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusCompleted, got.Status, "single step sequence finished before the STOP")

	rec = a.do(http.MethodGet, "/outreach/suppressions", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.ListResponse[*suppression.Entry]](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, suppression.ReasonStop, list.Data[0].Reason)
}

func TestFilters_GetAndPut(t *testing.T) {
	a := newTestAPI(t)
	a.registry.Register(providerFunc{name: "apollo"})

	rec := a.do(http.MethodGet, "/outreach/filters", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[providers.Filters](t, rec).Industries)

	rec = a.do(http.MethodPut, "/outreach/filters", a.operator, map[string]any{
		"employee_min": 500, "employee_max": 10, "providers": []string{"apollo", "zoominfo"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []string{"employeeMax", "providers[1]"}, fieldNames(decode[models.ErrorResponse](t, rec)))

	rec = a.do(http.MethodPut, "/outreach/filters", a.operator, map[string]any{
		"industries": []string{"Software"}, "locations": []string{"Bogotá"}, "employee_min": 10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/outreach/filters", a.operator, nil)
	got := decode[providers.Filters](t, rec)
	assert.Equal(t, []string{"Software"}, got.Industries)
	assert.Equal(t, 10, got.EmployeeMin)

	rec = a.do(http.MethodGet, "/outreach/filters", a.stranger, nil)
	assert.Empty(t, decode[providers.Filters](t, rec).Industries)
}

func TestSync_ReportsCountsAndProviderErrors(t *testing.T) {
	a := newTestAPI(t)
	records := []providers.Record{
		{Provider: "apollo", ExternalID: "a-1", FirstName: "Ada", Email: "ada@example.com"},
		{Provider: "apollo", ExternalID: "a-2", FirstName: "Grace", Email: "grace@example.com"},
		{Provider: "apollo", ExternalID: ""},
	}
	limited := false
	a.registry.Register(providerFunc{name: "apollo", search: func(page int) (providers.Page, error) {
		if page > 1 {
			if limited {
				return providers.Page{}, providers.ErrRateLimited
			}
			return providers.Page{}, nil
		}
		return providers.Page{Records: records, NextPage: 2}, nil
	}})

	rec := a.do(http.MethodPost, "/outreach/sync", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.SyncResponse{Inserted: 2, Skipped: 1}, decode[models.SyncResponse](t, rec))

	limited = true
	rec = a.do(http.MethodPost, "/outreach/sync", a.operator, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	resp := decode[models.SyncResponse](t, rec)
	assert.Equal(t, "provider_rate_limited", resp.Error)
	assert.Equal(t, 3, resp.Inserted+resp.Updated+resp.Skipped, "first page was ingested before the failure")

	rec = a.do(http.MethodGet, "/outreach/prospects", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[models.ListResponse[*prospects.Prospect]](t, rec).Total)
}

func TestProspects_ReadEndpoints(t *testing.T) {
	a := newTestAPI(t)
	seq := a.createSequence(t, a.createTemplate(t).ID)
	p := a.createProspect(t, "t1", "p-1", "ada@example.com")
	a.enroll(t, p.ID, seq.ID)

	rec := a.do(http.MethodGet, "/outreach/prospects/"+p.ID, a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", decode[*prospects.Prospect](t, rec).Email)

	rec = a.do(http.MethodGet, "/outreach/prospects/"+p.ID+"/enrollments", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[models.ListResponse[*enrollment.Enrollment]](t, rec).Total)

	rec = a.do(http.MethodGet, "/outreach/prospects/"+p.ID, a.stranger, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/outreach/prospects?limit=0", a.operator, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuppressions_Create(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/outreach/suppressions", a.operator, map[string]any{"identity": " Ada@Example.com "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[*suppression.Entry](t, rec)
	assert.Equal(t, "ada@example.com", entry.Identity)
	assert.Equal(t, suppression.ReasonManual, entry.Reason)
	assert.Equal(t, suppression.ScopeTenant, entry.Scope)

	rec = a.do(http.MethodPost, "/outreach/suppressions", a.operator, map[string]any{"identity": "ada@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code, "repeat suppression is a no-op")

	rec = a.do(http.MethodPost, "/outreach/suppressions", a.operator, map[string]any{"identity": "+16502530000", "scope": "global"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, "/outreach/suppressions", a.admin, map[string]any{"identity": "+16502530000", "scope": "global"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/outreach/suppressions", a.operator, map[string]any{"identity": "   ", "reason": "spite"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ElementsMatch(t, []string{"identity", "reason"}, fieldNames(decode[models.ErrorResponse](t, rec)))

	rec = a.do(http.MethodGet, "/outreach/suppressions", a.stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.ListResponse[*suppression.Entry]](t, rec)
	require.Equal(t, 1, list.Total, "other tenants only see global entries")
	assert.Equal(t, suppression.ScopeGlobal, list.Data[0].Scope)
}

func TestSuppressions_CreateOptsOutLiveEnrollments(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	tpl := a.createTemplate(t)
	first := a.createSequence(t, tpl.ID)
	second := a.createSequence(t, tpl.ID)
	p := a.createProspect(t, "t1", "p-1", "ada@example.com")
	other := a.createProspect(t, "t1", "p-2", "grace@example.com")

	active := a.enroll(t, p.ID, first.ID)
	paused := a.enroll(t, p.ID, second.ID)
	rec := a.do(http.MethodPost, "/outreach/enrollments/"+paused.ID+"/pause", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	untouched := a.enroll(t, other.ID, first.ID)

	rec = a.do(http.MethodPost, "/outreach/suppressions", a.operator, map[string]any{"identity": "Ada@Example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[suppressionResponse](t, rec).OptedOut)

	for _, id := range []string{active.ID, paused.ID} {
		got, err := a.enrollments.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, enrollment.StatusOptedOut, got.Status)
	}
	got, err := a.enrollments.GetByID(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusActive, got.Status)

	rec = a.runnerDo("/outreach/runner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, a.email.count(), "only the unsuppressed prospect is sent to")
}

func TestStats_JSONAndWorkbook(t *testing.T) {
	a := newTestAPI(t)
	seq := a.createSequence(t, a.createTemplate(t).ID)
	a.enroll(t, a.createProspect(t, "t1", "p-1", "ada@example.com").ID, seq.ID)
	a.enroll(t, a.createProspect(t, "t1", "p-2", "").ID, seq.ID)

	rec := a.runnerDo("/outreach/runner", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/outreach/stats?from=2026-04-01&to=2026-05-01", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sum := decode[stats.Summary](t, rec)
	assert.Equal(t, 1, sum.Sent)
	assert.Equal(t, 1, sum.Failed, "missing recipient")
	assert.Equal(t, 1, sum.Completed)

	rec = a.do(http.MethodGet, "/outreach/stats?to=2026-04-07&sequence_id="+seq.ID, a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum = decode[stats.Summary](t, rec)
	assert.Equal(t, 1, sum.Sent)
	assert.True(t, sum.From.Equal(time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)), "from defaults to 30 days before to")

	rec = a.do(http.MethodGet, "/outreach/stats?from=2026-04-01&to=2026-05-01", a.stranger, nil)
	assert.Equal(t, 0, decode[stats.Summary](t, rec).Sent)

	rec = a.do(http.MethodGet, "/outreach/stats?from=2026-04-01&to=2026-05-01&format=xlsx", a.operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeXLSX, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "outreach-stats-20260501.xlsx")
	assert.Equal(t, "PK", rec.Body.String()[:2], "xlsx is a zip container")

	for _, q := range []string{"from=2026-05-01&to=2026-04-01", "from=yesterday", "format=csv"} {
		rec = a.do(http.MethodGet, "/outreach/stats?"+q, a.operator, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	down := false
	h := NewHealthHandler(map[string]Pinger{
		"database": pingerFunc(func(context.Context) error { return nil }),
		"redis": pingerFunc(func(context.Context) error {
			if down {
				return fmt.Errorf("connection refused")
			}
			return nil
		}),
		"unset": nil,
	})
	e.GET("/health", h.Health)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[models.HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Checks, 2)

	down = true
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unreachable", decode[models.HealthResponse](t, rec).Checks["redis"])
}
