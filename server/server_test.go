package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/attrmigrate/am"
	"github.com/teranos/attrmigrate/errors"
	testdb "github.com/teranos/attrmigrate/internal/testing"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/runlog"
)

type fakeConfig struct {
	mu  sync.Mutex
	cfg am.Config
}

func newFakeConfig(attrs []string, interval int) *fakeConfig {
	return &fakeConfig{cfg: am.Config{Conversion: am.ConversionConfig{
		Attributes:      attrs,
		IntervalSeconds: interval,
		ItemType:        am.DefaultItemType,
	}}}
}

func (f *fakeConfig) Load() (*am.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.cfg
	c.Conversion.Attributes = append([]string(nil), f.cfg.Conversion.Attributes...)
	return &c, nil
}

func (f *fakeConfig) SetAttributes(names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.Conversion.Attributes = am.SanitizeAttributeList(names)
	return nil
}

func (f *fakeConfig) SetInterval(seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.Conversion.IntervalSeconds = seconds
	return nil
}

type fakeRescheduler struct {
	calls []int
}

func (f *fakeRescheduler) Reschedule(_ context.Context, seconds int) error {
	f.calls = append(f.calls, seconds)
	return nil
}

type refusingRunner struct{}

func (refusingRunner) Execute(context.Context, string) (*schedule.Execution, *runlog.Summary, error) {
	return nil, nil, errors.WithHint(errors.ErrPassInProgress, "another process is running a conversion pass")
}

type fixture struct {
	db          *sql.DB
	srv         *Server
	config      *fakeConfig
	rescheduler *fakeRescheduler
}

// newFixture wires a server over a real executor whose pass records one event
func newFixture(t *testing.T, ratePerMinute int) *fixture {
	t.Helper()
	db := testdb.CreateTestDB(t)
	log := zaptest.NewLogger(t).Sugar()
	events := runlog.NewStore(db)

	pass := func(ctx context.Context) (*runlog.Summary, error) {
		rep := runlog.NewReporter(log, events)
		rep.EntryScanned()
		rep.Record(ctx, runlog.Event{Kind: runlog.KindTaxonomyCreated, Message: "Created taxonomy", Taxonomy: "pa_color"})
		rep.Finish()
		s := rep.Summary()
		return &s, nil
	}

	f := &fixture{
		db:          db,
		config:      newFakeConfig([]string{"Color"}, 3600),
		rescheduler: &fakeRescheduler{},
	}
	srv, err := New(Dependencies{
		Runner:               schedule.NewExecutor(db, pass, schedule.ExecutorConfig{}, log),
		Executions:           schedule.NewExecutionStore(db),
		Events:               events,
		Rescheduler:          f.rescheduler,
		Config:               f.config,
		TriggerRatePerMinute: ratePerMinute,
		Logger:               log,
	})
	require.NoError(t, err)
	f.srv = srv
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]interface{}](t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHandleRun_ReportsSuccessAndRecordsExecution(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, http.MethodPost, "/api/conversion/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RunResponse](t, rec)
	assert.Equal(t, "Attribute conversion completed successfully!", resp.Message)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 1, resp.Summary.TaxonomiesCreated)
	require.NotNil(t, resp.Execution)
	assert.Equal(t, schedule.TriggerManual, resp.Execution.Trigger)

	// Listed in history
	rec = f.do(t, http.MethodGet, "/api/conversion/executions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListExecutionsResponse](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, resp.Execution.ID, list.Executions[0].ID)
	assert.Equal(t, schedule.ExecutionStatusCompleted, list.Executions[0].Status)
	assert.False(t, list.HasMore)

	// Single execution
	rec = f.do(t, http.MethodGet, "/api/conversion/executions/"+resp.Execution.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Events persisted under the execution id
	rec = f.do(t, http.MethodGet, "/api/conversion/executions/"+resp.Execution.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[ExecutionEventsResponse](t, rec)
	require.Equal(t, 1, events.Count)
	assert.Equal(t, runlog.KindTaxonomyCreated, events.Events[0].Kind)
}

func TestHandleRun_Conflict(t *testing.T) {
	f := newFixture(t, 0)
	srv, err := New(Dependencies{
		Runner:     refusingRunner{},
		Executions: schedule.NewExecutionStore(f.db),
		Events:     runlog.NewStore(f.db),
		Config:     f.config,
		Logger:     zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	f.srv = srv

	rec := f.do(t, http.MethodPost, "/api/conversion/run", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "already in progress")
	assert.NotEmpty(t, resp.Hints)
}

func TestHandleRun_RateLimited(t *testing.T) {
	f := newFixture(t, 1)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/conversion/run", nil).Code)
	rec := f.do(t, http.MethodPost, "/api/conversion/run", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestHandleRun_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/conversion/run", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleListExecutions_Filters(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/conversion/executions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversion/executions?trigger=cron", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/conversion/run", nil).Code)

	rec = f.do(t, http.MethodGet, "/api/conversion/executions?trigger=scheduled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[ListExecutionsResponse](t, rec).Total)

	rec = f.do(t, http.MethodGet, "/api/conversion/executions?status=completed&limit=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListExecutionsResponse](t, rec).Count)
}

func TestHandleGetExecution_NotFound(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, http.MethodGet, "/api/conversion/executions/PE_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/conversion/executions/PE_missing/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConfig(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, http.MethodGet, "/api/conversion/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decode[ConversionSettings](t, rec)
	assert.Equal(t, []string{"Color"}, settings.Attributes)
	assert.Equal(t, 3600, settings.IntervalSeconds)
	assert.Empty(t, settings.Warnings)

	text := "Size\n<b>Material</b>\n\nsize"
	interval := 600
	rec = f.do(t, http.MethodPut, "/api/conversion/config", UpdateSettingsRequest{
		AttributesText:  &text,
		IntervalSeconds: &interval,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settings = decode[ConversionSettings](t, rec)
	assert.Equal(t, []string{"Size", "Material"}, settings.Attributes)
	assert.Equal(t, 600, settings.IntervalSeconds)
	assert.Equal(t, []int{600}, f.rescheduler.calls)

	// Same interval again does not reschedule
	rec = f.do(t, http.MethodPut, "/api/conversion/config", UpdateSettingsRequest{IntervalSeconds: &interval})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{600}, f.rescheduler.calls)

	// Clearing the list turns passes into no-ops and surfaces a warning
	empty := []string{}
	rec = f.do(t, http.MethodPut, "/api/conversion/config", UpdateSettingsRequest{Attributes: &empty})
	require.Equal(t, http.StatusOK, rec.Code)
	settings = decode[ConversionSettings](t, rec)
	assert.Empty(t, settings.Attributes)
	assert.Len(t, settings.Warnings, 1)
}

func TestHandlePutConfig_Rejects(t *testing.T) {
	f := newFixture(t, 0)

	zero := 0
	rec := f.do(t, http.MethodPut, "/api/conversion/config", UpdateSettingsRequest{IntervalSeconds: &zero})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/conversion/config", map[string]string{"unknown": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.rescheduler.calls)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
}
