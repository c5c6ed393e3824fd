package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
	"github.com/TNG/momo-scheduler-sub000/internal/repo/memrepo"
	"github.com/TNG/momo-scheduler-sub000/internal/schedule"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func echo(_ context.Context, params map[string]any) (string, error) {
	return fmt.Sprintf("hello %v", params["who"]), nil
}

// newTestServer поднимает schedule на memrepo с двумя jobs и API поверх него.
func newTestServer(t *testing.T, start bool) (*httptest.Server, *schedule.Schedule) {
	t.Helper()
	ctx := context.Background()

	s := schedule.New(schedule.Config{
		Name:              "api-test",
		InstanceID:        "a",
		HeartbeatInterval: time.Hour,
		Leases:            memrepo.NewLeaseRepo(),
		Jobs:              memrepo.NewJobRepo(),
		Logger:            quietLogger(),
	})
	defs := []schedule.JobDefinition{
		{Name: "greet", Schedule: domain.NeverSchedule(), Parameters: map[string]any{"who": "world"}},
		{Name: "hourly", Schedule: domain.IntervalSchedule("1h", time.Hour)},
	}
	for _, def := range defs {
		if err := s.Define(ctx, def, echo); err != nil {
			t.Fatalf("define %s: %v", def.Name, err)
		}
	}
	if start {
		s.Start(ctx)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })

	mux := http.NewServeMux()
	NewHandler(Config{Schedule: s, Logger: quietLogger()}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, s
}

func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	var dr struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal(dr.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func decodeError(t *testing.T, resp *http.Response) ErrorDetail {
	t.Helper()
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return er.Error
}

func TestGetSchedule(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/schedule", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got ScheduleResponse
	decodeData(t, resp, &got)
	if got.Name != "api-test" || got.InstanceID != "a" {
		t.Errorf("unexpected identity: %+v", got)
	}
	if !got.Active || got.LeaseHolder != "a" {
		t.Errorf("expected active schedule holding the lease, got %+v", got)
	}
	if got.Jobs != 2 || got.StartedJobs != 1 {
		t.Errorf("expected 2 jobs with 1 started (never is not started), got %d/%d", got.Jobs, got.StartedJobs)
	}
}

func TestListAndGetJobs(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/jobs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var lr struct {
		Data  []JobResponse `json:"data"`
		Total int           `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lr.Total != 2 || len(lr.Data) != 2 {
		t.Fatalf("expected 2 jobs, got %d", lr.Total)
	}
	if lr.Data[0].Name != "greet" || lr.Data[1].Name != "hourly" {
		t.Errorf("jobs should be sorted by name, got %s, %s", lr.Data[0].Name, lr.Data[1].Name)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/jobs/hourly", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var job JobResponse
	decodeData(t, resp, &job)
	if !job.Started || job.NextExecution == nil {
		t.Errorf("hourly should be started with a next execution, got %+v", job)
	}
	if job.Schedule != "every 1h (first after 1h0m0s)" {
		t.Errorf("unexpected schedule description %q", job.Schedule)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/jobs/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", e.Code)
	}
}

func TestRunJob(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/greet/run", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got RunJobResponse
	decodeData(t, resp, &got)
	if got.Status != domain.ExecutionStatusFinished || got.HandlerResult != "hello world" {
		t.Errorf("stored parameters should be used, got %+v", got)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/greet/run", RunJobRequest{
		Parameters: map[string]any{"who": "api"},
	})
	decodeData(t, resp, &got)
	if got.HandlerResult != "hello api" {
		t.Errorf("request parameters should override, got %q", got.HandlerResult)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/jobs/greet", nil)
	var job JobResponse
	decodeData(t, resp, &job)
	if job.LastResult == nil || job.LastResult.HandlerResult != "hello api" {
		t.Errorf("execution info should be persisted, got %+v", job.LastResult)
	}
}

func TestRunJob_Delayed(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/greet/run", RunJobRequest{Delay: "1h"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var got RunJobResponse
	decodeData(t, resp, &got)
	if !got.Scheduled || got.Delay != "1h0m0s" {
		t.Errorf("unexpected response %+v", got)
	}
}

func TestRunJob_BadRequest(t *testing.T) {
	srv, _ := newTestServer(t, true)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/jobs/greet/run", bytes.NewBufferString("{"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/greet/run", RunJobRequest{Delay: "soon"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad delay: expected 400, got %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/missing/run", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing job: expected 404, got %d", resp.StatusCode)
	}
}

func TestStartStopJob(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/hourly/stop", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stop: expected 204, got %d", resp.StatusCode)
	}
	var job JobResponse
	decodeData(t, doRequest(t, http.MethodGet, srv.URL+"/api/v1/jobs/hourly", nil), &job)
	if job.Started {
		t.Error("job should be stopped")
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/hourly/start", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("start: expected 204, got %d", resp.StatusCode)
	}
	decodeData(t, doRequest(t, http.MethodGet, srv.URL+"/api/v1/jobs/hourly", nil), &job)
	if !job.Started {
		t.Error("job should be started again")
	}
}

func TestStartJob_NotActive(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/jobs/hourly/start", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Code != ErrCodeNotActive {
		t.Errorf("expected NOT_ACTIVE, got %s", e.Code)
	}
}

func TestRemoveJob(t *testing.T) {
	srv, s := newTestServer(t, true)

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/v1/jobs/greet", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if s.Count(false) != 1 {
		t.Errorf("expected 1 job left, got %d", s.Count(false))
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/jobs/greet", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestMiddleware_RequestIDAndRecovery(t *testing.T) {
	logger := quietLogger()
	var seen string
	handler := Chain(Recovery(logger), RequestID(logger), Logging(logger))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.Header().Get(HeaderRequestID)
		if r.URL.Path == "/panic" {
			panic("boom")
		}
		NoContent(w)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if seen != "req-1" || rec.Header().Get(HeaderRequestID) != "req-1" {
		t.Errorf("incoming request id should be propagated, got %q", seen)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic: expected 500, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("request id should be generated when missing")
	}
}

func TestJobFromDomain_CronUpcomingRuns(t *testing.T) {
	resp := JobFromDomain(domain.JobDescription{Job: domain.Job{
		Name:     "nightly",
		Schedule: domain.CronSchedule("@hourly"),
	}})
	if len(resp.UpcomingRuns) != 3 {
		t.Fatalf("expected 3 upcoming runs, got %v", resp.UpcomingRuns)
	}
	if d := resp.UpcomingRuns[1].Sub(resp.UpcomingRuns[0]); d != time.Hour {
		t.Errorf("expected hourly spacing, got %s", d)
	}

	resp = JobFromDomain(domain.JobDescription{Job: domain.Job{
		Name:     "hourly",
		Schedule: domain.IntervalSchedule("1h", 0),
	}})
	if resp.UpcomingRuns != nil {
		t.Errorf("interval job should have no upcoming runs, got %v", resp.UpcomingRuns)
	}
}
