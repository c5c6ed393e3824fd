package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// fakeAPI отвечает так же, как internal/api, и запоминает последний запрос на run.
type fakeAPI struct {
	mu      sync.Mutex
	lastRun RunJobRequest
	calls   []string
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) snapshot() (RunJobRequest, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRun, append([]string(nil), f.calls...)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /api/v1/schedule", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": ScheduleResponse{
			Name: "default", InstanceID: "inst-1", Active: true, LeaseHolder: "inst-1", Jobs: 2, StartedJobs: 1,
		}})
	})
	mux.HandleFunc("GET /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"total": 2, "data": []JobResponse{
			{Name: "cleanup", Schedule: "every 5m", Concurrency: 1, Started: true, LastResult: &JobResult{Status: "finished", HandlerResult: "ok"}},
			{Name: "report", Schedule: "cron 0 9 * * *", Concurrency: 1},
		}})
	})
	mux.HandleFunc("GET /api/v1/jobs/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "cleanup" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "NOT_FOUND", "message": "job not defined: " + r.PathValue("name")}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": JobResponse{Name: "cleanup", Schedule: "every 5m", Concurrency: 2, Parameters: map[string]any{"dir": "/tmp"}}})
	})
	mux.HandleFunc("POST /api/v1/jobs/{name}/run", func(w http.ResponseWriter, r *http.Request) {
		var req RunJobRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.lastRun = req
		f.mu.Unlock()
		if req.Delay != "" {
			writeJSON(w, http.StatusAccepted, map[string]any{"data": RunJobResponse{Scheduled: true, Delay: req.Delay}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": RunJobResponse{Status: "finished", HandlerResult: "done"}})
	})
	mux.HandleFunc("POST /api/v1/jobs/{name}/start", func(w http.ResponseWriter, r *http.Request) {
		f.record("start " + r.PathValue("name"))
		writeJSON(w, http.StatusConflict, map[string]any{"error": map[string]string{"code": "NOT_ACTIVE", "message": "schedule is not active on this instance"}})
	})
	mux.HandleFunc("POST /api/v1/jobs/{name}/stop", func(w http.ResponseWriter, r *http.Request) {
		f.record("stop " + r.PathValue("name"))
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /api/v1/jobs/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.record("remove " + r.PathValue("name"))
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// execute собирает root-команду как cmd/momo и выполняет её.
func execute(t *testing.T, url string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	var jsonOutput bool

	root := &cobra.Command{Use: "momo", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "")
	clientFn := func() *Client { return NewClient(url) }
	outputFn := func() *Output { return NewOutputTo(&out, &errOut, jsonOutput) }
	root.AddCommand(NewScheduleCmd(clientFn, outputFn), NewJobCmd(clientFn, outputFn))
	root.SetArgs(args)

	err = root.Execute()
	return out.String(), errOut.String(), err
}

func newFake(t *testing.T) (*fakeAPI, string) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func TestScheduleStatus(t *testing.T) {
	_, url := newFake(t)

	out, _, err := execute(t, url, "schedule", "status")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"default", "inst-1", "Active:", "true", "Started jobs:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q:\n%s", want, out)
		}
	}
}

func TestJobList(t *testing.T) {
	_, url := newFake(t)

	out, _, err := execute(t, url, "job", "list")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, separator and 2 rows, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "cleanup") || !strings.Contains(lines[2], "finished: ok") {
		t.Errorf("unexpected row %q", lines[2])
	}
	if !strings.Contains(lines[3], "report") || !strings.HasSuffix(strings.TrimSpace(lines[3]), "-") {
		t.Errorf("unexpected row %q", lines[3])
	}

	out, _, err = execute(t, url, "--json", "job", "list")
	if err != nil {
		t.Fatalf("execute --json: %v", err)
	}
	var jobs []JobResponse
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("json output: %v\n%s", err, out)
	}
	if len(jobs) != 2 || jobs[1].Schedule != "cron 0 9 * * *" {
		t.Errorf("unexpected json output %+v", jobs)
	}
}

func TestJobShow(t *testing.T) {
	_, url := newFake(t)

	out, _, err := execute(t, url, "job", "show", "cleanup")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, `{"dir":"/tmp"}`) || !strings.Contains(out, "unlimited") {
		t.Errorf("unexpected output:\n%s", out)
	}

	_, _, err = execute(t, url, "job", "show", "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND APIError, got %v", err)
	}
}

func TestJobRun(t *testing.T) {
	f, url := newFake(t)

	out, _, err := execute(t, url, "job", "run", "cleanup", "--param", "dir=/var/tmp", "--param", "limit=5")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "finished") || !strings.Contains(out, "done") {
		t.Errorf("unexpected output:\n%s", out)
	}
	last, _ := f.snapshot()
	if last.Parameters["dir"] != "/var/tmp" {
		t.Errorf("string param: got %v", last.Parameters["dir"])
	}
	if last.Parameters["limit"] != float64(5) {
		t.Errorf("numeric param should be sent as a number, got %#v", last.Parameters["limit"])
	}

	_, errOut, err := execute(t, url, "job", "run", "cleanup", "--delay", "30s")
	if err != nil {
		t.Fatalf("execute delayed: %v", err)
	}
	if !strings.Contains(errOut, "scheduled in 30s") {
		t.Errorf("unexpected message %q", errOut)
	}
	if last, _ := f.snapshot(); last.Parameters != nil {
		t.Error("no --param means stored parameters")
	}

	if _, _, err := execute(t, url, "job", "run", "cleanup", "--param", "novalue"); err == nil {
		t.Error("expected error for malformed param")
	}
}

func TestJobStartStopRemove(t *testing.T) {
	f, url := newFake(t)

	_, _, err := execute(t, url, "job", "start", "cleanup")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}

	if _, errOut, err := execute(t, url, "job", "stop", "cleanup"); err != nil || !strings.Contains(errOut, "Job stopped: cleanup") {
		t.Fatalf("stop: %v %q", err, errOut)
	}
	if _, errOut, err := execute(t, url, "job", "remove", "cleanup"); err != nil || !strings.Contains(errOut, "Job removed: cleanup") {
		t.Fatalf("remove: %v %q", err, errOut)
	}

	want := []string{"start cleanup", "stop cleanup", "remove cleanup"}
	if _, calls := f.snapshot(); strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("expected calls %v, got %v", want, calls)
	}
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"a=1", "b=true", "c=text", `d={"x":1}`, "e="})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got["a"] != float64(1) || got["b"] != true || got["c"] != "text" || got["e"] != "" {
		t.Errorf("unexpected values %#v", got)
	}
	if m, ok := got["d"].(map[string]any); !ok || m["x"] != float64(1) {
		t.Errorf("object value: %#v", got["d"])
	}

	if _, err := parseParams([]string{"=x"}); err == nil {
		t.Error("empty key should be rejected")
	}
}
