package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ridesim/internal/config"
	"ridesim/internal/instance"
	"ridesim/internal/model"
	"ridesim/internal/sim"
)

const exampleInstance = `3 4 2 3 2 10
0 0 1 3 2 9
1 2 1 0 0 9
2 0 2 2 0 9
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateRPS = 1000
	cfg.Server.RateBurst = 1000
	s, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func do(t *testing.T, h http.Handler, method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func expectedExample(t *testing.T) sim.Result {
	t.Helper()
	in, err := instance.Parse(strings.NewReader(exampleInstance))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res, err := sim.Simulate(context.Background(), in)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	return res
}

func exampleJSON(t *testing.T, extra map[string]any) []byte {
	t.Helper()
	in, err := instance.Parse(strings.NewReader(exampleInstance))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	req := map[string]any{"instance": fromInstance(in)}
	for k, v := range extra {
		req[k] = v
	}
	b, _ := json.Marshal(req)
	return b
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestCreateSimulationSync(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	want := expectedExample(t)

	rr := do(t, h, http.MethodPost, "/v1/simulations?sync=true", "application/json", exampleJSON(t, map[string]any{"label": "example"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var run model.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Status != model.RunCompleted || run.Score != want.Score {
		t.Fatalf("run: status=%s score=%d, want completed/%d", run.Status, run.Score, want.Score)
	}
	if run.Policy != "greedy" || run.Restarts != 1 || run.Label != "example" {
		t.Fatalf("defaults not applied: %+v", run)
	}

	rr = do(t, h, http.MethodGet, "/v1/simulations/"+run.ID+"/output", "", nil)
	if rr.Code != 200 {
		t.Fatalf("output: got %d", rr.Code)
	}
	var buf bytes.Buffer
	_ = instance.WriteAssignments(&buf, want.Assignments)
	if rr.Body.String() != buf.String() {
		t.Fatalf("output mismatch:\n%s\nwant:\n%s", rr.Body.String(), buf.String())
	}
}

func TestCreateSimulationAsyncText(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	want := expectedExample(t)

	rr := do(t, h, http.MethodPost, "/v1/simulations?policy=greedy&restarts=3&seed=7", "text/plain", []byte(exampleInstance))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var created struct{ ID, Status string }
	_ = json.Unmarshal(rr.Body.Bytes(), &created)
	if created.ID == "" || rr.Header().Get("Location") != "/v1/simulations/"+created.ID {
		t.Fatalf("bad create response: %s", rr.Body.String())
	}

	var run model.Run
	deadline := time.Now().Add(5 * time.Second)
	for {
		rr = do(t, h, http.MethodGet, "/v1/simulations/"+created.ID, "", nil)
		if rr.Code != 200 {
			t.Fatalf("get: got %d", rr.Code)
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &run)
		if run.Finished() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run did not finish: %+v", run)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if run.Status != model.RunCompleted {
		t.Fatalf("status %s: %s", run.Status, run.Error)
	}
	// trial 0 is the plain sorted run, so restarts never do worse
	if run.Score < want.Score || run.Restarts != 3 || run.Seed != 7 {
		t.Fatalf("unexpected run: %+v", run)
	}
}

func TestCreateSimulationInvalid(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	cases := []struct {
		name, ct string
		body     []byte
	}{
		{"bad json", "application/json", []byte(`{`)},
		{"missing instance", "application/json", []byte(`{"policy":"greedy"}`)},
		{"bad policy", "application/json", exampleJSON(t, map[string]any{"policy": "alns"})},
		{"negative restarts", "application/json", exampleJSON(t, map[string]any{"restarts": -1})},
		{"bad ride window", "application/json", []byte(`{"instance":{"rows":3,"cols":3,"vehicles":1,"bonus":1,"turns":5,"rides":[{"start":{"x":0,"y":0},"end":{"x":1,"y":1},"startTurn":4,"endTurn":2}]}}`)},
		{"malformed text", "text/plain", []byte("3 4 2\n")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/simulations", tc.ct, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
			}
			var p Problem
			if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != 400 {
				t.Fatalf("expected problem body, got %s", rr.Body.String())
			}
		})
	}
}

func TestSimulationNotFoundAndMethods(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	for _, path := range []string{"/v1/simulations/nope", "/v1/simulations/nope/output", "/v1/simulations/nope/events", "/v1/simulations/x/unknown"} {
		if rr := do(t, h, http.MethodGet, path, "", nil); rr.Code != http.StatusNotFound {
			t.Fatalf("%s: got %d", path, rr.Code)
		}
	}
	if rr := do(t, h, http.MethodDelete, "/v1/simulations", "", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete: got %d", rr.Code)
	}
}

func TestOutputConflictWhileRunning(t *testing.T) {
	s := newTestServer(t)
	_ = s.Store.SaveRun(context.Background(), model.Run{ID: "r-running", Status: model.RunRunning})
	rr := do(t, s.Routes(), http.MethodGet, "/v1/simulations/r-running/output", "", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("got %d", rr.Code)
	}
}

func TestListSimulations(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	for i := 0; i < 3; i++ {
		if rr := do(t, h, http.MethodPost, "/v1/simulations?sync=true", "text/plain", []byte(exampleInstance)); rr.Code != 200 {
			t.Fatalf("create: %d", rr.Code)
		}
	}
	rr := do(t, h, http.MethodGet, "/v1/simulations?limit=2", "", nil)
	if rr.Code != 200 {
		t.Fatalf("list: %d", rr.Code)
	}
	var page struct {
		Items      []model.Run `json:"items"`
		NextCursor string      `json:"nextCursor"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("page 1: %+v", page)
	}
	rr = do(t, h, http.MethodGet, "/v1/simulations?limit=2&cursor="+page.NextCursor, "", nil)
	_ = json.Unmarshal(rr.Body.Bytes(), &page)
	if len(page.Items) != 1 || page.NextCursor != "" {
		t.Fatalf("page 2: %+v", page)
	}
	if rr := do(t, h, http.MethodGet, "/v1/simulations?limit=x", "", nil); rr.Code != 400 {
		t.Fatalf("bad limit: %d", rr.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateRPS = 0.001
	cfg.Server.RateBurst = 1
	s, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer s.Shutdown(context.Background())
	h := s.Routes()
	if rr := do(t, h, http.MethodGet, "/v1/simulations", "", nil); rr.Code != 200 {
		t.Fatalf("first: %d", rr.Code)
	}
	rr := do(t, h, http.MethodGet, "/v1/simulations", "", nil)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second: %d", rr.Code)
	}
	// probes bypass the limiter
	if rr := do(t, h, http.MethodGet, "/healthz", "", nil); rr.Code != 200 {
		t.Fatalf("healthz: %d", rr.Code)
	}
}

func TestDebugAndMetrics(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	rr := do(t, h, http.MethodGet, "/debug/info", "", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"build"`) {
		t.Fatalf("debug: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodGet, "/metrics", "", nil)
	body, _ := io.ReadAll(rr.Body)
	if rr.Code != 200 || !strings.Contains(string(body), "http_requests_total") {
		t.Fatalf("metrics: %d", rr.Code)
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/simulations":            "/v1/simulations",
		"/v1/simulations/abc":        "/v1/simulations/{id}",
		"/v1/simulations/abc/output": "/v1/simulations/{id}/output",
		"/v1/simulations/abc/events": "/v1/simulations/{id}/events",
		"/v1/simulations/abc/zzz":    "other",
		"/favicon.ico":               "other",
	}
	for in, want := range cases {
		if got := routeLabel(in); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProblemContentType(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.Routes(), http.MethodGet, "/v1/simulations/missing", "", nil)
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("content type %q", ct)
	}
}

func TestCreateSimulationOverLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Simulation.MaxVehicles = 5
	cfg.Simulation.MaxRides = 5
	s, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer s.Shutdown(context.Background())
	h := s.Routes()

	cases := []struct {
		name, ct string
		body     []byte
	}{
		{"json vehicles", "application/json", []byte(`{"instance":{"rows":1,"cols":1,"vehicles":4611686018427387904,"turns":1}}`)},
		{"text rides", "text/plain", []byte("1 1 1 9000000000000000 0 1\n")},
		{"text vehicles", "text/plain", []byte("1 1 2000000000 0 0 1\n")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/simulations", tc.ct, tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("got %d: %s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), "exceeds limits") {
				t.Fatalf("unexpected problem: %s", rr.Body.String())
			}
		})
	}
	if items, _, _ := s.Store.ListRuns(context.Background(), "", 10); len(items) != 0 {
		t.Fatalf("rejected requests must not create runs, got %d", len(items))
	}
}

func TestCreateSimulationPolicyCase(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.Routes(), http.MethodPost, "/v1/simulations?sync=true", "application/json", exampleJSON(t, map[string]any{"policy": "Nearest"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var run model.Run
	_ = json.Unmarshal(rr.Body.Bytes(), &run)
	if run.Policy != "nearest" || run.Status != model.RunCompleted {
		t.Fatalf("unexpected run: %+v", run)
	}
}
