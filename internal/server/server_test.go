package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"pulseboard/internal/config"
	"pulseboard/internal/db"
	"pulseboard/internal/domain"
	"pulseboard/internal/engine"
	"pulseboard/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("pulseboard")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

var actorHeaders = map[string]string{"X-Actor-Id": "tester"}

func TestHealthRouteOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	var report domain.HealthReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Score != 90 || report.Status != "green" {
		t.Fatalf("report %d %s", report.Score, report.Status)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "alice",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("empty token")
	}

	meRes, meData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", meRes.StatusCode, string(meData))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(meData, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.ActorID != "alice" || who.Source != "jwt" {
		t.Fatalf("who %+v", who)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/classify", map[string]any{
		"text":     "I'm blocked by the release pipeline and @sam should take a look",
		"username": "bob",
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("classify status %d: %s", res.StatusCode, string(data))
	}
	var analysis domain.Analysis
	if err := json.Unmarshal(data, &analysis); err != nil {
		t.Fatalf("unmarshal analysis: %v", err)
	}
	if len(analysis.Blockers) != 1 {
		t.Fatalf("blockers %+v", analysis.Blockers)
	}
	if len(analysis.Actions) != 2 {
		t.Fatalf("actions %+v", analysis.Actions)
	}
}

func TestMessageFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/messages", map[string]any{
		"username": "bob",
		"content":  "We're stuck on the database migration",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("post message status %d: %s", res.StatusCode, string(data))
	}
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.Analysis == nil || len(msg.Analysis.Blockers) != 1 {
		t.Fatalf("analysis %+v", msg.Analysis)
	}

	listRes, listData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/messages", nil, actorHeaders)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", listRes.StatusCode, string(listData))
	}
	var list MessageListResponse
	if err := json.Unmarshal(listData, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != msg.ID {
		t.Fatalf("list %+v", list)
	}

	healthRes, healthData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", healthRes.StatusCode)
	}
	var report domain.HealthReport
	if err := json.Unmarshal(healthData, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Details.ActiveBlockers != 1 {
		t.Fatalf("active blockers %d", report.Details.ActiveBlockers)
	}
}

func TestTaskEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":  "Ship feature",
		"status": "backlog",
	}, actorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("legacy status not normalized: %s", created.Status)
	}

	patchRes, patchData := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID, map[string]any{
		"status":   "in_progress",
		"progress": 30,
	}, actorHeaders)
	if patchRes.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", patchRes.StatusCode, string(patchData))
	}
	var updated domain.Task
	_ = json.Unmarshal(patchData, &updated)
	if updated.Status != domain.StatusInProgress || updated.Progress != 30 {
		t.Fatalf("updated %+v", updated)
	}

	badRes, badData := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+created.ID, map[string]any{
		"status": "archived",
	}, actorHeaders)
	if badRes.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", badRes.StatusCode, string(badData))
	}

	missingRes, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/nope", nil, actorHeaders)
	if missingRes.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missingRes.StatusCode)
	}
}

func TestNextStepFallback(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/next-step", map[string]any{
		"task_title": "Implement auth flow",
		"progress":   90,
		"blockers":   []string{},
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("next-step status %d: %s", res.StatusCode, string(data))
	}
	var step domain.NextStep
	if err := json.Unmarshal(data, &step); err != nil {
		t.Fatalf("unmarshal step: %v", err)
	}
	if step.Source != "fallback" {
		t.Fatalf("source %s", step.Source)
	}
	if step.Next != "Update stakeholders on progress" {
		t.Fatalf("next %q", step.Next)
	}
}

func TestBadgesEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	classifyRes, classifyData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/classify", map[string]any{
		"text": "waiting for design review, there's a bug in checkout",
	}, actorHeaders)
	if classifyRes.StatusCode != http.StatusOK {
		t.Fatalf("classify status %d", classifyRes.StatusCode)
	}
	var analysis domain.Analysis
	_ = json.Unmarshal(classifyData, &analysis)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/badges", map[string]any{
		"analysis": analysis,
	}, actorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("badges status %d: %s", res.StatusCode, string(data))
	}
	var badges []domain.Badge
	if err := json.Unmarshal(data, &badges); err != nil {
		t.Fatalf("unmarshal badges: %v", err)
	}
	if len(badges) != 2 {
		t.Fatalf("badges %+v", badges)
	}
	if badges[0].Type != "blocker" || badges[1].Type != "risk" {
		t.Fatalf("badge order %+v", badges)
	}
}
