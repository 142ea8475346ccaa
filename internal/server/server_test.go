package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"bonaso/internal/analytics"
	"bonaso/internal/config"
	"bonaso/internal/db"
	"bonaso/internal/domain"
	"bonaso/internal/events"
	"bonaso/internal/migrate"
	"bonaso/internal/repo"
)

type testServer struct {
	URL    string
	repo   repo.Repo
	task   int64
	record int64
	close  func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()

	org, err := r.InsertOrganization(ctx, "Org", nil)
	if err != nil {
		t.Fatalf("insert org: %v", err)
	}
	project, err := r.InsertProject(ctx, "Project", nil, "2025-01-01", "2025-12-31")
	if err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := r.LinkProjectOrg(ctx, project, org, nil); err != nil {
		t.Fatalf("link org: %v", err)
	}
	ind, err := r.InsertIndicator(ctx, domain.Indicator{
		Code: "API", Name: "Api indicator", Type: "integer",
		Category: domain.CategoryRespondent, AllowAggregate: true,
	})
	if err != nil {
		t.Fatalf("insert indicator: %v", err)
	}
	task, err := r.InsertTask(ctx, ind, project, org)
	if err != nil {
		t.Fatalf("insert task: %v", err)
	}
	resp, err := r.InsertRespondent(ctx, repo.RespondentSeed{UUID: "r-1", Sex: "Male"})
	if err != nil {
		t.Fatalf("insert respondent: %v", err)
	}
	rec, err := r.InsertInteraction(ctx, repo.InteractionSeed{
		RespondentID: resp, TaskID: task, Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("insert interaction: %v", err)
	}

	handler, err := New(Config{
		Engine:   analytics.New(r, config.Default()),
		Events:   events.Writer{DB: conn},
		BasePath: "/v1",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
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
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		repo:   r,
		task:   task,
		record: rec,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Actor-Id": "admin-1", "X-Actor-Role": domain.RoleAdmin}
}

func doReq(t *testing.T, method, url string, body io.Reader, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
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

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doReq(t, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", res.StatusCode)
	}
}

func TestAggregateRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	res, data := doReq(t, http.MethodGet, srv.URL+"/v1/indicators/1/aggregate", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestAggregateRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	res, data := doReq(t, http.MethodGet,
		srv.URL+"/v1/indicators/1/aggregate?dimensions=sex", nil, adminHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	var result analytics.Result
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	var total int64
	for _, b := range result.Buckets {
		total += b.Count
	}
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
}

func TestAggregateRejectsBadDate(t *testing.T) {
	srv := newTestServer(t)
	res, data := doReq(t, http.MethodGet,
		srv.URL+"/v1/indicators/1/aggregate?start=March+1st", nil, adminHeaders())
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
}

func TestExportCSV(t *testing.T) {
	srv := newTestServer(t)
	res, data := doReq(t, http.MethodGet,
		srv.URL+"/v1/indicators/1/export?dimensions=sex&pivot=sex&format=csv", nil, adminHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", res.StatusCode, data)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if len(data) == 0 {
		t.Fatal("empty csv body")
	}
}

func TestFlagLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	body := `{"entity_kind":"interaction","entity_id":` + strconv.FormatInt(srv.record, 10) + `,"reason":"typo"}`
	res, data := doReq(t, http.MethodPost, srv.URL+"/v1/flags", jsonBody(body), adminHeaders())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("raise status = %d: %s", res.StatusCode, data)
	}
	var flag domain.Flag
	if err := json.Unmarshal(data, &flag); err != nil {
		t.Fatalf("unmarshal flag: %v", err)
	}

	res, data = doReq(t, http.MethodGet, srv.URL+"/v1/indicators/1/aggregate", nil, adminHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("aggregate status = %d: %s", res.StatusCode, data)
	}
	var result analytics.Result
	_ = json.Unmarshal(data, &result)
	if len(result.Buckets) != 1 || result.Buckets[0].Count != 0 {
		t.Fatalf("flagged aggregate = %+v, want zero", result.Buckets)
	}

	res, data = doReq(t, http.MethodPost, srv.URL+"/v1/flags/"+flag.ID+"/resolve", nil, adminHeaders())
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", res.StatusCode, data)
	}
	res, data = doReq(t, http.MethodPost, srv.URL+"/v1/flags/"+flag.ID+"/resolve", nil, adminHeaders())
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second resolve status = %d: %s", res.StatusCode, data)
	}
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
