package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metridex/metridex/pkg/corpus"
	"github.com/metridex/metridex/pkg/hoster"
	"github.com/metridex/metridex/pkg/queries/artistlookup"
	"github.com/metridex/metridex/pkg/queries/artistprefix"
)

// startTestServer boots a full server on the given address with the bundled
// queries registered over a small static corpus, and tears it down when the
// test finishes.
func startTestServer(t *testing.T, addr string, config *Config) *Server {
	t.Helper()

	source := corpus.StaticSource{
		{ID: 1, Name: "alice"},
		{ID: 2, Name: "alicia"},
		{ID: 3, Name: "bob"},
	}

	reg := hoster.NewRegistry(slog.Default())
	err := reg.RegisterAll(context.Background(),
		artistlookup.New(source, slog.Default()),
		artistprefix.New(source, slog.Default()),
	)
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewServer(reg, addr, config)
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error)
	go func() {
		errCh <- s.Run()
	}()

	time.Sleep(500 * time.Millisecond)

	t.Cleanup(func() {
		s.Shutdown()
		if err := <-errCh; err != nil {
			t.Errorf("server exited with error: %v", err)
		}
	})

	return s
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthzAndAdminAuth(t *testing.T) {
	startTestServer(t, ":9092", &Config{AuthToken: "test-secret-token"})

	resp, err := http.Get("http://localhost:9092/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("healthz expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get("http://localhost:9092/admin/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("protected expected 401, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest("GET", "http://localhost:9092/admin/stats", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Add("Authorization", "Bearer test-secret-token")

	client := &http.Client{}
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("protected with token expected 200, got %d", resp.StatusCode)
	}
}

func TestQueryListing(t *testing.T) {
	startTestServer(t, ":9093", nil)

	var entries []struct {
		Slug  string `json:"slug"`
		Name  string `json:"name"`
		Links struct {
			JSON   string `json:"json"`
			Schema string `json:"schema"`
		} `json:"links"`
	}
	if status := getJSON(t, "http://localhost:9093/", &entries); status != 200 {
		t.Fatalf("listing expected 200, got %d", status)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 queries in listing, got %d", len(entries))
	}
	if entries[0].Slug != "artist-lookup" || entries[1].Slug != "artist-prefix" {
		t.Errorf("unexpected listing order: %s, %s", entries[0].Slug, entries[1].Slug)
	}
	if entries[0].Links.JSON != "/artist-lookup/json" {
		t.Errorf("unexpected json link: %s", entries[0].Links.JSON)
	}
	if entries[0].Links.Schema != "/artist-lookup/schema" {
		t.Errorf("unexpected schema link: %s", entries[0].Links.Schema)
	}
}

func TestQueryJSONGet(t *testing.T) {
	startTestServer(t, ":9094", nil)

	var records []map[string]any
	status := getJSON(t, "http://localhost:9094/artist-lookup/json?name=alice&distance=2", &records)
	if status != 200 {
		t.Fatalf("fetch expected 200, got %d", status)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d: %v", len(records), records)
	}
	if records[0]["name"] != "alice" || records[1]["name"] != "alicia" {
		t.Errorf("unexpected match order: %v", records)
	}
	// JSON numbers decode as float64.
	if records[0]["distance"] != float64(0) || records[1]["distance"] != float64(2) {
		t.Errorf("unexpected distances: %v", records)
	}

	// Pagination arguments belong to POST.
	if status := getJSON(t, "http://localhost:9094/artist-lookup/json?name=alice&distance=2&offset=1", nil); status != 400 {
		t.Errorf("GET with offset expected 400, got %d", status)
	}
	if status := getJSON(t, "http://localhost:9094/artist-lookup/json?name=alice&distance=2&count=5", nil); status != 400 {
		t.Errorf("GET with count expected 400, got %d", status)
	}

	// Adapter errors map onto status codes.
	if status := getJSON(t, "http://localhost:9094/artist-lookup/json?name=alice", nil); status != 400 {
		t.Errorf("missing distance expected 400, got %d", status)
	}
	if status := getJSON(t, "http://localhost:9094/artist-lookup/json?name=alice&distance=-1", nil); status != 400 {
		t.Errorf("negative distance expected 400, got %d", status)
	}
	if status := getJSON(t, "http://localhost:9094/no-such-query/json?name=alice", nil); status != 404 {
		t.Errorf("unknown slug expected 404, got %d", status)
	}
}

func TestQueryJSONPost(t *testing.T) {
	startTestServer(t, ":9095", nil)

	// Two parameter sets, records concatenated in input order.
	body := []map[string]string{
		{"name": "bob", "distance": "0"},
		{"name": "alice", "distance": "2"},
	}
	var records []map[string]any
	if status := postJSON(t, "http://localhost:9095/artist-lookup/json", body, &records); status != 200 {
		t.Fatalf("batch fetch expected 200, got %d", status)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(records), records)
	}
	if records[0]["name"] != "bob" || records[1]["name"] != "alice" || records[2]["name"] != "alicia" {
		t.Errorf("unexpected record order: %v", records)
	}

	// The window applies to each parameter set.
	records = nil
	url := "http://localhost:9095/artist-lookup/json?offset=1&count=1"
	if status := postJSON(t, url, []map[string]string{{"name": "alice", "distance": "2"}}, &records); status != 200 {
		t.Fatalf("windowed fetch expected 200, got %d", status)
	}
	if len(records) != 1 || records[0]["name"] != "alicia" {
		t.Errorf("expected only alicia in window, got %v", records)
	}

	// Offset past the end yields an empty array, not an error.
	records = nil
	url = "http://localhost:9095/artist-lookup/json?offset=50"
	if status := postJSON(t, url, []map[string]string{{"name": "alice", "distance": "2"}}, &records); status != 200 {
		t.Fatalf("past-end fetch expected 200, got %d", status)
	}
	if len(records) != 0 {
		t.Errorf("expected empty result past the end, got %v", records)
	}

	// Malformed bodies and windows.
	if status := postJSON(t, "http://localhost:9095/artist-lookup/json", map[string]string{"name": "alice"}, nil); status != 400 {
		t.Errorf("non-array body expected 400, got %d", status)
	}
	if status := postJSON(t, "http://localhost:9095/artist-lookup/json", []map[string]string{}, nil); status != 400 {
		t.Errorf("empty array expected 400, got %d", status)
	}
	if status := postJSON(t, "http://localhost:9095/artist-lookup/json?offset=-1", body, nil); status != 400 {
		t.Errorf("negative offset expected 400, got %d", status)
	}
	if status := postJSON(t, "http://localhost:9095/artist-lookup/json?count=abc", body, nil); status != 400 {
		t.Errorf("non-numeric count expected 400, got %d", status)
	}
}

func TestQuerySchema(t *testing.T) {
	startTestServer(t, ":9096", nil)

	var schema struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if status := getJSON(t, "http://localhost:9096/artist-lookup/schema", &schema); status != 200 {
		t.Fatalf("schema expected 200, got %d", status)
	}

	if schema.Type != "object" {
		t.Errorf("expected object schema, got %q", schema.Type)
	}
	for _, input := range []string{"name", "distance"} {
		if _, ok := schema.Properties[input]; !ok {
			t.Errorf("schema is missing property %q", input)
		}
	}
	if len(schema.Required) != 2 {
		t.Errorf("expected 2 required inputs, got %v", schema.Required)
	}

	if status := getJSON(t, "http://localhost:9096/no-such-query/schema", nil); status != 404 {
		t.Errorf("unknown slug expected 404, got %d", status)
	}
}

func TestCORSHeaders(t *testing.T) {
	startTestServer(t, ":9097", nil)

	req, err := http.NewRequest(http.MethodOptions, "http://localhost:9097/artist-lookup/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", got)
	}

	resp, err = http.Get("http://localhost:9097/artist-lookup/json?name=alice&distance=0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS header on GET response, got %q", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	startTestServer(t, ":9098", nil)

	resp, err := http.Get("http://localhost:9098/artist-lookup/json?name=alice&distance=0")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected a generated X-Request-Id header")
	}

	req, err := http.NewRequest("GET", "http://localhost:9098/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-Id", "caller-supplied")
	client := &http.Client{}
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	// healthz bypasses the middleware chain, so no echo is expected there.

	req, err = http.NewRequest("GET", "http://localhost:9098/", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Request-Id", "caller-supplied")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-Id"); got != "caller-supplied" {
		t.Errorf("expected caller-supplied request ID to be echoed, got %q", got)
	}
}

func TestAdminReloadAndTasks(t *testing.T) {
	startTestServer(t, ":9099", nil)

	var accepted taskAcceptedResponse
	if status := postJSON(t, "http://localhost:9099/admin/reload/artist-lookup", nil, &accepted); status != http.StatusAccepted {
		t.Fatalf("reload expected 202, got %d", status)
	}
	if accepted.TaskID == "" {
		t.Fatal("expected a task ID")
	}

	// Wait for the background reload to finish (with timeout).
	taskURL := fmt.Sprintf("http://localhost:9099/admin/tasks/%s", accepted.TaskID)
	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for done := false; !done; {
		select {
		case <-timeout:
			t.Fatal("timeout: reload task did not complete within 5 seconds")
		case <-ticker.C:
			var view TaskView
			if status := getJSON(t, taskURL, &view); status != 200 {
				t.Fatalf("task lookup expected 200, got %d", status)
			}
			switch view.Status {
			case TaskStatusCompleted:
				done = true
			case TaskStatusFailed:
				t.Fatalf("reload task failed: %s", view.Error)
			}
		}
	}

	var views []TaskView
	if status := getJSON(t, "http://localhost:9099/admin/tasks", &views); status != 200 {
		t.Fatalf("task listing expected 200, got %d", status)
	}
	if len(views) != 1 || views[0].ID != accepted.TaskID {
		t.Errorf("unexpected task listing: %v", views)
	}

	// Queries keep answering across reloads.
	var records []map[string]any
	if status := getJSON(t, "http://localhost:9099/artist-lookup/json?name=alice&distance=0", &records); status != 200 {
		t.Fatalf("fetch after reload expected 200, got %d", status)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record after reload, got %v", records)
	}

	if status := postJSON(t, "http://localhost:9099/admin/reload/no-such-query", nil, nil); status != 404 {
		t.Errorf("reload of unknown slug expected 404, got %d", status)
	}
}

func TestRefreshServiceRejectsBadSchedules(t *testing.T) {
	source := corpus.StaticSource{{ID: 1, Name: "alice"}}
	reg := hoster.NewRegistry(slog.Default())
	if err := reg.Register(context.Background(), artistlookup.New(source, slog.Default())); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		config RefreshConfig
	}{
		{"unparseable interval", RefreshConfig{Query: "artist-lookup", Interval: "soon"}},
		{"zero interval", RefreshConfig{Query: "artist-lookup", Interval: "0s"}},
		{"unknown query", RefreshConfig{Query: "nope", Interval: "1m"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewServer(reg, ":0", &Config{Refresh: []RefreshConfig{tc.config}})
			if err == nil {
				t.Error("expected server construction to fail")
			}
		})
	}
}

func TestRefresherRebuildsPeriodically(t *testing.T) {
	source := &countingSource{artists: corpus.DemoArtists()}
	reg := hoster.NewRegistry(slog.Default())
	if err := reg.Register(context.Background(), artistlookup.New(source, slog.Default())); err != nil {
		t.Fatal(err)
	}
	loadsAfterSetup := source.loads.Load()

	config := &Config{Refresh: []RefreshConfig{{Query: "artist-lookup", Interval: "50ms"}}}
	s, err := NewServer(reg, ":9100", config)
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error)
	go func() {
		errCh <- s.Run()
	}()

	// Wait for a few ticks (with timeout).
	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for done := false; !done; {
		select {
		case <-timeout:
			t.Fatal("timeout: refresher never rebuilt the index")
		case <-ticker.C:
			if source.loads.Load() >= loadsAfterSetup+2 {
				done = true
			}
		}
	}

	s.Shutdown()
	if err := <-errCh; err != nil {
		t.Errorf("server exited with error: %v", err)
	}
}

// countingSource counts Load calls so tests can observe refresher activity.
type countingSource struct {
	artists []corpus.Artist
	loads   atomic.Int64
}

func (cs *countingSource) Load(ctx context.Context) ([]corpus.Artist, error) {
	cs.loads.Add(1)
	return cs.artists, nil
}
