package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/styleq/engine"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	eng, err := engine.New(engine.Config{Mode: engine.ModeSimulated})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { eng.Close() })

	ts := httptest.NewServer(New(eng, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestComputedEndToEnd(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, http.MethodPost, "/v1/markup",
		map[string]string{"html": `<div class="highlight">Hi</div>`})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("markup status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, http.MethodPost, "/v1/stylesheets",
		map[string]string{"css": `.highlight { color: red; }`})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("stylesheet status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, http.MethodPost, "/v1/computed",
		map[string]string{"selector": ".highlight", "property": "color"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("computed status = %d", resp.StatusCode)
	}
	var got computedResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ComputedValue != "rgb(255, 0, 0)" {
		t.Fatalf("computed_value = %q", got.ComputedValue)
	}
}

func TestComputedSelfContained(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, http.MethodPost, "/v1/computed", map[string]any{
		"html":     `<p id="p"></p>`,
		"css":      []string{`#p { color: #008000; }`},
		"selector": "#p",
		"property": "color",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got computedResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ComputedValue != "rgb(0, 128, 0)" {
		t.Fatalf("computed_value = %q", got.ComputedValue)
	}
	if !got.Simulated {
		t.Fatal("simulated flag not set")
	}
	if got.QueryID == "" {
		t.Fatal("query_id missing")
	}
}

func TestComputedAllStyles(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts, http.MethodPost, "/v1/markup",
		map[string]string{"html": `<span class="s"></span>`})
	postJSON(t, ts, http.MethodPost, "/v1/stylesheets",
		map[string]string{"css": `.s { display: block; }`})

	resp := postJSON(t, ts, http.MethodPost, "/v1/computed",
		map[string]any{"selector": ".s", "all": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got computedResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Styles["display"] != "block" {
		t.Fatalf("styles[display] = %q", got.Styles["display"])
	}
}

func TestComputedUnmatchedSelector(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts, http.MethodPost, "/v1/markup",
		map[string]string{"html": `<div></div>`})

	resp := postJSON(t, ts, http.MethodPost, "/v1/computed",
		map[string]string{"selector": ".absent", "property": "color"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	var got errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != "compute" {
		t.Fatalf("kind = %q, want compute", got.Kind)
	}
}

func TestComputedValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, http.MethodPost, "/v1/computed",
		map[string]string{"property": "color"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing selector: status = %d", resp.StatusCode)
	}

	resp = postJSON(t, ts, http.MethodPost, "/v1/computed",
		map[string]string{"selector": "div"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing property: status = %d", resp.StatusCode)
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/v1/computed", "application/json",
		strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEmptyStylesheetRejected(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, http.MethodPost, "/v1/stylesheets",
		map[string]string{"css": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" {
		t.Fatalf("status field = %v", got["status"])
	}
	if got["mode"] != "simulated" {
		t.Fatalf("mode field = %v", got["mode"])
	}
}
