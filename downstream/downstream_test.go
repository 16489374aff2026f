package downstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type entity struct {
	ResCode    *int   `json:"resCode"`
	EntityInfo string `json:"EntityInfo"`
	Amount     float64
}

type received struct {
	method      string
	uri         string
	body        string
	accept      string
	contentType string
	correlation string
}

func newService(t *testing.T, status int, reply string) (*httptest.Server, *received) {
	t.Helper()
	got := &received{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.uri = r.URL.RequestURI()
		got.body = string(buf)
		got.accept = r.Header.Get("Accept")
		got.contentType = r.Header.Get("Content-Type")
		got.correlation = r.Header.Get(CorrelationHeader)
		w.WriteHeader(status)
		io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: base})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return c
}

func TestBuildURL(t *testing.T) {
	table := []struct {
		base     string
		endpoint string
		want     string
	}{
		{"http://api.example.com", "entity/action?page=1", "http://api.example.com/entity/action?page=1"},
		{"http://api.example.com", "/entity/action?page=1", "http://api.example.com/entity/action?page=1"},
		{"http://api.example.com/", "/entity/action?page=1", "http://api.example.com/entity/action?page=1"},
		{"http://api.example.com/v1", "entity/action", "http://api.example.com/v1/entity/action"},
		{"http://api.example.com/v1/", "/entity/action", "http://api.example.com/v1/entity/action"},
	}

	for _, data := range table {
		c := newTestClient(t, data.base)
		got, err := c.BuildURL(data.endpoint)
		if err != nil {
			t.Errorf("base=%s endpoint=%s: %v", data.base, data.endpoint, err)
			continue
		}
		if got != data.want {
			t.Errorf("base=%s endpoint=%s: got %s, want %s", data.base, data.endpoint, got, data.want)
		}
	}
}

func TestLeadingSlashIdentical(t *testing.T) {
	c := newTestClient(t, "http://api.example.com/base/")
	a, _ := c.BuildURL("entity/action?page=1")
	b, _ := c.BuildURL("/entity/action?page=1")
	if a != b {
		t.Errorf("leading slash changed uri: %s != %s", a, b)
	}
}

func TestNewBadBaseURL(t *testing.T) {
	for _, bad := range []string{"", "no-scheme", "http://%zz"} {
		if _, err := New(Options{BaseURL: bad}); err == nil {
			t.Errorf("unexpected success for base url: %q", bad)
		}
	}
}

func TestGetSuccess(t *testing.T) {
	srv, got := newService(t, http.StatusOK,
		`{"rescode":0,"message":"ok","entityinfo":"info-1","amount":12.5}`)

	c := newTestClient(t, srv.URL)

	result, err := Get[entity](context.TODO(), c, "/entity/action?page=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if result.StatusCode != 200 {
		t.Errorf("unexpected status: %d", result.StatusCode)
	}
	if result.Data == nil {
		t.Fatalf("missing data")
	}
	if result.Data.EntityInfo != "info-1" {
		t.Errorf("case-insensitive decoding failed: %+v", result.Data)
	}
	if result.Data.Amount != 12.5 {
		t.Errorf("unexpected amount: %v", result.Data.Amount)
	}
	if result.Data.ResCode == nil || *result.Data.ResCode != 0 {
		t.Errorf("unexpected resCode: %v", result.Data.ResCode)
	}
	if result.RawBody == "" {
		t.Errorf("raw body must be captured on success")
	}
	if got.method != http.MethodGet {
		t.Errorf("unexpected method: %s", got.method)
	}
	if got.uri != "/entity/action?page=1" {
		t.Errorf("unexpected uri: %s", got.uri)
	}
	if got.accept != "application/json" {
		t.Errorf("unexpected accept: %s", got.accept)
	}
}

func TestGetEmptyBody(t *testing.T) {
	for _, reply := range []string{"", "  \n"} {
		srv, _ := newService(t, http.StatusOK, reply)
		c := newTestClient(t, srv.URL)

		result, err := Get[entity](context.TODO(), c, "entity/action?page=1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if result.Data != nil {
			t.Errorf("data must be absent for blank body: %+v", result.Data)
		}
		if result.RawBody != reply {
			t.Errorf("unexpected raw body: %q", result.RawBody)
		}
		if result.StatusCode != 200 {
			t.Errorf("unexpected status: %d", result.StatusCode)
		}
	}
}

func TestGetFailureKeepsRawBody(t *testing.T) {
	srv, _ := newService(t, http.StatusNotFound, `{"resCode":404,"message":"no such page"}`)
	c := newTestClient(t, srv.URL)

	result, err := Get[entity](context.TODO(), c, "entity/action?page=99")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if result.Data != nil {
		t.Errorf("data must be absent on failure: %+v", result.Data)
	}
	if result.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected status: %d", result.StatusCode)
	}
	if result.RawBody != `{"resCode":404,"message":"no such page"}` {
		t.Errorf("unexpected raw body: %q", result.RawBody)
	}
	if result.IsSuccess() {
		t.Errorf("404 is not success")
	}
}

func TestGetMalformedBody(t *testing.T) {
	srv, _ := newService(t, http.StatusOK, `{invalid json}`)
	c := newTestClient(t, srv.URL)

	result, err := Get[entity](context.TODO(), c, "entity/action")
	if err == nil {
		t.Errorf("expected decode error")
	}
	if result.StatusCode != 200 || result.RawBody != `{invalid json}` {
		t.Errorf("status and raw body must survive decode error: %+v", result)
	}
}

func TestPost(t *testing.T) {
	srv, got := newService(t, http.StatusCreated, `{"EntityInfo":"created"}`)
	c := newTestClient(t, srv.URL)

	type request struct {
		Name string `json:"name"`
	}

	result, err := Post[entity](context.TODO(), c, "/entity", request{Name: "n1"})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if result.Data == nil || result.Data.EntityInfo != "created" {
		t.Errorf("unexpected data: %+v", result.Data)
	}
	if got.method != http.MethodPost {
		t.Errorf("unexpected method: %s", got.method)
	}
	if got.contentType != "application/json" {
		t.Errorf("unexpected content type: %s", got.contentType)
	}
	var sent request
	if err := json.Unmarshal([]byte(got.body), &sent); err != nil || sent.Name != "n1" {
		t.Errorf("unexpected sent body: %q", got.body)
	}
}

func TestPostEncodeError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	if _, err := Post[entity](context.TODO(), c, "entity", make(chan int)); err == nil {
		t.Errorf("expected encode error")
	}
}

func TestTransportError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	if _, err := Get[entity](context.TODO(), c, "entity"); err == nil {
		t.Errorf("expected transport error")
	}
}

func TestCorrelationIDPropagation(t *testing.T) {
	srv, got := newService(t, http.StatusOK, `{}`)
	c := newTestClient(t, srv.URL)

	ctx := WithCorrelationID(context.Background(), "corr-1")
	if _, err := Get[entity](ctx, c, "entity"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.correlation != "corr-1" {
		t.Errorf("unexpected correlation header: %q", got.correlation)
	}

	if _, err := Get[entity](context.Background(), c, "entity"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.correlation != "" {
		t.Errorf("unexpected correlation header without id: %q", got.correlation)
	}
}
