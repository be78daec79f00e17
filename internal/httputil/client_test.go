package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func newRequest(t *testing.T, method, url, body string) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func TestNewStandardClient(t *testing.T) {
	custom := &http.Client{}
	if got := NewStandardClient(custom); got != custom {
		t.Error("expected custom client to be returned")
	}
	def, ok := NewStandardClient(nil).(*http.Client)
	if !ok {
		t.Fatal("expected *http.Client for nil input")
	}
	if def.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", def.Timeout, defaultTimeout)
	}
}

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"status":"ok"}`)
	mock.AddResponseWithHeaders(http.StatusUnprocessableEntity, `{"error":"sex: is required"}`,
		http.Header{"X-Model-Version": []string{"v0.3"}})

	resp, err := mock.Do(newRequest(t, http.MethodGet, "http://example.com/health", ""))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != `{"status":"ok"}` {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}

	resp, err = mock.Do(newRequest(t, http.MethodPost, "http://example.com/predict", `{"age":1}`))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("got status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Model-Version") != "v0.3" {
		t.Errorf("header not replayed: %v", resp.Header)
	}

	if mock.RequestCount() != 2 {
		t.Errorf("got %d requests, want 2", mock.RequestCount())
	}
	if got := mock.GetBody(1); got != `{"age":1}` {
		t.Errorf("recorded body = %q", got)
	}
	if got := mock.GetRequest(0).URL.Path; got != "/health" {
		t.Errorf("first request path = %q", got)
	}
	if mock.GetRequest(5) != nil || mock.GetBody(-1) != "" {
		t.Error("out of range lookups should be empty")
	}
}

func TestMockHTTPClient_Errors(t *testing.T) {
	wantErr := errors.New("connection refused")
	mock := NewMockHTTPClient().AddErrorResponse(wantErr)
	if _, err := mock.Do(newRequest(t, http.MethodGet, "http://example.com/", "")); err != wantErr {
		t.Errorf("got error %v, want %v", err, wantErr)
	}

	mock = NewMockHTTPClient()
	mock.DefaultError = wantErr
	if _, err := mock.Do(newRequest(t, http.MethodGet, "http://example.com/", "")); err != wantErr {
		t.Errorf("got error %v, want %v", err, wantErr)
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTeapot,
			Body:       io.NopCloser(strings.NewReader("custom")),
			Request:    req,
		}, nil
	}

	resp, err := mock.Do(newRequest(t, http.MethodGet, "http://example.com/api", ""))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusTeapot)
	}
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	resp, err := mock.Do(newRequest(t, http.MethodGet, "http://example.com/", ""))
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want 200", resp.StatusCode)
	}
}
