// Package testutil provides shared test helpers and fixtures.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/triage.report/internal/features"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertJSONError checks that w holds a {"error": ...} body with status
// want whose message contains sub.
func AssertJSONError(t *testing.T, w *httptest.ResponseRecorder, want int, sub string) {
	t.Helper()
	AssertStatusCode(t, w.Code, want)
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q is not JSON: %v", w.Body.String(), err)
	}
	msg, ok := body["error"]
	if !ok {
		t.Fatalf("error body %q has no error key", w.Body.String())
	}
	if !strings.Contains(msg, sub) {
		t.Errorf("error = %q, want it to contain %q", msg, sub)
	}
}

// FeatureBody encodes v as a /predict request body.
func FeatureBody(t *testing.T, v features.Vector) string {
	t.Helper()
	b, err := json.Marshal(features.NewRequest(v))
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return string(b)
}
