package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/fsutil"
)

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	w.WriteHeader(http.StatusUnprocessableEntity)
	w.WriteString(`{"error":"invalid input: field \"sex\" is required"}`)
	AssertJSONError(t, w, http.StatusUnprocessableEntity, "sex")
}

func TestFeatureBody(t *testing.T) {
	var v features.Vector
	for i := range v {
		v[i] = float64(i) / 10
	}
	body := FeatureBody(t, v)

	var m map[string]float64
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m) != features.Count {
		t.Fatalf("got %d fields, want %d", len(m), features.Count)
	}
	if m["s6"] != 0.9 {
		t.Errorf("s6 = %v, want 0.9", m["s6"])
	}
}

func TestSaveLinearArtifact(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.MkdirAll("/m", 0o755); err != nil {
		t.Fatal(err)
	}
	store := artifact.NewStoreFS("/m", fsys)
	p, md := SaveLinearArtifact(t, store, "v0.1", 2)

	loaded, lmd, err := store.Load("v0.1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lmd.RunID != md.RunID {
		t.Errorf("run id = %q, want %q", lmd.RunID, md.RunID)
	}
	var v features.Vector
	if got, want := loaded.Predict(v), p.Predict(v); got != want {
		t.Errorf("prediction = %v, want %v", got, want)
	}
}
