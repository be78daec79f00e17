package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/triage.report/internal/db"
	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/httputil"
)

// ModelVersionHeader carries the serving version on every /predict response.
const ModelVersionHeader = "X-Model-Version"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	ModelVersion string `json:"model_version"`
}

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	Prediction float64 `json:"prediction"`
}

// ModelResponse is the body of GET /api/model.
type ModelResponse struct {
	ModelVersion    string                 `json:"model_version"`
	Algorithm       string                 `json:"algorithm"`
	Seed            int64                  `json:"seed"`
	RMSEHoldout     float64                `json:"rmse_holdout"`
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`
	Features        []string               `json:"features"`
	RunID           string                 `json:"run_id"`
	CreatedAt       time.Time              `json:"created_at"`
	LoadedAt        time.Time              `json:"loaded_at"`
}

// VersionSummary is one entry of GET /api/versions.
type VersionSummary struct {
	ModelVersion string    `json:"model_version"`
	Algorithm    string    `json:"algorithm,omitempty"`
	RMSEHoldout  *float64  `json:"rmse_holdout,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	Serving      bool      `json:"serving"`
	Error        string    `json:"error,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	httputil.WriteJSONOK(w, HealthResponse{Status: "ok", ModelVersion: s.handle.Version()})
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	w.Header().Set(ModelVersionHeader, s.handle.Version())

	body := http.MaxBytesReader(w, r.Body, maxPredictBody)
	v, err := features.DecodeRequest(body)
	if err != nil {
		writeDecodeError(w, err)
		return
	}
	y, err := s.handle.Predict(v)
	switch {
	case errors.Is(err, features.ErrInvalidInput):
		writeDecodeError(w, err)
		return
	case err != nil:
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, PredictResponse{Prediction: y})
}

// classifyDecodeError maps a request decoding failure to a status: broken
// JSON is a 400, a well-formed object that breaks the feature contract is a
// 422, and an oversized body is a 413.
func classifyDecodeError(err error) (int, string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return http.StatusBadRequest, "malformed JSON body"
	}
	if errors.Is(err, features.ErrInvalidInput) {
		return http.StatusUnprocessableEntity, err.Error()
	}
	return http.StatusBadRequest, err.Error()
}

func writeDecodeError(w http.ResponseWriter, err error) {
	status, msg := classifyDecodeError(err)
	var fe *features.FieldError
	if status == http.StatusUnprocessableEntity && errors.As(err, &fe) {
		httputil.WriteFieldError(w, status, fe.Field, msg)
		return
	}
	httputil.WriteJSONError(w, status, msg)
}

func (s *Server) showModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	md := s.handle.Metadata()
	httputil.WriteJSONOK(w, ModelResponse{
		ModelVersion:    md.ModelVersion,
		Algorithm:       md.Algorithm,
		Seed:            md.Seed,
		RMSEHoldout:     md.Metrics.RMSEHoldout,
		Hyperparameters: md.Hyperparameters,
		Features:        md.Features,
		RunID:           md.RunID,
		CreatedAt:       md.CreatedAt,
		LoadedAt:        s.handle.LoadedAt(),
	})
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	versions, err := s.store.List()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list versions: %v", err))
		return
	}
	out := make([]VersionSummary, 0, len(versions))
	for _, v := range versions {
		sum := VersionSummary{ModelVersion: v, Serving: v == s.handle.Version()}
		md, err := s.store.LoadMetadata(v)
		if err != nil {
			sum.Error = err.Error()
		} else {
			rmse := md.Metrics.RMSEHoldout
			sum.Algorithm = md.Algorithm
			sum.RMSEHoldout = &rmse
			sum.CreatedAt = md.CreatedAt
		}
		out = append(out, sum)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.runs == nil {
		httputil.NotFound(w, "run ledger not configured")
		return
	}

	limit := 50 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.runs.ListRuns(r.Context(), r.URL.Query().Get("version"), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, db.RunsJSON(runs))
}
