package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the ledger's debug pages on mux under /debug/:
// a live SQL console, a JSON listing of recent runs and a gzipped backup
// download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Training ledger",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("runs", "Recent training runs as JSON", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		runs, err := db.ListRuns(r.Context(), r.URL.Query().Get("version"), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RunsJSON(runs))
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("ledger-backup-%d.db", time.Now().UnixNano()))
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")
		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			log.Printf("Failed to write backup file: %v", err)
		}
	}))
}

// RunJSON is the wire form of a RunRecord.
type RunJSON struct {
	RunID        string   `json:"run_id"`
	ModelVersion string   `json:"model_version"`
	Algorithm    string   `json:"algorithm"`
	Seed         int64    `json:"seed"`
	RMSEHoldout  float64  `json:"rmse_holdout"`
	CVBestRMSE   *float64 `json:"cv_best_rmse,omitempty"`
	NTrain       int      `json:"n_train"`
	NHoldout     int      `json:"n_holdout"`
	DatasetPath  string   `json:"dataset_path,omitempty"`
	DurationMS   int64    `json:"duration_ms"`
	CreatedAt    string   `json:"created_at"`
}

// RunsJSON converts records to their wire form. It never returns nil.
func RunsJSON(runs []RunRecord) []RunJSON {
	out := make([]RunJSON, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunJSON{
			RunID:        r.RunID,
			ModelVersion: r.ModelVersion,
			Algorithm:    r.Algorithm,
			Seed:         r.Seed,
			RMSEHoldout:  r.RMSEHoldout,
			CVBestRMSE:   r.CVBestRMSE,
			NTrain:       r.NTrain,
			NHoldout:     r.NHoldout,
			DatasetPath:  r.DatasetPath,
			DurationMS:   r.Duration.Milliseconds(),
			CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
