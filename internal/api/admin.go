package api

import (
	"net/http"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/triage.report/internal/httputil"
	"github.com/banshee-data/triage.report/internal/version"
)

// AttachAdminRoutes adds the serving process's entries to the /debug/ index.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KV("Build", version.String())
	debug.KVFunc("Model version", func() any { return s.handle.Version() })
	debug.KVFunc("Model loaded", func() any { return s.handle.LoadedAt().UTC().Format(time.RFC3339) })

	debug.HandleFunc("model", "Loaded model metadata as JSON", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.handle.Metadata())
	})
}
