// Package serving holds the read-only model handles a serving process
// shares across requests.
package serving

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/triage.report/internal/artifact"
	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/inference"
	"github.com/banshee-data/triage.report/internal/model"
	"github.com/banshee-data/triage.report/internal/monitoring"
	"github.com/banshee-data/triage.report/internal/timeutil"
)

// Handle is one loaded model version. It is immutable after construction
// and safe for concurrent use.
type Handle struct {
	pipeline *model.Pipeline
	metadata artifact.Metadata
	loadedAt time.Time
}

// NewHandle wraps an already loaded pipeline.
func NewHandle(p *model.Pipeline, md *artifact.Metadata, loadedAt time.Time) *Handle {
	return &Handle{pipeline: p, metadata: *md, loadedAt: loadedAt}
}

// Version returns the model version the handle serves.
func (h *Handle) Version() string { return h.metadata.ModelVersion }

// Metadata returns a copy of the stored metadata.
func (h *Handle) Metadata() artifact.Metadata { return h.metadata }

// LoadedAt reports when the artifact was read.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

// Model returns the loaded pipeline.
func (h *Handle) Model() model.PredictiveModel { return h.pipeline }

// Predict runs the inference contract against the handle's pipeline.
func (h *Handle) Predict(v features.Vector) (float64, error) {
	return inference.Predict(h.pipeline, v)
}

// Loader loads each version from a store at most once and caches it for
// the process lifetime. Concurrent first requests for a version share one
// load. Failed loads are not cached.
type Loader struct {
	store *artifact.Store
	clock timeutil.Clock

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*Handle
	loads int
}

// NewLoader returns a Loader reading from store.
func NewLoader(store *artifact.Store) *Loader {
	return &Loader{store: store, clock: timeutil.RealClock{}, cache: make(map[string]*Handle)}
}

// Store returns the underlying artifact store.
func (l *Loader) Store() *artifact.Store { return l.store }

// Get returns the handle for version, loading it on first use.
func (l *Loader) Get(version string) (*Handle, error) {
	l.mu.RLock()
	h, ok := l.cache[version]
	l.mu.RUnlock()
	if ok {
		return h, nil
	}

	v, err, _ := l.group.Do(version, func() (interface{}, error) {
		l.mu.RLock()
		h, ok := l.cache[version]
		l.mu.RUnlock()
		if ok {
			return h, nil
		}

		p, md, err := l.store.Load(version)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", version, err)
		}
		h = NewHandle(p, md, l.clock.Now())
		l.mu.Lock()
		l.cache[version] = h
		l.loads++
		l.mu.Unlock()
		monitoring.Logf("serving: loaded model %s (%s, run %s)", version, md.Algorithm, md.RunID)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Loaded lists the versions currently cached.
func (l *Loader) Loaded() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.cache))
	for v := range l.cache {
		out = append(out, v)
	}
	return out
}

// Loads reports how many artifact reads have succeeded.
func (l *Loader) Loads() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loads
}
