// Package artifact persists fitted pipelines and their metadata in a
// version-keyed directory tree:
//
//	<root>/<version>/model.bin     xz-compressed gob of the pipeline
//	<root>/<version>/metrics.json  Metadata
//
// Each file is replaced by write-to-temp-then-rename, and both carry the same
// run id, so a reader observes either the previous artifact or the new one.
package artifact

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ulikunitz/xz"

	"github.com/banshee-data/triage.report/internal/features"
	"github.com/banshee-data/triage.report/internal/fsutil"
	"github.com/banshee-data/triage.report/internal/model"
	"github.com/banshee-data/triage.report/internal/monitoring"
	"github.com/banshee-data/triage.report/internal/security"
)

// File names inside a version directory.
const (
	BlobFile     = "model.bin"
	MetadataFile = "metrics.json"
)

var (
	// ErrArtifactNotFound means the version has no pipeline blob or no
	// metadata record.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrMetadataMismatch means the stored files disagree with the version
	// key, with each other, or with the feature contract.
	ErrMetadataMismatch = errors.New("artifact metadata mismatch")
)

// envelope is the gob payload inside model.bin.
type envelope struct {
	Version  string
	RunID    string
	Features []string
	Pipeline *model.Snapshot
}

// Store reads and writes artifacts under a root directory.
type Store struct {
	root string
	fs   fsutil.FileSystem
}

// NewStore returns a Store on the OS filesystem.
func NewStore(root string) *Store {
	return NewStoreFS(root, fsutil.OSFileSystem{})
}

// NewStoreFS returns a Store on an arbitrary filesystem.
func NewStoreFS(root string, fsys fsutil.FileSystem) *Store {
	return &Store{root: filepath.Clean(root), fs: fsys}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory for version after validating it.
func (s *Store) Dir(version string) (string, error) {
	if err := security.ValidateVersion(version); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, version)
	if _, ok := s.fs.(fsutil.OSFileSystem); ok {
		if err := security.ValidatePathWithinDirectory(dir, s.root); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// Save writes pipeline and metadata for version, replacing any previous
// artifact. md.ModelVersion must equal version; an empty md.RunID is filled
// with a fresh UUID.
func (s *Store) Save(version string, p *model.Pipeline, md *Metadata) error {
	dir, err := s.Dir(version)
	if err != nil {
		return err
	}
	if md.ModelVersion != version {
		return fmt.Errorf("%w: refusing to store metadata for %q under %q", ErrMetadataMismatch, md.ModelVersion, version)
	}
	if md.RunID == "" {
		md.RunID = uuid.NewString()
	}
	if md.Features == nil {
		md.Features = features.NameList()
	}
	if err := md.Validate(); err != nil {
		return err
	}

	blob, err := encodeBlob(&envelope{
		Version:  version,
		RunID:    md.RunID,
		Features: md.Features,
		Pipeline: p.Snapshot(),
	})
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	meta, err := md.MarshalIndent()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	if err := s.commit(dir, map[string][]byte{BlobFile: blob, MetadataFile: meta}); err != nil {
		return err
	}
	monitoring.Logf("artifact: saved %s (run %s, %d byte blob)", version, md.RunID, len(blob))
	return nil
}

// commitOrder puts the blob before the metadata so List never reports a
// version whose blob has not landed yet.
var commitOrder = []string{BlobFile, MetadataFile}

// commit replaces the named files in dir as a unit. Every file is staged
// beside its target first and any previous file is moved to a backup. If a
// step fails the files already swapped in are put back, so a failed Save
// leaves the previous artifact in place, or no artifact at all.
func (s *Store) commit(dir string, files map[string][]byte) error {
	token := uuid.NewString()
	staged := make(map[string]string, len(files))
	cleanup := func() {
		for _, tmp := range staged {
			_ = s.fs.Remove(tmp)
		}
	}
	for _, name := range commitOrder {
		tmp := filepath.Join(dir, "."+name+"."+token+".tmp")
		if err := s.fs.WriteFile(tmp, files[name], 0o644); err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", tmp, err)
		}
		staged[name] = tmp
	}

	type swap struct{ target, backup string }
	var done []swap
	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			sw := done[i]
			if sw.backup != "" {
				if err := s.fs.Rename(sw.backup, sw.target); err != nil {
					monitoring.Logf("artifact: restore %s: %v", sw.target, err)
				}
			} else {
				_ = s.fs.Remove(sw.target)
			}
		}
		cleanup()
	}
	for _, name := range commitOrder {
		target := filepath.Join(dir, name)
		sw := swap{target: target}
		if s.fs.Exists(target) {
			sw.backup = filepath.Join(dir, "."+name+"."+token+".bak")
			if err := s.fs.Rename(target, sw.backup); err != nil {
				rollback()
				return fmt.Errorf("back up %s: %w", target, err)
			}
		}
		done = append(done, sw)
		if err := s.fs.Rename(staged[name], target); err != nil {
			rollback()
			return fmt.Errorf("replace %s: %w", target, err)
		}
		delete(staged, name)
	}
	for _, sw := range done {
		if sw.backup != "" {
			_ = s.fs.Remove(sw.backup)
		}
	}
	return nil
}

func encodeBlob(env *envelope) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(zw).Encode(env); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBlob(data []byte) (*envelope, error) {
	zr, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := gob.NewDecoder(zr).Decode(&env); err != nil {
		return nil, err
	}
	// Drain so the xz footer checksum is verified.
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return nil, err
	}
	if env.Pipeline == nil {
		return nil, errors.New("blob carries no pipeline")
	}
	return &env, nil
}

// Load reads the artifact stored under version. When the two files carry
// different run ids a concurrent Save is assumed and the read is retried once.
func (s *Store) Load(version string) (*model.Pipeline, *Metadata, error) {
	dir, err := s.Dir(version)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrArtifactNotFound, err)
	}

	const attempts = 2
	for attempt := 1; ; attempt++ {
		md, err := s.readMetadata(dir, version)
		if err != nil {
			return nil, nil, err
		}
		env, err := s.readBlob(dir, version)
		if err != nil {
			return nil, nil, err
		}
		if env.RunID != md.RunID {
			if attempt < attempts {
				monitoring.Logf("artifact: %s run ids differ (blob %s, metadata %s), re-reading", version, env.RunID, md.RunID)
				continue
			}
			return nil, nil, fmt.Errorf("%w: %s blob run %s does not match metadata run %s",
				ErrMetadataMismatch, version, env.RunID, md.RunID)
		}
		if env.Version != version {
			return nil, nil, fmt.Errorf("%w: blob under %q was saved as %q", ErrMetadataMismatch, version, env.Version)
		}
		if err := features.CheckNames(env.Features); err != nil {
			return nil, nil, fmt.Errorf("%w: %s blob: %w", ErrMetadataMismatch, version, err)
		}
		p, err := env.Pipeline.Restore()
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", version, err)
		}
		return p, md, nil
	}
}

// LoadMetadata reads and checks only the metadata record of version.
func (s *Store) LoadMetadata(version string) (*Metadata, error) {
	dir, err := s.Dir(version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactNotFound, err)
	}
	return s.readMetadata(dir, version)
}

func (s *Store) readMetadata(dir, version string) (*Metadata, error) {
	data, err := s.fs.ReadFile(filepath.Join(dir, MetadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has no %s", ErrArtifactNotFound, version, MetadataFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataMismatch, MetadataFile, err)
	}
	if md.ModelVersion != version {
		return nil, fmt.Errorf("%w: metadata under %q declares model_version %q", ErrMetadataMismatch, version, md.ModelVersion)
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return &md, nil
}

func (s *Store) readBlob(dir, version string) (*envelope, error) {
	data, err := s.fs.ReadFile(filepath.Join(dir, BlobFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has no %s", ErrArtifactNotFound, version, BlobFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	env, err := decodeBlob(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", version, BlobFile, err)
	}
	return env, nil
}

// List returns the versions that have a metadata record, sorted by name. A
// missing root yields an empty list.
func (s *Store) List() ([]string, error) {
	names, err := s.fs.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, ".") || security.ValidateVersion(n) != nil {
			continue
		}
		if s.fs.Exists(filepath.Join(s.root, n, MetadataFile)) {
			out = append(out, n)
		}
	}
	return out, nil
}
