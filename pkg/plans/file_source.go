package plans

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
)

// planDocument is the on-disk JSON shape of the plan configuration.
type planDocument struct {
	Version string `json:"version"`
	Plans   []Plan `json:"plans"`
}

// FileSource serves plans from an admin-edited JSON document. The document
// is read wholesale and cached until Invalidate is called; a Watcher
// typically drives invalidation from filesystem events.
type FileSource struct {
	path string

	mu         sync.RWMutex
	doc        planDocument
	index      map[string]Plan
	generation uint64
	loaded     bool
}

// NewFileSource creates a source over the JSON document at path. The file
// is not read until the first lookup.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Plan returns the plan for id from the current document revision.
func (f *FileSource) Plan(id string) (Plan, bool) {
	f.ensureLoaded()
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.index[id]
	return p, ok
}

// Version combines the document's declared version with a load generation
// counter, so a revision change is visible even when an administrator
// forgets to bump the declared version.
func (f *FileSource) Version() string {
	f.ensureLoaded()
	f.mu.RLock()
	defer f.mu.RUnlock()
	return fmt.Sprintf("%s#%d", f.doc.Version, f.generation)
}

// Invalidate discards the cached document. The next lookup re-reads the
// file. A failed re-read keeps serving the previous document (fail-open)
// so a half-written edit cannot strip every plan at once.
func (f *FileSource) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = false
}

func (f *FileSource) ensureLoaded() {
	f.mu.RLock()
	loaded := f.loaded
	f.mu.RUnlock()
	if loaded {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return
	}

	doc, err := readPlanDocument(f.path)
	if err != nil {
		log.Warn().Err(err).Str("path", f.path).Msg("Failed to load plan configuration; keeping previous revision")
		// Mark loaded anyway so every lookup does not hit the disk; the
		// next Invalidate retries.
		f.loaded = true
		return
	}

	f.doc = doc
	f.index = make(map[string]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		if _, dup := f.index[p.ID]; dup {
			log.Warn().Str("plan", p.ID).Msg("Duplicate plan id in configuration; first definition wins")
			continue
		}
		f.index[p.ID] = p
	}
	f.generation++
	f.loaded = true
	log.Info().Str("path", f.path).Str("version", doc.Version).Int("plans", len(doc.Plans)).Msg("Loaded plan configuration")
}

func readPlanDocument(path string) (planDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return planDocument{}, fmt.Errorf("read plan configuration: %w", err)
	}
	var doc planDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return planDocument{}, fmt.Errorf("parse plan configuration: %w", err)
	}
	return doc, nil
}
