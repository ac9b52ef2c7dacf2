package carto

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb/geojson"
)

// Inputs are the layers and options a cartogram is computed from
type Inputs struct {
	Source     *geojson.FeatureCollection `json:"source"`
	Target     *geojson.FeatureCollection `json:"target"`
	Background *geojson.FeatureCollection `json:"background,omitempty"`
	Options    Options                    `json:"options"`
}

// Compute builds the cartogram for these inputs
func (in Inputs) Compute() (*Cartogram, error) {
	return NewCartogram(in.Source, in.Target, in.Background, in.Options)
}

// Snapshot is the persisted form of the latest result
type Snapshot struct {
	Summary Summary        `json:"summary"`
	Anchors []AnchorResult `json:"anchors"`
}

// StateTracker holds the latest inputs and cartogram for the HTTP handlers
// and the MQTT recompute loop
type StateTracker struct {
	mu           sync.RWMutex
	inputs       Inputs
	cartogram    *Cartogram
	snapshot     *Snapshot
	snapshotPath string // empty disables persistence
}

// NewStateTracker creates an empty tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{}
}

// NewStateTrackerWithSnapshot creates a tracker that writes a JSON snapshot
// of every result to path. An existing snapshot is loaded so the last
// summary is available before the first compute.
func NewStateTrackerWithSnapshot(path string) *StateTracker {
	st := &StateTracker{snapshotPath: path}
	if path != "" {
		if s, err := LoadSnapshot(path); err == nil {
			st.snapshot = s
		}
	}
	return st
}

// SetInputs replaces the stored inputs
func (st *StateTracker) SetInputs(in Inputs) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.inputs = in
}

// Inputs returns the stored inputs
func (st *StateTracker) Inputs() Inputs {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.inputs
}

// Cartogram returns the latest result, or nil
func (st *StateTracker) Cartogram() *Cartogram {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.cartogram
}

// Snapshot returns the latest summary and anchors, or nil
func (st *StateTracker) Snapshot() *Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.snapshot == nil {
		return nil
	}
	s := *st.snapshot
	s.Anchors = append([]AnchorResult(nil), st.snapshot.Anchors...)
	return &s
}

// Update stores a computed cartogram and persists its snapshot
func (st *StateTracker) Update(c *Cartogram) {
	snap := &Snapshot{Summary: c.Summary(), Anchors: c.Anchors()}

	st.mu.Lock()
	st.cartogram = c
	st.snapshot = snap
	path := st.snapshotPath
	st.mu.Unlock()

	if path != "" {
		if err := SaveSnapshot(snap, path); err != nil {
			log.Printf("warning: failed to save snapshot: %v", err)
		}
	}
}

// Recompute computes a cartogram from the stored inputs, with the target
// layer replaced when target is non-nil, and stores it
func (st *StateTracker) Recompute(target *geojson.FeatureCollection) (*Cartogram, error) {
	st.mu.RLock()
	in := st.inputs
	st.mu.RUnlock()

	if target != nil {
		in.Target = target
	}
	c, err := in.Compute()
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.inputs = in
	st.mu.Unlock()
	st.Update(c)
	return c, nil
}

// SaveSnapshot writes a snapshot as JSON
func SaveSnapshot(s *Snapshot, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}
