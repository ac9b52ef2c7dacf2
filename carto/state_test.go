package carto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateInputs() Inputs {
	return Inputs{
		Source:  pointCollection([]string{"a", "b"}, []Point{{X: 0, Y: 0}, {X: 10, Y: 0}}),
		Target:  pointCollection([]string{"a", "b"}, []Point{{X: 0, Y: 0}, {X: 20, Y: 0}}),
		Options: Options{SourceID: "name", TargetID: "name", Precision: 1},
	}
}

func TestStateTracker_Empty(t *testing.T) {
	st := NewStateTracker()
	assert.Nil(t, st.Cartogram())
	assert.Nil(t, st.Snapshot())
}

func TestStateTracker_Update(t *testing.T) {
	st := NewStateTracker()
	c, err := stateInputs().Compute()
	require.NoError(t, err)

	st.Update(c)
	assert.Same(t, c, st.Cartogram())

	snap := st.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Summary.Anchors)
	require.Len(t, snap.Anchors, 2)

	// callers get a copy
	snap.Anchors[0].ID = "changed"
	assert.NotEqual(t, "changed", st.Snapshot().Anchors[0].ID)
}

func TestStateTracker_Recompute(t *testing.T) {
	st := NewStateTracker()
	st.SetInputs(stateInputs())

	first, err := st.Recompute(nil)
	require.NoError(t, err)
	assert.Same(t, first, st.Cartogram())

	target := pointCollection([]string{"a", "b"}, []Point{{X: 0, Y: 0}, {X: 5, Y: 0}})
	second, err := st.Recompute(target)
	require.NoError(t, err)
	assert.Same(t, second, st.Cartogram())
	assert.Same(t, target, st.Inputs().Target)
}

func TestStateTracker_RecomputeError(t *testing.T) {
	st := NewStateTracker()
	in := stateInputs()
	st.SetInputs(in)
	c, err := st.Recompute(nil)
	require.NoError(t, err)

	// a target missing anchor "b" fails and leaves the previous state alone
	bad := pointCollection([]string{"a"}, []Point{{X: 0, Y: 0}})
	_, err = st.Recompute(bad)
	assert.Error(t, err)
	assert.Same(t, c, st.Cartogram())
	assert.Same(t, in.Target, st.Inputs().Target)
}

func TestStateTracker_SnapshotPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "snapshot.json")

	st := NewStateTrackerWithSnapshot(path)
	assert.Nil(t, st.Snapshot())

	c, err := stateInputs().Compute()
	require.NoError(t, err)
	st.Update(c)

	_, err = os.Stat(path)
	require.NoError(t, err, "snapshot file should exist")

	reloaded := NewStateTrackerWithSnapshot(path)
	snap := reloaded.Snapshot()
	require.NotNil(t, snap)
	assert.Nil(t, reloaded.Cartogram())
	assert.Equal(t, c.Summary().Width, snap.Summary.Width)
	assert.Len(t, snap.Anchors, 2)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSnapshot(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadSnapshot(bad)
	assert.Error(t, err)
}
