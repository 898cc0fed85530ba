package compaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugFlags_SnapshotAndApply(t *testing.T) {
	f := &DebugFlags{}
	assert.Equal(t, DebugSettings{}, f.Snapshot())

	f.Set(DebugSettings{InjectTools: true, Verbose: true})
	o := f.Apply(Options{Policy: SplitPolicy{KeepVerbatim: 3}})
	assert.True(t, o.InjectTools)
	assert.True(t, o.Verbose)
	assert.Equal(t, 3, o.Policy.KeepVerbatim)

	f.SetVerbose(false)
	assert.Equal(t, DebugSettings{InjectTools: true}, f.Snapshot())
}

func TestFlags_IsProcessWide(t *testing.T) {
	assert.Same(t, Flags(), Flags())
}

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, DefaultKeepVerbatim, o.Policy.KeepVerbatim)
	assert.False(t, o.InjectTools)
	assert.False(t, o.Verbose)
}
