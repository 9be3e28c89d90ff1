package maze

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindtrap/maze-server/internal/engine"
)

func TestCacheBuild(t *testing.T) {
	mc, err := NewCache(2, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, mc.QuestionCount())

	first := mc.Build(77)
	second := mc.Build(77)
	assert.Same(t, first.Graph, second.Graph, "a hit returns the cached graph")
	assert.Equal(t, 1, mc.Len())

	fresh := Generate(77, 5)
	assert.Equal(t, fresh.Snapshot(), first.Graph.Snapshot())
}

func TestCacheStreamContinues(t *testing.T) {
	mc, err := NewCache(4, 3)
	require.NoError(t, err)

	r := engine.NewRand(12345)
	GenerateWith(r, 3)
	want := []float64{r.Float64(), r.Float64(), r.Float64()}

	for i := 0; i < 2; i++ {
		s := mc.Build(12345).Stream()
		assert.Equal(t, want, []float64{s.Float64(), s.Float64(), s.Float64()})
	}
}

func TestCacheEviction(t *testing.T) {
	mc, err := NewCache(2, 1)
	require.NoError(t, err)

	mc.Build(1)
	mc.Build(2)
	mc.Build(3)
	assert.Equal(t, 2, mc.Len())

	mc.Purge()
	assert.Zero(t, mc.Len())
}

func TestNewCacheDefaultSize(t *testing.T) {
	mc, err := NewCache(0, 1)
	require.NoError(t, err)
	assert.NotNil(t, mc)
}
