package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceVector is one stream captured from the JavaScript client generator.
type referenceVector struct {
	Description string    `json:"description"`
	Seed        int32     `json:"seed"`
	Expected    []float64 `json:"expected"`
}

func TestReferenceCompatibility(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "mulberry_reference_vectors.json"))
	require.NoError(t, err, "read reference vectors")

	var vectors []referenceVector
	require.NoError(t, json.Unmarshal(data, &vectors))
	require.NotEmpty(t, vectors)

	for _, vector := range vectors {
		t.Run(vector.Description, func(t *testing.T) {
			actual := Floats(vector.Seed, len(vector.Expected))
			// Exact equality: both sides divide the same uint32 by 2^32.
			assert.Equal(t, vector.Expected, actual)
		})
	}
}

func TestFloatsRange(t *testing.T) {
	tests := []struct {
		name  string
		seed  int32
		count int
	}{
		{name: "zero seed", seed: 0, count: 1000},
		{name: "typical seed", seed: 12345, count: 1000},
		{name: "negative seed", seed: -987654, count: 1000},
		{name: "max seed", seed: MaxSeed - 1, count: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats(tt.seed, tt.count)
			require.Len(t, floats, tt.count)
			for i, f := range floats {
				if f < 0 || f >= 1 {
					t.Errorf("float %d is out of range [0, 1): %f", i, f)
				}
			}
		})
	}
}

func TestIntn(t *testing.T) {
	r := NewRand(7)
	seen := make(map[int]int)
	for i := 0; i < 3000; i++ {
		v := r.Intn(3)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, 3)
		seen[v]++
	}
	assert.Len(t, seen, 3, "all three branches should be picked")

	before := r.Draws()
	assert.Equal(t, 0, r.Intn(0))
	assert.Equal(t, before, r.Draws(), "Intn(0) must not consume the stream")
}

func TestIntnMatchesFloor(t *testing.T) {
	a := NewRand(4242)
	b := NewRand(4242)
	for i := 0; i < 100; i++ {
		want := int(b.Float64() * 5)
		assert.Equal(t, want, a.Intn(5))
	}
}

func TestShuffle(t *testing.T) {
	input := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	t.Run("matches javascript reference", func(t *testing.T) {
		got := Shuffle(input, NewRand(12345))
		assert.Equal(t, []int{6, 0, 1, 7, 8, 4, 2, 5, 3, 9}, got)
	})

	t.Run("does not modify input", func(t *testing.T) {
		_ = Shuffle(input, NewRand(99))
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, input)
	})

	t.Run("is a permutation", func(t *testing.T) {
		got := Shuffle(input, NewRand(31337))
		assert.ElementsMatch(t, input, got)
	})

	t.Run("consumes one draw per swap", func(t *testing.T) {
		r := NewRand(1)
		_ = Shuffle(input, r)
		assert.Equal(t, uint64(len(input)-1), r.Draws())
	})

	t.Run("empty and single", func(t *testing.T) {
		r := NewRand(1)
		assert.Empty(t, Shuffle([]string{}, r))
		assert.Equal(t, []string{"a"}, Shuffle([]string{"a"}, r))
		assert.Zero(t, r.Draws())
	})
}

func TestResume(t *testing.T) {
	r := NewRand(555)
	for i := 0; i < 17; i++ {
		r.Float64()
	}
	resumed := Resume(r.State())
	for i := 0; i < 50; i++ {
		assert.Equal(t, r.Float64(), resumed.Float64(), "draw %d", i)
	}
}

func TestFingerprint(t *testing.T) {
	assert.Len(t, Fingerprint(12345), 16)
	assert.Equal(t, Fingerprint(12345), Fingerprint(12345))
	assert.NotEqual(t, Fingerprint(12345), Fingerprint(12346))
}

func TestNewSeed(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s := NewSeed()
		require.GreaterOrEqual(t, s, int32(0))
		require.Less(t, s, int32(MaxSeed))
	}
}
