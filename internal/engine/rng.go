package engine

// mulberryIncrement is added to the seed once when a stream is created.
const mulberryIncrement uint32 = 0x6D2B79F5

// Rand is a deterministic pseudo-random stream derived from a 32-bit seed.
//
// The mixing function is the mulberry32 variant the browser client and the
// original game server share: the seed is offset once and the state then
// evolves in place. All arithmetic is on uint32 so the output matches the
// JavaScript reference bit for bit. A Rand is not safe for concurrent use;
// give every generation pass its own stream.
type Rand struct {
	state uint32
	draws uint64
}

// NewRand creates a stream for the given seed.
func NewRand(seed int32) *Rand {
	return &Rand{state: uint32(seed) + mulberryIncrement}
}

// Resume continues a stream from a value previously returned by State.
func Resume(state uint32) *Rand {
	return &Rand{state: state}
}

// State returns the internal state. Resume(r.State()) yields the same
// sequence r would produce from this point on.
func (r *Rand) State() uint32 {
	return r.state
}

// Draws returns how many floats have been consumed from the stream.
func (r *Rand) Draws() uint64 {
	return r.draws
}

// Float64 returns the next value in [0, 1).
func (r *Rand) Float64() float64 {
	t := r.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	r.state = t
	r.draws++

	return float64(t^(t>>14)) / 4294967296
}

// Intn returns floor(Float64()*n). It returns 0 for n <= 0 without
// consuming a value.
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(r.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// Floats returns the first count values of the stream for seed.
func Floats(seed int32, count int) []float64 {
	r := NewRand(seed)
	floats := make([]float64, count)
	for i := range floats {
		floats[i] = r.Float64()
	}
	return floats
}

// Shuffle returns a shuffled copy of s using Fisher-Yates from the last
// index down, drawing one float per swap. The input is not modified.
func Shuffle[T any](s []T, r *Rand) []T {
	out := make([]T, len(s))
	copy(out, s)
	for i := len(out) - 1; i > 0; i-- {
		j := int(r.Float64() * float64(i+1))
		if j > i {
			j = i
		}
		out[i], out[j] = out[j], out[i]
	}
	return out
}
