package economy

// Rand is the jitter source of the tick engine. *math/rand.Rand satisfies it;
// tests inject NoJitter or a seeded source for reproducible runs.
type Rand interface {
	Float64() float64
}

// NoJitter always returns the midpoint, which makes every jitter term zero.
type NoJitter struct{}

func (NoJitter) Float64() float64 { return 0.5 }

func jitter(rng Rand, amp float64) float64 {
	if amp == 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * amp
}
