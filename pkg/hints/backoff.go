package hints

import (
	"math"
	"math/rand"
	"time"
)

// Reply timeout backoff parameters.
const (
	// ReplyBackoffBase is the exponential growth factor once past the threshold.
	ReplyBackoffBase = 1.6

	// ReplyBackoffThreshold is the number of timeouts waited with a linear
	// (unscaled) interval before growth starts.
	ReplyBackoffThreshold = 1

	// ReplyBackoffJitter is the maximum relative jitter added to each wait.
	ReplyBackoffJitter = 0.25

	// ReplyBackoffMaxExponent caps growth so waits stay bounded.
	ReplyBackoffMaxExponent = 8
)

// RandomSource provides random values for jitter calculation.
// Allows injection of deterministic sources for testing.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

// defaultRandomSource uses math/rand for production.
type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 {
	return rand.Float64()
}

// DefaultRandomSource is the default random source using math/rand.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// BackoffCalculator computes how long to wait for a render_hints reply.
//
//	wait = timeout * BASE^min(max(0, n-THRESHOLD), MAX_EXPONENT)
//	               * (1.0 + random(0,1) * JITTER)
//
// Where n is the number of consecutive timeouts before the current request.
type BackoffCalculator struct {
	random RandomSource
}

// NewBackoffCalculator creates a new backoff calculator with the given random source.
// If random is nil, DefaultRandomSource is used.
func NewBackoffCalculator(random RandomSource) *BackoffCalculator {
	if random == nil {
		random = DefaultRandomSource
	}
	return &BackoffCalculator{random: random}
}

// Calculate computes the reply wait for the given number of previous
// consecutive timeouts, including jitter.
func (b *BackoffCalculator) Calculate(timeout time.Duration, timeouts int) time.Duration {
	return b.calculate(timeout, timeouts, 1.0+b.random.Float64()*ReplyBackoffJitter)
}

// CalculateMin computes the minimum wait (no jitter).
func (b *BackoffCalculator) CalculateMin(timeout time.Duration, timeouts int) time.Duration {
	return b.calculate(timeout, timeouts, 1.0)
}

// CalculateMax computes the maximum wait (full jitter).
func (b *BackoffCalculator) CalculateMax(timeout time.Duration, timeouts int) time.Duration {
	return b.calculate(timeout, timeouts, 1.0+ReplyBackoffJitter)
}

func (b *BackoffCalculator) calculate(timeout time.Duration, timeouts int, jitterFactor float64) time.Duration {
	exponent := timeouts - ReplyBackoffThreshold
	if exponent < 0 {
		exponent = 0
	}
	if exponent > ReplyBackoffMaxExponent {
		exponent = ReplyBackoffMaxExponent
	}

	expFactor := math.Pow(ReplyBackoffBase, float64(exponent))

	return time.Duration(float64(timeout) * expFactor * jitterFactor)
}
