package philosopher

import (
	"fmt"
	"math/rand"
	"time"
)

// Delays supplies think and eat durations.
type Delays interface {
	Think() time.Duration
	Eat() time.Duration
}

// DelayRange is an inclusive duration interval.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Validate checks that the range is non-empty and non-negative.
func (r DelayRange) Validate() error {
	if r.Min < 0 {
		return fmt.Errorf("negative minimum delay %v", r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("maximum delay %v below minimum %v", r.Max, r.Min)
	}
	return nil
}

// Sample draws a duration uniformly from the range.
func (r DelayRange) Sample(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)+1))
}

func (r DelayRange) String() string {
	return fmt.Sprintf("%v..%v", r.Min, r.Max)
}

// RandomDelays samples think and eat durations from a private generator.
// It is not safe for concurrent use; each agent gets its own.
type RandomDelays struct {
	rng   *rand.Rand
	think DelayRange
	eat   DelayRange
}

// NewRandomDelays creates delays seeded with seed.
func NewRandomDelays(seed int64, think, eat DelayRange) *RandomDelays {
	return &RandomDelays{
		rng:   rand.New(rand.NewSource(seed)),
		think: think,
		eat:   eat,
	}
}

// Think samples a think duration.
func (d *RandomDelays) Think() time.Duration {
	return d.think.Sample(d.rng)
}

// Eat samples an eat duration.
func (d *RandomDelays) Eat() time.Duration {
	return d.eat.Sample(d.rng)
}

// FixedDelays always returns the same durations.
type FixedDelays struct {
	ThinkFor time.Duration
	EatFor   time.Duration
}

// Think returns ThinkFor.
func (d FixedDelays) Think() time.Duration { return d.ThinkFor }

// Eat returns EatFor.
func (d FixedDelays) Eat() time.Duration { return d.EatFor }
