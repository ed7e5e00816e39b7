package device

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
)

// Reading is one sensor sample.
type Reading struct {
	Temperature float64
	Humidity    float64
	Light       float64
}

// Sensor samples the environment. Read is called from the scheduler loop
// and should return quickly.
type Sensor interface {
	Read(ctx context.Context) (Reading, error)
}

// SimulatedSensor produces a bounded random walk around indoor conditions.
type SimulatedSensor struct {
	mu   sync.Mutex
	last Reading
	rnd  *rand.Rand
}

// NewSimulatedSensor returns a sensor seeded with seed.
func NewSimulatedSensor(seed uint64) *SimulatedSensor {
	return &SimulatedSensor{
		last: Reading{Temperature: 26, Humidity: 60, Light: 300},
		rnd:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Read advances the walk by one step.
func (s *SimulatedSensor) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.last.Temperature = clamp(s.last.Temperature+s.step(0.3), 15, 40)
	s.last.Humidity = clamp(s.last.Humidity+s.step(1.0), 20, 95)
	s.last.Light = clamp(s.last.Light+s.step(25), 0, 2000)

	return Reading{
		Temperature: round1(s.last.Temperature),
		Humidity:    round1(s.last.Humidity),
		Light:       math.Round(s.last.Light),
	}, nil
}

func (s *SimulatedSensor) step(scale float64) float64 {
	return (s.rnd.Float64()*2 - 1) * scale
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
