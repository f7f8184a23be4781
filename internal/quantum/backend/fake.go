package backend

import (
	"context"
	"math/rand"
	"sync"

	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// Readout error probability per measured bit on the fake device.
const fakeReadoutErrorRate = 0.02

// FakeDevice mimics real hardware: it runs the ideal simulation, then flips
// measured bits with a small readout error probability and declares a
// shallower maximum depth than the simulator.
type FakeDevice struct {
	sim  *Simulator
	seed int64
	mu   sync.Mutex
}

// NewFakeDevice creates a noisy simulated device.
func NewFakeDevice(seed int64) *FakeDevice {
	return &FakeDevice{sim: NewSimulator(seed), seed: seed}
}

// Name implements Backend.
func (d *FakeDevice) Name() string { return "fake_device" }

// MaxDepth implements Backend. Hardware coherence limits depth before the
// configured ceiling.
func (d *FakeDevice) MaxDepth() int { return circuit.MaxDepth - 1 }

// Evaluate runs the ideal simulation and applies readout noise to the
// sampled bitstrings.
func (d *FakeDevice) Evaluate(ctx context.Context, desc *circuit.Description, params []float64, shots int) (*ExecutionResult, error) {
	ideal, err := d.sim.Evaluate(ctx, desc, params, shots)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	rng := rand.New(rand.NewSource(d.seed ^ hashParams(params)))
	noisy := make(map[string]int, len(ideal.Counts))
	for bits, count := range ideal.Counts {
		for i := 0; i < count; i++ {
			noisy[flipBits(rng, bits)]++
		}
	}
	d.mu.Unlock()

	expectation, variance := statistics(noisy, desc.Qubits, shots)
	return &ExecutionResult{
		Counts:      noisy,
		Shots:       shots,
		Expectation: expectation,
		Variance:    variance,
	}, nil
}

func flipBits(rng *rand.Rand, bits string) string {
	buf := []byte(bits)
	for i := range buf {
		if rng.Float64() < fakeReadoutErrorRate {
			if buf[i] == '0' {
				buf[i] = '1'
			} else {
				buf[i] = '0'
			}
		}
	}
	return string(buf)
}
