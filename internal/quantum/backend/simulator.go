package backend

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"

	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// Simulator is an ideal statevector simulator for the supported gate set.
// Sampling is seeded so identical evaluations produce identical counts.
type Simulator struct {
	seed int64
	mu   sync.Mutex
}

// NewSimulator creates a local statevector simulator.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{seed: seed}
}

// Name implements Backend.
func (s *Simulator) Name() string { return "statevector_simulator" }

// MaxDepth implements Backend. The simulator handles the full depth range.
func (s *Simulator) MaxDepth() int { return circuit.MaxDepth }

// Evaluate simulates the circuit and samples shot measurements from the
// final state. The returned counts always sum to shots.
func (s *Simulator) Evaluate(ctx context.Context, desc *circuit.Description, params []float64, shots int) (*ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state, err := runStatevector(desc, params)
	if err != nil {
		return nil, err
	}

	probs := make([]float64, len(state))
	for i, amp := range state {
		probs[i] = real(amp)*real(amp) + imag(amp)*imag(amp)
	}

	// Sampling is serialized so the seeded stream stays deterministic even
	// when independent models evaluate concurrently.
	s.mu.Lock()
	rng := rand.New(rand.NewSource(s.seed + hashParams(params)))
	counts := sampleCounts(rng, probs, desc.Qubits, shots)
	s.mu.Unlock()

	expectation, variance := statistics(counts, desc.Qubits, shots)
	return &ExecutionResult{
		Counts:      counts,
		Shots:       shots,
		Expectation: expectation,
		Variance:    variance,
	}, nil
}

// runStatevector applies the gate list to |0...0> with params bound into the
// trainable slots.
func runStatevector(desc *circuit.Description, params []float64) ([]complex128, error) {
	n := desc.Qubits
	state := make([]complex128, 1<<uint(n))
	state[0] = 1

	for _, g := range desc.Gates {
		theta := g.Theta
		if g.ParamIndex >= 0 {
			if g.ParamIndex >= len(params) {
				return nil, fmt.Errorf("gate references parameter %d, vector has %d", g.ParamIndex, len(params))
			}
			theta = params[g.ParamIndex]
		}

		switch g.Kind {
		case circuit.GateH:
			applySingle(state, g.Qubit,
				complex(1/math.Sqrt2, 0), complex(1/math.Sqrt2, 0),
				complex(1/math.Sqrt2, 0), complex(-1/math.Sqrt2, 0))
		case circuit.GateRY:
			c, s := math.Cos(theta/2), math.Sin(theta/2)
			applySingle(state, g.Qubit,
				complex(c, 0), complex(-s, 0),
				complex(s, 0), complex(c, 0))
		case circuit.GateRX:
			c, s := math.Cos(theta/2), math.Sin(theta/2)
			applySingle(state, g.Qubit,
				complex(c, 0), complex(0, -s),
				complex(0, -s), complex(c, 0))
		case circuit.GateRZ:
			applyPhase(state, g.Qubit, cmplx.Exp(complex(0, -theta/2)), cmplx.Exp(complex(0, theta/2)))
		case circuit.GateCX:
			applyCX(state, g.Qubit, g.Target)
		case circuit.GateCZ:
			applyCZ(state, g.Qubit, g.Target)
		case circuit.GateRZZ:
			applyRZZ(state, g.Qubit, g.Target, theta)
		default:
			return nil, fmt.Errorf("unsupported gate kind: %s", g.Kind)
		}
	}

	return state, nil
}

// applySingle applies the 2x2 matrix [[m00 m01][m10 m11]] to one qubit.
func applySingle(state []complex128, qubit int, m00, m01, m10, m11 complex128) {
	bit := 1 << uint(qubit)
	for i := range state {
		if i&bit == 0 {
			j := i | bit
			a0, a1 := state[i], state[j]
			state[i] = m00*a0 + m01*a1
			state[j] = m10*a0 + m11*a1
		}
	}
}

// applyPhase multiplies the qubit-0 and qubit-1 amplitudes by separate phases.
func applyPhase(state []complex128, qubit int, p0, p1 complex128) {
	bit := 1 << uint(qubit)
	for i := range state {
		if i&bit == 0 {
			state[i] *= p0
		} else {
			state[i] *= p1
		}
	}
}

func applyCX(state []complex128, control, target int) {
	cbit, tbit := 1<<uint(control), 1<<uint(target)
	for i := range state {
		if i&cbit != 0 && i&tbit == 0 {
			j := i | tbit
			state[i], state[j] = state[j], state[i]
		}
	}
}

func applyCZ(state []complex128, control, target int) {
	cbit, tbit := 1<<uint(control), 1<<uint(target)
	for i := range state {
		if i&cbit != 0 && i&tbit != 0 {
			state[i] = -state[i]
		}
	}
}

func applyRZZ(state []complex128, a, b int, theta float64) {
	abit, bbit := 1<<uint(a), 1<<uint(b)
	same := cmplx.Exp(complex(0, -theta/2))
	diff := cmplx.Exp(complex(0, theta/2))
	for i := range state {
		if (i&abit != 0) == (i&bbit != 0) {
			state[i] *= same
		} else {
			state[i] *= diff
		}
	}
}

// sampleCounts draws shots outcomes from the probability distribution.
// Bitstrings render qubit 0 as the leftmost character.
func sampleCounts(rng *rand.Rand, probs []float64, qubits, shots int) map[string]int {
	cumulative := make([]float64, len(probs))
	sum := 0.0
	for i, p := range probs {
		sum += p
		cumulative[i] = sum
	}

	counts := make(map[string]int)
	for s := 0; s < shots; s++ {
		r := rng.Float64() * sum
		idx := len(probs) - 1
		for i, c := range cumulative {
			if r <= c {
				idx = i
				break
			}
		}
		counts[formatBitstring(idx, qubits)]++
	}
	return counts
}

// formatBitstring renders a basis-state index with qubit 0 leftmost.
func formatBitstring(index, qubits int) string {
	buf := make([]byte, qubits)
	for q := 0; q < qubits; q++ {
		if index&(1<<uint(q)) != 0 {
			buf[q] = '1'
		} else {
			buf[q] = '0'
		}
	}
	return string(buf)
}

// hashParams folds the parameter vector into a seed offset so repeated
// evaluations of the same parameters sample identically while distinct
// parameters decorrelate.
func hashParams(params []float64) int64 {
	var h uint64 = 1469598103934665603
	for _, p := range params {
		bits := math.Float64bits(p)
		h ^= bits
		h *= 1099511628211
	}
	return int64(h & 0x7fffffffffffffff)
}
