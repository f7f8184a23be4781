package circuit

import (
	"fmt"

	"github.com/agrilab/quantfarm/internal/domain"
)

// BuildKernel constructs the fidelity-estimation circuit for a quantum
// kernel: encode a, then apply the inverse encoding of b. The probability of
// measuring the all-zeros bitstring equals |<phi(b)|phi(a)>|^2, the kernel
// value. The description carries no trainable parameters.
func BuildKernel(a, b []float64, qubits, depth int, fm FeatureMapKind) (*Description, error) {
	if qubits < MinQubits || qubits > MaxQubits {
		return nil, fmt.Errorf("qubits %d outside [%d, %d]", qubits, MinQubits, MaxQubits)
	}
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("depth %d outside [%d, %d]", depth, MinDepth, MaxDepth)
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: kernel inputs have lengths %d and %d", domain.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 || len(a) > qubits {
		return nil, fmt.Errorf("%w: %d features into %d qubits (capacity is one feature per qubit)",
			domain.ErrDimensionMismatch, len(a), qubits)
	}

	forward, err := featureMapGates(fm, a, qubits, depth)
	if err != nil {
		return nil, err
	}
	encodeB, err := featureMapGates(fm, b, qubits, depth)
	if err != nil {
		return nil, err
	}

	// Inverse circuit: reverse gate order and negate rotation angles.
	// H, CX and CZ are self-inverse.
	inverse := make([]Gate, 0, len(encodeB))
	for i := len(encodeB) - 1; i >= 0; i-- {
		g := encodeB[i]
		switch g.Kind {
		case GateRX, GateRY, GateRZ, GateRZZ:
			g.Theta = -g.Theta
		}
		inverse = append(inverse, g)
	}

	bound := make([]float64, len(a))
	copy(bound, a)

	return &Description{
		Qubits:     qubits,
		Depth:      depth,
		FeatureMap: fm,
		Features:   bound,
		Gates:      append(forward, inverse...),
		NumParams:  0,
	}, nil
}
