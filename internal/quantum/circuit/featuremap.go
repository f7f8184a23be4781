package circuit

import (
	"fmt"
	"math"
)

// FeatureMapKind names a fixed (non-trained) encoding of classical features
// into circuit rotations.
type FeatureMapKind string

const (
	// MapAngle encodes each normalized feature as RY(pi*x) on its own qubit.
	MapAngle FeatureMapKind = "angle"
	// MapZZ adds an RZ phase layer and entangles adjacent qubit pairs with
	// RZZ(pi*x_i*x_j) when the circuit depth is at least 2, capturing
	// pairwise feature interactions.
	MapZZ FeatureMapKind = "zz"
)

// featureMapGates emits the encoding layer for the given normalized features.
// Qubits beyond len(features) are put into superposition so they still
// contribute to the ansatz.
func featureMapGates(kind FeatureMapKind, features []float64, qubits, depth int) ([]Gate, error) {
	var gates []Gate

	switch kind {
	case MapAngle, MapZZ:
		for i, x := range features {
			gates = append(gates, fixed(GateRY, i, math.Pi*x))
		}
		for q := len(features); q < qubits; q++ {
			gates = append(gates, fixed(GateH, q, 0))
		}
	default:
		return nil, fmt.Errorf("unsupported feature map kind: %s", kind)
	}

	if kind == MapZZ {
		for i, x := range features {
			gates = append(gates, fixed(GateRZ, i, math.Pi*x*0.5))
		}
		if depth >= 2 {
			for i := 0; i+1 < len(features); i++ {
				theta := math.Pi * features[i] * features[i+1]
				gates = append(gates, twoQubit(GateRZZ, i, i+1, theta))
			}
		}
	}

	return gates, nil
}
