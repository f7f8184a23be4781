package circuit

import "fmt"

// AnsatzKind names a parameterized circuit structure whose rotation angles
// are trained by the classical optimizer.
type AnsatzKind string

const (
	// AnsatzRealAmplitudes is RY rotations with linear CX entanglement.
	// Simple and effective for small regression problems.
	AnsatzRealAmplitudes AnsatzKind = "real_amplitudes"
	// AnsatzEfficientSU2 is RY+RZ rotations with circular CX entanglement.
	AnsatzEfficientSU2 AnsatzKind = "efficient_su2"
	// AnsatzTwoLocal is RY+RZ rotations with linear CZ entanglement.
	AnsatzTwoLocal AnsatzKind = "two_local"
)

// ParamCount returns the parameter-vector length for an ansatz. It depends
// only on (kind, qubits, depth), never on feature values.
func ParamCount(kind AnsatzKind, qubits, depth int) (int, error) {
	switch kind {
	case AnsatzRealAmplitudes:
		return qubits * (depth + 1), nil
	case AnsatzEfficientSU2, AnsatzTwoLocal:
		return 2 * qubits * (depth + 1), nil
	default:
		return 0, fmt.Errorf("unsupported ansatz kind: %s", kind)
	}
}

// ansatzGates emits depth repetitions of rotation+entanglement layers plus a
// final rotation layer. Parameter slots are assigned in emission order.
func ansatzGates(kind AnsatzKind, qubits, depth int) ([]Gate, error) {
	var gates []Gate
	next := 0

	rotationLayer := func() {
		for q := 0; q < qubits; q++ {
			gates = append(gates, trained(GateRY, q, next))
			next++
		}
		if kind == AnsatzEfficientSU2 || kind == AnsatzTwoLocal {
			for q := 0; q < qubits; q++ {
				gates = append(gates, trained(GateRZ, q, next))
				next++
			}
		}
	}

	entangleLayer := func() {
		switch kind {
		case AnsatzRealAmplitudes, AnsatzTwoLocal:
			entangler := GateCX
			if kind == AnsatzTwoLocal {
				entangler = GateCZ
			}
			for q := 0; q+1 < qubits; q++ {
				gates = append(gates, twoQubit(entangler, q, q+1, 0))
			}
		case AnsatzEfficientSU2:
			for q := 0; q < qubits; q++ {
				gates = append(gates, twoQubit(GateCX, q, (q+1)%qubits, 0))
			}
		}
	}

	switch kind {
	case AnsatzRealAmplitudes, AnsatzEfficientSU2, AnsatzTwoLocal:
	default:
		return nil, fmt.Errorf("unsupported ansatz kind: %s", kind)
	}

	for rep := 0; rep < depth; rep++ {
		rotationLayer()
		entangleLayer()
	}
	rotationLayer()

	return gates, nil
}
