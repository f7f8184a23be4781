// Package circuit builds parameterized circuit descriptions from classical
// feature vectors. A description is a flat gate list: feature-map gates are
// bound at build time, ansatz gates reference slots in a parameter vector
// that the classical optimizer trains.
//
// Encoding scheme: angle encoding. Each qubit encodes exactly one normalized
// feature as a RY rotation angle (theta = pi * x), so the capacity of a
// circuit is one feature per qubit: 1 <= len(features) <= qubits.
package circuit

// GateKind identifies a gate in the supported set. The local simulator
// implements exactly this set.
type GateKind string

const (
	GateH   GateKind = "h"
	GateRX  GateKind = "rx"
	GateRY  GateKind = "ry"
	GateRZ  GateKind = "rz"
	GateCX  GateKind = "cx"
	GateCZ  GateKind = "cz"
	GateRZZ GateKind = "rzz"
)

// Gate is a single operation. Qubit is the acted-on qubit (control for
// two-qubit gates), Target the second qubit or -1. Theta is the bound angle
// for fixed gates; trainable gates carry ParamIndex >= 0 into the parameter
// vector and leave Theta zero.
type Gate struct {
	Kind       GateKind `json:"kind"`
	Qubit      int      `json:"qubit"`
	Target     int      `json:"target"`
	Theta      float64  `json:"theta"`
	ParamIndex int      `json:"param_index"`
}

// fixed builds a bound (non-trainable) single-qubit rotation.
func fixed(kind GateKind, qubit int, theta float64) Gate {
	return Gate{Kind: kind, Qubit: qubit, Target: -1, Theta: theta, ParamIndex: -1}
}

// trained builds a trainable single-qubit rotation referencing a parameter slot.
func trained(kind GateKind, qubit, paramIndex int) Gate {
	return Gate{Kind: kind, Qubit: qubit, Target: -1, ParamIndex: paramIndex}
}

// twoQubit builds an entangling gate. Theta only matters for RZZ.
func twoQubit(kind GateKind, control, target int, theta float64) Gate {
	return Gate{Kind: kind, Qubit: control, Target: target, Theta: theta, ParamIndex: -1}
}
