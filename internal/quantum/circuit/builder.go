package circuit

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/agrilab/quantfarm/internal/domain"
)

// Circuit geometry limits. The backend adapter enforces the same ranges on
// execution; the builder rejects them early so a bad configuration never
// reaches an optimizer loop.
const (
	MinQubits = 2
	MaxQubits = 6
	MinDepth  = 1
	MaxDepth  = 5
)

// Description is an immutable parameterized circuit: a bound feature-map
// prefix followed by trainable ansatz gates. Built once per (qubits, depth,
// features) combination; the backend binds a parameter vector at evaluation
// time without mutating the description.
type Description struct {
	Qubits     int            `json:"qubits"`
	Depth      int            `json:"depth"`
	FeatureMap FeatureMapKind `json:"feature_map"`
	Ansatz     AnsatzKind     `json:"ansatz"`
	Features   []float64      `json:"features"`
	Gates      []Gate         `json:"gates"`
	NumParams  int            `json:"num_params"`
}

// Build constructs a circuit description for the given normalized feature
// values. Deterministic for identical inputs; initial-parameter seeding is
// the caller's concern via InitialParams.
//
// Capacity rule (angle encoding): each qubit encodes one feature, so
// 1 <= len(features) <= qubits. Violations fail with ErrDimensionMismatch.
func Build(features []float64, qubits, depth int, fm FeatureMapKind, an AnsatzKind) (*Description, error) {
	if qubits < MinQubits || qubits > MaxQubits {
		return nil, fmt.Errorf("qubits %d outside [%d, %d]", qubits, MinQubits, MaxQubits)
	}
	if depth < MinDepth || depth > MaxDepth {
		return nil, fmt.Errorf("depth %d outside [%d, %d]", depth, MinDepth, MaxDepth)
	}
	if len(features) == 0 || len(features) > qubits {
		return nil, fmt.Errorf("%w: %d features into %d qubits (capacity is one feature per qubit)",
			domain.ErrDimensionMismatch, len(features), qubits)
	}
	for i, x := range features {
		if x < 0 || x > 1 {
			return nil, fmt.Errorf("%w: feature %d = %.4f not normalized to [0,1]",
				domain.ErrDimensionMismatch, i, x)
		}
	}

	numParams, err := ParamCount(an, qubits, depth)
	if err != nil {
		return nil, err
	}

	mapGates, err := featureMapGates(fm, features, qubits, depth)
	if err != nil {
		return nil, err
	}
	ansGates, err := ansatzGates(an, qubits, depth)
	if err != nil {
		return nil, err
	}

	bound := make([]float64, len(features))
	copy(bound, features)

	return &Description{
		Qubits:     qubits,
		Depth:      depth,
		FeatureMap: fm,
		Ansatz:     an,
		Features:   bound,
		Gates:      append(mapGates, ansGates...),
		NumParams:  numParams,
	}, nil
}

// InitialParams draws a uniform random parameter vector in [0, 2*pi) from an
// explicit seed, so training runs are reproducible.
func InitialParams(kind AnsatzKind, qubits, depth int, seed int64) ([]float64, error) {
	n, err := ParamCount(kind, qubits, depth)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	params := make([]float64, n)
	for i := range params {
		params[i] = rng.Float64() * 2 * math.Pi
	}
	return params, nil
}
