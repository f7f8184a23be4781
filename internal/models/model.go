// Package models implements the three hybrid model variants behind a shared
// train/predict capability set: the variational yield regressor, the
// combinatorial irrigation optimizer, and the kernel-based pest classifier.
// Variants are selected by explicit construction, never by runtime type
// inspection.
package models

import (
	"context"
	"fmt"
	"time"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/optimizer"
	"github.com/agrilab/quantfarm/internal/quantum/backend"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// MinTrainingExamples is the common floor for Train across all variants.
const MinTrainingExamples = 5

// MaxSupportExamples caps the classifier support set: kernel evaluation cost
// is quadratic in its size.
const MaxSupportExamples = 100

// Config carries the circuit geometry and training budget shared by all
// variants. Values come from the orchestration layer's configuration surface
// and are validated by the circuit builder and backend adapter.
type Config struct {
	Qubits     int
	Depth      int
	Shots      int
	FeatureMap circuit.FeatureMapKind
	Ansatz     circuit.AnsatzKind
	Seed       int64
	Optimizer  optimizer.Options
}

// TrainingReport summarizes a completed Train call.
type TrainingReport struct {
	Model         string        `json:"model"`
	Examples      int           `json:"examples"`
	Iterations    int           `json:"iterations"`
	Converged     bool          `json:"converged"`
	BestObjective float64       `json:"best_objective"`
	Duration      time.Duration `json:"duration"`
}

// RiskLevel is the binary pest risk outcome.
type RiskLevel string

const (
	RiskHigh RiskLevel = "High"
	RiskLow  RiskLevel = "Low"
)

// YieldPrediction is the regressor output.
type YieldPrediction struct {
	TonsPerHectare float64 `json:"tons_per_hectare"`
	Confidence     float64 `json:"confidence"` // [0,1], from shot variance
}

// ZoneAllocation is one zone's share of an irrigation plan.
type ZoneAllocation struct {
	Zone   string  `json:"zone"`
	Liters float64 `json:"liters"`
}

// IrrigationPlan is the optimizer-model output. TotalLiters never exceeds
// BudgetLiters; when the decoded solution overshot, Adjusted is true and
// ScaleFactor records the deterministic scale-down that was applied.
type IrrigationPlan struct {
	Allocations  []ZoneAllocation `json:"allocations"`
	TotalLiters  float64          `json:"total_liters"`
	BudgetLiters float64          `json:"budget_liters"`
	Adjusted     bool             `json:"adjusted"`
	ScaleFactor  float64          `json:"scale_factor"`
	Bitstring    string           `json:"bitstring"`
}

// PestRiskPrediction is the classifier output.
type PestRiskPrediction struct {
	Level           RiskLevel `json:"level"`
	Probability     float64   `json:"probability"` // [0,1]
	Margin          float64   `json:"margin"`
	Recommendations []string  `json:"recommendations"`
}

// Prediction is the tagged union returned by Predict. Exactly one variant
// field is set, matching Model.
type Prediction struct {
	Model      string              `json:"model"`
	Provenance domain.Provenance   `json:"provenance,omitempty"`
	Yield      *YieldPrediction    `json:"yield,omitempty"`
	Irrigation *IrrigationPlan     `json:"irrigation,omitempty"`
	PestRisk   *PestRiskPrediction `json:"pest_risk,omitempty"`
}

// Model is the capability set shared by the three variants.
type Model interface {
	Name() string
	Train(ctx context.Context, X []domain.FeatureVector, y []float64) (*TrainingReport, error)
	Predict(ctx context.Context, x domain.FeatureVector) (*Prediction, error)
}

// TrainedState is the serializable trained state of a variant. Only the
// fields relevant to the variant are populated.
type TrainedState struct {
	Model       string      `msgpack:"model"`
	Params      []float64   `msgpack:"params,omitempty"`
	YMin        float64     `msgpack:"y_min,omitempty"`
	YMax        float64     `msgpack:"y_max,omitempty"`
	ScaledReq   []float64   `msgpack:"scaled_req,omitempty"`
	DemandScale float64     `msgpack:"demand_scale,omitempty"`
	Support     [][]float64 `msgpack:"support,omitempty"`
	Labels      []bool      `msgpack:"labels,omitempty"`
}

// Stateful is implemented by variants whose trained state can be snapshotted
// and restored across restarts.
type Stateful interface {
	ExportState() (*TrainedState, error)
	RestoreState(*TrainedState) error
}

// Backend is the evaluation capability the models need. Satisfied by
// backend.Adapter.
type Backend interface {
	Name() string
	MaxDepth() int
	Evaluate(ctx context.Context, desc *circuit.Description, params []float64, shots int) (*backend.ExecutionResult, error)
}

// encodeFeatures normalizes a feature vector and trims it to the circuit's
// qubit capacity. Angle encoding holds one feature per qubit; when the
// vector has more fields than qubits, the leading fields in canonical order
// are encoded.
func encodeFeatures(x domain.FeatureVector, qubits int) ([]float64, error) {
	norm, err := x.Normalize()
	if err != nil {
		return nil, err
	}
	if len(norm) > qubits {
		norm = norm[:qubits]
	}
	return norm, nil
}

// checkTrainingSet enforces the common example-count contract.
func checkTrainingSet(model string, examples, minimum int) error {
	if examples < minimum {
		return fmt.Errorf("%w: %s requires at least %d examples, got %d",
			domain.ErrInsufficientData, model, minimum, examples)
	}
	return nil
}
