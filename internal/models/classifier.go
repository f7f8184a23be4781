package models

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// Steepness of the margin-to-probability sigmoid. Kernel margins live
// roughly in [-1, 1]; this maps a full margin to ~0.998 probability.
const marginSteepness = 6.0

// PestClassifier is the binary pest-risk model. Training stores a bounded
// support set; prediction compares the query against every support example
// through a quantum kernel (feature-map state fidelity) and classifies by
// the sign of the mean-kernel margin between the two classes.
type PestClassifier struct {
	cfg     Config
	backend Backend
	bus     *events.Bus
	log     zerolog.Logger

	mu      sync.Mutex
	support [][]float64
	labels  []bool // true = high risk
	trained bool
}

// NewPestClassifier creates an untrained classifier.
func NewPestClassifier(cfg Config, b Backend, bus *events.Bus, log zerolog.Logger) *PestClassifier {
	return &PestClassifier{
		cfg:     cfg,
		backend: b,
		bus:     bus,
		log:     log.With().Str("model", "pest_classifier").Logger(),
	}
}

// Name implements Model.
func (m *PestClassifier) Name() string { return "pest_classifier" }

// Train stores the support set. Labels follow the common (X, y) contract:
// y > 0.5 means high risk. The support set is capped at MaxSupportExamples
// (most recent kept) because kernel evaluation is quadratic in its size.
func (m *PestClassifier) Train(ctx context.Context, X []domain.FeatureVector, y []float64) (*TrainingReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkTrainingSet(m.Name(), len(X), MinTrainingExamples); err != nil {
		return nil, err
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("feature count %d does not match label count %d", len(X), len(y))
	}

	start := time.Now()

	if len(X) > MaxSupportExamples {
		X = X[len(X)-MaxSupportExamples:]
		y = y[len(y)-MaxSupportExamples:]
	}

	support := make([][]float64, len(X))
	labels := make([]bool, len(X))
	var high, low int
	for i, x := range X {
		features, err := encodeFeatures(x, m.cfg.Qubits)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		support[i] = features
		labels[i] = y[i] > 0.5
		if labels[i] {
			high++
		} else {
			low++
		}
	}
	if high == 0 || low == 0 {
		return nil, fmt.Errorf("%w: %s requires examples of both classes (high=%d, low=%d)",
			domain.ErrInsufficientData, m.Name(), high, low)
	}

	// Separation check on a bounded subsample: mean kernel between classes
	// should be low for a usable support set. This is diagnostic, the
	// support set is kept either way.
	separation, evals, err := m.classSeparation(ctx, support, labels)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	m.support = support
	m.labels = labels
	m.trained = true

	report := &TrainingReport{
		Model:         m.Name(),
		Examples:      len(support),
		Iterations:    evals,
		Converged:     true,
		BestObjective: separation,
		Duration:      time.Since(start),
	}
	m.publish(events.TrainingCompleted, map[string]interface{}{
		"examples":     len(support),
		"high":         high,
		"low":          low,
		"inter_kernel": separation,
	})
	m.log.Info().
		Int("examples", len(support)).
		Int("high", high).
		Int("low", low).
		Float64("inter_kernel", separation).
		Msg("Support set stored")

	return report, nil
}

// Predict classifies a query vector by its mean kernel similarity to each
// class. Returns High or Low plus a probability derived from the decision
// margin.
func (m *PestClassifier) Predict(ctx context.Context, x domain.FeatureVector) (*Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.trained {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrainedModel, m.Name())
	}

	query, err := encodeFeatures(x, m.cfg.Qubits)
	if err != nil {
		return nil, err
	}

	var sumHigh, sumLow float64
	var nHigh, nLow int
	for i, s := range m.support {
		k, err := m.kernel(ctx, query, s)
		if err != nil {
			return nil, err
		}
		if m.labels[i] {
			sumHigh += k
			nHigh++
		} else {
			sumLow += k
			nLow++
		}
	}

	margin := sumHigh/float64(nHigh) - sumLow/float64(nLow)
	probability := 1 / (1 + math.Exp(-marginSteepness*margin))

	level := RiskLow
	if margin > 0 {
		level = RiskHigh
	}

	return &Prediction{
		Model: m.Name(),
		PestRisk: &PestRiskPrediction{
			Level:           level,
			Probability:     probability,
			Margin:          margin,
			Recommendations: recommendations(probability),
		},
	}, nil
}

// kernel estimates |<phi(b)|phi(a)>|^2 as the all-zeros probability of the
// fidelity circuit.
func (m *PestClassifier) kernel(ctx context.Context, a, b []float64) (float64, error) {
	desc, err := circuit.BuildKernel(a, b, m.cfg.Qubits, m.cfg.Depth, m.cfg.FeatureMap)
	if err != nil {
		return 0, err
	}
	result, err := m.backend.Evaluate(ctx, desc, nil, m.cfg.Shots)
	if err != nil {
		return 0, err
	}
	zeros := strings.Repeat("0", m.cfg.Qubits)
	return float64(result.Counts[zeros]) / float64(result.Shots), nil
}

// classSeparation samples up to 4 examples per class and averages the
// cross-class kernel. Low values mean the feature map separates the classes.
func (m *PestClassifier) classSeparation(ctx context.Context, support [][]float64, labels []bool) (float64, int, error) {
	const perClass = 4
	var highs, lows [][]float64
	for i, s := range support {
		if labels[i] && len(highs) < perClass {
			highs = append(highs, s)
		}
		if !labels[i] && len(lows) < perClass {
			lows = append(lows, s)
		}
	}

	var sum float64
	evals := 0
	for _, h := range highs {
		for _, l := range lows {
			k, err := m.kernel(ctx, h, l)
			if err != nil {
				return 0, evals, err
			}
			sum += k
			evals++
		}
	}
	return sum / float64(evals), evals, nil
}

// recommendations mirrors the advisory tiers shown on the dashboard.
func recommendations(probability float64) []string {
	switch {
	case probability > 0.7:
		return []string{
			"Immediate field inspection recommended",
			"Deploy pheromone traps in high-risk zones",
			"Consider targeted organic pesticide application",
		}
	case probability > 0.4:
		return []string{
			"Increase monitoring frequency to daily",
			"Focus on vulnerable crop sections",
			"Prepare mitigation resources",
		}
	default:
		return []string{
			"Conditions favorable, continue standard monitoring",
			"Maintain beneficial insect habitats",
		}
	}
}

// ExportState implements Stateful.
func (m *PestClassifier) ExportState() (*TrainedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.trained {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrainedModel, m.Name())
	}
	support := make([][]float64, len(m.support))
	for i, s := range m.support {
		support[i] = append([]float64(nil), s...)
	}
	return &TrainedState{
		Model:   m.Name(),
		Support: support,
		Labels:  append([]bool(nil), m.labels...),
	}, nil
}

// RestoreState implements Stateful.
func (m *PestClassifier) RestoreState(s *TrainedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Model != m.Name() {
		return fmt.Errorf("state belongs to %q, not %q", s.Model, m.Name())
	}
	if len(s.Support) != len(s.Labels) {
		return fmt.Errorf("state has %d support examples but %d labels", len(s.Support), len(s.Labels))
	}
	var high, low int
	for i, ex := range s.Support {
		if len(ex) == 0 || len(ex) > m.cfg.Qubits {
			return fmt.Errorf("%w: support example %d has %d features for %d qubits",
				domain.ErrDimensionMismatch, i, len(ex), m.cfg.Qubits)
		}
		if s.Labels[i] {
			high++
		} else {
			low++
		}
	}
	if high == 0 || low == 0 {
		return fmt.Errorf("%w: state must hold examples of both classes", domain.ErrInsufficientData)
	}

	support := make([][]float64, len(s.Support))
	for i, ex := range s.Support {
		support[i] = append([]float64(nil), ex...)
	}
	m.support = support
	m.labels = append([]bool(nil), s.Labels...)
	m.trained = true
	m.log.Info().Int("examples", len(support)).Msg("State restored")
	return nil
}

func (m *PestClassifier) publish(t events.EventType, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	data["model"] = m.Name()
	m.bus.Publish(t, "models", data)
}
