package models

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/optimizer"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// YieldRegressor is the variational regressor for crop yield. The objective
// is mean squared error between the circuit expectation (scaled to yield
// units) and the observed yields; parameters are trained by the classical
// optimizer through the backend adapter.
type YieldRegressor struct {
	cfg     Config
	backend Backend
	opt     *optimizer.Optimizer
	bus     *events.Bus
	log     zerolog.Logger

	mu         sync.Mutex
	params     []float64
	trained    bool
	yMin, yMax float64
}

// NewYieldRegressor creates an untrained regressor.
func NewYieldRegressor(cfg Config, b Backend, bus *events.Bus, log zerolog.Logger) *YieldRegressor {
	opts := cfg.Optimizer
	opts.Seed = cfg.Seed
	return &YieldRegressor{
		cfg:     cfg,
		backend: b,
		opt:     optimizer.New(opts, log),
		bus:     bus,
		log:     log.With().Str("model", "yield_regressor").Logger(),
	}
}

// Name implements Model.
func (m *YieldRegressor) Name() string { return "yield_regressor" }

// Train fits the ansatz parameters to (X, y) where y is observed yield in
// tons per hectare. Backend failures abort the current evaluation and
// propagate; parameters are only replaced after a successful run.
func (m *YieldRegressor) Train(ctx context.Context, X []domain.FeatureVector, y []float64) (*TrainingReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkTrainingSet(m.Name(), len(X), MinTrainingExamples); err != nil {
		return nil, err
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("feature count %d does not match label count %d", len(X), len(y))
	}

	start := time.Now()

	// Scale targets into the [0,1] range the expectation value lives in.
	yMin, yMax := y[0], y[0]
	for _, v := range y {
		yMin = math.Min(yMin, v)
		yMax = math.Max(yMax, v)
	}
	if yMax == yMin {
		yMax = yMin + 1
	}
	yNorm := make([]float64, len(y))
	for i, v := range y {
		yNorm[i] = (v - yMin) / (yMax - yMin)
	}

	// Circuits are built once per sample; only parameters change between
	// optimizer iterations.
	descs := make([]*circuit.Description, len(X))
	for i, x := range X {
		features, err := encodeFeatures(x, m.cfg.Qubits)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		desc, err := circuit.Build(features, m.cfg.Qubits, m.cfg.Depth, m.cfg.FeatureMap, m.cfg.Ansatz)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
		descs[i] = desc
	}

	initial, err := circuit.InitialParams(m.cfg.Ansatz, m.cfg.Qubits, m.cfg.Depth, m.cfg.Seed)
	if err != nil {
		return nil, err
	}

	m.publish(events.TrainingStarted, map[string]interface{}{"examples": len(X)})

	evals := 0
	objective := func(params []float64) (float64, error) {
		var mse float64
		for i, desc := range descs {
			result, err := m.backend.Evaluate(ctx, desc, params, m.cfg.Shots)
			if err != nil {
				return 0, err
			}
			diff := result.Expectation - yNorm[i]
			mse += diff * diff
		}
		mse /= float64(len(descs))
		evals++
		m.publish(events.TrainingProgress, map[string]interface{}{"evaluation": evals, "loss": mse})
		return mse, nil
	}

	params, best, info, err := m.opt.Minimize(ctx, objective, initial)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	m.params = params
	m.trained = true
	m.yMin, m.yMax = yMin, yMax

	report := &TrainingReport{
		Model:         m.Name(),
		Examples:      len(X),
		Iterations:    info.Iterations,
		Converged:     info.Converged,
		BestObjective: best,
		Duration:      time.Since(start),
	}
	m.publish(events.TrainingCompleted, map[string]interface{}{
		"iterations": info.Iterations,
		"converged":  info.Converged,
		"loss":       best,
	})
	m.log.Info().
		Int("examples", len(X)).
		Int("iterations", info.Iterations).
		Bool("converged", info.Converged).
		Float64("mse", best).
		Msg("Training completed")

	return report, nil
}

// Predict evaluates the trained circuit for a query vector and returns yield
// in tons per hectare with a confidence derived from shot variance.
func (m *YieldRegressor) Predict(ctx context.Context, x domain.FeatureVector) (*Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.trained {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrainedModel, m.Name())
	}

	features, err := encodeFeatures(x, m.cfg.Qubits)
	if err != nil {
		return nil, err
	}
	desc, err := circuit.Build(features, m.cfg.Qubits, m.cfg.Depth, m.cfg.FeatureMap, m.cfg.Ansatz)
	if err != nil {
		return nil, err
	}

	result, err := m.backend.Evaluate(ctx, desc, m.params, m.cfg.Shots)
	if err != nil {
		return nil, err
	}

	yield := result.Expectation*(m.yMax-m.yMin) + m.yMin

	// The expectation lives in [0,1], so its standard deviation is at most
	// 0.5; scale it into a [0,1] confidence.
	confidence := 1 - 2*math.Sqrt(result.Variance)
	confidence = math.Max(0, math.Min(1, confidence))

	return &Prediction{
		Model: m.Name(),
		Yield: &YieldPrediction{
			TonsPerHectare: yield,
			Confidence:     confidence,
		},
	}, nil
}

// ExportState implements Stateful.
func (m *YieldRegressor) ExportState() (*TrainedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.trained {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrainedModel, m.Name())
	}
	params := make([]float64, len(m.params))
	copy(params, m.params)
	return &TrainedState{
		Model:  m.Name(),
		Params: params,
		YMin:   m.yMin,
		YMax:   m.yMax,
	}, nil
}

// RestoreState implements Stateful.
func (m *YieldRegressor) RestoreState(s *TrainedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Model != m.Name() {
		return fmt.Errorf("state belongs to %q, not %q", s.Model, m.Name())
	}
	want, err := circuit.ParamCount(m.cfg.Ansatz, m.cfg.Qubits, m.cfg.Depth)
	if err != nil {
		return err
	}
	if len(s.Params) != want {
		return fmt.Errorf("%w: state has %d parameters, circuit needs %d",
			domain.ErrDimensionMismatch, len(s.Params), want)
	}

	m.params = make([]float64, len(s.Params))
	copy(m.params, s.Params)
	m.yMin, m.yMax = s.YMin, s.YMax
	m.trained = true
	m.log.Info().Int("params", len(m.params)).Msg("State restored")
	return nil
}

func (m *YieldRegressor) publish(t events.EventType, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	data["model"] = m.Name()
	m.bus.Publish(t, "models", data)
}
