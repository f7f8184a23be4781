package models

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/optimizer"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// A zone selected by the optimizer receives this share of its (scaled)
// requirement. Leaving headroom below 1.0 lets the solver water more zones
// inside the same budget.
const irrigationFillRatio = 0.8

// Zone is one irrigation zone of the fixed problem instance.
type Zone struct {
	ID                string  `json:"id"`
	RequirementLiters float64 `json:"requirement_liters"`
}

// IrrigationModel solves water allocation as a combinatorial assignment:
// each qubit represents one zone, and the trained circuit concentrates
// probability on zone subsets with low cost (close to budget, little unmet
// demand). Training runs the classical optimizer directly against the cost
// objective; historical environmental snapshots scale the per-zone demand.
type IrrigationModel struct {
	cfg    Config
	zones  []Zone
	budget float64

	backend Backend
	opt     *optimizer.Optimizer
	bus     *events.Bus
	log     zerolog.Logger

	mu          sync.Mutex
	params      []float64
	desc        *circuit.Description
	scaledReq   []float64
	trained     bool
	demandScale float64
}

// NewIrrigationModel creates an untrained irrigation model for a fixed set
// of zones and a total water budget in liters. Zone count must fit the
// supported qubit range; each zone occupies one qubit.
func NewIrrigationModel(cfg Config, zones []Zone, budgetLiters float64, b Backend, bus *events.Bus, log zerolog.Logger) (*IrrigationModel, error) {
	if len(zones) < circuit.MinQubits || len(zones) > circuit.MaxQubits {
		return nil, fmt.Errorf("zone count %d outside [%d, %d]", len(zones), circuit.MinQubits, circuit.MaxQubits)
	}
	if budgetLiters <= 0 {
		return nil, fmt.Errorf("water budget must be positive, got %.1f", budgetLiters)
	}
	for i, z := range zones {
		if z.RequirementLiters <= 0 {
			return nil, fmt.Errorf("zone %d (%s) has non-positive requirement", i, z.ID)
		}
	}

	cfg.Qubits = len(zones)
	opts := cfg.Optimizer
	opts.Seed = cfg.Seed
	return &IrrigationModel{
		cfg:     cfg,
		zones:   zones,
		budget:  budgetLiters,
		backend: b,
		opt:     optimizer.New(opts, log),
		bus:     bus,
		log:     log.With().Str("model", "irrigation_optimizer").Logger(),
	}, nil
}

// Name implements Model.
func (m *IrrigationModel) Name() string { return "irrigation_optimizer" }

// Train derives the demand scale from historical environmental snapshots
// (dry history raises requirements) and then searches circuit parameters
// minimizing the expected allocation cost. Labels are not used; the problem
// instance is the zones and budget fixed at construction.
func (m *IrrigationModel) Train(ctx context.Context, X []domain.FeatureVector, _ []float64) (*TrainingReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkTrainingSet(m.Name(), len(X), MinTrainingExamples); err != nil {
		return nil, err
	}

	start := time.Now()

	scale, err := demandScale(X)
	if err != nil {
		return nil, err
	}

	scaledReq := make([]float64, len(m.zones))
	maxReq := 0.0
	for i, z := range m.zones {
		scaledReq[i] = z.RequirementLiters * scale
		maxReq = math.Max(maxReq, scaledReq[i])
	}

	// Encode relative zone demand as the circuit's feature angles.
	features := make([]float64, len(m.zones))
	for i, r := range scaledReq {
		features[i] = r / maxReq
	}

	desc, err := circuit.Build(features, m.cfg.Qubits, m.cfg.Depth, m.cfg.FeatureMap, m.cfg.Ansatz)
	if err != nil {
		return nil, err
	}
	initial, err := circuit.InitialParams(m.cfg.Ansatz, m.cfg.Qubits, m.cfg.Depth, m.cfg.Seed)
	if err != nil {
		return nil, err
	}

	m.publish(events.TrainingStarted, map[string]interface{}{
		"zones":        len(m.zones),
		"demand_scale": scale,
	})

	objective := func(params []float64) (float64, error) {
		result, err := m.backend.Evaluate(ctx, desc, params, m.cfg.Shots)
		if err != nil {
			return 0, err
		}

		// Expected cost over the sampled bitstring distribution.
		var cost float64
		for bits, count := range result.Counts {
			cost += m.allocationCost(bits, scaledReq) * float64(count) / float64(result.Shots)
		}
		return cost, nil
	}

	params, best, info, err := m.opt.Minimize(ctx, objective, initial)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	m.params = params
	m.desc = desc
	m.scaledReq = scaledReq
	m.demandScale = scale
	m.trained = true

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
		"cost":       best,
	})
	m.log.Info().
		Int("iterations", info.Iterations).
		Bool("converged", info.Converged).
		Float64("cost", best).
		Float64("demand_scale", scale).
		Msg("Training completed")

	return report, nil
}

// Predict decodes the highest-probability bitstring of the trained circuit
// into a per-zone allocation. The plan always sums to at most the budget:
// an overshooting decode is scaled down deterministically and the
// adjustment is reported. The query vector is unused; the problem instance
// is fixed at construction.
func (m *IrrigationModel) Predict(ctx context.Context, _ domain.FeatureVector) (*Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.trained {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrainedModel, m.Name())
	}

	result, err := m.backend.Evaluate(ctx, m.desc, m.params, m.cfg.Shots)
	if err != nil {
		return nil, err
	}

	best := topBitstring(result.Counts)

	allocations := make([]ZoneAllocation, len(m.zones))
	total := 0.0
	for i, z := range m.zones {
		liters := 0.0
		if best[i] == '1' {
			liters = irrigationFillRatio * m.scaledReq[i]
		}
		allocations[i] = ZoneAllocation{Zone: z.ID, Liters: liters}
		total += liters
	}

	plan := &IrrigationPlan{
		Allocations:  allocations,
		TotalLiters:  total,
		BudgetLiters: m.budget,
		ScaleFactor:  1,
		Bitstring:    best,
	}

	if total > m.budget {
		factor := m.budget / total
		for i := range plan.Allocations {
			plan.Allocations[i].Liters *= factor
		}
		plan.TotalLiters = m.budget
		plan.Adjusted = true
		plan.ScaleFactor = factor
		m.log.Debug().
			Float64("decoded_liters", total).
			Float64("scale_factor", factor).
			Msg("Decoded allocation exceeded budget, scaled down")
	}

	return &Prediction{Model: m.Name(), Irrigation: plan}, nil
}

// allocationCost scores one zone subset: distance from budget plus a
// penalty for unmet demand, both normalized so neither term dominates.
func (m *IrrigationModel) allocationCost(bits string, scaledReq []float64) float64 {
	var allocated, unmet, totalReq float64
	for i, r := range scaledReq {
		totalReq += r
		if i < len(bits) && bits[i] == '1' {
			allocated += irrigationFillRatio * r
		} else {
			unmet += r
		}
	}

	cost := math.Abs(allocated-m.budget) / m.budget
	cost += 0.5 * unmet / totalReq
	if allocated > m.budget {
		// Overshoot forces a scale-down at decode time; penalize it harder
		// than undershoot.
		cost += (allocated - m.budget) / m.budget
	}
	return cost
}

// demandScale maps mean historical dryness into a requirement multiplier in
// [0.6, 1.2]: a dry season raises demand, a wet one lowers it.
func demandScale(X []domain.FeatureVector) (float64, error) {
	var dryness float64
	for i, x := range X {
		norm, err := x.Normalize()
		if err != nil {
			return 0, fmt.Errorf("example %d: %w", i, err)
		}
		// Canonical order: temperature, humidity, soil_ph, rainfall, ...
		dryness += 0.2*norm[0] + 0.3*(1-norm[1]) + 0.5*(1-norm[3])
	}
	dryness /= float64(len(X))
	return 0.6 + 0.6*dryness, nil
}

// topBitstring picks the most frequent outcome, breaking count ties
// lexicographically so decoding is deterministic.
func topBitstring(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := "", -1
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// ExportState implements Stateful.
func (m *IrrigationModel) ExportState() (*TrainedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.trained {
		return nil, fmt.Errorf("%w: %s", domain.ErrUntrainedModel, m.Name())
	}
	params := make([]float64, len(m.params))
	copy(params, m.params)
	scaledReq := make([]float64, len(m.scaledReq))
	copy(scaledReq, m.scaledReq)
	return &TrainedState{
		Model:       m.Name(),
		Params:      params,
		ScaledReq:   scaledReq,
		DemandScale: m.demandScale,
	}, nil
}

// RestoreState implements Stateful. The circuit description is rebuilt from
// the stored scaled requirements; the zones and budget come from construction
// and must match the snapshot's problem size.
func (m *IrrigationModel) RestoreState(s *TrainedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Model != m.Name() {
		return fmt.Errorf("state belongs to %q, not %q", s.Model, m.Name())
	}
	if len(s.ScaledReq) != len(m.zones) {
		return fmt.Errorf("%w: state has %d zones, model has %d",
			domain.ErrDimensionMismatch, len(s.ScaledReq), len(m.zones))
	}
	want, err := circuit.ParamCount(m.cfg.Ansatz, m.cfg.Qubits, m.cfg.Depth)
	if err != nil {
		return err
	}
	if len(s.Params) != want {
		return fmt.Errorf("%w: state has %d parameters, circuit needs %d",
			domain.ErrDimensionMismatch, len(s.Params), want)
	}

	maxReq := 0.0
	for _, r := range s.ScaledReq {
		maxReq = math.Max(maxReq, r)
	}
	features := make([]float64, len(s.ScaledReq))
	for i, r := range s.ScaledReq {
		features[i] = r / maxReq
	}
	desc, err := circuit.Build(features, m.cfg.Qubits, m.cfg.Depth, m.cfg.FeatureMap, m.cfg.Ansatz)
	if err != nil {
		return err
	}

	m.params = make([]float64, len(s.Params))
	copy(m.params, s.Params)
	m.scaledReq = make([]float64, len(s.ScaledReq))
	copy(m.scaledReq, s.ScaledReq)
	m.demandScale = s.DemandScale
	m.desc = desc
	m.trained = true
	m.log.Info().Int("zones", len(m.zones)).Msg("State restored")
	return nil
}

func (m *IrrigationModel) publish(t events.EventType, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	data["model"] = m.Name()
	m.bus.Publish(t, "models", data)
}
