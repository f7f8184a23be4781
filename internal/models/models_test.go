package models

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/optimizer"
	"github.com/agrilab/quantfarm/internal/quantum/backend"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

func testConfig() Config {
	return Config{
		Qubits:     4,
		Depth:      3,
		Shots:      512,
		FeatureMap: circuit.MapAngle,
		Ansatz:     circuit.AnsatzRealAmplitudes,
		Seed:       42,
		Optimizer:  optimizer.Options{Method: optimizer.MethodSPSA, MaxIter: 8, Patience: 3},
	}
}

func testBackend() Backend {
	return backend.NewAdapter(backend.AdapterConfig{Kind: backend.KindSimulator, Seed: 42}, zerolog.Nop())
}

func trainingData(n int) ([]domain.FeatureVector, []float64) {
	X := make([]domain.FeatureVector, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X[i] = domain.FeatureVector{
			Temperature: 20 + float64(i)*3,
			Humidity:    50 + float64(i)*5,
			SoilPH:      6.0 + float64(i)*0.2,
			Rainfall:    80 + float64(i)*20,
			Fertilizer:  40 + float64(i)*10,
		}
		y[i] = 2.5 + 0.4*float64(i)
	}
	return X, y
}

func TestYieldRegressor_TrainAndPredict(t *testing.T) {
	m := NewYieldRegressor(testConfig(), testBackend(), nil, zerolog.Nop())
	X, y := trainingData(5)

	report, err := m.Train(context.Background(), X, y)
	require.NoError(t, err)

	assert.Equal(t, "yield_regressor", report.Model)
	assert.Equal(t, 5, report.Examples)
	assert.Greater(t, report.Iterations, 0)
	assert.GreaterOrEqual(t, report.BestObjective, 0.0)

	pred, err := m.Predict(context.Background(), X[2])
	require.NoError(t, err)
	require.NotNil(t, pred.Yield)

	assert.GreaterOrEqual(t, pred.Yield.Confidence, 0.0)
	assert.LessOrEqual(t, pred.Yield.Confidence, 1.0)

	// The target scaling bounds predictions to the observed yield range.
	assert.GreaterOrEqual(t, pred.Yield.TonsPerHectare, y[0])
	assert.LessOrEqual(t, pred.Yield.TonsPerHectare, y[4])
}

func TestYieldRegressor_InsufficientData(t *testing.T) {
	m := NewYieldRegressor(testConfig(), testBackend(), nil, zerolog.Nop())
	X, y := trainingData(3)

	_, err := m.Train(context.Background(), X, y)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestYieldRegressor_PredictBeforeTrain(t *testing.T) {
	m := NewYieldRegressor(testConfig(), testBackend(), nil, zerolog.Nop())
	X, _ := trainingData(1)

	_, err := m.Predict(context.Background(), X[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUntrainedModel))
}

func TestYieldRegressor_StateRoundtrip(t *testing.T) {
	cfg := testConfig()
	trained := NewYieldRegressor(cfg, testBackend(), nil, zerolog.Nop())
	X, y := trainingData(5)

	_, err := trained.Train(context.Background(), X, y)
	require.NoError(t, err)

	state, err := trained.ExportState()
	require.NoError(t, err)

	restored := NewYieldRegressor(cfg, testBackend(), nil, zerolog.Nop())
	require.NoError(t, restored.RestoreState(state))

	a, err := trained.Predict(context.Background(), X[1])
	require.NoError(t, err)
	b, err := restored.Predict(context.Background(), X[1])
	require.NoError(t, err)

	assert.Equal(t, a.Yield.TonsPerHectare, b.Yield.TonsPerHectare)
}

func TestYieldRegressor_RestoreRejectsWrongShape(t *testing.T) {
	m := NewYieldRegressor(testConfig(), testBackend(), nil, zerolog.Nop())

	err := m.RestoreState(&TrainedState{Model: "yield_regressor", Params: []float64{1, 2, 3}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))

	err = m.RestoreState(&TrainedState{Model: "pest_classifier"})
	assert.Error(t, err)
}

func testZones() []Zone {
	return []Zone{
		{ID: "north", RequirementLiters: 1200},
		{ID: "east", RequirementLiters: 900},
		{ID: "south", RequirementLiters: 600},
		{ID: "west", RequirementLiters: 800},
	}
}

func TestIrrigationModel_PlanWithinBudget(t *testing.T) {
	const budget = 1500.0 // tight budget forces scale-down on most decodes

	m, err := NewIrrigationModel(testConfig(), testZones(), budget, testBackend(), nil, zerolog.Nop())
	require.NoError(t, err)

	X, _ := trainingData(5)
	report, err := m.Train(context.Background(), X, nil)
	require.NoError(t, err)
	assert.Equal(t, "irrigation_optimizer", report.Model)

	pred, err := m.Predict(context.Background(), domain.FeatureVector{})
	require.NoError(t, err)
	require.NotNil(t, pred.Irrigation)

	plan := pred.Irrigation
	assert.Len(t, plan.Allocations, 4)
	assert.Len(t, plan.Bitstring, 4)
	assert.LessOrEqual(t, plan.TotalLiters, budget+1e-9)

	var total float64
	for _, a := range plan.Allocations {
		assert.GreaterOrEqual(t, a.Liters, 0.0)
		total += a.Liters
	}
	assert.InDelta(t, plan.TotalLiters, total, 1e-9)

	if plan.Adjusted {
		assert.Less(t, plan.ScaleFactor, 1.0)
		assert.InDelta(t, budget, plan.TotalLiters, 1e-9)
	} else {
		assert.Equal(t, 1.0, plan.ScaleFactor)
	}
}

func TestIrrigationModel_Validation(t *testing.T) {
	cfg := testConfig()
	b := testBackend()

	_, err := NewIrrigationModel(cfg, testZones()[:1], 1000, b, nil, zerolog.Nop())
	assert.Error(t, err, "single zone is below the minimum problem size")

	_, err = NewIrrigationModel(cfg, testZones(), 0, b, nil, zerolog.Nop())
	assert.Error(t, err, "budget must be positive")

	bad := testZones()
	bad[2].RequirementLiters = -10
	_, err = NewIrrigationModel(cfg, bad, 1000, b, nil, zerolog.Nop())
	assert.Error(t, err, "requirements must be positive")
}

func TestIrrigationModel_InsufficientHistory(t *testing.T) {
	m, err := NewIrrigationModel(testConfig(), testZones(), 2000, testBackend(), nil, zerolog.Nop())
	require.NoError(t, err)

	X, _ := trainingData(4)
	_, err = m.Train(context.Background(), X, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestIrrigationModel_PredictBeforeTrain(t *testing.T) {
	m, err := NewIrrigationModel(testConfig(), testZones(), 2000, testBackend(), nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.Predict(context.Background(), domain.FeatureVector{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUntrainedModel))
}

func pestData() ([]domain.FeatureVector, []float64) {
	// High risk: hot and humid. Low risk: cold and dry. Separated clusters
	// keep the kernel margin unambiguous.
	high := domain.FeatureVector{Temperature: 52, Humidity: 95, SoilPH: 6.5, Rainfall: 400, Fertilizer: 100}
	low := domain.FeatureVector{Temperature: -5, Humidity: 10, SoilPH: 6.5, Rainfall: 10, Fertilizer: 100}

	var X []domain.FeatureVector
	var y []float64
	for i := 0; i < 3; i++ {
		h := high
		h.Temperature -= float64(i)
		X = append(X, h)
		y = append(y, 1)

		l := low
		l.Temperature += float64(i)
		X = append(X, l)
		y = append(y, 0)
	}
	return X, y
}

func TestPestClassifier_TrainAndPredict(t *testing.T) {
	m := NewPestClassifier(testConfig(), testBackend(), nil, zerolog.Nop())
	X, y := pestData()

	report, err := m.Train(context.Background(), X, y)
	require.NoError(t, err)
	assert.Equal(t, "pest_classifier", report.Model)
	assert.Equal(t, len(X), report.Examples)

	pred, err := m.Predict(context.Background(), X[0])
	require.NoError(t, err)
	require.NotNil(t, pred.PestRisk)

	risk := pred.PestRisk
	assert.Equal(t, RiskHigh, risk.Level)
	assert.Greater(t, risk.Margin, 0.0)
	assert.GreaterOrEqual(t, risk.Probability, 0.0)
	assert.LessOrEqual(t, risk.Probability, 1.0)
	assert.NotEmpty(t, risk.Recommendations)

	pred, err = m.Predict(context.Background(), X[1])
	require.NoError(t, err)
	assert.Equal(t, RiskLow, pred.PestRisk.Level)
}

func TestPestClassifier_RequiresBothClasses(t *testing.T) {
	m := NewPestClassifier(testConfig(), testBackend(), nil, zerolog.Nop())
	X, _ := trainingData(5)
	y := []float64{1, 1, 1, 1, 1}

	_, err := m.Train(context.Background(), X, y)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestPestClassifier_SupportCap(t *testing.T) {
	m := NewPestClassifier(testConfig(), testBackend(), nil, zerolog.Nop())

	n := MaxSupportExamples + 20
	X := make([]domain.FeatureVector, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		X[i] = domain.FeatureVector{
			Temperature: 10 + float64(i%30),
			Humidity:    30 + float64(i%50),
			SoilPH:      6.0,
			Rainfall:    100,
			Fertilizer:  50,
		}
		if i%2 == 0 {
			y[i] = 1
		}
	}

	report, err := m.Train(context.Background(), X, y)
	require.NoError(t, err)
	assert.Equal(t, MaxSupportExamples, report.Examples)
}

func TestPestClassifier_StateRoundtrip(t *testing.T) {
	cfg := testConfig()
	trained := NewPestClassifier(cfg, testBackend(), nil, zerolog.Nop())
	X, y := pestData()

	_, err := trained.Train(context.Background(), X, y)
	require.NoError(t, err)

	state, err := trained.ExportState()
	require.NoError(t, err)

	restored := NewPestClassifier(cfg, testBackend(), nil, zerolog.Nop())
	require.NoError(t, restored.RestoreState(state))

	pred, err := restored.Predict(context.Background(), X[0])
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, pred.PestRisk.Level)
}
