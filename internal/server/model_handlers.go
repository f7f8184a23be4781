package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/ingest"
	"github.com/agrilab/quantfarm/internal/models"
	"github.com/agrilab/quantfarm/internal/reliability"
)

// ModelHandlers serves train and predict for the three model variants plus
// snapshot save/restore.
type ModelHandlers struct {
	yield      *models.YieldRegressor
	irrigation *models.IrrigationModel
	pest       *models.PestClassifier
	snapshots  *reliability.SnapshotService
	bus        *events.Bus
	data       *DataHandlers
	log        zerolog.Logger
}

// NewModelHandlers creates the model API handlers.
func NewModelHandlers(deps Deps, data *DataHandlers) *ModelHandlers {
	return &ModelHandlers{
		yield:      deps.Yield,
		irrigation: deps.Irrigation,
		pest:       deps.Pest,
		snapshots:  deps.Snapshots,
		bus:        deps.Bus,
		data:       data,
		log:        deps.Log.With().Str("component", "model_handlers").Logger(),
	}
}

type yieldExample struct {
	Features domain.FeatureVector `json:"features"`
	Yield    float64              `json:"yield_tons_per_hectare"`
}

type yieldTrainRequest struct {
	Examples []yieldExample `json:"examples"`
}

// HandleYieldTrain trains the yield regressor.
// POST /api/models/yield/train
func (h *ModelHandlers) HandleYieldTrain(w http.ResponseWriter, r *http.Request) {
	var req yieldTrainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	X := make([]domain.FeatureVector, len(req.Examples))
	y := make([]float64, len(req.Examples))
	for i, ex := range req.Examples {
		X[i] = ex.Features
		y[i] = ex.Yield
	}

	report, err := h.yield.Train(r.Context(), X, y)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, report)
}

// predictRequest accepts either an explicit feature vector or a location to
// assemble one from live collector data.
type predictRequest struct {
	Features       *domain.FeatureVector `json:"features,omitempty"`
	Location       string                `json:"location,omitempty"`
	RainfallMM     float64               `json:"rainfall_mm,omitempty"`
	FertilizerKgHa float64               `json:"fertilizer_kg_ha,omitempty"`
}

// resolveFeatures turns a predict request into a validated feature vector and
// its provenance. Explicit features count as live input.
func (h *ModelHandlers) resolveFeatures(r *http.Request, req predictRequest) (domain.FeatureVector, domain.Provenance, error) {
	if req.Features != nil {
		if err := req.Features.Validate(); err != nil {
			return domain.FeatureVector{}, "", err
		}
		return *req.Features, domain.ProvenanceLive, nil
	}

	loc, err := h.lookupLocation(req.Location)
	if err != nil {
		return domain.FeatureVector{}, "", err
	}
	return h.data.liveFeatures(r, loc, req.RainfallMM, req.FertilizerKgHa)
}

func (h *ModelHandlers) lookupLocation(name string) (ingest.Location, error) {
	if name == "" {
		return h.data.locations[0], nil
	}
	for _, loc := range h.data.locations {
		if loc.Name == name {
			return loc, nil
		}
	}
	return ingest.Location{}, fmt.Errorf("%w: unknown location %q", domain.ErrValidation, name)
}

// HandleYieldPredict serves a yield prediction.
// POST /api/models/yield/predict
func (h *ModelHandlers) HandleYieldPredict(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, h.yield)
}

// HandlePestPredict serves a pest risk prediction.
// POST /api/models/pest/predict
func (h *ModelHandlers) HandlePestPredict(w http.ResponseWriter, r *http.Request) {
	h.predict(w, r, h.pest)
}

func (h *ModelHandlers) predict(w http.ResponseWriter, r *http.Request, m models.Model) {
	var req predictRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	features, provenance, err := h.resolveFeatures(r, req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	prediction, err := m.Predict(r.Context(), features)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	prediction.Provenance = provenance

	h.bus.Publish(events.PredictionServed, "server", map[string]interface{}{
		"model":      m.Name(),
		"provenance": string(provenance),
	})
	writeJSON(w, r, h.log, http.StatusOK, prediction)
}

type irrigationTrainRequest struct {
	Snapshots []domain.FeatureVector `json:"snapshots"`
}

// HandleIrrigationTrain trains the irrigation optimizer against historical
// environmental snapshots.
// POST /api/models/irrigation/train
func (h *ModelHandlers) HandleIrrigationTrain(w http.ResponseWriter, r *http.Request) {
	var req irrigationTrainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	report, err := h.irrigation.Train(r.Context(), req.Snapshots, nil)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, report)
}

// HandleIrrigationPlan decodes the trained circuit into an allocation plan.
// GET /api/models/irrigation/plan
func (h *ModelHandlers) HandleIrrigationPlan(w http.ResponseWriter, r *http.Request) {
	prediction, err := h.irrigation.Predict(r.Context(), domain.FeatureVector{})
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	h.bus.Publish(events.PredictionServed, "server", map[string]interface{}{
		"model": h.irrigation.Name(),
	})
	writeJSON(w, r, h.log, http.StatusOK, prediction)
}

type pestExample struct {
	Features domain.FeatureVector `json:"features"`
	HighRisk bool                 `json:"high_risk"`
}

type pestTrainRequest struct {
	Examples []pestExample `json:"examples"`
}

// HandlePestTrain stores the classifier support set.
// POST /api/models/pest/train
func (h *ModelHandlers) HandlePestTrain(w http.ResponseWriter, r *http.Request) {
	var req pestTrainRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.log, fmt.Errorf("%w: %v", domain.ErrValidation, err))
		return
	}

	X := make([]domain.FeatureVector, len(req.Examples))
	y := make([]float64, len(req.Examples))
	for i, ex := range req.Examples {
		X[i] = ex.Features
		if ex.HighRisk {
			y[i] = 1
		}
	}

	report, err := h.pest.Train(r.Context(), X, y)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, report)
}

// stateful resolves the {model} route parameter to a snapshotable model.
func (h *ModelHandlers) stateful(name string) (models.Stateful, string, error) {
	switch name {
	case "yield":
		return h.yield, h.yield.Name(), nil
	case "irrigation":
		return h.irrigation, h.irrigation.Name(), nil
	case "pest":
		return h.pest, h.pest.Name(), nil
	}
	return nil, "", fmt.Errorf("%w: unknown model %q", domain.ErrValidation, name)
}

// HandleSnapshot persists a model's trained state.
// POST /api/models/{model}/snapshot
func (h *ModelHandlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.stateful(chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	id, err := h.snapshots.Save(m, nil)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, map[string]string{"id": id})
}

// HandleRestore loads the newest snapshot into a model.
// POST /api/models/{model}/restore
func (h *ModelHandlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	m, fullName, err := h.stateful(chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	restored, err := h.snapshots.RestoreLatest(m, fullName)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, map[string]bool{"restored": restored})
}
