package domain

import "errors"

// Sentinel errors for the inference pipeline. Callers use errors.Is to branch
// on these; everything else is wrapped context via fmt.Errorf("...: %w", err).
var (
	// ErrBackendUnavailable means the configured quantum backend could not be
	// reached. Retryable; the backend adapter degrades to the local simulator.
	ErrBackendUnavailable = errors.New("quantum backend unavailable")

	// ErrCircuitTooDeep means the requested circuit depth exceeds the maximum
	// the backend declares. Configuration error, not retryable.
	ErrCircuitTooDeep = errors.New("circuit depth exceeds backend maximum")

	// ErrDimensionMismatch means the feature vector cannot be encoded into
	// the configured number of qubits (angle encoding: one feature per qubit).
	ErrDimensionMismatch = errors.New("feature vector does not fit qubit count")

	// ErrInsufficientData means Train was called with fewer examples than the
	// model minimum.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrUntrainedModel means Predict was called before a successful Train.
	ErrUntrainedModel = errors.New("model has not been trained")

	// ErrValidation means a collector payload failed range validation. It is
	// absorbed into a Fallback result at the ingestion boundary and never
	// surfaced to the model layer.
	ErrValidation = errors.New("payload failed range validation")
)
