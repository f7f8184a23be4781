// Package backend executes circuit descriptions and returns measurement
// statistics. The configured backend is opaque to callers: a local
// statevector simulator, a noisy fake device, or a remote device gateway.
// The Adapter wraps whichever is configured with validation, bounded retry,
// and graceful degradation to the local simulator.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

// Shot count limits. Below MinShots expectation estimates are too noisy to
// train against; above MaxShots evaluation latency dominates the hybrid loop.
const (
	MinShots = 512
	MaxShots = 4096
)

// ExecutionResult holds measurement statistics for one circuit evaluation.
// Counts always sum to the requested shot count. Never mutated after return.
type ExecutionResult struct {
	Counts      map[string]int `json:"counts"`
	Shots       int            `json:"shots"`
	Expectation float64        `json:"expectation"`
	Variance    float64        `json:"variance"`
}

// Backend evaluates a parameterized circuit with a bound parameter vector.
// Implementations must be safe for concurrent use across independent models.
type Backend interface {
	Name() string
	// MaxDepth is the deepest circuit the backend accepts.
	MaxDepth() int
	Evaluate(ctx context.Context, desc *circuit.Description, params []float64, shots int) (*ExecutionResult, error)
}

// Kind selects the backend implementation from configuration.
type Kind string

const (
	KindSimulator  Kind = "simulator"
	KindFakeDevice Kind = "fake_device"
	KindRealDevice Kind = "real_device"
)

// Adapter wraps the configured backend with the contract the model layer
// relies on: argument validation, bounded retry with exponential backoff for
// transient unavailability, and fallback to the local simulator when the
// primary backend stays unreachable. Degradation is the adapter's concern,
// not the caller's.
type Adapter struct {
	primary    Backend
	fallback   Backend
	maxRetries int
	retryBase  time.Duration
	log        zerolog.Logger
}

// AdapterConfig configures backend selection.
type AdapterConfig struct {
	Kind      Kind
	Seed      int64
	RemoteURL string        // device gateway, real_device only
	Timeout   time.Duration // per-request timeout, real_device only
}

// NewAdapter builds the adapter for the configured backend kind. The local
// simulator always serves as the degradation target.
func NewAdapter(cfg AdapterConfig, log zerolog.Logger) *Adapter {
	sim := NewSimulator(cfg.Seed)

	var primary Backend
	switch cfg.Kind {
	case KindFakeDevice:
		primary = NewFakeDevice(cfg.Seed)
	case KindRealDevice:
		primary = NewRemoteDevice(cfg.RemoteURL, cfg.Timeout, log)
	default:
		primary = sim
	}

	return &Adapter{
		primary:    primary,
		fallback:   sim,
		maxRetries: 2,
		retryBase:  500 * time.Millisecond,
		log:        log.With().Str("component", "quantum_backend").Str("backend", primary.Name()).Logger(),
	}
}

// Name returns the primary backend name.
func (a *Adapter) Name() string { return a.primary.Name() }

// MaxDepth returns the primary backend's declared maximum depth.
func (a *Adapter) MaxDepth() int { return a.primary.MaxDepth() }

// Evaluate validates the request, runs it on the primary backend with
// bounded retries, and degrades to the local simulator if the primary stays
// unavailable. Configuration errors (shots, geometry, depth) fail fast.
func (a *Adapter) Evaluate(ctx context.Context, desc *circuit.Description, params []float64, shots int) (*ExecutionResult, error) {
	if shots < MinShots || shots > MaxShots {
		return nil, fmt.Errorf("shots %d outside [%d, %d]", shots, MinShots, MaxShots)
	}
	if desc.Qubits < circuit.MinQubits || desc.Qubits > circuit.MaxQubits {
		return nil, fmt.Errorf("qubits %d outside [%d, %d]", desc.Qubits, circuit.MinQubits, circuit.MaxQubits)
	}
	if desc.Depth < circuit.MinDepth || desc.Depth > circuit.MaxDepth {
		return nil, fmt.Errorf("depth %d outside [%d, %d]", desc.Depth, circuit.MinDepth, circuit.MaxDepth)
	}
	if desc.Depth > a.primary.MaxDepth() {
		return nil, fmt.Errorf("%w: depth %d > %s maximum %d",
			domain.ErrCircuitTooDeep, desc.Depth, a.primary.Name(), a.primary.MaxDepth())
	}
	if len(params) != desc.NumParams {
		return nil, fmt.Errorf("parameter vector length %d, circuit expects %d", len(params), desc.NumParams)
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			wait := a.retryBase * time.Duration(1<<uint(attempt-1))
			a.log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("Backend unavailable, retrying")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := a.primary.Evaluate(ctx, desc, params, shots)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrBackendUnavailable) {
			return nil, err
		}
		lastErr = err
	}

	// Primary stayed unreachable. Degrade to the local simulator so the
	// training loop keeps making progress.
	a.log.Warn().
		Err(lastErr).
		Str("fallback", a.fallback.Name()).
		Msg("Backend unreachable after retries, degrading to local simulator")

	result, err := a.fallback.Evaluate(ctx, desc, params, shots)
	if err != nil {
		return nil, fmt.Errorf("fallback simulator failed after %w", lastErr)
	}
	return result, nil
}

// statistics derives expectation and variance from sampled counts. The
// scalar outcome of a bitstring is its integer value scaled into [0,1].
func statistics(counts map[string]int, qubits, shots int) (expectation, variance float64) {
	maxValue := float64(int(1)<<uint(qubits)) - 1
	for bits, count := range counts {
		v := bitstringValue(bits) / maxValue
		expectation += v * float64(count) / float64(shots)
	}
	for bits, count := range counts {
		v := bitstringValue(bits) / maxValue
		variance += (v - expectation) * (v - expectation) * float64(count) / float64(shots)
	}
	return expectation, variance
}

// bitstringValue interprets a measurement bitstring as a base-2 integer.
func bitstringValue(bits string) float64 {
	var v int
	for _, c := range bits {
		v <<= 1
		if c == '1' {
			v |= 1
		}
	}
	return float64(v)
}
