package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
)

const defaultRemoteTimeout = 30 * time.Second

// RemoteDevice submits circuits to a device gateway over HTTP. Transport
// failures surface as ErrBackendUnavailable so the adapter can retry and
// degrade; the gateway's own error responses are terminal.
type RemoteDevice struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewRemoteDevice creates a device gateway client.
func NewRemoteDevice(url string, timeout time.Duration, log zerolog.Logger) *RemoteDevice {
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &RemoteDevice{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("client", "device_gateway").Logger(),
	}
}

// Name implements Backend.
func (d *RemoteDevice) Name() string { return "real_device" }

// MaxDepth implements Backend.
func (d *RemoteDevice) MaxDepth() int { return circuit.MaxDepth }

type remoteJobRequest struct {
	Circuit *circuit.Description `json:"circuit"`
	Params  []float64            `json:"params"`
	Shots   int                  `json:"shots"`
}

type remoteJobResponse struct {
	Counts map[string]int `json:"counts"`
	Error  string         `json:"error,omitempty"`
}

// Evaluate submits the circuit and waits for measurement counts.
func (d *RemoteDevice) Evaluate(ctx context.Context, desc *circuit.Description, params []float64, shots int) (*ExecutionResult, error) {
	if d.url == "" {
		return nil, fmt.Errorf("%w: no device gateway configured", domain.ErrBackendUnavailable)
	}

	body, err := json.Marshal(remoteJobRequest{Circuit: desc, Params: params, Shots: shots})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned status %d", domain.ErrBackendUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device gateway rejected job with status %d", resp.StatusCode)
	}

	var job remoteJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("%w: failed to parse gateway response: %v", domain.ErrBackendUnavailable, err)
	}
	if job.Error != "" {
		return nil, fmt.Errorf("device gateway error: %s", job.Error)
	}

	total := 0
	for _, c := range job.Counts {
		total += c
	}
	if total != shots {
		return nil, fmt.Errorf("gateway counts sum to %d, expected %d shots", total, shots)
	}

	expectation, variance := statistics(job.Counts, desc.Qubits, shots)
	return &ExecutionResult{
		Counts:      job.Counts,
		Shots:       shots,
		Expectation: expectation,
		Variance:    variance,
	}, nil
}
