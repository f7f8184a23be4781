package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/agrilab/quantfarm/internal/config"
	"github.com/agrilab/quantfarm/internal/domain"
	"github.com/agrilab/quantfarm/internal/reliability"
	"github.com/agrilab/quantfarm/internal/scheduler"
)

// SystemHandlers serves health, status and operational endpoints.
type SystemHandlers struct {
	cfg       *config.Config
	snapshots *reliability.SnapshotService
	backup    *reliability.OffsiteBackupService
	scheduler *scheduler.Scheduler
	jobs      map[string]scheduler.Job
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates the system API handlers.
func NewSystemHandlers(deps Deps) *SystemHandlers {
	return &SystemHandlers{
		cfg:       deps.Cfg,
		snapshots: deps.Snapshots,
		backup:    deps.Backup,
		scheduler: deps.Scheduler,
		jobs:      deps.Jobs,
		startedAt: time.Now(),
		log:       deps.Log.With().Str("component", "system_handlers").Logger(),
	}
}

// HandleHealth is the liveness probe.
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.log, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "quantfarm",
	})
}

// StatusResponse is the system status payload.
type StatusResponse struct {
	Backend       string   `json:"backend"`
	Qubits        int      `json:"qubits"`
	Depth         int      `json:"depth"`
	Shots         int      `json:"shots"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	CPUPercent    float64  `json:"cpu_percent"`
	MemPercent    float64  `json:"mem_percent"`
	Locations     []string `json:"locations"`
	BackupEnabled bool     `json:"backup_enabled"`
}

// HandleStatus reports runtime and host statistics.
// GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, memUsed := h.systemStats()

	names := make([]string, len(h.cfg.Locations))
	for i, loc := range h.cfg.Locations {
		names[i] = loc.Name
	}

	writeJSON(w, r, h.log, http.StatusOK, StatusResponse{
		Backend:       string(h.cfg.Quantum.Backend),
		Qubits:        h.cfg.Quantum.Qubits,
		Depth:         h.cfg.Quantum.Depth,
		Shots:         h.cfg.Quantum.Shots,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuAvg,
		MemPercent:    memUsed,
		Locations:     names,
		BackupEnabled: h.cfg.BackupEnabled(),
	})
}

// systemStats samples CPU over a short window and reads memory instantly.
// The short interval keeps the status endpoint responsive.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// HandleListSnapshots lists local model snapshots, newest first.
// GET /api/system/snapshots
func (h *SystemHandlers) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := h.snapshots.List()
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, infos)
}

// HandleListBackups lists offsite backup archives.
// GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backup == nil {
		writeError(w, r, h.log, fmt.Errorf("%w: offsite backup not configured", domain.ErrValidation))
		return
	}
	backups, err := h.backup.ListBackups(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, backups)
}

// HandleTriggerJob runs a registered background job immediately.
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		writeError(w, r, h.log, fmt.Errorf("%w: unknown job %q", domain.ErrValidation, name))
		return
	}

	if err := h.scheduler.RunNow(job); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, r, h.log, http.StatusOK, map[string]string{
		"status": "success",
		"job":    name,
	})
}
