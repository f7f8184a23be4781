// Package reliability persists trained model state across restarts and ships
// periodic backups to S3-compatible object storage.
package reliability

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/models"
)

const snapshotExt = ".snap"

// Snapshot is one persisted trained state, msgpack encoded on disk.
type Snapshot struct {
	ID        string                 `msgpack:"id"`
	Model     string                 `msgpack:"model"`
	CreatedAt time.Time              `msgpack:"created_at"`
	State     *models.TrainedState   `msgpack:"state"`
	Report    *models.TrainingReport `msgpack:"report"`
}

// SnapshotInfo describes a snapshot file without decoding its state.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// SnapshotService writes and restores model snapshots under a data directory.
type SnapshotService struct {
	dir string
	bus *events.Bus
	log zerolog.Logger
}

// NewSnapshotService creates the service and ensures the snapshot directory
// exists.
func NewSnapshotService(dataDir string, bus *events.Bus, log zerolog.Logger) (*SnapshotService, error) {
	dir := filepath.Join(dataDir, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &SnapshotService{
		dir: dir,
		bus: bus,
		log: log.With().Str("service", "snapshot").Logger(),
	}, nil
}

// Dir returns the snapshot directory, used by the offsite backup service.
func (s *SnapshotService) Dir() string { return s.dir }

// Save exports a model's trained state and writes it as a new snapshot.
// Returns the snapshot ID.
func (s *SnapshotService) Save(m models.Stateful, report *models.TrainingReport) (string, error) {
	state, err := m.ExportState()
	if err != nil {
		return "", err
	}

	snap := Snapshot{
		ID:        uuid.NewString(),
		Model:     state.Model,
		CreatedAt: time.Now().UTC(),
		State:     state,
		Report:    report,
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Filename sorts chronologically per model.
	name := fmt.Sprintf("%s-%s-%s%s", snap.Model, snap.CreatedAt.Format("20060102-150405"), snap.ID[:8], snapshotExt)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.SnapshotCreated, "reliability", map[string]interface{}{
			"id":    snap.ID,
			"model": snap.Model,
		})
	}
	s.log.Info().
		Str("id", snap.ID).
		Str("model", snap.Model).
		Int("bytes", len(data)).
		Msg("Snapshot written")

	return snap.ID, nil
}

// RestoreLatest loads the newest snapshot for the model and applies it.
// Returns false without error when no snapshot exists.
func (s *SnapshotService) RestoreLatest(m models.Stateful, modelName string) (bool, error) {
	path, err := s.latestPath(modelName)
	if err != nil {
		return false, err
	}
	if path == "" {
		return false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("failed to decode snapshot %s: %w", filepath.Base(path), err)
	}
	if err := m.RestoreState(snap.State); err != nil {
		return false, fmt.Errorf("failed to restore %s: %w", modelName, err)
	}

	s.log.Info().
		Str("id", snap.ID).
		Str("model", modelName).
		Time("created_at", snap.CreatedAt).
		Msg("Snapshot restored")
	return true, nil
}

// List returns all snapshots, newest first.
func (s *SnapshotService) List() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	infos := make([]SnapshotInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := msgpack.Unmarshal(data, &snap); err != nil {
			s.log.Warn().Str("file", e.Name()).Msg("Skipping undecodable snapshot")
			continue
		}
		infos = append(infos, SnapshotInfo{
			ID:        snap.ID,
			Model:     snap.Model,
			CreatedAt: snap.CreatedAt,
			SizeBytes: int64(len(data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// Prune keeps the newest keep snapshots per model and deletes the rest.
func (s *SnapshotService) Prune(keep int) (int, error) {
	infos, err := s.List()
	if err != nil {
		return 0, err
	}

	perModel := make(map[string]int)
	deleted := 0
	for _, info := range infos {
		perModel[info.Model]++
		if perModel[info.Model] <= keep {
			continue
		}
		path, err := s.pathForID(info.ID)
		if err != nil || path == "" {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.log.Warn().Err(err).Str("id", info.ID).Msg("Failed to delete snapshot")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// latestPath finds the newest snapshot file for a model. Filenames embed the
// creation timestamp, so lexicographic order within a model prefix is
// chronological.
func (s *SnapshotService) latestPath(modelName string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}

	var names []string
	prefix := modelName + "-"
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), snapshotExt) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(s.dir, names[len(names)-1]), nil
}

func (s *SnapshotService) pathForID(id string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", err
	}
	marker := id[:8] + snapshotExt
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), marker) {
			return filepath.Join(s.dir, e.Name()), nil
		}
	}
	return "", nil
}
