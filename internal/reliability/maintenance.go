package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const backupTimeout = 5 * time.Minute

// OffsiteBackupJob runs the backup cycle on a schedule: archive, upload,
// rotate.
type OffsiteBackupJob struct {
	backup        *OffsiteBackupService
	retentionDays int
	log           zerolog.Logger
}

// NewOffsiteBackupJob creates the scheduled backup job.
func NewOffsiteBackupJob(backup *OffsiteBackupService, retentionDays int, log zerolog.Logger) *OffsiteBackupJob {
	return &OffsiteBackupJob{
		backup:        backup,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "offsite_backup").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *OffsiteBackupJob) Name() string { return "offsite_backup" }

// Run implements scheduler.Job.
func (j *OffsiteBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if err := j.backup.CreateAndUpload(ctx); err != nil {
		return err
	}
	return j.backup.RotateOldBackups(ctx, j.retentionDays)
}

// SnapshotPruneJob trims old local snapshots.
type SnapshotPruneJob struct {
	snapshots *SnapshotService
	keep      int
	log       zerolog.Logger
}

// NewSnapshotPruneJob creates the prune job; keep is per model.
func NewSnapshotPruneJob(snapshots *SnapshotService, keep int, log zerolog.Logger) *SnapshotPruneJob {
	return &SnapshotPruneJob{
		snapshots: snapshots,
		keep:      keep,
		log:       log.With().Str("job", "snapshot_prune").Logger(),
	}
}

// Name implements scheduler.Job.
func (j *SnapshotPruneJob) Name() string { return "snapshot_prune" }

// Run implements scheduler.Job.
func (j *SnapshotPruneJob) Run() error {
	deleted, err := j.snapshots.Prune(j.keep)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.log.Info().Int("deleted", deleted).Msg("Old snapshots pruned")
	}
	return nil
}
