package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const backupPrefix = "quantfarm-backup-"

// ObjectStoreConfig configures the S3-compatible backup target. Endpoint may
// point at any S3-compatible provider.
type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// ObjectStore is a thin client over the S3 API for backup archives.
type ObjectStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewObjectStore builds the S3 client with static credentials.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup bucket not configured")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &ObjectStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
	}, nil
}

// Upload streams an object to the bucket.
func (o *ObjectStore) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := o.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	return err
}

// ListKeys returns object keys and sizes under a prefix.
func (o *ObjectStore) ListKeys(ctx context.Context, prefix string) (map[string]int64, error) {
	out := make(map[string]int64)
	paginator := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			out[*obj.Key] = size
		}
	}
	return out, nil
}

// Delete removes an object.
func (o *ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	return err
}

// BackupInfo describes one archive stored offsite.
type BackupInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// OffsiteBackupService archives the snapshot directory and ships it to object
// storage.
type OffsiteBackupService struct {
	store     *ObjectStore
	snapshots *SnapshotService
	dataDir   string
	log       zerolog.Logger
}

// NewOffsiteBackupService creates the backup service.
func NewOffsiteBackupService(store *ObjectStore, snapshots *SnapshotService, dataDir string, log zerolog.Logger) *OffsiteBackupService {
	return &OffsiteBackupService{
		store:     store,
		snapshots: snapshots,
		dataDir:   dataDir,
		log:       log.With().Str("service", "offsite_backup").Logger(),
	}
}

// CreateAndUpload archives the snapshot directory as tar.gz and uploads it.
func (s *OffsiteBackupService) CreateAndUpload(ctx context.Context) error {
	start := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	archiveName := backupPrefix + time.Now().Format("2006-01-02-150405") + ".tar.gz"
	archivePath := filepath.Join(stagingDir, archiveName)

	count, err := s.archiveDir(archivePath, s.snapshots.Dir())
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if count == 0 {
		s.log.Info().Msg("No snapshots to back up")
		return nil
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.store.Upload(ctx, archiveName, archive); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	info, _ := os.Stat(archivePath)
	var size int64
	if info != nil {
		size = info.Size()
	}
	s.log.Info().
		Str("archive", archiveName).
		Int("snapshots", count).
		Int64("bytes", size).
		Dur("duration_ms", time.Since(start)).
		Msg("Offsite backup completed")
	return nil
}

// ListBackups lists archives stored offsite, newest first.
func (s *OffsiteBackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	keys, err := s.store.ListKeys(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(keys))
	for key, size := range keys {
		if !strings.HasSuffix(key, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(key, backupPrefix), ".tar.gz")
		ts, err := time.Parse("2006-01-02-150405", stamp)
		if err != nil {
			s.log.Warn().Str("key", key).Msg("Skipping backup with unparseable timestamp")
			continue
		}
		backups = append(backups, BackupInfo{
			Key:       key,
			Timestamp: ts,
			SizeBytes: size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RotateOldBackups deletes archives past the retention period, always keeping
// the newest three.
func (s *OffsiteBackupService) RotateOldBackups(ctx context.Context, retentionDays int) error {
	const minKeep = 3

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minKeep || retentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete old backup")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().
			Int("deleted", deleted).
			Int("remaining", len(backups)-deleted).
			Msg("Backup rotation completed")
	}
	return nil
}

// archiveDir writes all regular files of dir into a tar.gz archive, returning
// how many files were included.
func (s *OffsiteBackupService) archiveDir(archivePath, dir string) (int, error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := addFile(tw, path, e.Name()); err != nil {
			return count, fmt.Errorf("failed to archive %s: %w", e.Name(), err)
		}
		count++
	}
	return count, nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    name,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
