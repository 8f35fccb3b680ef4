package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/athang/pixiu/internal/database"
	"github.com/athang/pixiu/internal/events"
)

const (
	backupPrefix     = "pixiu-backup-"
	backupTimeLayout = "2006-01-02-150405"
	minBackupsToKeep = 3
	metadataFileName = "backup-metadata.json"
	snapshotFileName = "pixiu.db"
)

// BackupMetadata travels inside every archive.
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// BackupInfo describes one remote backup.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots the database with VACUUM INTO, archives the
// snapshot with checksummed metadata and ships it offsite.
type BackupService struct {
	db            *database.DB
	store         ObjectStore
	bus           *events.Bus
	retentionDays int
	log           zerolog.Logger
	now           func() time.Time
}

func NewBackupService(db *database.DB, store ObjectStore, bus *events.Bus, retentionDays int, log zerolog.Logger) *BackupService {
	return &BackupService{
		db:            db,
		store:         store,
		bus:           bus,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "backup").Logger(),
		now:           time.Now,
	}
}

// Run creates, uploads and rotates one backup. Returns the uploaded
// archive name.
func (s *BackupService) Run(ctx context.Context) (string, error) {
	start := s.now()

	archiveName, size, err := s.createAndUpload(ctx)
	if err != nil {
		return "", err
	}

	if err := s.Rotate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("backup rotation failed")
	}

	s.log.Info().Str("archive", archiveName).Int64("size_bytes", size).
		Dur("took", s.now().Sub(start)).Msg("backup completed")
	if s.bus != nil {
		s.bus.Publish(events.BackupCompleted, map[string]interface{}{
			"archive":    archiveName,
			"size_bytes": size,
		})
	}
	return archiveName, nil
}

func (s *BackupService) createAndUpload(ctx context.Context) (string, int64, error) {
	staging, err := os.MkdirTemp("", "pixiu-backup-*")
	if err != nil {
		return "", 0, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	// Flush the WAL so the snapshot carries everything.
	if err := s.db.WALCheckpoint(); err != nil {
		s.log.Warn().Err(err).Msg("wal checkpoint before backup failed")
	}

	snapshotPath := filepath.Join(staging, snapshotFileName)
	if err := s.db.VacuumInto(snapshotPath); err != nil {
		return "", 0, fmt.Errorf("snapshot database: %w", err)
	}

	info, err := os.Stat(snapshotPath)
	if err != nil {
		return "", 0, fmt.Errorf("stat snapshot: %w", err)
	}
	checksum, err := fileChecksum(snapshotPath)
	if err != nil {
		return "", 0, fmt.Errorf("checksum snapshot: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp: s.now().UTC(),
		Database:  s.db.Name(),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}
	metadataPath := filepath.Join(staging, metadataFileName)
	if err := writeMetadata(metadataPath, metadata); err != nil {
		return "", 0, fmt.Errorf("write metadata: %w", err)
	}

	archiveName := backupPrefix + s.now().Format(backupTimeLayout) + ".tar.gz"
	archivePath := filepath.Join(staging, archiveName)
	if err := createArchive(archivePath, []string{snapshotPath, metadataPath}); err != nil {
		return "", 0, fmt.Errorf("create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", 0, fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()
	archiveInfo, err := archive.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat archive: %w", err)
	}

	if err := s.store.Upload(ctx, archiveName, archive); err != nil {
		return "", 0, err
	}
	return archiveName, archiveInfo.Size(), nil
}

// List returns remote backups newest first.
func (s *BackupService) List(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.store.List(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}

	now := s.now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		if !strings.HasPrefix(obj.Key, backupPrefix) || !strings.HasSuffix(obj.Key, ".tar.gz") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(obj.Key, backupPrefix), ".tar.gz")
		ts, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("unparseable backup name, skipping")
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: ts,
			SizeBytes: obj.Size,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Rotate deletes backups past the retention window, always keeping
// the newest three. Retention 0 keeps everything.
func (s *BackupService) Rotate(ctx context.Context) error {
	if s.retentionDays <= 0 {
		return nil
	}
	backups, err := s.List(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= minBackupsToKeep {
		return nil
	}

	cutoff := s.now().AddDate(0, 0, -s.retentionDays)
	deleted := 0
	for i, b := range backups {
		if i < minBackupsToKeep || !b.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", b.Filename).Msg("deleting old backup failed")
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("old backups rotated out")
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, metadata BackupMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metadata)
}

func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, path := range files {
		if err := addFile(tw, path); err != nil {
			return fmt.Errorf("archive %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func addFile(tw *tar.Writer, path string) error {
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
		Name:    filepath.Base(path),
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
