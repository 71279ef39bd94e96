package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/asMODhias/VerseGuy-sub000/pkg/events"
	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

const (
	backupPrefix     = "store-"
	backupSuffix     = ".db"
	backupTimeLayout = "20060102T150405.000000000Z"
)

// BackupInfo describes one backup file
type BackupInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Backup writes a consistent copy of the database into the backup directory
// and prunes old copies down to backup_retention. Values stay encrypted in
// the copy. Returns the path of the new backup.
func (e *Engine) Backup() (string, error) {
	if e.closed.Load() {
		return "", ErrClosed
	}

	e.backupMu.Lock()
	defer e.backupMu.Unlock()

	path, err := e.writeBackup()
	if err != nil {
		metrics.BackupsTotal.WithLabelValues("failed").Inc()
		metrics.RegisterComponent("backup", false, err.Error())
		events.Emit(e.events, events.EventBackupFailed, "", err.Error())
		return "", err
	}
	metrics.BackupsTotal.WithLabelValues("success").Inc()
	metrics.RegisterComponent("backup", true, "")
	events.Emit(e.events, events.EventBackupCreated, path, "")
	e.logger.Info().Str("backup", path).Msg("Backup created")

	if _, err := e.pruneBackups(); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to prune old backups")
	}
	return path, nil
}

func (e *Engine) writeBackup() (string, error) {
	dir := e.cfg.BackupDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("%w: create backup directory %s: %v", ErrDatabase, dir, err)
	}

	name := backupPrefix + time.Now().UTC().Format(backupTimeLayout) + backupSuffix
	final := filepath.Join(dir, name)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("%w: create backup %s: %v", ErrDatabase, tmp, err)
	}

	err = e.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: write backup: %v", ErrDatabase, err)
	}

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: finalize backup: %v", ErrDatabase, err)
	}
	return final, nil
}

// ListBackups returns backups in the configured directory, newest first
func (e *Engine) ListBackups() ([]BackupInfo, error) {
	return ListBackups(e.cfg)
}

// ListBackups returns backups for cfg, newest first. It does not need an open engine.
func ListBackups(cfg Config) ([]BackupInfo, error) {
	dir := cfg.BackupDirectory()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read backup directory %s: %v", ErrDatabase, dir, err)
	}

	var out []BackupInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		created, err := time.Parse(backupTimeLayout, strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{Path: filepath.Join(dir, name), Size: info.Size(), CreatedAt: created})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PruneBackups removes all but the newest backup_retention backups
func (e *Engine) PruneBackups() (int, error) {
	e.backupMu.Lock()
	defer e.backupMu.Unlock()
	return e.pruneBackups()
}

func (e *Engine) pruneBackups() (int, error) {
	backups, err := ListBackups(e.cfg)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := max(e.cfg.BackupRetention, 0); i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return removed, fmt.Errorf("%w: remove backup %s: %v", ErrDatabase, backups[i].Path, err)
		}
		removed++
	}
	return removed, nil
}

// StartAutoBackup takes a backup every auto_backup_hours until ctx is
// cancelled or the engine is closed. A zero interval disables it.
func (e *Engine) StartAutoBackup(ctx context.Context) {
	e.backupMu.Lock()
	defer e.backupMu.Unlock()

	if e.backupInterval <= 0 || e.backupStop != nil || e.closed.Load() {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	e.backupStop = stop
	e.backupDone = done

	ticker := time.NewTicker(e.backupInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := e.Backup(); err != nil {
					e.logger.Error().Err(err).Msg("Automatic backup failed")
				}
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	e.logger.Info().Dur("interval", e.backupInterval).Msg("Automatic backups started")
}

// StopAutoBackup stops the automatic backup loop and waits for it to exit
func (e *Engine) StopAutoBackup() {
	e.backupMu.Lock()
	stop, done := e.backupStop, e.backupDone
	e.backupStop, e.backupDone = nil, nil
	e.backupMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// RestoreBackup replaces the database file for cfg with a backup. The store
// must not be open. The backup is verified to be a readable bbolt file
// containing the store bucket before anything is overwritten.
func RestoreBackup(cfg Config, backupFile string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	src, err := bolt.Open(backupFile, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("%w: open backup %s: %v", ErrOpen, backupFile, err)
	}
	err = src.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketKV) == nil {
			return fmt.Errorf("bucket %s missing", bucketKV)
		}
		return nil
	})
	src.Close()
	if err != nil {
		return fmt.Errorf("%w: backup %s: %v", ErrDatabase, backupFile, err)
	}

	if err := os.MkdirAll(cfg.ExpandedPath(), 0700); err != nil {
		return fmt.Errorf("%w: create directory: %v", ErrDatabase, err)
	}

	target := cfg.DatabaseFile()
	tmp := target + ".restore"
	if err := copyFile(backupFile, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: copy backup: %v", ErrDatabase, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: replace database: %v", ErrDatabase, err)
	}

	logger := log.WithComponent("storage")
	logger.Info().Str("backup", backupFile).Str("path", target).Msg("Backup restored")
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
