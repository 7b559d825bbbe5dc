// Package backup writes full-state JSON snapshots to a directory and restores
// them.
package backup

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/store"
)

const (
	SnapshotVersion = "1.0"
	filePrefix      = "backup_"
	fileSuffix      = ".json"
	nameLayout      = "20060102_150405"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*\.json$`)

// Source is the state a Manager snapshots and restores.
type Source interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
	SnapshotStats(ctx context.Context) (domain.SnapshotStats, error)
	RestoreSnapshot(ctx context.Context, snap domain.Snapshot) error
}

type File struct {
	Name      string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type Stats struct {
	domain.SnapshotStats
	LastBackup *time.Time `json:"last_backup,omitempty"`
}

type Manager struct {
	dir string
	src Source
	log zerolog.Logger
	now func() time.Time
}

func NewManager(dir string, src Source, logger zerolog.Logger) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("backup dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Manager{
		dir: dir,
		src: src,
		log: logger.With().Str("component", "backup").Logger(),
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Stats reports row counts of the live state and when the newest backup file
// was written.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	counts, err := m.src.SnapshotStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{SnapshotStats: counts}

	files, err := m.List()
	if err != nil {
		return Stats{}, err
	}
	if len(files) > 0 {
		last := files[0].CreatedAt
		if ts, ok := timestampFromName(files[0].Name); ok {
			last = ts
		}
		stats.LastBackup = &last
	}
	return stats, nil
}

// Create snapshots the current state into a new file named after the time it
// was taken.
func (m *Manager) Create(ctx context.Context) (File, error) {
	snap, err := m.src.Snapshot(ctx)
	if err != nil {
		return File{}, err
	}
	snap.Version = SnapshotVersion
	snap.Timestamp = m.now()

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return File{}, fmt.Errorf("encode snapshot: %w", err)
	}

	base := filePrefix + snap.Timestamp.Format(nameLayout)
	f, name, err := m.createUnique(base)
	if err != nil {
		return File{}, err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(filepath.Join(m.dir, name))
		return File{}, fmt.Errorf("write backup: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(filepath.Join(m.dir, name))
		return File{}, fmt.Errorf("write backup: %w", err)
	}

	m.log.Info().Str("filename", name).Int("bytes", len(payload)).Msg("backup created")
	return File{Name: name, SizeBytes: int64(len(payload)), CreatedAt: snap.Timestamp}, nil
}

func (m *Manager) createUnique(base string) (*os.File, string, error) {
	for n := 1; n <= 100; n++ {
		name := base + fileSuffix
		if n > 1 {
			name = fmt.Sprintf("%s_%d%s", base, n, fileSuffix)
		}
		f, err := os.OpenFile(filepath.Join(m.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create backup file: %w", err)
		}
		return f, name, nil
	}
	return nil, "", fmt.Errorf("create backup file %s: %w", base, store.ErrConflict)
}

// List returns the backup files, newest first.
func (m *Manager) List() ([]File, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !validName.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{Name: e.Name(), SizeBytes: info.Size(), CreatedAt: info.ModTime().UTC()})
	}
	slices.SortFunc(files, func(a, b File) int { return cmp.Compare(b.Name, a.Name) })
	return files, nil
}

// Open returns a reader over a backup file. The caller closes it.
func (m *Manager) Open(name string) (*os.File, File, error) {
	path, err := m.path(name)
	if err != nil {
		return nil, File{}, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, File{}, fmt.Errorf("backup %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, File{}, fmt.Errorf("open backup: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, File{}, fmt.Errorf("stat backup: %w", err)
	}
	return f, File{Name: name, SizeBytes: info.Size(), CreatedAt: info.ModTime().UTC()}, nil
}

func (m *Manager) Delete(name string) error {
	path, err := m.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("backup %s: %w", name, store.ErrNotFound)
		}
		return fmt.Errorf("delete backup: %w", err)
	}
	m.log.Info().Str("filename", name).Msg("backup deleted")
	return nil
}

// Restore replaces the live state with the contents of a stored backup file.
func (m *Manager) Restore(ctx context.Context, name string) (domain.SnapshotStats, error) {
	f, _, err := m.Open(name)
	if err != nil {
		return domain.SnapshotStats{}, err
	}
	defer f.Close()
	return m.RestoreFrom(ctx, f)
}

// RestoreFrom replaces the live state with a snapshot read from r, such as an
// uploaded file. The current state is untouched when decoding or restoring
// fails.
func (m *Manager) RestoreFrom(ctx context.Context, r io.Reader) (domain.SnapshotStats, error) {
	var snap domain.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return domain.SnapshotStats{}, fmt.Errorf("%w: backup file is not a valid snapshot: %v", store.ErrInvalid, err)
	}
	if snap.Version != "" && snap.Version != SnapshotVersion {
		return domain.SnapshotStats{}, fmt.Errorf("%w: unsupported backup version %q", store.ErrInvalid, snap.Version)
	}
	if err := m.src.RestoreSnapshot(ctx, snap); err != nil {
		return domain.SnapshotStats{}, err
	}

	stats := domain.SnapshotStats{
		Users:          len(snap.Users),
		Products:       len(snap.Products),
		Sessions:       len(snap.Sessions),
		Sales:          len(snap.Sales),
		SaleItems:      len(snap.SaleItems),
		StockMovements: len(snap.StockMovements),
	}
	m.log.Warn().
		Time("snapshot_time", snap.Timestamp).
		Int("products", stats.Products).
		Int("sales", stats.Sales).
		Msg("state restored from backup")
	return stats, nil
}

// path resolves a client-supplied file name inside the backup directory.
func (m *Manager) path(name string) (string, error) {
	if name != filepath.Base(name) || !validName.MatchString(name) {
		return "", fmt.Errorf("%w: invalid backup file name %q", store.ErrInvalid, name)
	}
	return filepath.Join(m.dir, name), nil
}

func timestampFromName(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(strings.TrimSuffix(name, fileSuffix), filePrefix)
	if !ok || len(stamp) < len(nameLayout) {
		return time.Time{}, false
	}
	ts, err := time.Parse(nameLayout, stamp[:len(nameLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
