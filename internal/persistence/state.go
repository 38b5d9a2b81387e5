// Package persistence implements State Persistence (C9): periodic and
// shutdown-time snapshots of each channel's runtime position, restored at
// startup. Writes are atomic (temp file + rename) with a rolling backup
// (§4.9), matching the reference stack's atomic-write idiom for its own
// config/state files.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/channelcast/channelcast/internal/models"
)

const stateVersion = 1

// Snapshot is the on-disk state.json document (§6 "On-disk state file").
type Snapshot struct {
	Version   int                      `json:"version"`
	LastSaved time.Time                `json:"lastSaved"`
	Channels  []models.ChannelSnapshot `json:"channels"`
}

// Store manages the primary/backup state file pair.
type Store struct {
	path       string
	backupPath string
	logger     hclog.Logger
}

// NewStore creates a Store rooted at path, deriving the backup path by
// suffixing ".backup" before the extension.
func NewStore(path string, logger hclog.Logger) *Store {
	ext := filepath.Ext(path)
	backup := path[:len(path)-len(ext)] + ".backup" + ext
	return &Store{path: path, backupPath: backup, logger: logger}
}

// Save writes a snapshot atomically: the previous primary is copied to the
// backup path, then the new content is written to a temp file and renamed
// over the primary.
func (s *Store) Save(channels []models.ChannelSnapshot) error {
	snap := Snapshot{Version: stateVersion, LastSaved: time.Now(), Channels: channels}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	if existing, err := os.ReadFile(s.path); err == nil {
		_ = os.WriteFile(s.backupPath, existing, 0o644)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, s.path)
}

// Load reads the primary state file, falling back to the backup on parse
// failure. A missing primary (and missing backup) is not an error: an empty
// snapshot is returned so the orchestrator starts clean.
func (s *Store) Load() (Snapshot, error) {
	snap, err := s.loadFrom(s.path)
	if err == nil {
		return snap, nil
	}

	if os.IsNotExist(err) {
		return Snapshot{Version: stateVersion}, nil
	}

	s.logger.Warn("primary state file unreadable, trying backup", "error", err)
	snap, err = s.loadFrom(s.backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Version: stateVersion}, nil
		}
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) loadFrom(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
