package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"xivvy/internal/models"
	"xivvy/internal/util"
)

// CheckpointStore persists resume state as a small JSON file next to the
// corpus. Writes are atomic so a crash mid-save never leaves a torn file.
type CheckpointStore struct {
	path string
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Load returns the stored checkpoint, or (nil, nil) when no checkpoint file
// exists yet. A malformed file is an error; deleting it forces a fresh run.
func (c *CheckpointStore) Load() (*models.Checkpoint, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", c.path, err)
	}
	if cp.LastProcessedID == "" {
		return nil, fmt.Errorf("checkpoint %s has no last_processed_id", c.path)
	}
	return &cp, nil
}

// Save records lastID as fully processed.
func (c *CheckpointStore) Save(lastID string, batchSize int) error {
	cp := models.Checkpoint{
		LastProcessedID: lastID,
		Timestamp:       time.Now().UTC(),
		BatchSize:       batchSize,
	}
	if err := util.WriteJSONAtomic(c.path, cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
