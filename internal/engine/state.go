package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"candlebot/internal/models"
)

// Checkpoint is the open orders and positions of a session as one unit.
// It carries only core value types, so the storage format stays a detail
// of this package.
type Checkpoint struct {
	SavedAt    time.Time         `json:"saved_at"`
	Symbol     string            `json:"symbol"`
	LastBar    time.Time         `json:"last_bar"`
	OpenOrders []models.Order    `json:"open_orders"`
	Positions  []models.Position `json:"positions"`
}

// SaveCheckpoint writes atomically: full marshal to a sibling tmp file,
// then rename. A crash mid-write leaves the previous checkpoint intact.
func SaveCheckpoint(path string, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func LoadCheckpoint(path string) (Checkpoint, error) {
	var cp Checkpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return cp, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	return cp, nil
}
