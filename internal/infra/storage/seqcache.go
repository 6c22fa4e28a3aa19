package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SeqCache is the secondary persistence channel: a single key/value slot
// holding only the last committed seqNo, on an independent medium from the
// sqlite primary. Its job is to survive scenarios where the primary write
// was lost, so the reconciliation rule in LoadChainState can refuse to
// regress the sequence.
type SeqCache struct {
	path string
}

type seqSlot struct {
	SeqNo uint64 `json:"seq_no"`
}

// NewSeqCache opens the slot for a stable per-configuration key.
func NewSeqCache(dir, key string) (*SeqCache, error) {
	if key == "" {
		return nil, errors.New("seq cache key must not be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &SeqCache{path: filepath.Join(dir, key+".seq")}, nil
}

// Store atomically replaces the slot (temp file + rename), so a crash
// mid-write can never leave a torn value behind.
func (c *SeqCache) Store(seqNo uint64) error {
	data, err := json.Marshal(seqSlot{SeqNo: seqNo})
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// Load reads the slot. found is false when the slot does not exist.
func (c *SeqCache) Load() (seqNo uint64, found bool, err error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var slot seqSlot
	if err := json.Unmarshal(data, &slot); err != nil {
		return 0, false, fmt.Errorf("corrupt seq cache slot: %w", err)
	}
	return slot.SeqNo, true, nil
}
