package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"track_record/internal/audit"
	"track_record/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ChainStateRecord is the primary durable copy of the chain head. One row
// per instance, replaced atomically on every commit so seqNo and lastHash
// can never be observed out of sync with each other.
type ChainStateRecord struct {
	InstanceID string `gorm:"primaryKey"`
	SeqNo      uint64
	LastHash   string
	UpdatedAt  time.Time
}

// JournalEntry is the best-effort local copy of a committed envelope.
// Never replayed and never hashed; it exists so the chain can be verified
// offline without the remote authority.
type JournalEntry struct {
	SeqNo     uint64 `gorm:"primaryKey"`
	EventType string
	PrevHash  string
	EventHash string
	Timestamp int64
	Payload   string
	CreatedAt time.Time
}

// Storage is the persistence adapter: sqlite primary store plus an
// independent secondary seq cache (see SeqCache).
type Storage struct {
	db    *gorm.DB
	cache *SeqCache
}

// NewStorage creates the adapter at the default OS data path.
// cacheKey is the stable per-configuration identifier for the seq slot.
func NewStorage(cacheKey string) (*Storage, error) {
	dbPath, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB path: %w", err)
	}
	return Open(dbPath, filepath.Join(filepath.Dir(dbPath), "cache"), cacheKey)
}

// Open creates the adapter with explicit paths (used by tests and cmd/verify).
func Open(dbPath, cacheDir, cacheKey string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go SQLite
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&ChainStateRecord{}, &JournalEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	cache, err := NewSeqCache(cacheDir, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open seq cache: %w", err)
	}

	return &Storage{db: db, cache: cache}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "TrackRecord", "data", "trackrecord.db"), nil
}

// ======================================================================================
// Chain State (primary store + secondary cache)
// ======================================================================================

// SaveChainState replaces the durable chain head and bumps the secondary
// seq slot. Both channels are written on every commit; either one failing
// is reported as a PersistenceError for that channel.
func (s *Storage) SaveChainState(instanceID string, seqNo uint64, lastHash string) error {
	rec := ChainStateRecord{
		InstanceID: instanceID,
		SeqNo:      seqNo,
		LastHash:   lastHash,
		UpdatedAt:  time.Now(),
	}
	var firstErr error
	if err := s.db.Save(&rec).Error; err != nil {
		firstErr = &domain.PersistenceError{Channel: "primary", Err: err}
	}

	// The secondary slot is written even when the primary failed; the
	// channels are independent on purpose.
	if err := s.cache.Store(seqNo); err != nil && firstErr == nil {
		firstErr = &domain.PersistenceError{Channel: "secondary", Err: err}
	}
	return firstErr
}

// LoadChainState reloads the chain head, reconciling the two channels:
// seqNo is the high-water mark of both, lastHash comes from the primary.
// found is false only when neither channel has anything. A found state with
// an empty lastHash means only the secondary survived; the caller must
// recover the hash from the remote authority before extending the chain.
func (s *Storage) LoadChainState(instanceID string) (seqNo uint64, lastHash string, found bool, err error) {
	var rec ChainStateRecord
	dbErr := s.db.First(&rec, "instance_id = ?", instanceID).Error
	primaryFound := dbErr == nil
	if dbErr != nil && !errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return 0, "", false, &domain.PersistenceError{Channel: "primary", Err: dbErr}
	}

	cachedSeq, cacheFound, cacheErr := s.cache.Load()
	if cacheErr != nil {
		// Secondary is advisory; a broken slot must not block startup.
		cacheFound = false
	}

	if !primaryFound && !cacheFound {
		return 0, "", false, nil
	}

	seqNo = rec.SeqNo
	lastHash = rec.LastHash
	if cacheFound && cachedSeq > seqNo {
		// High-water mark: the primary missed at least one commit. Resuming
		// at the larger seq prevents the chain from silently regressing.
		seqNo = cachedSeq
	}
	return seqNo, lastHash, true, nil
}

// ======================================================================================
// Journal
// ======================================================================================

// AppendJournal stores a committed envelope locally.
func (s *Storage) AppendJournal(env *audit.Envelope) error {
	entry := JournalEntry{
		SeqNo:     env.SeqNo,
		EventType: env.EventType,
		PrevHash:  env.PrevHash,
		EventHash: env.EventHash,
		Timestamp: env.Timestamp,
		Payload:   string(env.Payload),
		CreatedAt: time.Now(),
	}
	if err := s.db.Save(&entry).Error; err != nil {
		return &domain.PersistenceError{Channel: "primary", Err: err}
	}
	return nil
}

// LoadJournal returns all journaled envelopes in sequence order.
func (s *Storage) LoadJournal() ([]audit.Envelope, error) {
	var entries []JournalEntry
	if err := s.db.Order("seq_no asc").Find(&entries).Error; err != nil {
		return nil, &domain.PersistenceError{Channel: "primary", Err: err}
	}

	out := make([]audit.Envelope, 0, len(entries))
	for _, e := range entries {
		out = append(out, audit.Envelope{
			EventType: e.EventType,
			SeqNo:     e.SeqNo,
			PrevHash:  e.PrevHash,
			EventHash: e.EventHash,
			Timestamp: e.Timestamp,
			Payload:   []byte(e.Payload),
		})
	}
	return out, nil
}

// FirstInstanceID returns the instance id of the stored chain head, if any.
// Used by cmd/verify when no explicit id is given.
func (s *Storage) FirstInstanceID() (string, bool, error) {
	var rec ChainStateRecord
	err := s.db.First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &domain.PersistenceError{Channel: "primary", Err: err}
	}
	return rec.InstanceID, true, nil
}
