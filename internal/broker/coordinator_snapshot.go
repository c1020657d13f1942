// =============================================================================
// COORDINATOR SNAPSHOT - FAST STATE RECOVERY
// =============================================================================
//
// WHAT ARE COORDINATOR SNAPSHOTS?
// Snapshots capture the complete state of a coordinator at a point in time.
// They enable fast recovery without replaying the entire log from offset 0.
//
// WHY DO WE NEED SNAPSHOTS?
//
// ┌─────────────────────────────────────────────────────────────────────────┐
// │                    THE SLOW RECOVERY PROBLEM                            │
// │                                                                         │
// │   __consumer_offsets partition has 1,000,000 records                    │
// │   Group coordinator needs to rebuild state on startup                   │
// │                                                                         │
// │   WITHOUT SNAPSHOT:                                                     │
// │     - Read and parse all 1M records from offset 0                       │
// │     - Apply each offset commit, group membership change                 │
// │     - Takes 5-30 seconds (depending on disk speed)                      │
// │     - Blocks all consumer group operations during recovery              │
// │                                                                         │
// │   WITH SNAPSHOT:                                                        │
// │     - Load snapshot (pre-parsed state at offset 999,000)                │
// │     - Only replay records 999,001 to 1,000,000 (1000 records)           │
// │     - Takes < 100 milliseconds                                          │
// │     - 50-300x faster recovery!                                          │
// │                                                                         │
// └─────────────────────────────────────────────────────────────────────────┘
//
// SNAPSHOT FILE FORMAT:
//
// Binary format for fast parsing:
//
// ┌────────────────────────────────────────────────────────────────────────┐
// │                         SNAPSHOT HEADER (32 bytes)                     │
// ├────────────┬───────────┬────────────┬──────────┬───────────────────────┤
// │ Magic (4B) │Version(1B)│ Type (1B)  │ CRC (4B) │ LastOffset (8B)       │
// ├────────────┴───────────┴────────────┴──────────┴───────────────────────┤
// │ LastTimestamp (8B)      │ EntryCount (4B)   │ Reserved (2B)            │
// ├────────────────────────────────────────────────────────────────────────┤
// │                         SNAPSHOT ENTRIES                               │
// │  [Entry 0: Type (1B) | KeyLen (2B) | Key | ValueLen (4B) | Value]      │
// │  [Entry 1: Type (1B) | KeyLen (2B) | Key | ValueLen (4B) | Value]      │
// │  [...]                                                                 │
// └────────────────────────────────────────────────────────────────────────┘
//
// SNAPSHOT TYPES:
//   1. GroupCoordinatorSnapshot - Consumer group state
//   2. TransactionCoordinatorSnapshot - Transaction state
//
// SNAPSHOT TRIGGER POLICY:
//   - After processing N records (default: 10,000)
//   - After time interval (default: 5 minutes)
//   - Whichever comes first
//
// RECOVERY FLOW:
//
//	┌─────────────┐  load    ┌─────────────┐  replay  ┌─────────────┐
//	│  Snapshot   │─────────►│ Coordinator │─────────►│  Log Tail   │
//	│ (offset N)  │          │    State    │          │ (N+1 to end)│
//	└─────────────┘          └─────────────┘          └─────────────┘
//
// COMPARISON - How other systems handle coordinator state:
//   - Kafka: Snapshots in __consumer_offsets (periodic compaction)
//   - Raft: Explicit snapshot + log truncation
//   - etcd: Snapshot streaming for followers
//   - Redis: RDB snapshots + AOF for durability
//   - goqueue: Binary snapshots + log replay
//
// =============================================================================

package broker

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// SnapshotMagic identifies a coordinator snapshot file.
	SnapshotMagic = 0x47515350 // "GQSP" in ASCII

	// SnapshotVersion is the current snapshot format version.
	SnapshotVersion = 1

	// SnapshotHeaderSize is the size of the snapshot header in bytes.
	SnapshotHeaderSize = 32

	// DefaultSnapshotRecordInterval is how often to snapshot (by record count).
	DefaultSnapshotRecordInterval = 10000

	// DefaultSnapshotTimeInterval is how often to snapshot (by time).
	DefaultSnapshotTimeInterval = 5 * time.Minute
)

// SnapshotType identifies what kind of coordinator snapshot this is.
type SnapshotType uint8

const (
	// SnapshotTypeGroupCoordinator is for consumer group coordinator state.
	SnapshotTypeGroupCoordinator SnapshotType = 1

	// SnapshotTypeTransactionCoordinator is for transaction coordinator state.
	SnapshotTypeTransactionCoordinator SnapshotType = 2
)

// =============================================================================
// ERROR DEFINITIONS
// =============================================================================

var (
	// ErrSnapshotVersionMismatch means snapshot format version is incompatible.
	ErrSnapshotVersionMismatch = errors.New("snapshot version mismatch")

	// ErrInvalidSnapshotMagic means the file doesn't have the correct magic bytes.
	ErrInvalidSnapshotMagic = errors.New("invalid snapshot magic")
)

// =============================================================================
// SNAPSHOT ENTRY
// =============================================================================

// SnapshotEntry represents a single key-value entry in a snapshot.
//
// ENTRY FORMAT:
//
//	Type (1B) | KeyLen (2B) | Key (variable) | ValueLen (4B) | Value (variable)
//
// Used for storing:
//   - Offset commits: key=group+topic+partition, value=offset
//   - Group metadata: key=groupID, value=serialized group state
//   - Transaction state: key=transactionID, value=serialized tx state
type SnapshotEntry struct {
	// Type identifies the entry type (offset commit, group metadata, etc.).
	Type RecordType

	// Key is the entry key (e.g., "group:topic:partition").
	Key []byte

	// Value is the entry value (serialized state).
	Value []byte
}

// Encode serializes a snapshot entry to bytes.
func (e *SnapshotEntry) Encode() []byte {
	size := 1 + 2 + len(e.Key) + 4 + len(e.Value)
	buf := make([]byte, size)
	offset := 0

	// Type
	buf[offset] = uint8(e.Type)
	offset++

	// Key length
	binary.BigEndian.PutUint16(buf[offset:], uint16(len(e.Key)))
	offset += 2

	// Key
	copy(buf[offset:], e.Key)
	offset += len(e.Key)

	// Value length
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(e.Value)))
	offset += 4

	// Value
	copy(buf[offset:], e.Value)

	return buf
}

// DecodeSnapshotEntry deserializes a snapshot entry from a reader.
func DecodeSnapshotEntry(reader io.Reader) (*SnapshotEntry, error) {
	// Read type
	typeBuf := make([]byte, 1)
	if _, err := io.ReadFull(reader, typeBuf); err != nil {
		return nil, err
	}

	// Read key length
	keyLenBuf := make([]byte, 2)
	if _, err := io.ReadFull(reader, keyLenBuf); err != nil {
		return nil, err
	}
	keyLen := binary.BigEndian.Uint16(keyLenBuf)

	// Read key
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}

	// Read value length
	valueLenBuf := make([]byte, 4)
	if _, err := io.ReadFull(reader, valueLenBuf); err != nil {
		return nil, err
	}
	valueLen := binary.BigEndian.Uint32(valueLenBuf)

	// Read value
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(reader, value); err != nil {
		return nil, err
	}

	return &SnapshotEntry{
		Type:  RecordType(typeBuf[0]),
		Key:   key,
		Value: value,
	}, nil
}

// =============================================================================
// SNAPSHOT HEADER
// =============================================================================

// SnapshotHeader contains metadata about a snapshot.
type SnapshotHeader struct {
	// Magic bytes to identify snapshot file.
	Magic uint32

	// Version of snapshot format.
	Version uint8

	// Type of coordinator snapshot.
	Type SnapshotType

	// CRC32 checksum of snapshot data (not including header).
	CRC uint32

	// LastOffset is the last log offset included in this snapshot.
	LastOffset int64

	// LastTimestamp is the timestamp when snapshot was taken.
	LastTimestamp int64

	// EntryCount is the number of entries in the snapshot.
	EntryCount uint32
}

// Encode serializes the snapshot header to bytes.
func (h *SnapshotHeader) Encode() []byte {
	buf := make([]byte, SnapshotHeaderSize)

	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = uint8(h.Type)
	binary.BigEndian.PutUint32(buf[6:10], h.CRC)
	binary.BigEndian.PutUint64(buf[10:18], uint64(h.LastOffset))
	binary.BigEndian.PutUint64(buf[18:26], uint64(h.LastTimestamp))
	binary.BigEndian.PutUint32(buf[26:30], h.EntryCount)
	// buf[30:32] reserved

	return buf
}

// DecodeSnapshotHeader deserializes a snapshot header from bytes.
func DecodeSnapshotHeader(buf []byte) (*SnapshotHeader, error) {
	if len(buf) < SnapshotHeaderSize {
		return nil, ErrSnapshotCorrupted
	}

	header := &SnapshotHeader{
		Magic:         binary.BigEndian.Uint32(buf[0:4]),
		Version:       buf[4],
		Type:          SnapshotType(buf[5]),
		CRC:           binary.BigEndian.Uint32(buf[6:10]),
		LastOffset:    int64(binary.BigEndian.Uint64(buf[10:18])),
		LastTimestamp: int64(binary.BigEndian.Uint64(buf[18:26])),
		EntryCount:    binary.BigEndian.Uint32(buf[26:30]),
	}

	// Validate magic
	if header.Magic != SnapshotMagic {
		return nil, ErrInvalidSnapshotMagic
	}

	// Validate version
	if header.Version != SnapshotVersion {
		return nil, ErrSnapshotVersionMismatch
	}

	return header, nil
}

// =============================================================================
// SNAPSHOT WRITER
// =============================================================================

// SnapshotWriter writes coordinator snapshots to disk.
type SnapshotWriter struct {
	file       *os.File
	path       string
	header     SnapshotHeader
	entries    []SnapshotEntry
	mu         sync.Mutex
	crcHasher  hash.Hash32
	entryCount uint32
}

// NewSnapshotWriter creates a new snapshot writer.
//
// PARAMETERS:
//   - snapshotDir: Directory to store snapshots
//   - snapshotType: Type of coordinator snapshot
//   - lastOffset: Last log offset included in snapshot
//
// CREATES:
//   - {snapshotDir}/snapshot-{type}-{offset}-{timestamp}.bin
func NewSnapshotWriter(snapshotDir string, snapshotType SnapshotType, lastOffset int64) (*SnapshotWriter, error) {
	// Ensure directory exists
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	// Generate filename
	timestamp := time.Now().UnixMilli()
	filename := fmt.Sprintf("snapshot-%d-%d-%d.bin", snapshotType, lastOffset, timestamp)
	path := filepath.Join(snapshotDir, filename)

	// Create file
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot file: %w", err)
	}

	// Initialize header (will be written at close)
	header := SnapshotHeader{
		Magic:         SnapshotMagic,
		Version:       SnapshotVersion,
		Type:          snapshotType,
		LastOffset:    lastOffset,
		LastTimestamp: timestamp,
		EntryCount:    0,
	}

	// Reserve space for header (will overwrite at close)
	placeholder := make([]byte, SnapshotHeaderSize)
	if _, err := file.Write(placeholder); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write header placeholder: %w", err)
	}

	hasher := crc32.NewIEEE()

	return &SnapshotWriter{
		file:      file,
		path:      path,
		header:    header,
		entries:   make([]SnapshotEntry, 0, 10000),
		crcHasher: hasher,
	}, nil
}

// AddEntry adds an entry to the snapshot.
func (w *SnapshotWriter) AddEntry(entry SnapshotEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Encode entry
	data := entry.Encode()

	// Write to file
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	// Update CRC
	w.crcHasher.Write(data)

	w.entryCount++
	return nil
}

// Close finalizes the snapshot and writes the header.
func (w *SnapshotWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Calculate final CRC
	w.header.CRC = w.crcHasher.Sum32()
	w.header.EntryCount = w.entryCount

	// Seek to beginning to write header
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to seek to header: %w", err)
	}

	// Write header
	headerBytes := w.header.Encode()
	if _, err := w.file.Write(headerBytes); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Sync to disk
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to sync: %w", err)
	}

	// Close file
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}

	return nil
}

// GetPath returns the snapshot file path.
func (w *SnapshotWriter) GetPath() string {
	return w.path
}

// =============================================================================
// SNAPSHOT READER
// =============================================================================

// SnapshotReader reads coordinator snapshots from disk.
type SnapshotReader struct {
	file   *os.File
	header SnapshotHeader
	read   uint32 // Number of entries read so far
}

// OpenSnapshot opens an existing snapshot file for reading.
func OpenSnapshot(path string) (*SnapshotReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}

	// Read header
	headerBuf := make([]byte, SnapshotHeaderSize)
	if _, err := io.ReadFull(file, headerBuf); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	header, err := DecodeSnapshotHeader(headerBuf)
	if err != nil {
		file.Close()
		return nil, err
	}

	// Verify CRC
	// Read all data after header
	data, err := io.ReadAll(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read snapshot data: %w", err)
	}

	actualCRC := crc32.ChecksumIEEE(data)
	if actualCRC != header.CRC {
		file.Close()
		return nil, fmt.Errorf("%w: CRC mismatch (expected %d, got %d)",
			ErrSnapshotCorrupted, header.CRC, actualCRC)
	}

	// Seek back to after header for reading entries
	if _, err := file.Seek(SnapshotHeaderSize, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to seek: %w", err)
	}

	return &SnapshotReader{
		file:   file,
		header: *header,
		read:   0,
	}, nil
}

// GetHeader returns the snapshot header.
func (r *SnapshotReader) GetHeader() SnapshotHeader {
	return r.header
}

// ReadEntry reads the next entry from the snapshot.
// Returns io.EOF when no more entries.
func (r *SnapshotReader) ReadEntry() (*SnapshotEntry, error) {
	if r.read >= r.header.EntryCount {
		return nil, io.EOF
	}

	entry, err := DecodeSnapshotEntry(r.file)
	if err != nil {
		return nil, err
	}

	r.read++
	return entry, nil
}

// ReadAllEntries reads all remaining entries.
func (r *SnapshotReader) ReadAllEntries() ([]SnapshotEntry, error) {
	var entries []SnapshotEntry

	for {
		entry, err := r.ReadEntry()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

// Close closes the snapshot reader.
func (r *SnapshotReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// =============================================================================
// SNAPSHOT MANAGER
// =============================================================================

// SnapshotManager manages snapshots for a coordinator.
//
// RESPONSIBILITIES:
//   - Trigger snapshots based on record count or time
//   - Create new snapshots
//   - Load latest snapshot on startup
//   - Clean up old snapshots
type SnapshotManager struct {
	snapshotDir      string
	snapshotType     SnapshotType
	recordInterval   int64
	timeInterval     time.Duration
	lastSnapshotTime time.Time
	recordsSinceSnap int64
	maxSnapshots     int // How many old snapshots to keep
	mu               sync.RWMutex
}

// NewSnapshotManager creates a new snapshot manager.
func NewSnapshotManager(snapshotDir string, snapshotType SnapshotType) *SnapshotManager {
	return &SnapshotManager{
		snapshotDir:      snapshotDir,
		snapshotType:     snapshotType,
		recordInterval:   DefaultSnapshotRecordInterval,
		timeInterval:     DefaultSnapshotTimeInterval,
		lastSnapshotTime: time.Now(),
		recordsSinceSnap: 0,
		maxSnapshots:     3, // Keep last 3 snapshots for safety
	}
}

// ShouldSnapshot returns true if it's time to take a snapshot.
func (sm *SnapshotManager) ShouldSnapshot() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	// Check record count trigger
	if sm.recordsSinceSnap >= sm.recordInterval {
		return true
	}

	// Check time trigger
	if time.Since(sm.lastSnapshotTime) >= sm.timeInterval {
		return true
	}

	return false
}

// RecordProcessed increments the record counter.
// Call this after processing each log record.
func (sm *SnapshotManager) RecordProcessed() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.recordsSinceSnap++
}

// ResetCounters resets snapshot trigger counters after a snapshot is taken.
func (sm *SnapshotManager) ResetCounters() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.recordsSinceSnap = 0
	sm.lastSnapshotTime = time.Now()
}

// GetLatestSnapshot finds the most recent snapshot file.
// Returns empty string if no snapshots exist.
func (sm *SnapshotManager) GetLatestSnapshot() (string, error) {
	files, err := filepath.Glob(filepath.Join(sm.snapshotDir, "snapshot-*.bin"))
	if err != nil {
		return "", err
	}

	if len(files) == 0 {
		return "", nil
	}

	// Find the file with highest offset (most recent)
	var latestFile string
	var latestOffset int64 = -1

	for _, file := range files {
		// Parse offset from filename
		var snType, offset, timestamp int64
		n, _ := fmt.Sscanf(filepath.Base(file), "snapshot-%d-%d-%d.bin", &snType, &offset, &timestamp)
		if n == 3 && offset > latestOffset {
			latestOffset = offset
			latestFile = file
		}
	}

	return latestFile, nil
}

// CleanupOldSnapshots removes old snapshots beyond the retention count.
func (sm *SnapshotManager) CleanupOldSnapshots() error {
	files, err := filepath.Glob(filepath.Join(sm.snapshotDir, "snapshot-*.bin"))
	if err != nil {
		return err
	}

	if len(files) <= sm.maxSnapshots {
		return nil // Nothing to clean up
	}

	// Parse and sort by offset
	type snapshotInfo struct {
		path   string
		offset int64
	}

	var snapshots []snapshotInfo
	for _, file := range files {
		var snType, offset, timestamp int64
		n, _ := fmt.Sscanf(filepath.Base(file), "snapshot-%d-%d-%d.bin", &snType, &offset, &timestamp)
		if n == 3 {
			snapshots = append(snapshots, snapshotInfo{path: file, offset: offset})
		}
	}

	// Sort by offset (ascending)
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].offset < snapshots[j].offset
	})

	// Keep only the last maxSnapshots
	if len(snapshots) > sm.maxSnapshots {
		toDelete := len(snapshots) - sm.maxSnapshots
		for i := 0; i < toDelete; i++ {
			os.Remove(snapshots[i].path)
		}
	}

	return nil
}
