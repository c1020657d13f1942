// =============================================================================
// SNAPSHOT BUFFER — KEYED INTERNAL TOPIC FOR PRODUCER-STATE SNAPSHOTS
// =============================================================================
//
// spec §7 requires a durable, compacted store of the latest ProducerState
// snapshot per partition so recovery never has to replay a whole partition's
// history. This is the same shape as goqueue's __consumer_offsets topic
// (internal_topic.go's key-per-entity, tombstone-for-delete, compact-to-latest
// design), so SnapshotBuffer is built directly on that record format —
// RecordTypeProducerSnapshot, added there — backed by a single storage.Log
// the way InternalTopicManager backs __consumer_offsets. Only the in-memory
// index keeps just the newest snapshot per partition; the backing log is
// append-only and nothing compacts it (compactor.go compacts PartitionLogs
// only), so superseded snapshot records stay on disk.
//
// Snapshot payloads are compressed with klauspost/compress/zstd before being
// written: snapshots hold one entry per producer that has ever written to the
// partition, which for a busy partition is exactly the kind of repetitive,
// text-shaped JSON zstd was brought into this module to shrink.
//
// =============================================================================

package broker

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"txncore/internal/storage"
)

// SnapshotBufferConfig configures the backing compacted log.
type SnapshotBufferConfig struct {
	DataDir      string
	SegmentBytes int64
}

// DefaultSnapshotBufferConfig mirrors DefaultInternalTopicConfig's shape.
func DefaultSnapshotBufferConfig(dataDir string) SnapshotBufferConfig {
	return SnapshotBufferConfig{
		DataDir:      filepath.Join(dataDir, "__transaction_state_snapshots"),
		SegmentBytes: 64 * 1024 * 1024,
	}
}

// SnapshotBuffer is the compacted internal topic holding the latest
// ProducerStateSnapshot per partition.
type SnapshotBuffer struct {
	dir string
	log *storage.Log

	mu     sync.RWMutex
	latest map[int32]ProducerStateSnapshot

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	logger *slog.Logger
}

// NewSnapshotBuffer opens (or creates) the buffer and replays its compacted
// log into memory so ReadLatestSnapshot never touches disk on the hot path.
func NewSnapshotBuffer(cfg SnapshotBufferConfig, logger *slog.Logger) (*SnapshotBuffer, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot buffer directory: %w", err)
	}

	var log *storage.Log
	var err error
	if _, statErr := os.Stat(filepath.Join(cfg.DataDir, storage.SegmentFileName(0))); statErr == nil {
		log, err = storage.LoadLog(cfg.DataDir)
	} else {
		log, err = storage.NewLog(cfg.DataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot buffer log: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		log.Close()
		enc.Close()
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}

	sb := &SnapshotBuffer{
		dir:     cfg.DataDir,
		log:     log,
		latest:  make(map[int32]ProducerStateSnapshot),
		encoder: enc,
		decoder: dec,
		logger:  logger,
	}

	if err := sb.replay(); err != nil {
		log.Close()
		return nil, fmt.Errorf("replay snapshot buffer: %w", err)
	}
	return sb, nil
}

func (sb *SnapshotBuffer) replay() error {
	if sb.log.EarliestOffset() < 0 {
		return nil
	}
	offset := sb.log.EarliestOffset()
	for {
		msgs, err := sb.log.ReadFrom(offset, 500)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		for _, msg := range msgs {
			rec, err := DecodeInternalRecord(msg.Value)
			if err != nil {
				sb.logger.Warn("skipping corrupt snapshot record", "offset", msg.Offset, "err", err)
				continue
			}
			sb.applyRecord(rec)
		}
		offset = msgs[len(msgs)-1].Offset + 1
	}
}

func (sb *SnapshotBuffer) applyRecord(rec *InternalRecord) {
	switch rec.Type {
	case RecordTypeProducerSnapshot:
		pid, err := DecodeProducerSnapshotKey(rec.Key)
		if err != nil {
			return
		}
		snap, err := sb.decodeSnapshot(rec.Value)
		if err != nil {
			sb.logger.Warn("dropping undecodable snapshot", "partition", pid, "err", err)
			return
		}
		sb.latest[pid] = snap
	case RecordTypeTombstone:
		pid, err := DecodeProducerSnapshotKey(rec.Key)
		if err != nil {
			return
		}
		delete(sb.latest, pid)
	}
}

func (sb *SnapshotBuffer) decodeSnapshot(compressed []byte) (ProducerStateSnapshot, error) {
	raw, err := sb.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return ProducerStateSnapshot{}, fmt.Errorf("zstd decode: %w", err)
	}
	return UnmarshalProducerStateSnapshot(raw)
}

// Publish appends a new snapshot record for partitionID and makes it the
// partition's latest snapshot in memory. Earlier records for the same key
// stay in the log.
func (sb *SnapshotBuffer) Publish(partitionID int, snap ProducerStateSnapshot) error {
	raw, err := snap.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	compressed := sb.encoder.EncodeAll(raw, nil)

	rec := NewProducerSnapshotRecord(int32(partitionID), compressed)
	msg := storage.NewMessage(rec.Key, rec.Encode())

	if _, err := sb.log.Append(msg); err != nil {
		return fmt.Errorf("append snapshot record: %w", err)
	}

	sb.mu.Lock()
	sb.latest[int32(partitionID)] = snap
	sb.mu.Unlock()
	return nil
}

// ReadLatestSnapshot returns the newest known snapshot for a partition.
func (sb *SnapshotBuffer) ReadLatestSnapshot(partitionID int) (ProducerStateSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	snap, ok := sb.latest[int32(partitionID)]
	return snap, ok
}

// Delete tombstones a partition's snapshot, used when a partition is
// permanently removed rather than merely unloaded.
func (sb *SnapshotBuffer) Delete(partitionID int) error {
	key := make([]byte, 4)
	rec := NewTombstoneRecord(RecordTypeProducerSnapshot, key)
	binary.BigEndian.PutUint32(rec.Key, uint32(partitionID))
	msg := storage.NewMessage(rec.Key, rec.Encode())
	if _, err := sb.log.Append(msg); err != nil {
		return fmt.Errorf("append tombstone: %w", err)
	}
	sb.mu.Lock()
	delete(sb.latest, int32(partitionID))
	sb.mu.Unlock()
	return nil
}

// Log exposes the backing storage.Log.
func (sb *SnapshotBuffer) Log() *storage.Log { return sb.log }
func (sb *SnapshotBuffer) Dir() string       { return sb.dir }

func (sb *SnapshotBuffer) Close() error {
	sb.encoder.Close()
	sb.decoder.Close()
	return sb.log.Close()
}
