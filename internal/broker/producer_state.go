// =============================================================================
// PER-PARTITION PRODUCER STATE MANAGER (PPSM)
// =============================================================================
//
// WHAT IS THIS?
// For every partition, the PPSM is the single authority on:
//   - idempotence: has producer P already written sequence number N here?
//   - transactional membership: does producer P have an open transaction on
//     this partition, and where did it start?
//   - read_committed visibility: which offset ranges came from a transaction
//     that was later aborted?
//
// It mirrors goqueue's idempotent_producer.go (fine-grained locking per
// concern, Stats()/TakeSnapshot()/RestoreFromSnapshot() triplet) but is scoped
// to a single partition instead of a whole broker, because the snapshot and
// recovery unit here is the partition, not the producer-id space.
//
// WHY A SEPARATE ENTRY PER (PARTITION, PID) RATHER THAN GLOBAL?
//   Kafka's idempotence guarantee is per (producer, partition): sequence
//   numbers are meaningless across partitions. Keeping state here means
//   recovery for one partition never touches another's data.
//
// =============================================================================

package broker

import (
	"encoding/json"
	"sync"
	"time"
)

// DedupWindowSize bounds how many trailing sequence batches are kept per
// producer for duplicate-batch detection (spec: "last 5 sequence batches").
const DedupWindowSize = 5

// AppendOutcome is the closed variant set for a validated append — modeled
// directly as a sum type rather than as an error hierarchy, since the caller
// (PartitionLog) must branch on all five cases explicitly.
type AppendOutcome int8

const (
	AppendOK AppendOutcome = iota
	AppendDuplicate
	AppendOutOfOrder
	AppendFenced
	AppendEpochBump
)

func (o AppendOutcome) String() string {
	switch o {
	case AppendOK:
		return "ok"
	case AppendDuplicate:
		return "duplicate"
	case AppendOutOfOrder:
		return "out_of_order"
	case AppendFenced:
		return "fenced"
	case AppendEpochBump:
		return "epoch_bump"
	default:
		return "unknown"
	}
}

// AppendInfo is the result of ProducerStateManager.ValidateAndUpdate.
type AppendInfo struct {
	ProducerID  int64
	Epoch       int16
	Outcome     AppendOutcome
	FirstOffset int64
	LastOffset  int64
}

// seqBatch is one retained entry in a producer's idempotence window: the
// offsets originally assigned to the batch that started at FirstSeq.
type seqBatch struct {
	FirstSeq    int32
	LastSeq     int32
	FirstOffset int64
	LastOffset  int64
}

// ProducerStateEntry is the per-(partition, producerId) authority on
// idempotence and transactional membership described in spec §3.
type ProducerStateEntry struct {
	Epoch            int16
	LastSeq          int32
	LastOffset       int64
	CoordinatorEpoch int32

	// hasOpenTxn/CurrentTxnFirstOffset track the single ongoing transaction
	// this producer may have open on this partition. Invariant: at most one
	// at a time (spec §8, "exclusive ongoing tx").
	hasOpenTxn            bool
	CurrentTxnFirstOffset int64

	window     []seqBatch // most recent DedupWindowSize batches, oldest first
	lastUpdate time.Time
}

func (e *ProducerStateEntry) findDuplicate(firstSeq int32) (seqBatch, bool) {
	for _, b := range e.window {
		if b.FirstSeq == firstSeq {
			return b, true
		}
	}
	return seqBatch{}, false
}

func (e *ProducerStateEntry) pushWindow(b seqBatch) {
	e.window = append(e.window, b)
	if len(e.window) > DedupWindowSize {
		e.window = e.window[len(e.window)-DedupWindowSize:]
	}
}

// ProducerStateManager is the PPSM for a single partition: the full set of
// producer entries writing to it, plus the aborted-transaction index used to
// answer read_committed fetches.
type ProducerStateManager struct {
	mu                   sync.RWMutex
	entries              map[int64]*ProducerStateEntry
	aborted              *abortedIndex
	recoveryPointOffset  int64
	topicUUID            string
}

// NewProducerStateManager creates an empty PPSM, as happens when a partition
// is created for the first time (no prior state to recover).
func NewProducerStateManager(topicUUID string) *ProducerStateManager {
	return &ProducerStateManager{
		entries:   make(map[int64]*ProducerStateEntry),
		aborted:   newAbortedIndex(),
		topicUUID: topicUUID,
	}
}

// NoProducerID marks an append with no producer identity at all (a plain,
// non-transactional, non-idempotent publish). Such appends carry no sequence
// number to dedupe against, so ValidateAndUpdate skips the PPSM entirely
// instead of fabricating a fake per-call producer entry that would never be
// reused and would only grow the table unboundedly.
const NoProducerID int64 = -1

// ValidateAndUpdate implements spec §4.1's validateAndUpdate contract.
func (m *ProducerStateManager) ValidateAndUpdate(pid int64, epoch int16, firstSeq, lastSeq int32, firstOffset, lastOffset int64, isTxn bool) (*AppendInfo, error) {
	if pid == NoProducerID {
		return &AppendInfo{ProducerID: pid, Epoch: epoch, Outcome: AppendOK, FirstOffset: firstOffset, LastOffset: lastOffset}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[pid]
	if !exists {
		// First time this producer writes to this partition. firstSeq must be
		// 0 unless it rode in on a prior epoch's snapshot we never recovered.
		entry = &ProducerStateEntry{Epoch: epoch, LastSeq: -1}
		m.entries[pid] = entry
	}

	switch {
	case epoch < entry.Epoch:
		return &AppendInfo{ProducerID: pid, Epoch: epoch, Outcome: AppendFenced}, ErrInvalidProducerEpoch

	case epoch > entry.Epoch:
		// Epoch bump: the coordinator has already accepted this as the new
		// owner. The append-time path never fences on pure epoch mismatch
		// (spec §9 open question, resolved per original_source: only commit,
		// abort, and sendOffsets are fenced at the coordinator; appends ride
		// through). Reset sequence tracking for the new epoch.
		entry.Epoch = epoch
		entry.LastSeq = -1
		entry.window = nil
		entry.hasOpenTxn = false

	default:
		if dup, ok := entry.findDuplicate(firstSeq); ok {
			info := &AppendInfo{
				ProducerID:  pid,
				Epoch:       epoch,
				Outcome:     AppendDuplicate,
				FirstOffset: dup.FirstOffset,
				LastOffset:  dup.LastOffset,
			}
			return info, ErrDuplicateSequenceNumber
		}
		if firstSeq <= entry.LastSeq && entry.LastSeq != -1 {
			return &AppendInfo{ProducerID: pid, Epoch: epoch, Outcome: AppendDuplicate}, ErrDuplicateSequenceNumber
		}
		expected := entry.LastSeq + 1
		if entry.LastSeq == -1 {
			expected = 0
		}
		if firstSeq != expected {
			return &AppendInfo{ProducerID: pid, Epoch: epoch, Outcome: AppendOutOfOrder}, ErrOutOfOrderSequenceNumber
		}
	}

	entry.LastSeq = lastSeq
	entry.LastOffset = lastOffset
	entry.lastUpdate = time.Now()
	entry.pushWindow(seqBatch{FirstSeq: firstSeq, LastSeq: lastSeq, FirstOffset: firstOffset, LastOffset: lastOffset})

	outcome := AppendOK
	if isTxn && !entry.hasOpenTxn {
		entry.hasOpenTxn = true
		entry.CurrentTxnFirstOffset = firstOffset
	}

	return &AppendInfo{
		ProducerID:  pid,
		Epoch:       epoch,
		Outcome:     outcome,
		FirstOffset: firstOffset,
		LastOffset:  lastOffset,
	}, nil
}

// CompletedTxn describes the transaction PPSM just closed for completeTxn.
type CompletedTxn struct {
	ProducerID  int64
	FirstOffset int64
	LastOffset  int64
	IsAbort     bool
}

// CompleteTxn implements spec §4.1's completeTxn contract: closes the open
// transaction for pid, and on ABORT appends to the aborted-tx index.
// Idempotent — completing an already-closed transaction for this pid/epoch
// is a no-op success, because marker writes are delivered at-least-once.
func (m *ProducerStateManager) CompleteTxn(pid int64, epoch int16, isAbort bool, markerOffset, lastStableOffset int64) (*CompletedTxn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[pid]
	if !exists {
		return nil, ErrUnknownProducerID
	}
	if epoch < entry.Epoch {
		return nil, ErrInvalidProducerEpoch
	}
	if !entry.hasOpenTxn {
		// Idempotent: marker already applied (or no transaction was ever open
		// on this partition, which a duplicate marker can legitimately hit).
		return &CompletedTxn{ProducerID: pid, IsAbort: isAbort}, nil
	}

	firstOffset := entry.CurrentTxnFirstOffset
	entry.hasOpenTxn = false
	entry.CurrentTxnFirstOffset = 0

	if isAbort {
		m.aborted.append(AbortedTxn{
			ProducerID:       pid,
			FirstOffset:      firstOffset,
			LastOffset:       markerOffset - 1,
			LastStableOffset: lastStableOffset,
		})
	}

	return &CompletedTxn{
		ProducerID:  pid,
		FirstOffset: firstOffset,
		LastOffset:  markerOffset - 1,
		IsAbort:     isAbort,
	}, nil
}

// AbortedTxnsOverlapping implements spec §4.1's abortedTxnsOverlapping.
func (m *ProducerStateManager) AbortedTxnsOverlapping(fetchStart, fetchEnd int64) []AbortedTxn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aborted.overlapping(fetchStart, fetchEnd)
}

// HasSomeAbortedTransactions reports whether the aborted-tx index is non-empty.
func (m *ProducerStateManager) HasSomeAbortedTransactions() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aborted.hasAny()
}

// PurgeAbortedBefore implements spec §4.1's purgeAbortedBefore.
func (m *ProducerStateManager) PurgeAbortedBefore(minValidOffset int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted.purgeBefore(minValidOffset)
}

// FirstOpenTxnOffset returns the smallest CurrentTxnFirstOffset across every
// producer entry with an open transaction, or -1 if none are open. This is
// exactly the bound PartitionLog needs for lastStableOffset (spec §4.2/§6).
func (m *ProducerStateManager) FirstOpenTxnOffset() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	min := int64(-1)
	for _, e := range m.entries {
		if !e.hasOpenTxn {
			continue
		}
		if min == -1 || e.CurrentTxnFirstOffset < min {
			min = e.CurrentTxnFirstOffset
		}
	}
	return min
}

// =============================================================================
// SNAPSHOTTING
// =============================================================================

// ProducerStateEntrySnapshot is the JSON-serializable form of ProducerStateEntry.
type ProducerStateEntrySnapshot struct {
	ProducerID            int64      `json:"producer_id"`
	Epoch                 int16      `json:"epoch"`
	LastSeq               int32      `json:"last_seq"`
	LastOffset            int64      `json:"last_offset"`
	CoordinatorEpoch      int32      `json:"coordinator_epoch"`
	HasOpenTxn            bool       `json:"has_open_txn"`
	CurrentTxnFirstOffset int64      `json:"current_txn_first_offset,omitempty"`
	Window                []seqBatch `json:"window,omitempty"`
}

// ProducerStateSnapshot is spec §3's per-partition ProducerStateSnapshot.
type ProducerStateSnapshot struct {
	TopicUUID    string                       `json:"topic_uuid"`
	Offset       int64                        `json:"offset"`
	Producers    []ProducerStateEntrySnapshot `json:"producers"`
	AbortedIndex []AbortedTxn                 `json:"aborted_index"`
}

// Snapshot implements spec §4.1's snapshot(offset) contract.
func (m *ProducerStateManager) Snapshot(offset int64) ProducerStateSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := ProducerStateSnapshot{
		TopicUUID:    m.topicUUID,
		Offset:       offset,
		AbortedIndex: m.aborted.snapshot(),
	}
	for pid, e := range m.entries {
		out.Producers = append(out.Producers, ProducerStateEntrySnapshot{
			ProducerID:            pid,
			Epoch:                 e.Epoch,
			LastSeq:               e.LastSeq,
			LastOffset:            e.LastOffset,
			CoordinatorEpoch:      e.CoordinatorEpoch,
			HasOpenTxn:            e.hasOpenTxn,
			CurrentTxnFirstOffset: e.CurrentTxnFirstOffset,
			Window:                e.window,
		})
	}
	return out
}

// LoadFromSnapshot implements spec §4.1's loadFromSnapshot(snap): resets
// internal state to the snapshot and sets recoveryPointOffset = snap.offset+1.
// The caller (PartitionLog) is responsible for discarding a snapshot whose
// TopicUUID doesn't match the live partition before calling this.
func (m *ProducerStateManager) LoadFromSnapshot(snap ProducerStateSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topicUUID = snap.TopicUUID
	m.entries = make(map[int64]*ProducerStateEntry, len(snap.Producers))
	for _, p := range snap.Producers {
		m.entries[p.ProducerID] = &ProducerStateEntry{
			Epoch:                 p.Epoch,
			LastSeq:               p.LastSeq,
			LastOffset:            p.LastOffset,
			CoordinatorEpoch:      p.CoordinatorEpoch,
			hasOpenTxn:            p.HasOpenTxn,
			CurrentTxnFirstOffset: p.CurrentTxnFirstOffset,
			window:                p.Window,
		}
	}
	m.aborted.restore(snap.AbortedIndex)
	m.recoveryPointOffset = snap.Offset + 1
}

// RecoveryPointOffset is the offset recovery should resume replaying from.
func (m *ProducerStateManager) RecoveryPointOffset() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recoveryPointOffset
}

// MarshalSnapshot/UnmarshalProducerStateSnapshot are the byte-level
// encode/decode SnapshotBuffer uses when publishing and reading snapshots.
func (s ProducerStateSnapshot) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalProducerStateSnapshot(data []byte) (ProducerStateSnapshot, error) {
	var s ProducerStateSnapshot
	err := json.Unmarshal(data, &s)
	return s, err
}

// ProducerStateStats is a point-in-time summary, mirroring idempotent_producer.go's Stats().
type ProducerStateStats struct {
	ProducerCount int
	AbortedCount  int
	RecoveryPoint int64
}

func (m *ProducerStateManager) Stats() ProducerStateStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ProducerStateStats{
		ProducerCount: len(m.entries),
		AbortedCount:  len(m.aborted.entries),
		RecoveryPoint: m.recoveryPointOffset,
	}
}
