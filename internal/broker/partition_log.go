// =============================================================================
// PARTITION LOG — BINDS A KAFKA PARTITION TO THE UNDERLYING LOG STORE
// =============================================================================
//
// WHAT IS THIS?
// PartitionLog is the seam between Kafka transactional semantics and a plain
// append-only log store (internal/storage.Log here — a stand-in for whatever
// foreign store a real bridge would sit on top of: the store itself is an
// external collaborator, out of scope). It:
//   - drives ProducerStateManager (PPSM) recovery from the SnapshotBuffer + log
//     replay on (re)load,
//   - validates every append against the PPSM before committing it to the log,
//   - writes transaction marker control batches and applies them to the PPSM,
//   - triggers periodic snapshotting and purges aborted-tx metadata once the
//     underlying store has trimmed the data those entries describe.
//
// This generalizes goqueue's partition.go (which only wraps storage.Log with
// Produce/Consume) into the full state machine spec.md's PartitionLog names,
// grounded on the same storage.Log API partition.go already used.
//
// =============================================================================

package broker

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"txncore/internal/storage"
)

// PartitionLogState is spec §4.2's PartitionLog state machine.
type PartitionLogState int32

const (
	StateUninitialised PartitionLogState = iota
	StateRecovering
	StateReady
	StateUnloaded
)

func (s PartitionLogState) String() string {
	switch s {
	case StateUninitialised:
		return "uninitialised"
	case StateRecovering:
		return "recovering"
	case StateReady:
		return "ready"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// IsolationLevel selects fetch visibility semantics.
type IsolationLevel int8

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
)

// ControlType identifies a transaction marker's outcome.
type ControlType uint8

const (
	ControlCommit ControlType = 0
	ControlAbort  ControlType = 1
)

// controlBatchPayload is spec §6's control batch payload:
// {version, type, coordinatorEpoch}.
type controlBatchPayload struct {
	Version          uint8
	Type             ControlType
	ProducerID       int64
	Epoch            int16
	CoordinatorEpoch int32
}

func encodeControlBatch(p controlBatchPayload) []byte {
	buf := make([]byte, 1+1+8+2+4)
	buf[0] = p.Version
	buf[1] = uint8(p.Type)
	binary.BigEndian.PutUint64(buf[2:10], uint64(p.ProducerID))
	binary.BigEndian.PutUint16(buf[10:12], uint16(p.Epoch))
	binary.BigEndian.PutUint32(buf[12:16], uint32(p.CoordinatorEpoch))
	return buf
}

func decodeControlBatch(buf []byte) (controlBatchPayload, error) {
	if len(buf) < 16 {
		return controlBatchPayload{}, fmt.Errorf("control batch payload too short: %d bytes", len(buf))
	}
	return controlBatchPayload{
		Version:          buf[0],
		Type:             ControlType(buf[1]),
		ProducerID:       int64(binary.BigEndian.Uint64(buf[2:10])),
		Epoch:            int16(binary.BigEndian.Uint16(buf[10:12])),
		CoordinatorEpoch: int32(binary.BigEndian.Uint32(buf[12:16])),
	}, nil
}

// AppendBatch is a validated group of records sharing one (pid, epoch, isTxn).
// Every batch produced by the Topic layer carries a single record, so one
// shared Key covers it; multi-record batches would need a real network-facing
// producer client to split by key, which is out of scope here.
type AppendBatch struct {
	ProducerID int64
	Epoch      int16
	FirstSeq   int32
	LastSeq    int32
	IsTxn      bool
	Key        []byte
	Records    [][]byte
}

// AppendResult reports where a batch landed, or why it didn't.
type AppendResult struct {
	FirstOffset int64
	LastOffset  int64
	Outcome     AppendOutcome
}

// FetchResult is spec §4.2's fetch(...) → FetchResult.
type FetchResult struct {
	Messages         []*storage.Message
	AbortedTxns      []AbortedTxn
	LastStableOffset int64
	HighWatermark    int64
}

// PartitionLog binds one logical Kafka partition to a storage.Log and owns
// its PPSM exclusively — no other component may mutate this PPSM (spec §3
// Ownership).
type PartitionLog struct {
	topic     string
	id        int
	dir       string
	topicUUID string

	log  *storage.Log
	ppsm *ProducerStateManager

	snapshots *SnapshotBuffer

	mu    sync.RWMutex
	state PartitionLogState

	lastPurgedOffset int64
	initDone         chan struct{}
	initErr          error
	initOnce         sync.Once

	logger *slog.Logger
}

// NewPartitionLog creates a brand-new partition (fresh topicUUID, no history).
func NewPartitionLog(baseDir, topic string, id int, snapshots *SnapshotBuffer, logger *slog.Logger) (*PartitionLog, error) {
	dir := filepath.Join(baseDir, topic, fmt.Sprintf("%d", id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition directory: %w", err)
	}

	storeLog, err := storage.NewLog(dir)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}

	topicUUID := uuid.NewString()
	if err := os.WriteFile(filepath.Join(dir, "topic-uuid"), []byte(topicUUID), 0o644); err != nil {
		storeLog.Close()
		return nil, fmt.Errorf("persist topic uuid: %w", err)
	}

	pl := &PartitionLog{
		topic:     topic,
		id:        id,
		dir:       dir,
		topicUUID: topicUUID,
		log:       storeLog,
		ppsm:      NewProducerStateManager(topicUUID),
		snapshots: snapshots,
		state:     StateReady, // fresh partition needs no recovery
		initDone:  make(chan struct{}),
		logger:    logger,
	}
	close(pl.initDone)
	return pl, nil
}

// LoadPartitionLog reopens an existing partition and immediately begins
// recovering its PPSM in the background; AwaitInitialisation blocks for it.
func LoadPartitionLog(baseDir, topic string, id int, snapshots *SnapshotBuffer, logger *slog.Logger) (*PartitionLog, error) {
	dir := filepath.Join(baseDir, topic, fmt.Sprintf("%d", id))
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("partition directory not found: %s", dir)
	}

	storeLog, err := storage.LoadLog(dir)
	if err != nil {
		return nil, fmt.Errorf("load log: %w", err)
	}

	rawUUID, err := os.ReadFile(filepath.Join(dir, "topic-uuid"))
	if err != nil {
		storeLog.Close()
		return nil, fmt.Errorf("read topic uuid: %w", err)
	}

	pl := &PartitionLog{
		topic:     topic,
		id:        id,
		dir:       dir,
		topicUUID: string(rawUUID),
		log:       storeLog,
		ppsm:      NewProducerStateManager(string(rawUUID)),
		snapshots: snapshots,
		state:     StateRecovering,
		initDone:  make(chan struct{}),
		logger:    logger,
	}

	go pl.recover()
	return pl, nil
}

// AwaitInitialisation implements spec §4.2's awaitInitialisation.
func (p *PartitionLog) AwaitInitialisation(ctx context.Context) error {
	select {
	case <-p.initDone:
		return p.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recover implements spec §4.2's recovery algorithm.
func (p *PartitionLog) recover() {
	defer p.initOnce.Do(func() { close(p.initDone) })

	recoverFrom := p.log.EarliestOffset()

	if snap, ok := p.snapshots.ReadLatestSnapshot(p.id); ok {
		if snap.TopicUUID == p.topicUUID && snap.Offset < p.log.NextOffset() && snap.Offset >= p.log.EarliestOffset()-1 {
			p.ppsm.LoadFromSnapshot(snap)
			recoverFrom = p.ppsm.RecoveryPointOffset()
			if recoverFrom < p.log.EarliestOffset() {
				recoverFrom = p.log.EarliestOffset()
			}
		} else {
			p.logger.Warn("discarding stale snapshot", "topic", p.topic, "partition", p.id)
		}
	}

	if err := p.replayFrom(recoverFrom); err != nil {
		p.initErr = fmt.Errorf("replay from %d: %w", recoverFrom, err)
		return
	}

	p.mu.Lock()
	p.state = StateReady
	p.mu.Unlock()
}

func (p *PartitionLog) replayFrom(offset int64) error {
	if p.log.EarliestOffset() < 0 {
		return nil // empty log, nothing to replay
	}
	if offset < p.log.EarliestOffset() {
		offset = p.log.EarliestOffset()
	}
	for {
		msgs, err := p.log.ReadFrom(offset, 500)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		for _, msg := range msgs {
			p.applyRecovered(msg)
		}
		offset = msgs[len(msgs)-1].Offset + 1
	}
}

// applyRecovered feeds one previously-written message back through the PPSM
// during replay, exactly as a live append or control batch would.
func (p *PartitionLog) applyRecovered(msg *storage.Message) {
	if msg.IsControlBatch() {
		payload, err := decodeControlBatch(msg.Value)
		if err != nil {
			p.logger.Warn("skipping corrupt control batch during replay", "offset", msg.Offset, "err", err)
			return
		}
		lso := p.lastStableOffsetLocked(msg.Offset)
		p.ppsm.CompleteTxn(payload.ProducerID, payload.Epoch, payload.Type == ControlAbort, msg.Offset, lso)
		return
	}
	rec, err := decodeDataRecordMeta(msg)
	if err != nil {
		return // plain message with no idempotence metadata attached
	}
	p.ppsm.ValidateAndUpdate(rec.ProducerID, rec.Epoch, rec.FirstSeq, rec.LastSeq, msg.Offset, msg.Offset, rec.IsTxn)
}

// dataRecordMeta rides along in a message's headers so replay can recover
// the (pid, epoch, seq) triple that produced it without a second data model.
type dataRecordMeta struct {
	ProducerID int64
	Epoch      int16
	FirstSeq   int32
	LastSeq    int32
	IsTxn      bool
}

func decodeDataRecordMeta(msg *storage.Message) (dataRecordMeta, error) {
	pidStr, ok := msg.Headers["txn-pid"]
	if !ok {
		return dataRecordMeta{}, fmt.Errorf("no producer metadata")
	}
	var meta dataRecordMeta
	if _, err := fmt.Sscanf(pidStr, "%d", &meta.ProducerID); err != nil {
		return dataRecordMeta{}, err
	}
	fmt.Sscanf(msg.Headers["txn-epoch"], "%d", &meta.Epoch)
	fmt.Sscanf(msg.Headers["txn-first-seq"], "%d", &meta.FirstSeq)
	fmt.Sscanf(msg.Headers["txn-last-seq"], "%d", &meta.LastSeq)
	meta.IsTxn = msg.Headers["txn-is-txn"] == "1"
	return meta, nil
}

// Append implements spec §4.2's append(batch).
func (p *PartitionLog) Append(batch AppendBatch) (*AppendResult, error) {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()
	if state == StateUninitialised || state == StateRecovering {
		return nil, ErrPartitionNotReady
	}
	if state == StateUnloaded {
		return nil, ErrPartitionUnloaded
	}

	// The log assigns offsets sequentially, so the batch will occupy
	// [NextOffset, NextOffset+numRecords-1]. PPSM validates against those
	// offsets first; a rejected batch is never written to the log.
	numRecords := int64(len(batch.Records))
	if numRecords == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	firstOffset := p.log.NextOffset()
	lastOffset := firstOffset + numRecords - 1

	info, err := p.ppsm.ValidateAndUpdate(batch.ProducerID, batch.Epoch, batch.FirstSeq, batch.LastSeq, firstOffset, lastOffset, batch.IsTxn)
	if info == nil {
		return nil, err
	}
	result := &AppendResult{FirstOffset: info.FirstOffset, LastOffset: info.LastOffset, Outcome: info.Outcome}
	if err != nil {
		return result, err
	}

	for _, val := range batch.Records {
		msg := storage.NewMessageWithHeaders(batch.Key, val, map[string]string{
			"txn-pid":       fmt.Sprintf("%d", batch.ProducerID),
			"txn-epoch":     fmt.Sprintf("%d", batch.Epoch),
			"txn-first-seq": fmt.Sprintf("%d", batch.FirstSeq),
			"txn-last-seq":  fmt.Sprintf("%d", batch.LastSeq),
			"txn-is-txn":    boolHeader(batch.IsTxn),
		})
		if _, err := p.log.Append(msg); err != nil {
			return nil, fmt.Errorf("append to log: %w", err)
		}
	}
	return result, nil
}

func boolHeader(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// lastStableOffsetLocked computes LSO as of a given high watermark, per
// spec §6: min(highWatermark, min over open txns of firstOffset).
func (p *PartitionLog) lastStableOffsetLocked(highWatermark int64) int64 {
	firstOpen := p.ppsm.FirstOpenTxnOffset()
	if firstOpen == -1 {
		return highWatermark
	}
	if firstOpen < highWatermark {
		return firstOpen
	}
	return highWatermark
}

// LastStableOffset is the public accessor mirroring lastStableOffsetLocked
// against the partition's current high watermark.
func (p *PartitionLog) LastStableOffset() int64 {
	hw := p.log.NextOffset()
	return p.lastStableOffsetLocked(hw)
}

// Fetch implements spec §4.2's fetch(offset, maxBytes, isolation).
func (p *PartitionLog) Fetch(offset int64, maxMessages int, isolation IsolationLevel) (*FetchResult, error) {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()
	if state != StateReady {
		return nil, ErrPartitionNotReady
	}

	msgs, err := p.log.ReadFrom(offset, maxMessages)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	hw := p.log.NextOffset()
	result := &FetchResult{
		Messages:      msgs,
		HighWatermark: hw,
	}

	if isolation == ReadCommitted {
		result.LastStableOffset = p.lastStableOffsetLocked(hw)
		if len(msgs) > 0 {
			result.AbortedTxns = p.ppsm.AbortedTxnsOverlapping(msgs[0].Offset, msgs[len(msgs)-1].Offset)
		}
	} else {
		result.LastStableOffset = hw
	}
	return result, nil
}

// CompleteTxn implements spec §4.2's completeTxn(pid, epoch, controlType):
// appends a control batch marker and applies it to the PPSM.
func (p *PartitionLog) CompleteTxn(pid int64, epoch int16, controlType ControlType, coordinatorEpoch int32) (*CompletedTxn, error) {
	p.mu.RLock()
	state := p.state
	p.mu.RUnlock()
	if state != StateReady {
		return nil, ErrPartitionNotReady
	}

	payload := encodeControlBatch(controlBatchPayload{
		Version:          1,
		Type:             controlType,
		ProducerID:       pid,
		Epoch:            epoch,
		CoordinatorEpoch: coordinatorEpoch,
	})
	msg := storage.NewMessage(nil, payload)
	msg.SetControlBatch(true)

	markerOffset, err := p.log.Append(msg)
	if err != nil {
		return nil, fmt.Errorf("append control batch: %w", err)
	}

	lso := p.lastStableOffsetLocked(p.log.NextOffset())
	return p.ppsm.CompleteTxn(pid, epoch, controlType == ControlAbort, markerOffset, lso)
}

// WriteAdminAbortMarker writes an abort marker without touching coordinator
// state at all — spec §9's second Open Question, preserved as the disjoint
// admin-plane behavior the original source has.
func (p *PartitionLog) WriteAdminAbortMarker(pid int64, epoch int16, coordinatorEpoch int32) (*CompletedTxn, error) {
	return p.CompleteTxn(pid, epoch, ControlAbort, coordinatorEpoch)
}

// TakeProducerSnapshot implements spec §4.2's takeProducerSnapshot().
func (p *PartitionLog) TakeProducerSnapshot() (ProducerStateSnapshot, error) {
	offset := p.log.NextOffset() - 1
	snap := p.ppsm.Snapshot(offset)
	if err := p.snapshots.Publish(p.id, snap); err != nil {
		return snap, fmt.Errorf("publish snapshot: %w", err)
	}
	return snap, nil
}

// FetchOldestAvailableIndexFromTopic implements spec §4.2.
func (p *PartitionLog) FetchOldestAvailableIndexFromTopic() int64 {
	return p.log.EarliestOffset()
}

// ForcePurgeAbortTx implements spec §4.2's forcePurgeAbortTx(): purges
// aborted-tx entries whose lastOffset precedes the oldest available offset.
// Called from the same single-writer mailbox as Append/CompleteTxn, so it
// never races a concurrent read at the purge boundary (spec §9's third Open
// Question — resolved by serialization, as the spec itself suggests).
func (p *PartitionLog) ForcePurgeAbortTx() int {
	oldest := p.FetchOldestAvailableIndexFromTopic()
	if oldest < 0 {
		return 0
	}
	purged := p.ppsm.PurgeAbortedBefore(oldest)
	p.mu.Lock()
	p.lastPurgedOffset = oldest
	p.mu.Unlock()
	return purged
}

// UpdatePurgeAbortedTxnsOffset recomputes and applies the purge threshold —
// the periodic-sweep counterpart to ForcePurgeAbortTx's explicit call.
func (p *PartitionLog) UpdatePurgeAbortedTxnsOffset() int {
	return p.ForcePurgeAbortTx()
}

// IsUnloaded implements spec §4.2's isUnloaded().
func (p *PartitionLog) IsUnloaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state == StateUnloaded
}

// Unload transitions the partition to UNLOADED, rejecting further appends
// until it is reloaded (spec §4.2 state machine).
func (p *PartitionLog) Unload() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateUnloaded {
		return nil
	}
	p.state = StateUnloaded
	return p.log.Close()
}

func (p *PartitionLog) Topic() string { return p.topic }
func (p *PartitionLog) ID() int       { return p.id }
func (p *PartitionLog) Dir() string   { return p.dir }
func (p *PartitionLog) TopicUUID() string { return p.topicUUID }
func (p *PartitionLog) Log() *storage.Log { return p.log }
func (p *PartitionLog) State() PartitionLogState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}
func (p *PartitionLog) ProducerState() *ProducerStateManager { return p.ppsm }

// Close closes the underlying log.
func (p *PartitionLog) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateUnloaded {
		return nil
	}
	p.state = StateUnloaded
	return p.log.Close()
}

// snapshotTakerLoop is the background ticker described in spec §4.1's
// "Snapshot cadence" and §6's producerStateTopicSnapshotIntervalSeconds
// (0 disables it), mirroring goqueue's snapshotTaker pattern.
func (p *PartitionLog) snapshotTakerLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.State() != StateReady {
				continue
			}
			if _, err := p.TakeProducerSnapshot(); err != nil {
				p.logger.Warn("periodic snapshot failed", "topic", p.topic, "partition", p.id, "err", err)
			}
		}
	}
}

// purgeLoop is the background sweep described in spec §6's
// purgeAbortedTxnIntervalSeconds (0 disables it).
func (p *PartitionLog) purgeLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.State() != StateReady {
				continue
			}
			p.UpdatePurgeAbortedTxnsOffset()
		}
	}
}
