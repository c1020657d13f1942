// =============================================================================
// TRANSACTION COORDINATOR - THE BRAIN OF TRANSACTIONAL OPERATIONS
// =============================================================================
//
// WHAT IS A TRANSACTION COORDINATOR?
// The transaction coordinator manages the lifecycle of transactions:
//   - Assigns producer IDs and manages epochs (zombie fencing)
//   - Tracks transaction state (Empty → Ongoing → PrepareCommit → Complete)
//   - Writes transaction markers to partitions (COMMIT/ABORT)
//   - Handles timeouts and producer heartbeats
//   - Ensures atomicity across multiple topics/partitions
//
// WHY DO WE NEED A COORDINATOR?
// Without coordination, multi-partition writes could partially succeed:
//
//   WITHOUT COORDINATOR:
//   ┌──────────┐   write to   ┌────────────┐
//   │ Producer │─────────────►│ Partition 0│  ✓ Success
//   └──────────┘              └────────────┘
//        │
//        │     write to   ┌────────────┐
//        └───────────────►│ Partition 1│  ✗ Failure
//                         └────────────┘
//
//   Result: PARTIAL WRITE (data inconsistency)
//
//   WITH COORDINATOR:
//   ┌──────────┐   begin     ┌─────────────┐
//   │ Producer │────────────►│ Coordinator │
//   └──────────┘             └──────┬──────┘
//        │                          │
//        │ write (in txn)           │ track partitions
//        ▼                          ▼
//   ┌────────────┐           ┌────────────┐
//   │ Partition 0│◄──────────│ Partition 1│
//   │ (buffered) │           │ (buffered) │
//   └────────────┘           └────────────┘
//        │                          │
//        │ commit                   │
//        └──────────┬───────────────┘
//                   ▼
//            ┌──────────────┐
//            │ Write COMMIT │  (atomic marker to ALL partitions)
//            │   markers    │
//            └──────────────┘
//
//   Result: ALL-OR-NOTHING (atomic)
//
// COMPARISON WITH OTHER SYSTEMS:
//
//   ┌─────────────┬────────────────────────────────────────────────────────────┐
//   │ System      │ Transaction Coordination                                   │
//   ├─────────────┼────────────────────────────────────────────────────────────┤
//   │ Kafka       │ Transaction Coordinator (one per broker, partitioned)      │
//   │             │ - Owns specific transactional.id ranges                    │
//   │             │ - Uses __transaction_state topic                           │
//   │             │ - Two-phase commit: Prepare → Commit                       │
//   │             │ - PID assignment with epoch for zombie fencing             │
//   ├─────────────┼────────────────────────────────────────────────────────────┤
//   │ PostgreSQL  │ Transaction Manager                                        │
//   │             │ - MVCC with transaction IDs (xid)                          │
//   │             │ - WAL for durability                                       │
//   │             │ - Snapshot isolation                                       │
//   ├─────────────┼────────────────────────────────────────────────────────────┤
//   │ MySQL       │ InnoDB Transaction Manager                                 │
//   │             │ - Redo log + Undo log                                      │
//   │             │ - Two-phase commit for distributed                         │
//   ├─────────────┼────────────────────────────────────────────────────────────┤
//   │ goqueue     │ Single Transaction Coordinator                             │
//   │             │ - File-based state persistence                             │
//   │             │ - Heartbeat + timeout for liveness                         │
//   │             │ - Control records (COMMIT/ABORT) in data log               │
//   │             │ - LSO (Last Stable Offset) for read_committed              │
//   └─────────────┴────────────────────────────────────────────────────────────┘
//
// TRANSACTION FLOW:
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │                    TRANSACTIONAL PUBLISH FLOW                           │
//   │                                                                         │
//   │  1. InitProducerID(transactional.id)                                    │
//   │     └─► Coordinator assigns/returns (PID, epoch)                        │
//   │                                                                         │
//   │  2. beginTransaction() is a client-side no-op (no coordinator RPC)      │
//   │                                                                         │
//   │  3. AddPartitionToTransaction/Publish(topic, key, value)  [repeated]    │
//   │     └─► First call: Coordinator: state = Ongoing, start timeout timer   │
//   │     └─► Write to partition log (marked as transactional)                │
//   │     └─► Coordinator: track partition as pending                         │
//   │                                                                         │
//   │  4a. CommitTransaction()                                                │
//   │      └─► Coordinator: state = PrepareCommit                             │
//   │      └─► Write COMMIT marker to ALL pending partitions                  │
//   │      └─► Coordinator: state = CompleteCommit                            │
//   │      └─► Clear pending partitions                                       │
//   │                                                                         │
//   │  4b. AbortTransaction() (or timeout)                                    │
//   │      └─► Coordinator: state = PrepareAbort                              │
//   │      └─► Write ABORT marker to ALL pending partitions                   │
//   │      └─► Coordinator: state = CompleteAbort                             │
//   │      └─► Clear pending partitions                                       │
//   │                                                                         │
//   └─────────────────────────────────────────────────────────────────────────┘
//
// HEARTBEAT + TIMEOUT:
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │                    LIVENESS DETECTION                                   │
//   │                                                                         │
//   │  Producer ────heartbeat────► Coordinator                                │
//   │     │          (3s interval)      │                                     │
//   │     │                             │ update LastHeartbeat                │
//   │     │                             │                                     │
//   │     │  ← ← ← ← ← ← ← ← ← ← ← ←    │ check every 1s:                     │
//   │     │        (response)           │ if now - TxnStart > timeout:        │
//   │     │                             │   → ABORT transaction               │
//   │     │                             │ if now - LastHeartbeat > 30s:       │
//   │     │                             │   → mark transaction for abort      │
//   │                                                                         │
//   │  WHY BOTH?                                                              │
//   │  - Heartbeat: Detect dead producers quickly (within seconds)            │
//   │  - Timeout: Hard limit on transaction duration (prevent stuck txns)     │
//   │  - Together: Fast detection AND guaranteed progress                     │
//   │                                                                         │
//   └─────────────────────────────────────────────────────────────────────────┘
//
// CONTROL RECORDS:
//
//   Regular messages and control records share the same log:
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │  Partition Log:                                                         │
//   │                                                                         │
//   │  offset=0: [DATA]     msg1 (key=A, value=...)                           │
//   │  offset=1: [DATA]     msg2 (key=B, value=...)  ─┐                       │
//   │  offset=2: [DATA]     msg3 (key=C, value=...)   │ Transaction T1        │
//   │  offset=3: [CONTROL]  COMMIT T1 (PID=1)        ─┘                       │
//   │  offset=4: [DATA]     msg4 (key=D, value=...)  ─┐                       │
//   │  offset=5: [DATA]     msg5 (key=E, value=...)   │ Transaction T2        │
//   │  offset=6: [CONTROL]  ABORT T2 (PID=2)         ─┘ (aborted)             │
//   │  offset=7: [DATA]     msg6 (key=F, value=...)  ← non-transactional      │
//   │                                                                         │
//   │  Control Record Format:                                                 │
//   │    Flags byte: bit 3 = control batch (storage.FlagControlBatch)         │
//   │    Value: version, type (0 = COMMIT, 1 = ABORT), PID, epoch,           │
//   │           coordinator epoch (see encodeControlBatch)                    │
//   │                                                                         │
//   └─────────────────────────────────────────────────────────────────────────┘
//
// =============================================================================

package broker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// =============================================================================
// ERROR DEFINITIONS
// =============================================================================

// ErrTransactionNotFound and ErrCoordinatorClosed live in errors.go, the
// single taxonomy shared with PartitionLog and the producer state manager.
var (
	// ErrTransactionTimeout means the transaction exceeded its timeout
	ErrTransactionTimeout = errors.New("transaction timeout")

	// ErrTransactionAborted means the transaction was aborted
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrInvalidTransactionState means the operation is invalid in current state
	ErrInvalidTransactionState = errors.New("invalid transaction state for operation")

	// ErrNoTransactionInProgress means no transaction is active
	ErrNoTransactionInProgress = errors.New("no transaction in progress")
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// TransactionCoordinatorConfig holds configuration for the coordinator.
type TransactionCoordinatorConfig struct {
	// DataDir is the base directory for data storage
	DataDir string

	// TransactionTimeoutMs is the default transaction timeout
	// If a transaction doesn't commit/abort within this time, it's aborted
	TransactionTimeoutMs int64

	// HeartbeatIntervalMs is how often producers should send heartbeats
	HeartbeatIntervalMs int64

	// SessionTimeoutMs is how long without heartbeat before producer is considered dead
	SessionTimeoutMs int64

	// CheckIntervalMs is how often to check for timeouts
	CheckIntervalMs int64

	// SnapshotIntervalMs is how often to take state snapshots
	SnapshotIntervalMs int64

	// MaxTransactionsPerProducer limits concurrent transactions per producer
	// Usually 1, but could be higher for pipelining
	MaxTransactionsPerProducer int

	// OffsetsPartitionCount is the partition count SendOffsetsToTransaction
	// uses to map a consumer group to its __consumer_offsets partition.
	// Must match the broker's InternalTopicConfig.OffsetsPartitionCount.
	OffsetsPartitionCount int

	// LogLevel controls logging verbosity
	LogLevel slog.Level
}

// DefaultTransactionCoordinatorConfig returns sensible defaults.
//
// DEFAULTS RATIONALE:
//   - 60s transaction timeout: Matches Kafka, allows for slow consumers
//   - 3s heartbeat: Same as consumer groups, responsive but not chatty
//   - 30s session timeout: 10 heartbeats worth of margin
//   - 1s check interval: Quick detection, low overhead
func DefaultTransactionCoordinatorConfig(dataDir string) TransactionCoordinatorConfig {
	return TransactionCoordinatorConfig{
		DataDir:                    dataDir,
		TransactionTimeoutMs:       60000, // 60 seconds
		HeartbeatIntervalMs:        3000,  // 3 seconds
		SessionTimeoutMs:           30000, // 30 seconds
		CheckIntervalMs:            1000,  // 1 second
		SnapshotIntervalMs:         60000, // 1 minute
		MaxTransactionsPerProducer: 1,
		OffsetsPartitionCount:      DefaultOffsetsPartitionCount,
		LogLevel:                   slog.LevelInfo,
	}
}

// =============================================================================
// TRANSACTION METADATA
// =============================================================================

// TransactionMetadata holds metadata for an active transaction.
type TransactionMetadata struct {
	// TransactionID is the unique ID for this transaction
	TransactionID string

	// ProducerID is the producer's ID
	ProducerID int64

	// Epoch is the producer's current epoch
	Epoch int16

	// TransactionalID is the producer's transactional ID
	TransactionalID string

	// State is the current transaction state
	State TransactionState

	// StartTime is when the transaction started
	StartTime time.Time

	// LastUpdateTime is when the transaction was last modified
	LastUpdateTime time.Time

	// TimeoutMs is the timeout for this transaction
	TimeoutMs int64

	// Partitions are the topic-partitions in this transaction
	// Maps topic name to set of partition numbers
	Partitions map[string]map[int]struct{}
}

// NewTransactionMetadata creates a new transaction metadata.
func NewTransactionMetadata(txnID, transactionalID string, pid int64, epoch int16, timeoutMs int64) *TransactionMetadata {
	now := time.Now()
	return &TransactionMetadata{
		TransactionID:   txnID,
		ProducerID:      pid,
		Epoch:           epoch,
		TransactionalID: transactionalID,
		State:           TransactionStateOngoing,
		StartTime:       now,
		LastUpdateTime:  now,
		TimeoutMs:       timeoutMs,
		Partitions:      make(map[string]map[int]struct{}),
	}
}

// AddPartition adds a partition to the transaction.
func (t *TransactionMetadata) AddPartition(topic string, partition int) {
	if t.Partitions[topic] == nil {
		t.Partitions[topic] = make(map[int]struct{})
	}
	t.Partitions[topic][partition] = struct{}{}
	t.LastUpdateTime = time.Now()
}

// GetPartitionsList returns all partitions as a map of topic to partition slice.
func (t *TransactionMetadata) GetPartitionsList() map[string][]int {
	result := make(map[string][]int)
	for topic, partitions := range t.Partitions {
		parts := make([]int, 0, len(partitions))
		for p := range partitions {
			parts = append(parts, p)
		}
		result[topic] = parts
	}
	return result
}

// IsTimedOut returns true if the transaction has exceeded its timeout.
func (t *TransactionMetadata) IsTimedOut() bool {
	return time.Since(t.StartTime) > time.Duration(t.TimeoutMs)*time.Millisecond
}

// =============================================================================
// BROKER INTERFACE
// =============================================================================

// TransactionBroker is the interface the coordinator uses to interact with the broker.
// This allows for easier testing by mocking the broker.
//
// WriteControlRecord is the only state-mutating hook: it must resolve to a
// call on the target PartitionLog.CompleteTxn, which appends the control
// batch AND updates that partition's ProducerStateManager/AbortedIndex in
// the same call. There is no separate "clear uncommitted offsets"
// step here anymore — read_committed visibility (LSO, aborted-range
// filtering) is entirely owned by the partition, not tracked a second time
// at the coordinator.
type TransactionBroker interface {
	// WriteControlRecord writes a commit/abort control record to a partition.
	WriteControlRecord(topic string, partition int, isCommit bool, pid int64, epoch int16, txnID string) error

	// GetTopic returns a topic by name (for validation).
	GetTopic(name string) (*Topic, error)
}

// =============================================================================
// STATE SHARDING
// =============================================================================

// transactionCoordinatorShardCount is the number of independent, single-writer
// shards the coordinator partitions its in-memory transaction table into.
// Spec: "The TransactionCoordinator partitions its state by txnId hash across
// shards; each shard is single-writer." Unrelated transactionalIDs usually
// land in different shards; two IDs that hash to the same shard share its
// mutex.
const transactionCoordinatorShardCount = 16

// txnShard is one single-writer partition of the coordinator's transaction
// table, keyed by transactionID (not transactionalID — a transactionalID
// only ever has one live transactionID at a time, but recovery and timeout
// scans need O(1) lookup by transactionID too).
type txnShard struct {
	mu   sync.RWMutex
	byID map[string]*TransactionMetadata
}

func newTxnShards() [transactionCoordinatorShardCount]*txnShard {
	var shards [transactionCoordinatorShardCount]*txnShard
	for i := range shards {
		shards[i] = &txnShard{byID: make(map[string]*TransactionMetadata)}
	}
	return shards
}

// shardIndexFor hashes a transactionalID to its owning shard, mirroring how
// Kafka assigns a transactional.id to a __transaction_state partition.
func shardIndexFor(transactionalID string) int {
	return int(xxhash.Sum64String(transactionalID) % transactionCoordinatorShardCount)
}

// =============================================================================
// TRANSACTION COORDINATOR
// =============================================================================

// TransactionCoordinator manages the lifecycle of transactions.
//
// THREAD SAFETY:
//
//	All public methods are thread-safe.
//
// RESPONSIBILITIES:
//  1. Producer ID assignment and epoch management
//  2. Transaction lifecycle (begin, commit, abort)
//  3. Timeout and heartbeat monitoring
//  4. Writing control records to partitions
//  5. Persistence via transaction log
type TransactionCoordinator struct {
	// config holds coordinator configuration
	config TransactionCoordinatorConfig

	// producerManager manages producer state (PIDs, epochs, sequences)
	producerManager *IdempotentProducerManager

	// transactionLog provides persistent storage
	transactionLog *TransactionLog

	// shards partition the active-transaction table by transactionalID hash.
	// Only tracks active transactions (not completed).
	shards [transactionCoordinatorShardCount]*txnShard

	// broker is the interface for writing control records
	broker TransactionBroker

	// logger for coordinator operations
	logger *slog.Logger

	// ctx and cancel for background goroutines
	ctx    context.Context
	cancel context.CancelFunc

	// wg for waiting on background goroutines
	wg sync.WaitGroup

	// closed indicates if the coordinator is shut down
	closed  bool
	closeMu sync.RWMutex
}

// NewTransactionCoordinator creates and starts a new transaction coordinator.
func NewTransactionCoordinator(config TransactionCoordinatorConfig, broker TransactionBroker) (*TransactionCoordinator, error) {
	// Create logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel,
	}))

	// Create producer manager
	producerConfig := DefaultIdempotentProducerManagerConfig()
	producerConfig.DefaultTransactionTimeoutMs = config.TransactionTimeoutMs
	producerManager := NewIdempotentProducerManager(producerConfig)

	// Create transaction log
	logConfig := DefaultTransactionLogConfig(config.DataDir)
	transactionLog, err := NewTransactionLog(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	tc := &TransactionCoordinator{
		config:          config,
		producerManager: producerManager,
		transactionLog:  transactionLog,
		shards:          newTxnShards(),
		broker:          broker,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
	}

	// Recover state from persistent storage
	if err := tc.recover(); err != nil {
		cancel()
		transactionLog.Close()
		return nil, fmt.Errorf("failed to recover transaction state: %w", err)
	}

	// Start background goroutines
	tc.wg.Add(2)
	go tc.timeoutChecker()
	go tc.snapshotTaker()

	logger.Info("transaction coordinator started",
		"transactionTimeout", config.TransactionTimeoutMs,
		"heartbeatInterval", config.HeartbeatIntervalMs,
		"sessionTimeout", config.SessionTimeoutMs)

	return tc, nil
}

// =============================================================================
// PRODUCER LIFECYCLE
// =============================================================================

// InitProducerID initializes or retrieves the producer ID for a transactional ID.
//
// FLOW:
//  1. Look up existing transactional ID or create new
//  2. Increment epoch (fence old producer)
//  3. Abort any pending transaction from old epoch
//  4. Return (PID, epoch) for producer to use
//
// PARAMETERS:
//   - transactionalID: Client-provided stable identifier
//   - transactionTimeoutMs: Timeout for transactions (0 = use default)
//
// RETURNS:
//   - ProducerIDAndEpoch: The identity to use
//   - error: If initialization fails
func (tc *TransactionCoordinator) InitProducerID(transactionalID string, transactionTimeoutMs int64) (ProducerIDAndEpoch, error) {
	tc.closeMu.RLock()
	if tc.closed {
		tc.closeMu.RUnlock()
		return ProducerIDAndEpoch{}, ErrCoordinatorClosed
	}
	tc.closeMu.RUnlock()

	// Use default timeout if not specified
	if transactionTimeoutMs <= 0 {
		transactionTimeoutMs = tc.config.TransactionTimeoutMs
	}

	// Get old state to check for pending transactions
	oldState := tc.producerManager.GetTransactionalState(transactionalID)

	// Initialize producer ID (this increments epoch for existing producers)
	pid, err := tc.producerManager.InitProducerID(transactionalID, transactionTimeoutMs)
	if err != nil {
		return ProducerIDAndEpoch{}, err
	}

	// If there was a pending transaction from old epoch, abort it
	if oldState != nil && oldState.State == TransactionStateOngoing {
		shard := tc.shards[shardIndexFor(transactionalID)]
		shard.mu.Lock()
		if txn, exists := shard.byID[oldState.CurrentTransactionID]; exists {
			// Mark old transaction for abort (will be processed by timeout checker)
			txn.State = TransactionStatePrepareAbort
			tc.logger.Info("aborting pending transaction from old epoch",
				"transactionalID", transactionalID,
				"oldEpoch", oldState.ProducerIDAndEpoch.Epoch,
				"newEpoch", pid.Epoch,
				"transactionID", oldState.CurrentTransactionID)
		}
		shard.mu.Unlock()
	}

	// Write to transaction log
	if err := tc.transactionLog.WriteInitProducer(transactionalID, pid.ProducerID, pid.Epoch, transactionTimeoutMs); err != nil {
		tc.logger.Error("failed to write init_producer to log",
			"error", err,
			"transactionalID", transactionalID)
		// Non-fatal: state is in memory, will be persisted on snapshot
	}

	tc.logger.Info("producer initialized",
		"transactionalID", transactionalID,
		"producerID", pid.ProducerID,
		"epoch", pid.Epoch)

	return pid, nil
}

// Heartbeat updates the heartbeat timestamp for a producer.
//
// Producers should call this periodically (every HeartbeatIntervalMs).
// If no heartbeat is received within SessionTimeoutMs, the producer
// is considered dead and any active transaction is aborted.
func (tc *TransactionCoordinator) Heartbeat(transactionalID string, pid ProducerIDAndEpoch) error {
	tc.closeMu.RLock()
	if tc.closed {
		tc.closeMu.RUnlock()
		return ErrCoordinatorClosed
	}
	tc.closeMu.RUnlock()

	// Validate epoch
	if err := tc.producerManager.ValidateProducerEpoch(transactionalID, pid); err != nil {
		return err
	}

	// Update heartbeat
	if err := tc.producerManager.UpdateHeartbeat(transactionalID, pid); err != nil {
		return err
	}

	// Write to log (optional, useful for debugging)
	// tc.transactionLog.WriteHeartbeat(transactionalID, pid.ProducerID, pid.Epoch)

	return nil
}

// =============================================================================
// TRANSACTION LIFECYCLE
// =============================================================================

// beginOrContinueTransaction implicitly starts a new transaction when the
// producer is Empty, or returns the already in-flight transaction when
// Ongoing. There is no explicit BeginTransaction RPC: per spec.md §4.3 and
// the source's testNotFencedWithBeginTransaction, beginTransaction is a
// pure client-side no-op and the ONGOING transition happens on the first
// AddPartitionsToTxn/SendOffsetsToTxn.
func (tc *TransactionCoordinator) beginOrContinueTransaction(transactionalID string, pid ProducerIDAndEpoch) (string, error) {
	state := tc.producerManager.GetTransactionalState(transactionalID)
	if state == nil {
		return "", ErrUnknownProducerID
	}

	if state.State == TransactionStateOngoing {
		return state.CurrentTransactionID, nil
	}
	if state.State != TransactionStateEmpty {
		return "", ErrInvalidTransactionState
	}

	// METRICS: Track transaction start time for latency measurement
	txnStartTime := InstrumentTransactionStarted()

	txnID := generateTransactionID()

	if err := tc.producerManager.SetTransactionState(transactionalID, TransactionStateOngoing); err != nil {
		return "", err
	}
	if err := tc.producerManager.SetCurrentTransactionID(transactionalID, txnID); err != nil {
		return "", err
	}
	if err := tc.producerManager.SetTransactionStartTime(transactionalID, time.Now()); err != nil {
		return "", err
	}

	txnMeta := NewTransactionMetadata(txnID, transactionalID, pid.ProducerID, pid.Epoch, state.TransactionTimeoutMs)
	txnMeta.StartTime = txnStartTime

	shard := tc.shards[shardIndexFor(transactionalID)]
	shard.mu.Lock()
	shard.byID[txnID] = txnMeta
	shard.mu.Unlock()

	if err := tc.transactionLog.WriteBeginTxn(transactionalID, txnID, pid.ProducerID, pid.Epoch); err != nil {
		tc.logger.Error("failed to write begin_txn to log",
			"error", err,
			"transactionalID", transactionalID,
			"transactionID", txnID)
	}

	tc.logger.Info("transaction started implicitly",
		"transactionalID", transactionalID,
		"transactionID", txnID,
		"producerID", pid.ProducerID,
		"epoch", pid.Epoch)

	return txnID, nil
}

// AddPartitionToTransaction records that a partition has been written to.
//
// This is called when publishing a message as part of a transaction.
// The coordinator tracks all partitions so it knows where to write
// control records on commit/abort. It implicitly begins the transaction
// if the producer is currently Empty.
//
// PARAMETERS:
//   - transactionalID: The producer's transactional ID
//   - pid: The producer's identity
//   - topic: The topic being written to
//   - partition: The partition being written to
func (tc *TransactionCoordinator) AddPartitionToTransaction(transactionalID string, pid ProducerIDAndEpoch, topic string, partition int) error {
	tc.closeMu.RLock()
	if tc.closed {
		tc.closeMu.RUnlock()
		return ErrCoordinatorClosed
	}
	tc.closeMu.RUnlock()

	// Validate producer
	if err := tc.producerManager.ValidateProducerEpoch(transactionalID, pid); err != nil {
		return err
	}

	txnID, err := tc.beginOrContinueTransaction(transactionalID, pid)
	if err != nil {
		return err
	}

	// Add partition to producer manager
	if err := tc.producerManager.AddPendingPartition(transactionalID, topic, partition); err != nil {
		return err
	}

	// Update transaction metadata
	shard := tc.shards[shardIndexFor(transactionalID)]
	shard.mu.Lock()
	if txn, exists := shard.byID[txnID]; exists {
		txn.AddPartition(topic, partition)
	}
	shard.mu.Unlock()

	// Write to transaction log
	if err := tc.transactionLog.WriteAddPartition(transactionalID, topic, partition); err != nil {
		tc.logger.Error("failed to write add_partition to log",
			"error", err,
			"transactionalID", transactionalID,
			"topic", topic,
			"partition", partition)
	}

	return nil
}

// SendOffsetsToTransaction treats the consumer-offsets-topic partition that
// owns groupID as a participant in the transaction, exactly like a data
// partition added via AddPartitionToTransaction. Consumer group membership
// and rebalancing are out of scope (spec.md §1); this is only the narrow
// slice sendOffsetsToTxn needs: fencing the offsets partition into the same
// commit/abort as the rest of the transaction.
func (tc *TransactionCoordinator) SendOffsetsToTransaction(transactionalID string, pid ProducerIDAndEpoch, groupID string) error {
	partition := GroupToPartition(groupID, tc.config.OffsetsPartitionCount)
	return tc.AddPartitionToTransaction(transactionalID, pid, ConsumerOffsetsTopicName, partition)
}

// CommitTransaction commits the current transaction.
//
// FLOW:
//  1. Validate producer and transaction state
//  2. Transition to PrepareCommit state
//  3. Write COMMIT control record to all partitions
//  4. Transition to CompleteCommit state
//  5. Clean up transaction metadata
//
// ATOMICITY:
//
//	If this method returns nil, the transaction is committed.
//	If it returns an error, the transaction may need to be retried or aborted.
func (tc *TransactionCoordinator) CommitTransaction(transactionalID string, pid ProducerIDAndEpoch) error {
	tc.closeMu.RLock()
	if tc.closed {
		tc.closeMu.RUnlock()
		return ErrCoordinatorClosed
	}
	tc.closeMu.RUnlock()

	// Validate producer
	if err := tc.producerManager.ValidateProducerEpoch(transactionalID, pid); err != nil {
		return err
	}

	// Get current state
	state := tc.producerManager.GetTransactionalState(transactionalID)
	if state == nil {
		return ErrUnknownProducerID
	}
	if state.State != TransactionStateOngoing {
		return fmt.Errorf("%w: expected Ongoing, got %s", ErrInvalidTransactionState, state.State)
	}

	txnID := state.CurrentTransactionID

	// Transition to PrepareCommit
	if err := tc.producerManager.SetTransactionState(transactionalID, TransactionStatePrepareCommit); err != nil {
		return err
	}

	shard := tc.shards[shardIndexFor(transactionalID)]
	shard.mu.Lock()
	txn := shard.byID[txnID]
	if txn != nil {
		txn.State = TransactionStatePrepareCommit
	}
	shard.mu.Unlock()

	// Get partitions to write markers to
	partitions := tc.producerManager.GetPendingPartitions(transactionalID)
	partitionsList := make(map[string][]int)
	for topic, parts := range partitions {
		partitionsList[topic] = make([]int, 0, len(parts))
		for p := range parts {
			partitionsList[topic] = append(partitionsList[topic], p)
		}
	}

	// Write to transaction log (prepare phase)
	if err := tc.transactionLog.WritePrepareCommit(transactionalID, partitionsList); err != nil {
		tc.logger.Error("failed to write prepare_commit to log",
			"error", err,
			"transactionalID", transactionalID)
	}

	tc.logger.Info("preparing transaction commit",
		"transactionalID", transactionalID,
		"transactionID", txnID,
		"partitions", partitionsList)

	// Write COMMIT markers to all partitions
	if err := tc.writeControlRecords(transactionalID, pid, partitions, true); err != nil {
		// Failed to write some markers - transaction is in inconsistent state
		// Mark for abort and trigger immediate abort attempt
		tc.producerManager.SetTransactionState(transactionalID, TransactionStatePrepareAbort)

		// Attempt to abort with retry
		tc.logger.Warn("commit failed, attempting abort",
			"transactionalID", transactionalID,
			"transactionID", txnID,
			"error", err)

		// Try to abort - if this fails, the timeout checker will retry
		if abortErr := tc.abortTransactionWithRetry(transactionalID, txnID, pid); abortErr != nil {
			tc.logger.Error("immediate abort also failed, will be retried by timeout checker",
				"transactionalID", transactionalID,
				"error", abortErr)
		}

		return fmt.Errorf("failed to write commit markers, transaction aborted: %w", err)
	}

	// Transition to CompleteCommit
	if err := tc.producerManager.SetTransactionState(transactionalID, TransactionStateCompleteCommit); err != nil {
		return err
	}

	// Clean up
	tc.completeTransaction(transactionalID, txnID, true)

	// Write to transaction log (complete phase)
	if err := tc.transactionLog.WriteCompleteCommit(transactionalID, true, ""); err != nil {
		tc.logger.Error("failed to write complete_commit to log",
			"error", err,
			"transactionalID", transactionalID)
	}

	// METRICS: Record successful transaction commit with latency
	shard.mu.RLock()
	if txn != nil && !txn.StartTime.IsZero() {
		InstrumentTransactionCommitted(txn.StartTime)
	}
	shard.mu.RUnlock()

	tc.logger.Info("transaction committed",
		"transactionalID", transactionalID,
		"transactionID", txnID)

	return nil
}

// AbortTransaction aborts the current transaction.
//
// FLOW:
//  1. Validate producer and transaction state
//  2. Transition to PrepareAbort state
//  3. Write ABORT control record to all partitions
//  4. Transition to CompleteAbort state
//  5. Clean up transaction metadata
//
// This can be called explicitly by the producer or automatically on timeout.
func (tc *TransactionCoordinator) AbortTransaction(transactionalID string, pid ProducerIDAndEpoch) error {
	tc.closeMu.RLock()
	if tc.closed {
		tc.closeMu.RUnlock()
		return ErrCoordinatorClosed
	}
	tc.closeMu.RUnlock()

	// Validate producer
	if err := tc.producerManager.ValidateProducerEpoch(transactionalID, pid); err != nil {
		return err
	}

	// Get current state
	state := tc.producerManager.GetTransactionalState(transactionalID)
	if state == nil {
		return ErrUnknownProducerID
	}
	if state.State != TransactionStateOngoing && state.State != TransactionStatePrepareAbort {
		return fmt.Errorf("%w: expected Ongoing or PrepareAbort, got %s", ErrInvalidTransactionState, state.State)
	}

	return tc.abortTransactionInternal(transactionalID, state.CurrentTransactionID, pid)
}

// abortTransactionInternal is the internal abort logic.
func (tc *TransactionCoordinator) abortTransactionInternal(transactionalID, txnID string, pid ProducerIDAndEpoch) error {
	// Transition to PrepareAbort
	if err := tc.producerManager.SetTransactionState(transactionalID, TransactionStatePrepareAbort); err != nil {
		return err
	}

	shard := tc.shards[shardIndexFor(transactionalID)]
	shard.mu.Lock()
	txn := shard.byID[txnID]
	if txn != nil {
		txn.State = TransactionStatePrepareAbort
	}
	shard.mu.Unlock()

	// Get partitions
	partitions := tc.producerManager.GetPendingPartitions(transactionalID)
	partitionsList := make(map[string][]int)
	for topic, parts := range partitions {
		partitionsList[topic] = make([]int, 0, len(parts))
		for p := range parts {
			partitionsList[topic] = append(partitionsList[topic], p)
		}
	}

	// Write to transaction log (prepare phase)
	if err := tc.transactionLog.WritePrepareAbort(transactionalID, partitionsList); err != nil {
		tc.logger.Error("failed to write prepare_abort to log",
			"error", err,
			"transactionalID", transactionalID)
	}

	tc.logger.Info("preparing transaction abort",
		"transactionalID", transactionalID,
		"transactionID", txnID,
		"partitions", partitionsList)

	// Write ABORT markers to all partitions
	if err := tc.writeControlRecords(transactionalID, pid, partitions, false); err != nil {
		tc.logger.Error("failed to write some abort markers",
			"error", err,
			"transactionalID", transactionalID)
		// Continue anyway - consumers will treat unmarked messages as aborted
	}

	// Transition to CompleteAbort
	if err := tc.producerManager.SetTransactionState(transactionalID, TransactionStateCompleteAbort); err != nil {
		return err
	}

	// Clean up
	tc.completeTransaction(transactionalID, txnID, false)

	// Write to transaction log (complete phase)
	if err := tc.transactionLog.WriteCompleteAbort(transactionalID, true, ""); err != nil {
		tc.logger.Error("failed to write complete_abort to log",
			"error", err,
			"transactionalID", transactionalID)
	}

	// METRICS: Record transaction abort
	InstrumentTransactionAborted()

	tc.logger.Info("transaction aborted",
		"transactionalID", transactionalID,
		"transactionID", txnID)

	return nil
}

// =============================================================================
// CONTROL RECORD WRITING
// =============================================================================

// writeControlRecords writes commit/abort markers to all partitions in the transaction.
func (tc *TransactionCoordinator) writeControlRecords(transactionalID string, pid ProducerIDAndEpoch, partitions map[string]map[int]struct{}, isCommit bool) error {
	var errs []error

	for topic, parts := range partitions {
		for partition := range parts {
			if err := tc.broker.WriteControlRecord(topic, partition, isCommit, pid.ProducerID, pid.Epoch, transactionalID); err != nil {
				errs = append(errs, fmt.Errorf("partition %s-%d: %w", topic, partition, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("failed to write %d control records: %v", len(errs), errs)
	}
	return nil
}

// abortTransactionWithRetry attempts to abort a transaction with retry logic.
//
// This is called when a commit fails and we need to abort. It attempts the abort
// multiple times before giving up. If all retries fail, the timeout checker
// will eventually process the PrepareAbort state.
//
// RETRY STRATEGY:
//   - 3 attempts with exponential backoff (100ms before the 2nd, 200ms before the 3rd)
//   - Logs each failure but doesn't block indefinitely
//   - On total failure, relies on timeout checker for eventual cleanup
//
// GOROUTINE LEAK FIX:
// Uses time.NewTimer instead of time.After to avoid goroutine leaks when
// context is cancelled during backoff wait.
func (tc *TransactionCoordinator) abortTransactionWithRetry(transactionalID, txnID string, pid ProducerIDAndEpoch) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	// Create reusable timer to avoid goroutine leaks
	timer := time.NewTimer(0)
	if !timer.Stop() {
		// Drain the channel if it already fired
		select {
		case <-timer.C:
		default:
		}
	}
	defer timer.Stop()

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			timer.Reset(delay)
			select {
			case <-tc.ctx.Done():
				return tc.ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = tc.abortTransactionInternal(transactionalID, txnID, pid)
		if lastErr == nil {
			if attempt > 0 {
				tc.logger.Info("abort succeeded after retry",
					"transactionalID", transactionalID,
					"attempt", attempt+1)
			}
			return nil
		}

		tc.logger.Warn("abort attempt failed",
			"transactionalID", transactionalID,
			"attempt", attempt+1,
			"maxRetries", maxRetries,
			"error", lastErr)
	}

	return fmt.Errorf("abort failed after %d attempts: %w", maxRetries, lastErr)
}

// completeTransaction cleans up after a transaction completes.
//
// LSO / read_committed visibility is not tracked here: writeControlRecords
// already drove every pending partition's PartitionLog.CompleteTxn, which
// advances that partition's LastStableOffset and, on abort, records the
// range in its AbortedIndex in the same call. This just retires the
// in-memory bookkeeping the coordinator itself owns.
func (tc *TransactionCoordinator) completeTransaction(transactionalID, txnID string, committed bool) {
	// Clear pending partitions
	tc.producerManager.ClearPendingPartitions(transactionalID)

	// Reset transaction state to Empty
	tc.producerManager.SetTransactionState(transactionalID, TransactionStateEmpty)
	tc.producerManager.SetCurrentTransactionID(transactionalID, "")

	// Remove from active transactions
	shard := tc.shards[shardIndexFor(transactionalID)]
	shard.mu.Lock()
	delete(shard.byID, txnID)
	shard.mu.Unlock()
}

// Sequence validation for idempotent produce is no longer done here — it
// belongs to ProducerStateManager.ValidateAndUpdate (producer_state.go),
// which runs per-partition inside PartitionLog.Append where the record
// actually lands.

// =============================================================================
// BACKGROUND TASKS
// =============================================================================

// timeoutChecker periodically checks for timed-out transactions and dead producers.
func (tc *TransactionCoordinator) timeoutChecker() {
	defer tc.wg.Done()

	ticker := time.NewTicker(time.Duration(tc.config.CheckIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-tc.ctx.Done():
			return
		case <-ticker.C:
			tc.checkTimeouts()
		}
	}
}

// checkTimeouts checks for timed-out transactions and sessions.
func (tc *TransactionCoordinator) checkTimeouts() {
	now := time.Now()
	sessionTimeout := time.Duration(tc.config.SessionTimeoutMs) * time.Millisecond

	var toAbort []*TransactionMetadata

	for _, shard := range tc.shards {
		shard.mu.Lock()
		for _, txn := range shard.byID {
			// Check transaction timeout
			if txn.State == TransactionStateOngoing && txn.IsTimedOut() {
				tc.logger.Warn("transaction timed out",
					"transactionID", txn.TransactionID,
					"transactionalID", txn.TransactionalID,
					"duration", time.Since(txn.StartTime))
				txn.State = TransactionStatePrepareAbort
				toAbort = append(toAbort, txn)
			}
		}
		shard.mu.Unlock()
	}

	// Abort timed-out transactions
	for _, txn := range toAbort {
		pid := ProducerIDAndEpoch{
			ProducerID: txn.ProducerID,
			Epoch:      txn.Epoch,
		}
		if err := tc.abortTransactionInternal(txn.TransactionalID, txn.TransactionID, pid); err != nil {
			tc.logger.Error("failed to abort timed-out transaction",
				"error", err,
				"transactionID", txn.TransactionID)
		}
	}

	// Check for dead producers (no heartbeat within session timeout)
	// and abort their transactions
	tc.producerManager.txnMu.Lock()
	for txnID, state := range tc.producerManager.transactionalIDs {
		if now.Sub(state.LastHeartbeat) > sessionTimeout {
			if state.State == TransactionStateOngoing {
				tc.logger.Warn("producer session expired, aborting transaction",
					"transactionalID", txnID,
					"lastHeartbeat", state.LastHeartbeat)

				// Find and abort the transaction
				shard := tc.shards[shardIndexFor(txnID)]
				shard.mu.Lock()
				if txn, exists := shard.byID[state.CurrentTransactionID]; exists {
					txn.State = TransactionStatePrepareAbort
				}
				shard.mu.Unlock()
			}
		}
	}
	tc.producerManager.txnMu.Unlock()
}

// snapshotTaker periodically takes state snapshots.
func (tc *TransactionCoordinator) snapshotTaker() {
	defer tc.wg.Done()

	ticker := time.NewTicker(time.Duration(tc.config.SnapshotIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-tc.ctx.Done():
			return
		case <-ticker.C:
			tc.takeSnapshot()
		}
	}
}

// takeSnapshot creates a snapshot of current state.
func (tc *TransactionCoordinator) takeSnapshot() {
	snapshot := tc.producerManager.TakeSnapshot()

	if err := tc.transactionLog.WriteSnapshot(snapshot); err != nil {
		tc.logger.Error("failed to write snapshot",
			"error", err)
	} else {
		tc.logger.Debug("snapshot written",
			"producers", len(snapshot.TransactionalIDs))
	}
}

// =============================================================================
// RECOVERY
// =============================================================================

// recover loads state from persistent storage.
func (tc *TransactionCoordinator) recover() error {
	// Load snapshot
	snapshot, err := tc.transactionLog.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if snapshot != nil {
		tc.logger.Info("loading snapshot",
			"timestamp", snapshot.Timestamp,
			"producers", len(snapshot.TransactionalIDs))

		if err := tc.producerManager.RestoreFromSnapshot(*snapshot); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
	}

	// Replay WAL
	count, err := tc.transactionLog.ReplayWAL(tc.replayRecord)
	if err != nil {
		return fmt.Errorf("failed to replay WAL: %w", err)
	}

	tc.logger.Info("WAL replayed",
		"records", count)

	// Recover any transactions that were in-progress
	tc.recoverInProgressTransactions()

	return nil
}

// replayRecord processes a single WAL record during recovery.
func (tc *TransactionCoordinator) replayRecord(record WALRecord) error {
	switch record.Type {
	case WALRecordInitProducer:
		data, err := ParseInitProducerData(record.Data)
		if err != nil {
			return err
		}
		// Re-initialize producer: this repeats the epoch bump the original
		// call made, on top of the state restored from the snapshot
		_, _ = tc.producerManager.InitProducerID(data.TransactionalID, data.TransactionTimeoutMs)

	case WALRecordBeginTxn:
		data, err := ParseBeginTxnData(record.Data)
		if err != nil {
			return err
		}
		// Recreate transaction metadata
		state := tc.producerManager.GetTransactionalState(data.TransactionalID)
		if state != nil {
			tc.producerManager.SetTransactionState(data.TransactionalID, TransactionStateOngoing)
			tc.producerManager.SetCurrentTransactionID(data.TransactionalID, data.TransactionID)

			txn := NewTransactionMetadata(data.TransactionID, data.TransactionalID, data.ProducerID, data.Epoch, state.TransactionTimeoutMs)
			shard := tc.shards[shardIndexFor(data.TransactionalID)]
			shard.mu.Lock()
			shard.byID[data.TransactionID] = txn
			shard.mu.Unlock()
		}

	case WALRecordAddPartition:
		data, err := ParseAddPartitionData(record.Data)
		if err != nil {
			return err
		}
		tc.producerManager.AddPendingPartition(data.TransactionalID, data.Topic, data.Partition)

		state := tc.producerManager.GetTransactionalState(data.TransactionalID)
		if state != nil {
			shard := tc.shards[shardIndexFor(data.TransactionalID)]
			shard.mu.Lock()
			if txn, exists := shard.byID[state.CurrentTransactionID]; exists {
				txn.AddPartition(data.Topic, data.Partition)
			}
			shard.mu.Unlock()
		}

	case WALRecordCompleteCommit, WALRecordCompleteAbort:
		data, err := ParseCompleteCommitData(record.Data)
		if err != nil {
			return err
		}
		// Transaction completed - clean up
		state := tc.producerManager.GetTransactionalState(data.TransactionalID)
		if state != nil {
			tc.producerManager.ClearPendingPartitions(data.TransactionalID)
			tc.producerManager.SetTransactionState(data.TransactionalID, TransactionStateEmpty)
			tc.producerManager.SetCurrentTransactionID(data.TransactionalID, "")

			shard := tc.shards[shardIndexFor(data.TransactionalID)]
			shard.mu.Lock()
			delete(shard.byID, state.CurrentTransactionID)
			shard.mu.Unlock()
		}

		// Other record types can be ignored during recovery
	}

	return nil
}

// recoverInProgressTransactions handles transactions that were in-progress during crash.
func (tc *TransactionCoordinator) recoverInProgressTransactions() {
	for _, shard := range tc.shards {
		shard.mu.Lock()
		for txnID, txn := range shard.byID {
			switch txn.State {
			case TransactionStateOngoing:
				// Check if timed out
				if txn.IsTimedOut() {
					tc.logger.Warn("aborting recovered transaction (timed out)",
						"transactionID", txnID)
					txn.State = TransactionStatePrepareAbort
				}

			case TransactionStatePrepareCommit:
				// Try to complete the commit
				tc.logger.Info("completing recovered transaction (commit)",
					"transactionID", txnID)
				// Will be handled by normal timeout checker

			case TransactionStatePrepareAbort:
				// Try to complete the abort
				tc.logger.Info("completing recovered transaction (abort)",
					"transactionID", txnID)
				// Will be handled by normal timeout checker
			}
		}
		shard.mu.Unlock()
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Close shuts down the transaction coordinator.
func (tc *TransactionCoordinator) Close() error {
	tc.closeMu.Lock()
	if tc.closed {
		tc.closeMu.Unlock()
		return nil
	}
	tc.closed = true
	tc.closeMu.Unlock()

	// Stop background goroutines
	tc.cancel()
	tc.wg.Wait()

	// Take final snapshot
	tc.takeSnapshot()

	// Close transaction log
	if err := tc.transactionLog.Close(); err != nil {
		return err
	}

	tc.logger.Info("transaction coordinator stopped")
	return nil
}

// =============================================================================
// STATISTICS AND QUERIES
// =============================================================================

// TransactionCoordinatorStats holds statistics about the coordinator.
type TransactionCoordinatorStats struct {
	// ActiveTransactions is the number of ongoing transactions
	ActiveTransactions int

	// TransactionsByState counts transactions by state
	TransactionsByState map[TransactionState]int

	// ProducerStats is producer-related statistics
	ProducerStats IdempotentProducerStats

	// LogStats is transaction log statistics
	LogStats TransactionLogStats
}

// Stats returns current statistics.
func (tc *TransactionCoordinator) Stats() TransactionCoordinatorStats {
	byState := make(map[TransactionState]int)
	activeCount := 0
	for _, shard := range tc.shards {
		shard.mu.RLock()
		for _, txn := range shard.byID {
			byState[txn.State]++
		}
		activeCount += len(shard.byID)
		shard.mu.RUnlock()
	}

	return TransactionCoordinatorStats{
		ActiveTransactions:  activeCount,
		TransactionsByState: byState,
		ProducerStats:       tc.producerManager.Stats(),
		LogStats:            tc.transactionLog.Stats(),
	}
}

// GetTransaction returns metadata for a specific transaction.
//
// The caller only has the transactionID, not the transactionalID that
// determines its shard, so this scans the (small, fixed) shard array rather
// than hashing straight to one. Rare/debug path; the hot paths above always
// know the transactionalID and go directly to their shard.
func (tc *TransactionCoordinator) GetTransaction(txnID string) *TransactionMetadata {
	for _, shard := range tc.shards {
		shard.mu.RLock()
		txn, exists := shard.byID[txnID]
		if exists {
			cp := cloneTransactionMetadata(txn)
			shard.mu.RUnlock()
			return cp
		}
		shard.mu.RUnlock()
	}
	return nil
}

// GetActiveTransactions returns all active transactions across every shard.
func (tc *TransactionCoordinator) GetActiveTransactions() []*TransactionMetadata {
	var result []*TransactionMetadata
	for _, shard := range tc.shards {
		shard.mu.RLock()
		for _, txn := range shard.byID {
			result = append(result, cloneTransactionMetadata(txn))
		}
		shard.mu.RUnlock()
	}
	return result
}

// TransactionListEntry is the admin-plane summary ListTransactions returns:
// a transactional ID paired with its current state, without the full
// participant-partition detail DescribeTransactions carries.
type TransactionListEntry struct {
	TransactionalID string
	State           TransactionState
}

// ListTransactions returns a (transactionalId, state) pair for every known
// transactional producer, optionally narrowed to the given states. A nil or
// empty filter returns every transactional ID.
func (tc *TransactionCoordinator) ListTransactions(stateFilter ...TransactionState) []TransactionListEntry {
	filter := make(map[TransactionState]struct{}, len(stateFilter))
	for _, s := range stateFilter {
		filter[s] = struct{}{}
	}

	states := tc.producerManager.AllTransactionalStates()
	result := make([]TransactionListEntry, 0, len(states))
	for transactionalID, state := range states {
		if len(filter) > 0 {
			if _, ok := filter[state]; !ok {
				continue
			}
		}
		result = append(result, TransactionListEntry{TransactionalID: transactionalID, State: state})
	}
	return result
}

// DescribeTransactions returns the full TransactionMetadata for each
// requested transactional ID's transaction in progress. IDs with no
// transaction in progress are omitted from the result; this includes IDs
// whose last transaction has completed, because completion resets the
// producer to Empty and drops the in-memory transaction entry, so no
// CompleteCommit/CompleteAbort entry is reported.
func (tc *TransactionCoordinator) DescribeTransactions(transactionalIDs ...string) []*TransactionMetadata {
	result := make([]*TransactionMetadata, 0, len(transactionalIDs))
	for _, id := range transactionalIDs {
		state := tc.producerManager.GetTransactionalState(id)
		if state == nil || state.CurrentTransactionID == "" {
			continue
		}
		if txn := tc.GetTransaction(state.CurrentTransactionID); txn != nil {
			result = append(result, txn)
		}
	}
	return result
}

// cloneTransactionMetadata returns a deep copy safe to hand to callers
// outside the shard lock.
func cloneTransactionMetadata(txn *TransactionMetadata) *TransactionMetadata {
	return &TransactionMetadata{
		TransactionID:   txn.TransactionID,
		ProducerID:      txn.ProducerID,
		Epoch:           txn.Epoch,
		TransactionalID: txn.TransactionalID,
		State:           txn.State,
		StartTime:       txn.StartTime,
		LastUpdateTime:  txn.LastUpdateTime,
		TimeoutMs:       txn.TimeoutMs,
		Partitions:      copyPartitions(txn.Partitions),
	}
}

// copyPartitions creates a deep copy of the partitions map.
func copyPartitions(m map[string]map[int]struct{}) map[string]map[int]struct{} {
	result := make(map[string]map[int]struct{}, len(m))
	for topic, parts := range m {
		result[topic] = make(map[int]struct{}, len(parts))
		for p := range parts {
			result[topic][p] = struct{}{}
		}
	}
	return result
}

// =============================================================================
// HELPERS
// =============================================================================

// generateTransactionID generates a unique transaction ID.
func generateTransactionID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return fmt.Sprintf("txn-%d-%s", time.Now().UnixNano(), hex.EncodeToString(bytes))
}

// GetProducerState returns the state for a transactional ID (for debugging).
func (tc *TransactionCoordinator) GetProducerState(transactionalID string) *TransactionalIDState {
	return tc.producerManager.GetTransactionalState(transactionalID)
}

// GetProducerStateByProducerID looks up transactional state by producer ID and epoch.
func (tc *TransactionCoordinator) GetProducerStateByProducerID(producerID int64, epoch int16) *TransactionalIDState {
	return tc.producerManager.GetTransactionalStateByProducerID(producerID, epoch)
}
