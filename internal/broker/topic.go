// =============================================================================
// TOPIC - LOGICAL MESSAGE STREAM, BACKED BY PartitionLog
// =============================================================================
//
// WHAT IS A TOPIC?
// A topic is a named category or feed to which messages are published. Think:
//   - "orders" topic: All order-related events
//   - "user-signups" topic: All new user registration events
//   - "payment-failures" topic: All failed payment notifications
//
// Producers publish to topics, consumers subscribe to topics.
//
// TOPIC vs PARTITION:
//   - Topic: Logical grouping (by business domain)
//   - Partition: Physical distribution (for parallelism), and the unit the
//     transactional core actually operates on: each partition is one
//     PartitionLog with its own ProducerStateManager (spec §3 Ownership).
//
// Generalizes goqueue's own topic.go, whose partitions were plain storage.Log
// wrappers (*Partition), into one whose partitions are the full transactional
// state machine (*PartitionLog). Routing (murmur3 hash / round robin) is
// unchanged from the teacher.
//
// =============================================================================

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"txncore/internal/storage"
)

// =============================================================================
// ERROR DEFINITIONS
// =============================================================================

var (
	// ErrTopicClosed means operations attempted on closed topic
	ErrTopicClosed = errors.New("topic is closed")

	// ErrTopicExists means trying to create a topic that already exists
	ErrTopicExists = errors.New("topic already exists")

	// ErrTopicNotFound means the topic doesn't exist
	ErrTopicNotFound = errors.New("topic not found")
)

// =============================================================================
// TOPIC CONFIGURATION
// =============================================================================

// TopicConfig holds configuration for a topic.
type TopicConfig struct {
	// Name is the topic identifier
	Name string

	// NumPartitions is how many partitions to create
	NumPartitions int

	// RetentionHours is how long to keep messages (0 = forever)
	RetentionHours int

	// RetentionBytes is max size per partition (0 = unlimited)
	RetentionBytes int64

	// SnapshotInterval controls how often each partition snapshots its PPSM
	// (spec §6's producerStateTopicSnapshotIntervalSeconds). 0 disables it.
	SnapshotInterval time.Duration

	// PurgeInterval controls how often each partition sweeps its aborted-tx
	// index for entries the log has already trimmed past (spec §6's
	// purgeAbortedTxnIntervalSeconds). 0 disables it.
	PurgeInterval time.Duration
}

// DefaultTopicConfig returns default configuration.
//
// PARTITION COUNT GUIDANCE:
//   - 1 partition: Simple use cases, strict ordering needed
//   - 3 partitions: Small workloads, good starting point
//   - 6-12 partitions: Medium workloads
//   - 50+ partitions: High-throughput systems
func DefaultTopicConfig(name string) TopicConfig {
	return TopicConfig{
		Name:             name,
		NumPartitions:    3,
		RetentionHours:   168, // 7 days
		RetentionBytes:   0,   // unlimited
		SnapshotInterval: 60 * time.Second,
		PurgeInterval:    30 * time.Second,
	}
}

// =============================================================================
// TOPIC STRUCT
// =============================================================================

// Topic represents a logical message stream with one or more partitions.
//
// Murmur3 hash-based partitioning (same key -> same partition), round-robin
// for null keys, explicit partition selection.
type Topic struct {
	config TopicConfig

	partitions []*PartitionLog

	// snapshots is the compacted producer-state snapshot store shared by
	// every partition in this topic (spec §7), scoped per-topic so two
	// topics' partition 0 never collide on the same snapshot key.
	snapshots *SnapshotBuffer

	baseDir string
	logger  *slog.Logger

	mu sync.RWMutex

	createdAt time.Time
	closed    bool

	roundRobinCounter uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// =============================================================================
// TOPIC CREATION & LOADING
// =============================================================================

// NewTopic creates a new topic with the given configuration.
//
// CREATES:
//   - Directory: baseDir/{topicName}/
//   - Partitions: baseDir/{topicName}/0/, baseDir/{topicName}/1/, etc.
//   - Snapshot buffer: baseDir/{topicName}/__transaction_state_snapshots/
func NewTopic(baseDir string, config TopicConfig, logger *slog.Logger) (*Topic, error) {
	topicDir := filepath.Join(baseDir, config.Name)
	if err := os.MkdirAll(topicDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create topic directory: %w", err)
	}

	snapshots, err := NewSnapshotBuffer(DefaultSnapshotBufferConfig(topicDir), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot buffer: %w", err)
	}

	partitions := make([]*PartitionLog, config.NumPartitions)
	for i := 0; i < config.NumPartitions; i++ {
		pl, err := NewPartitionLog(baseDir, config.Name, i, snapshots, logger)
		if err != nil {
			for j := 0; j < i; j++ {
				partitions[j].Close()
			}
			snapshots.Close()
			return nil, fmt.Errorf("failed to create partition %d: %w", i, err)
		}
		partitions[i] = pl
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Topic{
		config:     config,
		partitions: partitions,
		snapshots:  snapshots,
		baseDir:    baseDir,
		logger:     logger,
		createdAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
	t.startBackgroundLoops()
	return t, nil
}

// LoadTopic opens an existing topic, recovering each partition's PPSM from
// its latest snapshot plus log replay (PartitionLog.recover, asynchronous;
// AwaitInitialisation below blocks until it's done).
//
// DISCOVERY: partitions are numbered directories under baseDir/{name}/.
func LoadTopic(baseDir string, name string, logger *slog.Logger) (*Topic, error) {
	topicDir := filepath.Join(baseDir, name)

	stat, err := os.Stat(topicDir)
	if os.IsNotExist(err) {
		return nil, ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat topic directory: %w", err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("topic path is not a directory: %s", topicDir)
	}

	entries, err := os.ReadDir(topicDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read topic directory: %w", err)
	}

	var partitionIDs []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		var id int
		if _, err := fmt.Sscanf(entry.Name(), "%d", &id); err == nil {
			partitionIDs = append(partitionIDs, id)
		}
	}
	if len(partitionIDs) == 0 {
		return nil, fmt.Errorf("no partitions found for topic %s", name)
	}

	numPartitions := 0
	for _, id := range partitionIDs {
		if id+1 > numPartitions {
			numPartitions = id + 1
		}
	}

	snapshots, err := NewSnapshotBuffer(DefaultSnapshotBufferConfig(topicDir), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot buffer: %w", err)
	}

	partitions := make([]*PartitionLog, numPartitions)
	for _, id := range partitionIDs {
		pl, err := LoadPartitionLog(baseDir, name, id, snapshots, logger)
		if err != nil {
			for _, loaded := range partitions {
				if loaded != nil {
					loaded.Close()
				}
			}
			snapshots.Close()
			return nil, fmt.Errorf("failed to load partition %d: %w", id, err)
		}
		partitions[id] = pl
	}

	// Block until every partition has finished replaying before the topic is
	// considered open — mirrors the teacher's synchronous LoadTopic contract.
	for id, pl := range partitions {
		if pl == nil {
			continue
		}
		if err := pl.AwaitInitialisation(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to recover partition %d: %w", id, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Topic{
		config: TopicConfig{
			Name:             name,
			NumPartitions:    len(partitions),
			SnapshotInterval: DefaultTopicConfig(name).SnapshotInterval,
			PurgeInterval:    DefaultTopicConfig(name).PurgeInterval,
		},
		partitions: partitions,
		snapshots:  snapshots,
		baseDir:    baseDir,
		logger:     logger,
		createdAt:  time.Now(), // Don't have persisted creation time yet
		ctx:        ctx,
		cancel:     cancel,
	}
	t.startBackgroundLoops()
	return t, nil
}

func (t *Topic) startBackgroundLoops() {
	for _, pl := range t.partitions {
		pl := pl
		t.wg.Add(2)
		go func() { defer t.wg.Done(); pl.snapshotTakerLoop(t.ctx, t.config.SnapshotInterval) }()
		go func() { defer t.wg.Done(); pl.purgeLoop(t.ctx, t.config.PurgeInterval) }()
	}
}

// =============================================================================
// PRODUCER OPERATIONS
// =============================================================================

// Publish writes a single, non-transactional, non-idempotent message to the
// topic (no producer identity — see producer_state.go's NoProducerID).
//
// PARTITION ROUTING:
//   - If key is provided: hash(key) mod numPartitions
//   - If key is nil: round-robin across partitions
func (t *Topic) Publish(key, value []byte) (partition int, offset int64, err error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return 0, 0, ErrTopicClosed
	}
	numPartitions := len(t.partitions)
	t.mu.RUnlock()

	if key != nil {
		partition = t.hashPartition(key, numPartitions)
	} else {
		partition = t.nextRoundRobinPartition()
	}

	offset, err = t.publishNonTransactional(partition, key, value)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to publish to partition %d: %w", partition, err)
	}
	return partition, offset, nil
}

// hashPartition computes target partition from key using murmur3 hashing,
// the same algorithm goqueue's Producer used, so routing stays consistent
// for any external caller that mirrors this computation.
func (t *Topic) hashPartition(key []byte, numPartitions int) int {
	return DefaultPartitioner.Partition(key, nil, numPartitions)
}

// nextRoundRobinPartition advances the topic's round-robin cursor. Exported
// indirectly via PublishTransactional's nil-key path, since the broker picks
// partitions for transactional publishes too.
func (t *Topic) nextRoundRobinPartition() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	partition := int(t.roundRobinCounter % uint64(len(t.partitions)))
	t.roundRobinCounter++
	return partition
}

// PublishToPartition writes a non-transactional message directly to a
// specific partition. Use with caution - bypasses routing logic.
func (t *Topic) PublishToPartition(partition int, key, value []byte) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0, ErrTopicClosed
	}
	if partition < 0 || partition >= len(t.partitions) {
		return 0, fmt.Errorf("invalid partition %d (topic has %d partitions)", partition, len(t.partitions))
	}
	return t.publishNonTransactionalLocked(partition, key, value)
}

func (t *Topic) publishNonTransactional(partition int, key, value []byte) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.publishNonTransactionalLocked(partition, key, value)
}

func (t *Topic) publishNonTransactionalLocked(partition int, key, value []byte) (int64, error) {
	result, err := t.partitions[partition].Append(AppendBatch{
		ProducerID: NoProducerID,
		FirstSeq:   0,
		LastSeq:    0,
		IsTxn:      false,
		Key:        key,
		Records:    [][]byte{value},
	})
	if result == nil {
		return 0, err
	}
	return result.FirstOffset, err
}

// =============================================================================
// CONSUMER OPERATIONS
// =============================================================================

// Consume reads messages from a specific partition at read_uncommitted
// isolation (plain, no aborted-range filtering). ConsumeCommitted is the
// read_committed counterpart transactional consumers should use instead.
func (t *Topic) Consume(partition int, fromOffset int64, maxMessages int) ([]*storage.Message, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrTopicClosed
	}
	if partition < 0 || partition >= len(t.partitions) {
		return nil, fmt.Errorf("partition %d not found", partition)
	}
	result, err := t.partitions[partition].Fetch(fromOffset, maxMessages, ReadUncommitted)
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// ConsumeCommitted reads messages from a specific partition at
// read_committed isolation. The returned messages are not filtered and may
// extend past the LastStableOffset; the result carries the LastStableOffset
// and the aborted-transaction ranges overlapping the returned messages.
func (t *Topic) ConsumeCommitted(partition int, fromOffset int64, maxMessages int) (*FetchResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrTopicClosed
	}
	if partition < 0 || partition >= len(t.partitions) {
		return nil, fmt.Errorf("partition %d not found", partition)
	}
	return t.partitions[partition].Fetch(fromOffset, maxMessages, ReadCommitted)
}

// Partition returns a specific partition's PartitionLog by ID.
func (t *Topic) Partition(id int) (*PartitionLog, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if id < 0 || id >= len(t.partitions) {
		return nil, fmt.Errorf("partition %d not found", id)
	}
	return t.partitions[id], nil
}

// Name returns the topic name.
func (t *Topic) Name() string {
	return t.config.Name
}

// NumPartitions returns the number of partitions.
func (t *Topic) NumPartitions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.partitions)
}

// EarliestOffset returns the earliest offset across all partitions.
func (t *Topic) EarliestOffset() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var earliest int64 = -1
	for _, p := range t.partitions {
		e := p.FetchOldestAvailableIndexFromTopic()
		if earliest == -1 || e < earliest {
			earliest = e
		}
	}
	return earliest
}

// LatestOffsets returns the latest stable offset for each partition.
func (t *Topic) LatestOffsets() map[int]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	offsets := make(map[int]int64, len(t.partitions))
	for i, p := range t.partitions {
		offsets[i] = p.LastStableOffset()
	}
	return offsets
}

// TotalMessages returns the sum of next-offsets across partitions (an
// approximation of messages ever appended, including control batches).
func (t *Topic) TotalMessages() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total int64
	for _, p := range t.partitions {
		total += p.Log().NextOffset()
	}
	return total
}

// TotalSize returns the total on-disk size of every partition's log.
func (t *Topic) TotalSize() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total int64
	for _, p := range t.partitions {
		total += p.Log().Size()
	}
	return total
}

// Sync flushes every partition's log to disk.
func (t *Topic) Sync() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, p := range t.partitions {
		if err := p.Log().Sync(); err != nil {
			return fmt.Errorf("partition %d: %w", i, err)
		}
	}
	return nil
}

// =============================================================================
// TOPIC MANAGEMENT
// =============================================================================

// Close closes all partitions and the snapshot buffer, and stops the
// per-partition snapshot/purge background loops.
func (t *Topic) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.cancel()
	t.wg.Wait()

	var errs []error
	for i, p := range t.partitions {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("partition %d: %w", i, err))
		}
	}
	if err := t.snapshots.Close(); err != nil {
		errs = append(errs, fmt.Errorf("snapshot buffer: %w", err))
	}

	t.closed = true

	if len(errs) > 0 {
		return fmt.Errorf("errors closing topic: %v", errs)
	}
	return nil
}

// Delete closes and removes all topic data.
func (t *Topic) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.cancel()
		t.wg.Wait()
		for _, p := range t.partitions {
			p.Close()
		}
		t.snapshots.Close()
		t.closed = true
	}

	topicDir := filepath.Join(t.baseDir, t.config.Name)
	if err := os.RemoveAll(topicDir); err != nil {
		return fmt.Errorf("failed to delete topic directory: %w", err)
	}
	return nil
}
