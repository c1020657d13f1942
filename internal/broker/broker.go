// =============================================================================
// BROKER - THE CENTRAL COORDINATOR
// =============================================================================
//
// WHAT IS A BROKER?
// A broker is a server that:
//   - Manages topics (create, delete, list)
//   - Handles producer requests (publish messages), both plain and
//     transactional/idempotent
//   - Handles consumer requests (read messages), at either isolation level
//   - Stores data durably on disk
//   - Owns the single TransactionCoordinator for the node
//
// BROKER RESPONSIBILITIES:
//
//   ┌─────────────────────────────────────────────────────────────────────────┐
//   │                           BROKER                                        │
//   │                                                                         │
//   │   ┌──────────────────────────────────────────────────────────────────┐  │
//   │   │                    Topic Management                              │  │
//   │   │   - CreateTopic("orders")                                        │  │
//   │   │   - DeleteTopic("orders")                                        │  │
//   │   │   - ListTopics()                                                 │  │
//   │   │   - GetTopic("orders")                                           │  │
//   │   └──────────────────────────────────────────────────────────────────┘  │
//   │                              │                                          │
//   │   ┌──────────────────────────────────────────────────────────────────┐  │
//   │   │           Producer Interface (plain + transactional)             │  │
//   │   │   - Publish("orders", key, value) → (partition, offset)          │  │
//   │   │   - PublishTransactional(txnID, pid, "orders", key, value)       │  │
//   │   └──────────────────────────────────────────────────────────────────┘  │
//   │                              │                                          │
//   │   ┌──────────────────────────────────────────────────────────────────┐  │
//   │   │                    Consumer Interface                            │  │
//   │   │   - Consume / ConsumeCommitted("orders", partition, offset)      │  │
//   │   └──────────────────────────────────────────────────────────────────┘  │
//   │                              │                                          │
//   │   ┌──────────────────────────────────────────────────────────────────┐  │
//   │   │               Transaction Coordinator (per node)                 │  │
//   │   └──────────────────────────────────────────────────────────────────┘  │
//   │                              │                                          │
//   │   ┌──────────────────────────────────────────────────────────────────┐  │
//   │   │                    Storage Layer                                 │  │
//   │   │   - Topics → PartitionLogs → Logs → Segments                     │  │
//   │   └──────────────────────────────────────────────────────────────────┘  │
//   │                                                                         │
//   └─────────────────────────────────────────────────────────────────────────┘
//
// =============================================================================

package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// =============================================================================
// ERROR DEFINITIONS
// =============================================================================

var (
	// ErrBrokerClosed means the broker has been shut down
	ErrBrokerClosed = errors.New("broker is closed")
)

// =============================================================================
// BROKER CONFIGURATION
// =============================================================================

// BrokerConfig holds broker configuration.
type BrokerConfig struct {
	// DataDir is the root directory for all data storage
	// Structure: DataDir/logs/{topic}/{partition}/
	DataDir string

	// NodeID identifies this broker in a cluster (future use)
	NodeID string

	// LogLevel controls logging verbosity
	LogLevel slog.Level

	// Coordinator configures the node's single TransactionCoordinator.
	Coordinator TransactionCoordinatorConfig
}

// DefaultBrokerConfig returns sensible defaults.
func DefaultBrokerConfig() BrokerConfig {
	dataDir := "./data"
	return BrokerConfig{
		DataDir:     dataDir,
		NodeID:      "node-1",
		LogLevel:    slog.LevelInfo,
		Coordinator: DefaultTransactionCoordinatorConfig(filepath.Join(dataDir, "transactions")),
	}
}

// =============================================================================
// BROKER STRUCT
// =============================================================================

// Broker is the main server managing topics, transactional publishes, and
// the node's TransactionCoordinator.
type Broker struct {
	config BrokerConfig

	topics map[string]*Topic

	logsDir string

	mu sync.RWMutex

	logger *slog.Logger

	startedAt time.Time

	closed bool

	coordinator *TransactionCoordinator

	// seqMu/nextSeq assign per-(producer, epoch, topic, partition) sequence
	// numbers for transactional publishes. In a real Kafka deployment the
	// producer client owns this counter; here the network-facing producer
	// client is out of scope (spec.md §1), so the broker plays that role on
	// the caller's behalf for every transactional publish it drives.
	seqMu   sync.Mutex
	nextSeq map[seqKey]int32
}

type seqKey struct {
	pid       int64
	epoch     int16
	topic     string
	partition int
}

// =============================================================================
// BROKER LIFECYCLE
// =============================================================================

// NewBroker creates and starts a new broker.
//
// STARTUP PROCESS:
//  1. Create data directories if needed
//  2. Discover existing topics
//  3. Load all topics (recovers PartitionLogs from crash if needed)
//  4. Start the TransactionCoordinator (recovers from its WAL)
//  5. Ready to accept requests
func NewBroker(config BrokerConfig) (*Broker, error) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.LogLevel,
	}))

	logsDir := filepath.Join(config.DataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	b := &Broker{
		config:    config,
		topics:    make(map[string]*Topic),
		logsDir:   logsDir,
		logger:    logger,
		startedAt: time.Now(),
		nextSeq:   make(map[seqKey]int32),
	}

	if err := b.loadExistingTopics(); err != nil {
		return nil, fmt.Errorf("failed to load existing topics: %w", err)
	}

	coordCfg := config.Coordinator
	if coordCfg.DataDir == "" {
		coordCfg.DataDir = filepath.Join(config.DataDir, "transactions")
	}
	if coordCfg.OffsetsPartitionCount <= 0 {
		coordCfg.OffsetsPartitionCount = DefaultOffsetsPartitionCount
	}

	// sendOffsetsToTxn needs a real partition to register as a transaction
	// participant and to receive the commit/abort marker, so the
	// consumer-offsets topic is created up front like any other topic.
	if err := b.ensureConsumerOffsetsTopic(coordCfg.OffsetsPartitionCount); err != nil {
		return nil, fmt.Errorf("failed to prepare consumer offsets topic: %w", err)
	}

	coordinator, err := NewTransactionCoordinator(coordCfg, b)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction coordinator: %w", err)
	}
	b.coordinator = coordinator

	logger.Info("broker started",
		"nodeID", config.NodeID,
		"dataDir", config.DataDir,
		"topics", len(b.topics))

	return b, nil
}

// loadExistingTopics discovers and loads topics from disk.
func (b *Broker) loadExistingTopics() error {
	entries, err := os.ReadDir(b.logsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		topicName := entry.Name()
		b.logger.Info("loading topic", "topic", topicName)

		topic, err := LoadTopic(b.logsDir, topicName, b.logger)
		if err != nil {
			b.logger.Error("failed to load topic",
				"topic", topicName,
				"error", err)
			continue
		}

		b.topics[topicName] = topic
		b.logger.Info("loaded topic",
			"topic", topicName,
			"partitions", topic.NumPartitions(),
			"messages", topic.TotalMessages())
	}

	return nil
}

// ensureConsumerOffsetsTopic creates the __consumer_offsets topic if it
// wasn't already discovered by loadExistingTopics. partitionCount must
// match TransactionCoordinatorConfig.OffsetsPartitionCount so GroupToPartition
// maps groups to the same partitions on both sides.
func (b *Broker) ensureConsumerOffsetsTopic(partitionCount int) error {
	if _, exists := b.topics[ConsumerOffsetsTopicName]; exists {
		return nil
	}

	config := DefaultTopicConfig(ConsumerOffsetsTopicName)
	config.NumPartitions = partitionCount
	topic, err := NewTopic(b.logsDir, config, b.logger)
	if err != nil {
		return err
	}
	b.topics[ConsumerOffsetsTopicName] = topic
	return nil
}

// Close shuts down the broker gracefully: the coordinator first (so no new
// transactions can begin), then every topic.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.logger.Info("shutting down broker")

	var errs []error
	if b.coordinator != nil {
		if err := b.coordinator.Close(); err != nil {
			errs = append(errs, fmt.Errorf("coordinator: %w", err))
		}
	}
	for name, topic := range b.topics {
		if err := topic.Close(); err != nil {
			errs = append(errs, fmt.Errorf("topic %s: %w", name, err))
		}
	}

	b.closed = true
	b.logger.Info("broker shutdown complete")

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// Coordinator returns the broker's TransactionCoordinator.
func (b *Broker) Coordinator() *TransactionCoordinator {
	return b.coordinator
}

// =============================================================================
// TOPIC MANAGEMENT
// =============================================================================

// CreateTopic creates a new topic with the given configuration.
func (b *Broker) CreateTopic(config TopicConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	if IsInternalTopic(config.Name) {
		return fmt.Errorf("%w: %s is reserved for internal use", ErrTopicExists, config.Name)
	}

	if _, exists := b.topics[config.Name]; exists {
		return fmt.Errorf("%w: %s", ErrTopicExists, config.Name)
	}

	topic, err := NewTopic(b.logsDir, config, b.logger)
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	b.topics[config.Name] = topic

	b.logger.Info("created topic",
		"topic", config.Name,
		"partitions", config.NumPartitions)

	return nil
}

// DeleteTopic removes a topic and all its data.
func (b *Broker) DeleteTopic(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	if IsInternalTopic(name) {
		return fmt.Errorf("%w: %s is reserved for internal use", ErrTopicNotFound, name)
	}

	topic, exists := b.topics[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}

	if err := topic.Delete(); err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}

	delete(b.topics, name)

	b.logger.Info("deleted topic", "topic", name)

	return nil
}

// GetTopic returns a topic by name. Also satisfies TransactionBroker.
func (b *Broker) GetTopic(name string) (*Topic, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	topic, exists := b.topics[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, name)
	}

	return topic, nil
}

// ListTopics returns names of all topics.
func (b *Broker) ListTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}

// TopicExists checks if a topic exists.
func (b *Broker) TopicExists(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.topics[name]
	return exists
}

// =============================================================================
// PRODUCER INTERFACE - PLAIN (NON-TRANSACTIONAL)
// =============================================================================

// Publish writes a non-transactional, non-idempotent message to a topic.
func (b *Broker) Publish(topic string, key, value []byte) (partition int, offset int64, err error) {
	t, err := b.GetTopic(topic)
	if err != nil {
		return 0, 0, err
	}
	return t.Publish(key, value)
}

// PublishBatch writes multiple non-transactional messages to a topic.
func (b *Broker) PublishBatch(topic string, messages []struct {
	Key   []byte
	Value []byte
}) ([]struct {
	Partition int
	Offset    int64
}, error) {
	t, err := b.GetTopic(topic)
	if err != nil {
		return nil, err
	}

	results := make([]struct {
		Partition int
		Offset    int64
	}, len(messages))

	for i, msg := range messages {
		partition, offset, err := t.Publish(msg.Key, msg.Value)
		if err != nil {
			return results[:i], fmt.Errorf("failed at message %d: %w", i, err)
		}
		results[i] = struct {
			Partition int
			Offset    int64
		}{partition, offset}
	}

	return results, nil
}

// =============================================================================
// PRODUCER INTERFACE - TRANSACTIONAL / IDEMPOTENT
// =============================================================================

// PublishTransactional writes a message under a producer's current
// transaction. It implicitly registers (topic, partition) as a participant
// of the transaction on first use (spec.md's beginTransaction is a
// client-side no-op; the ONGOING transition happens on the first
// AddPartitionsToTxn — see TransactionCoordinator.AddPartitionToTransaction),
// then assigns the next sequence number for (pid, epoch, topic, partition)
// and appends the record with IsTxn set so the partition's
// ProducerStateManager tracks it for commit/abort.
func (b *Broker) PublishTransactional(transactionalID string, pid ProducerIDAndEpoch, topic string, key, value []byte) (partition int, offset int64, err error) {
	t, err := b.GetTopic(topic)
	if err != nil {
		return 0, 0, err
	}

	if key != nil {
		partition = t.hashPartition(key, t.NumPartitions())
	} else {
		partition = t.nextRoundRobinPartition()
	}

	if err := b.coordinator.AddPartitionToTransaction(transactionalID, pid, topic, partition); err != nil {
		return 0, 0, fmt.Errorf("add partition to transaction: %w", err)
	}

	pl, err := t.Partition(partition)
	if err != nil {
		return 0, 0, err
	}

	firstSeq, lastSeq := b.nextSequence(pid.ProducerID, pid.Epoch, topic, partition, 1)

	result, err := pl.Append(AppendBatch{
		ProducerID: pid.ProducerID,
		Epoch:      pid.Epoch,
		FirstSeq:   firstSeq,
		LastSeq:    lastSeq,
		IsTxn:      true,
		Key:        key,
		Records:    [][]byte{value},
	})
	if result == nil {
		return 0, 0, err
	}
	return partition, result.FirstOffset, err
}

// OffsetCommit is one (topic, partition) -> offset pair to be committed for
// a consumer group as part of a SendOffsetsToTransaction call.
type OffsetCommit struct {
	Topic     string
	Partition int32
	Offset    int64
	Metadata  string
}

// SendOffsetsToTransaction registers the consumer-offsets partition owning
// groupID as a participant in the transaction, so its commit/abort marker
// is written alongside every data partition the transaction touched, and
// writes offsets as transactional records into that partition: they become
// visible to ConsumeCommitted only once the transaction commits, and vanish
// with the rest of the transaction's writes on abort. Consumer group
// membership and rebalancing stay out of scope (spec.md §1); this is the
// narrow slice spec.md's sendOffsetsToTxn defines.
func (b *Broker) SendOffsetsToTransaction(transactionalID string, pid ProducerIDAndEpoch, groupID string, offsets []OffsetCommit) error {
	if err := b.coordinator.SendOffsetsToTransaction(transactionalID, pid, groupID); err != nil {
		return err
	}

	if len(offsets) == 0 {
		return nil
	}

	offsetsTopic, err := b.GetTopic(ConsumerOffsetsTopicName)
	if err != nil {
		return err
	}
	partition := GroupToPartition(groupID, offsetsTopic.NumPartitions())

	pl, err := offsetsTopic.Partition(partition)
	if err != nil {
		return err
	}

	records := make([][]byte, len(offsets))
	for i, oc := range offsets {
		records[i] = NewOffsetCommitRecord(groupID, oc.Topic, oc.Partition, oc.Offset, oc.Metadata).Encode()
	}

	firstSeq, lastSeq := b.nextSequence(pid.ProducerID, pid.Epoch, ConsumerOffsetsTopicName, partition, int32(len(records)))

	_, err = pl.Append(AppendBatch{
		ProducerID: pid.ProducerID,
		Epoch:      pid.Epoch,
		FirstSeq:   firstSeq,
		LastSeq:    lastSeq,
		IsTxn:      true,
		Records:    records,
	})
	return err
}

// nextSequence hands out the next contiguous sequence range for a
// (producer, epoch, topic, partition). A fresh epoch always starts at 0
// (map zero value), matching Kafka's sequence-reset-on-epoch-bump rule
// without needing an explicit reset call from InitProducerID.
func (b *Broker) nextSequence(pid int64, epoch int16, topic string, partition int, count int32) (first, last int32) {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()

	key := seqKey{pid: pid, epoch: epoch, topic: topic, partition: partition}
	first = b.nextSeq[key]
	last = first + count - 1
	b.nextSeq[key] = last + 1
	return first, last
}

// WriteControlRecord implements TransactionBroker for the coordinator: it
// resolves the target partition and writes the commit/abort marker through
// PartitionLog.CompleteTxn, which applies it to that partition's PPSM in the
// same call.
func (b *Broker) WriteControlRecord(topic string, partition int, isCommit bool, pid int64, epoch int16, txnID string) error {
	t, err := b.GetTopic(topic)
	if err != nil {
		return err
	}
	pl, err := t.Partition(partition)
	if err != nil {
		return err
	}
	controlType := ControlAbort
	if isCommit {
		controlType = ControlCommit
	}
	_, err = pl.CompleteTxn(pid, epoch, controlType, 0)
	return err
}

// =============================================================================
// CONSUMER INTERFACE
// =============================================================================

// Consume reads messages from a topic partition at read_uncommitted
// isolation.
func (b *Broker) Consume(topic string, partition int, fromOffset int64, maxMessages int) ([]Message, error) {
	t, err := b.GetTopic(topic)
	if err != nil {
		return nil, err
	}

	storageMessages, err := t.Consume(partition, fromOffset, maxMessages)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, len(storageMessages))
	for i, sm := range storageMessages {
		messages[i] = Message{
			Topic:     topic,
			Partition: partition,
			Offset:    sm.Offset,
			Timestamp: time.Unix(0, sm.Timestamp),
			Key:       sm.Key,
			Value:     sm.Value,
		}
	}

	return messages, nil
}

// ConsumeCommitted reads messages at read_committed isolation. The returned
// messages are not filtered and may extend past the LastStableOffset; the
// result carries the LastStableOffset and the aborted-transaction ranges
// overlapping the returned messages.
func (b *Broker) ConsumeCommitted(topic string, partition int, fromOffset int64, maxMessages int) (*FetchResult, error) {
	t, err := b.GetTopic(topic)
	if err != nil {
		return nil, err
	}
	return t.ConsumeCommitted(partition, fromOffset, maxMessages)
}

// GetOffsetBounds returns the earliest offset and last stable offset for a
// partition. Useful for consumers to know the valid offset range.
func (b *Broker) GetOffsetBounds(topic string, partition int) (earliest, lastStable int64, err error) {
	t, err := b.GetTopic(topic)
	if err != nil {
		return 0, 0, err
	}

	p, err := t.Partition(partition)
	if err != nil {
		return 0, 0, err
	}

	return p.FetchOldestAvailableIndexFromTopic(), p.LastStableOffset(), nil
}

// =============================================================================
// MESSAGE TYPE (API representation)
// =============================================================================

// Message is the API representation of a message.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Key       []byte
	Value     []byte
}

// =============================================================================
// BROKER METADATA
// =============================================================================

// BrokerStats reports broker-wide statistics.
type BrokerStats struct {
	NodeID       string
	Uptime       time.Duration
	TopicCount   int
	TotalSize    int64
	TopicStats   map[string]TopicStats
	Transactions TransactionCoordinatorStats
}

type TopicStats struct {
	Name          string
	Partitions    int
	TotalMessages int64
	TotalSize     int64
}

func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := BrokerStats{
		NodeID:     b.config.NodeID,
		Uptime:     time.Since(b.startedAt),
		TopicCount: len(b.topics),
		TopicStats: make(map[string]TopicStats),
	}

	for name, topic := range b.topics {
		ts := TopicStats{
			Name:          name,
			Partitions:    topic.NumPartitions(),
			TotalMessages: topic.TotalMessages(),
			TotalSize:     topic.TotalSize(),
		}
		stats.TopicStats[name] = ts
		stats.TotalSize += ts.TotalSize
	}

	if b.coordinator != nil {
		stats.Transactions = b.coordinator.Stats()
	}

	return stats
}

// NodeID returns the broker's node identifier.
func (b *Broker) NodeID() string {
	return b.config.NodeID
}

// DataDir returns the data directory path.
func (b *Broker) DataDir() string {
	return b.config.DataDir
}

// Uptime returns how long the broker has been running.
func (b *Broker) Uptime() time.Duration {
	return time.Since(b.startedAt)
}
