// =============================================================================
// GOQUEUE MAIN ENTRY POINT
// =============================================================================
//
// Demonstrates the transactional core end to end against a single-node
// broker:
//   - Create a multi-partition topic
//   - InitProducerID + AddPartitionToTransaction/PublishTransactional
//     (the implicit begin-on-first-touch transaction lifecycle)
//   - SendOffsetsToTransaction against __consumer_offsets
//   - CommitTransaction, then AbortTransaction on a second producer to show
//     read_committed isolation hiding the aborted records
//   - The admin plane: ListTransactions / DescribeTransactions
//   - The admin HTTP surface (health, metrics, topics, transactions)
//
// The network-facing producer/consumer client is out of scope (spec.md §1);
// this broker drives InitProducerID/AddPartitionToTransaction/sequence
// assignment on the caller's behalf, the way a test harness would.
//
// =============================================================================

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txncore/internal/api"
	"txncore/internal/broker"
	"txncore/internal/config"
	"txncore/internal/metrics"
)

func main() {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      txncore v0.1.0                            ║")
	fmt.Println("║         Exactly-once transactional log, single node            ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 1: Create broker, from a YAML config file if one is given
	// -------------------------------------------------------------------------
	fmt.Println("📦 Starting broker...")
	brokerConfig, err := loadBrokerConfig()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	b, err := broker.NewBroker(brokerConfig)
	if err != nil {
		log.Fatalf("Failed to create broker: %v", err)
	}
	defer b.Close()

	fmt.Printf("   ✓ Broker started (NodeID: %s)\n", b.NodeID())
	fmt.Printf("   ✓ Data directory: %s\n\n", b.DataDir())

	// -------------------------------------------------------------------------
	// STEP 2: Initialize Prometheus metrics
	// -------------------------------------------------------------------------
	fmt.Println("📊 Initializing Prometheus metrics...")
	metricsConfig := metrics.DefaultConfig()
	metricsConfig.Enabled = true
	metricsConfig.IncludeGoCollector = true
	metricsConfig.IncludeProcessCollector = true
	metrics.Init(metricsConfig)
	fmt.Println("   ✓ Metrics initialized (endpoint: /metrics)")
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 3: Create a multi-partition topic
	// -------------------------------------------------------------------------
	topicName := "orders"
	numPartitions := 3

	if !b.TopicExists(topicName) {
		fmt.Printf("📝 Creating topic %q with %d partitions...\n", topicName, numPartitions)
		if err := b.CreateTopic(broker.TopicConfig{Name: topicName, NumPartitions: numPartitions}); err != nil {
			log.Fatalf("Failed to create topic: %v", err)
		}
		fmt.Println("   ✓ Topic created")
	} else {
		fmt.Printf("📂 Topic %q already exists\n", topicName)
	}
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 4: A committed transaction
	// -------------------------------------------------------------------------
	fmt.Println("🚀 Producer A: InitProducerID, publish 3 records, commit...")
	coord := b.Coordinator()

	pidA, err := coord.InitProducerID("order-writer-a", 60_000)
	if err != nil {
		log.Fatalf("InitProducerID failed: %v", err)
	}
	fmt.Printf("   ✓ producer_id=%d epoch=%d\n", pidA.ProducerID, pidA.Epoch)

	for i, v := range []string{"order-A1", "order-A2", "order-A3"} {
		partition, offset, err := b.PublishTransactional("order-writer-a", pidA, topicName, []byte("user-1"), []byte(v))
		if err != nil {
			log.Fatalf("PublishTransactional failed: %v", err)
		}
		fmt.Printf("   ✓ record %d → partition=%d offset=%d\n", i, partition, offset)
	}

	if err := b.SendOffsetsToTransaction("order-writer-a", pidA, "order-processors", []broker.OffsetCommit{
		{Topic: topicName, Partition: 0, Offset: 3},
	}); err != nil {
		log.Fatalf("SendOffsetsToTransaction failed: %v", err)
	}
	fmt.Println("   ✓ registered consumer group offset as a transaction participant")

	if err := coord.CommitTransaction("order-writer-a", pidA); err != nil {
		log.Fatalf("CommitTransaction failed: %v", err)
	}
	fmt.Println("   ✓ transaction committed")
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 5: An aborted transaction, to exercise read_committed isolation
	// -------------------------------------------------------------------------
	fmt.Println("🚀 Producer B: publish 2 records, then abort...")
	pidB, err := coord.InitProducerID("order-writer-b", 60_000)
	if err != nil {
		log.Fatalf("InitProducerID failed: %v", err)
	}
	fmt.Printf("   ✓ producer_id=%d epoch=%d\n", pidB.ProducerID, pidB.Epoch)

	for i, v := range []string{"order-B1-will-be-rolled-back", "order-B2-will-be-rolled-back"} {
		partition, offset, err := b.PublishTransactional("order-writer-b", pidB, topicName, []byte("user-1"), []byte(v))
		if err != nil {
			log.Fatalf("PublishTransactional failed: %v", err)
		}
		fmt.Printf("   ✓ record %d → partition=%d offset=%d\n", i, partition, offset)
	}

	if err := coord.AbortTransaction("order-writer-b", pidB); err != nil {
		log.Fatalf("AbortTransaction failed: %v", err)
	}
	fmt.Println("   ✓ transaction aborted")
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 6: Consume at both isolation levels
	// -------------------------------------------------------------------------
	fmt.Println("📥 Consuming partition 0 at both isolation levels...")
	uncommitted, err := b.Consume(topicName, 0, 0, 100)
	if err != nil {
		log.Fatalf("Consume failed: %v", err)
	}
	fmt.Printf("   read_uncommitted: %d records on the log\n", len(uncommitted))

	committed, err := b.ConsumeCommitted(topicName, 0, 0, 100)
	if err != nil {
		log.Fatalf("ConsumeCommitted failed: %v", err)
	}
	fmt.Printf("   read_committed:   %d visible records, %d aborted range(s) hidden\n",
		len(committed.Messages), len(committed.AbortedTxns))
	for _, m := range committed.Messages {
		fmt.Printf("      [offset=%d] %s\n", m.Offset, string(m.Value))
	}
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 7: Admin plane
	// -------------------------------------------------------------------------
	fmt.Println("🔎 Admin plane:")
	for _, entry := range coord.ListTransactions() {
		fmt.Printf("   transactional_id=%-20s state=%s\n", entry.TransactionalID, entry.State)
	}
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 8: Start the admin HTTP server
	// -------------------------------------------------------------------------
	fmt.Println("🌐 Starting admin HTTP server...")
	apiConfig := api.DefaultConfig()
	if httpAddr := os.Getenv("GOQUEUE_LISTENERS_HTTP"); httpAddr != "" {
		apiConfig.Addr = httpAddr
	} else {
		apiConfig.Addr = "127.0.0.1:8080"
	}

	server := api.NewServer(b, apiConfig)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start admin server: %v", err)
	}
	fmt.Printf("   ✓ Admin API listening on http://%s\n\n", apiConfig.Addr)

	fmt.Println("   Try these commands:")
	fmt.Println("   ┌────────────────────────────────────────────────────────────────────────┐")
	fmt.Println("   │   curl http://localhost:8080/healthz                                   │")
	fmt.Println("   │   curl http://localhost:8080/stats                                     │")
	fmt.Println("   │   curl http://localhost:8080/transactions                              │")
	fmt.Println("   │   curl http://localhost:8080/transactions/order-writer-a               │")
	fmt.Println("   └────────────────────────────────────────────────────────────────────────┘")
	fmt.Println()

	// -------------------------------------------------------------------------
	// STEP 9: Wait for interrupt
	// -------------------------------------------------------------------------
	fmt.Println("🚀 txncore running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\n\n🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("admin server shutdown error: %v", err)
	}
	fmt.Println("   ✓ Shutdown complete")
}

// loadBrokerConfig builds a broker.BrokerConfig from GOQUEUE_CONFIG_FILE if
// set (YAML, validated before use), otherwise from broker.DefaultBrokerConfig()
// overridden by GOQUEUE_BROKER_DATADIR/GOQUEUE_BROKER_NODEID.
func loadBrokerConfig() (broker.BrokerConfig, error) {
	if path := os.Getenv("GOQUEUE_CONFIG_FILE"); path != "" {
		file, err := config.Load(path)
		if err != nil {
			return broker.BrokerConfig{}, err
		}
		if err := file.Validate(); err != nil {
			return broker.BrokerConfig{}, err
		}
		fmt.Printf("   ✓ Loaded config from %s\n", path)
		return file.ToBrokerConfig(), nil
	}

	cfg := broker.DefaultBrokerConfig()
	if dataDir := os.Getenv("GOQUEUE_BROKER_DATADIR"); dataDir != "" {
		cfg.DataDir = dataDir
	} else {
		cfg.DataDir = "./data"
	}
	if nodeID := os.Getenv("GOQUEUE_BROKER_NODEID"); nodeID != "" {
		cfg.NodeID = nodeID
	}
	return cfg, nil
}
