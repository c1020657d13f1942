// =============================================================================
// PPSM TESTS
// =============================================================================
//
// Tests for ProducerStateManager: idempotence/sequence validation, epoch
// fencing, transaction lifecycle, and snapshot round-tripping.
//
// =============================================================================

package broker

import (
	"errors"
	"testing"
)

func TestPPSM_FirstAppendMustStartAtZero(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	info, err := m.ValidateAndUpdate(100, 0, 0, 0, 0, 0, false)
	if err != nil {
		t.Fatalf("ValidateAndUpdate failed: %v", err)
	}
	if info.Outcome != AppendOK {
		t.Errorf("Outcome = %v, want AppendOK", info.Outcome)
	}
}

func TestPPSM_OutOfOrderSequenceRejected(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 0, 0, false); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	info, err := m.ValidateAndUpdate(100, 0, 5, 5, 1, 1, false)
	if !errors.Is(err, ErrOutOfOrderSequenceNumber) {
		t.Fatalf("err = %v, want ErrOutOfOrderSequenceNumber", err)
	}
	if info.Outcome != AppendOutOfOrder {
		t.Errorf("Outcome = %v, want AppendOutOfOrder", info.Outcome)
	}
}

func TestPPSM_DuplicateSequenceReturnsCachedOffsets(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 42, 42, false); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	info, err := m.ValidateAndUpdate(100, 0, 0, 0, 999, 999, false)
	if !errors.Is(err, ErrDuplicateSequenceNumber) {
		t.Fatalf("err = %v, want ErrDuplicateSequenceNumber", err)
	}
	if info.Outcome != AppendDuplicate {
		t.Errorf("Outcome = %v, want AppendDuplicate", info.Outcome)
	}
	if info.FirstOffset != 42 || info.LastOffset != 42 {
		t.Errorf("duplicate returned offsets (%d, %d), want (42, 42) from original write", info.FirstOffset, info.LastOffset)
	}
}

func TestPPSM_DedupWindowForgetsOldBatches(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	for i := 0; i < DedupWindowSize+2; i++ {
		if _, err := m.ValidateAndUpdate(100, 0, int32(i), int32(i), int64(i), int64(i), false); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	// Sequence 0 has aged out of the window: findDuplicate no longer has its
	// cached offsets, but it's still <= LastSeq, so it's reported as a
	// duplicate without the original (FirstOffset, LastOffset).
	info, err := m.ValidateAndUpdate(100, 0, 0, 0, 999, 999, false)
	if !errors.Is(err, ErrDuplicateSequenceNumber) {
		t.Fatalf("err = %v, want ErrDuplicateSequenceNumber for a replayed sequence below LastSeq", err)
	}
	if info.FirstOffset != 0 {
		t.Errorf("FirstOffset = %d, want 0 (zero value: original offsets are no longer cached)", info.FirstOffset)
	}
}

func TestPPSM_StaleEpochFenced(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 5, 0, 0, 0, 0, false); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	info, err := m.ValidateAndUpdate(100, 4, 1, 1, 1, 1, false)
	if !errors.Is(err, ErrInvalidProducerEpoch) {
		t.Fatalf("err = %v, want ErrInvalidProducerEpoch", err)
	}
	if info.Outcome != AppendFenced {
		t.Errorf("Outcome = %v, want AppendFenced", info.Outcome)
	}
}

func TestPPSM_EpochBumpResetsSequenceTracking(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 0, 0, false); err != nil {
		t.Fatalf("first append failed: %v", err)
	}
	if _, err := m.ValidateAndUpdate(100, 0, 1, 1, 1, 1, false); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	// A new epoch resets expected sequence to 0, even though the old epoch's
	// LastSeq was 1 (append-time fencing only rejects epoch < stored, per
	// the resolved open question in DESIGN.md).
	info, err := m.ValidateAndUpdate(100, 1, 0, 0, 2, 2, false)
	if err != nil {
		t.Fatalf("epoch bump append failed: %v", err)
	}
	if info.Outcome != AppendOK {
		t.Errorf("Outcome = %v, want AppendOK", info.Outcome)
	}
}

func TestPPSM_EpochBumpClearsOpenTransaction(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 0, 0, true); err != nil {
		t.Fatalf("transactional append failed: %v", err)
	}
	if got := m.FirstOpenTxnOffset(); got != 0 {
		t.Fatalf("FirstOpenTxnOffset = %d, want 0 before epoch bump", got)
	}

	if _, err := m.ValidateAndUpdate(100, 1, 0, 0, 1, 1, false); err != nil {
		t.Fatalf("epoch bump append failed: %v", err)
	}
	if got := m.FirstOpenTxnOffset(); got != -1 {
		t.Errorf("FirstOpenTxnOffset = %d, want -1: epoch bump must clear the abandoned transaction", got)
	}
}

func TestPPSM_CompleteTxnCommit(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 0, 4, true); err != nil {
		t.Fatalf("transactional append failed: %v", err)
	}

	completed, err := m.CompleteTxn(100, 0, false, 5, 5)
	if err != nil {
		t.Fatalf("CompleteTxn failed: %v", err)
	}
	if completed.IsAbort {
		t.Error("IsAbort = true, want false")
	}
	if completed.FirstOffset != 0 || completed.LastOffset != 4 {
		t.Errorf("range = [%d, %d], want [0, 4]", completed.FirstOffset, completed.LastOffset)
	}
	if m.HasSomeAbortedTransactions() {
		t.Error("a committed transaction must not appear in the aborted index")
	}
}

func TestPPSM_CompleteTxnAbortRecordsRange(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 10, 14, true); err != nil {
		t.Fatalf("transactional append failed: %v", err)
	}

	completed, err := m.CompleteTxn(100, 0, true, 15, 15)
	if err != nil {
		t.Fatalf("CompleteTxn failed: %v", err)
	}
	if !completed.IsAbort {
		t.Error("IsAbort = false, want true")
	}

	overlapping := m.AbortedTxnsOverlapping(10, 14)
	if len(overlapping) != 1 {
		t.Fatalf("AbortedTxnsOverlapping returned %d entries, want 1", len(overlapping))
	}
	if overlapping[0].FirstOffset != 10 || overlapping[0].LastOffset != 14 {
		t.Errorf("aborted range = [%d, %d], want [10, 14]", overlapping[0].FirstOffset, overlapping[0].LastOffset)
	}
}

func TestPPSM_CompleteTxnIsIdempotent(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 0, 0, true); err != nil {
		t.Fatalf("transactional append failed: %v", err)
	}
	if _, err := m.CompleteTxn(100, 0, false, 1, 1); err != nil {
		t.Fatalf("first CompleteTxn failed: %v", err)
	}

	// A redelivered marker for an already-closed transaction must succeed
	// as a no-op, not error, since markers are delivered at-least-once.
	completed, err := m.CompleteTxn(100, 0, false, 1, 1)
	if err != nil {
		t.Fatalf("duplicate CompleteTxn failed: %v", err)
	}
	if completed.ProducerID != 100 {
		t.Errorf("ProducerID = %d, want 100", completed.ProducerID)
	}
}

func TestPPSM_CompleteTxnUnknownProducer(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	_, err := m.CompleteTxn(999, 0, false, 1, 1)
	if !errors.Is(err, ErrUnknownProducerID) {
		t.Fatalf("err = %v, want ErrUnknownProducerID", err)
	}
}

func TestPPSM_FirstOpenTxnOffsetAcrossProducers(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	if _, err := m.ValidateAndUpdate(100, 0, 0, 0, 10, 10, true); err != nil {
		t.Fatalf("producer 100 append failed: %v", err)
	}
	if _, err := m.ValidateAndUpdate(200, 0, 0, 0, 3, 3, true); err != nil {
		t.Fatalf("producer 200 append failed: %v", err)
	}

	if got := m.FirstOpenTxnOffset(); got != 3 {
		t.Errorf("FirstOpenTxnOffset = %d, want 3 (the smaller of two open transactions)", got)
	}

	if _, err := m.CompleteTxn(200, 0, false, 4, 4); err != nil {
		t.Fatalf("CompleteTxn for producer 200 failed: %v", err)
	}
	if got := m.FirstOpenTxnOffset(); got != 10 {
		t.Errorf("FirstOpenTxnOffset = %d, want 10 once producer 200's transaction closes", got)
	}
}

func TestPPSM_SnapshotRoundTrip(t *testing.T) {
	m := NewProducerStateManager("topic-uuid-1")

	if _, err := m.ValidateAndUpdate(100, 2, 0, 3, 0, 3, true); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := m.CompleteTxn(100, 2, true, 4, 4); err != nil {
		t.Fatalf("CompleteTxn failed: %v", err)
	}
	if _, err := m.ValidateAndUpdate(200, 0, 0, 0, 5, 5, false); err != nil {
		t.Fatalf("append for producer 200 failed: %v", err)
	}

	snap := m.Snapshot(5)
	if snap.TopicUUID != "topic-uuid-1" {
		t.Errorf("TopicUUID = %s, want topic-uuid-1", snap.TopicUUID)
	}
	if len(snap.Producers) != 2 {
		t.Fatalf("Producers count = %d, want 2", len(snap.Producers))
	}
	if len(snap.AbortedIndex) != 1 {
		t.Fatalf("AbortedIndex count = %d, want 1", len(snap.AbortedIndex))
	}

	encoded, err := snap.MarshalSnapshot()
	if err != nil {
		t.Fatalf("MarshalSnapshot failed: %v", err)
	}
	decoded, err := UnmarshalProducerStateSnapshot(encoded)
	if err != nil {
		t.Fatalf("UnmarshalProducerStateSnapshot failed: %v", err)
	}

	fresh := NewProducerStateManager("stale-uuid")
	fresh.LoadFromSnapshot(decoded)

	if fresh.RecoveryPointOffset() != 6 {
		t.Errorf("RecoveryPointOffset = %d, want 6 (snapshot offset + 1)", fresh.RecoveryPointOffset())
	}
	if !fresh.HasSomeAbortedTransactions() {
		t.Error("restored PPSM lost its aborted-transaction index")
	}

	stats := fresh.Stats()
	if stats.ProducerCount != 2 {
		t.Errorf("Stats.ProducerCount = %d, want 2", stats.ProducerCount)
	}
	if stats.AbortedCount != 1 {
		t.Errorf("Stats.AbortedCount = %d, want 1", stats.AbortedCount)
	}

	// The producer that never opened a transaction must still validate its
	// next sequence correctly after recovery.
	if _, err := fresh.ValidateAndUpdate(200, 0, 1, 1, 6, 6, false); err != nil {
		t.Fatalf("post-recovery append for producer 200 failed: %v", err)
	}
}

func TestPPSM_NoProducerIDSkipsValidation(t *testing.T) {
	m := NewProducerStateManager("topic-uuid")

	info, err := m.ValidateAndUpdate(NoProducerID, 0, 0, 0, 7, 7, false)
	if err != nil {
		t.Fatalf("ValidateAndUpdate failed: %v", err)
	}
	if info.Outcome != AppendOK {
		t.Errorf("Outcome = %v, want AppendOK", info.Outcome)
	}
	if stats := m.Stats(); stats.ProducerCount != 0 {
		t.Errorf("Stats.ProducerCount = %d, want 0: a non-idempotent publish must not create an entry", stats.ProducerCount)
	}
}
