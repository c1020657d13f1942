// =============================================================================
// TRANSACTIONAL ERROR TAXONOMY
// =============================================================================
//
// Every fencing, idempotence, and state error the transactional core returns
// corresponds to a real Kafka protocol error code. Rather than inventing a
// parallel enum, each sentinel below is backed by a github.com/twmb/franz-go/pkg/kerr
// value so callers translating to the wire protocol (out of scope here) can map
// 1:1 by identity instead of string matching.
//
// =============================================================================

package broker

import (
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kerr"
)

// TxnError pairs an internal sentinel with the Kafka protocol error it maps to.
type TxnError struct {
	// Kind is the stable, comparable sentinel (use errors.Is against the
	// package-level vars below, never against Kind directly).
	Kind error
	// Wire is the Kafka protocol error this condition surfaces as.
	Wire *kerr.Error
}

func (e *TxnError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Kind.Error(), e.Wire.Message)
}

func (e *TxnError) Unwrap() error { return e.Kind }

func newTxnError(kind error, wire *kerr.Error) *TxnError {
	return &TxnError{Kind: kind, Wire: wire}
}

// Fencing errors.
var (
	errProducerFencedKind       = errors.New("producer fenced: a newer epoch is active for this transactional id")
	errInvalidProducerEpochKind = errors.New("invalid producer epoch")
	errCoordinatorFencedKind    = errors.New("transaction coordinator fenced: a newer coordinator epoch owns this transaction")

	ErrProducerFenced       = newTxnError(errProducerFencedKind, kerr.ProducerFenced)
	ErrInvalidProducerEpoch = newTxnError(errInvalidProducerEpochKind, kerr.InvalidProducerEpoch)
	ErrCoordinatorFenced    = newTxnError(errCoordinatorFencedKind, kerr.TransactionCoordinatorFenced)
)

// Idempotence errors.
var (
	errDuplicateSequenceKind = errors.New("duplicate sequence number")
	errOutOfOrderSeqKind     = errors.New("out of order sequence number")

	ErrDuplicateSequenceNumber  = newTxnError(errDuplicateSequenceKind, kerr.DuplicateSequenceNumber)
	ErrOutOfOrderSequenceNumber = newTxnError(errOutOfOrderSeqKind, kerr.OutOfOrderSequenceNumber)
)

// State errors.
var (
	errInvalidTxnStateKind    = errors.New("invalid transaction state for requested operation")
	errUnknownProducerIDKind  = errors.New("unknown producer id")
	errTransactionNotFoundKnd = errors.New("transaction not found")

	ErrInvalidTxnState     = newTxnError(errInvalidTxnStateKind, kerr.InvalidTxnState)
	ErrUnknownProducerID   = newTxnError(errUnknownProducerIDKind, kerr.UnknownProducerID)
	ErrTransactionNotFound = errTransactionNotFoundKnd
)

// Transient / load errors.
var (
	errCoordinatorLoadingKind = errors.New("coordinator still loading state")
	errCoordinatorClosedKind  = errors.New("coordinator closed")

	ErrCoordinatorLoadInProgress = newTxnError(errCoordinatorLoadingKind, kerr.CoordinatorLoadInProgress)
	ErrCoordinatorClosed         = errCoordinatorClosedKind
)

// PartitionLog lifecycle / corruption errors (no wire mapping — these never
// leave the broker process, a network layer in front of it would surface a
// retriable NOT_LEADER_OR_FOLLOWER or similar instead).
var (
	ErrPartitionNotReady     = errors.New("partition log not initialised")
	ErrPartitionUnloaded     = errors.New("partition log unloaded")
	ErrSnapshotTopicMismatch = errors.New("snapshot topic uuid does not match current partition")
)
