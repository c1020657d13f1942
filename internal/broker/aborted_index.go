// =============================================================================
// ABORTED-TRANSACTION INDEX — READ_COMMITTED FILTERING
// =============================================================================
//
// A read_committed consumer must be able to tell which records in a fetched
// range came from a transaction that was later aborted, without replaying the
// whole partition. Each PPSM keeps an ordered sequence of AbortedTxn ranges,
// sorted by firstOffset, so a fetch window can be answered with a binary
// search instead of a linear scan.
//
// This generalizes goqueue's uncommitted_tracker.go (which tracks individual
// offsets in a flat set, adequate for its ack/redelivery use case) into a
// range-indexed structure, because read_committed filtering needs ordered
// range queries and bulk purging by offset threshold, not point lookups.
//
// =============================================================================

package broker

import "sort"

// AbortedTxn is a closed range of offsets written by a producer transaction
// that was ultimately aborted. lastStableOffset is the LSO in effect at the
// time the abort marker was written — consumers use it to decide how far a
// fetch can safely be trusted without this range still being open.
type AbortedTxn struct {
	ProducerID       int64
	FirstOffset      int64
	LastOffset       int64
	LastStableOffset int64
}

// abortedIndex is the per-partition ordered sequence of AbortedTxn entries.
// Entries are append-only in firstOffset order (transactions complete in the
// order their markers are written, and markers are written after all of a
// transaction's data, so firstOffset order matches append order).
type abortedIndex struct {
	entries []AbortedTxn
}

func newAbortedIndex() *abortedIndex {
	return &abortedIndex{}
}

// append adds a newly aborted transaction. Callers must already hold the
// PPSM's lock — this type has no lock of its own, matching PartitionLog's
// single-writer-mailbox ownership of the whole PPSM.
func (a *abortedIndex) append(txn AbortedTxn) {
	// In the overwhelmingly common case this is already the largest
	// firstOffset; insertion sort degrades to an append.
	i := sort.Search(len(a.entries), func(i int) bool {
		return a.entries[i].FirstOffset > txn.FirstOffset
	})
	a.entries = append(a.entries, AbortedTxn{})
	copy(a.entries[i+1:], a.entries[i:])
	a.entries[i] = txn
}

// overlapping returns, in firstOffset order, every entry whose range
// intersects [fetchStart, fetchEnd] (inclusive-inclusive).
func (a *abortedIndex) overlapping(fetchStart, fetchEnd int64) []AbortedTxn {
	// First entry whose lastOffset could possibly reach fetchStart: binary
	// search for the first entry with lastOffset >= fetchStart is not directly
	// expressible over a firstOffset-sorted slice (lastOffset isn't monotonic
	// with firstOffset in general), so we narrow with firstOffset <= fetchEnd
	// and then filter the short remaining prefix.
	end := sort.Search(len(a.entries), func(i int) bool {
		return a.entries[i].FirstOffset > fetchEnd
	})
	var out []AbortedTxn
	for i := 0; i < end; i++ {
		if a.entries[i].LastOffset >= fetchStart {
			out = append(out, a.entries[i])
		}
	}
	return out
}

// purgeBefore drops every entry whose LastOffset is strictly less than
// minValidOffset and returns how many were removed. Entries are contiguous
// in firstOffset order at the head of the slice once their data has been
// trimmed from the log, since trim always advances the oldest-available
// offset monotonically.
func (a *abortedIndex) purgeBefore(minValidOffset int64) int {
	cut := 0
	for cut < len(a.entries) && a.entries[cut].LastOffset < minValidOffset {
		cut++
	}
	if cut == 0 {
		return 0
	}
	remaining := len(a.entries) - cut
	copy(a.entries, a.entries[cut:])
	a.entries = a.entries[:remaining]
	return cut
}

func (a *abortedIndex) hasAny() bool {
	return len(a.entries) > 0
}

func (a *abortedIndex) firstOffsets() []int64 {
	out := make([]int64, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.FirstOffset
	}
	return out
}

func (a *abortedIndex) snapshot() []AbortedTxn {
	out := make([]AbortedTxn, len(a.entries))
	copy(out, a.entries)
	return out
}

func (a *abortedIndex) restore(entries []AbortedTxn) {
	a.entries = append(a.entries[:0], entries...)
}
