package models

// SequenceTracker detects gaps in the driver's monotonically increasing
// frame sequence numbers. Accounting is per recording session: a fresh
// tracker is created with every writer and never reused.
type SequenceTracker struct {
	lastSeq uint64
	seen    bool
}

// NewSequenceTracker returns a tracker with no baseline yet.
func NewSequenceTracker() *SequenceTracker {
	return &SequenceTracker{}
}

// Observe records seq and reports the distance to the previous observation.
// The first call establishes the baseline and reports (0, false). A diff
// greater than 1 means the driver skipped frames. A diff <= 0 signals a
// duplicate or out-of-order number; it is still accepted and the baseline
// is updated unconditionally, so downstream logs show exactly what the
// driver emitted.
func (t *SequenceTracker) Observe(seq uint64) (diff int64, dropped bool) {
	if !t.seen {
		t.seen = true
		t.lastSeq = seq
		return 0, false
	}
	diff = int64(seq) - int64(t.lastSeq)
	t.lastSeq = seq
	return diff, diff > 1
}

// SequenceRecord is one row of the CSV sequence log.
type SequenceRecord struct {
	SequenceNo uint64
	Diff       int64
	Dropped    bool
}

// DropMark is written to the drop column when frames went missing.
const DropMark = "*"

var _ CSVRowWriter = (*SequenceRecord)(nil)

// CSVHeader returns the ordered column names for the sequence log.
func (SequenceRecord) CSVHeader() []string {
	return []string{"SequenceNo", "diff", "drop"}
}

// CSVRow serialises one record into a CSV-compatible string slice.
// The drop column carries DropMark when diff > 1 and is empty otherwise.
func (r *SequenceRecord) CSVRow() []string {
	drop := ""
	if r.Dropped {
		drop = DropMark
	}
	return []string{
		utoa64(r.SequenceNo),
		itoa64(r.Diff),
		drop,
	}
}
