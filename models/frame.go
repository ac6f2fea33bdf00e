package models

// Frame is one camera acquisition unit: a driver-assigned sequence number
// plus the raw encoded payload. The payload travels through the pipeline
// by reference and is never mutated after the frame is built, so the
// dispatcher must hand out a private copy of the driver's buffer.
type Frame struct {
	SequenceNo  uint64 `json:"sequence_no"`
	TimestampNs int64  `json:"timestamp_ns"` // nanosecond-precision arrival time
	Payload     []byte `json:"-"`            // raw frame container bytes, NOT serialised
}

// WithoutPayload returns a metadata-only copy of the frame. Used on the
// sequence-log path, where only the accounting columns are persisted.
func (f *Frame) WithoutPayload() *Frame {
	return &Frame{
		SequenceNo:  f.SequenceNo,
		TimestampNs: f.TimestampNs,
	}
}
