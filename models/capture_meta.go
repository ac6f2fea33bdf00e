package models

// CaptureMetadata is the one-shot session sidecar: everything a reader
// needs to interpret the raw frame stream. Values are snapshotted from the
// driver when the session starts and stay constant for its lifetime.
type CaptureMetadata struct {
	Framerate    int   `json:"framerate"`
	Shutter      int   `json:"shutter"`
	Width        int   `json:"width"`
	Height       int   `json:"height"`
	Quantization []int `json:"quantization"`
}
