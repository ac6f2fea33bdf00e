// Package driver abstracts the high-speed camera SDK. The capture
// pipeline only ever sees this interface: an opaque source of sequence
// numbers, raw frame records and a decode function.
package driver

import (
	"errors"
	"image"

	"camcapture/utils"
)

// FrameCallback is invoked by the driver once per captured frame, on the
// driver's own acquisition goroutine. The payload buffer is only valid for
// the duration of the call; the callback must copy it before returning and
// must never block.
type FrameCallback func(seq uint64, payload []byte)

// Resolution is the sensor geometry in pixels.
type Resolution struct {
	Width  int
	Height int
}

// Driver is the camera/decoder collaborator.
type Driver interface {
	// BeginCapture starts DMA acquisition and registers the per-frame
	// callback. Returns an error if acquisition is already running.
	BeginCapture(cb FrameCallback) error

	// EndCapture stops acquisition and releases the device. Idempotent.
	EndCapture() error

	FrameRate() int
	Shutter() int
	Resolution() Resolution
	Quantization() []int

	// Decode turns one raw frame record into a displayable raster.
	Decode(payload []byte) (image.Image, error)
}

// ErrNoDevice is returned when no camera backend is available.
var ErrNoDevice = errors.New("no camera backend available")

// New selects a driver from config. Only the simulated backend is built
// into this binary; the hardware SDK binding plugs in behind the same
// interface.
func New(cfg *utils.CaptureConfig) (Driver, error) {
	if cfg.Simulate.Enabled {
		return NewSimDriver(cfg), nil
	}
	return nil, ErrNoDevice
}
