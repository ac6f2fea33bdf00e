package controller

import (
	"encoding/binary"
	"errors"
	"image"
	"sync"
	"testing"

	"camcapture/services/driver"
	"camcapture/utils"
)

// fakeDriver is a hand-driven camera: tests invoke the dispatcher
// directly instead of waiting on a paced goroutine.
type fakeDriver struct {
	mu      sync.Mutex
	began   int
	ended   int
	cb      driver.FrameCallback
	decode  func([]byte) (image.Image, error)
	fps     int
	shutter int
	res     driver.Resolution
	quant   []int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		fps:     500,
		shutter: 500,
		res:     driver.Resolution{Width: 8, Height: 6},
		quant:   []int{1, 2, 3},
	}
}

func (d *fakeDriver) BeginCapture(cb driver.FrameCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.began++
	d.cb = cb
	return nil
}

func (d *fakeDriver) EndCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ended++
	return nil
}

func (d *fakeDriver) endCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ended
}

func (d *fakeDriver) FrameRate() int                { return d.fps }
func (d *fakeDriver) Shutter() int                  { return d.shutter }
func (d *fakeDriver) Resolution() driver.Resolution { return d.res }
func (d *fakeDriver) Quantization() []int           { return d.quant }

func (d *fakeDriver) Decode(payload []byte) (image.Image, error) {
	if d.decode != nil {
		return d.decode(payload)
	}
	return decodeTestRecord(payload)
}

// testRecord builds one raw frame record in the driver container format:
// uint32 length, uint32 width, uint32 height, then width*height pixels.
func testRecord(w, h int, fill byte) []byte {
	rec := make([]byte, 12+w*h)
	binary.BigEndian.PutUint32(rec[0:4], uint32(8+w*h))
	binary.BigEndian.PutUint32(rec[4:8], uint32(w))
	binary.BigEndian.PutUint32(rec[8:12], uint32(h))
	for i := range rec[12:] {
		rec[12+i] = fill
	}
	return rec
}

func decodeTestRecord(payload []byte) (image.Image, error) {
	if len(payload) < 12 {
		return nil, errors.New("decode: record too short")
	}
	w := int(binary.BigEndian.Uint32(payload[4:8]))
	h := int(binary.BigEndian.Uint32(payload[8:12]))
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, payload[12:])
	return img, nil
}

func testCaptureConfig() *utils.CaptureConfig {
	cfg := &utils.CaptureConfig{}
	cfg.Camera.FPS = 500
	cfg.Camera.Resolution.Width = 8
	cfg.Camera.Resolution.Height = 6
	cfg.Preview.FPS = 100
	cfg.ApplyDefaults()
	return cfg
}

func testStorageConfig(t *testing.T) *utils.StorageConfig {
	t.Helper()
	cfg := &utils.StorageConfig{}
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Storage.QueueCapacity = 64
	cfg.Storage.FlushIntervalMs = 20
	cfg.Storage.DequeueTimeoutMs = 10
	cfg.Storage.DrainTimeoutS = 2
	cfg.ApplyDefaults()
	return cfg
}
