package driver

import (
	"encoding/binary"
	"fmt"
	"image"
	"sync"
	"time"

	"camcapture/utils"
)

// SimDriver emulates the camera SDK: a goroutine paced at the configured
// frame rate invokes the registered callback with synthetic frame records.
//
// Two hardware behaviours are reproduced on purpose:
//   - the payload buffer is reused across callbacks, so a callback that
//     keeps a reference instead of copying will observe corruption;
//   - with drop_every > 0 the sequence number occasionally skips ahead,
//     the way a saturated DMA ring loses frames.
type SimDriver struct {
	cfg *utils.CaptureConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	gradient []byte // static test pattern, copied into scratch per frame
	scratch  []byte // reused callback buffer, like the SDK's DMA ring slot
}

// NewSimDriver builds a simulated camera from the capture config.
func NewSimDriver(cfg *utils.CaptureConfig) *SimDriver {
	w := cfg.Camera.Resolution.Width
	h := cfg.Camera.Resolution.Height

	gradient := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gradient[y*w+x] = byte((x + y) & 0xff)
		}
	}

	return &SimDriver{
		cfg:      cfg,
		gradient: gradient,
		scratch:  make([]byte, recordSize(w, h)),
	}
}

func (d *SimDriver) BeginCapture(cb FrameCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("simulated camera: capture already running")
	}

	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.running = true
	go d.acquire(cb, d.stopCh, d.doneCh)

	utils.L().Info("simulated camera: capture started  (fps=%d, %dx%d, drop_every=%d)",
		d.cfg.Camera.FPS, d.cfg.Camera.Resolution.Width, d.cfg.Camera.Resolution.Height,
		d.cfg.Simulate.DropEvery)
	return nil
}

func (d *SimDriver) EndCapture() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	close(d.stopCh)
	<-d.doneCh
	d.running = false
	utils.L().Info("simulated camera: capture stopped")
	return nil
}

func (d *SimDriver) acquire(cb FrameCallback, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	interval := time.Second / time.Duration(d.cfg.Camera.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w := d.cfg.Camera.Resolution.Width
	h := d.cfg.Camera.Resolution.Height

	var seq uint64
	var produced int
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			seq++
			produced++
			if n := d.cfg.Simulate.DropEvery; n > 0 && produced%n == 0 {
				// pretend the DMA ring lost one frame
				seq++
			}
			d.fillRecord(seq, w, h)
			cb(seq, d.scratch)
		}
	}
}

// fillRecord renders frame seq into the reused scratch buffer.
func (d *SimDriver) fillRecord(seq uint64, w, h int) {
	binary.BigEndian.PutUint32(d.scratch[0:4], uint32(8+w*h))
	binary.BigEndian.PutUint32(d.scratch[4:8], uint32(w))
	binary.BigEndian.PutUint32(d.scratch[8:12], uint32(h))

	px := d.scratch[12:]
	copy(px, d.gradient)

	// moving vertical bar so the preview visibly animates
	bar := int(seq) % w
	for y := 0; y < h; y++ {
		px[y*w+bar] = 0xff
	}
}

func (d *SimDriver) FrameRate() int { return d.cfg.Camera.FPS }
func (d *SimDriver) Shutter() int   { return d.cfg.Camera.Shutter }

func (d *SimDriver) Resolution() Resolution {
	return Resolution{
		Width:  d.cfg.Camera.Resolution.Width,
		Height: d.cfg.Camera.Resolution.Height,
	}
}

func (d *SimDriver) Quantization() []int { return d.cfg.Camera.Quantization }

// Decode parses one raw record into a grayscale raster. The record is
// self-length-delimited: uint32 length of the remainder, uint32 width,
// uint32 height, then width*height 8-bit pixels.
func (d *SimDriver) Decode(payload []byte) (image.Image, error) {
	if len(payload) < 12 {
		return nil, fmt.Errorf("decode: record too short (%d bytes)", len(payload))
	}
	length := int(binary.BigEndian.Uint32(payload[0:4]))
	if len(payload) < 4+length {
		return nil, fmt.Errorf("decode: truncated record (want %d, have %d)", 4+length, len(payload))
	}
	w := int(binary.BigEndian.Uint32(payload[4:8]))
	h := int(binary.BigEndian.Uint32(payload[8:12]))
	if w <= 0 || h <= 0 || length != 8+w*h {
		return nil, fmt.Errorf("decode: inconsistent record header (%dx%d, length=%d)", w, h, length)
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, payload[12:12+w*h])
	return img, nil
}

// recordSize is the on-wire size of one raw record for a given geometry.
func recordSize(w, h int) int {
	return 12 + w*h
}
