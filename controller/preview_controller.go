package controller

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"camcapture/models"
	"camcapture/services/driver"
	"camcapture/utils"
)

// PreviewController produces the observer-facing stream: a fixed-rate
// ticker (default 30 Hz) reads the latest captured frame, decodes it,
// scales it to the target resolution when needed and JPEG-encodes it into
// a single-slot cell consumed by the streaming endpoint.
//
// The preview runs completely decoupled from acquisition: the same frame
// may be encoded on several ticks when acquisition stalls, and frames are
// skipped wholesale when acquisition outruns the ticker. Decode or encode
// failure on one tick is logged and skipped; the previous preview stays on
// screen until the next successful tick.
type PreviewController struct {
	drv    driver.Driver
	source func() *models.Frame

	targetW int
	targetH int
	fps     int
	quality int

	jpegMu  sync.Mutex
	jpegSeq uint64
	jpegBuf []byte

	placeholder []byte

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	encoded uint64
	skipped uint64
	statsMu sync.Mutex
}

// NewPreviewController wires the preview to the driver's decoder and a
// latest-frame source (normally CaptureController.LatestFrame).
func NewPreviewController(drv driver.Driver, source func() *models.Frame, cfg *utils.CaptureConfig) *PreviewController {
	res := drv.Resolution()
	p := &PreviewController{
		drv:     drv,
		source:  source,
		targetW: res.Width,
		targetH: res.Height,
		fps:     cfg.Preview.FPS,
		quality: cfg.Preview.JPEGQuality,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	p.placeholder = p.encodeJPEG(image.NewGray(image.Rect(0, 0, res.Width, res.Height)))
	return p
}

// Start launches the preview goroutine for the lifetime of the process.
func (p *PreviewController) Start() {
	go p.run()
	utils.L().Info("preview started  (fps=%d, target=%dx%d, quality=%d)",
		p.fps, p.targetW, p.targetH, p.quality)
}

// Stop terminates the preview goroutine. Idempotent.
func (p *PreviewController) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

func (p *PreviewController) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.statsMu.Lock()
			enc, skip := p.encoded, p.skipped
			p.statsMu.Unlock()
			utils.L().Info("preview stopped  (encoded=%d, skipped=%d)", enc, skip)
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

// tick renders one preview image. The latest-frame slot is only touched
// long enough to copy the pointer out; decode and encode run lock-free so
// the dispatcher never waits on preview work.
func (p *PreviewController) tick() {
	f := p.source()
	if f == nil {
		return // nothing captured yet; placeholder covers the stream
	}

	img, err := p.drv.Decode(f.Payload)
	if err != nil {
		p.statsMu.Lock()
		p.skipped++
		p.statsMu.Unlock()
		utils.L().Warn("preview: decode frame %d: %v", f.SequenceNo, err)
		return
	}

	if b := img.Bounds(); b.Dx() != p.targetW || b.Dy() != p.targetH {
		dst := image.NewGray(image.Rect(0, 0, p.targetW, p.targetH))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	data := p.encodeJPEG(img)
	if data == nil {
		p.statsMu.Lock()
		p.skipped++
		p.statsMu.Unlock()
		return
	}

	p.jpegMu.Lock()
	p.jpegBuf = data
	p.jpegSeq = f.SequenceNo
	p.jpegMu.Unlock()

	p.statsMu.Lock()
	p.encoded++
	p.statsMu.Unlock()
}

func (p *PreviewController) encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		utils.L().Warn("preview: jpeg encode: %v", err)
		return nil
	}
	return buf.Bytes()
}

// Latest returns the newest encoded preview and its sequence number. A
// black placeholder is served until the first successful tick, so the
// stream never emits a blank or garbage chunk.
func (p *PreviewController) Latest() ([]byte, uint64) {
	p.jpegMu.Lock()
	defer p.jpegMu.Unlock()
	if p.jpegBuf == nil {
		return p.placeholder, 0
	}
	return p.jpegBuf, p.jpegSeq
}

// FPS returns the preview tick rate.
func (p *PreviewController) FPS() int { return p.fps }
