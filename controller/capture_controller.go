package controller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"camcapture/models"
	"camcapture/services/driver"
	"camcapture/utils"
)

var (
	// ErrAlreadyActive is returned by StartRecording when a session runs.
	ErrAlreadyActive = errors.New("recording already active")
	// ErrNotActive is returned by StopRecording with no session running.
	ErrNotActive = errors.New("recording not active")
)

// CaptureController owns the camera driver handle, the latest-frame slot
// feeding the preview path, and the recording-session state. It is the
// explicit replacement for the ambient globals a capture script would
// accumulate: construct one, pass it by reference.
//
// HandleFrame is the acquisition hot path. It runs on the driver's own
// goroutine at full sensor rate and must return quickly: copy the payload,
// overwrite the latest slot, hand the frame to the active writer's queue.
// No decoding, no I/O, no unbounded waits.
type CaptureController struct {
	drv        driver.Driver
	captureCfg *utils.CaptureConfig
	storageCfg *utils.StorageConfig

	latestMu sync.Mutex
	latest   *models.Frame

	// recMu serialises Start/StopRecording; the dispatcher reads the
	// writer through the atomic pointer and either sees nil or a fully
	// constructed writer, never a torn state.
	recMu       sync.Mutex
	writer      atomic.Pointer[RecordingWriter]
	sessionID   string
	sessionName string
	lastFormat  OutputFormat

	closeOnce sync.Once

	framesSeen     atomic.Uint64
	framesEnqueued atomic.Uint64
}

// NewCaptureController wires the controller to a driver and its configs.
func NewCaptureController(drv driver.Driver, captureCfg *utils.CaptureConfig, storageCfg *utils.StorageConfig) *CaptureController {
	return &CaptureController{
		drv:        drv,
		captureCfg: captureCfg,
		storageCfg: storageCfg,
		lastFormat: FormatBinary,
	}
}

// StartCapture begins DMA acquisition with HandleFrame as the callback.
func (c *CaptureController) StartCapture() error {
	if err := c.drv.BeginCapture(c.HandleFrame); err != nil {
		return fmt.Errorf("begin capture: %w", err)
	}
	return nil
}

// HandleFrame is invoked by the driver once per captured frame. The
// payload buffer belongs to the driver and may be reused the moment this
// returns, so it is copied exactly once here; everything downstream shares
// the copy. A panic anywhere inside must not unwind the driver's
// acquisition goroutine, so the dispatch degrades to a no-op for that one
// frame.
func (c *CaptureController) HandleFrame(seq uint64, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			utils.L().Error("dispatch: recovered from %v (frame %d dropped)", r, seq)
		}
	}()

	c.framesSeen.Add(1)

	f := &models.Frame{
		SequenceNo:  seq,
		TimestampNs: utils.NowNano(),
		Payload:     append([]byte(nil), payload...),
	}

	c.latestMu.Lock()
	c.latest = f
	c.latestMu.Unlock()

	if w := c.writer.Load(); w != nil {
		w.Enqueue(f)
		c.framesEnqueued.Add(1)
	}
}

// LatestFrame returns the most recent frame, or nil before the first
// arrival. Frames are immutable once published, so callers may hold the
// returned pointer without copying.
func (c *CaptureController) LatestFrame() *models.Frame {
	c.latestMu.Lock()
	defer c.latestMu.Unlock()
	return c.latest
}

// StartRecording opens a new recording session. Fails with
// ErrAlreadyActive when one is running and propagates file-open failures.
// The writer is fully constructed and draining before the dispatcher can
// see it, so there is no window with the flag up and no writer behind it.
func (c *CaptureController) StartRecording(format OutputFormat) (string, error) {
	c.recMu.Lock()
	defer c.recMu.Unlock()

	if c.writer.Load() != nil {
		return "", ErrAlreadyActive
	}

	res := c.drv.Resolution()
	if err := os.MkdirAll(c.storageCfg.Storage.BaseDir, 0755); err != nil {
		return "", fmt.Errorf("start recording: %w", err)
	}
	base := utils.SessionBasePath(c.storageCfg.Storage.BaseDir, c.drv.FrameRate(), res.Width, res.Height)

	meta := models.CaptureMetadata{
		Framerate:    c.drv.FrameRate(),
		Shutter:      c.drv.Shutter(),
		Width:        res.Width,
		Height:       res.Height,
		Quantization: c.drv.Quantization(),
	}

	w, err := NewRecordingWriter(base, format, meta, c.storageCfg)
	if err != nil {
		return "", fmt.Errorf("start recording: %w", err)
	}
	w.Start()

	c.sessionID = uuid.NewString()
	c.sessionName = filepath.Base(base)
	c.lastFormat = format
	c.writer.Store(w)

	utils.L().Info("recording session started  (id=%s, name=%s, mode=%s)",
		c.sessionID, c.sessionName, format)
	return c.sessionName, nil
}

// StopRecording ends the active session: the writer stops accepting new
// frames, drains its backlog within the configured timeout and closes its
// files; only then are the flag and reference cleared. A drain timeout
// force-closes the files and is logged, not propagated.
func (c *CaptureController) StopRecording() error {
	c.recMu.Lock()
	defer c.recMu.Unlock()

	w := c.writer.Load()
	if w == nil {
		return ErrNotActive
	}

	timeout := time.Duration(c.storageCfg.Storage.DrainTimeoutS) * time.Second
	if err := w.Stop(timeout); err != nil {
		utils.L().Error("stop recording: %v", err)
	}

	c.writer.Store(nil)
	utils.L().Info("recording session stopped  (id=%s, frames_written=%d)",
		c.sessionID, w.FramesWritten())
	c.sessionID = ""
	return nil
}

// Status is the control-plane snapshot served by GET /status.
type Status struct {
	Recording  bool   `json:"recording"`
	Mode       string `json:"mode"`
	FPS        int    `json:"fps"`
	Resolution [2]int `json:"resolution"`
	SessionID  string `json:"session_id,omitempty"`
	Session    string `json:"session,omitempty"`

	FramesSeen     uint64 `json:"frames_seen"`
	FramesEnqueued uint64 `json:"frames_enqueued"`
	FramesWritten  uint64 `json:"frames_written"`
	QueueEvicted   uint64 `json:"queue_evicted"`
}

// Status reports the current capture and recording state.
func (c *CaptureController) Status() Status {
	c.recMu.Lock()
	w := c.writer.Load()
	id, name, format := c.sessionID, c.sessionName, c.lastFormat
	c.recMu.Unlock()

	res := c.drv.Resolution()
	st := Status{
		Recording:      w != nil,
		Mode:           format.String(),
		FPS:            c.drv.FrameRate(),
		Resolution:     [2]int{res.Width, res.Height},
		FramesSeen:     c.framesSeen.Load(),
		FramesEnqueued: c.framesEnqueued.Load(),
	}
	if w != nil {
		st.SessionID = id
		st.Session = name
		st.FramesWritten = w.FramesWritten()
		st.QueueEvicted = w.QueueEvicted()
	}
	return st
}

// LogStats prints dispatcher counters, mirroring the periodic stats tick.
func (c *CaptureController) LogStats() {
	utils.L().Info("  dispatch  seen=%d  enqueued=%d", c.framesSeen.Load(), c.framesEnqueued.Load())
	if w := c.writer.Load(); w != nil {
		utils.L().Info("  recording written=%d  gaps=%d  evicted=%d",
			w.FramesWritten(), w.DropsLogged(), w.QueueEvicted())
	}
}

// Close releases everything the controller owns: stops any active session
// through the normal drain path, then ends acquisition. Double close is a
// no-op, and process shutdown funnels through here.
func (c *CaptureController) Close() {
	c.closeOnce.Do(func() {
		if err := c.StopRecording(); err != nil && !errors.Is(err, ErrNotActive) {
			utils.L().Error("close: stop recording: %v", err)
		}
		if err := c.drv.EndCapture(); err != nil {
			utils.L().Error("close: end capture: %v", err)
		}
	})
}
