package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"camcapture/utils"
)

// API is the thin HTTP control plane over the capture service. It owns no
// state of its own: every handler delegates to the controllers, and the
// shutdown func hands /exit over to the process-wide close path.
type API struct {
	capture  *CaptureController
	preview  *PreviewController
	shutdown func()
}

// NewAPI wires the handlers to the capture service.
func NewAPI(capture *CaptureController, preview *PreviewController, shutdown func()) *API {
	return &API{capture: capture, preview: preview, shutdown: shutdown}
}

// Router builds the gin engine with all routes registered.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		// the stream endpoint is long-lived; logging every chunk would flood
		if c.Request.URL.Path != "/stream" {
			utils.L().Debug("http %s %s", c.Request.Method, c.Request.URL.Path)
		}
		c.Next()
	})

	r.GET("/", a.handleIndex)
	r.GET("/status", a.handleStatus)
	r.POST("/start", a.handleStart)
	r.POST("/stop", a.handleStop)
	r.POST("/exit", a.handleExit)
	r.GET("/stream", a.handleStream)
	return r
}

func (a *API) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, a.capture.Status())
}

type startRequest struct {
	Mode string `json:"mode"`
}

func (a *API) handleStart(c *gin.Context) {
	var req startRequest
	_ = c.ShouldBindJSON(&req) // empty body means default mode

	format, err := ParseOutputFormat(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "message": err.Error()})
		return
	}

	name, err := a.capture.StartRecording(format)
	if err != nil {
		// state errors are rejected operations, not server faults
		status := http.StatusInternalServerError
		if errors.Is(err, ErrAlreadyActive) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"ok": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": name})
}

func (a *API) handleStop(c *gin.Context) {
	if err := a.capture.StopRecording(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Stopped"})
}

func (a *API) handleExit(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Exiting..."})
	if a.shutdown != nil {
		go a.shutdown()
	}
}

// handleStream serves the MJPEG preview: a multipart/x-mixed-replace body
// where every part is the latest encoded JPEG, pushed at the preview tick
// rate whether or not the underlying frame changed. Browsers render it as
// a live image.
func (a *API) handleStream(c *gin.Context) {
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-store")

	w := c.Writer
	ticker := time.NewTicker(time.Second / time.Duration(a.preview.FPS()))
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, _ := a.preview.Latest()
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}

func (a *API) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

// indexHTML is the minimal operator page: live stream, mode selection,
// start/stop/exit controls and a status line polled once a second.
const indexHTML = `<!doctype html>
<html>
<head>
  <meta charset="utf-8">
  <title>High-Speed Capture</title>
  <style>
    body{font-family:system-ui,sans-serif;background:#0f1115;color:#e7eaf0;margin:0}
    header{display:flex;justify-content:space-between;padding:14px 18px;background:#171923;border-bottom:1px solid #2d3142}
    main{display:flex;gap:16px;padding:16px}
    .panel{background:#171923;border:1px solid #2d3142;border-radius:12px;padding:14px}
    button{background:#2b6cb0;color:#fff;border:none;border-radius:10px;padding:10px 14px;font-weight:600;cursor:pointer}
    button.secondary{background:#2d3748}
    button.danger{background:#c53030}
    .row{display:flex;gap:10px;align-items:center;margin:10px 0}
    img{border-radius:12px;border:1px solid #2d3142;max-width:100%}
  </style>
</head>
<body>
  <header>
    <div><strong>High-Speed Capture</strong></div>
    <div id="status">Loading status…</div>
  </header>
  <main>
    <div class="panel"><img id="stream" src="/stream" alt="Live Stream"></div>
    <div class="panel">
      <div class="row">
        <label><input type="radio" name="mode" value="binary" checked> Binary</label>
        <label><input type="radio" name="mode" value="csv"> CSV (seq log)</label>
      </div>
      <div class="row">
        <button id="startBtn">&#9679; Start Recording</button>
        <button id="stopBtn" class="secondary">&#9632; Stop Recording</button>
      </div>
      <div class="row"><button id="exitBtn" class="danger">Close Camera &amp; Exit</button></div>
      <div class="row"><div id="msg"></div></div>
    </div>
  </main>
<script>
async function updateStatus(){
  try{
    const r = await fetch('/status'); const j = await r.json();
    document.getElementById('status').textContent =
      'Recording: ' + (j.recording ? 'ON' : 'OFF') + ' | Mode: ' + j.mode +
      ' | ' + j.resolution[0] + 'x' + j.resolution[1] + ' @ ' + j.fps + ' fps';
  }catch(e){}
}
setInterval(updateStatus, 1000); updateStatus();
function mode(){ return document.querySelector('input[name="mode"]:checked').value; }
async function post(path, body){
  const r = await fetch(path, {method:'POST', headers:{'Content-Type':'application/json'},
    body: body ? JSON.stringify(body) : null});
  const j = await r.json();
  document.getElementById('msg').textContent = j.message || '';
  updateStatus();
}
document.getElementById('startBtn').onclick = () => post('/start', {mode: mode()});
document.getElementById('stopBtn').onclick = () => post('/stop');
document.getElementById('exitBtn').onclick = () => post('/exit');
</script>
</body>
</html>
`
