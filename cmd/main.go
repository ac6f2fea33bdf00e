package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"camcapture/controller"
	"camcapture/services/driver"
	"camcapture/utils"
)

func main() {
	// ── CLI flags ────────────────────────────────────────────────────
	capturePath := flag.String("capture", "config/capture.yaml", "path to capture.yaml")
	storagePath := flag.String("storage", "config/storage.yaml", "path to storage.yaml")
	addr := flag.String("addr", "127.0.0.1:5000", "HTTP listen address")
	logFile := flag.String("log", "", "optional log file path (stdout is always included)")
	logLevel := flag.String("level", "info", "log level: debug|info|warn|error")
	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────
	logger := utils.InitLogger(utils.ParseLevel(*logLevel), *logFile)
	defer logger.Close()

	utils.L().Info("═══════════════════════════════════════════════════")
	utils.L().Info("  CamCapture  ·  High-Speed Camera Recorder")
	utils.L().Info("  GOMAXPROCS=%d  ·  PID=%d", runtime.GOMAXPROCS(0), os.Getpid())
	utils.L().Info("═══════════════════════════════════════════════════")

	// ── Load configs ─────────────────────────────────────────────────
	captureCfg, err := utils.LoadCaptureConfig(*capturePath)
	if err != nil {
		utils.L().Fatal("load capture config: %v", err)
	}
	storageCfg, err := utils.LoadStorageConfig(*storagePath)
	if err != nil {
		utils.L().Fatal("load storage config: %v", err)
	}

	// Resolve relative base_dir to absolute.
	if !filepath.IsAbs(storageCfg.Storage.BaseDir) {
		abs, _ := filepath.Abs(storageCfg.Storage.BaseDir)
		storageCfg.Storage.BaseDir = abs
	}
	if err := os.MkdirAll(storageCfg.Storage.BaseDir, 0755); err != nil {
		utils.L().Fatal("create capture dir %s: %v", storageCfg.Storage.BaseDir, err)
	}

	// ── Camera driver ────────────────────────────────────────────────
	drv, err := driver.New(captureCfg)
	if err != nil {
		utils.L().Fatal("open camera: %v", err)
	}

	// ── Service assembly ─────────────────────────────────────────────
	//
	//  driver callback ──► CaptureController (dispatch, never blocks)
	//        │                     │
	//        │        latest-frame slot        frame queue (if recording)
	//        │                     │                    │
	//        │            PreviewController      RecordingWriter
	//        │              (30 Hz JPEG)      (drain + durability sync)
	//        │                     │
	//        └───────────── GET /stream, /status, /start, /stop

	capture := controller.NewCaptureController(drv, captureCfg, storageCfg)
	if err := capture.StartCapture(); err != nil {
		utils.L().Fatal("start capture: %v", err)
	}

	preview := controller.NewPreviewController(drv, capture.LatestFrame, captureCfg)
	preview.Start()

	// ── Shutdown plumbing ────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var shutdownOnce sync.Once
	requestShutdown := func() { shutdownOnce.Do(cancel) }

	// ── HTTP server ──────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	api := controller.NewAPI(capture, preview, requestShutdown)
	srv := &http.Server{Addr: *addr, Handler: api.Router()}

	go func() {
		utils.L().Info("http server listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.L().Error("http server: %v", err)
			requestShutdown()
		}
	}()

	utils.L().Info("capture service running — press Ctrl+C to stop")

	// ── Stats ticker + main event loop ───────────────────────────────
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case sig := <-sigCh:
			utils.L().Info("received signal: %v — shutting down…", sig)
			requestShutdown()
			goto shutdown

		case <-ctx.Done():
			goto shutdown

		case <-statsTicker.C:
			utils.L().Info("── stats ─────────────────────────")
			capture.LogStats()
			utils.L().Info("──────────────────────────────────")
		}
	}

shutdown:
	// One close path for signals and POST /exit alike: stop serving,
	// drain any recording, stop preview, release the camera.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		utils.L().Error("http shutdown: %v", err)
	}

	capture.Close()
	preview.Stop()

	utils.L().Info("capture service stopped")
}
