package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ─── Capture config ─────────────────────────────────────────────────────

type SimulateConfig struct {
	Enabled bool `yaml:"enabled"`
	// DropEvery injects a sequence-number gap every N frames (0 = never).
	// Only meaningful for the simulated driver; lets drop accounting be
	// exercised without starving a real consumer.
	DropEvery int `yaml:"drop_every"`
}

type PreviewConfig struct {
	FPS         int `yaml:"fps"`
	JPEGQuality int `yaml:"jpeg_quality"`
}

type CameraConfig struct {
	FPS        int `yaml:"fps"`
	Shutter    int `yaml:"shutter"`
	Resolution struct {
		Width  int `yaml:"width"`
		Height int `yaml:"height"`
	} `yaml:"resolution"`
	Quantization []int `yaml:"quantization"`
}

// CaptureConfig is the top-level structure for capture.yaml.
type CaptureConfig struct {
	Camera   CameraConfig   `yaml:"camera"`
	Preview  PreviewConfig  `yaml:"preview"`
	Simulate SimulateConfig `yaml:"simulate"`
}

// ─── Storage config ─────────────────────────────────────────────────────

// StorageConfig is the top-level structure for storage.yaml.
type StorageConfig struct {
	Storage struct {
		BaseDir          string `yaml:"base_dir"`
		QueueCapacity    int    `yaml:"queue_capacity"`
		FlushIntervalMs  int    `yaml:"flush_interval_ms"`
		DequeueTimeoutMs int    `yaml:"dequeue_timeout_ms"`
		DrainTimeoutS    int    `yaml:"drain_timeout_s"`
		CSVBufferKB      int    `yaml:"csv_buffer_kb"`
	} `yaml:"storage"`
}

// ─── Loaders ────────────────────────────────────────────────────────────

// LoadCaptureConfig reads and parses capture.yaml.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capture config: %w", err)
	}
	var cfg CaptureConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse capture config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadStorageConfig reads and parses storage.yaml.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config: %w", err)
	}
	var cfg StorageConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse storage config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset capture fields with the stock sensor profile.
func (c *CaptureConfig) ApplyDefaults() {
	if c.Camera.FPS <= 0 {
		c.Camera.FPS = 500
	}
	if c.Camera.Shutter <= 0 {
		c.Camera.Shutter = c.Camera.FPS
	}
	if c.Camera.Resolution.Width <= 0 {
		c.Camera.Resolution.Width = 1246
	}
	if c.Camera.Resolution.Height <= 0 {
		c.Camera.Resolution.Height = 1080
	}
	if c.Preview.FPS <= 0 {
		c.Preview.FPS = 30
	}
	if c.Preview.JPEGQuality <= 0 {
		c.Preview.JPEGQuality = 80
	}
}

// ApplyDefaults fills unset storage fields with safe values.
func (c *StorageConfig) ApplyDefaults() {
	s := &c.Storage
	if s.BaseDir == "" {
		s.BaseDir = "./captures"
	}
	if s.QueueCapacity <= 0 {
		s.QueueCapacity = 4096
	}
	if s.FlushIntervalMs <= 0 {
		s.FlushIntervalMs = 1000
	}
	if s.DequeueTimeoutMs <= 0 {
		s.DequeueTimeoutMs = 200
	}
	if s.DrainTimeoutS <= 0 {
		s.DrainTimeoutS = 5
	}
	if s.CSVBufferKB <= 0 {
		s.CSVBufferKB = 256
	}
}
