package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NowNano returns the current time as nanoseconds since Unix epoch.
// Uses monotonic-aware time internally but returns wall-clock nanos
// so that timestamps are portable across processes.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// NanoToTime converts a nanosecond Unix timestamp back to time.Time.
func NanoToTime(ns int64) time.Time {
	return time.Unix(0, ns)
}

// sessionExtensions are every file a session base name may own. A base is
// considered taken if any of them exists.
var sessionExtensions = []string{".csv", ".raw", ".json"}

// SessionBasePath builds a unique output base path for one recording
// session inside dir:
//
//	<YYYY-MM-DD_HH-MM-SS>_<fps>fps_<W>x<H>_capture
//
// Timestamps have second granularity, so two sessions started within the
// same second would otherwise collide; a monotonic `_2`, `_3`, … suffix is
// appended until the base is free.
func SessionBasePath(dir string, fps, width, height int) string {
	ts := time.Now().Format("2006-01-02_15-04-05")
	name := fmt.Sprintf("%s_%dfps_%dx%d_capture", ts, fps, width, height)

	base := filepath.Join(dir, name)
	for n := 2; sessionBaseTaken(base); n++ {
		base = filepath.Join(dir, fmt.Sprintf("%s_%d", name, n))
	}
	return base
}

func sessionBaseTaken(base string) bool {
	for _, ext := range sessionExtensions {
		if _, err := os.Stat(base + ext); err == nil {
			return true
		}
	}
	return false
}
