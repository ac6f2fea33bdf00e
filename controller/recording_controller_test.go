package controller

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camcapture/models"
	"camcapture/utils"
)

func testMeta() models.CaptureMetadata {
	return models.CaptureMetadata{
		Framerate:    500,
		Shutter:      500,
		Width:        8,
		Height:       6,
		Quantization: []int{1, 2, 3},
	}
}

func readSequenceCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVSessionLogsDiffAndDrop(t *testing.T) {
	cfg := testStorageConfig(t)
	base := filepath.Join(cfg.Storage.BaseDir, "session-a")

	w, err := NewRecordingWriter(base, FormatCSV, testMeta(), cfg)
	require.NoError(t, err)
	w.Start()

	for _, seq := range []uint64{1, 2, 3, 5, 6} {
		w.Enqueue(&models.Frame{SequenceNo: seq, TimestampNs: utils.NowNano()})
	}
	require.NoError(t, w.Stop(2*time.Second))

	rows := readSequenceCSV(t, base+".csv")
	require.Len(t, rows, 6) // header + 5 data rows
	assert.Equal(t, []string{"SequenceNo", "diff", "drop"}, rows[0])
	assert.Equal(t, []string{"1", "0", ""}, rows[1])
	assert.Equal(t, []string{"2", "1", ""}, rows[2])
	assert.Equal(t, []string{"3", "1", ""}, rows[3])
	assert.Equal(t, []string{"5", "2", "*"}, rows[4])
	assert.Equal(t, []string{"6", "1", ""}, rows[5])

	assert.Equal(t, uint64(5), w.FramesWritten())
	assert.Equal(t, uint64(1), w.DropsLogged())
}

func TestBinarySessionPersistsPayloadsVerbatim(t *testing.T) {
	cfg := testStorageConfig(t)
	base := filepath.Join(cfg.Storage.BaseDir, "session-b")

	w, err := NewRecordingWriter(base, FormatBinary, testMeta(), cfg)
	require.NoError(t, err)
	w.Start()

	recA := testRecord(8, 6, 0xaa)
	recB := testRecord(8, 6, 0xbb)
	w.Enqueue(&models.Frame{SequenceNo: 1, Payload: recA})
	w.Enqueue(&models.Frame{SequenceNo: 2, Payload: recB})
	require.NoError(t, w.Stop(2*time.Second))

	data, err := os.ReadFile(base + ".raw")
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, recA...), recB...), data)

	// one-shot metadata sidecar
	raw, err := os.ReadFile(base + ".json")
	require.NoError(t, err)
	var meta models.CaptureMetadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, testMeta(), meta)
}

func TestSessionOverloadKeepsOrderAndBoundsLoss(t *testing.T) {
	cfg := testStorageConfig(t)
	cfg.Storage.QueueCapacity = 16
	base := filepath.Join(cfg.Storage.BaseDir, "session-c")

	w, err := NewRecordingWriter(base, FormatCSV, testMeta(), cfg)
	require.NoError(t, err)
	w.Start()

	const produced = 500
	for seq := uint64(1); seq <= produced; seq++ {
		w.Enqueue(&models.Frame{SequenceNo: seq})
	}
	require.NoError(t, w.Stop(2*time.Second))

	rows := readSequenceCSV(t, base+".csv")
	data := rows[1:]
	assert.LessOrEqual(t, len(data), produced)
	assert.NotEmpty(t, data)

	// persisted sequence numbers are strictly increasing: overflow makes
	// gaps, never reorders
	prev := int64(-1)
	drops := 0
	for _, row := range data {
		seq, err := strconv.ParseInt(row[0], 10, 64)
		require.NoError(t, err)
		assert.Greater(t, seq, prev)
		prev = seq
		if row[2] == models.DropMark {
			drops++
		}
	}
	if w.QueueEvicted() > 0 {
		assert.Greater(t, drops, 0, "evictions must surface as drop rows")
	}
}

func TestWriterDropsFramesEnqueuedAfterStop(t *testing.T) {
	cfg := testStorageConfig(t)
	base := filepath.Join(cfg.Storage.BaseDir, "session-d")

	w, err := NewRecordingWriter(base, FormatCSV, testMeta(), cfg)
	require.NoError(t, err)
	w.Start()

	w.Enqueue(&models.Frame{SequenceNo: 1})
	require.NoError(t, w.Stop(2*time.Second))

	// stopping means no new frames; this must not reopen anything
	w.Enqueue(&models.Frame{SequenceNo: 2})
	require.NoError(t, w.Stop(2*time.Second)) // idempotent

	rows := readSequenceCSV(t, base+".csv")
	assert.Len(t, rows, 2) // header + the one pre-stop frame
}

func TestOpenFailureIsFatalForSession(t *testing.T) {
	cfg := testStorageConfig(t)
	base := filepath.Join(cfg.Storage.BaseDir, "no", "such", "dir", "session")

	_, err := NewRecordingWriter(base, FormatCSV, testMeta(), cfg)
	assert.Error(t, err)

	_, err = NewRecordingWriter(base, FormatBinary, testMeta(), cfg)
	assert.Error(t, err)
}

func TestParseOutputFormat(t *testing.T) {
	f, err := ParseOutputFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, f)

	f, err = ParseOutputFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseOutputFormat("Binary")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, f)

	_, err = ParseOutputFormat("avi")
	assert.Error(t, err)
}
