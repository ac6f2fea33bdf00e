package controller

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCapture(t *testing.T) (*CaptureController, *fakeDriver) {
	t.Helper()
	drv := newFakeDriver()
	c := NewCaptureController(drv, testCaptureConfig(), testStorageConfig(t))
	return c, drv
}

func TestDispatchCopiesDriverBuffer(t *testing.T) {
	c, _ := newTestCapture(t)

	buf := testRecord(8, 6, 0x11)
	c.HandleFrame(1, buf)

	// driver reuses its buffer the moment the callback returns
	for i := range buf {
		buf[i] = 0xee
	}

	f := c.LatestFrame()
	require.NotNil(t, f)
	assert.Equal(t, uint64(1), f.SequenceNo)
	assert.Equal(t, testRecord(8, 6, 0x11), f.Payload)
}

func TestRecordedBytesMatchPayloadAtCallTime(t *testing.T) {
	c, _ := newTestCapture(t)

	name, err := c.StartRecording(FormatBinary)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	want := testRecord(8, 6, 0x42)
	buf := append([]byte(nil), want...)
	c.HandleFrame(1, buf)
	for i := range buf {
		buf[i] = 0x00 // scribble over the driver buffer immediately
	}

	require.NoError(t, c.StopRecording())

	base := filepath.Join(c.storageCfg.Storage.BaseDir, name)
	data, err := os.ReadFile(base + ".raw")
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

func TestStartWhileActiveIsRejected(t *testing.T) {
	c, _ := newTestCapture(t)

	name, err := c.StartRecording(FormatCSV)
	require.NoError(t, err)

	_, err = c.StartRecording(FormatCSV)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	// the running session is untouched
	st := c.Status()
	assert.True(t, st.Recording)
	assert.Equal(t, name, st.Session)

	require.NoError(t, c.StopRecording())
}

func TestStopWhileInactiveIsRejected(t *testing.T) {
	c, _ := newTestCapture(t)
	assert.ErrorIs(t, c.StopRecording(), ErrNotActive)

	st := c.Status()
	assert.False(t, st.Recording)
}

func TestBackToBackSessionsGetDistinctBaseNames(t *testing.T) {
	c, _ := newTestCapture(t)

	nameA, err := c.StartRecording(FormatCSV)
	require.NoError(t, err)
	require.NoError(t, c.StopRecording())

	nameB, err := c.StartRecording(FormatCSV)
	require.NoError(t, err)
	require.NoError(t, c.StopRecording())

	// second-granularity timestamps collide; the disambiguator must not
	assert.NotEqual(t, nameA, nameB)
}

func TestDispatchWhileNotRecordingOnlyFeedsPreview(t *testing.T) {
	c, _ := newTestCapture(t)

	c.HandleFrame(1, testRecord(8, 6, 0x01))
	c.HandleFrame(2, testRecord(8, 6, 0x02))

	st := c.Status()
	assert.Equal(t, uint64(2), st.FramesSeen)
	assert.Equal(t, uint64(0), st.FramesEnqueued)
	assert.Equal(t, uint64(2), c.LatestFrame().SequenceNo)
}

func TestDispatchToleratesNilPayload(t *testing.T) {
	c, _ := newTestCapture(t)

	assert.NotPanics(t, func() {
		c.HandleFrame(1, nil)
		c.HandleFrame(2, testRecord(8, 6, 0x03))
	})
	assert.Equal(t, uint64(2), c.LatestFrame().SequenceNo)
}

func TestStatusWhileRecording(t *testing.T) {
	c, _ := newTestCapture(t)

	_, err := c.StartRecording(FormatBinary)
	require.NoError(t, err)

	c.HandleFrame(1, testRecord(8, 6, 0x01))
	c.HandleFrame(2, testRecord(8, 6, 0x02))

	// the writer drains asynchronously
	assert.Eventually(t, func() bool {
		return c.Status().FramesWritten == 2
	}, 2*time.Second, 10*time.Millisecond)

	st := c.Status()
	assert.True(t, st.Recording)
	assert.Equal(t, "binary", st.Mode)
	assert.Equal(t, 500, st.FPS)
	assert.Equal(t, [2]int{8, 6}, st.Resolution)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, uint64(2), st.FramesEnqueued)

	require.NoError(t, c.StopRecording())
}

func TestCloseIsIdempotentAndStopsEverything(t *testing.T) {
	c, drv := newTestCapture(t)
	require.NoError(t, c.StartCapture())

	_, err := c.StartRecording(FormatCSV)
	require.NoError(t, err)

	c.Close()
	c.Close()

	assert.Equal(t, 1, drv.endCalls())
	assert.False(t, c.Status().Recording)
	assert.ErrorIs(t, c.StopRecording(), ErrNotActive)
}
