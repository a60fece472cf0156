package jsoc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRequest = "hmi.v_45s[2011.02.13_00:00:00_TAI/3m]{Dopplergram}"

func TestReport_WithGaps(t *testing.T) {
	records := []string{
		"hmi.v_45s[2011.02.13_00:00:00_TAI][2]{Dopplergram}",
		"hmi.v_45s[2011.02.13_00:00:45_TAI][2]{Dopplergram}",
		"hmi.v_45s[2011.02.13_00:02:15_TAI][2]{Dopplergram}",
	}
	report, err := NewReport(testRequest, records, 45*time.Second)
	require.NoError(t, err)
	assert.Len(t, report.Missing, 1)

	dir := filepath.Join(t.TempDir(), FrameInfoDir)
	paths, err := report.Write(dir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	rec, err := os.ReadFile(filepath.Join(dir, "hmi.v_45s_2011.02.13_00.00.00_rec_times.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2011-02-13 00:00:00\n2011-02-13 00:00:45\n2011-02-13 00:02:15\n", string(rec))

	missing, err := os.ReadFile(filepath.Join(dir, "hmi.v_45s_2011.02.13_00.00.00_missing_frames_rec_times.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2011-02-13 00:01:30\n", string(missing))
}

func TestReport_NoGapsWritesOnlyRecTimes(t *testing.T) {
	records := []string{
		"hmi.v_45s[2011.02.13_00:00:00_TAI][2]{Dopplergram}",
		"hmi.v_45s[2011.02.13_00:00:45_TAI][2]{Dopplergram}",
	}
	report, err := NewReport(testRequest, records, 45*time.Second)
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := report.Write(dir)
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	_, err = os.Stat(filepath.Join(dir, "hmi.v_45s_2011.02.13_00.00.00_missing_frames_rec_times.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestReport_MalformedRecord(t *testing.T) {
	_, err := NewReport(testRequest, []string{"no-time-here"}, 45*time.Second)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}
