package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoungMasterGandalf/thesis-work/internal/download"
	"github.com/YoungMasterGandalf/thesis-work/internal/fitsframe"
	"github.com/YoungMasterGandalf/thesis-work/internal/helio"
	"github.com/YoungMasterGandalf/thesis-work/internal/ledger"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueriesFromDatesCommand(t *testing.T) {
	dir := t.TempDir()
	dates := filepath.Join(dir, "dates.txt")
	require.NoError(t, os.WriteFile(dates, []byte("20110213\n"), 0o644))

	out, err := execute(t, "queries-from-dates", dates, "--out", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "queries_to_check.txt")+"\n", out)

	data, err := os.ReadFile(filepath.Join(dir, "queries_to_check.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hmi.v_45s[2011.02.13_00:00:00_TAI-2011.02.14_00:00:00_TAI]{Dopplergram}", string(data))
}

func TestCheckQueriesCommand_RequiresFile(t *testing.T) {
	_, err := execute(t, "check-queries")
	assert.Error(t, err)
}

func TestGapsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "exp_request", r.URL.Query().Get("op"))
		fmt.Fprint(w, `{"status":0,"requestid":"JSOC_1","dir":"/SUM1/D1","data":[
			{"record":"hmi.v_45s[2011.02.13_00:00:00_TAI][2]{Dopplergram}","filename":"a.fits"},
			{"record":"hmi.v_45s[2011.02.13_00:01:30_TAI][2]{Dopplergram}","filename":"b.fits"}]}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	conf := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(conf, []byte(fmt.Sprintf(`
origin: [250, 30]
shape: [8, 8]
time_step: 45
scale: [0.12, 0.12]
r_sun: 696
jsoc_url: %s
jsoc_email: someone@example.org
doppl_request: "hmi.v_45s[2011.02.13_00:00:00_TAI/2m]{Dopplergram}"
output_dir: %s
log:
  level: error
`, srv.URL, dir)), 0o644))

	out, err := execute(t, "gaps", "--config", conf)
	require.NoError(t, err)
	assert.Contains(t, out, "hmi.v_45s_2011.02.13_00.00.00: 2 records, 1 missing")
	assert.FileExists(t, filepath.Join(dir, "frame_info_files", "hmi.v_45s_2011.02.13_00.00.00_missing_frames_rec_times.txt"))
}

func TestLedgerCommand(t *testing.T) {
	path := ledger.Path(t.TempDir(), "hmi.v_45s_2011.02.13_00.00.00")
	require.NoError(t, ledger.Write(path, []download.Outcome{{
		RecordName: "hmi.v_45s[2011.02.13_00:00:00_TAI][2]{Dopplergram}",
		RemoteURL:  "http://jsoc/a.fits",
		LocalPath:  "/data/cube/a.fits.1",
		Attempts:   2,
		Bytes:      2880,
		Duration:   1500 * time.Millisecond,
	}}))

	out, err := execute(t, "ledger", path, "--config=")
	require.NoError(t, err)
	assert.Contains(t, out, "RECORD")
	assert.Contains(t, out, "/data/cube/a.fits.1")
	assert.Contains(t, out, "1.5s")
}

func TestInspectCommand(t *testing.T) {
	cube := helio.NewDatacube(2, helio.Shape{Rows: 3, Cols: 4})
	header := helio.NewHeader()
	header.Set(helio.KeyTimeStep, 45.0, "Scaling factor - t axis (time step) [seconds]")
	path, err := fitsframe.WriteDatacube(t.TempDir(), "cube", cube, header)
	require.NoError(t, err)

	out, err := execute(t, "inspect", path, "--config=")
	require.NoError(t, err)
	assert.Contains(t, out, "frames=2 rows=3 cols=4")
	assert.Contains(t, out, helio.KeyTimeStep)
}

func TestBackendCommandsRequireConfiguredBackend(t *testing.T) {
	t.Setenv("DATACUBE_CATALOG_DATABASE", "")
	t.Setenv("DATACUBE_S3_ENDPOINT", "")

	_, err := execute(t, "runs", "--config=")
	assert.ErrorContains(t, err, "catalog is not enabled")

	_, err = execute(t, "objects", "run-1", "--config=")
	assert.ErrorContains(t, err, "object storage is not enabled")
}
