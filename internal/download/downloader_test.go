package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/jsoc"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedTransport fails a URL a fixed number of times before serving it.
type scriptedTransport struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	body     string
}

func newScripted(body string) *scriptedTransport {
	return &scriptedTransport{failures: map[string]int{}, calls: map[string]int{}, body: body}
}

func (s *scriptedTransport) Fetch(_ context.Context, remoteURL string, w io.Writer) (int64, error) {
	s.mu.Lock()
	s.calls[remoteURL]++
	call := s.calls[remoteURL]
	fail := s.failures[remoteURL]
	s.mu.Unlock()

	if fail < 0 || call <= fail {
		// write something first so truncation on retry is exercised
		_, _ = io.WriteString(w, "garbage")
		return 0, errors.New("connection reset")
	}
	n, err := io.WriteString(w, s.body+remoteURL)
	return int64(n), err
}

func manifestOf(names ...string) jsoc.Manifest {
	m := make(jsoc.Manifest, 0, len(names))
	for _, n := range names {
		m = append(m, jsoc.ManifestEntry{
			RecordName:        "rec-" + n,
			RemoteURL:         "http://archive/" + n,
			SuggestedFilename: n,
		})
	}
	return m
}

func TestDownloadAll_Success(t *testing.T) {
	tr := newScripted("data:")
	tr.failures["http://archive/b.fits"] = 2
	d := New(tr, zap.NewNop(), WithRetryDelay(0))

	dir := filepath.Join(t.TempDir(), "cube")
	outcomes, used, err := d.DownloadAll(context.Background(), manifestOf("a.fits", "b.fits"), dir, 5)
	require.NoError(t, err)
	assert.Equal(t, dir, used)
	require.Len(t, outcomes, 2)

	assert.Equal(t, filepath.Join(dir, "a.fits"), outcomes[0].LocalPath)
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.Equal(t, 3, outcomes[1].Attempts)
	assert.Equal(t, "rec-b.fits", outcomes[1].RecordName)

	body, err := os.ReadFile(outcomes[1].LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "data:http://archive/b.fits", string(body))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), PartSuffix), "staging file left behind: %s", e.Name())
	}
}

func TestDownloadAll_ExhaustsAttempts(t *testing.T) {
	tr := newScripted("data:")
	tr.failures["http://archive/a.fits"] = -1
	d := New(tr, zap.NewNop(), WithRetryDelay(0))

	dir := filepath.Join(t.TempDir(), "cube")
	outcomes, _, err := d.DownloadAll(context.Background(), manifestOf("a.fits"), dir, 3)
	require.Error(t, err)
	assert.Nil(t, outcomes)
	assert.ErrorIs(t, err, ErrDownloadExhausted)

	var exhausted *DownloadExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, "rec-a.fits", exhausted.Record)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, tr.calls["http://archive/a.fits"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadAll_FailureDiscardsBatch(t *testing.T) {
	tr := newScripted("data:")
	tr.failures["http://archive/b.fits"] = -1
	d := New(tr, zap.NewNop(), WithRetryDelay(0))

	dir := filepath.Join(t.TempDir(), "cube")
	_, _, err := d.DownloadAll(context.Background(), manifestOf("a.fits", "b.fits", "c.fits"), dir, 2)
	require.ErrorIs(t, err, ErrDownloadExhausted)

	assert.NoFileExists(t, filepath.Join(dir, "a.fits"))
	assert.Zero(t, tr.calls["http://archive/c.fits"])
}

func TestDownloadAll_ExistingDirectoryGetsDatedSibling(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "cube")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.fits"), []byte("old"), 0o644))

	now := time.Date(2011, 2, 13, 8, 0, 0, 0, time.UTC)
	d := New(newScripted("new:"), zap.NewNop(), WithClock(func() time.Time { return now }))

	outcomes, used, err := d.DownloadAll(context.Background(), manifestOf("a.fits"), dir, 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cube_2011-02-13"), used)
	assert.Equal(t, filepath.Join(used, "a.fits"), outcomes[0].LocalPath)

	old, err := os.ReadFile(filepath.Join(dir, "a.fits"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestDownloadAll_DuplicateFilenamesGetSuffix(t *testing.T) {
	d := New(newScripted("x:"), zap.NewNop())
	m := jsoc.Manifest{
		{RecordName: "r1", RemoteURL: "http://archive/1", SuggestedFilename: "same.fits"},
		{RecordName: "r2", RemoteURL: "http://archive/2", SuggestedFilename: "same.fits"},
	}
	dir := filepath.Join(t.TempDir(), "cube")
	outcomes, _, err := d.DownloadAll(context.Background(), m, dir, 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "same.fits"), outcomes[0].LocalPath)
	assert.Equal(t, filepath.Join(dir, "same.fits.1"), outcomes[1].LocalPath)
}

func TestDownloadAll_ContextCancelled(t *testing.T) {
	tr := newScripted("data:")
	tr.failures["http://archive/a.fits"] = -1
	d := New(tr, zap.NewNop(), WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, err := d.DownloadAll(ctx, manifestOf("a.fits"), filepath.Join(t.TempDir(), "cube"), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.fits" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "SIMPLE  =                    T")
	}))
	client := srv.Client()
	t.Cleanup(func() {
		client.CloseIdleConnections()
		srv.Close()
	})
	tr := NewHTTPTransport(client)

	var sb strings.Builder
	n, err := tr.Fetch(context.Background(), srv.URL+"/a.fits", &sb)
	require.NoError(t, err)
	assert.EqualValues(t, len("SIMPLE  =                    T"), n)

	_, err = tr.Fetch(context.Background(), srv.URL+"/missing.fits", io.Discard)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

// stagingTransport remembers the file each transfer was written to.
type stagingTransport struct {
	mu     sync.Mutex
	staged []string
}

func (s *stagingTransport) Fetch(_ context.Context, remoteURL string, w io.Writer) (int64, error) {
	if f, ok := w.(*os.File); ok {
		s.mu.Lock()
		s.staged = append(s.staged, f.Name())
		s.mu.Unlock()
	}
	n, err := io.WriteString(w, remoteURL)
	return int64(n), err
}

func TestDownloadAll_StagesUnderCollisionName(t *testing.T) {
	tr := &stagingTransport{}
	d := New(tr, zap.NewNop())
	m := jsoc.Manifest{
		{RecordName: "r1", RemoteURL: "http://archive/1", SuggestedFilename: "same.fits"},
		{RecordName: "r2", RemoteURL: "http://archive/2", SuggestedFilename: "same.fits"},
		{RecordName: "r3", RemoteURL: "http://archive/3", SuggestedFilename: "same.fits"},
	}
	dir := filepath.Join(t.TempDir(), "cube")
	outcomes, _, err := d.DownloadAll(context.Background(), m, dir, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "same.fits.part"),
		filepath.Join(dir, "same.fits.1.part"),
		filepath.Join(dir, "same.fits.2.part"),
	}, tr.staged)
	assert.Equal(t, filepath.Join(dir, "same.fits.2"), outcomes[2].LocalPath)
}

func TestDownloadAll_SkipsNameWithLeftoverStagingFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cube")
	d := New(&stagingTransport{}, zap.NewNop())
	target, err := d.PrepareDestination(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(target, "a.fits.part"), []byte("stale"), 0o644))

	// DownloadAll would pick a dated sibling of an existing directory.
	out, err := d.downloadOne(context.Background(), manifestOf("a.fits")[0], target, 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(target, "a.fits.1"), out.LocalPath)

	stale, err := os.ReadFile(filepath.Join(target, "a.fits.part"))
	require.NoError(t, err)
	assert.Equal(t, "stale", string(stale))
}
