package jsoc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	client, err := NewClient(ClientConfig{BaseURL: srv.URL, RequestTimeout: 5 * time.Second}, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.HTTPClient().CloseIdleConnections()
		srv.Close()
	})
	return client
}

func TestClient_SubmitExport(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetchPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "exp_request", q.Get("op"))
		assert.Equal(t, "hmi.v_45s[2011.02.13_00:00:00_TAI/1h]{Dopplergram}", q.Get("ds"))
		assert.Equal(t, "someone@example.org", q.Get("notify"))
		assert.Equal(t, "url", q.Get("method"))
		assert.Equal(t, "FITS,**NONE**", q.Get("protocol"))
		fmt.Fprint(w, `{"status":2,"requestid":"JSOC_20110213_001","wait":12.5}`)
	})

	st, err := client.SubmitExport(context.Background(), ExportOptions{
		Request:  "hmi.v_45s[2011.02.13_00:00:00_TAI/1h]{Dopplergram}",
		Notify:   "someone@example.org",
		Method:   "url",
		Protocol: ProtocolFITS,
	})
	require.NoError(t, err)
	assert.Equal(t, "JSOC_20110213_001", st.RequestID)
	assert.Equal(t, StatusProcessing, st.Status)
	assert.Equal(t, 12500*time.Millisecond, st.Wait)
	assert.Empty(t, st.Manifest)
}

func TestClient_ExportStatusComplete(t *testing.T) {
	var base string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "exp_status", r.URL.Query().Get("op"))
		assert.Equal(t, "JSOC_1", r.URL.Query().Get("requestid"))
		fmt.Fprint(w, `{"status":0,"requestid":"JSOC_1","dir":"/SUM1/D123/S00000/","data":[
			{"record":"hmi.v_45s[2011.02.13_00:00:00_TAI][2]{Dopplergram}","filename":"hmi.v_45s.20110213_000000_TAI.2.Dopplergram.fits"},
			{"record":"hmi.v_45s[2011.02.13_00:00:45_TAI][2]{Dopplergram}","filename":"hmi.v_45s.20110213_000045_TAI.2.Dopplergram.fits"}]}`)
	})
	base = client.baseURL.String()

	st, err := client.ExportStatus(context.Background(), "JSOC_1")
	require.NoError(t, err)
	require.Len(t, st.Manifest, 2)
	assert.Equal(t, ManifestEntry{
		RecordName:        "hmi.v_45s[2011.02.13_00:00:00_TAI][2]{Dopplergram}",
		RemoteURL:         base + "/SUM1/D123/S00000/hmi.v_45s.20110213_000000_TAI.2.Dopplergram.fits",
		SuggestedFilename: "hmi.v_45s.20110213_000000_TAI.2.Dopplergram.fits",
	}, st.Manifest[0])
}

func TestClient_HTTPErrorAndBadBody(t *testing.T) {
	t.Run("http_error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		})
		_, err := client.ExportStatus(context.Background(), "JSOC_1")
		assert.ErrorContains(t, err, "502")
	})

	t.Run("bad_body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>")
		})
		_, err := client.ExportStatus(context.Background(), "JSOC_1")
		assert.ErrorContains(t, err, "decode")
	})
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient(ClientConfig{BaseURL: "ftp://jsoc"}, zap.NewNop(), nil)
	assert.Error(t, err)
}

func TestClientDrivesExportJob(t *testing.T) {
	polls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("op") {
		case "exp_request":
			fmt.Fprint(w, `{"status":1,"requestid":"JSOC_9"}`)
		case "exp_status":
			polls++
			if polls < 2 {
				fmt.Fprint(w, `{"status":1,"requestid":"JSOC_9"}`)
				return
			}
			fmt.Fprint(w, `{"status":0,"requestid":"JSOC_9","dir":"/SUM9","data":[{"record":"r[2011.02.13_00:00:00_TAI]","filename":"f.fits"}]}`)
		}
	})

	job := NewExportJob(client, ExportOptions{Request: "r"}, zap.NewNop(), WithPollInterval(time.Millisecond))
	require.NoError(t, job.Submit(context.Background()))
	require.NoError(t, job.AwaitReady(context.Background(), 5*time.Second))

	m, err := job.Manifest()
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Equal(t, "f.fits", m[0].SuggestedFilename)
}
