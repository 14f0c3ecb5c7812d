package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loykin/patiently/internal/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	// idempotent: calling again should be no-op
	require.NoError(t, Register(reg))

	SetStatusCounts(map[queue.Status]int{queue.StatusRunning: 1, queue.StatusWaiting: 2, queue.StatusFinished: 4})
	IncRefresh()
	AddAnomalies(1)
	AddAnomalies(0)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got := map[string]bool{}
	for _, mf := range mfs {
		got[mf.GetName()] = len(mf.GetMetric()) > 0
	}
	for _, n := range []string{"patiently_queue_jobs", "patiently_queue_outstanding", "patiently_monitor_refreshes_total", "patiently_queue_anomalies_total"} {
		assert.True(t, got[n], "expected samples for %s", n)
	}

	path := filepath.Join(t.TempDir(), "patiently.prom")
	require.NoError(t, WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)
	assert.Contains(t, text, `patiently_queue_jobs{status="waiting"} 2`)
	assert.Contains(t, text, `patiently_queue_jobs{status="crashed"} 0`)
	assert.Contains(t, text, "patiently_queue_outstanding 3")

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "patiently_monitor_refreshes_total 1"))
}
