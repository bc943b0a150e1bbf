package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterServesTextExposition(t *testing.T) {
	e := NewExporter(DefaultConfig())

	e.RecordIngest("queued")
	e.RecordRecall("ok", 120*time.Millisecond)
	e.RecordExtraction(map[string]int{"biographical": 2}, 1, 1)
	e.RecordJob("extract_facts", "done", 2*time.Second)
	e.SetQueueDepth(4)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "mnemo_ingest_requests_total")
	assert.Contains(t, body, "mnemo_recall_requests_total")
	assert.Contains(t, body, "mnemo_facts_extracted_total")
	assert.Contains(t, body, "mnemo_facts_refreshed_total")
	assert.Contains(t, body, "mnemo_jobs_duration_seconds")
	assert.Contains(t, body, "mnemo_jobs_queue_depth")
}

func TestDefaultExporterIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
