package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examportal/internal/metrics"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := metrics.New()
	m.AttemptStarted()
	m.AnswerSaved("applied")
	m.AnswerSaved("stale")
	m.Submitted("submitted", 20*time.Millisecond)
	m.Submitted("duplicate", 0)
	m.Request("/tests/{testID}/answer", 204)

	n, err := testutil.GatherAndCount(m.Registry(), "exam_answers_saved_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `exam_submissions_total{outcome="duplicate"} 1`))
	assert.True(t, strings.Contains(body, "exam_attempts_in_progress 0"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.AttemptStarted()
	m.AnswerSaved("applied")
	m.Submitted("submitted", time.Second)
	m.Request("/", 200)
}
