package alerthttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/pkg/models"
)

type recordingServer struct {
	mu      sync.Mutex
	batches []Batch
	rules   []string
	token   string
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var b Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.rules = append(s.rules, r.Header.Get(RulesHeader))
	s.token = r.Header.Get("X-Token")
	s.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func alert(id string, tags ...string) *models.Alert {
	a := &models.Alert{AlertID: id, Flow: &models.Flow{Process: "nc", Destination: "10.0.0.9"}}
	for _, tag := range tags {
		a.Tags = append(a.Tags, models.RuleTag{ID: tag})
	}
	return a
}

func TestWriterPostsAlerts(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteAlerts([]*models.Alert{alert("1", "rule-b", "rule-a"), alert("2", "rule-a")}))
	assert.Equal(t, "secret", rec.token)
	require.Len(t, rec.batches, 1)
	assert.Equal(t, []string{"rule-a", "rule-b"}, rec.batches[0].Rules)
	assert.Equal(t, []string{"rule-a,rule-b"}, rec.rules)
	require.Len(t, rec.batches[0].Alerts, 2)
	assert.Equal(t, "nc", rec.batches[0].Alerts[0].Flow.Process)
	assert.False(t, rec.batches[0].SentAt.IsZero())
}

func TestWriterSplitsBatches(t *testing.T) {
	rec := &recordingServer{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, BatchSize: 2})
	require.NoError(t, err)

	require.NoError(t, w.WriteAlerts([]*models.Alert{alert("1", "r1"), alert("2", "r2"), alert("3", "r3")}))
	require.Len(t, rec.batches, 2)
	assert.Len(t, rec.batches[0].Alerts, 2)
	assert.Len(t, rec.batches[1].Alerts, 1)
	assert.Equal(t, []string{"r3"}, rec.batches[1].Rules)
}

func TestWriterReportsHTTPFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "ingest unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w, err := NewWriter(Config{URL: srv.URL, BatchSize: 1})
	require.NoError(t, err)

	err = w.WriteAlerts([]*models.Alert{alert("1"), alert("2")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest unavailable")
	assert.Equal(t, 1, calls)

	assert.NoError(t, w.WriteAlerts(nil))
	assert.Equal(t, 1, calls)
}

func TestNewWriterRequiresURL(t *testing.T) {
	_, err := NewWriter(Config{})
	assert.Error(t, err)
}
