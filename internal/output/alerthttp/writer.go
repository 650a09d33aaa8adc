package alerthttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"netmonitor/pkg/models"
)

// RulesHeader lists the rule IDs matched by the alerts of a request.
const RulesHeader = "X-Netmonitor-Rules"

const defaultBatchSize = 100

// Config configures the HTTP writer.
type Config struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
	// BatchSize caps the alerts sent per request.
	BatchSize int
}

// Batch is the body of one request.
type Batch struct {
	SentAt time.Time       `json:"sent_at"`
	Rules  []string        `json:"rules"`
	Alerts []*models.Alert `json:"alerts"`
}

// Writer posts rule matches to a remote HTTP endpoint.
type Writer struct {
	url       string
	headers   map[string]string
	batchSize int
	client    *http.Client
	now       func() time.Time
}

// NewWriter creates an HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http alert URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Writer{
		url:       cfg.URL,
		headers:   cfg.Headers,
		batchSize: batchSize,
		client:    &http.Client{Timeout: timeout},
		now:       time.Now,
	}, nil
}

// WriteAlerts posts rule matches in batches of at most BatchSize. It stops
// at the first failed request.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	for start := 0; start < len(alerts); start += w.batchSize {
		end := start + w.batchSize
		if end > len(alerts) {
			end = len(alerts)
		}
		if err := w.post(alerts[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) post(alerts []*models.Alert) error {
	batch := Batch{SentAt: w.now().UTC(), Rules: ruleIDs(alerts), Alerts: alerts}
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RulesHeader, strings.Join(batch.Rules, ","))
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %d rule matches: %w", len(alerts), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %d rule matches: status %s: %s", len(alerts), resp.Status, strings.TrimSpace(string(msg)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// ruleIDs returns the sorted distinct rule IDs tagged on alerts.
func ruleIDs(alerts []*models.Alert) []string {
	seen := make(map[string]bool)
	ids := []string{}
	for _, a := range alerts {
		for _, tag := range a.Tags {
			if tag.ID == "" || seen[tag.ID] {
				continue
			}
			seen[tag.ID] = true
			ids = append(ids, tag.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close releases idle connections.
func (w *Writer) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
