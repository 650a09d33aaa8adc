package reportredis

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"netmonitor/internal/logger"
	"netmonitor/pkg/models"
)

// Config configures Redis report storage.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// RunID separates per-run reports; empty stores a single report.
	RunID string
	// Channel receives the report key after each write when set.
	Channel string
	Timeout time.Duration
}

// Writer stores the latest report document in a Redis string key.
type Writer struct {
	client  *redis.Client
	key     string
	channel string
	timeout time.Duration
}

// NewWriter connects to Redis and verifies the connection.
func NewWriter(cfg Config) (*Writer, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "netmonitor"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis report store: %w", err)
	}

	w := &Writer{
		client:  client,
		key:     reportKey(strings.TrimSpace(cfg.KeyPrefix), cfg.RunID),
		channel: strings.TrimSpace(cfg.Channel),
		timeout: cfg.Timeout,
	}
	logger.Infof("Report Redis writer initialized: %s (key %s)", cfg.Addr, w.key)
	return w, nil
}

// Key returns the Redis key holding the report.
func (w *Writer) Key() string {
	return w.key
}

// WriteReport replaces the stored report and publishes a notification.
func (w *Writer) WriteReport(report *models.Report) error {
	data, err := report.Encode()
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	pipe := w.client.TxPipeline()
	pipe.Set(ctx, w.key, data, 0)
	if w.channel != "" {
		pipe.Publish(ctx, w.channel, w.key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store report in redis: %w", err)
	}
	return nil
}

// Close closes Redis resources.
func (w *Writer) Close() error {
	if w == nil || w.client == nil {
		return nil
	}
	return w.client.Close()
}

func reportKey(prefix, runID string) string {
	if runID == "" {
		return prefix + ":report"
	}
	return prefix + ":report:" + runID
}
