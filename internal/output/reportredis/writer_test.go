package reportredis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/pkg/models"
)

func TestWriterStoresReport(t *testing.T) {
	mr := miniredis.RunT(t)

	w, err := NewWriter(Config{Addr: mr.Addr(), KeyPrefix: "nm", RunID: "2026_01_02-03_04_05", Channel: "nm:updates"})
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, "nm:report:2026_01_02-03_04_05", w.Key())

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(context.Background(), "nm:updates")
	defer ps.Close()
	_, err = ps.Receive(context.Background())
	require.NoError(t, err)

	report := &models.Report{
		StartedTime: "2026-01-02 03:04:05 AM",
		TrackedApps: []string{"sshd"},
		Apps:        []models.AppEntry{{Name: "sshd", Src: []string{"10.0.0.1"}, Dst: []string{"10.0.0.7"}}},
	}
	require.NoError(t, w.WriteReport(report))

	stored, err := mr.Get(w.Key())
	require.NoError(t, err)

	var back models.Report
	require.NoError(t, back.UnmarshalJSON([]byte(stored)))
	assert.Equal(t, []string{"sshd"}, back.TrackedApps)

	msg, err := ps.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w.Key(), msg.Payload)
}

func TestWriterSingleReportKey(t *testing.T) {
	mr := miniredis.RunT(t)
	w, err := NewWriter(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, "netmonitor:report", w.Key())
}

func TestNewWriterFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewWriter(Config{Addr: addr})
	assert.Error(t, err)
}
