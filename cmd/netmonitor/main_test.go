package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/config"
	"netmonitor/internal/metrics"
	"netmonitor/internal/output/reportjson"
	"netmonitor/internal/output/reportredis"
	"netmonitor/internal/pipeline"
	"netmonitor/pkg/models"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &config.Config{}
	applyDefaults(cfg)

	nm := cfg.NetMonitor
	require.NotNil(t, nm.Sampler.Interval)
	assert.Equal(t, 500*time.Millisecond, *nm.Sampler.Interval)
	assert.Equal(t, "/proc", nm.Source.ProcRoot)
	assert.Equal(t, "procfs", nm.Source.Resolver)
	assert.Equal(t, 2*time.Second, nm.Source.ResolveTimeout)
	assert.Equal(t, "file", nm.Report.Mode)
	assert.Equal(t, "app_reports", nm.Report.Dir)
	assert.Equal(t, "127.0.0.1:6379", nm.Report.Redis.Addr)
	assert.Equal(t, "file", nm.Rules.Output.Mode)
	assert.Equal(t, "127.0.0.1:9465", nm.Metrics.Addr)
	require.NotNil(t, nm.Logging.Enabled)
	assert.True(t, *nm.Logging.Enabled)
	assert.Equal(t, "info", nm.Logging.Level)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	disabled := false
	cfg := &config.Config{}
	interval := 3 * time.Second
	cfg.NetMonitor.Sampler.Interval = &interval
	cfg.NetMonitor.Report.Mode = "redis"
	cfg.NetMonitor.Logging.Enabled = &disabled
	applyDefaults(cfg)

	assert.Equal(t, 3*time.Second, *cfg.NetMonitor.Sampler.Interval)
	assert.Equal(t, "redis", cfg.NetMonitor.Report.Mode)
	assert.False(t, *cfg.NetMonitor.Logging.Enabled)
}

func TestApplyDefaultsKeepsZeroInterval(t *testing.T) {
	cfg := &config.Config{}
	zero := time.Duration(0)
	cfg.NetMonitor.Sampler.Interval = &zero
	applyDefaults(cfg)

	assert.Equal(t, time.Duration(0), *cfg.NetMonitor.Sampler.Interval)
}

func TestReportModes(t *testing.T) {
	modes, err := reportModes(" file , REDIS,file")
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "redis"}, modes)

	_, err = reportModes("kafka")
	assert.Error(t, err)

	_, err = reportModes(" , ")
	assert.Error(t, err)
}

func TestLoadConfigDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "config_file.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{
    "testing": {"data": true},
    "name_limit": {"data": 20},
    "main_program_name_only": {"data": false},
    "excluded": {"data": []},
    "one_file": {"data": true},
    "sleep": {"data": 1}
}`), 0644))

	cfg, err := loadConfig(legacy)
	require.NoError(t, err)
	assert.True(t, cfg.NetMonitor.Sampler.Testing)
	assert.Equal(t, time.Second, *cfg.NetMonitor.Sampler.Interval)

	yml := filepath.Join(dir, "netmonitor.yml")
	require.NoError(t, os.WriteFile(yml, []byte("netmonitor:\n  sampler:\n    interval: 250ms\n"), 0644))
	cfg, err = loadConfig(yml)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, *cfg.NetMonitor.Sampler.Interval)
}

func TestFindConfigFilePrefersArgument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("netmonitor: {}\n"), 0644))
	assert.Equal(t, path, findConfigFile(path))
}

func TestBuildReportWriterFileAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	startedAt := time.Date(2026, 3, 4, 17, 5, 6, 0, time.Local)

	cfg := config.ReportConfig{
		Mode:    "file,redis",
		Dir:     t.TempDir(),
		OneFile: false,
		Redis:   config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "nm"},
	}
	w, err := buildReportWriter(cfg, startedAt)
	require.NoError(t, err)
	defer w.Close()

	multi, ok := w.(pipeline.MultiReportWriter)
	require.True(t, ok)
	require.Len(t, multi, 2)

	fileWriter, ok := multi[0].(*reportjson.Writer)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.Dir, "apps_report_2026_03_04-17_05_06.json"), fileWriter.Path())

	redisWriter, ok := multi[1].(*reportredis.Writer)
	require.True(t, ok)
	assert.Equal(t, "nm:report:2026_03_04-17_05_06", redisWriter.Key())
}

func TestBuildReportWriterSingleSink(t *testing.T) {
	cfg := config.ReportConfig{Mode: "file", Dir: t.TempDir(), OneFile: true}
	w, err := buildReportWriter(cfg, time.Now())
	require.NoError(t, err)
	defer w.Close()

	fileWriter, ok := w.(*reportjson.Writer)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.Dir, "apps_report.json"), fileWriter.Path())
}

func TestBuildSamplerRunsCycleAgainstProcRoot(t *testing.T) {
	procRoot := t.TempDir()
	reportDir := t.TempDir()

	cfg := &config.Config{}
	cfg.NetMonitor.Source.ProcRoot = procRoot
	cfg.NetMonitor.Report.Dir = reportDir
	cfg.NetMonitor.Report.OneFile = true
	applyDefaults(cfg)

	sampler, err := buildSampler(cfg, metrics.New(), time.Now())
	require.NoError(t, err)
	defer sampler.Close()

	// an empty proc tree yields no connections and no report write
	require.NoError(t, sampler.RunCycle(context.Background()))
	_, err = os.Stat(filepath.Join(reportDir, "apps_report.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuildSamplerRejectsUnknownResolver(t *testing.T) {
	cfg := &config.Config{}
	cfg.NetMonitor.Source.ProcRoot = t.TempDir()
	cfg.NetMonitor.Source.Resolver = "lsof"
	cfg.NetMonitor.Report.Dir = t.TempDir()
	applyDefaults(cfg)

	_, err := buildSampler(cfg, metrics.New(), time.Now())
	assert.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	report := &models.Report{
		StartedTime: "2026-03-04 05:05:06 PM",
		TrackedApps: []string{"curl", "dig"},
		Unnamed:     models.UnnamedAddresses{IPs: []string{"10.0.0.2 to 1.1.1.1"}},
		Apps: []models.AppEntry{
			{Name: "curl", Src: []string{"10.0.0.2"}, Dst: []string{"93.184.216.34", "1.1.1.1"}},
			{Name: "dig", Src: []string{"10.0.0.2"}, Dst: []string{"9.9.9.9"}},
		},
	}

	var buf bytes.Buffer
	writeSummary(&buf, report)

	assert.Equal(t,
		"started=2026-03-04 05:05:06 PM last_updated=- tracked=2\n"+
			"curl\tsrc=1\tdst=2\n"+
			"dig\tsrc=1\tdst=1\n"+
			"UNKNOWN[no name]\tips=1\n",
		buf.String())
}

func TestRunSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apps_report.json")
	w, err := reportjson.NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteReport(&models.Report{
		StartedTime: "2026-03-04 05:05:06 PM",
		LastUpdated: "05:05:07 PM",
		TrackedApps: []string{"curl"},
		Apps:        []models.AppEntry{{Name: "curl", Src: []string{"10.0.0.2"}, Dst: []string{"1.1.1.1"}}},
	}))

	var buf bytes.Buffer
	assert.Equal(t, 0, runSummarize([]string{"-report", path}, &buf))
	assert.Contains(t, buf.String(), "curl\tsrc=1\tdst=1\n")
	assert.Contains(t, buf.String(), "last_updated=05:05:07 PM")

	assert.Equal(t, 1, runSummarize([]string{"-report", filepath.Join(t.TempDir(), "missing.json")}, &buf))
}
