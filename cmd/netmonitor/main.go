package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"netmonitor/config"
	"netmonitor/internal/attribution"
	"netmonitor/internal/input/procnet"
	"netmonitor/internal/input/pscmd"
	"netmonitor/internal/logger"
	"netmonitor/internal/metrics"
	"netmonitor/internal/output/alerthttp"
	"netmonitor/internal/output/alertjson"
	"netmonitor/internal/output/reportjson"
	"netmonitor/internal/output/reportredis"
	"netmonitor/internal/pipeline"
	"netmonitor/internal/rules"
	"netmonitor/internal/tracker"
	"netmonitor/pkg/models"
)

const runIDLayout = "2006_01_02-15_04_05"

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	candidates := []string{"netmonitor.yml", "config_file.json"}
	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		for _, name := range candidates {
			path := filepath.Join(exeDir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return "netmonitor.yml"
}

func loadConfig(path string) (*config.Config, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.LoadLegacyConfig(path)
	}
	return config.LoadConfig(path)
}

func applyDefaults(cfg *config.Config) {
	nm := &cfg.NetMonitor

	if nm.Sampler.Interval == nil || *nm.Sampler.Interval < 0 {
		interval := 500 * time.Millisecond
		nm.Sampler.Interval = &interval
	}

	if nm.Source.ProcRoot == "" {
		nm.Source.ProcRoot = "/proc"
	}
	if nm.Source.Resolver == "" {
		nm.Source.Resolver = "procfs"
	}
	if nm.Source.ResolveTimeout <= 0 {
		nm.Source.ResolveTimeout = 2 * time.Second
	}

	if nm.Report.Mode == "" {
		nm.Report.Mode = "file"
	}
	if nm.Report.Dir == "" {
		nm.Report.Dir = "app_reports"
	}
	if nm.Report.Redis.Addr == "" {
		nm.Report.Redis.Addr = "127.0.0.1:6379"
	}
	if nm.Report.Redis.KeyPrefix == "" {
		nm.Report.Redis.KeyPrefix = "netmonitor"
	}

	if nm.Rules.Output.Mode == "" {
		nm.Rules.Output.Mode = "file"
	}
	if nm.Rules.Output.File.Path == "" {
		nm.Rules.Output.File.Path = "output/rule_matches.jsonl"
	}

	if nm.Metrics.Addr == "" {
		nm.Metrics.Addr = "127.0.0.1:9465"
	}

	if nm.Logging.Enabled == nil {
		enabled := true
		nm.Logging.Enabled = &enabled
		nm.Logging.Console = true
	}
	if nm.Logging.Level == "" {
		nm.Logging.Level = "info"
	}
}

func reportModes(mode string) ([]string, error) {
	var modes []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(mode, ",") {
		m := strings.ToLower(strings.TrimSpace(part))
		if m == "" || seen[m] {
			continue
		}
		if m != "file" && m != "redis" {
			return nil, fmt.Errorf("unknown report mode: %s", m)
		}
		seen[m] = true
		modes = append(modes, m)
	}
	if len(modes) == 0 {
		return nil, fmt.Errorf("no report mode configured")
	}
	return modes, nil
}

func buildReportWriter(cfg config.ReportConfig, startedAt time.Time) (pipeline.ReportWriter, error) {
	modes, err := reportModes(cfg.Mode)
	if err != nil {
		return nil, err
	}

	var writers pipeline.MultiReportWriter
	for _, mode := range modes {
		switch mode {
		case "file":
			path := reportjson.ReportPath(cfg.Dir, cfg.OneFile, startedAt)
			w, err := reportjson.NewWriter(path)
			if err != nil {
				writers.Close()
				return nil, fmt.Errorf("create report file writer: %w", err)
			}
			writers = append(writers, w)
			logger.Infof("Report output mode: file (%s)", path)
		case "redis":
			runID := ""
			if !cfg.OneFile {
				runID = startedAt.Format(runIDLayout)
			}
			w, err := reportredis.NewWriter(reportredis.Config{
				Addr:      cfg.Redis.Addr,
				Password:  cfg.Redis.Password,
				DB:        cfg.Redis.DB,
				KeyPrefix: cfg.Redis.KeyPrefix,
				RunID:     runID,
				Channel:   cfg.Redis.Channel,
				Timeout:   cfg.Redis.Timeout,
			})
			if err != nil {
				writers.Close()
				return nil, fmt.Errorf("create report redis writer: %w", err)
			}
			writers = append(writers, w)
			logger.Infof("Report output mode: redis (%s)", cfg.Redis.Addr)
		}
	}

	if len(writers) == 1 {
		return writers[0], nil
	}
	return writers, nil
}

func buildResolver(cfg config.SourceConfig) (attribution.Resolver, error) {
	switch cfg.Resolver {
	case "procfs":
		return procnet.NewResolver(cfg.ProcRoot)
	case "ps":
		return pscmd.NewResolver(cfg.PSPath)
	default:
		return nil, fmt.Errorf("unknown resolver: %s", cfg.Resolver)
	}
}

func buildRules(cfg config.RulesConfig) (rules.Engine, pipeline.AlertWriter, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	if strings.TrimSpace(cfg.Path) == "" {
		logger.Warnf("Rules enabled but rules.path is empty; watch rules disabled")
		return nil, nil, nil
	}

	engine, stats, err := rules.NewSigmaEngine(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("load sigma rules from %s: %w", cfg.Path, err)
	}
	logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_datasource=%d skipped_invalid=%d files=%d",
		stats.Loaded,
		stats.SkippedComplex,
		stats.SkippedDatasource,
		stats.SkippedInvalid,
		stats.TotalFiles,
	)
	if stats.Loaded == 0 {
		logger.Warnf("No compatible Sigma rules loaded; watch rules are effectively disabled")
	}

	var alertWriter pipeline.AlertWriter
	switch cfg.Output.Mode {
	case "file":
		w, err := alertjson.NewWriter(cfg.Output.File.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("create rule match file writer: %w", err)
		}
		alertWriter = w
		logger.Infof("Rule match output mode: file (%s)", cfg.Output.File.Path)
	case "http":
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:       cfg.Output.HTTP.URL,
			Timeout:   cfg.Output.HTTP.Timeout,
			Headers:   cfg.Output.HTTP.Headers,
			BatchSize: cfg.Output.HTTP.BatchSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create rule match HTTP writer: %w", err)
		}
		alertWriter = w
		logger.Infof("Rule match output mode: http (%s)", cfg.Output.HTTP.URL)
	default:
		return nil, nil, fmt.Errorf("unknown rule match output mode: %s", cfg.Output.Mode)
	}
	return engine, alertWriter, nil
}

// buildSampler wires the sampling pipeline from configuration.
func buildSampler(cfg *config.Config, collector *metrics.Collector, startedAt time.Time) (*pipeline.Sampler, error) {
	nm := cfg.NetMonitor

	source, err := procnet.NewSource(nm.Source.ProcRoot)
	if err != nil {
		return nil, err
	}
	resolver, err := buildResolver(nm.Source)
	if err != nil {
		return nil, err
	}

	engine, alertWriter, err := buildRules(nm.Rules)
	if err != nil {
		return nil, err
	}

	reportWriter, err := buildReportWriter(nm.Report, startedAt)
	if err != nil {
		if alertWriter != nil {
			alertWriter.Close()
		}
		return nil, err
	}

	model := tracker.New(tracker.Options{
		StartedAt:  startedAt,
		Diagnostic: nm.Sampler.Testing,
		Excluded:   nm.Report.Excluded,
	})
	attributor := attribution.New(resolver, attribution.Config{
		Namer: attribution.Namer{
			MaxLength:    int(nm.Naming.NameLimit),
			MainNameOnly: nm.Naming.MainProgramNameOnly,
		},
		Diagnostic:     nm.Sampler.Testing,
		ResolveTimeout: nm.Source.ResolveTimeout,
	})

	cfgSampler := pipeline.SamplerConfig{
		Source:     source,
		Attributor: attributor,
		Model:      model,
		Reporter:   pipeline.NewReporter(reportWriter, collector),
		Metrics:    collector,
		Interval:   *nm.Sampler.Interval,
	}
	if engine != nil {
		cfgSampler.Engine = engine
		cfgSampler.AlertWriter = alertWriter
	}
	return pipeline.NewSampler(cfgSampler), nil
}

func runMonitor(args []string) int {
	configArg := ""
	if len(args) > 0 {
		configArg = args[0]
	}

	configPath := findConfigFile(configArg)

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	applyDefaults(cfg)

	logCfg := cfg.NetMonitor.Logging
	if err := logger.Init(logger.Options{
		Enabled: *logCfg.Enabled,
		Level:   logCfg.Level,
		File:    logCfg.File,
		Console: logCfg.Console,
	}); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer logger.Close()

	logger.Infof("netmonitor starting")
	logger.Infof("Config loaded from: %s", configPath)

	collector := metrics.New()
	sampler, err := buildSampler(cfg, collector, time.Now())
	if err != nil {
		logger.Errorf("Failed to build sampler: %v", err)
		log.Printf("Failed to build sampler: %v", err)
		return 1
	}
	defer func() {
		if err := sampler.Close(); err != nil {
			logger.Errorf("Error closing sampler: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.NetMonitor.Metrics.Enabled {
		go func() {
			if err := collector.Serve(ctx, cfg.NetMonitor.Metrics.Addr); err != nil {
				logger.Errorf("Metrics listener error: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- sampler.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("Shutting down (%s)", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("Sampler stopped: %v", err)
			log.Printf("Sampler stopped: %v", err)
			return 1
		}
	}

	logger.Infof("netmonitor stopped")
	return 0
}

func runSummarize(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	reportPath := fs.String("report", filepath.Join("app_reports", "apps_report.json"), "Report JSON path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	report, err := reportjson.ReadReport(*reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load report: %v\n", err)
		return 1
	}
	writeSummary(out, report)
	return 0
}

func writeSummary(out io.Writer, report *models.Report) {
	fmt.Fprintf(out, "started=%s last_updated=%s tracked=%d\n", report.StartedTime, orDash(report.LastUpdated), len(report.TrackedApps))
	for _, app := range report.Apps {
		fmt.Fprintf(out, "%s\tsrc=%d\tdst=%d\n", app.Name, len(app.Src), len(app.Dst))
	}
	fmt.Fprintf(out, "%s\tips=%d\n", models.KeyUnnamed, len(report.Unnamed.IPs))
	if report.Unrecognized != nil {
		fmt.Fprintf(out, "%s\tgot_lines=%d\n", models.KeyUnrecognized, len(report.Unrecognized.GotLines))
	}
	if len(report.ExcludedApps) > 0 {
		fmt.Fprintf(out, "%s\t%s\n", models.KeyExcludedApps, strings.Join(report.ExcludedApps, ","))
	}
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "run":
			os.Exit(runMonitor(os.Args[2:]))
		case "summarize":
			os.Exit(runSummarize(os.Args[2:], os.Stdout))
		default:
			// first argument is a config path
			os.Exit(runMonitor(os.Args[1:]))
		}
	}

	os.Exit(runMonitor(nil))
}
