package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"netmonitor/internal/attribution"
	"netmonitor/internal/tracker"
	"netmonitor/pkg/models"
)

const sshRule = `title: Interpreter Opens SSH Connection
id: 3c1d1f7e-0b6c-4f7a-9d55-1a0c9e2f6b10
status: experimental
logsource:
  category: network_connection
  product: linux
detection:
  selection:
    Image|endswith: 'python3'
    DestinationPort: '22'
  condition: selection
level: high
tags:
  - attack.lateral_movement
  - attack.t1021.004
`

const processRule = `title: Shell Spawned
id: 0d9b8a47-5a52-4a1b-8e4c-2c2f0b8c9e11
logsource:
  category: process_creation
  product: linux
detection:
  selection:
    Image|endswith: '/bash'
  condition: selection
`

const keywordRule = `title: Keyword Rule
id: 5b0b6f0e-7d0e-4a55-9a0e-6c7f1a2b3c4d
logsource:
  category: network_connection
detection:
  keywords:
    - 'evil'
  condition: keywords
`

func writeRules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestNewSigmaEngineLoadStats(t *testing.T) {
	dir := writeRules(t, map[string]string{
		"ssh.yml":     sshRule,
		"process.yml": processRule,
		"keyword.yml": keywordRule,
		"broken.yaml": "title: [unterminated",
		"README.md":   "not a rule",
	})

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}
	if stats.TotalFiles != 4 {
		t.Fatalf("expected 4 rule files, got %d", stats.TotalFiles)
	}
	if stats.Loaded != 1 {
		t.Fatalf("expected 1 loaded rule, got %+v", stats)
	}
	if stats.SkippedDatasource != 1 || stats.SkippedComplex != 1 || stats.SkippedInvalid != 1 {
		t.Fatalf("unexpected skip counts: %+v", stats)
	}
	if len(engine.rules) != 1 {
		t.Fatalf("expected 1 compiled rule, got %d", len(engine.rules))
	}
}

func TestSigmaEngineApply(t *testing.T) {
	dir := writeRules(t, map[string]string{"ssh.yml": sshRule})
	engine, _, err := NewSigmaEngine(filepath.Join(dir, "ssh.yml"))
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	match := &models.Flow{Process: "python3", Image: "/usr/bin/python3", Source: "10.0.0.1", Destination: "10.0.0.9", DestinationPort: 22}
	tags := engine.Apply(match)
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(tags))
	}
	got := tags[0]
	if got.Severity != "high" || got.Tactic != "lateral-movement" || got.Technique != "T1021/004" {
		t.Fatalf("unexpected tag: %+v", got)
	}

	miss := &models.Flow{Process: "python3", Destination: "10.0.0.9", DestinationPort: 443}
	if tags := engine.Apply(miss); len(tags) != 0 {
		t.Fatalf("expected no tags, got %+v", tags)
	}
}

func TestNewSigmaEngineRejectsNonYAMLFile(t *testing.T) {
	dir := writeRules(t, map[string]string{"rule.txt": sshRule})
	if _, _, err := NewSigmaEngine(filepath.Join(dir, "rule.txt")); err == nil {
		t.Fatalf("expected error for non-YAML rule file")
	}
}

func TestNilEngineApply(t *testing.T) {
	var engine *SigmaEngine
	if tags := engine.Apply(&models.Flow{}); tags != nil {
		t.Fatalf("expected nil tags, got %+v", tags)
	}
	if tags := (&NoopEngine{}).Apply(&models.Flow{}); tags != nil {
		t.Fatalf("expected nil tags, got %+v", tags)
	}
}

type cmdlineResolver map[int]string

func (r cmdlineResolver) CommandLine(ctx context.Context, pid int) (string, error) {
	return r[pid], nil
}

func TestSigmaEngineMatchesExecutableWithFullCommandNames(t *testing.T) {
	dir := writeRules(t, map[string]string{"ssh.yml": sshRule})
	engine, _, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	for _, namer := range []attribution.Namer{{}, {MaxLength: 4}} {
		a := attribution.New(cmdlineResolver{42: "/usr/bin/python3 -u server.py"}, attribution.Config{Namer: namer})
		m := tracker.New(tracker.Options{StartedAt: time.Unix(0, 0)})
		res, err := a.Attribute(context.Background(), []models.Connection{
			{PID: 42, Protocol: "TCP", LocalAddr: "10.0.0.2", LocalPort: 40112, RemoteAddr: "10.0.0.9", RemotePort: 22},
		}, m)
		if err != nil {
			t.Fatalf("attribute: %v", err)
		}
		if len(res.Flows) != 1 {
			t.Fatalf("expected 1 flow, got %d", len(res.Flows))
		}
		flow := res.Flows[0]
		if flow.Process == "python3" {
			t.Fatalf("expected a display name other than the executable basename, got %q", flow.Process)
		}
		if tags := engine.Apply(flow); len(tags) != 1 {
			t.Fatalf("namer %+v: expected rule match on %q, got %+v", namer, flow.Image, tags)
		}
	}
}

func TestSigmaEngineInitiatedField(t *testing.T) {
	const inboundRule = `title: Inbound SSH
id: 9e0c2a1b-3d4e-4f50-8a61-7b8c9d0e1f23
logsource:
  category: network_connection
  product: linux
detection:
  selection:
    Initiated: 'false'
    SourcePort: '22'
  condition: selection
level: medium
`
	dir := writeRules(t, map[string]string{"inbound.yml": inboundRule})
	engine, _, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("load rules: %v", err)
	}

	accepted := &models.Flow{Process: "sshd", SourcePort: 22, Destination: "10.0.0.77", DestinationPort: 56338}
	if tags := engine.Apply(accepted); len(tags) != 1 {
		t.Fatalf("expected accepted flow to match, got %+v", tags)
	}
	accepted.Initiated = true
	if tags := engine.Apply(accepted); len(tags) != 0 {
		t.Fatalf("expected initiated flow not to match, got %+v", tags)
	}
}
