package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

const minimalConfig = `
storage:
  path: /tmp/frankie/leads.db
llm:
  base_url: https://api.openai.com
gateway:
  transport: api
  base_url: https://gateway.example.com
  from: sender@example.com
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Campaign.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Campaign.BatchSize)
	}
	wantOffsets := []time.Duration{0, time.Hour, 2 * time.Hour}
	for i, off := range cfg.Campaign.Offsets {
		if off != wantOffsets[i] {
			t.Errorf("Offsets[%d] = %v, want %v", i, off, wantOffsets[i])
		}
	}
	if cfg.Campaign.SubjectMarker != "主旨" || cfg.Campaign.BodyMarker != "內容" {
		t.Errorf("markers = %q/%q, want stock zh-TW markers", cfg.Campaign.SubjectMarker, cfg.Campaign.BodyMarker)
	}
	if cfg.Scheduler.SweepInterval != time.Hour {
		t.Errorf("SweepInterval = %v, want 1h", cfg.Scheduler.SweepInterval)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %q/%q, want info/text", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr = %q, want :8080", cfg.API.ListenAddr)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
storage:
  path: /tmp/frankie/leads.db
campaign:
  batch_size: 3
  offsets: [0s, 30m, 1h]
  subject_marker: Subject
  body_marker: Content
scheduler:
  min_interval: 1m
  sweep_interval: 5m
llm:
  base_url: https://api.openai.com
  model: gpt-4o
gateway:
  transport: smtp
  addr: relay.example.com:587
  from: sender@example.com
logging:
  level: debug
  format: json
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Campaign.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want 3", cfg.Campaign.BatchSize)
	}
	if cfg.Campaign.Offsets[1] != 30*time.Minute {
		t.Errorf("Offsets[1] = %v, want 30m", cfg.Campaign.Offsets[1])
	}
	if cfg.Gateway.Transport != "smtp" {
		t.Errorf("Transport = %q, want smtp", cfg.Gateway.Transport)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", cfg.LLM.Model)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing llm base url",
			yaml: `
gateway: {transport: api, base_url: "https://g", from: "a@b.cc"}
`,
		},
		{
			name: "missing gateway from",
			yaml: `
llm: {base_url: "https://l"}
gateway: {transport: api, base_url: "https://g"}
`,
		},
		{
			name: "unknown transport",
			yaml: `
llm: {base_url: "https://l"}
gateway: {transport: carrier-pigeon, from: "a@b.cc"}
`,
		},
		{
			name: "two offsets",
			yaml: `
llm: {base_url: "https://l"}
gateway: {transport: api, base_url: "https://g", from: "a@b.cc"}
campaign: {offsets: [0s, 1h]}
`,
		},
		{
			name: "decreasing offsets",
			yaml: `
llm: {base_url: "https://l"}
gateway: {transport: api, base_url: "https://g", from: "a@b.cc"}
campaign: {offsets: [2h, 1h, 3h]}
`,
		},
		{
			name: "bad log level",
			yaml: `
llm: {base_url: "https://l"}
gateway: {transport: api, base_url: "https://g", from: "a@b.cc"}
logging: {level: verbose}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() error = nil, want read error")
	}
}
