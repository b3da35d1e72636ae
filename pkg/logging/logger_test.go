package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// capture installs a JSON logger at level writing to a buffer.
func capture(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	Setup(Config{Level: level, Output: buf})
	t.Cleanup(func() { Setup(DefaultConfig()) })
	return buf
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %q, want %q", cfg.Level, LevelInfo)
	}
	if cfg.Pretty {
		t.Error("Pretty = true, want JSON output by default")
	}
	if cfg.Output == nil {
		t.Error("Output = nil, want stderr")
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  []string
		drop  []string
	}{
		{level: LevelDebug, want: []string{"stale completion", "group ready", "throttled", "store failed"}},
		{level: LevelInfo, want: []string{"group ready", "throttled", "store failed"}, drop: []string{"stale completion"}},
		{level: LevelWarn, want: []string{"throttled", "store failed"}, drop: []string{"stale completion", "group ready"}},
		{level: LevelError, want: []string{"store failed"}, drop: []string{"stale completion", "group ready", "throttled"}},
		{level: "verbose", want: []string{"group ready"}, drop: []string{"stale completion"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := capture(t, tt.level)

			logger := NewLogger(ComponentOrchestrator)
			logger.Debug().Msg("stale completion")
			logger.Info().Msg("group ready")
			logger.Warn().Msg("throttled")
			logger.Error().Msg("store failed")

			output := buf.String()
			for _, msg := range tt.want {
				if !strings.Contains(output, msg) {
					t.Errorf("output missing %q at level %s", msg, tt.level)
				}
			}
			for _, msg := range tt.drop {
				if strings.Contains(output, msg) {
					t.Errorf("output contains %q at level %s", msg, tt.level)
				}
			}
		})
	}
}

func TestNewLogger_ComponentField(t *testing.T) {
	components := []string{
		ComponentCatalogClient,
		ComponentRateLimit,
		ComponentOrchestrator,
		ComponentImageCache,
		ComponentSavedStore,
		ComponentCLI,
	}

	for _, component := range components {
		t.Run(component, func(t *testing.T) {
			buf := capture(t, LevelInfo)

			logger := NewLogger(component)
			logger.Info().
				Str("session_id", "0b7c").
				Int("group", 2).
				Msg("Group ready")

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("output is not a JSON line: %v (%q)", err, buf.String())
			}
			if entry["component"] != component {
				t.Errorf("component = %v, want %q", entry["component"], component)
			}
			if entry["group"] != float64(2) {
				t.Errorf("group = %v, want 2", entry["group"])
			}
			if _, ok := entry["time"]; !ok {
				t.Error("entry has no timestamp")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "debug", want: LevelDebug},
		{input: "INFO", want: LevelInfo},
		{input: "", want: LevelInfo},
		{input: " warn ", want: LevelWarn},
		{input: "warning", want: LevelWarn},
		{input: "error", want: LevelError},
		{input: "trace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogLevel_ZerologLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := tt.level.zerologLevel(); got != tt.want {
			t.Errorf("LogLevel(%q).zerologLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestSetup_PrettyOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})
	t.Cleanup(func() { Setup(DefaultConfig()) })

	logger := NewLogger(ComponentOrchestrator)
	logger.Info().Str("query", "flower").Msg("Group ready")

	output := buf.String()
	if strings.HasPrefix(output, "{") {
		t.Errorf("pretty output should not be JSON, got %q", output)
	}
	if !strings.Contains(output, "Group ready") || !strings.Contains(output, "flower") {
		t.Errorf("pretty output missing fields: %q", output)
	}
}
