package types

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "postgres", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:    "valid sqlite config",
			config:  Config{Backend: "sqlite", DataDir: "/tmp/data"},
			wantErr: nil,
		},
		{
			name:    "sqlite with empty DataDir returns ErrDataDirRequired",
			config:  Config{Backend: "sqlite", DataDir: ""},
			wantErr: ErrDataDirRequired,
		},
		{
			name:    "memory needs no DataDir",
			config:  Config{Backend: "memory"},
			wantErr: nil,
		},
		{
			name:    "negative page size",
			config:  Config{Backend: "memory", PageSize: -1},
			wantErr: ErrPageSizeInvalid,
		},
		{
			name:    "negative timeout",
			config:  Config{Backend: "memory", Timeout: -time.Second},
			wantErr: ErrTimeoutInvalid,
		},
		{
			name:    "unknown log level",
			config:  Config{Backend: "memory", Log: LogConfig{Level: "trace"}},
			wantErr: ErrLogLevelUnknown,
		},
		{
			name:    "unknown log format",
			config:  Config{Backend: "memory", Log: LogConfig{Format: "xml"}},
			wantErr: ErrLogFormatUnknown,
		},
		{
			name:    "unknown exporter only matters when tracing is enabled",
			config:  Config{Backend: "memory", Tracing: TracingConfig{Exporter: "zipkin"}},
			wantErr: nil,
		},
		{
			name:    "unknown exporter with tracing enabled",
			config:  Config{Backend: "memory", Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}},
			wantErr: ErrExporterUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigEffectivePageSize(t *testing.T) {
	if got := (Config{}).EffectivePageSize(); got != DefaultPageSize {
		t.Fatalf("expected default %d, got %d", DefaultPageSize, got)
	}
	if got := (Config{PageSize: 7}).EffectivePageSize(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}
