package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// CONFIG VALIDATION TESTS
// =============================================================================
//
// Table-driven, same shape as the rest of the package's tests: each case
// names what it checks, the File under test, whether Validate() should
// error, and substrings the error message must contain.
// =============================================================================

func TestFile_Validate(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name        string
		file        File
		wantErr     bool
		errContains []string
	}{
		{
			name: "valid minimal config",
			file: File{DataDir: tmpDir, NodeID: "node-1"},
		},
		{
			name:        "empty data dir",
			file:        File{DataDir: "", NodeID: "node-1"},
			wantErr:     true,
			errContains: []string{"data_dir: must not be empty"},
		},
		{
			name:        "node id with whitespace",
			file:        File{DataDir: tmpDir, NodeID: "node 1"},
			wantErr:     true,
			errContains: []string{"node_id: must not contain whitespace"},
		},
		{
			name:        "unknown log level",
			file:        File{DataDir: tmpDir, LogLevel: "verbose"},
			wantErr:     true,
			errContains: []string{`log_level: unknown level "verbose"`},
		},
		{
			name: "valid log level",
			file: File{DataDir: tmpDir, LogLevel: "debug"},
		},
		{
			name: "negative coordinator timeout",
			file: File{DataDir: tmpDir, Coordinator: CoordinatorFile{
				TransactionTimeoutMs: -1,
			}},
			wantErr:     true,
			errContains: []string{"coordinator.transaction_timeout_ms: must not be negative"},
		},
		{
			name: "heartbeat interval not less than session timeout",
			file: File{DataDir: tmpDir, Coordinator: CoordinatorFile{
				HeartbeatIntervalMs: 10_000,
				SessionTimeoutMs:    10_000,
			}},
			wantErr:     true,
			errContains: []string{"heartbeat_interval_ms", "must be less than session_timeout_ms"},
		},
		{
			name: "heartbeat interval less than session timeout",
			file: File{DataDir: tmpDir, Coordinator: CoordinatorFile{
				HeartbeatIntervalMs: 3_000,
				SessionTimeoutMs:    10_000,
			}},
		},
		{
			name: "negative offsets partition count",
			file: File{DataDir: tmpDir, Coordinator: CoordinatorFile{
				OffsetsPartitionCount: -1,
			}},
			wantErr:     true,
			errContains: []string{"coordinator.offsets_partition_count: must not be negative"},
		},
		{
			name: "accumulates multiple errors at once",
			file: File{DataDir: "", NodeID: "bad id", LogLevel: "verbose"},
			wantErr: true,
			errContains: []string{
				"data_dir: must not be empty",
				"node_id: must not contain whitespace",
				"log_level: unknown level",
			},
		},
		{
			name: "data dir exists but is a file",
			file: func() File {
				f := filepath.Join(tmpDir, "not-a-dir")
				if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
					t.Fatalf("setup: %v", err)
				}
				return File{DataDir: f}
			}(),
			wantErr:     true,
			errContains: []string{"exists but is not a directory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.file.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			for _, want := range tt.errContains {
				if err == nil || !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() error = %v, want substring %q", err, want)
				}
			}
		})
	}
}

func TestValidationError_Error_SingleVsMultiple(t *testing.T) {
	single := &ValidationError{Errors: []string{"data_dir: must not be empty"}}
	if got := single.Error(); !strings.HasPrefix(got, "configuration validation failed: data_dir") {
		t.Errorf("single-error message = %q", got)
	}

	multi := &ValidationError{Errors: []string{"a", "b"}}
	got := multi.Error()
	if !strings.Contains(got, "1. a") || !strings.Contains(got, "2. b") {
		t.Errorf("multi-error message = %q, want numbered list", got)
	}
}

func TestFile_ToBrokerConfig_MergesOntoDefaults(t *testing.T) {
	f := &File{
		DataDir: "/var/lib/txncore",
		Coordinator: CoordinatorFile{
			TransactionTimeoutMs: 45_000,
		},
	}

	cfg := f.ToBrokerConfig()

	if cfg.DataDir != "/var/lib/txncore" {
		t.Errorf("DataDir = %q, want override applied", cfg.DataDir)
	}
	if cfg.Coordinator.TransactionTimeoutMs != 45_000 {
		t.Errorf("TransactionTimeoutMs = %d, want override applied", cfg.Coordinator.TransactionTimeoutMs)
	}
	if cfg.Coordinator.HeartbeatIntervalMs == 0 {
		t.Errorf("HeartbeatIntervalMs = 0, want default left in place for an unset field")
	}
	if cfg.Coordinator.DataDir != cfg.DataDir+"/transactions" {
		t.Errorf("Coordinator.DataDir = %q, want derived from DataDir", cfg.Coordinator.DataDir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() = nil error, want failure on a missing file")
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	contents := `
data_dir: /data/txncore
node_id: broker-1
log_level: warn
coordinator:
  transaction_timeout_ms: 60000
  offsets_partition_count: 12
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.DataDir != "/data/txncore" || f.NodeID != "broker-1" || f.LogLevel != "warn" {
		t.Errorf("Load() = %+v, want top-level fields parsed", f)
	}
	if f.Coordinator.TransactionTimeoutMs != 60_000 || f.Coordinator.OffsetsPartitionCount != 12 {
		t.Errorf("Load() coordinator = %+v, want nested fields parsed", f.Coordinator)
	}
}
