package storage_test

import (
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/arbiter/pkg/storage"
)

func TestFinalizeDefaults(t *testing.T) {
	cfg := storage.Config{ConnectionString: "test-connection"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.ContainerName != "actions" {
		t.Errorf("container_name: got %s, want actions", cfg.ContainerName)
	}
	if cfg.Backend != storage.BackendAzure {
		t.Errorf("backend: got %s, want azure", cfg.Backend)
	}
	if cfg.MaxListSize != 50 {
		t.Errorf("max_list_size: got %d, want 50", cfg.MaxListSize)
	}
}

func TestFinalizeEnvOverrides(t *testing.T) {
	t.Setenv("TEST_CONTAINER", "artifacts")
	t.Setenv("TEST_SERVICE_URL", "https://acct.blob.core.windows.net/")
	t.Setenv("TEST_MAX_LIST", "9000")

	env := &storage.Env{
		ContainerName: "TEST_CONTAINER",
		ServiceURL:    "TEST_SERVICE_URL",
		MaxListSize:   "TEST_MAX_LIST",
	}

	cfg := storage.Config{}
	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if cfg.ContainerName != "artifacts" {
		t.Errorf("container_name: got %s, want artifacts", cfg.ContainerName)
	}
	if cfg.ServiceURL != "https://acct.blob.core.windows.net/" {
		t.Errorf("service_url: got %s", cfg.ServiceURL)
	}
	if cfg.MaxListSize != storage.MaxListCap {
		t.Errorf("max_list_size: got %d, want clamped to %d", cfg.MaxListSize, storage.MaxListCap)
	}
}

func TestFinalizeValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr string
	}{
		{
			name:    "no credentials",
			cfg:     storage.Config{ContainerName: "actions"},
			wantErr: "connection_string or service_url required",
		},
		{
			name: "connection string only",
			cfg:  storage.Config{ConnectionString: "conn"},
		},
		{
			name: "memory needs no credentials",
			cfg:  storage.Config{Backend: storage.BackendMemory},
		},
		{
			name:    "retries below disabled",
			cfg:     storage.Config{Backend: storage.BackendMemory, MaxRetries: -2},
			wantErr: "max_retries",
		},
		{
			name:    "malformed retry delay",
			cfg:     storage.Config{Backend: storage.BackendMemory, RetryDelay: "soon"},
			wantErr: "invalid retry_delay",
		},
		{
			name:    "unknown backend",
			cfg:     storage.Config{Backend: "s3", ConnectionString: "conn"},
			wantErr: "unknown backend",
		},
		{
			name: "service url only",
			cfg:  storage.Config{ServiceURL: "https://acct.blob.core.windows.net/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := storage.Config{
		ContainerName:    "actions",
		ConnectionString: "base-conn",
	}

	overlay := storage.Config{ServiceURL: "https://acct.blob.core.windows.net/"}
	base.Merge(&overlay)

	if base.ContainerName != "actions" {
		t.Errorf("container_name should remain actions, got %s", base.ContainerName)
	}
	if base.ConnectionString != "base-conn" {
		t.Errorf("connection_string: got %s, want base-conn", base.ConnectionString)
	}
	if base.ServiceURL != "https://acct.blob.core.windows.net/" {
		t.Errorf("service_url: got %s", base.ServiceURL)
	}
}

func TestClientOptions(t *testing.T) {
	t.Setenv("TEST_MAX_RETRIES", "-1")

	cfg := storage.Config{Backend: storage.BackendMemory, RetryDelay: "2s"}
	if err := cfg.Finalize(&storage.Env{MaxRetries: "TEST_MAX_RETRIES"}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	opts := cfg.ClientOptions()
	if opts.Retry.MaxRetries != -1 {
		t.Errorf("max retries: got %d, want -1", opts.Retry.MaxRetries)
	}
	if opts.Retry.RetryDelay != 2*time.Second {
		t.Errorf("retry delay: got %s, want 2s", opts.Retry.RetryDelay)
	}
	if opts.Telemetry.ApplicationID != "arbiter" {
		t.Errorf("application id: got %q", opts.Telemetry.ApplicationID)
	}
}

func TestRetryDefaults(t *testing.T) {
	cfg := storage.Config{Backend: storage.BackendMemory}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("max_retries: got %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryDelayDuration() != 800*time.Millisecond {
		t.Errorf("retry_delay: got %s, want 800ms", cfg.RetryDelayDuration())
	}
}
