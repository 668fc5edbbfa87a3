package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const sampleYAML = `
name: capsule
environment: test
logging:
  level: debug
  format: json
execution:
  scratch_root: /scratch
  workers: 3
  timeout: 2m
  retry:
    max_attempts: 2
context:
  env:
    FSLOUTPUTTYPE: NIFTI_GZ
  library_path:
    - path: /opt/fsl/lib
  tools:
    fsl:
      directory: /opt/fsl
  transfer_roots: [/data]
metastore:
  driver: sqlite
  path: /var/lib/capsule/meta.db
`

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capsule.yml", sampleYAML)

	cfg, err := Load(WithConfigFile(path), WithEnvFile(filepath.Join(dir, "missing.env")))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Execution.ScratchRoot != "/scratch" || cfg.Execution.Workers != 3 {
		t.Errorf("unexpected execution section %+v", cfg.Execution)
	}
	if cfg.Execution.Timeout != 2*time.Minute {
		t.Errorf("expected 2m timeout, got %v", cfg.Execution.Timeout)
	}
	if cfg.Execution.Retry.MaxAttempts != 2 {
		t.Errorf("expected 2 attempts, got %d", cfg.Execution.Retry.MaxAttempts)
	}
	if !cfg.Execution.ShouldPropagateFailures() {
		t.Error("failure propagation defaults to true")
	}
	if cfg.Context.Env["FSLOUTPUTTYPE"] != "NIFTI_GZ" {
		t.Errorf("unexpected env %v", cfg.Context.Env)
	}
	if len(cfg.Context.LibraryPath) != 1 || cfg.Context.LibraryPath[0].Path != "/opt/fsl/lib" {
		t.Errorf("unexpected library path %v", cfg.Context.LibraryPath)
	}
	if cfg.Context.LibraryPathVar != "LD_LIBRARY_PATH" {
		t.Errorf("unexpected library path var %q", cfg.Context.LibraryPathVar)
	}
	if cfg.Metastore.Driver != "sqlite" {
		t.Errorf("unexpected metastore %+v", cfg.Metastore)
	}
	if cfg.Tracing.ServiceName != "capsule" {
		t.Errorf("tracing service name should default to config name, got %q", cfg.Tracing.ServiceName)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capsule.yml", sampleYAML)
	envPath := writeFile(t, dir, ".env", "CAPSULE_METASTORE_DRIVER=memory\n")
	t.Setenv("CAPSULE_EXECUTION_WORKERS", "8")
	t.Setenv("CAPSULE_EXECUTION_SCRATCH_ROOT", "/fast/scratch")
	t.Cleanup(func() { os.Unsetenv("CAPSULE_METASTORE_DRIVER") })

	cfg, err := Load(WithConfigFile(path), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Execution.Workers != 8 {
		t.Errorf("expected env override to 8 workers, got %d", cfg.Execution.Workers)
	}
	if cfg.Execution.ScratchRoot != "/fast/scratch" {
		t.Errorf("expected scratch override, got %q", cfg.Execution.ScratchRoot)
	}
	if cfg.Metastore.Driver != "memory" {
		t.Errorf("expected .env override to memory, got %q", cfg.Metastore.Driver)
	}
}

func TestLoad_KeepsDataKeyCase(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capsule.yml", `
context:
  env:
    FSLOUTPUTTYPE: NIFTI_GZ
    FreeSurferColorLUT: /opt/fs/lut.txt
  tools:
    SPM:
      Standalone: true
      paths:
        MCR_Root: /opt/mcr
`)
	t.Setenv("CAPSULE_CONTEXT_ENV_FSLOUTPUTTYPE", "NIFTI")

	cfg, err := Load(WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := map[string]string{"FSLOUTPUTTYPE": "NIFTI", "FreeSurferColorLUT": "/opt/fs/lut.txt"}
	if len(cfg.Context.Env) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.Context.Env)
	}
	for k, v := range want {
		if cfg.Context.Env[k] != v {
			t.Errorf("expected %s=%s, got %v", k, v, cfg.Context.Env)
		}
	}
	spm, ok := cfg.Context.Tools["SPM"]
	if !ok || spm["Standalone"] != true {
		t.Fatalf("expected SPM tool settings with their spelling, got %v", cfg.Context.Tools)
	}
	paths, _ := spm["paths"].(map[string]any)
	if paths["MCR_Root"] != "/opt/mcr" {
		t.Errorf("expected nested MCR_Root, got %v", spm["paths"])
	}
}

func TestLoad_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capsule.yml", sampleYAML)
	t.Setenv("CAPSULE_EXECUTION_WORKERS", "8")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.IntP("workers", "j", 0, "")
	fs.Duration("timeout", 0, "")
	if err := fs.Parse([]string{"-j", "5"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := Load(WithConfigFile(path), WithFlags(fs, map[string]string{
		"execution.workers": "workers",
		"execution.timeout": "timeout",
	}))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Execution.Workers != 5 {
		t.Errorf("expected the flag to beat the environment, got %d workers", cfg.Execution.Workers)
	}
	if cfg.Execution.Timeout != 2*time.Minute {
		t.Errorf("expected an unset flag to keep 2m, got %v", cfg.Execution.Timeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "capsule.yml", "metastore:\n  driver: postgres\n")
	_, err := Load(WithConfigFile(path))
	if err == nil || !strings.Contains(err.Error(), "metastore.driver") {
		t.Fatalf("expected metastore.driver validation error, got %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "nope.yml"))); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Execution.Workers < 1 || cfg.Execution.ScratchRoot == "" {
		t.Errorf("unexpected defaults %+v", cfg.Execution)
	}
	if cfg.Metastore.Driver != "memory" || cfg.Status.Addr == "" {
		t.Errorf("unexpected defaults %+v %+v", cfg.Metastore, cfg.Status)
	}
}

func TestServiceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"valid", ServiceConfig{Name: "capsule", Environment: "production"}, ""},
		{"bad environment", ServiceConfig{Name: "capsule", Environment: "qa"}, "config.environment"},
		{"missing name", ServiceConfig{Environment: "test"}, "config.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Logging.ApplyDefaults()
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q error, got %v", tt.wantErr, err)
			}
		})
	}
}

type fakeFS struct {
	files map[string]bool
}

func (f fakeFS) Exists(p string) bool           { return f.files[p] }
func (f fakeFS) LoadEnv(string) error           { return nil }
func (f fakeFS) UserConfigDir() (string, error) { return "/home/u/.config", nil }

func TestResolver_ResolveFiles(t *testing.T) {
	fs := fakeFS{files: map[string]bool{
		"/home/u/.config/capsule/config.yml": true,
		".env":                               true,
	}}
	r := &Resolver{FileSystem: fs}
	got := r.ResolveFiles("capsule", LoaderConfig{})
	if got.ConfigFile != "/home/u/.config/capsule/config.yml" {
		t.Errorf("unexpected config file %q", got.ConfigFile)
	}
	if got.EnvFile != ".env" {
		t.Errorf("unexpected env file %q", got.EnvFile)
	}

	explicit := r.ResolveFiles("capsule", LoaderConfig{ConfigFile: "x.yml"})
	if explicit.ConfigFile != "x.yml" {
		t.Errorf("explicit path must win, got %q", explicit.ConfigFile)
	}
}

func TestEnvKeyVariants(t *testing.T) {
	got := envKeyVariants("EXECUTION_SCRATCH_ROOT")
	for _, want := range []string{"execution.scratch_root", "execution_scratch_root", "execution.scratch.root"} {
		if !slices.Contains(got, want) {
			t.Errorf("missing variant %q in %v", want, got)
		}
	}
	if v := envKeyVariants("NAME"); len(v) != 1 || v[0] != "name" {
		t.Errorf("single word keys map to themselves, got %v", v)
	}
}
