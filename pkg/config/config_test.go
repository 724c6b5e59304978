package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "polaris-hq/polaris/pkg/adaptors/fabric"
	_ "polaris-hq/polaris/pkg/adaptors/openaiapi"
)

const validConfig = `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "45s"

store:
  backend: "memory"

routing:
  cooldown_window: "30s"

endpoints:
  - slug: "alpha-vllm-llama"
    cluster: "alpha"
    framework: "vllm"
    model: "llama"
    type: "openai_api"
    url: "http://alpha.internal:8000/v1"
    api_key: "literal-key"
  - slug: "beta-vllm-llama"
    cluster: "beta"
    framework: "vllm"
    model: "llama"
    type: "fabric"
    url: "http://beta.internal:8100"
    cluster_status: true

federated_models:
  - name: "llama"
    targets:
      - endpoint: "alpha-vllm-llama"
      - endpoint: "beta-vllm-llama"

api_keys:
  - key: "sk-ada"
    username: "ada"
    email: "ada@example.com"
    groups: ["research"]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadValidFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("listen address = %q, want 0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 45*time.Second {
		t.Errorf("read timeout = %v, want 45s", cfg.Server.ReadTimeout)
	}
	if cfg.Routing.CooldownWindow != 30*time.Second {
		t.Errorf("cooldown window = %v, want 30s", cfg.Routing.CooldownWindow)
	}

	// Unset fields get defaults.
	if cfg.Server.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("idle timeout = %v, want default %v", cfg.Server.IdleTimeout, DefaultIdleTimeout)
	}
	if cfg.Batch.UserCap != DefaultBatchUserCap {
		t.Errorf("batch user cap = %d, want default %d", cfg.Batch.UserCap, DefaultBatchUserCap)
	}
	if cfg.Batch.PollSchedule != DefaultBatchPollSchedule {
		t.Errorf("poll schedule = %q, want default %q", cfg.Batch.PollSchedule, DefaultBatchPollSchedule)
	}
	if cfg.Logging.Level != DefaultLoggingLevel {
		t.Errorf("logging level = %q, want default %q", cfg.Logging.Level, DefaultLoggingLevel)
	}
	if !cfg.Batch.BatchEnabled() {
		t.Error("batch should be enabled by default")
	}
	// Every process needs its own claim identity or one process's
	// claim release would drop another's claims.
	if cfg.Ingest.WorkerID == "" {
		t.Error("worker id should default to a per-process identity")
	}

	if len(cfg.Endpoints) != 2 {
		t.Fatalf("got %d endpoints, want 2", len(cfg.Endpoints))
	}
	if !cfg.Endpoints[1].ClusterStatus {
		t.Error("beta endpoint should be a cluster status source")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a mapping"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("error = %v, want parse failure", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Endpoints = []EndpointConfig{
		{Slug: "a", Cluster: "alpha", Framework: "vllm", Model: "m", Type: "openai_api", URL: "http://a:8000"},
		{Slug: "a", Cluster: "alpha", Framework: "vllm", Model: "m", Type: "no_such_type", URL: "not a url"},
		{Cluster: "", Framework: "", Model: "", Type: "fabric", URL: "http://c:8000"},
	}
	cfg.FederatedModels = []FederatedModelConfig{
		{Name: "m", Targets: []FederatedTargetConfig{{Endpoint: "missing"}}},
		{Name: "m", Targets: nil},
	}
	cfg.APIKeys = []APIKeyConfig{
		{Key: "k", Username: "ada"},
		{Key: "k", Username: "", Email: "no-at-sign"},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want ValidationError", err)
	}

	wantFields := []string{
		"endpoints[1].slug",
		"endpoints[1].type",
		"endpoints[1].url",
		"endpoints[2].slug",
		"endpoints[2].cluster",
		"federated_models[0].targets[0].endpoint",
		"federated_models[1].name",
		"federated_models[1].targets",
		"api_keys[1].key",
		"api_keys[1].username",
		"api_keys[1].email",
	}
	got := make(map[string]bool, len(verr.Errors))
	for _, fe := range verr.Errors {
		got[fe.Field] = true
	}
	for _, field := range wantFields {
		if !got[field] {
			t.Errorf("missing validation error for %s; got: %v", field, verr.Errors)
		}
	}
}

func TestValidateFederatedTargetModelMismatch(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Endpoints = []EndpointConfig{
		{Slug: "a", Cluster: "alpha", Framework: "vllm", Model: "other", Type: "openai_api", URL: "http://a:8000"},
	}
	cfg.FederatedModels = []FederatedModelConfig{
		{Name: "m", Targets: []FederatedTargetConfig{{Endpoint: "a"}}},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want ValidationError", err)
	}
	found := false
	for _, fe := range verr.Errors {
		if fe.Field == "federated_models[0].targets[0].endpoint" && strings.Contains(fe.Message, `serves model "other", not "m"`) {
			found = true
		}
	}
	if !found {
		t.Errorf("missing target model mismatch error; got: %v", verr.Errors)
	}
}

func TestValidateDuplicateStatusSource(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Endpoints = []EndpointConfig{
		{Slug: "a", Cluster: "alpha", Framework: "vllm", Model: "m", Type: "fabric", URL: "http://a:8000", ClusterStatus: true},
		{Slug: "b", Cluster: "alpha", Framework: "trtllm", Model: "m", Type: "fabric", URL: "http://b:8000", ClusterStatus: true},
	}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "already has status source") {
		t.Fatalf("err = %v, want duplicate status source error", err)
	}
}

func TestBuild(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	runtime, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(runtime.Topology.Endpoints) != 2 {
		t.Fatalf("got %d endpoints, want 2", len(runtime.Topology.Endpoints))
	}
	ep := runtime.Topology.Endpoints["alpha-vllm-llama"]
	if ep == nil {
		t.Fatal("alpha endpoint missing from topology")
	}
	if ep.Adaptor == nil {
		t.Fatal("alpha endpoint has no adaptor")
	}
	if got := ep.Adaptor.Config().APIKey; got != "literal-key" {
		t.Errorf("api key = %q, want literal-key", got)
	}

	fe := runtime.Topology.Federated["llama"]
	if fe == nil {
		t.Fatal("federated model llama missing")
	}
	if len(fe.Targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(fe.Targets))
	}
	if fe.Targets[0].Model != "llama" {
		t.Errorf("target model = %q, want llama", fe.Targets[0].Model)
	}

	// Only the flagged endpoint becomes a status source.
	if len(runtime.Clusters) != 1 {
		t.Fatalf("got %d cluster status sources, want 1", len(runtime.Clusters))
	}
	if _, ok := runtime.Clusters["beta"]; !ok {
		t.Error("beta should be a cluster status source")
	}

	if len(runtime.Keys) != 1 || runtime.Keys[0].Identity.Username != "ada" {
		t.Errorf("keys = %+v, want one key for ada", runtime.Keys)
	}
	if !runtime.Keys[0].Enabled {
		t.Error("key should be enabled by default")
	}
}

func TestBuildResolvesSecretReferences(t *testing.T) {
	t.Setenv("POLARIS_TEST_KEY", "resolved-secret")

	cfg, err := Load(writeConfig(t, strings.ReplaceAll(validConfig,
		`api_key: "literal-key"`, `api_key: "env:POLARIS_TEST_KEY"`)))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	runtime, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	got := runtime.Topology.Endpoints["alpha-vllm-llama"].Adaptor.Config().APIKey
	if got != "resolved-secret" {
		t.Errorf("api key = %q, want resolved-secret", got)
	}
}

func TestBuildUnresolvableSecret(t *testing.T) {
	cfg, err := Load(writeConfig(t, strings.ReplaceAll(validConfig,
		`api_key: "literal-key"`, `api_key: "env:POLARIS_DEFINITELY_UNSET"`)))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := Build(cfg); err == nil {
		t.Fatal("expected error for unresolvable secret reference")
	}
}

func TestWatcherTriggersReload(t *testing.T) {
	path := writeConfig(t, validConfig)

	w, err := NewWatcher(WatcherConfig{Path: path, DebounceInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- w.Watch(ctx, func() error {
			select {
			case reloaded <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(validConfig+"\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := <-watchDone; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validConfig), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	w, err := NewWatcher(WatcherConfig{Path: path, DebounceInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Watch(ctx, func() error { reloaded <- struct{}{}; return nil }) }()

	time.Sleep(100 * time.Millisecond)

	other := filepath.Join(dir, "unrelated.txt")
	if err := os.WriteFile(other, []byte("noise"), 0o644); err != nil {
		t.Fatalf("failed to write unrelated file: %v", err)
	}

	select {
	case <-reloaded:
		t.Fatal("reload fired for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
