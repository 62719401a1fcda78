package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigOptional_EmptyPath(t *testing.T) {
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional with empty path should not error: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected Port=9999 from env, got %d", cfg.Port)
	}
}

func TestLoadConfigOptional_WhitespacePath(t *testing.T) {
	cfg, err := LoadConfigOptional("   ")
	if err != nil {
		t.Fatalf("LoadConfigOptional with whitespace path should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected non-nil config")
	}
}

func TestLoadConfigOptional_FileNotExist(t *testing.T) {
	nonExistentPath := filepath.Join(t.TempDir(), "config-does-not-exist.yaml")

	cfg, err := LoadConfigOptional(nonExistentPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with non-existent file should not error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port, got %d", cfg.Port)
	}
}

func TestLoadConfigOptional_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	invalidYAML := `
port: 8080
redisAddr: "localhost:6379"
  invalid indentation here
  more bad yaml
`
	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := LoadConfigOptional(configPath); err == nil {
		t.Fatal("Expected error when loading invalid YAML, got nil")
	}
}

func TestLoadConfigOptional_ValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "valid.yaml")
	validYAML := `
port: 8081
redisAddr: "redis:6379"
redisPassword: "secret"
logLevel: "debug"
env: "test"
agent:
  submitUrl: "https://agent.example.com/start_job"
  purchaseUrl: "https://payments.example.com/purchase"
  statusUrl: "https://agent.example.com/status"
  payment:
    network: "Mainnet"
    sellerVkey: "vkey-1"
    token: "pay-token"
workflow:
  pollIntervalSeconds: 30
  failOnReportedFailure: false
  maxTransientPollFailures: 4
`
	if err := os.WriteFile(configPath, []byte(validYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional with valid config should not error: %v", err)
	}

	if cfg.Port != 8081 || cfg.RedisAddr != "redis:6379" || cfg.RedisPassword != "secret" {
		t.Errorf("server fields not loaded: %+v", cfg)
	}
	if cfg.LogLevel != "debug" || cfg.Env != "test" {
		t.Errorf("logging fields not loaded: %q %q", cfg.LogLevel, cfg.Env)
	}
	if cfg.Agent.Payment.Network != "Mainnet" || cfg.Agent.Payment.SellerVkey != "vkey-1" || cfg.Agent.Payment.Token != "pay-token" {
		t.Errorf("payment settings not loaded: %+v", cfg.Agent.Payment)
	}
	if cfg.Agent.Payment.TokenHeader != "token" {
		t.Errorf("Expected default token header, got %q", cfg.Agent.Payment.TokenHeader)
	}
	if cfg.Workflow.PollInterval() != 30*time.Second {
		t.Errorf("Expected 30s poll interval, got %v", cfg.Workflow.PollInterval())
	}
	if cfg.Workflow.ReportedFailureIsTerminal() {
		t.Error("explicit failOnReportedFailure: false must survive defaults")
	}
	if cfg.Workflow.MaxTransientPollFailures != 4 {
		t.Errorf("Expected 4, got %d", cfg.Workflow.MaxTransientPollFailures)
	}
	if cfg.Workflow.BackoffMaxSeconds != 30 {
		t.Errorf("backoff max should default to the poll interval, got %d", cfg.Workflow.BackoffMaxSeconds)
	}
}

func TestLoadConfigOptional_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
port: 8080
redisAddr: "localhost:6379"
redisPassword: "file-password"
agent:
  payment:
    token: "file-token"
`
	if err := os.WriteFile(configPath, []byte(configYAML), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "env-redis:6380")
	t.Setenv("REDIS_PASSWORD", "env-password")
	t.Setenv("RISKDESK_PAYMENT_TOKEN", "env-token")
	t.Setenv("RISKDESK_FAIL_ON_REPORTED_FAILURE", "false")
	t.Setenv("RISKDESK_ENFORCE_DEADLINE", "true")

	cfg, err := LoadConfigOptional(configPath)
	if err != nil {
		t.Fatalf("LoadConfigOptional should not error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected Port=9090 from env, got %d", cfg.Port)
	}
	if cfg.RedisAddr != "env-redis:6380" {
		t.Errorf("Expected RedisAddr='env-redis:6380' from env, got %q", cfg.RedisAddr)
	}
	if cfg.RedisPassword != "env-password" {
		t.Errorf("Expected RedisPassword='env-password' from env, got %q", cfg.RedisPassword)
	}
	if cfg.Agent.Payment.Token != "env-token" {
		t.Errorf("Expected payment token from env, got %q", cfg.Agent.Payment.Token)
	}
	if cfg.Workflow.ReportedFailureIsTerminal() {
		t.Error("Expected env to disable reported-failure termination")
	}
	if !cfg.Workflow.EnforceDeadline {
		t.Error("Expected deadline enforcement from env")
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.Workflow.PollInterval() != 120*time.Second {
		t.Errorf("Expected 120s poll interval, got %v", cfg.Workflow.PollInterval())
	}
	if !cfg.Workflow.ReportedFailureIsTerminal() {
		t.Error("reported failures should be terminal by default")
	}
	if cfg.Workflow.BackoffPolicy != "exp_equal_jitter" {
		t.Errorf("Expected exp_equal_jitter backoff, got %q", cfg.Workflow.BackoffPolicy)
	}
	if cfg.Workflow.EnforceDeadline {
		t.Error("deadline enforcement should be off by default")
	}
	if cfg.Workflow.MaxTransientPollFailures != 0 {
		t.Error("transient poll failures should be unlimited by default")
	}
	if cfg.Workflow.IdentifierBytes != 8 {
		t.Errorf("Expected 8 identifier bytes, got %d", cfg.Workflow.IdentifierBytes)
	}
	if cfg.AuthProvider != "static" || cfg.LogFormat != "json" {
		t.Errorf("unexpected defaults: %q %q", cfg.AuthProvider, cfg.LogFormat)
	}
	if cfg.Archive.Provider != "redis" {
		t.Errorf("Expected redis archive by default, got %q", cfg.Archive.Provider)
	}
}

func TestSimulatorFillsAgentURLs(t *testing.T) {
	t.Setenv("PORT", "8090")
	t.Setenv("RISKDESK_SIMULATOR_ENABLED", "true")
	t.Setenv("RISKDESK_PAYMENT_TOKEN", "sim-token")

	cfg, err := LoadConfigOptional("")
	if err != nil {
		t.Fatalf("LoadConfigOptional: %v", err)
	}
	if cfg.Agent.SubmitURL != "http://127.0.0.1:8090/v1/agent/start_job" {
		t.Errorf("submit url = %q", cfg.Agent.SubmitURL)
	}
	if cfg.Agent.StatusURL != "http://127.0.0.1:8090/v1/agent/status" {
		t.Errorf("status url = %q", cfg.Agent.StatusURL)
	}
	if cfg.Simulator.Token != "sim-token" {
		t.Errorf("simulator token should default to the payment token, got %q", cfg.Simulator.Token)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("simulator dev config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := LoadConfigOptional("")
	cfg.Env = "prod"
	cfg.Agent.StatusURL = "ftp://bad"
	cfg.Workflow.BackoffPolicy = "random"
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"agent.submitUrl is required",
		"agent.statusUrl must be a valid http(s) URL",
		"agent.payment.sellerVkey is required",
		"agent.payment.token is required in non-dev",
		"backoffPolicy",
		"authConfig is required in non-dev",
		"logFormat must be json or text",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err.Error(), want)
		}
	}
}

func TestValidateAgentIgnoresGatewaySettings(t *testing.T) {
	cfg, _ := LoadConfigOptional("")
	cfg.Env = "prod"
	cfg.Agent.SubmitURL = "https://agent.example.com/start_job"
	cfg.Agent.PurchaseURL = "https://payments.example.com/purchase"
	cfg.Agent.StatusURL = "https://agent.example.com/status"
	cfg.Agent.Payment.SellerVkey = "vkey"

	if err := cfg.ValidateAgent(); err != nil {
		t.Fatalf("ValidateAgent: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("full validation should still require authConfig and the payment token")
	}

	cfg.Agent.StatusURL = ""
	if err := cfg.ValidateAgent(); err == nil || !strings.Contains(err.Error(), "agent.statusUrl is required") {
		t.Fatalf("expected missing status url, got %v", err)
	}
}
