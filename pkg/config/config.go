package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/osvaldoandrade/riskdesk/internal/backoff"
	"github.com/osvaldoandrade/riskdesk/internal/tracing"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

type AgentConfig struct {
	SubmitURL      string                 `yaml:"submitUrl"`
	PurchaseURL    string                 `yaml:"purchaseUrl"`
	StatusURL      string                 `yaml:"statusUrl"`
	TimeoutSeconds int                    `yaml:"timeoutSeconds"`
	Payment        domain.PaymentSettings `yaml:"payment"`
}

type WorkflowConfig struct {
	PollIntervalSeconds      int    `yaml:"pollIntervalSeconds"`
	BackoffPolicy            string `yaml:"backoffPolicy"`
	BackoffBaseSeconds       int    `yaml:"backoffBaseSeconds"`
	BackoffMaxSeconds        int    `yaml:"backoffMaxSeconds"`
	MaxTransientPollFailures int    `yaml:"maxTransientPollFailures"`
	// FailOnReportedFailure is a pointer so an explicit false survives
	// defaulting.
	FailOnReportedFailure *bool `yaml:"failOnReportedFailure"`
	EnforceDeadline       bool  `yaml:"enforceDeadline"`
	DeadlineGraceSeconds  int   `yaml:"deadlineGraceSeconds"`
	IdentifierBytes       int   `yaml:"identifierBytes"`
}

type SimulatorConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CompleteAfterPolls int    `yaml:"completeAfterPolls"`
	Token              string `yaml:"token"`
	JobTTLSeconds      int    `yaml:"jobTtlSeconds"`
}

// ArchiveConfig selects the run archive backend ("redis" or "memory"). Config
// is the provider's JSON config, e.g. {"addr":"kvrocks:6666"}.
type ArchiveConfig struct {
	Provider string `yaml:"provider"`
	Config   string `yaml:"config"`
}

// WebhookConfig controls the run-completion callback. An empty URL disables it.
type WebhookConfig struct {
	URL               string `yaml:"url"`
	Secret            string `yaml:"secret"`
	MaxAttempts       int    `yaml:"maxAttempts"`
	BaseDelaySeconds  int    `yaml:"baseDelaySeconds"`
	MaxDelaySeconds   int    `yaml:"maxDelaySeconds"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

type Config struct {
	Port          int    `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	// LogFile, when set, receives a JSON copy of every log record.
	LogFile string `yaml:"logFile"`
	Env     string `yaml:"env"`

	Agent     AgentConfig     `yaml:"agent"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Simulator SimulatorConfig `yaml:"simulator"`

	AuthProvider string `yaml:"authProvider"`
	// AuthConfig is the provider's JSON config, e.g. {"token":"..."}.
	AuthConfig string `yaml:"authConfig"`

	SessionIdleTTLSeconds         int `yaml:"sessionIdleTtlSeconds"`
	SessionCleanupIntervalSeconds int `yaml:"sessionCleanupIntervalSeconds"`
	ResultRetentionHours          int `yaml:"resultRetentionHours"`
	RecentResultsLimit            int `yaml:"recentResultsLimit"`

	Archive   ArchiveConfig   `yaml:"archive"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Tracing   tracing.Config  `yaml:"tracing"`
}

type RateLimitConfig struct {
	RunRequestsPerMinute int `yaml:"runRequestsPerMinute"`
	RunBurst             int `yaml:"runBurst"`
}

// LoadConfig reads a YAML file, applies environment overrides and fills
// defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

// LoadConfigOptional behaves like LoadConfig but tolerates an empty path or a
// missing file, in which case only env and defaults apply.
func LoadConfigOptional(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) != "" {
		c, err := LoadConfig(filePath)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	c.applyEnv()
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyEnv() {
	envInt("PORT", &c.Port)
	envString("REDIS_ADDR", &c.RedisAddr)
	envString("REDIS_PASSWORD", &c.RedisPassword)
	envString("RISKDESK_LOG_LEVEL", &c.LogLevel)
	envString("RISKDESK_LOG_FORMAT", &c.LogFormat)
	envString("RISKDESK_LOG_FILE", &c.LogFile)
	envString("RISKDESK_ENV", &c.Env)

	envString("RISKDESK_AGENT_SUBMIT_URL", &c.Agent.SubmitURL)
	envString("RISKDESK_AGENT_PURCHASE_URL", &c.Agent.PurchaseURL)
	envString("RISKDESK_AGENT_STATUS_URL", &c.Agent.StatusURL)
	envInt("RISKDESK_AGENT_TIMEOUT_SECONDS", &c.Agent.TimeoutSeconds)
	envString("RISKDESK_PAYMENT_NETWORK", &c.Agent.Payment.Network)
	envString("RISKDESK_PAYMENT_SELLER_VKEY", &c.Agent.Payment.SellerVkey)
	envString("RISKDESK_PAYMENT_TYPE", &c.Agent.Payment.PaymentType)
	envString("RISKDESK_PAYMENT_TOKEN", &c.Agent.Payment.Token)
	envString("RISKDESK_PAYMENT_TOKEN_HEADER", &c.Agent.Payment.TokenHeader)

	envInt("RISKDESK_POLL_INTERVAL_SECONDS", &c.Workflow.PollIntervalSeconds)
	envString("RISKDESK_BACKOFF_POLICY", &c.Workflow.BackoffPolicy)
	envInt("RISKDESK_BACKOFF_BASE_SECONDS", &c.Workflow.BackoffBaseSeconds)
	envInt("RISKDESK_BACKOFF_MAX_SECONDS", &c.Workflow.BackoffMaxSeconds)
	envInt("RISKDESK_MAX_TRANSIENT_POLL_FAILURES", &c.Workflow.MaxTransientPollFailures)
	if v := os.Getenv("RISKDESK_FAIL_ON_REPORTED_FAILURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Workflow.FailOnReportedFailure = &b
		}
	}
	envBool("RISKDESK_ENFORCE_DEADLINE", &c.Workflow.EnforceDeadline)
	envInt("RISKDESK_DEADLINE_GRACE_SECONDS", &c.Workflow.DeadlineGraceSeconds)

	envBool("RISKDESK_SIMULATOR_ENABLED", &c.Simulator.Enabled)
	envInt("RISKDESK_SIMULATOR_COMPLETE_AFTER_POLLS", &c.Simulator.CompleteAfterPolls)
	envString("RISKDESK_SIMULATOR_TOKEN", &c.Simulator.Token)

	envString("RISKDESK_AUTH_PROVIDER", &c.AuthProvider)
	envString("RISKDESK_AUTH_CONFIG", &c.AuthConfig)

	envInt("RISKDESK_SESSION_IDLE_TTL_SECONDS", &c.SessionIdleTTLSeconds)
	envInt("RISKDESK_SESSION_CLEANUP_INTERVAL_SECONDS", &c.SessionCleanupIntervalSeconds)
	envInt("RISKDESK_RESULT_RETENTION_HOURS", &c.ResultRetentionHours)
	envString("RISKDESK_ARCHIVE_PROVIDER", &c.Archive.Provider)
	envString("RISKDESK_ARCHIVE_CONFIG", &c.Archive.Config)
	envString("RISKDESK_WEBHOOK_URL", &c.Webhook.URL)
	envString("RISKDESK_WEBHOOK_SECRET", &c.Webhook.Secret)
	envInt("RISKDESK_RUN_REQUESTS_PER_MINUTE", &c.RateLimit.RunRequestsPerMinute)
	envInt("RISKDESK_RUN_BURST", &c.RateLimit.RunBurst)

	envBool("RISKDESK_TRACING_ENABLED", &c.Tracing.Enabled)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Tracing.OTLPEndpoint)
	envString("OTEL_SERVICE_NAME", &c.Tracing.ServiceName)
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		c.Tracing.SampleRatio = tracing.ParseSampleRatio(v)
	}
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.Agent.TimeoutSeconds <= 0 {
		c.Agent.TimeoutSeconds = 30
	}
	if c.Agent.Payment.TokenHeader == "" {
		c.Agent.Payment.TokenHeader = "token"
	}
	if c.Agent.Payment.PaymentType == "" {
		c.Agent.Payment.PaymentType = "Web3CardanoV1"
	}
	if c.Agent.Payment.Network == "" {
		c.Agent.Payment.Network = "Preprod"
	}

	w := &c.Workflow
	if w.PollIntervalSeconds <= 0 {
		w.PollIntervalSeconds = 120
	}
	if w.BackoffPolicy == "" {
		w.BackoffPolicy = backoff.PolicyExpEqualJitter
	}
	if w.BackoffBaseSeconds <= 0 {
		w.BackoffBaseSeconds = 5
	}
	if w.BackoffMaxSeconds <= 0 {
		w.BackoffMaxSeconds = w.PollIntervalSeconds
	}
	if w.FailOnReportedFailure == nil {
		t := true
		w.FailOnReportedFailure = &t
	}
	if w.DeadlineGraceSeconds <= 0 {
		w.DeadlineGraceSeconds = 300
	}
	if w.IdentifierBytes <= 0 {
		w.IdentifierBytes = 8
	}

	if c.Simulator.CompleteAfterPolls <= 0 {
		c.Simulator.CompleteAfterPolls = 2
	}
	if c.Simulator.JobTTLSeconds <= 0 {
		c.Simulator.JobTTLSeconds = 24 * 3600
	}
	if c.Simulator.Enabled {
		if c.Simulator.Token == "" {
			c.Simulator.Token = c.Agent.Payment.Token
		}
		base := fmt.Sprintf("http://127.0.0.1:%d/v1/agent", c.Port)
		if c.Agent.SubmitURL == "" {
			c.Agent.SubmitURL = base + "/start_job"
		}
		if c.Agent.PurchaseURL == "" {
			c.Agent.PurchaseURL = base + "/purchase"
		}
		if c.Agent.StatusURL == "" {
			c.Agent.StatusURL = base + "/status"
		}
	}

	if c.AuthProvider == "" {
		c.AuthProvider = "static"
	}
	if c.SessionIdleTTLSeconds <= 0 {
		c.SessionIdleTTLSeconds = 3600
	}
	if c.SessionCleanupIntervalSeconds <= 0 {
		c.SessionCleanupIntervalSeconds = 60
	}
	if c.ResultRetentionHours <= 0 {
		c.ResultRetentionHours = 24 * 7
	}
	if c.Archive.Provider == "" {
		c.Archive.Provider = "redis"
	}
	if c.RecentResultsLimit <= 0 {
		c.RecentResultsLimit = 100
	}
	if c.RateLimit.RunRequestsPerMinute < 0 {
		c.RateLimit.RunRequestsPerMinute = 0
	}
	if c.RateLimit.RunBurst <= 0 {
		c.RateLimit.RunBurst = c.RateLimit.RunRequestsPerMinute
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = 5
	}
	if c.Webhook.BaseDelaySeconds <= 0 {
		c.Webhook.BaseDelaySeconds = 2
	}
	if c.Webhook.MaxDelaySeconds <= 0 {
		c.Webhook.MaxDelaySeconds = 60
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "riskdesk"
	}
}

// PollInterval and the other helpers expose durations in time.Duration.
func (w WorkflowConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

func (w WorkflowConfig) ReportedFailureIsTerminal() bool {
	return w.FailOnReportedFailure == nil || *w.FailOnReportedFailure
}

func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	errs := c.agentErrors()
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if strings.TrimSpace(c.Agent.Payment.Token) == "" && !dev {
		errs = append(errs, "agent.payment.token is required in non-dev")
	}
	if !backoff.Valid(c.Workflow.BackoffPolicy) {
		errs = append(errs, fmt.Sprintf("workflow.backoffPolicy %q is not supported", c.Workflow.BackoffPolicy))
	}
	if c.Workflow.MaxTransientPollFailures < 0 {
		errs = append(errs, "workflow.maxTransientPollFailures must be >= 0")
	}
	if c.Webhook.URL != "" {
		if u, err := url.Parse(c.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "webhook.url must be a valid http(s) URL")
		}
	}
	if strings.TrimSpace(c.AuthConfig) == "" && !dev {
		errs = append(errs, "authConfig is required in non-dev")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, "logFormat must be json or text")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateAgent checks only the settings a workflow needs to reach the agent.
func (c *Config) ValidateAgent() error {
	errs := c.agentErrors()
	if !backoff.Valid(c.Workflow.BackoffPolicy) {
		errs = append(errs, fmt.Sprintf("workflow.backoffPolicy %q is not supported", c.Workflow.BackoffPolicy))
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) agentErrors() []string {
	var errs []string
	for name, raw := range map[string]string{
		"agent.submitUrl":   c.Agent.SubmitURL,
		"agent.purchaseUrl": c.Agent.PurchaseURL,
		"agent.statusUrl":   c.Agent.StatusURL,
	} {
		if raw == "" {
			errs = append(errs, name+" is required")
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, name+" must be a valid http(s) URL")
		}
	}
	if strings.TrimSpace(c.Agent.Payment.SellerVkey) == "" && !c.Simulator.Enabled {
		errs = append(errs, "agent.payment.sellerVkey is required")
	}
	return errs
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
